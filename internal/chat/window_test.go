package chat

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepchat/internal/types"
)

func numberedMessages(n int) []types.Message {
	out := make([]types.Message, n)
	for i := range out {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		out[i] = types.Message{Role: role, Content: fmt.Sprintf("msg-%d", i)}
	}
	return out
}

func TestBuildWindow(t *testing.T) {
	t.Run("system plus 120 messages yields 51", func(t *testing.T) {
		messages := append([]types.Message{{Role: types.RoleSystem, Content: "persona"}},
			numberedMessages(120)...)

		window := BuildWindow(messages, 50)
		require.Len(t, window, 51)
		assert.Equal(t, types.RoleSystem, window[0].Role)
		assert.Equal(t, "msg-70", window[1].Content)
		assert.Equal(t, "msg-119", window[50].Content)
	})

	t.Run("system message never trimmed", func(t *testing.T) {
		messages := append([]types.Message{{Role: types.RoleSystem, Content: "persona"}},
			numberedMessages(3)...)

		window := BuildWindow(messages, 50)
		require.Len(t, window, 4)
		assert.Equal(t, "persona", window[0].Content)
	})

	t.Run("no system message yields trimmed tail only", func(t *testing.T) {
		window := BuildWindow(numberedMessages(10), 4)
		require.Len(t, window, 4)
		assert.Equal(t, "msg-6", window[0].Content)
		assert.Equal(t, "msg-9", window[3].Content)
	})

	t.Run("order preserved", func(t *testing.T) {
		window := BuildWindow(numberedMessages(6), 50)
		for i, m := range window {
			assert.Equal(t, fmt.Sprintf("msg-%d", i), m.Content)
		}
	})

	t.Run("zero max uses default", func(t *testing.T) {
		window := BuildWindow(numberedMessages(80), 0)
		assert.Len(t, window, DefaultWindowSize)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, BuildWindow(nil, 50))
	})
}
