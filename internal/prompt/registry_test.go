package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepchat/internal/types"
)

func TestListOrdering(t *testing.T) {
	r := NewRegistry()

	_, err := r.CreateCustom("pirate", CustomData{Name: "Pirate", Prompt: "Arr."})
	require.NoError(t, err)
	_, err = r.CreateCustom("zen-master", CustomData{Name: "Zen Master", Prompt: "Breathe."})
	require.NoError(t, err)

	list := r.List()
	require.Len(t, list, len(builtinOrder)+2)

	t.Run("built-ins first in declared order", func(t *testing.T) {
		for i, id := range builtinOrder {
			assert.Equal(t, id, list[i].ID)
			assert.Equal(t, types.TemplateBuiltin, list[i].Type)
		}
	})

	t.Run("customs follow in creation order", func(t *testing.T) {
		assert.Equal(t, "pirate", list[len(builtinOrder)].ID)
		assert.Equal(t, "zen-master", list[len(builtinOrder)+1].ID)
		assert.Equal(t, types.TemplateCustom, list[len(builtinOrder)].Type)
	})
}

func TestGetFallsBackToDefault(t *testing.T) {
	r := NewRegistry()

	t.Run("unknown id returns default, never fails", func(t *testing.T) {
		tpl := r.Get("nonexistent-id")
		assert.Equal(t, DefaultPromptID, tpl.ID)
	})

	t.Run("builtin lookup", func(t *testing.T) {
		tpl := r.Get("code-mentor")
		assert.Equal(t, "Code Mentor", tpl.Name)
	})

	t.Run("custom lookup", func(t *testing.T) {
		_, err := r.CreateCustom("pirate", CustomData{Prompt: "Arr."})
		require.NoError(t, err)
		assert.Equal(t, "pirate", r.Get("pirate").ID)
	})
}

func TestCreateCustom(t *testing.T) {
	r := NewRegistry()

	t.Run("rejects built-in id collision", func(t *testing.T) {
		_, err := r.CreateCustom("helpful-assistant", CustomData{Prompt: "x"})
		require.Error(t, err)
		assert.True(t, types.IsKind(err, types.KindDuplicateBuiltin))
	})

	t.Run("applies defaults for missing fields", func(t *testing.T) {
		tpl, err := r.CreateCustom("blank", CustomData{Prompt: "x"})
		require.NoError(t, err)
		assert.Equal(t, "Custom Prompt", tpl.Name)
		assert.Equal(t, "🎭", tpl.Icon)
		assert.False(t, tpl.CreatedAt.IsZero())
	})
}

func TestUpdateCustom(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateCustom("pirate", CustomData{Name: "Pirate", Prompt: "Arr."})
	require.NoError(t, err)

	t.Run("updates fields and stamps UpdatedAt", func(t *testing.T) {
		tpl, err := r.UpdateCustom("pirate", CustomData{Prompt: "Ahoy."})
		require.NoError(t, err)
		assert.Equal(t, "Ahoy.", tpl.Prompt)
		assert.Equal(t, "Pirate", tpl.Name)
		require.NotNil(t, tpl.UpdatedAt)
	})

	t.Run("NotFound for unknown custom", func(t *testing.T) {
		_, err := r.UpdateCustom("ghost", CustomData{Prompt: "x"})
		assert.True(t, types.IsKind(err, types.KindNotFound))
	})

	t.Run("ImmutableBuiltin for builtin id", func(t *testing.T) {
		_, err := r.UpdateCustom("philosopher", CustomData{Prompt: "x"})
		assert.True(t, types.IsKind(err, types.KindImmutableBuiltin))
	})
}

func TestDeleteCustom(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateCustom("pirate", CustomData{Prompt: "Arr."})
	require.NoError(t, err)

	require.NoError(t, r.DeleteCustom("pirate"))

	t.Run("second delete is NotFound", func(t *testing.T) {
		err := r.DeleteCustom("pirate")
		assert.True(t, types.IsKind(err, types.KindNotFound))
	})

	t.Run("builtin delete is ImmutableBuiltin", func(t *testing.T) {
		err := r.DeleteCustom("learning-coach")
		assert.True(t, types.IsKind(err, types.KindImmutableBuiltin))
	})
}

func TestRenderSystemMessage(t *testing.T) {
	r := NewRegistry()

	t.Run("no context renders bare template", func(t *testing.T) {
		msg := r.RenderSystemMessage("helpful-assistant", nil)
		assert.Equal(t, types.RoleSystem, msg.Role)
		assert.Equal(t, builtins["helpful-assistant"].Prompt, msg.Content)
	})

	t.Run("context paragraphs in fixed order", func(t *testing.T) {
		msg := r.RenderSystemMessage("helpful-assistant", map[string]string{
			ContextConversation: "planning a trip",
			ContextUserName:     "Ada",
			ContextPreferences:  "short answers",
		})

		nameIdx := strings.Index(msg.Content, "The user's name is Ada.")
		prefIdx := strings.Index(msg.Content, "User preferences: short answers")
		convIdx := strings.Index(msg.Content, "Conversation context: planning a trip")
		require.True(t, nameIdx > 0 && prefIdx > 0 && convIdx > 0)
		assert.Less(t, nameIdx, prefIdx)
		assert.Less(t, prefIdx, convIdx)
		assert.Equal(t, 3, strings.Count(msg.Content, "\n\n"))
	})

	t.Run("absent context values are skipped", func(t *testing.T) {
		msg := r.RenderSystemMessage("helpful-assistant", map[string]string{
			ContextPreferences: "metric units",
		})
		assert.NotContains(t, msg.Content, "The user's name")
		assert.Contains(t, msg.Content, "User preferences: metric units")
	})

	t.Run("unknown id renders the default persona", func(t *testing.T) {
		msg := r.RenderSystemMessage("nope", nil)
		assert.Equal(t, builtins[DefaultPromptID].Prompt, msg.Content)
	})
}

func TestRegistryFilePersistence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.json")

	r := NewRegistry(WithFile(path))
	_, err := r.CreateCustom("pirate", CustomData{Name: "Pirate", Prompt: "Arr."})
	require.NoError(t, err)

	t.Run("round-trips across restart", func(t *testing.T) {
		r2 := NewRegistry(WithFile(path))
		tpl := r2.Get("pirate")
		assert.Equal(t, "pirate", tpl.ID)
		assert.Equal(t, "Arr.", tpl.Prompt)
		assert.Equal(t, types.TemplateCustom, tpl.Type)
	})

	t.Run("missing file starts empty", func(t *testing.T) {
		r3 := NewRegistry(WithFile(filepath.Join(dir, "absent.json")))
		assert.Len(t, r3.List(), len(builtinOrder))
	})

	t.Run("corrupt file starts empty", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
		r4 := NewRegistry(WithFile(bad))
		assert.Len(t, r4.List(), len(builtinOrder))
	})

	t.Run("builtin ids in file are ignored", func(t *testing.T) {
		shadow := filepath.Join(dir, "shadow.json")
		data := `{"helpful-assistant":{"prompt":"evil"},"ok":{"prompt":"fine"}}`
		require.NoError(t, os.WriteFile(shadow, []byte(data), 0o644))
		r5 := NewRegistry(WithFile(shadow))
		assert.Equal(t, builtins["helpful-assistant"].Prompt, r5.Get("helpful-assistant").Prompt)
		assert.Equal(t, "fine", r5.Get("ok").Prompt)
	})
}
