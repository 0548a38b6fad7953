package chat

import (
	"context"
	"sync"

	"deepchat/internal/deepseek"
	"deepchat/internal/types"
)

// mockClient simulates the remote completion service.
type mockClient struct {
	mu sync.Mutex

	// Buffered mode
	reply       string
	usage       types.Usage
	completeErr error

	// Streaming mode
	fragments []string
	streamErr error
	// hangAfterFragments keeps the stream open after the fragments are
	// emitted until the context is cancelled.
	hangAfterFragments bool

	// Captured requests
	windows [][]types.Message
	options []deepseek.Options
}

func (m *mockClient) Complete(ctx context.Context, messages []types.Message, opts deepseek.Options) (*deepseek.Completion, error) {
	m.record(messages, opts)
	if m.completeErr != nil {
		return nil, m.completeErr
	}
	return &deepseek.Completion{Text: m.reply, Usage: m.usage}, nil
}

func (m *mockClient) CompleteStreaming(ctx context.Context, messages []types.Message, opts deepseek.Options) (<-chan string, <-chan error) {
	m.record(messages, opts)

	contentCh := make(chan string, len(m.fragments))
	errCh := make(chan error, 1)
	go func() {
		defer close(contentCh)
		defer close(errCh)
		for _, f := range m.fragments {
			select {
			case contentCh <- f:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if m.hangAfterFragments {
			<-ctx.Done()
			errCh <- ctx.Err()
			return
		}
		if m.streamErr != nil {
			errCh <- m.streamErr
		}
	}()
	return contentCh, errCh
}

func (m *mockClient) record(messages []types.Message, opts deepseek.Options) {
	m.mu.Lock()
	defer m.mu.Unlock()
	window := make([]types.Message, len(messages))
	copy(window, messages)
	m.windows = append(m.windows, window)
	m.options = append(m.options, opts)
}

func (m *mockClient) lastWindow() []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.windows) == 0 {
		return nil
	}
	return m.windows[len(m.windows)-1]
}
