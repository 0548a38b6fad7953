package chat

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"deepchat/internal/types"
)

// EventType tags the frames of a streaming exchange.
type EventType string

const (
	EventChunk EventType = "chunk"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one frame of a streaming exchange. The JSON shape matches the
// server-sent-events payloads relayed to clients.
type Event struct {
	Type      EventType `json:"type"`
	Content   string    `json:"content,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// StreamMessage runs one streaming exchange. Setup mirrors SendMessage, but
// the user turn is persisted before the remote call begins, so a retry after
// a failed stream re-derives context from the same stored state without
// duplicating the user message.
//
// Each upstream fragment is forwarded as a chunk event immediately. On
// normal completion the accumulated text is appended as one assistant
// message and persisted, then a done event carries the session id. On
// upstream failure an error event terminates the sequence; the confirmed
// user message stays persisted, the partial assistant text does not. If the
// caller abandons the stream (context cancelled or events channel no longer
// drained), whatever accumulated is persisted best-effort.
func (s *Service) StreamMessage(ctx context.Context, sessionID, text string, opts SendOptions) <-chan Event {
	events := make(chan Event, 8)

	go func() {
		defer close(events)

		conv, release := s.checkout(sessionID, opts)
		defer release()

		s.appendUserMessage(conv, text)
		s.store.Put(conv.SessionID, conv)

		window := BuildWindow(conv.Messages, s.config.WindowSize)
		completionOpts := s.mergeOptions(opts.Completion)

		start := time.Now()
		contentCh, errCh := s.client.CompleteStreaming(ctx, window, completionOpts)

		var accumulated strings.Builder
		for fragment := range contentCh {
			accumulated.WriteString(fragment)
			s.metrics.RecordStreamChunk()

			select {
			case events <- Event{Type: EventChunk, Content: fragment}:
			case <-ctx.Done():
				// Consumer gone: stop relaying, keep what we have.
				s.persistPartial(conv, accumulated.String())
				s.metrics.RecordOperation("stream_message", "cancelled")
				return
			}
		}

		if err := <-errCh; err != nil {
			if ctx.Err() != nil {
				s.persistPartial(conv, accumulated.String())
				s.metrics.RecordOperation("stream_message", "cancelled")
				return
			}
			s.logger.Warn("stream failed",
				zap.String("session_id", conv.SessionID), zap.Error(err))
			s.metrics.RecordStreamFailure()
			s.metrics.RecordOperation("stream_message", "error")
			events <- Event{Type: EventError, Error: err.Error()}
			return
		}

		s.metrics.RecordCompletion("streaming", time.Since(start))

		conv.Messages = append(conv.Messages, types.Message{
			Role:      types.RoleAssistant,
			Content:   accumulated.String(),
			Timestamp: time.Now(),
		})
		s.store.Put(conv.SessionID, conv)

		s.logger.Info("stream completed",
			zap.String("session_id", conv.SessionID),
			zap.Int("response_len", accumulated.Len()))
		s.metrics.RecordOperation("stream_message", "ok")

		events <- Event{Type: EventDone, SessionID: conv.SessionID}
	}()

	return events
}

// persistPartial appends whatever assistant text accumulated before the
// stream was abandoned. Best-effort durability: an empty accumulation keeps
// the conversation at the already-persisted user turn.
func (s *Service) persistPartial(conv *types.Conversation, text string) {
	if text == "" {
		return
	}
	conv.Messages = append(conv.Messages, types.Message{
		Role:      types.RoleAssistant,
		Content:   text,
		Timestamp: time.Now(),
	})
	s.store.Put(conv.SessionID, conv)
	s.logger.Info("partial stream response persisted",
		zap.String("session_id", conv.SessionID), zap.Int("response_len", len(text)))
}
