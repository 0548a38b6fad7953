// Package chat implements the session engine: the orchestration layer that
// ties the prompt registry, conversation store, context window and
// completion client into the conversation lifecycle. Sessions move through
// three states: NEW (no stored conversation), ACTIVE (conversation exists),
// DELETED (record removed). Streaming is an in-memory operation over an
// ACTIVE session; there is no persisted mid-stream state.
package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"deepchat/internal/deepseek"
	"deepchat/internal/metrics"
	"deepchat/internal/prompt"
	"deepchat/internal/store"
	"deepchat/internal/types"
)

// CompletionClient is the seam to the remote completion service. Alternate
// providers can be substituted as long as they satisfy this interface.
type CompletionClient interface {
	Complete(ctx context.Context, messages []types.Message, opts deepseek.Options) (*deepseek.Completion, error)
	CompleteStreaming(ctx context.Context, messages []types.Message, opts deepseek.Options) (<-chan string, <-chan error)
}

// Config holds engine configuration.
type Config struct {
	// WindowSize bounds the non-system context tail per exchange.
	WindowSize int

	// Completion supplies default options merged into each request.
	Completion deepseek.Options
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{WindowSize: DefaultWindowSize}
}

// Service is the session engine. Construct one per process and share it;
// all state lives in the injected store and registry, so tests get isolation
// by constructing fresh instances.
type Service struct {
	store   *store.Store
	prompts *prompt.Registry
	client  CompletionClient
	config  Config
	locks   *sessionLocks
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewService creates a session engine with the given dependencies.
func NewService(st *store.Store, registry *prompt.Registry, client CompletionClient, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Service {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   st,
		prompts: registry,
		client:  client,
		config:  cfg,
		locks:   newSessionLocks(),
		logger:  logger,
		metrics: m,
	}
}

// SendOptions carries the per-call parameters of SendMessage and
// StreamMessage. PromptID and UserContext only apply when the call lazily
// creates a session.
type SendOptions struct {
	PromptID    string
	UserContext map[string]string
	Completion  deepseek.Options
}

// SendResult is the outcome of a buffered message exchange.
type SendResult struct {
	SessionID    string      `json:"sessionId"`
	Message      string      `json:"message"`
	Title        string      `json:"title"`
	MessageCount int         `json:"messageCount"`
	LastUpdated  time.Time   `json:"lastUpdated"`
	Usage        types.Usage `json:"usage"`
}

// CreateSession starts a new conversation: a fresh session id, the rendered
// system message as the first entry, and the placeholder title.
func (s *Service) CreateSession(promptID string, userContext map[string]string) *types.Conversation {
	if promptID == "" {
		promptID = prompt.DefaultPromptID
	}

	sessionID := uuid.NewString()
	systemMessage := s.prompts.RenderSystemMessage(promptID, userContext)

	conv := &types.Conversation{
		SessionID:   sessionID,
		Title:       "New Conversation",
		PromptID:    promptID,
		Messages:    []types.Message{systemMessage},
		CreatedAt:   time.Now(),
		UserContext: userContext,
	}
	s.store.Put(sessionID, conv)

	s.logger.Info("session created",
		zap.String("session_id", sessionID), zap.String("prompt_id", promptID))
	s.metrics.RecordOperation("create_session", "ok")

	stored, _ := s.store.Get(sessionID)
	return stored
}

// SendMessage runs one buffered exchange. An absent or unknown session id
// lazily creates a session; sending never fails with NotFound. The first
// user message derives the conversation title. On upstream failure nothing
// new is persisted and the error carries KindUpstream.
func (s *Service) SendMessage(ctx context.Context, sessionID, text string, opts SendOptions) (*SendResult, error) {
	conv, release := s.checkout(sessionID, opts)
	defer release()

	s.appendUserMessage(conv, text)

	window := BuildWindow(conv.Messages, s.config.WindowSize)
	completionOpts := s.mergeOptions(opts.Completion)

	start := time.Now()
	completion, err := s.client.Complete(ctx, window, completionOpts)
	if err != nil {
		s.logger.Warn("completion failed",
			zap.String("session_id", conv.SessionID), zap.Error(err))
		s.metrics.RecordOperation("send_message", "error")
		return nil, err
	}
	s.metrics.RecordCompletion("buffered", time.Since(start))

	usage := completion.Usage
	conv.Messages = append(conv.Messages, types.Message{
		Role:      types.RoleAssistant,
		Content:   completion.Text,
		Timestamp: time.Now(),
		Usage:     &usage,
	})
	s.store.Put(conv.SessionID, conv)

	stored, _ := s.store.Get(conv.SessionID)
	s.logger.Info("message exchanged",
		zap.String("session_id", conv.SessionID),
		zap.Int("messages", len(stored.Messages)),
		zap.Int("total_tokens", usage.TotalTokens))
	s.metrics.RecordOperation("send_message", "ok")

	return &SendResult{
		SessionID:    stored.SessionID,
		Message:      completion.Text,
		Title:        stored.Title,
		MessageCount: len(stored.Messages),
		LastUpdated:  stored.LastUpdated,
		Usage:        usage,
	}, nil
}

// GetHistory returns the conversation with up to limit non-system messages,
// most-recent-last, or false when the session is unknown.
func (s *Service) GetHistory(sessionID string, limit int) (*types.Conversation, bool) {
	conv, ok := s.store.Get(sessionID)
	if !ok {
		return nil, false
	}

	visible := make([]types.Message, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		if m.Role != types.RoleSystem {
			visible = append(visible, m)
		}
	}
	if limit > 0 && len(visible) > limit {
		visible = visible[len(visible)-limit:]
	}
	conv.Messages = visible
	return conv, true
}

// ListConversations returns summaries sorted by recency.
func (s *Service) ListConversations(limit int) []types.Summary {
	return s.store.List(limit)
}

// DeleteSession removes the session, reporting whether it existed.
func (s *Service) DeleteSession(sessionID string) bool {
	release := s.locks.Acquire(sessionID)
	defer release()

	deleted := s.store.Delete(sessionID)
	if deleted {
		s.logger.Info("session deleted", zap.String("session_id", sessionID))
	}
	s.metrics.RecordOperation("delete_session", "ok")
	return deleted
}

// RenameSession overwrites the conversation title. Unlike SendMessage, a
// missing session is a NotFound failure.
func (s *Service) RenameSession(sessionID, newTitle string) (*types.Conversation, error) {
	release := s.locks.Acquire(sessionID)
	defer release()

	conv, ok := s.store.Get(sessionID)
	if !ok {
		s.metrics.RecordOperation("rename_session", "error")
		return nil, types.NewError(types.KindNotFound, "conversation %s not found", sessionID)
	}

	conv.Title = newTitle
	s.store.Put(sessionID, conv)
	s.metrics.RecordOperation("rename_session", "ok")

	stored, _ := s.store.Get(sessionID)
	return stored, nil
}

// checkout resolves the working conversation for a send: the existing record
// under its per-session lock, or a lazily created session when the id is
// absent or unknown. The returned release function must be called once the
// mutation is persisted.
func (s *Service) checkout(sessionID string, opts SendOptions) (*types.Conversation, func()) {
	if sessionID != "" {
		release := s.locks.Acquire(sessionID)
		if conv, ok := s.store.Get(sessionID); ok {
			return conv, release
		}
		release()
	}

	conv := s.CreateSession(opts.PromptID, opts.UserContext)
	return conv, s.locks.Acquire(conv.SessionID)
}

// appendUserMessage appends the user turn and derives the title when this is
// the conversation's first user message.
func (s *Service) appendUserMessage(conv *types.Conversation, text string) {
	conv.Messages = append(conv.Messages, types.Message{
		Role:      types.RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	})
	if conv.UserMessageCount() == 1 {
		conv.Title = deriveTitle(text)
	}
}

// mergeOptions layers per-call completion options over the configured
// defaults.
func (s *Service) mergeOptions(call deepseek.Options) deepseek.Options {
	merged := s.config.Completion
	if call.Model != "" {
		merged.Model = call.Model
	}
	if call.Temperature != 0 {
		merged.Temperature = call.Temperature
	}
	if call.MaxTokens != 0 {
		merged.MaxTokens = call.MaxTokens
	}
	return merged
}
