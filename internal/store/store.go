// Package store implements the durable conversation store: an in-memory map
// of session id to conversation, persisted to a single human-readable JSON
// document. Writes are visible immediately; durability is eventual, with a
// flush every Nth write and one final synchronous flush on shutdown.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"deepchat/internal/metrics"
	"deepchat/internal/types"
)

// DefaultFlushEvery is the durability flush cadence: one flush per N
// distinct writes.
const DefaultFlushEvery = 5

// Store owns all Conversation instances. Callers receive deep copies; the
// only way to mutate a conversation is get, modify the copy, and Put it back.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*types.Conversation
	writes        int

	// flushMu serializes flushes of the backing file; a flush in progress
	// is never re-entered.
	flushMu sync.Mutex

	filePath   string
	flushEvery int
	now        func() time.Time
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithPath sets the backing JSON document. Without a path the store is
// memory-only and flushes are no-ops.
func WithPath(path string) Option {
	return func(s *Store) { s.filePath = path }
}

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithFlushEvery overrides the flush cadence.
func WithFlushEvery(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.flushEvery = n
		}
	}
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock overrides the time source. Tests use this to age conversations.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store and attempts to load prior durable state. A missing or
// unreadable file is not an error; the store starts empty.
func New(opts ...Option) *Store {
	s := &Store{
		conversations: make(map[string]*types.Conversation),
		flushEvery:    DefaultFlushEvery,
		now:           time.Now,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.filePath != "" {
		if err := s.load(); err != nil {
			s.logger.Info("no existing conversation data found, starting fresh",
				zap.String("path", s.filePath), zap.Error(err))
		}
	}
	s.metrics.SetConversations(len(s.conversations))
	return s
}

// Get returns a deep copy of the conversation, or false when absent.
func (s *Store) Get(sessionID string) (*types.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[sessionID]
	if !ok {
		return nil, false
	}
	return conv.Clone(), true
}

// Put overwrites the whole record and stamps LastUpdated to the current
// time, unconditionally, even when the caller passed a stale timestamp.
// Every flushEvery-th distinct write triggers a durability flush; flush
// failures are logged, never fatal, and never hide the write from
// subsequent reads.
func (s *Store) Put(sessionID string, conv *types.Conversation) {
	record := conv.Clone()
	record.LastUpdated = s.now()

	s.mu.Lock()
	s.conversations[sessionID] = record
	s.writes++
	due := s.writes%s.flushEvery == 0
	count := len(s.conversations)
	s.mu.Unlock()

	s.metrics.SetConversations(count)
	if due {
		if err := s.Flush(); err != nil {
			s.logger.Error("conversation flush failed", zap.Error(err))
		}
	}
}

// Delete removes the record, reporting whether one existed.
func (s *Store) Delete(sessionID string) bool {
	s.mu.Lock()
	_, ok := s.conversations[sessionID]
	if ok {
		delete(s.conversations, sessionID)
		s.writes++
	}
	due := ok && s.writes%s.flushEvery == 0
	count := len(s.conversations)
	s.mu.Unlock()

	if ok {
		s.metrics.SetConversations(count)
	}
	if due {
		if err := s.Flush(); err != nil {
			s.logger.Error("conversation flush failed", zap.Error(err))
		}
	}
	return ok
}

// List returns conversation summaries sorted by LastUpdated descending,
// truncated to limit. A non-positive limit returns all summaries.
func (s *Store) List(limit int) []types.Summary {
	s.mu.RLock()
	summaries := make([]types.Summary, 0, len(s.conversations))
	for id, conv := range s.conversations {
		title := conv.Title
		if title == "" {
			title = "Untitled Conversation"
		}
		summaries = append(summaries, types.Summary{
			SessionID:    id,
			Title:        title,
			LastUpdated:  conv.LastUpdated,
			MessageCount: len(conv.Messages),
		})
	}
	s.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].LastUpdated.Equal(summaries[j].LastUpdated) {
			return summaries[i].SessionID < summaries[j].SessionID
		}
		return summaries[i].LastUpdated.After(summaries[j].LastUpdated)
	})

	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries
}

// Len returns the number of stored conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

// SweepExpired deletes every conversation whose LastUpdated is older than
// maxAge and returns the count deleted. Any deletion triggers a flush.
func (s *Store) SweepExpired(maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge)

	s.mu.Lock()
	deleted := 0
	for id, conv := range s.conversations {
		if conv.LastUpdated.Before(cutoff) {
			delete(s.conversations, id)
			deleted++
		}
	}
	count := len(s.conversations)
	s.mu.Unlock()

	if deleted > 0 {
		s.metrics.SetConversations(count)
		s.metrics.RecordSweepDeletions(deleted)
		s.logger.Info("swept expired conversations",
			zap.Int("deleted", deleted), zap.Duration("max_age", maxAge))
		if err := s.Flush(); err != nil {
			s.logger.Error("conversation flush failed", zap.Error(err))
		}
	}
	return deleted
}

// Flush writes the full in-memory state to the backing file. Flushes are
// serialized; the file is rewritten wholesale via a temp file and rename so
// a crash mid-flush never corrupts prior durable state.
func (s *Store) Flush() error {
	if s.filePath == "" {
		return nil
	}

	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.RLock()
	data, err := json.MarshalIndent(s.conversations, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		s.metrics.RecordFlush(false)
		return types.WrapError(types.KindPersistence, err, "failed to encode conversations")
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		s.metrics.RecordFlush(false)
		return types.WrapError(types.KindPersistence, err, "failed to create data directory")
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.metrics.RecordFlush(false)
		return types.WrapError(types.KindPersistence, err, "failed to write %s", tmp)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		s.metrics.RecordFlush(false)
		return types.WrapError(types.KindPersistence, err, "failed to replace %s", s.filePath)
	}

	s.metrics.RecordFlush(true)
	s.logger.Debug("conversations flushed",
		zap.String("path", s.filePath), zap.Int("bytes", len(data)))
	return nil
}

// Close performs the final synchronous flush. Call on graceful shutdown.
func (s *Store) Close() error {
	return s.Flush()
}

// load replaces in-memory state with the backing file contents.
func (s *Store) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	conversations := make(map[string]*types.Conversation)
	if err := json.Unmarshal(data, &conversations); err != nil {
		return fmt.Errorf("failed to parse conversation data: %w", err)
	}

	s.mu.Lock()
	s.conversations = conversations
	s.mu.Unlock()

	s.logger.Info("conversations loaded",
		zap.String("path", s.filePath), zap.Int("count", len(conversations)))
	return nil
}
