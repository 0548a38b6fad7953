// Package prompt implements the personality template registry. It holds the
// read-only built-in personas plus user-defined custom templates, and renders
// a template with per-user context into the system message that opens a
// conversation.
package prompt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"deepchat/internal/types"
)

// UserContext keys recognized by RenderSystemMessage.
const (
	ContextUserName     = "userName"
	ContextPreferences  = "preferences"
	ContextConversation = "conversationContext"
)

// Registry owns all prompt templates. Built-ins are immutable; custom
// templates are guarded by the registry's mutex and persisted to a JSON
// file when a path is configured.
type Registry struct {
	mu      sync.RWMutex
	customs map[string]types.PromptTemplate

	filePath string
	logger   *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithFile enables persistence of custom templates to path. The file is
// loaded on construction; a missing file starts the registry empty.
func WithFile(path string) Option {
	return func(r *Registry) { r.filePath = path }
}

// WithLogger sets the registry logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates a registry holding the built-in personas plus any
// custom templates loaded from the configured file.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		customs: make(map[string]types.PromptTemplate),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.filePath != "" {
		if err := r.loadFromFile(); err != nil {
			r.logger.Warn("no custom prompt data loaded, starting fresh",
				zap.String("path", r.filePath), zap.Error(err))
		}
	}
	return r
}

// List returns all templates: built-ins first in their declared order, then
// custom templates in creation order.
func (r *Registry) List() []types.PromptTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.PromptTemplate, 0, len(builtinOrder)+len(r.customs))
	for _, id := range builtinOrder {
		out = append(out, builtins[id])
	}

	customs := make([]types.PromptTemplate, 0, len(r.customs))
	for _, tpl := range r.customs {
		customs = append(customs, tpl)
	}
	sort.Slice(customs, func(i, j int) bool {
		if customs[i].CreatedAt.Equal(customs[j].CreatedAt) {
			return customs[i].ID < customs[j].ID
		}
		return customs[i].CreatedAt.Before(customs[j].CreatedAt)
	})
	return append(out, customs...)
}

// Get returns the template for id. Unknown ids fall back to the default
// persona; Get never fails with not-found.
func (r *Registry) Get(id string) types.PromptTemplate {
	if tpl, ok := builtins[id]; ok {
		return tpl
	}

	r.mu.RLock()
	tpl, ok := r.customs[id]
	r.mu.RUnlock()
	if ok {
		return tpl
	}
	return builtins[DefaultPromptID]
}

// CustomData carries the caller-supplied fields of a custom template.
type CustomData struct {
	Name        string
	Description string
	Prompt      string
	Icon        string
}

// CreateCustom registers a new custom template. Ids colliding with a
// built-in are rejected with KindDuplicateBuiltin.
func (r *Registry) CreateCustom(id string, data CustomData) (types.PromptTemplate, error) {
	if IsBuiltin(id) {
		return types.PromptTemplate{}, types.NewError(types.KindDuplicateBuiltin,
			"cannot override built-in prompt %q", id)
	}

	tpl := types.PromptTemplate{
		ID:          id,
		Name:        data.Name,
		Description: data.Description,
		Prompt:      data.Prompt,
		Icon:        data.Icon,
		Type:        types.TemplateCustom,
		CreatedAt:   time.Now(),
	}
	if tpl.Name == "" {
		tpl.Name = "Custom Prompt"
	}
	if tpl.Icon == "" {
		tpl.Icon = "🎭"
	}

	r.mu.Lock()
	r.customs[id] = tpl
	r.mu.Unlock()

	r.logger.Info("custom prompt created", zap.String("id", id))
	r.persist()
	return tpl, nil
}

// UpdateCustom overwrites fields of an existing custom template. Empty
// fields in data leave the stored value untouched.
func (r *Registry) UpdateCustom(id string, data CustomData) (types.PromptTemplate, error) {
	if IsBuiltin(id) {
		return types.PromptTemplate{}, types.NewError(types.KindImmutableBuiltin,
			"cannot modify built-in prompt %q", id)
	}

	r.mu.Lock()
	tpl, ok := r.customs[id]
	if !ok {
		r.mu.Unlock()
		return types.PromptTemplate{}, types.NewError(types.KindNotFound,
			"custom prompt %q not found", id)
	}
	if data.Name != "" {
		tpl.Name = data.Name
	}
	if data.Description != "" {
		tpl.Description = data.Description
	}
	if data.Prompt != "" {
		tpl.Prompt = data.Prompt
	}
	if data.Icon != "" {
		tpl.Icon = data.Icon
	}
	now := time.Now()
	tpl.UpdatedAt = &now
	r.customs[id] = tpl
	r.mu.Unlock()

	r.logger.Info("custom prompt updated", zap.String("id", id))
	r.persist()
	return tpl, nil
}

// DeleteCustom removes a custom template.
func (r *Registry) DeleteCustom(id string) error {
	if IsBuiltin(id) {
		return types.NewError(types.KindImmutableBuiltin,
			"cannot delete built-in prompt %q", id)
	}

	r.mu.Lock()
	_, ok := r.customs[id]
	if !ok {
		r.mu.Unlock()
		return types.NewError(types.KindNotFound, "custom prompt %q not found", id)
	}
	delete(r.customs, id)
	r.mu.Unlock()

	r.logger.Info("custom prompt deleted", zap.String("id", id))
	r.persist()
	return nil
}

// RenderSystemMessage builds the system message for a session: the template
// body plus one paragraph per present context value, in fixed order (user
// name, preferences, conversation context). The result is an owned value,
// not a live reference into the template.
func (r *Registry) RenderSystemMessage(id string, userContext map[string]string) types.Message {
	tpl := r.Get(id)
	content := tpl.Prompt

	if name := userContext[ContextUserName]; name != "" {
		content += fmt.Sprintf("\n\nThe user's name is %s.", name)
	}
	if prefs := userContext[ContextPreferences]; prefs != "" {
		content += fmt.Sprintf("\n\nUser preferences: %s", prefs)
	}
	if cc := userContext[ContextConversation]; cc != "" {
		content += fmt.Sprintf("\n\nConversation context: %s", cc)
	}

	return types.Message{
		Role:      types.RoleSystem,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// persist writes custom templates to the configured file. Failures are
// logged and swallowed; in-memory state stays authoritative.
func (r *Registry) persist() {
	if r.filePath == "" {
		return
	}

	r.mu.RLock()
	data, err := json.MarshalIndent(r.customs, "", "  ")
	r.mu.RUnlock()
	if err != nil {
		r.logger.Error("failed to encode custom prompts", zap.Error(err))
		return
	}

	if err := os.MkdirAll(filepath.Dir(r.filePath), 0o755); err != nil {
		r.logger.Error("failed to create prompt data directory", zap.Error(err))
		return
	}
	if err := os.WriteFile(r.filePath, data, 0o644); err != nil {
		r.logger.Error("failed to write custom prompts",
			zap.String("path", r.filePath), zap.Error(err))
	}
}

// loadFromFile replaces the custom template set with the file contents.
func (r *Registry) loadFromFile() error {
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		return err
	}

	customs := make(map[string]types.PromptTemplate)
	if err := json.Unmarshal(data, &customs); err != nil {
		return fmt.Errorf("failed to parse custom prompts: %w", err)
	}

	// Built-in ids in the file would shadow immutable personas; drop them.
	for id, tpl := range customs {
		if IsBuiltin(id) {
			delete(customs, id)
			continue
		}
		tpl.ID = id
		tpl.Type = types.TemplateCustom
		customs[id] = tpl
	}

	r.mu.Lock()
	r.customs = customs
	r.mu.Unlock()

	r.logger.Info("custom prompts loaded",
		zap.String("path", r.filePath), zap.Int("count", len(customs)))
	return nil
}
