// Package types provides shared data model definitions used across deepchat
// packages. This package exists to break import cycles between the store,
// prompt registry, and chat engine. Types here are foundational data
// structures with no complex dependencies.
package types

import "time"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Usage is the token accounting record returned by the completion service.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Message is a single turn in a conversation. Messages are immutable once
// appended; corrections happen by appending, never by editing in place.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Usage     *Usage    `json:"usage,omitempty"`
}

// Conversation is the full state of one chat session.
//
// Invariants: SessionID is unique and immutable after creation. When the
// conversation has a system prompt, Messages[0] is the system message.
// Messages reflect chronological append order and are never reordered.
// LastUpdated is monotonically non-decreasing.
type Conversation struct {
	SessionID   string            `json:"sessionId"`
	Title       string            `json:"title"`
	PromptID    string            `json:"promptId"`
	Messages    []Message         `json:"messages"`
	CreatedAt   time.Time         `json:"createdAt"`
	LastUpdated time.Time         `json:"lastUpdated"`
	UserContext map[string]string `json:"userContext,omitempty"`
}

// Clone returns a deep copy. The store hands out copies so callers never
// share mutable state with the store's own record.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	for i, m := range c.Messages {
		if m.Usage != nil {
			u := *m.Usage
			out.Messages[i].Usage = &u
		}
	}
	if c.UserContext != nil {
		out.UserContext = make(map[string]string, len(c.UserContext))
		for k, v := range c.UserContext {
			out.UserContext[k] = v
		}
	}
	return &out
}

// SystemMessage returns the conversation's system message, or nil if the
// conversation has none.
func (c *Conversation) SystemMessage() *Message {
	for i := range c.Messages {
		if c.Messages[i].Role == RoleSystem {
			return &c.Messages[i]
		}
	}
	return nil
}

// UserMessageCount counts user-role messages. Used to detect the first user
// turn for title derivation.
func (c *Conversation) UserMessageCount() int {
	n := 0
	for i := range c.Messages {
		if c.Messages[i].Role == RoleUser {
			n++
		}
	}
	return n
}

// Summary is the listing projection of a conversation.
type Summary struct {
	SessionID    string    `json:"sessionId"`
	Title        string    `json:"title"`
	LastUpdated  time.Time `json:"lastUpdated"`
	MessageCount int       `json:"messageCount"`
}

// Template types.
const (
	TemplateBuiltin = "builtin"
	TemplateCustom  = "custom"
)

// PromptTemplate is a named personality template. Built-in templates are
// read-only; custom templates may be created, updated and deleted.
type PromptTemplate struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	Prompt      string     `json:"prompt"`
	Type        string     `json:"type"`
	CreatedAt   time.Time  `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}
