package types

import (
	"maps"
	"time"
)

// Role identifies who produced a turn in the conversation.
type Role string

const (
	RoleUser      Role = "user"      // RoleUser is a human message.
	RoleAssistant Role = "assistant" // RoleAssistant is a model response.
	RoleSystem    Role = "system"    // RoleSystem is framework-injected context.
	RoleTool      Role = "tool"      // RoleTool is a tool invocation result.
)

// Valid returns true if the role is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// Turn is a single message in a conversation log. Turns are immutable once
// created: the log appends them, the compactor replaces them wholesale, and
// nothing ever edits one in place. ResourceID ties the turn to its entry in
// the resource ledger.
type Turn struct {
	// Metadata holds optional additional information about the turn.
	Metadata map[string]interface{}

	// Content is the text content of the turn.
	Content string

	// ResourceID is the ledger entry tracking this turn's resource class.
	ResourceID string

	// Role indicates who produced the turn.
	Role Role

	// Timestamp records when the turn was created.
	Timestamp time.Time
}

// NewTurn creates a new turn with the given role and content, stamped now.
func NewTurn(role Role, content string) *Turn {
	return &Turn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  make(map[string]interface{}),
	}
}

// NewUserTurn creates a new user turn.
func NewUserTurn(content string) *Turn {
	return NewTurn(RoleUser, content)
}

// NewAssistantTurn creates a new assistant turn.
func NewAssistantTurn(content string) *Turn {
	return NewTurn(RoleAssistant, content)
}

// NewSystemTurn creates a new system turn.
func NewSystemTurn(content string) *Turn {
	return NewTurn(RoleSystem, content)
}

// NewToolTurn creates a new tool turn.
func NewToolTurn(content string) *Turn {
	return NewTurn(RoleTool, content)
}

// WithMetadata adds metadata to the turn and returns the turn for chaining.
// It is intended for use at construction time only; turns already appended to
// a log must not be modified.
func (t *Turn) WithMetadata(key string, value interface{}) *Turn {
	if t.Metadata == nil {
		t.Metadata = make(map[string]interface{})
	}
	t.Metadata[key] = value
	return t
}

// Clone returns a structural copy of the turn. The metadata map is copied so
// the clone never aliases the original's mutable state.
func (t *Turn) Clone() *Turn {
	clone := &Turn{
		Role:       t.Role,
		Content:    t.Content,
		ResourceID: t.ResourceID,
		Timestamp:  t.Timestamp,
	}
	if t.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(t.Metadata))
		maps.Copy(clone.Metadata, t.Metadata)
	}
	return clone
}
