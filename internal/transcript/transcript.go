// Package transcript holds the ordered message log of a chat session.
//
// A message is either final, with immutable content, or pending, with a
// private buffer that only Extend can grow. At most one message is pending
// and it is always the last one. A Transcript is not safe for concurrent
// use; its owner serializes access.
package transcript

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ErrPendingTail is returned by Append while a pending message is open.
var ErrPendingTail = errors.New("transcript: pending message still open")

// NotFoundError reports an Extend/Finalize/Discard call whose id does not
// match the pending tail.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("transcript: no pending message with id %q", e.ID)
}

// Message is one transcript entry.
type Message struct {
	id        string
	role      Role
	createdAt time.Time

	content string
	pending bool
	buf     strings.Builder
}

func newMessage(role Role, content string, pending bool) *Message {
	return &Message{
		id:        uuid.Must(uuid.NewV7()).String(),
		role:      role,
		createdAt: time.Now(),
		content:   content,
		pending:   pending,
	}
}

// NewUserMessage creates a final user message.
func NewUserMessage(content string) *Message {
	return newMessage(RoleUser, content, false)
}

// NewAssistantMessage creates a final assistant message, such as a greeting
// or a fallback notice.
func NewAssistantMessage(content string) *Message {
	return newMessage(RoleAssistant, content, false)
}

// NewPlaceholder creates an empty pending assistant message.
func NewPlaceholder() *Message {
	return newMessage(RoleAssistant, "", true)
}

// ID returns the message identifier.
func (m *Message) ID() string { return m.id }

// Role returns the sender role.
func (m *Message) Role() Role { return m.role }

// CreatedAt returns the creation time.
func (m *Message) CreatedAt() time.Time { return m.createdAt }

// Pending reports whether the message is still streaming.
func (m *Message) Pending() bool { return m.pending }

// Content returns the current text, including buffered text of a pending
// message.
func (m *Message) Content() string {
	if m.pending {
		return m.buf.String()
	}
	return m.content
}

// View returns an immutable copy of the message.
func (m *Message) View() MessageView {
	return MessageView{
		ID:        m.id,
		Role:      m.role,
		Content:   m.Content(),
		CreatedAt: m.createdAt,
		Streaming: m.pending,
	}
}

// MessageView is a read-only copy of a message.
type MessageView struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Streaming bool      `json:"streaming,omitempty"`
}

// Transcript is an ordered message log.
type Transcript struct {
	messages []*Message
}

// New creates a transcript seeded with the given final messages.
func New(seed ...*Message) *Transcript {
	t := &Transcript{}
	for _, m := range seed {
		if m != nil && !m.pending {
			t.messages = append(t.messages, m)
		}
	}
	return t
}

// Append adds m to the end of the log.
func (t *Transcript) Append(m *Message) error {
	if m == nil {
		return errors.New("transcript: nil message")
	}
	if _, open := t.Pending(); open {
		return ErrPendingTail
	}
	t.messages = append(t.messages, m)
	return nil
}

// Extend appends fragment to the pending tail identified by id.
func (t *Transcript) Extend(id, fragment string) error {
	m, err := t.pendingTail(id)
	if err != nil {
		return err
	}
	m.buf.WriteString(fragment)
	return nil
}

// Finalize freezes the pending tail identified by id.
func (t *Transcript) Finalize(id string) error {
	m, err := t.pendingTail(id)
	if err != nil {
		return err
	}
	m.content = m.buf.String()
	m.buf.Reset()
	m.pending = false
	return nil
}

// Discard removes the pending tail identified by id together with any text
// it accumulated. Final messages can never be discarded.
func (t *Transcript) Discard(id string) error {
	if _, err := t.pendingTail(id); err != nil {
		return err
	}
	last := len(t.messages) - 1
	t.messages[last] = nil
	t.messages = t.messages[:last]
	return nil
}

// Pending returns the id of the pending tail, if one is open.
func (t *Transcript) Pending() (string, bool) {
	if len(t.messages) == 0 {
		return "", false
	}
	last := t.messages[len(t.messages)-1]
	if !last.pending {
		return "", false
	}
	return last.id, true
}

// Len returns the number of messages.
func (t *Transcript) Len() int { return len(t.messages) }

// Snapshot returns copies of all messages in order.
func (t *Transcript) Snapshot() []MessageView {
	out := make([]MessageView, len(t.messages))
	for i, m := range t.messages {
		out[i] = m.View()
	}
	return out
}

// Last returns a copy of the final element.
func (t *Transcript) Last() (MessageView, bool) {
	if len(t.messages) == 0 {
		return MessageView{}, false
	}
	return t.messages[len(t.messages)-1].View(), true
}

func (t *Transcript) pendingTail(id string) (*Message, error) {
	if len(t.messages) == 0 {
		return nil, &NotFoundError{ID: id}
	}
	last := t.messages[len(t.messages)-1]
	if !last.pending || last.id != id {
		return nil, &NotFoundError{ID: id}
	}
	return last, nil
}
