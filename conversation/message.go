package conversation

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole validates a role string from seed files and the like.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleSystem, RoleUser, RoleAssistant:
		return r, nil
	default:
		return "", fmt.Errorf("unknown message role %q", s)
	}
}

// TypeSummary tags synthetic summary messages produced by compaction.
const TypeSummary = "summary"

// SummaryPrefix starts the content of every summary message.
const SummaryPrefix = "[CONVERSATION SUMMARY]: "

// Message is one entry of a conversation. Messages are treated as immutable
// once appended.
type Message struct {
	Role      Role           `json:"role" yaml:"role"`
	Content   string         `json:"content" yaml:"content"`
	Timestamp time.Time      `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Type      string         `json:"type,omitempty" yaml:"type,omitempty"`
}

// IsSummary reports whether m was synthesized by compaction.
func (m Message) IsSummary() bool { return m.Type == TypeSummary }

func (m Message) size() int { return len(m.Role) + len(m.Content) }

// Transcript renders messages as "role: content" lines.
func Transcript(msgs []Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

func cloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
