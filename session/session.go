package session

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind classifies a session event.
type EventKind string

const (
	EventInput      EventKind = "input"
	EventAction     EventKind = "action"
	EventDelegation EventKind = "delegation"
	EventToolCall   EventKind = "tool_call"
	EventToolReturn EventKind = "tool_return"
	EventReprompt   EventKind = "reprompt"
	EventReply      EventKind = "reply"
	EventInterrupt  EventKind = "interrupt"
	EventError      EventKind = "error"
)

// Event is one entry of a session transcript.
type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	TurnID    string    `json:"turn_id"`
	Agent     string    `json:"agent"`
	Kind      EventKind `json:"kind"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// NewID returns a fresh random identifier.
func NewID() string { return uuid.NewString() }

// NewEvent creates an event with a new id and the current time.
func NewEvent(sessionID, turnID, agent string, kind EventKind, detail string) Event {
	return Event{
		ID:        NewID(),
		SessionID: sessionID,
		TurnID:    turnID,
		Agent:     agent,
		Kind:      kind,
		Detail:    detail,
		Timestamp: time.Now(),
	}
}

// Session is the transcript and state of one operator session.
type Session struct {
	ID      string         `json:"id"`
	State   map[string]any `json:"state"`
	Events  []Event        `json:"events"`
	Created time.Time      `json:"created"`
	Updated time.Time      `json:"updated"`
	mu      sync.RWMutex
}

// NewSession creates an empty session.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{ID: id, State: map[string]any{}, Events: []Event{}, Created: now, Updated: now}
}

// GetState returns the value and existence flag for a state key.
func (s *Session) GetState(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.State[key]
	return v, ok
}

// ApplyStateDelta merges delta into the state.
func (s *Session) ApplyStateDelta(delta map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.State, delta)
	s.Updated = time.Now()
}

// AddEvent appends an event.
func (s *Session) AddEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
	s.Updated = time.Now()
}

// GetEvents returns a copy of the events.
func (s *Session) GetEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.Events)
}

// TurnEvents returns the events of one turn in order.
func (s *Session) TurnEvents(turnID string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, ev := range s.Events {
		if ev.TurnID == turnID {
			out = append(out, ev)
		}
	}
	return out
}

// Clone returns a deep copy of the session (state values are copied shallowly).
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Session{
		ID:      s.ID,
		State:   maps.Clone(s.State),
		Events:  slices.Clone(s.Events),
		Created: s.Created,
		Updated: s.Updated,
	}
}

// Store persists sessions.
type Store interface {
	Create(id string) (*Session, error)
	Get(id string) (*Session, error)
	AppendEvent(sessionID string, ev Event) error
	ApplyDelta(sessionID string, delta map[string]any) error
}
