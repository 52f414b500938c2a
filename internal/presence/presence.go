// Package presence tracks who is connected to a document and where their
// cursors are, as last reported by the collaboration service.
package presence

import (
	"sync"

	"collab-dashboard/internal/message"
)

// Tracker mirrors the service roster. It has no local mutation path: the
// roster changes only when an init or presence message arrives.
type Tracker struct {
	self string

	mu           sync.RWMutex
	participants []message.Participant
}

func New(self string) *Tracker {
	return &Tracker{self: self}
}

// Apply replaces the roster from an init or presence message and reports
// whether msg carried one.
func (t *Tracker) Apply(msg message.Message) bool {
	var roster []message.Participant
	switch m := msg.(type) {
	case message.Init:
		roster = m.Users
	case message.Presence:
		roster = m
	default:
		return false
	}

	t.mu.Lock()
	t.participants = copyRoster(roster)
	t.mu.Unlock()
	return true
}

// UsersOnline returns participant identifiers in roster order.
func (t *Tracker) UsersOnline() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return message.Users(t.participants)
}

func (t *Tracker) Participants() []message.Participant {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return copyRoster(t.participants)
}

// Cursors returns the other participants that have reported a cursor,
// keyed by user. Each user is expected to hold one channel: a second
// channel for the same user overwrites the first entry, and both are
// treated as the local user.
func (t *Tracker) Cursors() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cursors := make(map[string]int)
	for _, p := range t.participants {
		if p.User == t.self || p.Cursor == nil {
			continue
		}
		cursors[p.User] = *p.Cursor
	}
	return cursors
}

func copyRoster(roster []message.Participant) []message.Participant {
	out := make([]message.Participant, len(roster))
	for i, p := range roster {
		out[i] = message.Participant{User: p.User}
		if p.Cursor != nil {
			pos := *p.Cursor
			out[i].Cursor = &pos
		}
	}
	return out
}
