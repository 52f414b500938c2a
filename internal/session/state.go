// Package session holds the client-side view of one document: its content,
// the connected participants and the live channel that keeps both current.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"collab-dashboard/internal/channel"
	"collab-dashboard/internal/document"
	"collab-dashboard/internal/message"
	"collab-dashboard/internal/rbac"
)

var ErrReadOnly = errors.New("read-only access")

// Sender is the part of the channel the session state writes to.
type Sender interface {
	Send(msg message.Message) error
	State() channel.State
}

// Saver persists the document durably.
type Saver interface {
	Save(ctx context.Context, doc document.Document) error
}

type Option func(*options)

type options struct {
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
	onChange func(msg message.Message)
}

func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithOnChange registers a callback run after every inbound message has
// been applied. It runs on the channel's read goroutine.
func WithOnChange(f func(msg message.Message)) Option {
	return func(o *options) { o.onChange = f }
}

func buildOptions(opts []Option) options {
	o := options{
		notifier: discardNotifier{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// State is the local copy of the document. Content is only ever replaced
// wholesale, by an inbound init or update or by a local edit.
type State struct {
	identity rbac.Identity
	ch       Sender
	saver    Saver
	options

	mu  sync.RWMutex
	doc document.Document
}

func NewState(identity rbac.Identity, ch Sender, saver Saver, opts ...Option) *State {
	return &State{
		identity: identity,
		ch:       ch,
		saver:    saver,
		options:  buildOptions(opts),
	}
}

// Apply replaces the local document from an init or update message and
// reports whether msg carried document content.
func (s *State) Apply(msg message.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m := msg.(type) {
	case message.Init:
		s.doc = document.Document{
			Title:        m.Document.Title,
			Content:      m.Document.Content,
			LastEditedBy: m.Document.LastEditedBy,
			LastUpdated:  m.Document.LastUpdated,
		}
	case message.Update:
		s.doc.Content = m.Content
		if m.Title != "" {
			s.doc.Title = m.Title
		}
		s.doc.LastEditedBy = m.LastEditedBy
		s.doc.LastUpdated = m.LastUpdated
	default:
		return false
	}
	return true
}

// Edit replaces the local content and, when the channel is open, sends it
// to the other participants. Edits made while disconnected stay local and
// are not queued.
func (s *State) Edit(content string) error {
	if !rbac.Can(s.identity.Role, rbac.ActionEdit) {
		s.notifier.Notify(Notice{Level: LevelWarning, Text: ReadOnlyNotice})
		return ErrReadOnly
	}

	s.mu.Lock()
	s.doc.Content = content
	s.doc.LastEditedBy = s.identity.User
	title := s.doc.Title
	s.mu.Unlock()

	if s.ch.State() != channel.Open {
		s.logger.Debug("channel not open, edit kept locally")
		return nil
	}
	return s.ch.Send(message.Update{
		Title:        title,
		Content:      content,
		LastEditedBy: s.identity.User,
	})
}

// MoveCursor reports the local cursor offset. Read-only participants never
// report one, so the roster stays unchanged for them.
func (s *State) MoveCursor(position int) error {
	if !rbac.Can(s.identity.Role, rbac.ActionCursor) {
		return ErrReadOnly
	}
	if position < 0 {
		return fmt.Errorf("cursor position %d out of range", position)
	}
	if s.ch.State() != channel.Open {
		return nil
	}
	return s.ch.Send(message.Cursor{Position: position})
}

// Save writes the current content through the REST API. It does not depend
// on the channel and is never retried.
func (s *State) Save(ctx context.Context) error {
	if !rbac.Can(s.identity.Role, rbac.ActionSave) {
		s.notifier.Notify(Notice{Level: LevelWarning, Text: ReadOnlyNotice})
		return ErrReadOnly
	}

	s.mu.RLock()
	doc := s.doc
	s.mu.RUnlock()
	if doc.Title == "" {
		doc.Title = document.DefaultTitle
	}
	doc.LastEditedBy = s.identity.User
	doc.LastUpdated = s.now().Format(document.TimeLayout)

	if err := s.saver.Save(ctx, doc); err != nil {
		s.logger.Warn("save failed", "err", err)
		s.notifier.Notify(Notice{Level: LevelWarning, Text: SaveFailedNotice})
		return fmt.Errorf("save document: %w", err)
	}
	s.notifier.Notify(Notice{Level: LevelInfo, Text: SavedNotice})
	return nil
}

func (s *State) Content() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Content
}

func (s *State) Document() document.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

func (s *State) ReadOnly() bool {
	return s.identity.ReadOnly()
}
