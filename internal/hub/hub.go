// Package hub is the collaboration service. A single Run goroutine owns the
// authoritative document and the roster; every inbound frame, registration
// and disconnect is applied there one at a time.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"collab-dashboard/internal/client"
	"collab-dashboard/internal/document"
	"collab-dashboard/internal/message"
)

var ErrStopped = errors.New("hub stopped")

const relayBuffer = 64

// Relay carries accepted updates to other service instances.
type Relay interface {
	Publish(ctx context.Context, update message.Update) error
	Subscribe(ctx context.Context) (<-chan message.Update, error)
}

type Snapshot struct {
	Document document.Document
	Roster   []message.Participant
}

type member struct {
	client *client.Client
	cursor *int
}

type delivery struct {
	client *client.Client
	msg    message.Message
}

type Hub struct {
	register   chan *client.Client
	unregister chan *client.Client
	inbound    chan delivery
	snapshots  chan chan Snapshot
	relayOut   chan message.Update
	done       chan struct{}

	members []*member
	doc     document.Document

	relay        Relay
	auth         TokenVerifier
	requireToken bool
	logger       *slog.Logger
	now          func() time.Time
}

type Option func(*Hub)

func WithRelay(relay Relay) Option {
	return func(h *Hub) { h.relay = relay }
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

// WithAuth makes ServeWS verify identity tokens. When require is set,
// connections without a valid token are refused.
func WithAuth(verifier TokenVerifier, require bool) Option {
	return func(h *Hub) {
		h.auth = verifier
		h.requireToken = require
	}
}

func New(doc document.Document, opts ...Option) *Hub {
	h := &Hub{
		register:   make(chan *client.Client),
		unregister: make(chan *client.Client),
		inbound:    make(chan delivery),
		snapshots:  make(chan chan Snapshot),
		relayOut:   make(chan message.Update, relayBuffer),
		done:       make(chan struct{}),
		doc:        doc,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run processes hub events until ctx is cancelled. On return every
// participant's send channel is closed.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for _, m := range h.members {
			close(m.client.Send)
		}
		h.members = nil
		close(h.done)
	}()

	var remote <-chan message.Update
	if h.relay != nil {
		updates, err := h.relay.Subscribe(ctx)
		if err != nil {
			h.logger.Error("relay subscribe failed, running standalone", "err", err)
		} else {
			remote = updates
			go h.publishLoop(ctx)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.handleRegister(c)

		case c := <-h.unregister:
			if h.remove(c) {
				h.logger.Info("participant left", "user", c.Identity.User, "online", len(h.members))
				h.broadcastPresence(nil)
			}

		case d := <-h.inbound:
			h.handleMessage(d.client, d.msg)

		case update, ok := <-remote:
			if !ok {
				h.logger.Warn("relay subscription closed")
				remote = nil
				continue
			}
			h.applyRemote(update)

		case reply := <-h.snapshots:
			reply <- Snapshot{Document: h.doc, Roster: h.roster()}
		}
	}
}

func (h *Hub) Register(c *client.Client) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.Send)
	}
}

func (h *Hub) Unregister(c *client.Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) Deliver(c *client.Client, msg message.Message) {
	select {
	case h.inbound <- delivery{client: c, msg: msg}:
	case <-h.done:
	}
}

// Snapshot returns the live document and roster.
func (h *Hub) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case h.snapshots <- reply:
	case <-h.done:
		return Snapshot{}, ErrStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Document returns the live document; it satisfies export.Source.
func (h *Hub) Document(ctx context.Context) (document.Document, error) {
	snap, err := h.Snapshot(ctx)
	if err != nil {
		return document.Document{}, err
	}
	return snap.Document, nil
}

func (h *Hub) handleRegister(c *client.Client) {
	h.members = append(h.members, &member{client: c})
	h.logger.Info("participant joined", "user", c.Identity.User, "role", c.Identity.Role, "online", len(h.members))

	payload, err := message.Encode(message.Init{Document: h.doc.Message(), Users: h.roster()})
	if err != nil {
		h.logger.Error("encode init failed", "err", err)
		return
	}
	if !h.trySend(c, payload) {
		h.remove(c)
		return
	}
	h.broadcastPresence(c)
}

func (h *Hub) handleMessage(c *client.Client, msg message.Message) {
	m := h.find(c)
	if m == nil {
		return
	}

	switch msg := msg.(type) {
	case message.Update:
		if c.Identity.ReadOnly() {
			h.logger.Warn("dropping update from read-only participant", "user", c.Identity.User)
			return
		}
		if msg.Title != "" {
			h.doc.Title = msg.Title
		}
		h.doc.Content = msg.Content
		h.doc.LastEditedBy = c.Identity.User
		h.doc.LastUpdated = h.now().Format(document.TimeLayout)

		out := h.currentUpdate()
		h.broadcast(out, c)
		h.publish(out)

	case message.Cursor:
		if c.Identity.ReadOnly() {
			h.logger.Debug("ignoring cursor from read-only participant", "user", c.Identity.User)
			return
		}
		pos := msg.Position
		m.cursor = &pos
		h.broadcastPresence(nil)

	default:
		h.logger.Debug("ignoring client frame", "type", msg.Type(), "user", c.Identity.User)
	}
}

func (h *Hub) applyRemote(update message.Update) {
	if update.Title != "" {
		h.doc.Title = update.Title
	}
	h.doc.Content = update.Content
	h.doc.LastEditedBy = update.LastEditedBy
	h.doc.LastUpdated = update.LastUpdated
	h.broadcast(h.currentUpdate(), nil)
}

func (h *Hub) currentUpdate() message.Update {
	return message.Update{
		Title:        h.doc.Title,
		Content:      h.doc.Content,
		LastEditedBy: h.doc.LastEditedBy,
		LastUpdated:  h.doc.LastUpdated,
	}
}

func (h *Hub) publish(update message.Update) {
	if h.relay == nil {
		return
	}
	select {
	case h.relayOut <- update:
	default:
		h.logger.Warn("relay backlog full, update not published")
	}
}

func (h *Hub) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-h.relayOut:
			if err := h.relay.Publish(ctx, update); err != nil {
				h.logger.Warn("relay publish failed", "err", err)
			}
		}
	}
}

func (h *Hub) roster() []message.Participant {
	roster := make([]message.Participant, 0, len(h.members))
	for _, m := range h.members {
		p := message.Participant{User: m.client.Identity.User}
		if m.cursor != nil {
			pos := *m.cursor
			p.Cursor = &pos
		}
		roster = append(roster, p)
	}
	return roster
}

func (h *Hub) broadcastPresence(except *client.Client) {
	h.broadcast(message.Presence(h.roster()), except)
}

// broadcast sends msg to every participant but except. Participants whose
// buffer is full are dropped, and the remaining ones get the new roster.
func (h *Hub) broadcast(msg message.Message, except *client.Client) {
	payload, err := message.Encode(msg)
	if err != nil {
		h.logger.Error("encode failed", "type", msg.Type(), "err", err)
		return
	}

	var slow []*client.Client
	for _, m := range h.members {
		if m.client == except {
			continue
		}
		if !h.trySend(m.client, payload) {
			slow = append(slow, m.client)
		}
	}
	if len(slow) == 0 {
		return
	}
	for _, c := range slow {
		h.logger.Warn("dropping slow participant", "user", c.Identity.User)
		h.remove(c)
	}
	h.broadcastPresence(nil)
}

func (h *Hub) trySend(c *client.Client, payload []byte) bool {
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

func (h *Hub) find(c *client.Client) *member {
	for _, m := range h.members {
		if m.client == c {
			return m
		}
	}
	return nil
}

func (h *Hub) remove(c *client.Client) bool {
	for i, m := range h.members {
		if m.client == c {
			h.members = append(h.members[:i], h.members[i+1:]...)
			close(c.Send)
			return true
		}
	}
	return false
}
