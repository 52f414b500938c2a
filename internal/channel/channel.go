// Package channel manages the client's single live connection to the
// collaboration service: connect, reconnect after a fixed delay while the
// view is visible, and teardown.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"collab-dashboard/internal/message"
	"collab-dashboard/internal/rbac"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
)

type State int32

const (
	Idle State = iota
	Connecting
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ReconnectDelay is the fixed wait before every reconnect attempt.
const ReconnectDelay = 750 * time.Millisecond

var ErrNotOpen = errors.New("channel not open")

// Conn is the subset of *websocket.Conn the manager uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type DialFunc func(ctx context.Context, target string) (Conn, error)

type Timer interface {
	Stop() bool
}

type AfterFunc func(d time.Duration, f func()) Timer

// Handler receives every decoded inbound message in arrival order. It runs
// on the read goroutine and must not call Close.
type Handler func(msg message.Message)

type Option func(*Manager)

func WithDialer(dial DialFunc) Option {
	return func(m *Manager) { m.dial = dial }
}

func WithAfterFunc(after AfterFunc) Option {
	return func(m *Manager) { m.afterFunc = after }
}

// WithVisibility supplies the signal that gates reconnects. The default
// treats the view as always visible.
func WithVisibility(visible func() bool) Option {
	return func(m *Manager) { m.visible = visible }
}

func WithToken(token string) Option {
	return func(m *Manager) { m.token = token }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

type Manager struct {
	baseURL   string
	token     string
	dial      DialFunc
	afterFunc AfterFunc
	visible   func() bool
	delay     backoff.BackOff
	logger    *slog.Logger

	mu         sync.Mutex
	state      State
	identity   rbac.Identity
	handler    Handler
	conn       Conn
	gen        uint64
	reconnect  Timer
	cancelDial context.CancelFunc

	writeMu sync.Mutex
	// dispatchMu is held while a handler runs; Close waits on it.
	dispatchMu sync.Mutex
}

func New(baseURL string, opts ...Option) *Manager {
	m := &Manager{
		baseURL:   baseURL,
		dial:      dialWebSocket,
		afterFunc: func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) },
		visible:   func() bool { return true },
		delay:     backoff.NewConstantBackOff(ReconnectDelay),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func dialWebSocket(ctx context.Context, target string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Open starts connecting for identity. It is a no-op while a channel is
// already connecting or open. The server pushes the snapshot unprompted, so
// Open sends nothing.
func (m *Manager) Open(identity rbac.Identity, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Connecting || m.state == Open {
		return nil
	}
	target, err := m.target(identity)
	if err != nil {
		return err
	}

	m.stopReconnectLocked()
	m.identity = identity
	m.handler = handler
	m.startLocked(target)
	return nil
}

// Send encodes msg and writes it if the channel is open.
func (m *Manager) Send(msg message.Message) error {
	m.mu.Lock()
	conn := m.conn
	open := m.state == Open
	m.mu.Unlock()
	if !open || conn == nil {
		return ErrNotOpen
	}

	payload, err := message.Encode(msg)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		m.logger.Warn("channel write failed", "type", msg.Type(), "err", err)
		return fmt.Errorf("send %s: %w", msg.Type(), err)
	}
	return nil
}

// Close ends the session: the handler is detached first, a pending
// reconnect is cancelled and the connection is closed without scheduling
// another attempt. A handler call already in progress finishes before Close
// returns; none starts afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	m.handler = nil
	m.stopReconnectLocked()
	m.gen++
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	conn := m.conn
	m.conn = nil
	if m.state != Idle {
		m.state = Closed
	}
	user := m.identity.User
	m.mu.Unlock()

	m.dispatchMu.Lock()
	m.dispatchMu.Unlock()

	if conn == nil {
		return
	}
	m.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	m.writeMu.Unlock()
	_ = conn.Close()
	m.logger.Info("channel closed", "user", user)
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ReconnectPending reports whether a reconnect timer is armed.
func (m *Manager) ReconnectPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnect != nil
}

func (m *Manager) target(identity rbac.Identity) (string, error) {
	u, err := url.Parse(m.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse channel url: %w", err)
	}
	q := u.Query()
	q.Set("user", identity.User)
	q.Set("role", string(identity.Role))
	if m.token != "" {
		q.Set("token", m.token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (m *Manager) startLocked(target string) {
	m.state = Connecting
	m.gen++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel
	go m.connect(ctx, m.gen, target)
}

func (m *Manager) connect(ctx context.Context, gen uint64, target string) {
	conn, err := m.dial(ctx, target)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		m.logger.Warn("channel connect failed", "err", err)
		m.closedLocked()
		m.mu.Unlock()
		return
	}
	m.conn = conn
	m.state = Open
	m.delay.Reset()
	user := m.identity.User
	m.mu.Unlock()

	m.logger.Info("channel open", "user", user)
	m.readLoop(gen, conn)
}

func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.lost(gen, conn, err)
			return
		}

		msg, err := message.Decode(data)
		if err != nil {
			if errors.Is(err, message.ErrUnknownType) {
				m.logger.Debug("ignoring inbound frame", "err", err)
			} else {
				m.logger.Warn("dropping malformed inbound frame", "err", err)
			}
			continue
		}

		if !m.dispatch(gen, msg) {
			return
		}
	}
}

// dispatch hands msg to the current handler unless the channel was closed
// or restarted since gen.
func (m *Manager) dispatch(gen uint64, msg message.Message) bool {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return false
	}
	handler := m.handler
	m.mu.Unlock()

	if handler != nil {
		handler(msg)
	}
	return true
}

func (m *Manager) lost(gen uint64, conn Conn, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.logger.Warn("channel lost", "err", err)
	_ = conn.Close()
	m.conn = nil
	m.closedLocked()
}

// closedLocked moves to Closed and arms a single reconnect when the view
// is visible and none is pending.
func (m *Manager) closedLocked() {
	m.state = Closed
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if !m.visible() {
		m.logger.Info("view hidden, not reconnecting")
		return
	}
	if m.reconnect != nil {
		return
	}

	gen := m.gen
	delay := m.delay.NextBackOff()
	m.reconnect = m.afterFunc(delay, func() { m.retry(gen) })
	m.logger.Debug("reconnect scheduled", "delay", delay)
}

func (m *Manager) retry(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.state != Closed {
		return
	}
	m.reconnect = nil

	target, err := m.target(m.identity)
	if err != nil {
		m.logger.Error("reconnect aborted", "err", err)
		return
	}
	m.startLocked(target)
}

func (m *Manager) stopReconnectLocked() {
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
}
