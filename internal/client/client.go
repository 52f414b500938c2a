// Package client runs the read and write pumps for one participant
// connection on the collaboration service.
package client

import (
	"errors"
	"log/slog"
	"time"

	"collab-dashboard/internal/message"
	"collab-dashboard/internal/rbac"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBuffer     = 256
)

type Session interface {
	Register(client *Client)
	Unregister(client *Client)
	Deliver(client *Client, msg message.Message)
}

type Client struct {
	session  Session
	conn     *websocket.Conn
	Send     chan []byte
	ID       string
	Identity rbac.Identity
	logger   *slog.Logger
}

func New(session Session, conn *websocket.Conn, identity rbac.Identity, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Client{
		session:  session,
		conn:     conn,
		Send:     make(chan []byte, sendBuffer),
		ID:       id,
		Identity: identity,
		logger:   logger.With("conn", id, "user", identity.User),
	}
}

// ReadPump decodes inbound frames and hands them to the session until the
// connection fails. Frames that do not decode are dropped.
func (c *Client) ReadPump() {
	defer func() {
		c.session.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("read failed", "err", err)
			}
			return
		}

		msg, err := message.Decode(data)
		if err != nil {
			if errors.Is(err, message.ErrUnknownType) {
				c.logger.Debug("ignoring frame", "err", err)
			} else {
				c.logger.Warn("dropping malformed frame", "err", err)
			}
			continue
		}
		c.session.Deliver(c, msg)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("write failed", "err", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
