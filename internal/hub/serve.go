package hub

import (
	"net/http"
	"strings"

	"collab-dashboard/internal/client"
	"collab-dashboard/internal/rbac"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TokenVerifier resolves an identity token.
type TokenVerifier interface {
	ValidateToken(token string) (rbac.Identity, error)
}

// ServeWS upgrades the request to a document channel. The identity comes
// from the user and role query parameters, or from a token when one is
// presented.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.resolveIdentity(r)
	if !ok {
		http.Error(w, "Invalid or missing token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	c := client.New(h, conn, identity, h.logger)
	h.Register(c)

	go c.WritePump()
	go c.ReadPump()
}

func (h *Hub) resolveIdentity(r *http.Request) (rbac.Identity, bool) {
	query := r.URL.Query()

	token := strings.TrimSpace(query.Get("token"))
	if token == "" {
		token = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	}
	if token != "" && h.auth != nil {
		identity, err := h.auth.ValidateToken(token)
		if err != nil {
			h.logger.Warn("rejected channel token", "err", err)
			return rbac.Identity{}, false
		}
		return identity, true
	}
	if h.requireToken {
		return rbac.Identity{}, false
	}

	user := strings.TrimSpace(query.Get("user"))
	if user == "" {
		user = "unknown"
	}
	return rbac.Identity{User: user, Role: rbac.Normalize(query.Get("role"))}, true
}
