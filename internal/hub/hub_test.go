package hub

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"collab-dashboard/internal/auth"
	"collab-dashboard/internal/document"
	"collab-dashboard/internal/message"
	"collab-dashboard/internal/rbac"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	hub *Hub
	url string
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startHub(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	doc := document.Document{Title: "Doc", Content: "seed", LastEditedBy: "system", LastUpdated: "2024-01-01 00:00:00"}
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	h := New(doc, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return &fixture{hub: h, url: "ws" + strings.TrimPrefix(server.URL, "http")}
}

func (f *fixture) dial(t *testing.T, user string, role rbac.Role) *websocket.Conn {
	t.Helper()
	target := f.url + "?user=" + url.QueryEscape(user) + "&role=" + url.QueryEscape(string(role))
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) message.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := message.Decode(data)
	require.NoError(t, err)
	return msg
}

func send(t *testing.T, conn *websocket.Conn, msg message.Message) {
	t.Helper()
	raw, err := message.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

// join dials and consumes the init snapshot.
func (f *fixture) join(t *testing.T, user string, role rbac.Role) (*websocket.Conn, message.Init) {
	t.Helper()
	conn := f.dial(t, user, role)
	msg := read(t, conn)
	init, ok := msg.(message.Init)
	require.True(t, ok, "first frame should be init, got %T", msg)
	return conn, init
}

func TestInitSnapshotOnConnect(t *testing.T) {
	f := startHub(t)
	_, init := f.join(t, "admin123", rbac.RoleAdmin)

	assert.Equal(t, "seed", init.Document.Content)
	assert.Equal(t, "Doc", init.Document.Title)
	assert.Equal(t, []string{"admin123"}, message.Users(init.Users))
}

func TestJoinBroadcastsPresenceToOthers(t *testing.T) {
	f := startHub(t)
	a, _ := f.join(t, "admin123", rbac.RoleAdmin)
	_, initB := f.join(t, "editor123", rbac.RoleEditor)

	assert.Equal(t, []string{"admin123", "editor123"}, message.Users(initB.Users))

	presence, ok := read(t, a).(message.Presence)
	require.True(t, ok)
	assert.Equal(t, []string{"admin123", "editor123"}, message.Users(presence))
}

func TestUpdateGoesToEveryoneButSender(t *testing.T) {
	f := startHub(t)
	a, _ := f.join(t, "admin123", rbac.RoleAdmin)
	b, _ := f.join(t, "editor123", rbac.RoleEditor)
	read(t, a) // presence for b joining

	send(t, a, message.Update{Title: "Doc", Content: "X", LastEditedBy: "admin123"})

	update, ok := read(t, b).(message.Update)
	require.True(t, ok)
	assert.Equal(t, "X", update.Content)
	assert.Equal(t, "admin123", update.LastEditedBy)
	assert.NotEmpty(t, update.LastUpdated)

	// The next frame a sees is the presence caused by its own cursor, not
	// an echo of its update.
	send(t, a, message.Cursor{Position: 1})
	_, isPresence := read(t, a).(message.Presence)
	assert.True(t, isPresence)
}

func TestCursorBroadcastsRosterToAll(t *testing.T) {
	f := startHub(t)
	a, _ := f.join(t, "admin123", rbac.RoleAdmin)
	b, _ := f.join(t, "editor123", rbac.RoleEditor)
	read(t, a)

	send(t, b, message.Cursor{Position: 4})

	for _, conn := range []*websocket.Conn{a, b} {
		presence, ok := read(t, conn).(message.Presence)
		require.True(t, ok)
		require.Len(t, presence, 2)
		assert.Nil(t, presence[0].Cursor)
		require.NotNil(t, presence[1].Cursor)
		assert.Equal(t, 4, *presence[1].Cursor)
	}
}

func TestDisconnectRemovesParticipant(t *testing.T) {
	f := startHub(t)
	a, _ := f.join(t, "admin123", rbac.RoleAdmin)
	b, _ := f.join(t, "editor123", rbac.RoleEditor)
	read(t, a)

	require.NoError(t, b.Close())

	presence, ok := read(t, a).(message.Presence)
	require.True(t, ok)
	assert.Equal(t, []string{"admin123"}, message.Users(presence))

	snap, err := f.hub.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"admin123"}, message.Users(snap.Roster))
}

func TestReadOnlyUpdateIsDropped(t *testing.T) {
	f := startHub(t)
	viewer, _ := f.join(t, "viewer123", rbac.RoleViewer)

	send(t, viewer, message.Update{Content: "vandalism"})
	send(t, viewer, message.Cursor{Position: 3})

	assert.Never(t, func() bool {
		snap, err := f.hub.Snapshot(context.Background())
		return err != nil || snap.Document.Content != "seed" || snap.Roster[0].Cursor != nil
	}, 300*time.Millisecond, 20*time.Millisecond)
}

func TestMalformedFrameKeepsChannelOpen(t *testing.T) {
	f := startHub(t)
	a, _ := f.join(t, "admin123", rbac.RoleAdmin)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"shout","data":{}}`)))
	send(t, a, message.Cursor{Position: 2})

	presence, ok := read(t, a).(message.Presence)
	require.True(t, ok)
	require.NotNil(t, presence[0].Cursor)
	assert.Equal(t, 2, *presence[0].Cursor)
}

func TestClientsConvergeOnLastUpdate(t *testing.T) {
	f := startHub(t)
	a, _ := f.join(t, "admin123", rbac.RoleAdmin)
	b, _ := f.join(t, "editor123", rbac.RoleEditor)
	read(t, a)
	c, _ := f.join(t, "editor456", rbac.RoleEditor)
	read(t, a)
	read(t, b)

	for _, content := range []string{"one", "two", "three"} {
		send(t, a, message.Update{Content: content})
	}

	for _, conn := range []*websocket.Conn{b, c} {
		var last string
		for i := 0; i < 3; i++ {
			update, ok := read(t, conn).(message.Update)
			require.True(t, ok)
			last = update.Content
		}
		assert.Equal(t, "three", last)
	}

	snap, err := f.hub.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "three", snap.Document.Content)
}

func TestTokenRequired(t *testing.T) {
	authn := auth.New("secret", time.Hour)
	f := startHub(t, WithAuth(authn, true))

	_, resp, err := websocket.DefaultDialer.Dial(f.url+"?user=mallory&role=Admin", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := authn.IssueToken(rbac.Identity{User: "editor123", Role: rbac.RoleEditor})
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(f.url+"?user=spoofed&token="+url.QueryEscape(token), nil)
	require.NoError(t, err)
	defer conn.Close()

	init, ok := read(t, conn).(message.Init)
	require.True(t, ok)
	assert.Equal(t, []string{"editor123"}, message.Users(init.Users))
}

func TestSnapshotAfterStop(t *testing.T) {
	h := New(document.Document{}, WithLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	_, err := h.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

type fakeRelay struct {
	published chan message.Update
	incoming  chan message.Update
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		published: make(chan message.Update, 8),
		incoming:  make(chan message.Update, 8),
	}
}

func (r *fakeRelay) Publish(_ context.Context, update message.Update) error {
	r.published <- update
	return nil
}

func (r *fakeRelay) Subscribe(context.Context) (<-chan message.Update, error) {
	return r.incoming, nil
}

func TestRelayPublishesLocalUpdates(t *testing.T) {
	relay := newFakeRelay()
	f := startHub(t, WithRelay(relay))
	a, _ := f.join(t, "admin123", rbac.RoleAdmin)

	send(t, a, message.Update{Content: "from here"})

	select {
	case update := <-relay.published:
		assert.Equal(t, "from here", update.Content)
		assert.Equal(t, "admin123", update.LastEditedBy)
	case <-time.After(2 * time.Second):
		t.Fatal("update was not published to the relay")
	}
}

func TestRelayRemoteUpdateReachesAllLocalParticipants(t *testing.T) {
	relay := newFakeRelay()
	f := startHub(t, WithRelay(relay))
	a, _ := f.join(t, "admin123", rbac.RoleAdmin)
	b, _ := f.join(t, "editor123", rbac.RoleEditor)
	read(t, a)

	relay.incoming <- message.Update{Content: "from elsewhere", LastEditedBy: "remote-user", LastUpdated: "2024-02-02 02:02:02"}

	for _, conn := range []*websocket.Conn{a, b} {
		update, ok := read(t, conn).(message.Update)
		require.True(t, ok)
		assert.Equal(t, "from elsewhere", update.Content)
		assert.Equal(t, "remote-user", update.LastEditedBy)
	}

	select {
	case <-relay.published:
		t.Fatal("remote update must not be republished")
	case <-time.After(100 * time.Millisecond):
	}
}
