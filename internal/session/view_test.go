package session

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"collab-dashboard/internal/channel"
	"collab-dashboard/internal/document"
	"collab-dashboard/internal/export"
	"collab-dashboard/internal/hub"
	"collab-dashboard/internal/message"
	"collab-dashboard/internal/rbac"
	"collab-dashboard/internal/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type service struct {
	url   string
	store *document.FileStore
}

func startService(t *testing.T) service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := document.NewFileStore(filepath.Join(t.TempDir(), "document.json"))
	doc, err := document.Seed(context.Background(), store, logger)
	require.NoError(t, err)

	h := hub.New(doc, hub.WithLogger(logger))
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := server.New(h,
		document.NewDocumentHandler(store, nil, logger),
		export.NewExportHandler(h.Document, logger),
		"*",
		logger,
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return service{url: ts.URL, store: store}
}

func mount(t *testing.T, svc service, id rbac.Identity, opts ...Option) *View {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ch := channel.New("ws"+strings.TrimPrefix(svc.url, "http")+"/ws/document", channel.WithLogger(logger))
	v := NewView(id, ch, NewAPIClient(svc.url, ""), append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, v.Mount())
	t.Cleanup(v.Unmount)
	return v
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 10*time.Millisecond, msg)
}

func waitUsers(t *testing.T, v *View, want ...string) {
	t.Helper()
	waitFor(t, func() bool {
		return assert.ObjectsAreEqual(want, v.Presence().UsersOnline())
	}, "roster never became "+strings.Join(want, ","))
}

func TestViewReceivesSnapshotOnMount(t *testing.T) {
	svc := startService(t)
	v := mount(t, svc, editorID)

	waitUsers(t, v, "editor123")
	assert.Equal(t, document.DefaultContent, v.State().Content())
	assert.Equal(t, channel.Open, v.ChannelState())
	assert.NoError(t, v.Mount())
}

func TestViewsConvergeOnLastUpdate(t *testing.T) {
	svc := startService(t)
	a := mount(t, svc, rbac.Identity{User: "admin123", Role: rbac.RoleAdmin})
	waitUsers(t, a, "admin123")
	b := mount(t, svc, editorID)
	waitUsers(t, a, "admin123", "editor123")
	waitUsers(t, b, "admin123", "editor123")

	require.NoError(t, a.State().Edit("first"))
	waitFor(t, func() bool { return b.State().Content() == "first" }, "b never saw a's edit")
	assert.Equal(t, "admin123", b.State().Document().LastEditedBy)
	assert.NotEmpty(t, b.State().Document().LastUpdated)

	require.NoError(t, b.State().Edit("second"))
	waitFor(t, func() bool { return a.State().Content() == "second" }, "a never saw b's edit")
	assert.Equal(t, "second", b.State().Content())
}

func TestCursorReachesOtherViews(t *testing.T) {
	svc := startService(t)
	a := mount(t, svc, rbac.Identity{User: "admin123", Role: rbac.RoleAdmin})
	waitUsers(t, a, "admin123")
	b := mount(t, svc, editorID)
	waitUsers(t, a, "admin123", "editor123")
	waitUsers(t, b, "admin123", "editor123")

	require.NoError(t, b.State().MoveCursor(7))
	waitFor(t, func() bool {
		return assert.ObjectsAreEqual(map[string]int{"editor123": 7}, a.Presence().Cursors())
	}, "a never saw b's cursor")
	assert.Empty(t, b.Presence().Cursors())
}

func TestViewerViewLeavesOthersUntouched(t *testing.T) {
	svc := startService(t)
	e := mount(t, svc, editorID)
	waitUsers(t, e, "editor123")
	v := mount(t, svc, viewerID)
	waitUsers(t, e, "editor123", "viewer123")
	waitUsers(t, v, "editor123", "viewer123")

	before := e.Presence().Participants()
	assert.ErrorIs(t, v.State().Edit("nope"), ErrReadOnly)
	assert.ErrorIs(t, v.State().MoveCursor(3), ErrReadOnly)
	assert.ErrorIs(t, v.State().Save(context.Background()), ErrReadOnly)

	assert.Never(t, func() bool {
		return e.State().Content() != document.DefaultContent ||
			!assert.ObjectsAreEqual(before, e.Presence().Participants())
	}, 200*time.Millisecond, 20*time.Millisecond)

	stored, err := svc.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, document.DefaultContent, stored.Content)
}

func TestUnmountRemovesParticipant(t *testing.T) {
	svc := startService(t)
	a := mount(t, svc, rbac.Identity{User: "admin123", Role: rbac.RoleAdmin})
	waitUsers(t, a, "admin123")
	b := mount(t, svc, editorID)
	waitUsers(t, a, "admin123", "editor123")

	b.Unmount()
	waitUsers(t, a, "admin123")
	assert.Equal(t, channel.Closed, b.ChannelState())
}

func TestSaveThroughAPI(t *testing.T) {
	svc := startService(t)
	notices := &noticeLog{}
	v := mount(t, svc, editorID, WithNotifier(notices))
	waitUsers(t, v, "editor123")

	require.NoError(t, v.State().Edit("durable text"))
	require.NoError(t, v.State().Save(context.Background()))

	stored, err := svc.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "durable text", stored.Content)
	assert.Equal(t, "editor123", stored.LastEditedBy)
	assert.Equal(t, []Notice{{Level: LevelInfo, Text: SavedNotice}}, notices.all())
}

func TestOnChangeRunsAfterApply(t *testing.T) {
	svc := startService(t)
	seen := make(chan string, 8)
	v := mount(t, svc, editorID, WithOnChange(func(msg message.Message) {
		if _, ok := msg.(message.Init); ok {
			seen <- "init"
		}
	}))

	select {
	case got := <-seen:
		assert.Equal(t, "init", got)
		assert.Equal(t, document.DefaultContent, v.State().Content())
	case <-time.After(3 * time.Second):
		t.Fatal("no init delivered")
	}
}
