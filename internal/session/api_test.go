package session

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"collab-dashboard/internal/document"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPI(t *testing.T) (*APIClient, *document.FileStore) {
	t.Helper()
	store := document.NewFileStore(filepath.Join(t.TempDir(), "document.json"))
	handler := document.NewDocumentHandler(store, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /document", handler.GetDocument)
	mux.HandleFunc("PUT /document", handler.SaveDocument)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return NewAPIClient(ts.URL+"/", ""), store
}

func TestFetchNotFound(t *testing.T) {
	api, _ := newAPI(t)
	_, err := api.Fetch(context.Background())
	assert.ErrorIs(t, err, document.ErrNotFound)
}

func TestSaveThenFetch(t *testing.T) {
	api, store := newAPI(t)
	doc := document.Document{Title: "T", Content: "c", LastEditedBy: "editor123", LastUpdated: "2024-01-01 10:00:00"}

	require.NoError(t, api.Save(context.Background(), doc))

	got, err := api.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, doc, stored)
}

func TestSaveReportsServerDetail(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"Failed to update document"}`))
	}))
	defer ts.Close()

	err := NewAPIClient(ts.URL, "").Save(context.Background(), document.Document{Content: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to update document")
}

func TestAPIClientSendsBearerToken(t *testing.T) {
	var header string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"content":"x"}}`))
	}))
	defer ts.Close()

	_, err := NewAPIClient(ts.URL, "abc").Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", header)
}

func TestPlainTextErrorsKeepStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}))
	defer ts.Close()
	api := NewAPIClient(ts.URL, "")

	_, err := api.Fetch(context.Background())
	assert.ErrorIs(t, err, document.ErrNotFound)

	err = api.Save(context.Background(), document.Document{Content: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "405")
	assert.Contains(t, err.Error(), "Method Not Allowed")
	assert.NotContains(t, err.Error(), "decode response")
}

func TestFetchRejectsNonJSONSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>login</html>"))
	}))
	defer ts.Close()

	_, err := NewAPIClient(ts.URL, "").Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text/html")
}
