package document

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"collab-dashboard/internal/auth"
	"collab-dashboard/internal/rbac"
)

// TokenVerifier resolves a bearer token into an identity.
type TokenVerifier interface {
	ValidateToken(token string) (rbac.Identity, error)
}

type DocumentHandler struct {
	store  Store
	auth   TokenVerifier
	logger *slog.Logger
	now    func() time.Time
}

type SaveDocumentRequest struct {
	Title        *string `json:"title"`
	Content      *string `json:"content"`
	LastEditedBy *string `json:"lastEditedBy"`
	LastUpdated  string  `json:"lastUpdated"`
}

type envelope struct {
	Status string   `json:"status"`
	Data   Document `json:"data"`
}

func NewDocumentHandler(store Store, verifier TokenVerifier, logger *slog.Logger) *DocumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentHandler{
		store:  store,
		auth:   verifier,
		logger: logger,
		now:    time.Now,
	}
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.Load(r.Context())
	if errors.Is(err, ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "No documents found.")
		return
	}
	if err != nil {
		h.logger.Error("load document failed", "err", err)
		writeDetail(w, http.StatusInternalServerError, "Failed to load document")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: "success", Data: doc})
}

func (h *DocumentHandler) SaveDocument(w http.ResponseWriter, r *http.Request) {
	var req SaveDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Title == nil || req.Content == nil || req.LastEditedBy == nil {
		writeDetail(w, http.StatusUnprocessableEntity, "title, content and lastEditedBy are required")
		return
	}

	doc := Document{
		Title:        *req.Title,
		Content:      *req.Content,
		LastEditedBy: *req.LastEditedBy,
		LastUpdated:  strings.TrimSpace(req.LastUpdated),
	}

	// Anonymous saves are accepted; a presented token must be valid and
	// allowed to save, and then names the editor.
	if token := auth.BearerToken(r.Header.Get("Authorization")); token != "" && h.auth != nil {
		id, err := h.auth.ValidateToken(token)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		if !rbac.Can(id.Role, rbac.ActionSave) {
			writeDetail(w, http.StatusForbidden, "You don't have permission to edit this document.")
			return
		}
		doc.LastEditedBy = id.User
	}

	if doc.LastUpdated == "" {
		doc.LastUpdated = h.now().Format(TimeLayout)
	}

	if err := h.store.Save(r.Context(), doc); err != nil {
		h.logger.Error("save document failed", "err", err)
		writeDetail(w, http.StatusInternalServerError, "Failed to update document")
		return
	}

	h.logger.Info("document saved", "editor", doc.LastEditedBy, "bytes", len(doc.Content))
	writeJSON(w, http.StatusOK, envelope{Status: "success", Data: doc})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
