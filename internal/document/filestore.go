package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the document as JSON on local disk. It is used when no
// database is configured.
type FileStore struct {
	path string
	mu   sync.Mutex
}

type filePayload struct {
	Document *Document `json:"document"`
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(ctx context.Context) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", s.path, err)
	}

	var payload filePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Document{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if payload.Document == nil {
		return Document{}, ErrNotFound
	}
	return *payload.Document, nil
}

// Save writes to a temporary file and renames it over the target so readers
// never observe a partial document.
func (s *FileStore) Save(ctx context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	raw, err := json.MarshalIndent(filePayload{Document: &doc}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
