package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"collab-dashboard/internal/message"
)

// TimeLayout is the format of Document.LastUpdated.
const TimeLayout = "2006-01-02 15:04:05"

const (
	DefaultTitle   = "Untitled Document"
	DefaultContent = "This is a collaborative document...\n\nStart editing here!"
)

var ErrNotFound = errors.New("document not found")

type Document struct {
	Title        string `json:"title"`
	Content      string `json:"content"`
	LastEditedBy string `json:"lastEditedBy"`
	LastUpdated  string `json:"lastUpdated"`
}

// Store is the durable home of the workspace document.
type Store interface {
	Load(ctx context.Context) (Document, error)
	Save(ctx context.Context, doc Document) error
}

func Default(now time.Time) Document {
	return Document{
		Title:        DefaultTitle,
		Content:      DefaultContent,
		LastEditedBy: "system",
		LastUpdated:  now.Format(TimeLayout),
	}
}

// Seed returns the stored document, creating it with default content the
// first time the workspace starts.
func Seed(ctx context.Context, store Store, logger *slog.Logger) (Document, error) {
	doc, err := store.Load(ctx)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Document{}, fmt.Errorf("load document: %w", err)
	}

	doc = Default(time.Now())
	if err := store.Save(ctx, doc); err != nil {
		return Document{}, fmt.Errorf("seed document: %w", err)
	}
	if logger != nil {
		logger.Info("seeded document with default content")
	}
	return doc, nil
}

func (d Document) Message() message.Document {
	return message.Document{
		Title:        d.Title,
		Content:      d.Content,
		LastEditedBy: d.LastEditedBy,
		LastUpdated:  d.LastUpdated,
	}
}
