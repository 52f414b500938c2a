// Package message defines the frames exchanged on a document channel.
//
// Every frame is a JSON envelope {"type": ..., "data": ...}. Frames are
// decoded once at the channel boundary into one of the concrete variants
// below and dispatched by tag.
package message

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Type string

const (
	TypeInit     Type = "init"
	TypeUpdate   Type = "update"
	TypeCursor   Type = "cursor"
	TypePresence Type = "presence"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// Message is implemented by every decoded frame variant.
type Message interface {
	Type() Type
}

type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Document is the document state carried inside an init snapshot.
type Document struct {
	Title        string `json:"title,omitempty"`
	Content      string `json:"content"`
	LastEditedBy string `json:"lastEditedBy,omitempty"`
	LastUpdated  string `json:"lastUpdated,omitempty"`
}

// Participant is one roster entry. Cursor is nil until the user reports one.
type Participant struct {
	User   string `json:"user"`
	Cursor *int   `json:"cursor"`
}

type Init struct {
	Document Document      `json:"document"`
	Users    []Participant `json:"users"`
}

// Update replaces the whole document content. Clients send title, content
// and lastEditedBy; the service adds lastUpdated when rebroadcasting.
type Update struct {
	Title        string `json:"title,omitempty"`
	Content      string `json:"content"`
	LastEditedBy string `json:"lastEditedBy,omitempty"`
	LastUpdated  string `json:"lastUpdated,omitempty"`
}

type Cursor struct {
	Position int `json:"position"`
}

type Presence []Participant

func (Init) Type() Type     { return TypeInit }
func (Update) Type() Type   { return TypeUpdate }
func (Cursor) Type() Type   { return TypeCursor }
func (Presence) Type() Type { return TypePresence }

// Encode wraps msg in an envelope and marshals it.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("encode: nil message")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	return json.Marshal(Envelope{Type: msg.Type(), Data: data})
}

// Decode parses a raw frame. It returns ErrMalformed for frames that are not
// valid envelopes or whose payload does not match the tag, and ErrUnknownType
// for well-formed envelopes with an unrecognised tag.
func Decode(raw []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch env.Type {
	case TypeInit:
		var payload struct {
			Document *Document     `json:"document"`
			Users    []Participant `json:"users"`
		}
		if err := unmarshalData(env, &payload); err != nil {
			return nil, err
		}
		if payload.Document == nil {
			return nil, fmt.Errorf("%w: init without document", ErrMalformed)
		}
		return Init{Document: *payload.Document, Users: payload.Users}, nil

	case TypeUpdate:
		var payload struct {
			Title        string  `json:"title"`
			Content      *string `json:"content"`
			LastEditedBy string  `json:"lastEditedBy"`
			LastUpdated  string  `json:"lastUpdated"`
		}
		if err := unmarshalData(env, &payload); err != nil {
			return nil, err
		}
		// A missing content field would otherwise wipe the document.
		if payload.Content == nil {
			return nil, fmt.Errorf("%w: update without content", ErrMalformed)
		}
		return Update{
			Title:        payload.Title,
			Content:      *payload.Content,
			LastEditedBy: payload.LastEditedBy,
			LastUpdated:  payload.LastUpdated,
		}, nil

	case TypeCursor:
		var payload struct {
			Position *int `json:"position"`
		}
		if err := unmarshalData(env, &payload); err != nil {
			return nil, err
		}
		if payload.Position == nil || *payload.Position < 0 {
			return nil, fmt.Errorf("%w: cursor position must be a non-negative integer", ErrMalformed)
		}
		return Cursor{Position: *payload.Position}, nil

	case TypePresence:
		var payload []Participant
		if err := unmarshalData(env, &payload); err != nil {
			return nil, err
		}
		return Presence(payload), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func unmarshalData(env Envelope, target any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s without data", ErrMalformed, env.Type)
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return nil
}

// Users returns the identifiers of the participants in roster order.
func Users(roster []Participant) []string {
	users := make([]string, 0, len(roster))
	for _, p := range roster {
		users = append(users, p.User)
	}
	return users
}
