package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"collab-dashboard/internal/document"
)

// APIClient talks to the document REST endpoints.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type apiEnvelope struct {
	Status string            `json:"status"`
	Data   document.Document `json:"data"`
	Detail string            `json:"detail"`
}

func (c *APIClient) Fetch(ctx context.Context) (document.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/document", nil)
	if err != nil {
		return document.Document{}, err
	}
	env, status, err := c.do(req)
	if err != nil {
		return document.Document{}, fmt.Errorf("fetch document: %w", err)
	}
	switch {
	case status == http.StatusNotFound:
		return document.Document{}, document.ErrNotFound
	case status != http.StatusOK:
		return document.Document{}, fmt.Errorf("fetch document: %d %s", status, env.Detail)
	}
	return env.Data, nil
}

func (c *APIClient) Save(ctx context.Context, doc document.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/document", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	env, status, err := c.do(req)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("save document: %d %s", status, env.Detail)
	}
	return nil
}

func (c *APIClient) do(req *http.Request) (apiEnvelope, int, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return apiEnvelope{}, 0, err
	}
	defer resp.Body.Close()

	var env apiEnvelope
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		// Routers and proxies answer errors in plain text.
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		env.Detail = strings.TrimSpace(string(raw))
		if resp.StatusCode == http.StatusOK {
			return env, resp.StatusCode, fmt.Errorf("unexpected content type %q", mediaType)
		}
		return env, resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && resp.StatusCode == http.StatusOK {
		return apiEnvelope{}, resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return env, resp.StatusCode, nil
}
