// Package client talks to a running ptyhub server over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/user/ptyhub/internal/session"
	"github.com/user/ptyhub/internal/store"
)

const (
	DefaultBaseURL = "http://127.0.0.1:8765"
	DefaultTimeout = 30 * time.Second
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type SpawnRequest struct {
	Command     string            `json:"command"`
	Args        []string          `json:"args,omitempty"`
	Description string            `json:"description,omitempty"`
	Workdir     string            `json:"workdir,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
}

type PlainBuffer struct {
	Plain      string `json:"plain"`
	ByteLength int    `json:"byteLength"`
}

type Health struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	Uptime    float64 `json:"uptime"`
	Sessions  struct {
		Total  int `json:"total"`
		Active int `json:"active"`
	} `json:"sessions"`
	WebSocket struct {
		Connections int `json:"connections"`
	} `json:"websocket"`
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) List(ctx context.Context) ([]session.Info, error) {
	var infos []session.Info
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

func (c *Client) Get(ctx context.Context, id string) (*session.Info, error) {
	var info session.Info
	if err := c.do(ctx, http.MethodGet, sessionPath(id, ""), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) Spawn(ctx context.Context, req SpawnRequest) (*session.Info, error) {
	var info session.Info
	if err := c.do(ctx, http.MethodPost, "/api/sessions", req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) Write(ctx context.Context, id, data string) error {
	return c.do(ctx, http.MethodPost, sessionPath(id, "/input"), map[string]string{"data": data}, nil)
}

func (c *Client) Resize(ctx context.Context, id string, cols, rows int) error {
	return c.do(ctx, http.MethodPost, sessionPath(id, "/resize"), map[string]int{"cols": cols, "rows": rows}, nil)
}

// Kill terminates the session's process and leaves it registered.
func (c *Client) Kill(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, sessionPath(id, ""), nil, nil)
}

// Cleanup terminates the session and removes it.
func (c *Client) Cleanup(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, sessionPath(id, "/cleanup"), nil, nil)
}

// Clear kills and removes every session.
func (c *Client) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions", nil, nil)
}

// ClearChildren kills and removes the sessions spawned by parentID.
func (c *Client) ClearChildren(ctx context.Context, parentID string) error {
	q := neturl.Values{"parent": {parentID}}
	return c.do(ctx, http.MethodDelete, "/api/sessions?"+q.Encode(), nil, nil)
}

// Read returns completed lines. A negative limit means no limit.
func (c *Client) Read(ctx context.Context, id string, offset, limit int) (*session.ReadResult, error) {
	q := pageQuery(offset, limit)
	var res session.ReadResult
	if err := c.do(ctx, http.MethodGet, sessionPath(id, "/output")+"?"+q.Encode(), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Search(ctx context.Context, id, pattern string, offset, limit int) (*session.SearchResult, error) {
	q := pageQuery(offset, limit)
	q.Set("pattern", pattern)
	var res session.SearchResult
	if err := c.do(ctx, http.MethodGet, sessionPath(id, "/search")+"?"+q.Encode(), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) RawBuffer(ctx context.Context, id string) (*session.RawBuffer, error) {
	var raw session.RawBuffer
	if err := c.do(ctx, http.MethodGet, sessionPath(id, "/buffer/raw"), nil, &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

func (c *Client) PlainBuffer(ctx context.Context, id string) (*PlainBuffer, error) {
	var plain PlainBuffer
	if err := c.do(ctx, http.MethodGet, sessionPath(id, "/buffer/plain"), nil, &plain); err != nil {
		return nil, err
	}
	return &plain, nil
}

func (c *Client) History(ctx context.Context, filter store.HistoryFilter) ([]store.SessionRecord, error) {
	q := neturl.Values{}
	if filter.ParentSessionID != "" {
		q.Set("parent", filter.ParentSessionID)
	}
	if filter.Status != "" {
		q.Set("status", filter.Status)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	path := "/api/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var records []store.SessionRecord
	if err := c.do(ctx, http.MethodGet, path, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dst any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	if dst == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(data))
}

func sessionPath(id, suffix string) string {
	return "/api/sessions/" + neturl.PathEscape(id) + suffix
}

func pageQuery(offset, limit int) neturl.Values {
	q := neturl.Values{}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	if limit >= 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}
