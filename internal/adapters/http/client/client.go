// Package client is a typed client for the roll-call JSON API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/rollcall"
	"github.com/okian/rollcall/pkg/logger"
)

const (
	defaultTimeout = 5 * time.Second
	maxBodyBytes   = 4 << 20

	headerIdempotencyKey = "Idempotency-Key"
)

// Client talks to a roll-call backend. It implements rollcall.Backend.
//
// Replies carrying a non-empty "error" field are returned as
// *rollcall.RejectedError. Network errors, timeouts, 5xx replies and
// malformed bodies wrap rollcall.ErrTransport.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	dialer  *websocket.Dialer
	timeout time.Duration
	log     logger.Logger
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{},
		dialer:  websocket.DefaultDialer,
		timeout: defaultTimeout,
		log:     logger.Get().Named("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.Timeout = c.timeout
	return c, nil
}

// envelope captures the error field shared by the /api replies.
type envelope struct {
	Error string `json:"error"`
}

type callReply struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Error string `json:"error"`
}

type importReply struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Error   string `json:"error"`
}

type clearReply struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Students fetches the roster.
func (c *Client) Students(ctx context.Context) ([]model.Student, error) {
	var out []model.Student
	if err := c.do(ctx, http.MethodGet, "/api/students", nil, "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Call asks the backend for the authoritative pick. Each call carries a
// fresh Idempotency-Key.
func (c *Client) Call(ctx context.Context) (model.CallResult, error) {
	var reply callReply
	hdr := http.Header{headerIdempotencyKey: []string{uuid.NewString()}}
	if err := c.do(ctx, http.MethodPost, "/api/call", nil, "", hdr, &reply); err != nil {
		return model.CallResult{}, err
	}
	if reply.Error != "" {
		return model.CallResult{}, rollcall.Rejected(reply.Error)
	}
	if reply.Name == "" {
		return model.CallResult{}, fmt.Errorf("%w: call reply without a name", rollcall.ErrTransport)
	}
	return model.CallResult{Name: reply.Name, Count: reply.Count}, nil
}

// History fetches the latest call records, oldest first.
func (c *Client) History(ctx context.Context) ([]model.CallRecord, error) {
	var out []model.CallRecord
	if err := c.do(ctx, http.MethodGet, "/api/history", nil, "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats fetches the per-student statistics.
func (c *Client) Stats(ctx context.Context) (model.Stats, error) {
	var out model.Stats
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, "", nil, &out); err != nil {
		return model.Stats{}, err
	}
	return out, nil
}

// Import uploads a roster file and returns the number of imported students.
func (c *Client) Import(ctx context.Context, filename string, r io.Reader) (int, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return 0, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return 0, fmt.Errorf("read roster file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return 0, fmt.Errorf("build upload: %w", err)
	}

	var reply importReply
	if err := c.do(ctx, http.MethodPost, "/api/import", &body, mw.FormDataContentType(), nil, &reply); err != nil {
		return 0, err
	}
	if !reply.Success {
		msg := reply.Error
		if msg == "" {
			msg = "import failed"
		}
		return 0, rollcall.Rejected(msg)
	}
	return reply.Count, nil
}

// Clear removes the roster and the call history.
func (c *Client) Clear(ctx context.Context) error {
	var reply clearReply
	if err := c.do(ctx, http.MethodPost, "/api/clear", nil, "", nil, &reply); err != nil {
		return err
	}
	if !reply.Success {
		return rollcall.Rejected(reply.Error)
	}
	return nil
}

// Watch streams live events to fn until ctx is done or the connection
// fails. It returns nil when ctx ends the stream.
func (c *Client) Watch(ctx context.Context, fn func(model.Event)) error {
	u := *c.baseURL
	u.Scheme = "ws"
	if c.baseURL.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/live"

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", rollcall.ErrTransport, u.String(), err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()
	defer func() { _ = conn.Close() }()

	for {
		var e model.Event
		if err := conn.ReadJSON(&e); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("%w: live feed: %w", rollcall.ErrTransport, err)
		}
		fn(e)
	}
}

// do sends one request and decodes the JSON reply into out.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, hdr http.Header, out any) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%w: build request: %w", rollcall.ErrTransport, err)
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", rollcall.ErrTransport, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %s %s: read body: %w", rollcall.ErrTransport, method, path, err)
	}
	c.log.Debug(ctx, "backend request",
		logger.String("method", method),
		logger.String("path", path),
		logger.Int("status", resp.StatusCode),
		logger.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s %s: status %d", rollcall.ErrTransport, method, path, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Error == "" {
			return fmt.Errorf("%w: %s %s: status %d", rollcall.ErrTransport, method, path, resp.StatusCode)
		}
		return rollcall.Rejected(env.Error)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s %s: malformed body: %w", rollcall.ErrTransport, method, path, err)
	}
	return nil
}

// IsTransport reports whether err is a network or protocol failure.
func IsTransport(err error) bool {
	return errors.Is(err, rollcall.ErrTransport)
}
