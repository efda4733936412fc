// Package script stores backups through a deployed Apps Script web app
// that keeps each blob as a file in a Drive folder.
package script

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"findash/internal/backup"
	applog "findash/internal/log"
)

const Kind = "script"

// maxResponseBytes bounds how much of a response is read. Backups of a
// personal database stay far below this.
const maxResponseBytes = 256 << 20

// Client talks to the web app at one URL.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the pooled default client, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns a client for endpoint, which must be an absolute http(s) URL.
func New(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("backup script url %q is not an absolute http(s) url", endpoint)
	}
	c := &Client{
		endpoint:   u.String(),
		httpClient: newHTTPClient(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	// Apps Script answers with a redirect to the script output host; the
	// default policy follows it.
	return &http.Client{Transport: transport}
}

// ResponseError is a well-formed reply that reports failure, or a non-2xx
// status.
type ResponseError struct {
	Status  int
	Message string
}

func (e *ResponseError) Error() string {
	if e.Status != 0 && e.Status != http.StatusOK {
		return fmt.Sprintf("backup script: status %d: %s", e.Status, e.Message)
	}
	return "backup script: " + e.Message
}

func (e *ResponseError) Unwrap() error { return backup.ErrRejected }

type reply struct {
	OK    *bool             `json:"ok"`
	Error string            `json:"error"`
	ID    string            `json:"id"`
	Name  string            `json:"name"`
	Files []backup.BlobInfo `json:"files"`
}

func (r reply) failed() bool { return r.OK != nil && !*r.OK }

func (c *Client) Kind() string { return Kind }

// List asks for every stored blob and returns them newest first.
func (c *Client) List(ctx context.Context) ([]backup.BlobInfo, error) {
	body, err := c.do(ctx, http.MethodGet, url.Values{"list": {"1"}}, nil)
	if err != nil {
		return nil, err
	}
	r, err := decodeReply(body)
	if err != nil {
		return nil, err
	}
	if r.failed() {
		return nil, &ResponseError{Message: r.Error}
	}
	if r.OK == nil {
		return nil, fmt.Errorf("%w: list reply has no ok field", backup.ErrInvalidResponse)
	}
	files := r.Files
	if files == nil {
		files = []backup.BlobInfo{}
	}
	backup.SortNewestFirst(files)
	return files, nil
}

// Create uploads payload under name.
func (c *Client) Create(ctx context.Context, name string, payload []byte) (backup.CreateResult, error) {
	body, err := c.do(ctx, http.MethodPost, url.Values{"filename": {name}}, payload)
	if err != nil {
		return backup.CreateResult{}, err
	}
	r, err := decodeReply(body)
	if err != nil {
		return backup.CreateResult{}, err
	}
	if r.failed() || r.OK == nil {
		msg := r.Error
		if msg == "" {
			msg = "upload not acknowledged"
		}
		return backup.CreateResult{}, &ResponseError{Message: msg}
	}
	res := backup.CreateResult{ID: r.ID, Name: r.Name}
	if res.Name == "" {
		res.Name = name
	}
	c.logger.DebugContext(ctx, "Backup uploaded", applog.FieldSink, Kind, "id", res.ID, "name", res.Name, "bytes", len(payload))
	return res, nil
}

// Fetch downloads the blob called name. The web app answers with the raw
// file, or with {"ok":false,"error":"Not found"}.
func (c *Client) Fetch(ctx context.Context, name string) ([]byte, error) {
	body, err := c.do(ctx, http.MethodGet, url.Values{"name": {name}}, nil)
	if err != nil {
		return nil, err
	}
	var r reply
	if json.Unmarshal(body, &r) == nil && r.failed() {
		if strings.EqualFold(strings.TrimSpace(r.Error), "not found") {
			return nil, fmt.Errorf("%w: %s", backup.ErrBlobNotFound, name)
		}
		return nil, &ResponseError{Message: r.Error}
	}
	return body, nil
}

// Delete trashes the blob with id.
func (c *Client) Delete(ctx context.Context, id string) error {
	body, err := c.do(ctx, http.MethodGet, url.Values{"deleteId": {id}}, nil)
	if err != nil {
		return err
	}
	r, err := decodeReply(body)
	if err != nil {
		return err
	}
	if r.failed() {
		return &ResponseError{Message: r.Error}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method string, query url.Values, payload []byte) ([]byte, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse backup script url: %w", err)
	}
	q := u.Query()
	for k, vs := range query {
		q[k] = vs
	}
	u.RawQuery = q.Encode()

	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, fmt.Errorf("create backup script request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backup script request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read backup script response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ResponseError{Status: resp.StatusCode, Message: snippet(body)}
	}
	return body, nil
}

func decodeReply(body []byte) (reply, error) {
	var r reply
	if err := json.Unmarshal(body, &r); err != nil {
		return reply{}, fmt.Errorf("%w: %v", backup.ErrInvalidResponse, err)
	}
	return r, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return http.StatusText(http.StatusInternalServerError)
	}
	return s
}

var _ backup.Sink = (*Client)(nil)

