package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-Id"

	maxErrorBody = 4 << 10
)

// Request describes one API call. Path is relative to Config.BaseURL.
// A non-nil Body is JSON-encoded unless it already is []byte or
// json.RawMessage.
type Request struct {
	Method string
	Path   string
	Body   any
	Header http.Header
}

// Response is a fully read response body.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
	RequestID   string
}

// Stream is an open response body. The caller must Close it.
type Stream struct {
	Status      int
	ContentType string
	RequestID   string
	Body        io.ReadCloser
}

func (s *Stream) Read(p []byte) (int, error) { return s.Body.Read(p) }
func (s *Stream) Close() error               { return s.Body.Close() }

// Doer performs buffered requests.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Streamer opens streaming requests.
type Streamer interface {
	Stream(ctx context.Context, req *Request) (*Stream, error)
}

type Transport interface {
	Doer
	Streamer
}

// Config holds configuration for the HTTP transport.
type Config struct {
	// BaseURL is the API root, e.g. http://127.0.0.1:8080/api (required).
	BaseURL string

	// Timeout bounds buffered requests (default: 30s). Streams are bounded
	// only by their context.
	Timeout time.Duration

	// MaxBodyBytes caps buffered response bodies; 0 disables the cap.
	MaxBodyBytes int64

	// UserAgent is sent with every request when set.
	UserAgent string

	// Client overrides the underlying http.Client.
	Client *http.Client
}

// DefaultConfig returns the default transport configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "http://127.0.0.1:8080/api",
		Timeout: 30 * time.Second,
	}
}

// HTTP implements Transport over net/http. Safe for concurrent use.
type HTTP struct {
	base   string
	cfg    Config
	client *http.Client
}

var _ Transport = (*HTTP)(nil)

func New(cfg *Config) (*HTTP, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("transport: base URL is required")
	}
	c := *cfg
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	client := c.Client
	if client == nil {
		client = &http.Client{}
	}
	return &HTTP{
		base:   strings.TrimRight(c.BaseURL, "/"),
		cfg:    c,
		client: client,
	}, nil
}

// URL returns the absolute URL for an API path.
func (t *HTTP) URL(path string) string {
	return t.base + "/" + strings.TrimLeft(path, "/")
}

func (t *HTTP) Do(ctx context.Context, req *Request) (*Response, error) {
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	resp, id, err := t.send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		return nil, t.fail(req, 0, "", err)
	}
	defer body.Close()

	var r io.Reader = body
	if t.cfg.MaxBodyBytes > 0 {
		r = io.LimitReader(body, t.cfg.MaxBodyBytes+1)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, t.fail(req, 0, "", err)
	}
	if t.cfg.MaxBodyBytes > 0 && int64(len(b)) > t.cfg.MaxBodyBytes {
		return nil, t.fail(req, 0, "", fmt.Errorf("response body exceeds %d bytes", t.cfg.MaxBodyBytes))
	}

	return &Response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        b,
		RequestID:   id,
	}, nil
}

func (t *HTTP) Stream(ctx context.Context, req *Request) (*Stream, error) {
	resp, id, err := t.send(ctx, req)
	if err != nil {
		return nil, err
	}
	body, err := decodeBody(resp)
	if err != nil {
		resp.Body.Close()
		return nil, t.fail(req, 0, "", err)
	}
	return &Stream{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		RequestID:   id,
		Body:        &chainCloser{ReadCloser: body, raw: resp.Body},
	}, nil
}

// send performs the exchange and converts non-2xx answers into NetworkError.
func (t *HTTP) send(ctx context.Context, req *Request) (*http.Response, string, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		b, err := encodeJSON(req.Body)
		if err != nil {
			return nil, "", fmt.Errorf("transport: encode %s %s: %w", method, req.Path, err)
		}
		body = bytes.NewReader(b)
	}

	hreq, err := http.NewRequestWithContext(ctx, method, t.URL(req.Path), body)
	if err != nil {
		return nil, "", t.fail(req, 0, "", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	if body != nil && hreq.Header.Get("Content-Type") == "" {
		hreq.Header.Set("Content-Type", "application/json")
	}
	hreq.Header.Set("Accept-Encoding", acceptEncoding)
	if t.cfg.UserAgent != "" {
		hreq.Header.Set("User-Agent", t.cfg.UserAgent)
	}
	id := hreq.Header.Get(HeaderRequestID)
	if id == "" {
		id = uuid.NewString()
		hreq.Header.Set(HeaderRequestID, id)
	}

	resp, err := t.client.Do(hreq)
	if err != nil {
		return nil, id, t.fail(req, 0, "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg := ""
		if rc, derr := decodeBody(resp); derr == nil {
			b, _ := io.ReadAll(io.LimitReader(rc, maxErrorBody))
			rc.Close()
			msg = strings.TrimSpace(string(b))
		}
		return nil, id, t.fail(req, resp.StatusCode, msg, nil)
	}
	return resp, id, nil
}

func (t *HTTP) fail(req *Request, status int, body string, cause error) error {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	return &NetworkError{Method: method, URL: t.URL(req.Path), Status: status, Body: body, Cause: cause}
}

func encodeJSON(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	}
	return json.Marshal(v)
}

// chainCloser closes the decoding reader and then the raw response body.
type chainCloser struct {
	io.ReadCloser
	raw io.Closer
}

func (c *chainCloser) Close() error {
	err := c.ReadCloser.Close()
	if rerr := c.raw.Close(); err == nil {
		err = rerr
	}
	return err
}
