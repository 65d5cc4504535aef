package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func newTestTransport(t *testing.T, h http.HandlerFunc, mut func(*Config)) *HTTP {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := &Config{BaseURL: srv.URL + "/api/"}
	if mut != nil {
		mut(cfg)
	}
	tr, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(&Config{}); err == nil {
		t.Fatalf("expected error for empty base URL")
	}
}

func TestDoSendsJSONAndReadsBody(t *testing.T) {
	var gotPath, gotCT, gotBody, gotID string
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCT = r.Header.Get("Content-Type")
		gotID = r.Header.Get(HeaderRequestID)
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":3}`)
	}, nil)

	resp, err := tr.Do(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "/chat",
		Body:   map[string]string{"name": "x"},
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotPath != "/api/chat" || gotCT != "application/json" || gotBody != `{"name":"x"}` {
		t.Fatalf("request path=%q ct=%q body=%q", gotPath, gotCT, gotBody)
	}
	if gotID == "" || resp.RequestID != gotID {
		t.Fatalf("request id server=%q resp=%q", gotID, resp.RequestID)
	}
	if resp.ContentType != "application/json" || string(resp.Body) != `{"id":3}` {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestDoDecodesContentEncodings(t *testing.T) {
	const payload = "hello compressed world"

	compress := map[string]func(io.Writer) io.WriteCloser{
		"gzip": func(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) },
		"br":   func(w io.Writer) io.WriteCloser { return brotli.NewWriter(w) },
		"zstd": func(w io.Writer) io.WriteCloser {
			zw, _ := zstd.NewWriter(w)
			return zw
		},
	}
	for enc, mk := range compress {
		t.Run(enc, func(t *testing.T) {
			tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
				if !strings.Contains(r.Header.Get("Accept-Encoding"), enc) {
					t.Errorf("Accept-Encoding %q lacks %s", r.Header.Get("Accept-Encoding"), enc)
				}
				var buf bytes.Buffer
				zw := mk(&buf)
				_, _ = io.WriteString(zw, payload)
				_ = zw.Close()
				w.Header().Set("Content-Encoding", enc)
				w.Header().Set("Content-Type", "text/plain")
				_, _ = w.Write(buf.Bytes())
			}, nil)

			resp, err := tr.Do(context.Background(), &Request{Path: "x"})
			if err != nil {
				t.Fatalf("Do: %v", err)
			}
			if string(resp.Body) != payload {
				t.Fatalf("body=%q", resp.Body)
			}
		})
	}
}

func TestDoStatusError(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}, nil)

	_, err := tr.Do(context.Background(), &Request{Path: "missing"})
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("expected NetworkError, got %T %v", err, err)
	}
	if ne.Status != http.StatusNotFound || ne.Body != "nope" || ne.Method != http.MethodGet {
		t.Fatalf("unexpected error fields: %+v", ne)
	}
	if StatusOf(err) != http.StatusNotFound {
		t.Fatalf("StatusOf=%d", StatusOf(err))
	}
}

func TestDoMaxBodyBytes(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "0123456789")
	}, func(c *Config) { c.MaxBodyBytes = 4 })

	if _, err := tr.Do(context.Background(), &Request{Path: "big"}); err == nil {
		t.Fatalf("expected body limit error")
	}
}

func TestDoConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tr, err := New(&Config{BaseURL: url})
	if err != nil {
		t.Fatal(err)
	}
	_, err = tr.Do(context.Background(), &Request{Path: "x"})
	var ne *NetworkError
	if !errors.As(err, &ne) || ne.Status != 0 || ne.Cause == nil {
		t.Fatalf("expected connection NetworkError, got %v", err)
	}
}

func TestStreamDeliversIncrementally(t *testing.T) {
	release := make(chan struct{})
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = io.WriteString(w, "first\n")
		w.(http.Flusher).Flush()
		<-release
		_, _ = io.WriteString(w, "second\n")
	}, nil)

	s, err := tr.Stream(context.Background(), &Request{Method: http.MethodPost, Path: "generate", Body: []byte(`{}`)})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	buf := make([]byte, 64)
	n, err := s.Read(buf)
	if err != nil || string(buf[:n]) != "first\n" {
		t.Fatalf("first read=%q err=%v", buf[:n], err)
	}
	close(release)
	rest, err := io.ReadAll(s)
	if err != nil || string(rest) != "second\n" {
		t.Fatalf("rest=%q err=%v", rest, err)
	}
}

func TestStreamCancel(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "x")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := tr.Stream(ctx, &Request{Path: "generate"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	buf := make([]byte, 8)
	if _, err := s.Read(buf); err != nil {
		t.Fatalf("first read: %v", err)
	}
	cancel()
	if _, err := io.ReadAll(s); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled after cancel, got %v", err)
	}
}
