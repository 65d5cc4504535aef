package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/unkn0wn-root/inferkit"
	"github.com/unkn0wn-root/inferkit/selection"
	"github.com/unkn0wn-root/inferkit/stream"
	"github.com/unkn0wn-root/inferkit/transport"
)

// pipeStreamer hands every stream's write end to the test and tracks how
// many streams are open.
type pipeStreamer struct {
	mu      sync.Mutex
	open    int
	maxOpen int
	bodies  []json.RawMessage
	writers chan *io.PipeWriter
}

func newPipeStreamer() *pipeStreamer {
	return &pipeStreamer{writers: make(chan *io.PipeWriter, 8)}
}

type trackedBody struct {
	*io.PipeReader
	p    *pipeStreamer
	once sync.Once
}

func (b *trackedBody) Close() error {
	b.once.Do(func() {
		b.p.mu.Lock()
		b.p.open--
		b.p.mu.Unlock()
	})
	return b.PipeReader.Close()
}

func (p *pipeStreamer) Stream(_ context.Context, req *transport.Request) (*transport.Stream, error) {
	pr, pw := io.Pipe()
	p.mu.Lock()
	p.open++
	if p.open > p.maxOpen {
		p.maxOpen = p.open
	}
	if raw, ok := req.Body.(json.RawMessage); ok {
		p.bodies = append(p.bodies, raw)
	}
	p.mu.Unlock()
	p.writers <- pw
	return &transport.Stream{Status: 200, Body: &trackedBody{PipeReader: pr, p: p}}, nil
}

func (p *pipeStreamer) counts() (open, maxOpen int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open, p.maxOpen
}

type outcome struct {
	out string
	err error
}

type genHooks struct {
	inferkit.NopHooks
	superseded atomic.Int32
	tail       atomic.Int32
}

func (h *genHooks) GenerationSuperseded(string)    { h.superseded.Add(1) }
func (h *genHooks) StreamTailDropped(string, int) { h.tail.Add(1) }

func selected(t *testing.T, model string) *selection.Selection {
	t.Helper()
	sel := selection.New(selection.Options{})
	if err := sel.Set(context.Background(), model); err != nil {
		t.Fatalf("select: %v", err)
	}
	return sel
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func write(t *testing.T, w io.Writer, lines ...string) {
	t.Helper()
	for _, l := range lines {
		if _, err := io.WriteString(w, l+"\n"); err != nil {
			t.Fatalf("write %q: %v", l, err)
		}
	}
}

func TestSupersedeCancelsPrevious(t *testing.T) {
	ps := newPipeStreamer()
	hooks := &genHooks{}
	s := NewSession(ps, selected(t, "llama"), SessionOptions{Hooks: hooks})
	ctx := context.Background()

	aDone := make(chan outcome, 1)
	go func() {
		out, err := s.Generate(ctx, Options{Prompt: "a"})
		aDone <- outcome{out, err}
	}()
	wa := <-ps.writers
	write(t, wa, `{"content":"Hel"}`)
	waitFor(t, "partial output", func() bool { return s.Result() == "Hel" })

	bDone := make(chan outcome, 1)
	go func() {
		out, err := s.Generate(ctx, Options{Prompt: "b"})
		bDone <- outcome{out, err}
	}()

	a := <-aDone
	if a.err != nil || a.out != "Hel" {
		t.Fatalf("superseded run = %q, %v; want partial output and nil error", a.out, a.err)
	}

	wb := <-ps.writers
	write(t, wb, `{"status":"loading model"}`, `{"content":"Wor"}`, `{"content":"ld"}`)
	waitFor(t, "status", func() bool { st, ok := s.Status(); return ok && st == "loading model" })
	wb.Close()

	b := <-bDone
	if b.err != nil || b.out != "World" {
		t.Fatalf("second run = %q, %v", b.out, b.err)
	}
	if _, ok := s.Status(); ok {
		t.Fatalf("status not cleared")
	}
	open, maxOpen := ps.counts()
	if open != 0 || maxOpen != 1 {
		t.Fatalf("open=%d maxOpen=%d, want 0 and 1", open, maxOpen)
	}
	if hooks.superseded.Load() != 1 {
		t.Fatalf("superseded hook = %d", hooks.superseded.Load())
	}
	if s.LastOutcome() != Completed || s.State() != Idle {
		t.Fatalf("outcome=%s state=%s", s.LastOutcome(), s.State())
	}
}

func TestAbort(t *testing.T) {
	ps := newPipeStreamer()
	s := NewSession(ps, selected(t, "llama"), SessionOptions{})
	s.Abort() // no-op while idle

	done := make(chan outcome, 1)
	go func() {
		out, err := s.Generate(context.Background(), Options{Prompt: "p", StartWith: "Sure: "})
		done <- outcome{out, err}
	}()
	w := <-ps.writers
	write(t, w, `{"content":"ok"}`)
	waitFor(t, "content", func() bool { return s.Result() == "Sure: ok" })

	s.Abort()
	s.Abort()
	got := <-done
	if got.err != nil || got.out != "Sure: ok" {
		t.Fatalf("aborted run = %q, %v", got.out, got.err)
	}
	if s.LastOutcome() != Cancelled || s.Running() {
		t.Fatalf("outcome=%s running=%v", s.LastOutcome(), s.Running())
	}
	if open, _ := ps.counts(); open != 0 {
		t.Fatalf("stream left open")
	}
}

func TestDeadlineIsFailure(t *testing.T) {
	ps := newPipeStreamer()
	s := NewSession(ps, selected(t, "llama"), SessionOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Generate(ctx, Options{Prompt: "p"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if s.LastOutcome() != Failed {
		t.Fatalf("outcome = %s", s.LastOutcome())
	}
}

func ndjsonServer(t *testing.T, lines []string, seen chan<- []byte) *transport.HTTP {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/generate" {
			http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusNotFound)
			return
		}
		b, _ := io.ReadAll(r.Body)
		if seen != nil {
			seen <- b
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		fl, _ := w.(http.Flusher)
		for _, l := range lines {
			fmt.Fprint(w, l)
			if fl != nil {
				fl.Flush()
			}
		}
	}))
	t.Cleanup(srv.Close)

	tr, err := transport.New(&transport.Config{BaseURL: srv.URL + "/api"})
	if err != nil {
		t.Fatalf("transport.New: %v", err)
	}
	return tr
}

func TestGenerateOverHTTP(t *testing.T) {
	seen := make(chan []byte, 1)
	tr := ndjsonServer(t, []string{
		`{"status":"prompt processing"}` + "\n",
		`{"choices":[{"delta":{"role":"assistant"}}]}` + "\n",
		`{"choices":[{"delta":{"content":"Hi"}}]}` + "\n{\"choices\":[{\"delta\":",
		`{"content":" there"}}]}` + "\n",
	}, seen)

	var updates []string
	s := NewSession(tr, selected(t, "mistral"), SessionOptions{})
	unsub := s.SubscribeResult(func(v string) { updates = append(updates, v) })
	defer unsub()

	out, err := s.Generate(context.Background(), Options{
		Prompt:    "Say hi",
		MaxTokens: 32,
		Sampling:  DefaultSampling(),
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "Hi there" {
		t.Fatalf("out = %q", out)
	}
	want := []string{"", "Hi", "Hi there"}
	if strings.Join(updates, "|") != strings.Join(want, "|") {
		t.Fatalf("updates = %q, want %q", updates, want)
	}

	body := gjson.ParseBytes(<-seen)
	if body.Get("model").String() != "mistral" || !body.Get("stream").Bool() ||
		body.Get("max_tokens").Int() != 32 || body.Get("sampling.temperature").Float() != 0.7 ||
		body.Get("start_with").Exists() {
		t.Fatalf("request body = %s", body.Raw)
	}
}

func TestStatusRecordKeepsContent(t *testing.T) {
	tr := ndjsonServer(t, []string{
		`{"status":"generating","choices":[{"delta":{"content":"Hi"}}]}` + "\n",
		`{"content":"!"}` + "\n",
	}, nil)
	s := NewSession(tr, selected(t, "m"), SessionOptions{})
	var statuses []string
	unsub := s.SubscribeStatus(func(st string, ok bool) {
		if ok {
			statuses = append(statuses, st)
		}
	})
	defer unsub()

	out, err := s.Generate(context.Background(), Options{Prompt: "p"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "Hi!" {
		t.Fatalf("out = %q, want Hi!", out)
	}
	if len(statuses) != 1 || statuses[0] != "generating" {
		t.Fatalf("statuses = %q", statuses)
	}
}

func TestBackendError(t *testing.T) {
	tr := ndjsonServer(t, []string{
		`{"content":"par"}` + "\n",
		`{"error":"model crashed"}` + "\n",
		`{"content":"never"}` + "\n",
	}, nil)
	s := NewSession(tr, selected(t, "m"), SessionOptions{})

	out, err := s.Generate(context.Background(), Options{Prompt: "p"})
	var be *BackendError
	if !errors.As(err, &be) || be.Message != "model crashed" {
		t.Fatalf("err = %v, want BackendError", err)
	}
	if out != "par" || s.LastOutcome() != Failed {
		t.Fatalf("out=%q outcome=%s", out, s.LastOutcome())
	}
}

func TestMalformedLine(t *testing.T) {
	hooks := &genHooks{}
	tr := ndjsonServer(t, []string{`{"content":"a"}` + "\n" + "not json\n"}, nil)
	s := NewSession(tr, selected(t, "m"), SessionOptions{Hooks: hooks})

	_, err := s.Generate(context.Background(), Options{Prompt: "p"})
	var pe *stream.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ParseError", err)
	}
}

func TestUnterminatedTailDropped(t *testing.T) {
	hooks := &genHooks{}
	tr := ndjsonServer(t, []string{`{"content":"a"}` + "\n" + `{"content":"b"`}, nil)
	s := NewSession(tr, selected(t, "m"), SessionOptions{Hooks: hooks})

	out, err := s.Generate(context.Background(), Options{Prompt: "p"})
	if err != nil || out != "a" {
		t.Fatalf("out=%q err=%v", out, err)
	}
	if hooks.tail.Load() != 1 {
		t.Fatalf("tail hook = %d", hooks.tail.Load())
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such model", http.StatusNotFound)
	}))
	defer srv.Close()
	tr, _ := transport.New(&transport.Config{BaseURL: srv.URL})
	s := NewSession(tr, selected(t, "m"), SessionOptions{})

	_, err := s.Generate(context.Background(), Options{Prompt: "p"})
	if transport.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("err = %v, want 404 NetworkError", err)
	}
}

func TestPlaceholderIsStable(t *testing.T) {
	s := NewSession(nil, nil, SessionOptions{TokenDelay: -1})
	for i := 0; i < 3; i++ {
		var n int
		unsub := s.SubscribeResult(func(string) { n++ })
		out, err := s.Generate(context.Background(), Options{Prompt: "ignored"})
		unsub()
		if err != nil || out != DefaultPlaceholder {
			t.Fatalf("run %d: out=%q err=%v", i, out, err)
		}
		// one reset plus one append per word
		if want := 1 + len(SplitWords(DefaultPlaceholder)); n != want {
			t.Fatalf("run %d: %d updates, want %d", i, n, want)
		}
	}
}

func TestPlaceholderWithEmptySelection(t *testing.T) {
	sel := selection.New(selection.Options{})
	s := NewSession(nil, sel, SessionOptions{TokenDelay: time.Microsecond, Placeholder: "pick a model"})
	out, err := s.Generate(context.Background(), Options{StartWith: "> "})
	if err != nil || out != "> pick a model" {
		t.Fatalf("out=%q err=%v", out, err)
	}
}
