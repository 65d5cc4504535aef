package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func collect(t *testing.T, ch <-chan Item) ([]Record, error) {
	t.Helper()
	var recs []Record
	timeout := time.After(5 * time.Second)
	for {
		select {
		case it, ok := <-ch:
			if !ok {
				return recs, nil
			}
			if it.Err != nil {
				return recs, it.Err
			}
			recs = append(recs, it.Record)
		case <-timeout:
			t.Fatalf("timed out waiting for records")
		}
	}
}

func TestRecordsSmallChunks(t *testing.T) {
	wire := "{\"status\":\"warming\"}\n{\"content\":\"héllo\"}\n{\"content\":\" 👋\"}\n{\"b\":2"
	var tail string
	ch := Records(context.Background(), strings.NewReader(wire),
		WithChunkSize(3),
		WithDroppedTail(func(s string) { tail = s }))

	recs, err := collect(t, ch)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records", len(recs))
	}
	if recs[0].Status != "warming" || recs[1].Content != "héllo" || recs[2].Content != " 👋" {
		t.Fatalf("unexpected records: %+v", recs)
	}
	if tail != "{\"b\":2" {
		t.Fatalf("dropped tail=%q", tail)
	}
}

func TestRecordsParseErrorTerminates(t *testing.T) {
	ch := Records(context.Background(), strings.NewReader("{\"content\":\"a\"}\n{oops}\n{\"content\":\"b\"}\n"))
	recs, err := collect(t, ch)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records before error", len(recs))
	}
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestRecordsReadError(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := collect(t, Records(context.Background(), errReader{boom}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestRecordsStopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	ch := Records(ctx, pr)

	go func() { _, _ = io.WriteString(pw, "{\"content\":\"a\"}\n") }()
	it := <-ch
	if it.Record.Content != "a" {
		t.Fatalf("first record %+v", it)
	}

	cancel()
	_ = pr.CloseWithError(context.Canceled)
	select {
	case _, ok := <-ch:
		if ok {
			// at most the terminal item may still be delivered; then closed
			<-ch
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}
