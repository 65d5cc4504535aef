package stream

import (
	"context"
	"errors"
	"io"
)

const defaultChunkSize = 4096

// Item is one delivery from Records: a record, or a terminal error.
type Item struct {
	Record Record
	Err    error
}

type readerOptions struct {
	chunkSize int
	onTail    func(tail string)
}

type ReaderOption func(*readerOptions)

// WithChunkSize sets the read buffer size.
func WithChunkSize(n int) ReaderOption {
	return func(o *readerOptions) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithDroppedTail registers fn to observe an unterminated final line that is
// discarded at end of stream.
func WithDroppedTail(fn func(tail string)) ReaderOption {
	return func(o *readerOptions) { o.onTail = fn }
}

// Records reads r on a new goroutine and delivers parsed records in order. The
// channel is closed when r is exhausted, after a terminal error Item, or when
// ctx is done. Read errors and parse errors end the sequence; io.EOF does not
// produce an Item. The caller still owns r and must close it to unblock a
// pending Read after cancelling ctx.
func Records(ctx context.Context, r io.Reader, opts ...ReaderOption) <-chan Item {
	o := readerOptions{chunkSize: defaultChunkSize}
	for _, opt := range opts {
		opt(&o)
	}

	out := make(chan Item)
	go func() {
		defer close(out)

		send := func(it Item) bool {
			select {
			case out <- it:
				return true
			case <-ctx.Done():
				return false
			}
		}

		dec := NewDecoder()
		var lp LineParser
		buf := make([]byte, o.chunkSize)
		for {
			n, rerr := r.Read(buf)
			if n > 0 {
				recs, perr := lp.Feed(dec.Decode(buf[:n]))
				for _, rec := range recs {
					if !send(Item{Record: rec}) {
						return
					}
				}
				if perr != nil {
					send(Item{Err: perr})
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
			if errors.Is(rerr, io.EOF) {
				tail := lp.Pending() + dec.Flush()
				if tail != "" && o.onTail != nil {
					o.onTail(tail)
				}
				return
			}
			if rerr != nil {
				send(Item{Err: rerr})
				return
			}
		}
	}()
	return out
}
