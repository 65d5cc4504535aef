package generate

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/unkn0wn-root/inferkit/stream"
)

// DefaultPlaceholder is streamed instead of calling the backend when no model
// is selected.
const DefaultPlaceholder = "Hey there! 👋\n" +
	"It looks like you haven't selected a model yet.\n" +
	"Please select a model before generating.\n" +
	"\n" +
	"In case you don't have a model yet, you can download one in the **[Models](/models)** tab."

const defaultTokenDelay = 16 * time.Millisecond

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// SplitWords cuts s at every word boundary: each piece is a maximal run of
// ASCII word characters or a maximal run of everything else. Joining the
// pieces gives s back.
func SplitWords(s string) []string {
	var out []string
	start := 0
	for i := 1; i < len(s); i++ {
		if isWordByte(s[i]) != isWordByte(s[i-1]) {
			out = append(out, s[start:i])
			start = i
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// placeholderRecords emits msg word by word as content records, one every
// delay. The channel closes after the last word or when ctx is done.
func placeholderRecords(ctx context.Context, msg string, delay time.Duration) <-chan stream.Item {
	out := make(chan stream.Item)
	lim := rate.NewLimiter(rate.Every(delay), 1)
	if delay <= 0 {
		lim = rate.NewLimiter(rate.Inf, 1)
	}
	go func() {
		defer close(out)
		for _, w := range SplitWords(msg) {
			if err := lim.Wait(ctx); err != nil {
				return
			}
			select {
			case out <- stream.Item{Record: stream.Record{Kind: stream.KindContent, Content: w}}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
