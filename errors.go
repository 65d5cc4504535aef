package inferkit

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrClosed is returned by Acquire after Close.
	ErrClosed = errors.New("inferkit: client closed")
	// ErrTypeMismatch is returned by Acquire when the live entry for a key
	// was created with a different value type.
	ErrTypeMismatch = errors.New("inferkit: entry type mismatch")
)

// InvalidateError collects the refetch failures of one cascade, keyed by the
// entry key that failed.
type InvalidateError struct {
	Key  string
	Errs map[string]error
}

func (e *InvalidateError) Error() string {
	keys := make([]string, 0, len(e.Errs))
	for k := range e.Errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "invalidate %q: %d refetch(es) failed", e.Key, len(keys))
	for _, k := range keys {
		fmt.Fprintf(&b, "; %s: %v", k, e.Errs[k])
	}
	return b.String()
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errs))
	for _, err := range e.Errs {
		errs = append(errs, err)
	}
	return errs
}
