package generate

import (
	"context"
	"fmt"
)

// BackendError is an explicit error record received on the stream.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string {
	return "generate: backend error: " + e.Message
}

// ErrCancelled is the cancellation cause of a run stopped by Abort or by a
// newer Generate call. Generate swallows it and returns the partial output.
var ErrCancelled = fmt.Errorf("generate: cancelled: %w", context.Canceled)
