package transport

import (
	"errors"
	"fmt"
)

// NetworkError reports a failed request: either the exchange itself failed
// (Status == 0, Cause set) or the server answered with a non-2xx status.
type NetworkError struct {
	Method string
	URL    string
	Status int    // HTTP status; 0 when no response was received
	Body   string // leading bytes of an error response body
	Cause  error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("transport: %s %s: status %d: %s", e.Method, e.URL, e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("transport: %s %s: status %d", e.Method, e.URL, e.Status)
	case e.Cause != nil:
		return fmt.Sprintf("transport: %s %s: %v", e.Method, e.URL, e.Cause)
	default:
		return fmt.Sprintf("transport: %s %s failed", e.Method, e.URL)
	}
}

func (e *NetworkError) Unwrap() error { return e.Cause }

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Status
	}
	return 0
}
