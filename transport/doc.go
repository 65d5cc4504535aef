// Package transport is the thin HTTP layer under the resource cache and the
// generation session. Do performs a buffered request and returns the body with
// its content type; Stream returns the live response body for incremental
// consumption. Compressed bodies (gzip, zstd, br) are decoded transparently.
package transport
