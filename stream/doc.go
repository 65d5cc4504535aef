// Package stream turns a chunked newline-delimited JSON response body into
// discrete records.
//
// Pipeline:
//
//	bytes --Decoder--> text fragments --LineParser--> Records
//
// Decoder reassembles UTF-8 sequences split across chunk boundaries.
// LineParser buffers the trailing partial line of each fragment until the next
// one arrives; a final line without a terminating newline is dropped. Records
// runs the whole pipeline on a goroutine and delivers records over a channel.
package stream
