package inferkit

import (
	"fmt"
	"strings"
	"time"

	gen "github.com/unkn0wn-root/inferkit/genstore"
	"github.com/unkn0wn-root/inferkit/transport"
)

// PrefixMode selects how the invalidation cascade matches ancestor keys.
type PrefixMode int

const (
	// PrefixRaw matches on raw string prefixes: invalidating "chat2"
	// also refetches "chat".
	PrefixRaw PrefixMode = iota
	// PrefixSegment requires the match to end on a '/' boundary.
	PrefixSegment
)

func (m PrefixMode) String() string {
	if m == PrefixSegment {
		return "segment"
	}
	return "raw"
}

// ParsePrefixMode parses "raw" or "segment" ("" => raw).
func ParsePrefixMode(s string) (PrefixMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "raw":
		return PrefixRaw, nil
	case "segment":
		return PrefixSegment, nil
	}
	return PrefixRaw, fmt.Errorf("inferkit: unknown prefix mode %q", s)
}

// State is the reactive view of one cached resource.
type State[V any] struct {
	Data    V
	HasData bool  // false until the first successful fetch
	Loading bool  // true from creation and while a fetch is pending
	Err     error // last fetch error; cleared by the next successful fetch
}

// Options tune the Client. Only Transport is required.
type Options struct {
	// Required
	Transport transport.Doer

	Logger             Logger        // if nil, NopLogger is used
	Hooks              Hooks         // if nil, NopHooks is used
	GenStore           gen.GenStore  // nil => LocalGenStore that never prunes live keys
	GenCleanupInterval time.Duration // local gen store sweep; 0 => 1h
	GenRetention       time.Duration // local gen store retention; 0 => 24h
	PrefixMode         PrefixMode    // default PrefixRaw
	RefreshDescendants bool          // also refetch keys below the written key, in background
	MaxConcurrency     int           // refetches per cascade; 0 => unlimited
	MaxDecodeBytes     int           // cap on decoded bodies; 0 => unlimited
}

func New(opts Options) (*Client, error) {
	return newClient(opts)
}
