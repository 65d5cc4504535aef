package inferkit

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; wrap slow sinks with
// hooks/async.
type Hooks interface {
	// A Refetch joined a fetch already in flight for the same entry.
	RefetchCoalesced(key string)

	// A fetch finished after its key was invalidated; the result was dropped.
	StaleFetchDropped(key string, observedGen, currentGen uint64)

	// A fetch failed; the entry keeps its previous data.
	FetchFailed(key string, err error)

	// A write on key invalidated `matched` live entries.
	InvalidateCascade(key string, matched int)

	// A POST/PUT/DELETE failed (invalidation still ran).
	WriteFailed(key, method string, err error)

	// The last handle of an entry was released.
	EntryDropped(key string)

	// A generation run was cancelled because a newer one started.
	GenerationSuperseded(runID string)

	// A generation run ended. outcome ∈ {"completed", "failed", "cancelled"}.
	GenerationFinished(runID, outcome string, chars int)

	// An unterminated final stream line was discarded.
	StreamTailDropped(runID string, bytes int)

	// The persisted selection slot failed validation and was deleted.
	SelectionCorrupt(slot string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) RefetchCoalesced(string)                  {}
func (NopHooks) StaleFetchDropped(string, uint64, uint64) {}
func (NopHooks) FetchFailed(string, error)                {}
func (NopHooks) InvalidateCascade(string, int)            {}
func (NopHooks) WriteFailed(string, string, error)        {}
func (NopHooks) EntryDropped(string)                      {}
func (NopHooks) GenerationSuperseded(string)              {}
func (NopHooks) GenerationFinished(string, string, int)   {}
func (NopHooks) StreamTailDropped(string, int)            {}
func (NopHooks) SelectionCorrupt(string)                  {}
