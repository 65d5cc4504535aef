// Package generate runs streaming text generation against the backend and
// exposes its progress as reactive state.
package generate

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/inferkit"
	"github.com/unkn0wn-root/inferkit/selection"
	"github.com/unkn0wn-root/inferkit/signal"
	"github.com/unkn0wn-root/inferkit/stream"
	"github.com/unkn0wn-root/inferkit/transport"
)

// State is the session state machine: Idle -> Running -> {Completed, Failed,
// Cancelled} -> Idle. A session rests in Idle; the terminal state of the last
// run is reported by LastOutcome.
type State int

const (
	Idle State = iota
	Running
	Completed
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

type SessionOptions struct {
	GeneratePath string          // default "generate"
	Logger       inferkit.Logger // if nil, NopLogger is used
	Hooks        inferkit.Hooks  // if nil, NopHooks is used
	TokenDelay   time.Duration   // placeholder pacing; 0 => 16ms, <0 => none
	Placeholder  string          // "" => DefaultPlaceholder
}

// run is one Generate call.
type run struct {
	id     string
	cancel context.CancelCauseFunc
	done   chan struct{} // closed once the run released its stream
}

// Session runs at most one generation at a time. Starting a new one cancels
// the previous one. Safe for concurrent use.
type Session struct {
	tr          transport.Streamer
	sel         *selection.Selection
	path        string
	log         inferkit.Logger
	hooks       inferkit.Hooks
	delay       time.Duration
	placeholder string

	result *signal.Signal[string]
	status *signal.Signal[*string] // nil => no status
	state  *signal.Signal[State]

	mu      sync.Mutex
	active  *run
	outcome State
}

// NewSession binds a session to a transport and a model selection. A nil
// selection, or one with no model selected, makes every run stream the
// placeholder message instead of calling the backend.
func NewSession(tr transport.Streamer, sel *selection.Selection, opts SessionOptions) *Session {
	s := &Session{
		tr:          tr,
		sel:         sel,
		path:        opts.GeneratePath,
		log:         opts.Logger,
		hooks:       opts.Hooks,
		delay:       opts.TokenDelay,
		placeholder: opts.Placeholder,
		result:      signal.New(""),
		status:      signal.New[*string](nil),
		state:       signal.New(Idle),
	}
	if s.path == "" {
		s.path = "generate"
	}
	if s.log == nil {
		s.log = inferkit.NopLogger{}
	}
	if s.hooks == nil {
		s.hooks = inferkit.NopHooks{}
	}
	if s.delay == 0 {
		s.delay = defaultTokenDelay
	}
	if s.placeholder == "" {
		s.placeholder = DefaultPlaceholder
	}
	return s
}

// Result returns the output buffer.
func (s *Session) Result() string { return s.result.Get() }

// Status returns the backend's latest progress status, if any.
func (s *Session) Status() (string, bool) {
	p := s.status.Get()
	if p == nil {
		return "", false
	}
	return *p, true
}

func (s *Session) State() State { return s.state.Get() }

// LastOutcome returns the terminal state of the most recent finished run,
// or Idle if none finished yet.
func (s *Session) LastOutcome() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Running reports whether a run is active.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

func (s *Session) SubscribeResult(fn func(string)) (unsubscribe func()) {
	return s.result.Subscribe(fn)
}

// SubscribeStatus calls fn with the status on every change; ok is false
// when the status was cleared.
func (s *Session) SubscribeStatus(fn func(status string, ok bool)) (unsubscribe func()) {
	return s.status.Subscribe(func(p *string) {
		if p == nil {
			fn("", false)
			return
		}
		fn(*p, true)
	})
}

func (s *Session) SubscribeState(fn func(State)) (unsubscribe func()) {
	return s.state.Subscribe(fn)
}

// Abort cancels the active run, if any. Idempotent.
func (s *Session) Abort() {
	s.mu.Lock()
	r := s.active
	s.mu.Unlock()
	if r != nil {
		r.cancel(ErrCancelled)
	}
}

// Generate cancels any active run, waits for it to release its stream, then
// streams a new generation into the output buffer and returns the final
// output. Cancellation (Abort, a newer Generate, or ctx being cancelled) is
// not an error: the partial output is returned with a nil error. A ctx
// deadline, transport, parse or backend failure is returned as an error.
func (s *Session) Generate(ctx context.Context, opts Options) (string, error) {
	rctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	r := &run{id: uuid.NewString(), cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	prev := s.active
	s.active = r
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.active == r {
			s.active = nil
		}
		s.mu.Unlock()
		close(r.done)
	}()

	if prev != nil {
		prev.cancel(ErrCancelled)
		<-prev.done
		s.log.Debug("generation superseded", inferkit.Fields{"run": prev.id, "by": r.id})
		s.hooks.GenerationSuperseded(prev.id)
	}

	s.result.Set(opts.StartWith)
	s.status.Set(nil)
	s.state.Set(Running)

	chars, err := s.stream(rctx, r, opts)
	s.status.Set(nil)

	out := s.result.Get()
	outcome := Completed
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) && rctx.Err() != nil:
		outcome = Cancelled
		err = nil
	default:
		outcome = Failed
	}

	s.mu.Lock()
	s.outcome = outcome
	s.mu.Unlock()
	s.state.Set(Idle)

	fields := inferkit.Fields{"run": r.id, "outcome": outcome.String(), "chars": chars}
	if err != nil {
		fields["err"] = err
		s.log.Warn("generation failed", fields)
	} else {
		s.log.Debug("generation finished", fields)
	}
	s.hooks.GenerationFinished(r.id, outcome.String(), chars)
	return out, err
}

// stream drives one run and returns how many runes it appended.
func (s *Session) stream(ctx context.Context, r *run, opts Options) (int, error) {
	var items <-chan stream.Item

	model := ""
	if s.sel != nil {
		model = s.sel.Get()
	}
	if model == "" {
		s.log.Debug("no model selected; streaming placeholder", inferkit.Fields{"run": r.id})
		items = placeholderRecords(ctx, s.placeholder, s.delay)
	} else {
		body, err := requestBody(model, opts)
		if err != nil {
			return 0, err
		}
		st, err := s.tr.Stream(ctx, &transport.Request{Method: http.MethodPost, Path: s.path, Body: body})
		if err != nil {
			if ctx.Err() != nil {
				return 0, context.Cause(ctx)
			}
			return 0, err
		}
		defer st.Close()
		s.log.Debug("generation stream open", inferkit.Fields{"run": r.id, "model": model, "request_id": st.RequestID})
		items = stream.Records(ctx, st, stream.WithDroppedTail(func(tail string) {
			s.log.Warn("unterminated record dropped", inferkit.Fields{"run": r.id, "bytes": len(tail)})
			s.hooks.StreamTailDropped(r.id, len(tail))
		}))
	}

	chars := 0
	for {
		if ctx.Err() != nil {
			return chars, context.Cause(ctx)
		}
		var it stream.Item
		var ok bool
		select {
		case <-ctx.Done():
			return chars, context.Cause(ctx)
		case it, ok = <-items:
		}
		if !ok {
			if ctx.Err() != nil {
				return chars, context.Cause(ctx)
			}
			return chars, nil
		}
		if it.Err != nil {
			if ctx.Err() != nil {
				return chars, context.Cause(ctx)
			}
			return chars, it.Err
		}

		rec := it.Record
		if rec.HasStatus {
			st := rec.Status
			s.status.Set(&st)
		}
		if rec.Kind == stream.KindError {
			return chars, &BackendError{Message: rec.Error}
		}
		if rec.Content != "" {
			s.result.Update(func(cur string) string { return cur + rec.Content })
			chars += utf8.RuneCountInString(rec.Content)
		}
	}
}
