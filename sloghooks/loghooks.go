package sloghooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/inferkit"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	CoalescedEvery uint64
	StaleEvery     uint64
	// Optional key redactor. Defaults to SHA-256 prefix when RedactKeys is set.
	RedactKeys bool
	Redact     func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	coalescedCtr atomic.Uint64
	staleCtr     atomic.Uint64
}

var _ inferkit.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	if !h.opts.RedactKeys {
		return k
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) RefetchCoalesced(key string) {
	if h.l == nil || !sample(h.opts.CoalescedEvery, &h.coalescedCtr) {
		return
	}
	h.l.Debug("inferkit.refetch_coalesced", "key", h.redact(key))
}

func (h *Hooks) StaleFetchDropped(key string, observed, current uint64) {
	if h.l == nil || !sample(h.opts.StaleEvery, &h.staleCtr) {
		return
	}
	h.l.Debug("inferkit.stale_fetch_dropped",
		"key", h.redact(key),
		"observed_gen", observed,
		"current_gen", current)
}

func (h *Hooks) FetchFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("inferkit.fetch_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) InvalidateCascade(key string, matched int) {
	if h.l == nil {
		return
	}
	h.l.Debug("inferkit.invalidate",
		"key", h.redact(key),
		"matched", matched)
}

func (h *Hooks) WriteFailed(key, method string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("inferkit.write_failed",
		"key", h.redact(key),
		"method", method,
		"err", err)
}

func (h *Hooks) EntryDropped(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("inferkit.entry_dropped", "key", h.redact(key))
}

func (h *Hooks) GenerationSuperseded(runID string) {
	if h.l == nil {
		return
	}
	h.l.Info("inferkit.generation_superseded", "run", runID)
}

func (h *Hooks) GenerationFinished(runID, outcome string, chars int) {
	if h.l == nil {
		return
	}
	lvl := slog.LevelInfo
	if outcome == "failed" {
		lvl = slog.LevelWarn
	}
	h.l.Log(context.Background(), lvl, "inferkit.generation_finished",
		"run", runID,
		"outcome", outcome,
		"chars", chars)
}

func (h *Hooks) StreamTailDropped(runID string, bytes int) {
	if h.l == nil {
		return
	}
	h.l.Warn("inferkit.stream_tail_dropped",
		"run", runID,
		"bytes", bytes)
}

func (h *Hooks) SelectionCorrupt(slot string) {
	if h.l == nil {
		return
	}
	h.l.Error("inferkit.selection_corrupt", "slot", slot)
}
