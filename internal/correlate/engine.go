// Package correlate reunites log lines that describe the same real-world
// occurrence. The game logs a vehicle's destruction and the death of the
// player inside it as two independent lines, often out of order, with no
// shared identifier beyond the victim's name and approximate time. The
// engine holds such partials in a short window and merges matching pairs;
// everything else finalizes immediately or at window expiry.
package correlate

import (
	"io"
	"log/slog"
	"time"

	"github.com/sclog/sclog-go/pkg/sclog/event"
)

// DefaultWindow bounds how far apart in arrival time two lines may be and
// still describe the same kill.
const DefaultWindow = 5 * time.Second

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a logger for debug output.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type pendingEntry struct {
	partial  event.Partial
	arrived  time.Time
	deadline time.Time
}

// Engine owns the correlation window. Not safe for concurrent use; the
// pipeline loop is its single caller.
type Engine struct {
	window  time.Duration
	now     func() time.Time
	log     *slog.Logger
	pending []pendingEntry
}

// New creates an Engine with the given correlation window. A
// non-positive window falls back to DefaultWindow.
func New(window time.Duration, opts ...Option) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	e := &Engine{
		window: window,
		now:    time.Now,
		log:    discardLogger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// PendingCount reports how many partials are waiting for a counterpart.
func (e *Engine) PendingCount() int { return len(e.pending) }

// Observe feeds one partial into the engine and returns any events
// finalized as a result. Corpse and vehicle-destruction partials wait in
// the window for a counterpart; every other kind is self-sufficient and
// finalizes immediately.
func (e *Engine) Observe(p event.Partial) []event.Finalized {
	now := e.now()

	switch p.Kind {
	case event.PlayerCorpse, event.VehicleDestruction:
		victim := p.Victim()
		if victim == "" {
			// Nothing to join on (e.g. an unmanned vehicle).
			return []event.Finalized{e.finalize(p)}
		}
		if idx := e.findCounterpart(p.Kind, victim, now); idx >= 0 {
			other := e.pending[idx].partial
			e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
			merged := merge(p, other)
			e.log.Debug("correlated events", "victim", victim, "kind", merged.Kind)
			return []event.Finalized{e.finalize(merged)}
		}
		e.pending = append(e.pending, pendingEntry{
			partial:  p,
			arrived:  now,
			deadline: now.Add(e.window),
		})
		return nil

	default:
		return []event.Finalized{e.finalize(p)}
	}
}

// Sweep finalizes every pending partial whose window has expired, each
// exactly once, with whatever detail it carried alone.
func (e *Engine) Sweep(now time.Time) []event.Finalized {
	var out []event.Finalized
	kept := e.pending[:0]
	for _, entry := range e.pending {
		if entry.deadline.After(now) {
			kept = append(kept, entry)
			continue
		}
		out = append(out, e.finalize(entry.partial))
	}
	e.pending = kept
	return out
}

// Flush finalizes all pending partials regardless of deadline. Used on
// shutdown and for offline one-shot parsing.
func (e *Engine) Flush() []event.Finalized {
	var out []event.Finalized
	for _, entry := range e.pending {
		out = append(out, e.finalize(entry.partial))
	}
	e.pending = nil
	return out
}

// findCounterpart returns the index of the best unexpired counterpart
// for the given victim, or -1. When several candidates match, the one
// with the closest arrival time wins. That tie-break is a heuristic
// carried over from observed game behavior, not a log guarantee:
// high-frequency multi-kill bursts can mispair.
func (e *Engine) findCounterpart(kind event.Kind, victim string, now time.Time) int {
	counter := event.PlayerCorpse
	if kind == event.PlayerCorpse {
		counter = event.VehicleDestruction
	}

	best := -1
	for i, entry := range e.pending {
		if entry.partial.Kind != counter {
			continue
		}
		if entry.partial.Victim() != victim {
			continue
		}
		if !entry.deadline.After(now) {
			continue
		}
		if best < 0 || entry.arrived.After(e.pending[best].arrived) {
			best = i
		}
	}
	return best
}

// merge combines a corpse/death partial and a vehicle-destruction partial
// into one. Vehicle fields come from the destruction side; weapon and
// kill fields from the death side.
func merge(a, b event.Partial) event.Partial {
	death, destruction := a, b
	if a.Kind == event.VehicleDestruction {
		death, destruction = b, a
	}

	attrs := make(map[string]string, len(death.Attrs)+len(destruction.Attrs))
	for k, v := range destruction.Attrs {
		attrs[k] = v
	}
	for k, v := range death.Attrs {
		attrs[k] = v
	}

	ts := death.Timestamp
	if !destruction.Timestamp.IsZero() && destruction.Timestamp.Before(ts) {
		ts = destruction.Timestamp
	}

	subjects := death.Subjects
	if len(subjects) == 0 {
		subjects = destruction.Subjects
	}

	merged := event.Partial{
		Kind:      mergedKind(subjects, attrs),
		Timestamp: ts,
		Subjects:  subjects,
		Objects:   []string{death.Victim()},
		Attrs:     attrs,
		Replayed:  death.Replayed && destruction.Replayed,
	}
	return merged
}

// mergedKind classifies a merged death-plus-destruction.
func mergedKind(subjects []string, attrs map[string]string) event.Kind {
	if len(subjects) > 0 {
		return event.CombatKill
	}
	if attrs["cause"] == "Collision" || attrs[event.AttrDamageType] == "Collision" {
		return event.EnvironmentalDeath
	}
	return event.PlayerCorpse
}

// finalize assigns the stable identifier and derived description.
func (e *Engine) finalize(p event.Partial) event.Finalized {
	return event.Finalized{
		ID:          event.NewID(p.Kind, p.Timestamp, p.Subjects, p.Objects, p.Attrs),
		Kind:        p.Kind,
		Timestamp:   p.Timestamp,
		Subjects:    p.Subjects,
		Objects:     p.Objects,
		Attrs:       p.Attrs,
		Description: describe(p),
		Replayed:    p.Replayed,
	}
}
