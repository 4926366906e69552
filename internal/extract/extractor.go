// Package extract turns raw log content into partial combat events. It
// splits chunks into lines, buffers incomplete trailing lines across
// calls, and dispatches each line through an ordered pattern table where
// the first match wins.
package extract

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sclog/sclog-go/internal/linesource"
	"github.com/sclog/sclog-go/pkg/sclog/event"
)

// Matcher matches a single log line (timestamp prefix already parsed and
// stripped of trailing CR) and builds a partial event from it. Returning
// (nil, false) means no match; returning (nil, true) consumes the line
// without producing an event.
type Matcher interface {
	Match(line string, ts time.Time) (*event.Partial, bool)
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets a logger for debug output.
func WithLogger(log *slog.Logger) Option {
	return func(x *Extractor) {
		if log != nil {
			x.log = log
		}
	}
}

// WithCustomMatchers appends user-supplied matchers after the built-in
// table. Built-in patterns always take priority.
func WithCustomMatchers(ms ...Matcher) Option {
	return func(x *Extractor) {
		x.custom = append(x.custom, ms...)
	}
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Extractor holds the pattern table and the single piece of cross-call
// state: the buffered incomplete trailing line, plus the current game
// mode/session context.
type Extractor struct {
	log    *slog.Logger
	custom []Matcher

	carry []byte

	mode      string
	sessionID string
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	x := &Extractor{log: discardLogger}
	for _, opt := range opts {
		if opt != nil {
			opt(x)
		}
	}
	return x
}

// Mode returns the current game mode context, or "".
func (x *Extractor) Mode() string { return x.mode }

// SessionID returns the current session context, or "".
func (x *Extractor) SessionID() string { return x.sessionID }

// Extract processes one chunk and returns the partial events found in
// it. Lines matching no pattern are dropped silently. A post-truncation
// chunk restarts the stream: any buffered partial line is discarded.
func (x *Extractor) Extract(chunk linesource.Chunk) []event.Partial {
	if chunk.PostTruncation {
		x.carry = nil
	}

	data := chunk.Data
	if len(x.carry) > 0 {
		data = append(x.carry, data...)
		x.carry = nil
	}

	var out []event.Partial
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := string(data[:idx])
		data = data[idx+1:]

		p := x.extractLine(line)
		if p == nil {
			continue
		}
		p.Replayed = chunk.Replay
		out = append(out, *p)
	}

	if len(data) > 0 {
		// No terminator yet; hold until the next chunk completes it.
		x.carry = append([]byte(nil), data...)
	}
	return out
}

// extractLine matches one line against the table. Mode-tracking patterns
// update context and produce no event.
func (x *Extractor) extractLine(line string) *event.Partial {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return nil
	}

	ts, rest, ok := parseTimestamp(line)
	if !ok {
		// Not a standard log line.
		return nil
	}

	p := x.matchLine(rest, ts)
	if p == nil {
		return nil
	}

	switch p.Kind {
	case event.ModeChange:
		x.mode = p.Attr(event.AttrGameMode)
		x.log.Debug("game mode changed", "mode", x.mode)
		return nil
	case event.SessionStart:
		x.sessionID = p.Attr(event.AttrSessionID)
		if mode := p.Attr(event.AttrGameMode); mode != "" {
			x.mode = mode
		}
		x.log.Debug("session started", "session_id", x.sessionID, "mode", x.mode)
		return nil
	}

	x.attachContext(p)
	return p
}

func (x *Extractor) matchLine(line string, ts time.Time) *event.Partial {
	for _, entry := range builtinTable {
		if p, ok := entry.match(line, ts); ok {
			return p
		}
	}
	for _, m := range x.custom {
		if p, ok := m.Match(line, ts); ok {
			return p
		}
	}
	return nil
}

// attachContext stamps the current mode/session onto an outgoing event
// without clobbering values a pattern captured itself.
func (x *Extractor) attachContext(p *event.Partial) {
	if x.mode == "" && x.sessionID == "" {
		return
	}
	if p.Attrs == nil {
		p.Attrs = make(map[string]string, 2)
	}
	if x.mode != "" && p.Attrs[event.AttrGameMode] == "" {
		p.Attrs[event.AttrGameMode] = x.mode
	}
	if x.sessionID != "" && p.Attrs[event.AttrSessionID] == "" {
		p.Attrs[event.AttrSessionID] = x.sessionID
	}
}
