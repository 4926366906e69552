package sclog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sclog/sclog-go/internal/correlate"
	"github.com/sclog/sclog-go/internal/extract"
	"github.com/sclog/sclog-go/internal/linesource"
	"github.com/sclog/sclog-go/internal/logfinder"
	"github.com/sclog/sclog-go/pkg/sclog/event"
	"github.com/sclog/sclog-go/pkg/sclog/pattern"
)

// Sink receives finalized events. Implementations must tolerate
// redelivery: the same event ID may be delivered again after a replay.
type Sink interface {
	Deliver(ctx context.Context, ev event.Finalized) error
}

// Enricher augments a finalized event in place before delivery. It must
// bound its own latency; the pipeline calls it inline.
type Enricher interface {
	Enrich(ctx context.Context, ev *event.Finalized) error
}

// errBuffer is the error channel buffer size.
const errBuffer = 16

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Pipeline tails the game log and turns it into finalized combat events:
// extract, correlate, enrich, then fan out to the configured sinks and
// the event channel.
//
// All in-memory pipeline state (the extractor's line buffer and mode
// context, the correlation window) is mutated from a single goroutine;
// sinks and enrichers are the only collaborators that may block.
type Pipeline struct {
	cfg  config
	path string
	log  *slog.Logger

	extractor *extract.Extractor
	engine    *correlate.Engine

	mu       sync.Mutex
	closed   bool
	watching bool
	cancel   context.CancelFunc
	doneCh   chan struct{}
}

// NewPipeline creates a pipeline using functional options. It resolves
// the log file location and compiles any custom patterns, but starts no
// goroutines.
func NewPipeline(opts ...Option) (*Pipeline, error) {
	cfg := applyOptions(opts)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	log := cfg.logger
	if log == nil {
		log = discardLogger
	}

	path := cfg.logPath
	if path == "" {
		dir, err := logfinder.FindLogDir(cfg.logDir)
		if err != nil {
			return nil, fmt.Errorf("finding log directory: %w", err)
		}
		path, err = logfinder.FindLiveLog(dir)
		if err != nil {
			return nil, fmt.Errorf("finding live log: %w", err)
		}
	}

	var extractOpts []extract.Option
	extractOpts = append(extractOpts, extract.WithLogger(log))
	if cfg.patternFile != "" {
		compiled, err := pattern.CompileFile(cfg.patternFile)
		if err != nil {
			return nil, fmt.Errorf("loading pattern file: %w", err)
		}
		matchers := make([]extract.Matcher, len(compiled))
		for i, c := range compiled {
			matchers[i] = c
		}
		extractOpts = append(extractOpts, extract.WithCustomMatchers(matchers...))
	}

	return &Pipeline{
		cfg:       *cfg,
		path:      path,
		log:       log,
		extractor: extract.New(extractOpts...),
		engine:    correlate.New(cfg.window, correlate.WithLogger(log)),
	}, nil
}

// Watch starts the pipeline and returns the finalized event and error
// channels. Both close when ctx is cancelled or the pipeline is closed.
// Events carry a Replayed flag for content that existed before startup;
// consumers must suppress live notifications for those. Watch can only
// be called once per Pipeline.
func (p *Pipeline) Watch(ctx context.Context) (<-chan event.Finalized, <-chan error, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, nil, ErrPipelineClosed
	}
	if p.watching {
		return nil, nil, ErrAlreadyWatching
	}
	p.watching = true

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.doneCh = make(chan struct{})

	evCh := make(chan event.Finalized)
	errCh := make(chan error, errBuffer)

	go p.run(ctx, evCh, errCh)

	return evCh, errCh, nil
}

// Close stops the pipeline and blocks until its goroutine has exited.
// Safe to call multiple times.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.cancel != nil {
		p.cancel()
	}
	doneCh := p.doneCh
	p.mu.Unlock()

	if doneCh != nil {
		<-doneCh
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, evCh chan<- event.Finalized, errCh chan<- error) {
	defer close(p.doneCh)
	defer close(evCh)
	defer close(errCh)

	src := linesource.New(p.path,
		linesource.WithLogger(p.log),
		linesource.WithPollInterval(p.cfg.pollInterval),
		linesource.WithReplay(p.cfg.replay),
	)
	chunks, srcErrs, err := src.Watch(ctx)
	if err != nil {
		sendError(ctx, errCh, &WatchError{Op: WatchOpTail, Path: p.path, Err: err})
		return
	}
	defer src.Close()
	p.log.Debug("watching log", "path", p.path)

	sweep := time.NewTicker(p.cfg.sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			for _, partial := range p.extractor.Extract(chunk) {
				if !p.dispatch(ctx, p.engine.Observe(partial), evCh, errCh) {
					return
				}
			}

		case err, ok := <-srcErrs:
			if !ok {
				return
			}
			sendError(ctx, errCh, &WatchError{Op: WatchOpTail, Path: p.path, Err: err})

		case now := <-sweep.C:
			if !p.dispatch(ctx, p.engine.Sweep(now), evCh, errCh) {
				return
			}
		}
	}
}

// dispatch enriches finalized events and delivers them to every sink
// and the event channel, in finalization order. Sink failures are
// reported but isolated from each other. Returns false when ctx ended.
func (p *Pipeline) dispatch(ctx context.Context, finals []event.Finalized, evCh chan<- event.Finalized, errCh chan<- error) bool {
	for i := range finals {
		ev := &finals[i]

		if p.cfg.enricher != nil {
			if err := p.enrich(ctx, ev); err != nil {
				sendError(ctx, errCh, &WatchError{Op: WatchOpEnrich, Err: err})
			}
		}

		for _, s := range p.cfg.sinks {
			if err := s.Deliver(ctx, *ev); err != nil {
				sendError(ctx, errCh, &WatchError{Op: WatchOpDeliver, Err: err})
			}
		}

		select {
		case evCh <- *ev:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (p *Pipeline) enrich(ctx context.Context, ev *event.Finalized) error {
	if p.cfg.enrichTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.enrichTimeout)
		defer cancel()
	}
	return p.cfg.enricher.Enrich(ctx, ev)
}

func sendError(ctx context.Context, errCh chan<- error, err error) {
	if err == nil {
		return
	}
	select {
	case errCh <- err:
	case <-ctx.Done():
	default:
		// Buffer full; drop rather than stall the pipeline.
	}
}
