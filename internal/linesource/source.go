// Package linesource tails a single append-only log file and emits raw
// appended content as chunks. It owns the read cursor: detecting
// truncation and file replacement, performing the one-time silent replay
// of pre-existing content, and retrying while the file is missing.
package linesource

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/sclog/sclog-go/internal/safefile"
)

// Chunk is a contiguous run of bytes newly observed in the file.
type Chunk struct {
	Data []byte

	// Replay marks the one-time read of content that existed before the
	// source started. Consumers must suppress live side effects for it.
	Replay bool

	// PostTruncation marks the first chunk after the file shrank or was
	// replaced. Consumers must treat it as a stream restart and discard
	// any buffered partial line.
	PostTruncation bool
}

// errBuffer is the error channel buffer size; small enough to stay cheap,
// large enough that a busy consumer does not lose errors.
const errBuffer = 16

// Sentinel errors.
var (
	ErrSourceClosed    = errors.New("line source closed")
	ErrAlreadyWatching = errors.New("already watching")
	// ErrCursorInvariant reports a read cursor past the end of the file
	// outside a truncation. It indicates a logic error; the source resets
	// its own state when it occurs.
	ErrCursorInvariant = errors.New("read cursor beyond file size")
)

// Option configures a Source.
type Option func(*Source)

// WithLogger sets a logger for debug output. Nil disables logging.
func WithLogger(log *slog.Logger) Option {
	return func(s *Source) {
		if log != nil {
			s.log = log
		}
	}
}

// WithPollInterval sets the fallback polling interval used alongside
// file-system notifications. Default: 2 seconds.
func WithPollInterval(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithPermRetryInterval sets the fixed slow interval used after a
// permission error has been surfaced. Default: 30 seconds.
func WithPermRetryInterval(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.permRetry = d
		}
	}
}

// WithReplay controls whether the initial file content is emitted as a
// replay chunk. When disabled the cursor still skips to the end of the
// file so only appended content is observed. Default: enabled.
func WithReplay(replay bool) Option {
	return func(s *Source) { s.replay = replay }
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Source watches one file for appended bytes.
type Source struct {
	path         string
	log          *slog.Logger
	pollInterval time.Duration
	permRetry    time.Duration
	replay       bool

	// Read cursor, owned exclusively by the run goroutine.
	offset   int64
	identity os.FileInfo

	permReported bool

	mu       sync.Mutex
	closed   bool
	watching bool
	cancel   context.CancelFunc
	doneCh   chan struct{}
}

// New creates a Source for path. No goroutines start until Watch.
func New(path string, opts ...Option) *Source {
	s := &Source{
		path:         filepath.Clean(path),
		log:          discardLogger,
		pollInterval: 2 * time.Second,
		permRetry:    30 * time.Second,
		replay:       true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Watch starts tailing and returns the chunk and error channels. Both
// close when ctx is cancelled or the source is closed. Watch can only be
// called once per Source.
func (s *Source) Watch(ctx context.Context) (<-chan Chunk, <-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, nil, ErrSourceClosed
	}
	if s.watching {
		return nil, nil, ErrAlreadyWatching
	}
	s.watching = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.doneCh = make(chan struct{})

	chunkCh := make(chan Chunk)
	errCh := make(chan error, errBuffer)

	go s.run(ctx, chunkCh, errCh)

	return chunkCh, errCh, nil
}

// Close stops the source and blocks until its goroutine has exited.
// Safe to call multiple times.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	doneCh := s.doneCh
	s.mu.Unlock()

	if doneCh != nil {
		<-doneCh
	}
	return nil
}

func (s *Source) run(ctx context.Context, chunkCh chan<- Chunk, errCh chan<- error) {
	defer close(s.doneCh)
	defer close(chunkCh)
	defer close(errCh)

	if !s.openAndReplay(ctx, chunkCh, errCh) {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		sendError(ctx, errCh, err)
		watcher = nil
	} else {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(s.path)); err != nil {
			sendError(ctx, errCh, err)
		}
	}

	// The poll ticker backs up fsnotify: editors and network file systems
	// do not always produce events, and it drives retry while the file is
	// missing mid-rotation.
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var events chan fsnotify.Event
	var werrs chan error
	if watcher != nil {
		events = watcher.Events
		werrs = watcher.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.sync(ctx, chunkCh, errCh)
		case err, ok := <-werrs:
			if !ok {
				werrs = nil
				continue
			}
			sendError(ctx, errCh, err)
		case <-ticker.C:
			s.sync(ctx, chunkCh, errCh)
		}
	}
}

// openAndReplay waits for the file to exist, then performs the silent
// replay pass and positions the cursor at the end of the current content.
// Returns false if the context was cancelled.
func (s *Source) openAndReplay(ctx context.Context, chunkCh chan<- Chunk, errCh chan<- error) bool {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0

	for {
		f, info, err := safefile.OpenRegular(s.path)
		if err == nil {
			size := info.Size()
			data, rerr := readRange(f, 0, size)
			f.Close()
			if rerr != nil {
				sendError(ctx, errCh, rerr)
				if !sleepCtx(ctx, bo.NextBackOff()) {
					return false
				}
				continue
			}
			s.identity = info
			s.offset = int64(len(data))
			s.log.Debug("silent replay", "path", s.path, "bytes", len(data))
			if s.replay && len(data) > 0 {
				if !send(ctx, chunkCh, Chunk{Data: data, Replay: true}) {
					return false
				}
			}
			return true
		}

		delay := bo.NextBackOff()
		if errors.Is(err, fs.ErrPermission) {
			// Recoverable operator error: report once, then retry slowly.
			if !s.permReported {
				s.permReported = true
				sendError(ctx, errCh, err)
			}
			delay = s.permRetry
		} else if !errors.Is(err, fs.ErrNotExist) {
			sendError(ctx, errCh, err)
		}
		if !sleepCtx(ctx, delay) {
			return false
		}
	}
}

// sync compares the current file against the cursor and emits whatever is
// new. Called for every change notification and poll tick; a no-change
// stat is a no-op.
func (s *Source) sync(ctx context.Context, chunkCh chan<- Chunk, errCh chan<- error) {
	f, info, err := safefile.OpenRegular(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Mid-rotation gap; the poll ticker retries.
			return
		}
		if errors.Is(err, fs.ErrPermission) {
			if !s.permReported {
				s.permReported = true
				sendError(ctx, errCh, err)
			}
			return
		}
		sendError(ctx, errCh, err)
		return
	}
	defer f.Close()
	s.permReported = false

	size := info.Size()
	replaced := s.identity != nil && !os.SameFile(s.identity, info)
	s.identity = info

	switch {
	case replaced || size < s.offset:
		// Rotation or truncation: restart the stream from offset zero.
		s.log.Debug("file truncated or replaced", "path", s.path, "offset", s.offset, "size", size)
		s.offset = 0
		data, err := readRange(f, 0, size)
		if err != nil {
			sendError(ctx, errCh, err)
			return
		}
		s.offset = int64(len(data))
		send(ctx, chunkCh, Chunk{Data: data, PostTruncation: true})

	case size > s.offset:
		data, err := readRange(f, s.offset, size)
		if err != nil {
			sendError(ctx, errCh, err)
			return
		}
		s.offset += int64(len(data))
		if s.offset > size {
			// Logic error, not an environment condition: restart the
			// component state rather than carry a corrupt cursor.
			s.offset = 0
			s.identity = nil
			sendError(ctx, errCh, ErrCursorInvariant)
			return
		}
		if len(data) > 0 {
			send(ctx, chunkCh, Chunk{Data: data})
		}

	default:
		// size == offset: spurious notification.
	}
}

// readRange reads bytes [from, to) of f. A file shrinking concurrently
// yields a short (not failed) read.
func readRange(f *os.File, from, to int64) ([]byte, error) {
	if to <= from {
		return nil, nil
	}
	buf := make([]byte, to-from)
	n, err := f.ReadAt(buf, from)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

func send(ctx context.Context, ch chan<- Chunk, c Chunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

func sendError(ctx context.Context, errCh chan<- error, err error) {
	if err == nil {
		return
	}
	select {
	case errCh <- err:
	case <-ctx.Done():
	default:
		// Buffer full; drop rather than block the tail loop.
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
