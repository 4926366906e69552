// Package enrich augments finalized events with profile data for the
// actors they name. Lookups go to a collaborator service under a hard
// per-call timeout; failures degrade to the unenriched event.
package enrich

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/errgroup"

	"github.com/sclog/sclog-go/pkg/sclog/event"
)

// Profile is the external profile data for one player handle.
type Profile struct {
	Handle      string
	DisplayName string
	Org         string
	OrgSymbol   string
}

// ProfileService resolves a raw player handle to profile data. Treated
// as a black box; implementations typically call a web service.
type ProfileService interface {
	Lookup(ctx context.Context, handle string) (Profile, error)
}

// Defaults.
const (
	DefaultTimeout  = 2 * time.Second
	DefaultCacheTTL = 5 * time.Minute
)

// negativeTTL is how long a failed lookup is remembered before the
// service is asked about that handle again.
const negativeTTL = 30 * time.Second

// Option configures an Enricher.
type Option func(*Enricher)

// WithTimeout sets the hard per-event enrichment timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Enricher) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithCacheTTL sets how long a looked-up profile is reused before the
// service is asked again.
func WithCacheTTL(d time.Duration) Option {
	return func(e *Enricher) {
		if d > 0 {
			e.cacheTTL = d
		}
	}
}

// WithLogger sets a logger for debug output.
func WithLogger(log *slog.Logger) Option {
	return func(e *Enricher) {
		if log != nil {
			e.log = log
		}
	}
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Enricher fills in enrichment fields on finalized events.
type Enricher struct {
	svc      ProfileService
	timeout  time.Duration
	cacheTTL time.Duration
	cache    *ttlcache.Cache[string, Profile]
	log      *slog.Logger
}

// New creates an Enricher backed by svc.
func New(svc ProfileService, opts ...Option) *Enricher {
	e := &Enricher{
		svc:      svc,
		timeout:  DefaultTimeout,
		cacheTTL: DefaultCacheTTL,
		log:      discardLogger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.cache = ttlcache.New[string, Profile](
		ttlcache.WithTTL[string, Profile](e.cacheTTL),
		ttlcache.WithDisableTouchOnHit[string, Profile](),
	)
	go e.cache.Start()
	return e
}

// Close stops the cache's background expiry. The Enricher must not be
// used after Close.
func (e *Enricher) Close() {
	e.cache.Stop()
}

// Enrich looks up every actor named by ev and fills ev.Enrichment.
// Identity and core fields are never touched. Lookup failures and
// timeouts leave the affected actor's fields absent; Enrich itself never
// returns an error for them.
func (e *Enricher) Enrich(ctx context.Context, ev *event.Finalized) error {
	actors := uniqueActors(ev.Subjects, ev.Objects)
	if len(actors) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var mu sync.Mutex
	profiles := make(map[string]Profile, len(actors))

	// Resolve cache hits before any goroutine can touch the map. An
	// empty cached profile marks a recent failed lookup; it is neither
	// applied nor retried until it expires.
	var misses []string
	for _, handle := range actors {
		if item := e.cache.Get(handle); item != nil {
			if p := item.Value(); p.DisplayName != "" {
				profiles[handle] = p
			}
			continue
		}
		misses = append(misses, handle)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, handle := range misses {
		handle := handle
		g.Go(func() error {
			p, err := e.svc.Lookup(gctx, handle)
			if err != nil {
				e.log.Debug("profile lookup failed", "handle", handle, "error", err)
				e.cache.Set(handle, Profile{Handle: handle}, negativeTTL)
				return nil
			}
			e.cache.Set(handle, p, ttlcache.DefaultTTL)
			mu.Lock()
			profiles[handle] = p
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // lookups never propagate errors

	if len(profiles) == 0 {
		return nil
	}
	if ev.Enrichment == nil {
		ev.Enrichment = make(map[string]string, len(profiles)*2)
	}
	for handle, p := range profiles {
		if p.DisplayName != "" {
			ev.Enrichment[handle+".display_name"] = p.DisplayName
		}
		if p.Org != "" {
			ev.Enrichment[handle+".org"] = p.Org
		}
		if p.OrgSymbol != "" {
			ev.Enrichment[handle+".org_symbol"] = p.OrgSymbol
		}
	}
	return nil
}

func uniqueActors(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, h := range list {
			if h == "" || h == "unknown" {
				continue
			}
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	return out
}
