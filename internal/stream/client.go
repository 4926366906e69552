package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sclog/sclog-go/pkg/sclog/event"
)

// State of the logical connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected // transport up, not yet authenticated
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Defaults.
const (
	DefaultMinDelay  = time.Second
	DefaultMaxDelay  = 2 * time.Minute
	DefaultStability = 30 * time.Second
)

// errReauthenticate signals a server-requested credential refresh; the
// buffer survives it.
var errReauthenticate = errors.New("server requested reauthentication")

// Option configures a Client.
type Option func(*Client)

// WithLogger sets a logger for debug output.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithBackoff sets the reconnect delay bounds.
func WithBackoff(min, max time.Duration) Option {
	return func(c *Client) {
		if min > 0 {
			c.minDelay = min
		}
		if max > 0 {
			c.maxDelay = max
		}
	}
}

// WithStability sets how long a connection must be held before the
// reconnect delay resets to the minimum.
func WithStability(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.stability = d
		}
	}
}

// WithOnCategory registers a handler for server-pushed category
// metadata about already-seen events.
func WithOnCategory(fn func(eventID, category string)) Option {
	return func(c *Client) { c.onCategory = fn }
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Client owns one logical connection to the remote service and the
// ordered buffer of events awaiting transmission.
type Client struct {
	url      string
	clientID string
	dialer   Dialer
	creds    CredentialSource
	log      *slog.Logger

	minDelay  time.Duration
	maxDelay  time.Duration
	stability time.Duration

	onCategory func(eventID, category string)

	state atomic.Int32

	mu         sync.Mutex
	buf        []event.Finalized
	guestToken string

	notify chan struct{} // new buffered events while a session is live
	kick   chan struct{} // supersedes a pending reconnect wait
}

// New creates a Client. clientID is the persistent identifier sent with
// every transmission.
func New(url, clientID string, dialer Dialer, creds CredentialSource, opts ...Option) *Client {
	c := &Client{
		url:       url,
		clientID:  clientID,
		dialer:    dialer,
		creds:     creds,
		log:       discardLogger,
		minDelay:  DefaultMinDelay,
		maxDelay:  DefaultMaxDelay,
		stability: DefaultStability,
		notify:    make(chan struct{}, 1),
		kick:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// Buffered reports how many events await transmission.
func (c *Client) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// Deliver enqueues ev for remote transmission. It never blocks on the
// network and never fails: events buffer while disconnected or
// unauthenticated and flush in enqueue order once authenticated.
// Replayed events are not forwarded; the server saw them when they were
// live.
func (c *Client) Deliver(_ context.Context, ev event.Finalized) error {
	if ev.Replayed {
		return nil
	}
	c.mu.Lock()
	c.buf = append(c.buf, ev)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

// Reconnect interrupts a pending backoff wait so the next connection
// attempt starts immediately with a freshly resolved credential.
func (c *Client) Reconnect() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Run drives the connection until ctx is cancelled. Any transport error
// from any state returns the client to disconnected and schedules a
// retry with exponential backoff, jitter, and a capped maximum delay;
// the delay resets to the minimum after a connection held for the
// stability period.
func (c *Client) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.minDelay
	bo.MaxInterval = c.maxDelay
	bo.RandomizationFactor = 0.2
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.setState(StateConnecting)
		token := c.resolveToken(ctx)

		conn, err := c.dialer.Dial(ctx, c.url)
		if err != nil {
			c.setState(StateDisconnected)
			c.log.Debug("dial failed", "url", c.url, "error", err)
			if !c.waitRetry(ctx, bo.NextBackOff()) {
				return ctx.Err()
			}
			continue
		}

		c.setState(StateConnected)
		start := time.Now()
		err = c.session(ctx, conn, token)
		conn.Close()
		c.setState(StateDisconnected)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, errReauthenticate) {
			// Straight back to connecting with a refreshed credential;
			// buffered events are untouched.
			c.log.Debug("reauthentication requested")
			bo.Reset()
			continue
		}
		c.log.Debug("session ended", "error", err)
		if time.Since(start) >= c.stability {
			bo.Reset()
		}
		if !c.waitRetry(ctx, bo.NextBackOff()) {
			return ctx.Err()
		}
	}
}

type readResult struct {
	env envelope
	err error
}

// session runs one established connection: sends the auth frame, then
// reacts to inbound control signals and flush triggers. No event frame
// is written before the authenticated acknowledgment arrives.
func (c *Client) session(ctx context.Context, conn Conn, token string) error {
	if err := conn.WriteJSON(envelope{Type: msgAuth, Token: token, ClientID: c.clientID}); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	readCh := make(chan readResult)
	go func() {
		for {
			var env envelope
			err := conn.ReadJSON(&env)
			select {
			case readCh <- readResult{env: env, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	authed := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-readCh:
			if r.err != nil {
				return r.err
			}
			switch r.env.Type {
			case msgAuthenticated:
				authed = true
				c.setState(StateAuthenticated)
				c.log.Debug("authenticated", "buffered", c.Buffered())
				if err := c.flush(conn); err != nil {
					return err
				}
			case msgReauthenticate:
				return errReauthenticate
			case msgGuestToken:
				c.setGuestToken(r.env.Token)
			case msgCategory:
				if c.onCategory != nil {
					c.onCategory(r.env.EventID, r.env.Category)
				}
			default:
				// Unknown inbound signals do not affect this client.
			}
		case <-c.notify:
			if authed {
				if err := c.flush(conn); err != nil {
					return err
				}
			}
		}
	}
}

// flush sends buffered events oldest first. An entry leaves the buffer
// only after its send call has been issued, so a mid-flush failure halts
// the flush with the remainder still queued at the front.
func (c *Client) flush(conn Conn) error {
	for {
		c.mu.Lock()
		if len(c.buf) == 0 {
			c.mu.Unlock()
			return nil
		}
		ev := c.buf[0]
		c.mu.Unlock()

		if err := conn.WriteJSON(envelope{Type: msgEvent, ClientID: c.clientID, Event: &ev}); err != nil {
			return err
		}

		c.mu.Lock()
		c.buf = c.buf[1:]
		c.mu.Unlock()
	}
}

// resolveToken picks the credential for the next connect: a session
// token when the source has one, otherwise the server-issued guest
// token, otherwise empty (requesting a guest identity).
func (c *Client) resolveToken(ctx context.Context) string {
	if c.creds != nil {
		token, err := c.creds.SessionToken(ctx)
		if err == nil && token != "" {
			return token
		}
		if err != nil {
			c.log.Debug("credential source failed", "error", err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.guestToken
}

func (c *Client) setGuestToken(token string) {
	if token == "" {
		return
	}
	c.mu.Lock()
	c.guestToken = token
	c.mu.Unlock()
}

// waitRetry sleeps for d but returns early when ctx is cancelled (false)
// or a reconnect is requested (true).
func (c *Client) waitRetry(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.kick:
		return true
	case <-ctx.Done():
		return false
	}
}
