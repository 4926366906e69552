// Package stream maintains the logical connection to the remote kill
// feed service: authentication, outbound buffering while disconnected,
// in-order flush after the authenticated acknowledgment, and reconnect
// backoff.
package stream

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/sclog/sclog-go/pkg/sclog/event"
)

// Message type markers on the wire.
const (
	msgAuth           = "auth"
	msgEvent          = "event"
	msgAuthenticated  = "authenticated"
	msgReauthenticate = "reauthenticate"
	msgGuestToken     = "guest_token"
	msgCategory       = "category"
)

// envelope is the JSON frame exchanged with the remote service. The
// client identifier accompanies every outbound frame so the server can
// associate events with one logical client across reconnects.
type envelope struct {
	Type     string           `json:"type"`
	Token    string           `json:"token,omitempty"`
	ClientID string           `json:"client_id,omitempty"`
	Event    *event.Finalized `json:"event,omitempty"`
	EventID  string           `json:"event_id,omitempty"`
	Category string           `json:"category,omitempty"`
}

// Conn is one established connection. *websocket.Conn satisfies it.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// Dialer establishes connections; swapped for a fake in tests.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketDialer dials the remote service over a websocket.
type WebSocketDialer struct{}

// Dial implements Dialer.
func (WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CredentialSource supplies the authentication credential at connect
// time. An empty token (or an error) means no session exists and the
// client falls back to its server-issued guest credential.
type CredentialSource interface {
	SessionToken(ctx context.Context) (string, error)
}

// CredentialFunc adapts a function to a CredentialSource.
type CredentialFunc func(ctx context.Context) (string, error)

// SessionToken implements CredentialSource.
func (f CredentialFunc) SessionToken(ctx context.Context) (string, error) {
	return f(ctx)
}
