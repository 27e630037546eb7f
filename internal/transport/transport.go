package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrClosed is returned by calls on a closed channel.
var ErrClosed = errors.New("transport: channel closed")

// Handler receives the raw payload of an inbound push. Handlers for one
// channel are invoked sequentially in arrival order.
type Handler func(payload json.RawMessage)

// Transport is the persistent bidirectional channel to the server.
type Transport interface {
	// Request performs a request/response call and returns the raw result.
	Request(ctx context.Context, method string, args ...any) (json.RawMessage, error)
	// Subscribe registers handler for pushes named event. The returned
	// function removes the registration.
	Subscribe(event string, handler Handler) (unsubscribe func())
	// SetAccessToken replaces the credential presented to the server.
	SetAccessToken(token string)
	// UserID is the identity the channel was opened for.
	UserID() int64
	// Done is closed once the channel stops delivering, whether the server
	// dropped it or Close was called.
	Done() <-chan struct{}
	// Close releases the channel. Further calls fail with ErrClosed.
	Close() error
}

// Alive reports whether t is still delivering.
func Alive(t Transport) bool {
	select {
	case <-t.Done():
		return false
	default:
		return true
	}
}

// Dialer opens a channel for userID at url.
type Dialer interface {
	Dial(ctx context.Context, url string, userID int64, token string) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string, userID int64, token string) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, url string, userID int64, token string) (Transport, error) {
	return f(ctx, url, userID, token)
}

// RemoteError is a call rejected by the server.
type RemoteError struct {
	Method  string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: %s", e.Method, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Method, e.Message, e.Code)
}

// Decode unmarshals a raw result into T.
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode result: %w", err)
	}
	return v, nil
}

// Call performs a request and decodes its result into T.
func Call[T any](ctx context.Context, t Transport, method string, args ...any) (T, error) {
	raw, err := t.Request(ctx, method, args...)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](raw)
}
