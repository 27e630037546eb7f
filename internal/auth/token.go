// Package auth holds the current access token and notifies observers when
// it changes.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource provides the access token and change notifications.
type TokenSource interface {
	AccessToken() string
	// Subscribe registers fn for token changes and returns a function that
	// removes it.
	Subscribe(fn func(token string)) (unsubscribe func())
}

// Holder is an in-memory TokenSource.
type Holder struct {
	mu    sync.RWMutex
	token string
	subs  map[int]func(string)
	next  int
}

// NewHolder creates a holder with an initial token.
func NewHolder(token string) *Holder {
	return &Holder{token: token, subs: make(map[int]func(string))}
}

// AccessToken returns the current token.
func (h *Holder) AccessToken() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

// Set replaces the token and notifies subscribers if it changed.
func (h *Holder) Set(token string) {
	h.mu.Lock()
	if token == h.token {
		h.mu.Unlock()
		return
	}
	h.token = token
	subs := make([]func(string), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(token)
	}
}

// Subscribe registers fn for token changes.
func (h *Holder) Subscribe(fn func(token string)) func() {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// Subscribers returns the number of registered observers.
func (h *Holder) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Identity is what the client reads from a token without verifying it; the
// server remains the authority.
type Identity struct {
	UserID    int64
	ExpiresAt time.Time
}

// ErrNoSubject is returned when a token carries no usable subject.
var ErrNoSubject = errors.New("auth: token has no numeric subject")

// Inspect decodes the claims of a JWT without checking its signature.
func Inspect(token string) (Identity, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Identity{}, ErrNoSubject
	}
	ident := Identity{UserID: id}
	if claims.ExpiresAt != nil {
		ident.ExpiresAt = claims.ExpiresAt.Time
	}
	return ident, nil
}
