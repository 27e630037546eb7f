// Package transporttest provides a scripted in-memory transport for tests.
package transporttest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/matheus3301/chatsync/internal/transport"
)

// Call is one recorded request.
type Call struct {
	Method string
	Args   []json.RawMessage
}

// Arg decodes argument i into v.
func (c Call) Arg(i int, v any) error {
	return json.Unmarshal(c.Args[i], v)
}

// HandlerFunc answers a request.
type HandlerFunc func(args []json.RawMessage) (any, error)

// Fake is a transport.Transport whose responses are scripted per method.
// Methods without a handler succeed with a null result.
type Fake struct {
	mu       sync.Mutex
	userID   int64
	handlers map[string]HandlerFunc
	gates    map[string]chan struct{}
	calls    []Call
	subs     map[string]map[int]transport.Handler
	nextSub  int
	tokens   []string
	closed   bool
	done     chan struct{}
}

var _ transport.Transport = (*Fake)(nil)

// NewFake creates a fake channel for userID.
func NewFake(userID int64) *Fake {
	return &Fake{
		userID:   userID,
		handlers: make(map[string]HandlerFunc),
		gates:    make(map[string]chan struct{}),
		subs:     make(map[string]map[int]transport.Handler),
		done:     make(chan struct{}),
	}
}

// Handle scripts method.
func (f *Fake) Handle(method string, fn HandlerFunc) {
	f.mu.Lock()
	f.handlers[method] = fn
	f.mu.Unlock()
}

// Reply scripts method to return v.
func (f *Fake) Reply(method string, v any) {
	f.Handle(method, func([]json.RawMessage) (any, error) { return v, nil })
}

// Fail scripts method to return err.
func (f *Fake) Fail(method string, err error) {
	f.Handle(method, func([]json.RawMessage) (any, error) { return nil, err })
}

// Gate makes calls to method block until the returned channel is closed.
func (f *Fake) Gate(method string) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[method] = ch
	f.mu.Unlock()
	return ch
}

// Ungate removes the gate of method without releasing blocked calls.
func (f *Fake) Ungate(method string) {
	f.mu.Lock()
	delete(f.gates, method)
	f.mu.Unlock()
}

// Request implements transport.Transport.
func (f *Fake) Request(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	call := Call{Method: method}
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, raw)
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, transport.ErrClosed
	}
	f.calls = append(f.calls, call)
	gate := f.gates[method]
	handler := f.handlers[method]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if handler == nil {
		return json.RawMessage("null"), nil
	}
	v, err := handler(call.Args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// Subscribe implements transport.Transport.
func (f *Fake) Subscribe(event string, handler transport.Handler) func() {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	if f.subs[event] == nil {
		f.subs[event] = make(map[int]transport.Handler)
	}
	f.subs[event][id] = handler
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs[event], id)
		f.mu.Unlock()
	}
}

// Emit delivers a push synchronously to the subscribers of event.
func (f *Fake) Emit(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	hs := make([]transport.Handler, 0, len(f.subs[event]))
	for _, h := range f.subs[event] {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(raw)
	}
	return nil
}

// Subscribers returns the number of handlers bound to event.
func (f *Fake) Subscribers(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[event])
}

// SetAccessToken implements transport.Transport.
func (f *Fake) SetAccessToken(token string) {
	f.mu.Lock()
	f.tokens = append(f.tokens, token)
	f.mu.Unlock()
}

// Tokens returns every token pushed so far.
func (f *Fake) Tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

// UserID implements transport.Transport.
func (f *Fake) UserID() int64 {
	return f.userID
}

// Done implements transport.Transport.
func (f *Fake) Done() <-chan struct{} {
	return f.done
}

// Close implements transport.Transport. Calling it from a test simulates
// the server dropping the channel.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Calls returns the recorded calls of method, or all calls if method is "".
func (f *Fake) Calls(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// CallCount returns the number of calls of method.
func (f *Fake) CallCount(method string) int {
	return len(f.Calls(method))
}
