// Package ws implements the server channel over a WebSocket carrying JSON
// frames: requests and responses correlated by id, plus pushed events.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/matheus3301/chatsync/internal/transport"
	"go.uber.org/zap"
)

// Frame is the wire envelope in both directions.
type Frame struct {
	Type    string            `json:"type"`
	ID      string            `json:"id,omitempty"`
	Method  string            `json:"method,omitempty"`
	Args    []json.RawMessage `json:"args,omitempty"`
	Result  json.RawMessage   `json:"result,omitempty"`
	Error   *FrameError       `json:"error,omitempty"`
	Event   string            `json:"event,omitempty"`
	Payload json.RawMessage   `json:"payload,omitempty"`
	Token   string            `json:"token,omitempty"`
}

// FrameError is a rejected request.
type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	frameRequest  = "request"
	frameResponse = "response"
	frameEvent    = "event"
	frameAuth     = "auth"
)

// Client is a transport.Transport over one WebSocket connection.
type Client struct {
	conn   *websocket.Conn
	userID int64
	logger *zap.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once

	mu       sync.Mutex
	pending  map[string]chan Frame
	handlers map[string]map[int]transport.Handler
	nextSub  int
	closed   bool
	done     chan struct{}
}

// Dialer opens WebSocket channels.
type Dialer struct {
	Logger *zap.Logger
}

// Dial implements transport.Dialer.
func (d Dialer) Dial(ctx context.Context, rawURL string, userID int64, token string) (transport.Transport, error) {
	return Dial(ctx, rawURL, userID, token, d.Logger)
}

// Dial connects to rawURL as userID presenting token.
func Dial(ctx context.Context, rawURL string, userID int64, token string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("userId", strconv.FormatInt(userID, 10))
	u.RawQuery = q.Encode()

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}

	c := &Client{
		conn:     conn,
		userID:   userID,
		logger:   logger,
		pending:  make(map[string]chan Frame),
		handlers: make(map[string]map[int]transport.Handler),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// UserID implements transport.Transport.
func (c *Client) UserID() int64 {
	return c.userID
}

// Request implements transport.Transport.
func (c *Client) Request(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	frame := Frame{Type: frameRequest, ID: uuid.NewString(), Method: method}
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("encode %s args: %w", method, err)
		}
		frame.Args = append(frame.Args, raw)
	}

	ch := make(chan Frame, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, transport.ErrClosed
	}
	c.pending[frame.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, frame.ID)
		c.mu.Unlock()
	}()

	if err := c.write(frame); err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, transport.ErrClosed
		}
		if resp.Error != nil {
			return nil, &transport.RemoteError{Method: method, Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, transport.ErrClosed
	}
}

// Subscribe implements transport.Transport.
func (c *Client) Subscribe(event string, handler transport.Handler) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]transport.Handler)
	}
	c.handlers[event][id] = handler
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.handlers[event], id)
		c.mu.Unlock()
	}
}

// SetAccessToken implements transport.Transport.
func (c *Client) SetAccessToken(token string) {
	if err := c.write(Frame{Type: frameAuth, Token: token}); err != nil {
		c.logger.Warn("failed to push access token", zap.Error(err))
	}
}

// Done implements transport.Transport. It is closed when the read loop
// exits.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close implements transport.Transport.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
		<-c.done
	})
	return err
}

func (c *Client) write(f Frame) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	}()

	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		switch f.Type {
		case frameResponse:
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			c.mu.Unlock()
			if ok {
				ch <- f
			}
		case frameEvent:
			c.dispatch(f)
		default:
			c.logger.Debug("ignoring frame", zap.String("type", f.Type))
		}
	}
}

// dispatch runs the handlers of one event on the read goroutine so that
// events are applied in arrival order.
func (c *Client) dispatch(f Frame) {
	c.mu.Lock()
	hs := make([]transport.Handler, 0, len(c.handlers[f.Event]))
	for _, h := range c.handlers[f.Event] {
		hs = append(hs, h)
	}
	c.mu.Unlock()
	for _, h := range hs {
		h(f.Payload)
	}
}
