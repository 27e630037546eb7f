// Package grpcrpc implements the server channel over gRPC using generic
// protobuf Struct messages: a unary Request method and a server stream of
// pushed events.
package grpcrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/matheus3301/chatsync/internal/transport"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Full method names served by the channel service.
const (
	RequestMethod = "/chatsync.v1.Channel/Request"
	EventsMethod  = "/chatsync.v1.Channel/Events"
)

var eventsDesc = &grpc.StreamDesc{StreamName: "Events", ServerStreams: true}

// Client is a transport.Transport over a gRPC connection.
type Client struct {
	conn   *grpc.ClientConn
	userID int64
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.RWMutex
	token    string
	handlers map[string]map[int]transport.Handler
	nextSub  int
	closed   bool
}

// Dialer opens gRPC channels.
type Dialer struct {
	Logger  *zap.Logger
	Options []grpc.DialOption
}

// Dial implements transport.Dialer.
func (d Dialer) Dial(ctx context.Context, target string, userID int64, token string) (transport.Transport, error) {
	return Dial(ctx, target, userID, token, d.Logger, d.Options...)
}

// Dial connects to target as userID and opens the event stream. Without
// options the connection is plaintext.
func Dial(ctx context.Context, target string, userID int64, token string, logger *zap.Logger, opts ...grpc.DialOption) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial grpc: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &Client{
		conn:     conn,
		userID:   userID,
		logger:   logger,
		cancel:   cancel,
		done:     make(chan struct{}),
		token:    token,
		handlers: make(map[string]map[int]transport.Handler),
	}

	stream, err := conn.NewStream(c.outgoing(streamCtx), eventsDesc, EventsMethod)
	if err != nil {
		cancel()
		_ = conn.Close()
		return nil, fmt.Errorf("open event stream: %w", err)
	}
	if err := stream.SendMsg(&structpb.Struct{}); err != nil {
		cancel()
		_ = conn.Close()
		return nil, fmt.Errorf("open event stream: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		c.logger.Debug("close send on event stream", zap.Error(err))
	}
	go c.recvLoop(stream)
	return c, nil
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	c.mu.RLock()
	tok := c.token
	c.mu.RUnlock()
	md := metadata.Pairs("x-user-id", strconv.FormatInt(c.userID, 10))
	if tok != "" {
		md.Append("authorization", "Bearer "+tok)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

// UserID implements transport.Transport.
func (c *Client) UserID() int64 {
	return c.userID
}

// Request implements transport.Transport.
func (c *Client) Request(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, transport.ErrClosed
	}

	list := make([]any, 0, len(args))
	for _, a := range args {
		v, err := toPlain(a)
		if err != nil {
			return nil, fmt.Errorf("encode %s args: %w", method, err)
		}
		list = append(list, v)
	}
	req, err := structpb.NewStruct(map[string]any{"method": method, "args": list})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}

	var resp structpb.Value
	if err := c.conn.Invoke(c.outgoing(ctx), RequestMethod, req, &resp); err != nil {
		if st, ok := grpcstatus.FromError(err); ok {
			return nil, &transport.RemoteError{Method: method, Code: st.Code().String(), Message: st.Message()}
		}
		return nil, err
	}
	raw, err := protojson.Marshal(&resp)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", method, err)
	}
	return raw, nil
}

// toPlain turns a to the generic shape structpb accepts by a JSON round trip.
func toPlain(a any) (any, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
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

// SetAccessToken implements transport.Transport. The token applies to
// subsequent requests; the event stream keeps the credential it opened with.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Done implements transport.Transport. It is closed when the event stream
// ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close implements transport.Transport.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) recvLoop(stream grpc.ClientStream) {
	defer close(c.done)
	for {
		var msg structpb.Struct
		if err := stream.RecvMsg(&msg); err != nil {
			c.logger.Debug("event stream ended", zap.Error(err))
			return
		}
		fields := msg.GetFields()
		event := fields["event"].GetStringValue()
		payload := []byte("null")
		if p, ok := fields["payload"]; ok {
			raw, err := protojson.Marshal(p)
			if err != nil {
				c.logger.Warn("undecodable event payload", zap.String("event", event), zap.Error(err))
				continue
			}
			payload = raw
		}

		c.mu.RLock()
		hs := make([]transport.Handler, 0, len(c.handlers[event]))
		for _, h := range c.handlers[event] {
			hs = append(hs, h)
		}
		c.mu.RUnlock()
		for _, h := range hs {
			h(payload)
		}
	}
}
