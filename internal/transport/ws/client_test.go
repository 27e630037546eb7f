package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/chatsync/internal/transport"
)

// testServer answers requests by method and records auth frames.
type testServer struct {
	t       *testing.T
	srv     *httptest.Server
	tokens  chan string
	headers chan http.Header
	conns   chan *websocket.Conn
}

func newTestServer(t *testing.T) *testServer {
	ts := &testServer{
		t:       t,
		tokens:  make(chan string, 4),
		headers: make(chan http.Header, 1),
		conns:   make(chan *websocket.Conn, 1),
	}
	upgrader := websocket.Upgrader{}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.headers <- r.Header.Clone()
		if r.URL.Query().Get("userId") != "9" {
			http.Error(w, "bad user", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.conns <- conn
		for {
			var f Frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			switch f.Type {
			case frameAuth:
				ts.tokens <- f.Token
			case frameRequest:
				resp := Frame{Type: frameResponse, ID: f.ID}
				switch f.Method {
				case "echo":
					resp.Result = f.Args[0]
				default:
					resp.Error = &FrameError{Code: "not_found", Message: "unknown method"}
				}
				_ = conn.WriteJSON(resp)
			}
		}
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func dial(t *testing.T, ts *testServer) *Client {
	t.Helper()
	c, err := Dial(context.Background(), ts.url(), 9, "tok", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRequestRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	c := dial(t, ts)

	if h := <-ts.headers; h.Get("Authorization") != "Bearer tok" {
		t.Errorf("Authorization = %q, want Bearer tok", h.Get("Authorization"))
	}

	got, err := transport.Call[map[string]int](context.Background(), c, "echo", map[string]int{"id": 5})
	if err != nil {
		t.Fatal(err)
	}
	if got["id"] != 5 {
		t.Errorf("echo = %v, want id=5", got)
	}
}

func TestRequestRemoteError(t *testing.T) {
	ts := newTestServer(t)
	c := dial(t, ts)

	_, err := c.Request(context.Background(), "nope")
	var remote *transport.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("err = %v, want RemoteError", err)
	}
	if remote.Code != "not_found" || remote.Method != "nope" {
		t.Errorf("remote = %+v", remote)
	}
}

func TestEventsDeliveredInOrder(t *testing.T) {
	ts := newTestServer(t)
	c := dial(t, ts)
	conn := <-ts.conns

	got := make(chan int, 3)
	unsub := c.Subscribe("message.new", func(p json.RawMessage) {
		var v struct{ N int }
		_ = json.Unmarshal(p, &v)
		got <- v.N
	})
	defer unsub()

	for i := 1; i <= 3; i++ {
		payload, _ := json.Marshal(map[string]int{"N": i})
		if err := conn.WriteJSON(Frame{Type: frameEvent, Event: "message.new", Payload: payload}); err != nil {
			t.Fatal(err)
		}
	}
	for want := 1; want <= 3; want++ {
		select {
		case n := <-got:
			if n != want {
				t.Errorf("event %d arrived as %d", want, n)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for event")
		}
	}
}

func TestSetAccessTokenSendsAuthFrame(t *testing.T) {
	ts := newTestServer(t)
	c := dial(t, ts)

	c.SetAccessToken("fresh")
	select {
	case tok := <-ts.tokens:
		if tok != "fresh" {
			t.Errorf("token = %q, want fresh", tok)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for auth frame")
	}
}

func TestRequestAfterClose(t *testing.T) {
	ts := newTestServer(t)
	c := dial(t, ts)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Request(context.Background(), "echo", 1); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}
