package messenger

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/auth"
	"github.com/matheus3301/chatsync/internal/transport"
	"github.com/matheus3301/chatsync/internal/transport/transporttest"
	"github.com/matheus3301/chatsync/internal/wire"
	"github.com/stretchr/testify/require"
)

const testUser = 9

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// server scripts conversation fixtures on a fake channel.
type server struct {
	mu    sync.Mutex
	convs map[int64]fixture
}

type fixture struct {
	typ    string
	total  int
	unread int
}

func newServer() *server {
	return &server{convs: map[int64]fixture{}}
}

func (sv *server) add(id int64, typ string, total, unread int) {
	sv.mu.Lock()
	sv.convs[id] = fixture{typ: typ, total: total, unread: unread}
	sv.mu.Unlock()
}

func (sv *server) install(f *transporttest.Fake) {
	f.Handle(transport.MethodGetConversation, func(args []json.RawMessage) (any, error) {
		var id int64
		var limit int
		if err := json.Unmarshal(args[0], &id); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(args[1], &limit); err != nil {
			return nil, err
		}
		sv.mu.Lock()
		fx := sv.convs[id]
		sv.mu.Unlock()
		if fx.typ == "" {
			fx.typ = "conversation"
		}
		conv := wire.Conversation{ID: id, Name: "conv", Type: fx.typ}
		n := min(fx.total, limit)
		for i := range n {
			conv.Messages = append(conv.Messages, wire.Message{
				ID:             id*1000 + int64(i+1),
				ConversationID: id,
				Body:           "m",
				AuthorID:       1,
				CreatedAt:      baseTime.Add(time.Duration(i) * time.Minute),
				Unread:         i >= n-fx.unread,
			})
		}
		return conv, nil
	})
	f.Reply(transport.MethodGetConversationSettings, wire.Settings{Notifications: true})
	f.Reply(transport.MethodGetGroupSettings, wire.Settings{Notifications: true, OwnerID: testUser, Members: []wire.Member{{ID: testUser, Name: "me"}}})
	f.Handle(transport.MethodSendMessage, func(args []json.RawMessage) (any, error) {
		var req wire.SendRequest
		if err := json.Unmarshal(args[0], &req); err != nil {
			return nil, err
		}
		return wire.Message{ID: 500, ConversationID: req.ConversationID, Body: req.Body, Token: req.Token, AuthorID: testUser, CreatedAt: time.Now()}, nil
	})
}

type recordingNotifier struct {
	mu    sync.Mutex
	sound []int64
}

func (n *recordingNotifier) MessageSent(id int64) {
	n.mu.Lock()
	n.sound = append(n.sound, id)
	n.mu.Unlock()
}

type harness struct {
	store  *Store
	fake   *transporttest.Fake
	server *server
	tokens *auth.Holder
	dials  []*transporttest.Fake
	mu     sync.Mutex
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{server: newServer(), tokens: auth.NewHolder("token-1")}
	dialer := transport.DialerFunc(func(_ context.Context, _ string, userID int64, _ string) (transport.Transport, error) {
		f := transporttest.NewFake(userID)
		h.server.install(f)
		h.mu.Lock()
		h.dials = append(h.dials, f)
		h.mu.Unlock()
		return f, nil
	})
	h.store = New(dialer, h.tokens, opts)
	require.NoError(t, h.store.InitSocket(context.Background(), "ws://chat.test/socket", testUser))
	h.fake = h.dials[0]
	t.Cleanup(func() { _ = h.store.Close() })
	return h
}

func (h *harness) dialCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.dials)
}

func (h *harness) roster(t *testing.T, conversations []wire.RosterEntry, groups []wire.RosterEntry) {
	t.Helper()
	h.fake.Reply(transport.MethodGetMessengerInfo, wire.MessengerInfo{Conversations: conversations, Groups: groups})
	require.NoError(t, h.store.LoadMessengerInfo(context.Background()))
}
