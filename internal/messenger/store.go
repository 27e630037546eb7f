// Package messenger is the single owner of the client-side chat model. It
// composes the roster, the loaded conversations and the push dispatcher,
// and exposes the operations that are the only way to mutate them.
package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matheus3301/chatsync/internal/auth"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/convstore"
	"github.com/matheus3301/chatsync/internal/metrics"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/outbox"
	"github.com/matheus3301/chatsync/internal/reqcache"
	"github.com/matheus3301/chatsync/internal/roster"
	"github.com/matheus3301/chatsync/internal/status"
	pushsync "github.com/matheus3301/chatsync/internal/sync"
	"github.com/matheus3301/chatsync/internal/throttle"
	"github.com/matheus3301/chatsync/internal/transport"
	"github.com/matheus3301/chatsync/internal/upload"
	"github.com/matheus3301/chatsync/internal/wire"
	"go.uber.org/zap"
)

var (
	ErrConversationNotFound = errors.New("messenger: conversation not found")
	ErrMessageNotFound      = errors.New("messenger: message not found")
	ErrGroupNotFound        = errors.New("messenger: group not found")
	ErrGroupNotActive       = errors.New("messenger: group settings not loaded")
	ErrNotConnected         = errors.New("messenger: not connected")
)

// Defaults applied by New for zero Options fields.
const (
	DefaultTypingQuiet   = 5 * time.Second
	DefaultTypingWindow  = 3 * time.Second
	DefaultContactPrefix = "user-"
)

// Notifier plays local cues. It is outside the model.
type Notifier interface {
	MessageSent(conversationID int64)
}

// Options configures a Store.
type Options struct {
	PageSize     int
	InitialLimit int
	// TypingQuiet is how long a typing flag survives without a new signal.
	TypingQuiet time.Duration
	// TypingWindow is the minimum interval between outbound typing calls
	// for one conversation.
	TypingWindow time.Duration
	// ContactPrefix marks recipients staged from a contact search.
	ContactPrefix string

	Bus      *bus.Bus
	Metrics  *metrics.Metrics
	Uploader outbox.Uploader
	Notifier Notifier
	Logger   *zap.Logger
}

// Store is the conversation synchronization engine. All model state is
// guarded by mu; network calls are made without it and their results are
// applied in a single critical section.
type Store struct {
	dialer   transport.Dialer
	tokens   auth.TokenSource
	bus      *bus.Bus
	metrics  *metrics.Metrics
	notifier Notifier
	logger   *zap.Logger
	opts     Options

	conv    *convstore.Store
	engine  *pushsync.Engine
	outbox  *outbox.Sender
	tracker *upload.Tracker
	typing  *throttle.Limiter
	state   *status.Machine
	info    *reqcache.Cache[wire.MessengerInfo]
	search  *reqcache.Cache[[]model.Contact]

	connMu      sync.Mutex
	chMu        sync.RWMutex
	channel     transport.Transport
	unsubToken  func()
	channelUser atomic.Int64

	mu            sync.Mutex
	roster        *roster.Roster
	partial       map[int64]bool
	groups        map[int64]GroupState
	selectedID    int64
	results       []model.Contact
	selectedMsgs  map[int64]struct{}
	forwardMode   bool
	replyTo       *model.Message
	editTarget    *model.Message
	knownContacts map[int64]struct{}
	stagedContact map[int64]model.Contact
}

// New creates a store that opens channels through dialer and
// authenticates them with tokens.
func New(dialer transport.Dialer, tokens auth.TokenSource, opts Options) *Store {
	if opts.PageSize <= 0 {
		opts.PageSize = convstore.DefaultPageSize
	}
	if opts.InitialLimit <= 0 {
		opts.InitialLimit = opts.PageSize
	}
	if opts.TypingQuiet <= 0 {
		opts.TypingQuiet = DefaultTypingQuiet
	}
	if opts.TypingWindow == 0 {
		opts.TypingWindow = DefaultTypingWindow
	}
	if opts.ContactPrefix == "" {
		opts.ContactPrefix = DefaultContactPrefix
	}
	if opts.Bus == nil {
		opts.Bus = bus.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Store{
		dialer:        dialer,
		tokens:        tokens,
		bus:           opts.Bus,
		metrics:       opts.Metrics,
		notifier:      opts.Notifier,
		logger:        opts.Logger,
		opts:          opts,
		tracker:       upload.NewTracker(opts.Bus),
		typing:        throttle.New(opts.TypingWindow),
		state:         status.NewMachine(opts.Bus),
		info:          reqcache.New[wire.MessengerInfo](),
		search:        reqcache.New[[]model.Contact](),
		roster:        roster.New(),
		partial:       make(map[int64]bool),
		groups:        make(map[int64]GroupState),
		selectedMsgs:  make(map[int64]struct{}),
		knownContacts: make(map[int64]struct{}),
		stagedContact: make(map[int64]model.Contact),
	}
	s.conv = convstore.New(&s.mu, fetcher{s}, convstore.Options{
		PageSize: opts.PageSize,
		UserID:   s.channelUser.Load,
		OnLoaded: s.onLoaded,
		Logger:   opts.Logger.Named("convstore"),
	})
	s.engine = pushsync.NewEngine(inbound{s}, opts.Metrics, opts.Logger.Named("sync"))
	s.outbox = outbox.NewSender(outboxStore{s}, sendClient{s}, opts.Uploader, s.tracker, opts.Bus, opts.Logger.Named("outbox"))

	s.conv.Loads().OnShared(func(string) { s.metrics.Shared("conversation") })
	s.info.OnShared(func(string) { s.metrics.Shared("messenger_info") })
	s.search.OnShared(func(string) { s.metrics.Shared("search") })
	return s
}

// Subscribe returns change events whose kind starts with namespace.
func (s *Store) Subscribe(namespace string, bufSize int) (<-chan bus.Event, func()) {
	return s.bus.Subscribe(namespace, bufSize)
}

func (s *Store) notifyConversation(id int64) {
	s.bus.Notify(bus.ConversationUpdated, bus.ConversationChange{ConversationID: id})
}

func (s *Store) current() (transport.Transport, error) {
	s.chMu.RLock()
	defer s.chMu.RUnlock()
	if s.channel == nil {
		return nil, ErrNotConnected
	}
	return s.channel, nil
}

// call issues method on the current channel and decodes the result.
// The caller must not hold mu.
func call[T any](ctx context.Context, s *Store, method string, args ...any) (T, error) {
	t, err := s.current()
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s: %w", method, err)
	}
	v, err := transport.Call[T](ctx, t, method, args...)
	s.metrics.Request(method, err)
	if err != nil {
		return v, fmt.Errorf("%s: %w", method, err)
	}
	return v, nil
}

// invoke issues method and ignores its result.
func (s *Store) invoke(ctx context.Context, method string, args ...any) error {
	_, err := call[json.RawMessage](ctx, s, method, args...)
	return err
}

// fetcher loads conversations for the conversation store.
type fetcher struct{ s *Store }

func (f fetcher) FetchConversation(ctx context.Context, id int64, limit int) (*model.Conversation, error) {
	conv, err := call[wire.Conversation](ctx, f.s, transport.MethodGetConversation, id, limit)
	if err != nil {
		return nil, err
	}
	return conv.ToModel(), nil
}

func (f fetcher) FetchSettings(ctx context.Context, id int64, group bool) (model.Settings, error) {
	method := transport.MethodGetConversationSettings
	if group {
		method = transport.MethodGetGroupSettings
	}
	settings, err := call[wire.Settings](ctx, f.s, method, id)
	if err != nil {
		return model.Settings{}, err
	}
	return settings.ToModel(), nil
}

// ensureConversation returns the entry for id, creating a partial one from
// the roster summary if it is not loaded. Caller holds mu.
func (s *Store) ensureConversation(id int64) *model.Conversation {
	if conv, ok := s.conv.Get(id); ok {
		return conv
	}
	conv := &model.Conversation{ID: id, Type: model.TypeConversation}
	if e, ok := s.roster.Get(id); ok {
		conv.Name = e.Name
		conv.Type = e.Type
	}
	s.partial[id] = true
	return s.conv.Put(conv)
}

// loaded reports whether id has been fetched from the server. Caller
// holds mu.
func (s *Store) loaded(id int64) bool {
	_, ok := s.conv.Get(id)
	return ok && !s.partial[id]
}

// onLoaded runs under mu after the conversation store applied a load.
func (s *Store) onLoaded(conv *model.Conversation) {
	delete(s.partial, conv.ID)
	e := s.roster.Ensure(conv.ID, conv.Name, conv.Type)
	e.UnreadCount = conv.UnreadCount()
	if conv.IsGroup() {
		s.groups[conv.ID] = GroupActive
	}
	s.notifyConversation(conv.ID)
	s.bus.Notify(bus.RosterUpdated, nil)
}
