// Package convstore keeps the loaded conversations and fetches them page by
// page through a request cache.
package convstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/reqcache"
	"go.uber.org/zap"
)

// DefaultPageSize is the number of extra messages requested per page.
const DefaultPageSize = 30

// Fetcher retrieves conversations and their settings from the server.
type Fetcher interface {
	FetchConversation(ctx context.Context, id int64, limit int) (*model.Conversation, error)
	FetchSettings(ctx context.Context, id int64, group bool) (model.Settings, error)
}

// Options configures a Store.
type Options struct {
	PageSize int
	// UserID returns the identity loads are keyed by.
	UserID func() int64
	// OnLoaded runs with the store lock held after a load is applied.
	OnLoaded func(*model.Conversation)
	Logger   *zap.Logger
}

// Store is the keyed collection of loaded conversations.
//
// Locking: the store shares mu with its owner. Get, Put, Each and Len
// expect the caller to hold it; Load, LoadOlder and Settings
// take it themselves and must be called without it.
type Store struct {
	mu       sync.Locker
	fetcher  Fetcher
	loads    *reqcache.Cache[*model.Conversation]
	settings *reqcache.Cache[model.Settings]
	pageSize int
	userID   func() int64
	onLoaded func(*model.Conversation)
	logger   *zap.Logger

	convs   map[int64]*model.Conversation
	issued  map[int64]uint64
	applied map[int64]uint64
}

// New creates a store guarded by mu.
func New(mu sync.Locker, fetcher Fetcher, opts Options) *Store {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.UserID == nil {
		opts.UserID = func() int64 { return 0 }
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Store{
		mu:       mu,
		fetcher:  fetcher,
		loads:    reqcache.New[*model.Conversation](),
		settings: reqcache.New[model.Settings](),
		pageSize: opts.PageSize,
		userID:   opts.UserID,
		onLoaded: opts.OnLoaded,
		logger:   opts.Logger,
		convs:    make(map[int64]*model.Conversation),
		issued:   make(map[int64]uint64),
		applied:  make(map[int64]uint64),
	}
}

// Loads exposes the conversation request cache for hook registration.
func (s *Store) Loads() *reqcache.Cache[*model.Conversation] {
	return s.loads
}

func (s *Store) loadKey(id int64) string {
	return fmt.Sprintf("conversation:%d:%d", s.userID(), id)
}

// Loading reports whether a load for id is in flight.
func (s *Store) Loading(id int64) bool {
	return s.loads.InFlight(s.loadKey(id))
}

// Load fetches the limit most recent messages of conversation id, attaches
// its settings and replaces any prior entry. Concurrent loads of the same id
// share one call. A load that completes after a later-issued load for the
// same id has been applied is discarded.
func (s *Store) Load(ctx context.Context, id int64, limit int) (*model.Conversation, error) {
	if limit <= 0 {
		limit = s.pageSize
	}
	return s.loads.Run(ctx, s.loadKey(id), func(ctx context.Context) (*model.Conversation, error) {
		s.mu.Lock()
		s.issued[id]++
		seq := s.issued[id]
		s.mu.Unlock()

		conv, err := s.fetcher.FetchConversation(ctx, id, limit)
		if err != nil {
			return nil, fmt.Errorf("fetch conversation %d: %w", id, err)
		}
		if conv.ID == 0 {
			conv.ID = id
		}
		conv.AllMessagesFetched = len(conv.Messages) < limit

		settings, err := s.Settings(ctx, conv.ID, conv.IsGroup())
		if err != nil {
			s.logger.Warn("failed to load conversation settings", zap.Error(err), zap.Int64("conversation_id", id))
		} else {
			conv.Settings = settings
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if seq <= s.applied[id] {
			s.logger.Debug("discarding stale conversation load", zap.Int64("conversation_id", id), zap.Uint64("seq", seq))
			return s.convs[id], nil
		}
		s.applied[id] = seq
		s.replace(conv)
		if s.onLoaded != nil {
			s.onLoaded(conv)
		}
		return conv, nil
	})
}

// replace installs conv, carrying over unconfirmed messages of the entry it
// replaces so that pending sends survive a reload.
func (s *Store) replace(conv *model.Conversation) {
	prev, ok := s.convs[conv.ID]
	if ok {
		prev.CancelTyping()
		for _, tmp := range prev.Temporaries() {
			if !hasToken(conv, tmp.Token) {
				conv.Append(tmp)
			}
		}
	}
	s.convs[conv.ID] = conv
}

// LoadOlder extends the loaded window of conversation id by one page. It is
// a no-op when the conversation is not loaded, fully fetched, or already
// loading.
func (s *Store) LoadOlder(ctx context.Context, id int64) error {
	s.mu.Lock()
	conv, ok := s.convs[id]
	if !ok || conv.AllMessagesFetched || s.Loading(id) {
		s.mu.Unlock()
		return nil
	}
	limit := persistedCount(conv) + s.pageSize
	s.mu.Unlock()

	_, err := s.Load(ctx, id, limit)
	return err
}

func hasToken(conv *model.Conversation, token string) bool {
	if token == "" {
		return false
	}
	for _, m := range conv.Messages {
		if m.Token == token {
			return true
		}
	}
	return false
}

func persistedCount(conv *model.Conversation) int {
	n := 0
	for _, m := range conv.Messages {
		if !m.IsTemporary() {
			n++
		}
	}
	return n
}

// Settings fetches the settings of a conversation or group, deduplicated
// per id.
func (s *Store) Settings(ctx context.Context, id int64, group bool) (model.Settings, error) {
	kind := "conversation"
	if group {
		kind = "group"
	}
	key := fmt.Sprintf("settings:%s:%d:%d", kind, s.userID(), id)
	return s.settings.Run(ctx, key, func(ctx context.Context) (model.Settings, error) {
		return s.fetcher.FetchSettings(ctx, id, group)
	})
}

// Get returns the loaded conversation id. Caller holds the lock.
func (s *Store) Get(id int64) (*model.Conversation, bool) {
	c, ok := s.convs[id]
	return c, ok
}

// Put inserts conv if no entry exists for its id and returns the entry.
// Caller holds the lock.
func (s *Store) Put(conv *model.Conversation) *model.Conversation {
	if cur, ok := s.convs[conv.ID]; ok {
		return cur
	}
	s.convs[conv.ID] = conv
	return conv
}

// Each calls fn for every loaded conversation. Caller holds the lock.
func (s *Store) Each(fn func(*model.Conversation)) {
	for _, c := range s.convs {
		fn(c)
	}
}

// Len returns the number of loaded conversations. Caller holds the lock.
func (s *Store) Len() int {
	return len(s.convs)
}
