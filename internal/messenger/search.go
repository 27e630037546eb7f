package messenger

import (
	"context"
	"slices"
	"strings"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/transport"
	"github.com/matheus3301/chatsync/internal/wire"
	"go.uber.org/zap"
)

// SearchContacts looks up contacts matching query and stores them as the
// search results. On failure the previous results are kept.
func (s *Store) SearchContacts(ctx context.Context, query string) ([]model.Contact, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		s.mu.Lock()
		s.results = nil
		s.mu.Unlock()
		s.bus.Notify(bus.SearchUpdated, nil)
		return nil, nil
	}

	found, err := s.search.Run(ctx, "search:"+query, func(ctx context.Context) ([]model.Contact, error) {
		contacts, err := call[[]wire.Contact](ctx, s, transport.MethodSearchContacts, query)
		if err != nil {
			return nil, err
		}
		out := make([]model.Contact, 0, len(contacts))
		for _, c := range contacts {
			out = append(out, c.ToModel())
		}
		return out, nil
	})
	if err != nil {
		s.logger.Warn("failed to search contacts", zap.Error(err), zap.String("query", query))
		return nil, err
	}

	s.mu.Lock()
	s.results = found
	s.mu.Unlock()
	s.bus.Notify(bus.SearchUpdated, nil)
	return slices.Clone(found), nil
}

// SearchResults returns the last contact search results.
func (s *Store) SearchResults() []model.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.results)
}
