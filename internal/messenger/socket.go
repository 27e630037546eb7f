package messenger

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/transport"
	"go.uber.org/zap"
)

// InitSocket opens the server channel for userID. It is a no-op while a
// live channel for the same user exists. Otherwise the previous channel
// and its token subscription are released before the new ones are
// installed.
func (s *Store) InitSocket(ctx context.Context, url string, userID int64) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if t, err := s.current(); err == nil && t.UserID() == userID && transport.Alive(t) {
		return nil
	}
	s.release()

	s.transition(status.Connecting)
	token := s.tokens.AccessToken()
	t, err := s.dialer.Dial(ctx, url, userID, token)
	if err != nil {
		s.transition(status.Error)
		return fmt.Errorf("dial %s: %w", url, err)
	}

	s.engine.Bind(t)
	unsub := s.tokens.Subscribe(t.SetAccessToken)
	if cur := s.tokens.AccessToken(); cur != token {
		t.SetAccessToken(cur)
	}

	s.chMu.Lock()
	s.channel = t
	s.unsubToken = unsub
	s.chMu.Unlock()
	s.channelUser.Store(userID)

	s.transition(status.Connected)
	s.logger.Info("channel connected", zap.String("url", url), zap.Int64("user_id", userID))
	go s.watch(t)
	return nil
}

// watch moves to Error when t dies while it is still the current channel.
// A channel closed by release is no longer current and is ignored.
func (s *Store) watch(t transport.Transport) {
	<-t.Done()
	s.chMu.RLock()
	current := s.channel == t
	s.chMu.RUnlock()
	if !current {
		return
	}
	s.logger.Warn("channel lost", zap.Int64("user_id", t.UserID()))
	s.transition(status.Error)
}

// Close releases the channel and stops pending typing timers.
func (s *Store) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	err := s.release()

	s.mu.Lock()
	s.conv.Each(func(c *model.Conversation) { c.CancelTyping() })
	s.mu.Unlock()
	return err
}

// release tears down the token subscription, the push binding and the
// channel, in that order. Caller holds connMu.
func (s *Store) release() error {
	s.chMu.Lock()
	t, unsub := s.channel, s.unsubToken
	s.channel, s.unsubToken = nil, nil
	s.chMu.Unlock()

	if unsub != nil {
		unsub()
	}
	s.engine.Unbind()
	if t == nil {
		return nil
	}
	err := t.Close()
	s.transition(status.Closed)
	if err != nil {
		return fmt.Errorf("close channel: %w", err)
	}
	return nil
}

func (s *Store) transition(to status.State) {
	if err := s.state.Transition(to); err != nil {
		s.logger.Debug("ignored connection transition", zap.Error(err))
	}
}

// ConnectionState returns the lifecycle state of the channel.
func (s *Store) ConnectionState() status.State {
	return s.state.Current()
}
