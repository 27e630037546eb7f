package messenger

import (
	"context"
	"time"

	"github.com/matheus3301/chatsync/internal/transport"
	"go.uber.org/zap"
)

// UpdateTypingStatus tells the server the user is typing in
// conversationID. Calls within the throttle window of the previous one for
// the same conversation are dropped.
func (s *Store) UpdateTypingStatus(ctx context.Context, conversationID int64) error {
	if !s.typing.AllowID(conversationID, time.Now()) {
		return nil
	}
	if err := s.invoke(ctx, transport.MethodUpdateTypingStatus, conversationID); err != nil {
		s.logger.Warn("failed to update typing status", zap.Error(err), zap.Int64("conversation_id", conversationID))
		return err
	}
	return nil
}

// applyTypingLocked marks conversationID as typing and restarts its quiet
// timer. Caller holds mu.
func (s *Store) applyTypingLocked(conversationID int64) {
	conv := s.ensureConversation(conversationID)
	conv.StartTyping(s.opts.TypingQuiet, func(seq uint64) {
		s.mu.Lock()
		changed := conv.StopTyping(seq)
		s.mu.Unlock()
		if changed {
			s.notifyConversation(conversationID)
		}
	})
}
