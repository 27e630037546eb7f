package messenger

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/roster"
	"github.com/matheus3301/chatsync/internal/transport"
	"github.com/matheus3301/chatsync/internal/wire"
	"go.uber.org/zap"
)

// LoadMessengerInfo fetches the roster of conversations and groups.
// Unread counts of loaded conversations take precedence over the server
// summary.
func (s *Store) LoadMessengerInfo(ctx context.Context) error {
	key := fmt.Sprintf("messenger-info:%d", s.channelUser.Load())
	info, err := s.info.Run(ctx, key, func(ctx context.Context) (wire.MessengerInfo, error) {
		return call[wire.MessengerInfo](ctx, s, transport.MethodGetMessengerInfo)
	})
	if err != nil {
		s.logger.Warn("failed to load messenger info", zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.roster.Merge(info)
	for _, g := range info.Groups {
		if _, ok := s.groups[g.ID]; !ok {
			s.groups[g.ID] = GroupNone
		}
	}
	s.conv.Each(func(c *model.Conversation) {
		if !s.partial[c.ID] {
			s.roster.SetUnread(c.ID, c.UnreadCount())
		}
	})
	s.mu.Unlock()

	s.bus.Notify(bus.RosterUpdated, nil)
	return nil
}

// LoadConversation fetches the most recent limit messages of id. A
// non-positive limit uses the configured initial limit.
func (s *Store) LoadConversation(ctx context.Context, id int64, limit int) (*model.Conversation, error) {
	if limit <= 0 {
		limit = s.opts.InitialLimit
	}
	if _, err := s.conv.Load(ctx, id, limit); err != nil {
		return nil, err
	}
	return s.Conversation(id)
}

// LoadOlderMessages extends the loaded history of id by one page. It does
// nothing if id is not loaded, is fully fetched, or is already loading.
func (s *Store) LoadOlderMessages(ctx context.Context, id int64) error {
	s.mu.Lock()
	partial := s.partial[id]
	s.mu.Unlock()
	if partial {
		return nil
	}
	return s.conv.LoadOlder(ctx, id)
}

// SetSelectedConversationID selects id, loading it if needed, and marks it
// read. Zero clears the selection. Message selection and reply or edit
// targets belong to the previous conversation and are dropped.
func (s *Store) SetSelectedConversationID(ctx context.Context, id int64) error {
	s.mu.Lock()
	changed := s.selectedID != id
	s.selectedID = id
	if changed {
		s.clearModesLocked()
	}
	needsLoad := id != 0 && !s.loaded(id)
	s.mu.Unlock()

	if changed {
		s.bus.Notify(bus.SelectionChanged, nil)
	}
	if id == 0 {
		return nil
	}
	if needsLoad {
		if _, err := s.conv.Load(ctx, id, s.opts.InitialLimit); err != nil {
			return err
		}
	}
	return s.MarkConversationAsRead(ctx, id)
}

// SelectedConversationID returns the selected conversation, or zero.
func (s *Store) SelectedConversationID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedID
}

// ConversationMessages returns the messages of the selected conversation,
// sending ones included, newest first. It is computed on every call.
func (s *Store) ConversationMessages() []*model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messagesLocked(s.selectedID)
}

// Messages returns the messages of id newest first.
func (s *Store) Messages(id int64) []*model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messagesLocked(id)
}

func (s *Store) messagesLocked(id int64) []*model.Message {
	conv, ok := s.conv.Get(id)
	if !ok {
		return nil
	}
	out := make([]*model.Message, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		out = append(out, m.Clone())
	}
	model.NewestFirst(out)
	return out
}

// Conversation returns a snapshot of the loaded conversation id.
func (s *Store) Conversation(id int64) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conv.Get(id)
	if !ok {
		return nil, fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
	}
	return conv.Snapshot(), nil
}

// Conversations returns the roster conversation summaries.
func (s *Store) Conversations() []roster.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.Conversations()
}

// Groups returns the roster group summaries.
func (s *Store) Groups() []roster.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.Groups()
}

// RosterEntry returns the summary of id.
func (s *Store) RosterEntry(id int64) (roster.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.roster.Get(id)
	if !ok {
		return roster.Entry{}, false
	}
	return *e, true
}

// UploadProgress returns percent complete per temporary message id.
func (s *Store) UploadProgress() map[int64]int {
	s.mu.Lock()
	s.pruneUploadsLocked()
	s.mu.Unlock()
	return s.tracker.Snapshot()
}

// pruneUploadsLocked drops progress entries whose temporary message is gone
// or no longer uploading. Caller holds mu.
func (s *Store) pruneUploadsLocked() {
	s.tracker.Prune(func(tempID int64) bool {
		uploading := false
		s.conv.Each(func(c *model.Conversation) {
			if m, _ := c.FindTemporary(tempID); m != nil && m.IsFileUploading {
				uploading = true
			}
		})
		return uploading
	})
}

// MarkConversationAsRead clears the unread flags of id and its roster
// count, then reports the cleared ids to the server. A failed report is
// logged; local state is not reverted.
func (s *Store) MarkConversationAsRead(ctx context.Context, id int64) error {
	s.mu.Lock()
	conv, loaded := s.conv.Get(id)
	_, listed := s.roster.Get(id)
	if !loaded && !listed {
		s.mu.Unlock()
		return fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
	}
	var ids []int64
	if loaded {
		ids = conv.MarkAllRead()
	}
	s.roster.SetUnread(id, 0)
	s.mu.Unlock()

	s.notifyConversation(id)
	s.bus.Notify(bus.RosterUpdated, nil)
	if len(ids) == 0 {
		return nil
	}
	if err := s.invoke(ctx, transport.MethodMarkMessagesRead, id, ids); err != nil {
		s.logger.Warn("failed to mark messages read", zap.Error(err), zap.Int64("conversation_id", id), zap.Int("count", len(ids)))
	}
	return nil
}

// UpdateNotificationSettings turns notifications of id on or off.
func (s *Store) UpdateNotificationSettings(ctx context.Context, id int64, enabled bool) error {
	s.mu.Lock()
	_, ok := s.conv.Get(id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
	}
	if err := s.invoke(ctx, transport.MethodUpdateNotifications, id, enabled); err != nil {
		return err
	}

	s.mu.Lock()
	if conv, ok := s.conv.Get(id); ok {
		conv.Settings.NotificationsEnabled = enabled
	}
	s.mu.Unlock()
	s.notifyConversation(id)
	return nil
}
