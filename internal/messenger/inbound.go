package messenger

import (
	"context"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	pushsync "github.com/matheus3301/chatsync/internal/sync"
	"go.uber.org/zap"
)

// inbound applies pushes from the channel to the model.
type inbound struct{ s *Store }

var _ pushsync.Applier = inbound{}

func (in inbound) ApplyMessage(msg *model.Message) {
	s := in.s
	s.mu.Lock()
	conv := s.ensureConversation(msg.ConversationID)
	outcome := pushsync.Reconcile(conv, msg)
	e := s.roster.Ensure(conv.ID, conv.Name, conv.Type)
	e.LastMessage = msg.Body
	if s.partial[conv.ID] {
		if outcome == pushsync.Appended && msg.Unread {
			e.UnreadCount++
		}
	} else {
		e.UnreadCount = conv.UnreadCount()
	}
	markRead := outcome == pushsync.Appended && msg.Unread && s.selectedID == conv.ID
	s.mu.Unlock()

	s.notifyConversation(msg.ConversationID)
	s.bus.Notify(bus.RosterUpdated, nil)
	if markRead {
		go func() {
			if err := s.MarkConversationAsRead(context.Background(), msg.ConversationID); err != nil {
				s.logger.Warn("failed to mark incoming message read", zap.Error(err))
			}
		}()
	}
}

func (in inbound) ApplyEdited(msg *model.Message) {
	s := in.s
	s.mu.Lock()
	conv, ok := s.conv.Get(msg.ConversationID)
	if !ok {
		s.mu.Unlock()
		return
	}
	if cur, _ := conv.Find(msg.ID); cur != nil {
		cur.Body = msg.Body
		cur.Medias = msg.Medias
		cur.Deletable = msg.Deletable
	}
	s.mu.Unlock()
	s.notifyConversation(msg.ConversationID)
}

func (in inbound) ApplyDeleted(conversationID int64, ids []int64) {
	s := in.s
	s.mu.Lock()
	s.markDeletedLocked(conversationID, ids)
	if conv, ok := s.conv.Get(conversationID); ok && !s.partial[conversationID] {
		s.roster.SetUnread(conversationID, conv.UnreadCount())
	}
	for _, id := range ids {
		delete(s.selectedMsgs, id)
	}
	s.mu.Unlock()
	s.notifyConversation(conversationID)
}

// ApplyRead records that the other side read ids.
func (in inbound) ApplyRead(conversationID int64, ids []int64) {
	s := in.s
	s.mu.Lock()
	if conv, ok := s.conv.Get(conversationID); ok {
		for _, id := range ids {
			if msg, _ := conv.Find(id); msg != nil {
				msg.OpponentUnread = false
			}
		}
	}
	s.mu.Unlock()
	s.notifyConversation(conversationID)
}

func (in inbound) ApplyTyping(conversationID int64) {
	s := in.s
	s.mu.Lock()
	s.applyTypingLocked(conversationID)
	s.mu.Unlock()
	s.notifyConversation(conversationID)
}

func (in inbound) ApplyPresence(conversationID int64, st model.Status) {
	s := in.s
	s.mu.Lock()
	if conv, ok := s.conv.Get(conversationID); ok {
		conv.Status.Online = st.Online
		conv.Status.LastVisit = st.LastVisit
		conv.Status.Label = st.Label
	}
	if e, ok := s.roster.Get(conversationID); ok && st.Label != "" {
		e.Status = st.Label
	}
	s.mu.Unlock()
	s.notifyConversation(conversationID)
	s.bus.Notify(bus.RosterUpdated, nil)
}

func (in inbound) ApplyMembers(conversationID int64, members []model.Member) {
	s := in.s
	s.mu.Lock()
	if conv, ok := s.conv.Get(conversationID); ok {
		conv.Settings.Members = members
	}
	s.mu.Unlock()
	s.notifyConversation(conversationID)
}
