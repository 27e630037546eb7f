package messenger

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/outbox"
	pushsync "github.com/matheus3301/chatsync/internal/sync"
	"github.com/matheus3301/chatsync/internal/transport"
	"github.com/matheus3301/chatsync/internal/upload"
	"github.com/matheus3301/chatsync/internal/wire"
)

// SendMessage appends a sending temporary message to conversationID and
// sends it, carrying the pending reply target. It returns the confirmed
// message. On failure the temporary message stays, marked failed.
func (s *Store) SendMessage(ctx context.Context, conversationID int64, body string) (*model.Message, error) {
	return s.send(ctx, conversationID, body, nil)
}

// SendMessageWithMedias is SendMessage with attachments. Upload progress
// is tracked under the temporary message id.
func (s *Store) SendMessageWithMedias(ctx context.Context, conversationID int64, body string, files []upload.File) (*model.Message, error) {
	return s.send(ctx, conversationID, body, files)
}

func (s *Store) send(ctx context.Context, conversationID int64, body string, files []upload.File) (*model.Message, error) {
	s.mu.Lock()
	draft := outbox.Draft{
		ConversationID: conversationID,
		AuthorID:       s.channelUser.Load(),
		Body:           body,
		Files:          files,
	}
	reply := s.replyTo
	if reply != nil && reply.ConversationID == conversationID {
		draft.ReplyToID = reply.ID
	}
	s.mu.Unlock()

	staged, err := s.outbox.Stage(draft)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.replyTo == reply {
		s.replyTo = nil
	}
	sound := false
	if conv, ok := s.conv.Get(conversationID); ok {
		sound = conv.Settings.NotificationsEnabled
	}
	s.mu.Unlock()
	if sound && s.notifier != nil {
		s.notifier.MessageSent(conversationID)
	}

	return s.outbox.Deliver(ctx, staged, files)
}

// RetryMessage re-sends the failed temporary message with token.
func (s *Store) RetryMessage(ctx context.Context, conversationID int64, token string) (*model.Message, error) {
	return s.outbox.Retry(ctx, conversationID, token)
}

// EditMessage replaces the body of message id. A matching edit target is
// cleared on success.
func (s *Store) EditMessage(ctx context.Context, conversationID, id int64, body string) error {
	s.mu.Lock()
	_, err := s.messageLocked(conversationID, id)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	edited, err := call[wire.Message](ctx, s, transport.MethodEditMessage, conversationID, id, body)
	if err != nil {
		return err
	}
	if edited.ID == 0 {
		edited.ID, edited.ConversationID, edited.Body = id, conversationID, body
	}

	s.mu.Lock()
	if msg, err := s.messageLocked(conversationID, id); err == nil {
		msg.Body = edited.Body
		if len(edited.Medias) > 0 {
			msg.Medias = edited.ToModel().Medias
		}
	}
	if s.editTarget != nil && s.editTarget.ID == id {
		s.editTarget = nil
	}
	s.mu.Unlock()
	s.notifyConversation(conversationID)
	return nil
}

// DeleteMessages deletes ids from conversationID and marks them deleted
// once the server agrees.
func (s *Store) DeleteMessages(ctx context.Context, conversationID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	for _, id := range ids {
		if _, err := s.messageLocked(conversationID, id); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	if err := s.invoke(ctx, transport.MethodDeleteMessages, conversationID, ids); err != nil {
		return err
	}

	s.mu.Lock()
	s.markDeletedLocked(conversationID, ids)
	for _, id := range ids {
		delete(s.selectedMsgs, id)
	}
	s.mu.Unlock()
	s.notifyConversation(conversationID)
	return nil
}

func (s *Store) markDeletedLocked(conversationID int64, ids []int64) {
	conv, ok := s.conv.Get(conversationID)
	if !ok {
		return
	}
	for _, id := range ids {
		if msg, _ := conv.Find(id); msg != nil {
			msg.Deleted = true
			msg.Unread = false
		}
	}
}

// ForwardMessages forwards the selected messages of the selected
// conversation into targetID, then leaves forward mode.
func (s *Store) ForwardMessages(ctx context.Context, targetID int64) error {
	s.mu.Lock()
	from := s.selectedID
	ids := sortedKeys(s.selectedMsgs)
	s.mu.Unlock()
	if len(ids) == 0 {
		return nil
	}
	if from == 0 {
		return fmt.Errorf("forward source: %w", ErrConversationNotFound)
	}

	if err := s.invoke(ctx, transport.MethodForwardMessages, from, targetID, ids); err != nil {
		return err
	}

	s.mu.Lock()
	clear(s.selectedMsgs)
	s.forwardMode = false
	s.mu.Unlock()
	s.bus.Notify(bus.SelectionChanged, nil)
	return nil
}

// sendClient issues send calls for the outbox.
type sendClient struct{ s *Store }

func (c sendClient) SendMessage(ctx context.Context, req wire.SendRequest) (*model.Message, error) {
	msg, err := call[wire.Message](ctx, c.s, transport.MethodSendMessage, req)
	if err != nil {
		return nil, err
	}
	return msg.ToModel(), nil
}

// outboxStore applies send progress to the model.
type outboxStore struct{ s *Store }

func (o outboxStore) Stage(msg *model.Message) error {
	s := o.s
	s.mu.Lock()
	_, known := s.conv.Get(msg.ConversationID)
	if !known {
		if _, listed := s.roster.Get(msg.ConversationID); !listed {
			s.mu.Unlock()
			return fmt.Errorf("conversation %d: %w", msg.ConversationID, ErrConversationNotFound)
		}
	}
	conv := s.ensureConversation(msg.ConversationID)
	conv.Append(msg)
	if e, ok := s.roster.Get(msg.ConversationID); ok {
		e.LastMessage = msg.Body
	}
	s.mu.Unlock()
	s.notifyConversation(msg.ConversationID)
	return nil
}

func (o outboxStore) Attach(conversationID int64, token string, medias []model.Media) {
	s := o.s
	s.mu.Lock()
	if msg := s.temporaryLocked(conversationID, token); msg != nil {
		msg.Medias = medias
		msg.IsFileUploading = false
	}
	s.mu.Unlock()
	s.notifyConversation(conversationID)
}

func (o outboxStore) Resend(conversationID int64, token string) (*model.Message, error) {
	s := o.s
	s.mu.Lock()
	msg := s.temporaryLocked(conversationID, token)
	if msg == nil || !msg.SendFailed {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed message %s: %w", token, ErrMessageNotFound)
	}
	msg.SendFailed = false
	msg.IsSendingMessage = true
	out := msg.Clone()
	s.mu.Unlock()
	s.notifyConversation(conversationID)
	return out, nil
}

func (o outboxStore) Confirm(conversationID int64, confirmed *model.Message) {
	s := o.s
	s.mu.Lock()
	conv := s.ensureConversation(conversationID)
	pushsync.Reconcile(conv, confirmed)
	if e, ok := s.roster.Get(conversationID); ok {
		e.LastMessage = confirmed.Body
	}
	s.mu.Unlock()
	s.notifyConversation(conversationID)
}

func (o outboxStore) Fail(conversationID int64, token string) {
	s := o.s
	s.mu.Lock()
	if msg := s.temporaryLocked(conversationID, token); msg != nil {
		msg.IsSendingMessage = false
		msg.SendFailed = true
	}
	s.mu.Unlock()
	s.notifyConversation(conversationID)
}

func (s *Store) temporaryLocked(conversationID int64, token string) *model.Message {
	conv, ok := s.conv.Get(conversationID)
	if !ok {
		return nil
	}
	for _, m := range conv.Messages {
		if m.IsTemporary() && m.Token == token {
			return m
		}
	}
	return nil
}
