// Package outbox drives outgoing messages from the optimistic temporary
// entry to their confirmed or failed state.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/upload"
	"github.com/matheus3301/chatsync/internal/wire"
	"go.uber.org/zap"
)

// ErrUploadIncomplete is returned when retrying a message whose attachments
// never finished uploading.
var ErrUploadIncomplete = errors.New("outbox: attachments were not uploaded")

// Store applies send progress to the read model. Each method is atomic.
type Store interface {
	// Stage adds msg to its conversation.
	Stage(msg *model.Message) error
	// Attach records the uploaded media of the temporary message with token.
	Attach(conversationID int64, token string, medias []model.Media)
	// Resend flips a failed temporary message back to sending and returns
	// a copy of it.
	Resend(conversationID int64, token string) (*model.Message, error)
	// Confirm reconciles the temporary message with its confirmed form.
	Confirm(conversationID int64, confirmed *model.Message)
	// Fail marks the temporary message with token as failed.
	Fail(conversationID int64, token string)
}

// Client issues the send call.
type Client interface {
	SendMessage(ctx context.Context, req wire.SendRequest) (*model.Message, error)
}

// Uploader stores attachments before the message referencing them is sent.
type Uploader interface {
	Upload(ctx context.Context, files []upload.File, progress func(pct int)) ([]model.Media, error)
}

// Draft is a message the user asked to send.
type Draft struct {
	ConversationID int64
	AuthorID       int64
	Body           string
	ReplyToID      int64
	Files          []upload.File
}

// Sender sends drafts through the client and reports the outcome to the
// store.
type Sender struct {
	store    Store
	client   Client
	uploader Uploader
	tracker  *upload.Tracker
	bus      *bus.Bus
	logger   *zap.Logger

	now      func() time.Time
	newToken func() string
}

// NewSender creates a sender. uploader and tracker may be nil when media
// is not used.
func NewSender(store Store, client Client, uploader Uploader, tracker *upload.Tracker, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		store:    store,
		client:   client,
		uploader: uploader,
		tracker:  tracker,
		bus:      b,
		logger:   logger,
		now:      time.Now,
		newToken: uuid.NewString,
	}
}

// Stage builds the temporary message for d and adds it to the store. The
// returned message is a copy; the stored one belongs to the store.
func (s *Sender) Stage(d Draft) (*model.Message, error) {
	now := s.now()
	msg := &model.Message{
		TempID:           now.UnixNano(),
		Token:            s.newToken(),
		ConversationID:   d.ConversationID,
		Body:             d.Body,
		AuthorID:         d.AuthorID,
		CreatedAt:        now,
		ReplyToID:        d.ReplyToID,
		IsSendingMessage: true,
		IsFileUploading:  len(d.Files) > 0,
	}
	staged := msg.Clone()
	if err := s.store.Stage(msg); err != nil {
		return nil, err
	}
	return staged, nil
}

// Deliver uploads the attachments of a staged message, sends it and
// reports the outcome to the store. It returns the confirmed message.
func (s *Sender) Deliver(ctx context.Context, staged *model.Message, files []upload.File) (*model.Message, error) {
	medias := staged.Medias
	if len(files) > 0 {
		if s.tracker != nil {
			defer s.tracker.Remove(staged.TempID)
		}
		var err error
		medias, err = s.upload(ctx, staged, files)
		if err != nil {
			s.fail(staged, err)
			return nil, err
		}
		s.store.Attach(staged.ConversationID, staged.Token, medias)
	}

	req := wire.SendRequest{
		ConversationID: staged.ConversationID,
		Body:           staged.Body,
		Token:          staged.Token,
		ReplyToID:      staged.ReplyToID,
	}
	for _, m := range medias {
		req.MediaIDs = append(req.MediaIDs, m.ID)
	}

	confirmed, err := s.client.SendMessage(ctx, req)
	if err != nil {
		s.fail(staged, err)
		return nil, err
	}
	if confirmed.Token == "" {
		confirmed.Token = staged.Token
	}
	if confirmed.ConversationID == 0 {
		confirmed.ConversationID = staged.ConversationID
	}
	s.store.Confirm(staged.ConversationID, confirmed)
	s.logger.Info("message sent",
		zap.Int64("conversation_id", staged.ConversationID),
		zap.String("token", staged.Token),
		zap.Int64("message_id", confirmed.ID),
	)
	return confirmed, nil
}

// Send stages d and delivers it.
func (s *Sender) Send(ctx context.Context, d Draft) (*model.Message, error) {
	staged, err := s.Stage(d)
	if err != nil {
		return nil, err
	}
	return s.Deliver(ctx, staged, d.Files)
}

// Retry re-sends the failed temporary message with token.
func (s *Sender) Retry(ctx context.Context, conversationID int64, token string) (*model.Message, error) {
	staged, err := s.store.Resend(conversationID, token)
	if err != nil {
		return nil, err
	}
	if staged.IsFileUploading {
		s.store.Fail(conversationID, token)
		return nil, ErrUploadIncomplete
	}
	return s.Deliver(ctx, staged, nil)
}

func (s *Sender) upload(ctx context.Context, staged *model.Message, files []upload.File) ([]model.Media, error) {
	if s.uploader == nil {
		return nil, upload.ErrNoEndpoint
	}
	if s.tracker != nil {
		s.tracker.Set(staged.TempID, 0)
	}
	medias, err := s.uploader.Upload(ctx, files, func(pct int) {
		if s.tracker != nil {
			s.tracker.Set(staged.TempID, pct)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("upload attachments: %w", err)
	}
	return medias, nil
}

func (s *Sender) fail(staged *model.Message, err error) {
	s.logger.Error("failed to send message",
		zap.Error(err),
		zap.Int64("conversation_id", staged.ConversationID),
		zap.String("token", staged.Token),
	)
	s.store.Fail(staged.ConversationID, staged.Token)
	s.bus.Notify(bus.MessageSendFailed, bus.SendFailure{
		ConversationID: staged.ConversationID,
		Token:          staged.Token,
		Err:            err.Error(),
	})
}
