package model

import (
	"slices"
	"time"
)

// Media is an attachment on a message.
type Media struct {
	ID       int64
	Name     string
	URL      string
	MimeType string
}

// Message is a single chat message. A temporary message has ID == 0 and is
// identified by TempID and Token until the server confirms it.
type Message struct {
	ID             int64
	TempID         int64
	Token          string
	ConversationID int64
	Body           string
	AuthorID       int64
	CreatedAt      time.Time
	ReplyToID      int64
	Medias         []Media

	Unread           bool
	OpponentUnread   bool
	Deleted          bool
	Deletable        bool
	IsSendingMessage bool
	IsFileUploading  bool
	SendFailed       bool
}

// IsTemporary reports whether the message is still awaiting confirmation.
func (m *Message) IsTemporary() bool {
	return m.ID == 0
}

// Clone returns a copy that shares no slices with m.
func (m *Message) Clone() *Message {
	c := *m
	if m.Medias != nil {
		c.Medias = append([]Media(nil), m.Medias...)
	}
	return &c
}

// NewestFirst orders msgs by creation time, newest first. Equal timestamps
// keep their relative order.
func NewestFirst(msgs []*Message) {
	slices.SortStableFunc(msgs, func(a, b *Message) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
