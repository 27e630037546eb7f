// Package wire defines the JSON shapes exchanged with the server over the
// transport and their conversion into the in-memory model.
package wire

import (
	"time"

	"github.com/matheus3301/chatsync/internal/model"
)

type Media struct {
	ID       int64  `json:"id"`
	Name     string `json:"name,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

type Message struct {
	ID             int64     `json:"id"`
	Token          string    `json:"token,omitempty"`
	ConversationID int64     `json:"conversationId"`
	Body           string    `json:"body"`
	AuthorID       int64     `json:"authorId"`
	CreatedAt      time.Time `json:"createdAt"`
	ReplyToID      int64     `json:"replyToId,omitempty"`
	Medias         []Media   `json:"medias,omitempty"`
	Unread         bool      `json:"unread"`
	OpponentUnread bool      `json:"opponentUnread"`
	Deleted        bool      `json:"deleted"`
	Deletable      bool      `json:"deletable"`
}

type Status struct {
	Online    bool      `json:"online"`
	LastVisit time.Time `json:"lastVisit"`
	Label     string    `json:"label,omitempty"`
}

type Conversation struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	Status   Status    `json:"status"`
	Messages []Message `json:"messages"`
}

type Member struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Settings struct {
	Notifications bool     `json:"notifications"`
	OwnerID       int64    `json:"ownerId,omitempty"`
	Members       []Member `json:"members,omitempty"`
}

// RosterEntry is a conversation or group summary.
type RosterEntry struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	UnreadCount int    `json:"unreadCount"`
	Status      string `json:"status,omitempty"`
	LastMessage string `json:"lastMessage,omitempty"`
}

type MessengerInfo struct {
	Conversations []RosterEntry `json:"conversations"`
	Groups        []RosterEntry `json:"groups"`
}

type Contact struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SendRequest is the argument of the send call.
type SendRequest struct {
	ConversationID int64   `json:"conversationId"`
	Body           string  `json:"body"`
	Token          string  `json:"token"`
	ReplyToID      int64   `json:"replyToId,omitempty"`
	MediaIDs       []int64 `json:"mediaIds,omitempty"`
}

// GroupRequest creates a group or invites into one.
type GroupRequest struct {
	GroupID    int64  `json:"groupId,omitempty"`
	Name       string `json:"name,omitempty"`
	Type       string `json:"type,omitempty"`
	Recipients string `json:"recipients"`
}

type TypingEvent struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
}

type PresenceEvent struct {
	ConversationID int64 `json:"conversationId"`
	Status
}

type ReadEvent struct {
	ConversationID int64   `json:"conversationId"`
	MessageIDs     []int64 `json:"messageIds"`
}

type DeletedEvent struct {
	ConversationID int64   `json:"conversationId"`
	MessageIDs     []int64 `json:"messageIds"`
}

type MembersEvent struct {
	ConversationID int64    `json:"conversationId"`
	Members        []Member `json:"members"`
}

// ToModel converts a wire message.
func (m Message) ToModel() *model.Message {
	out := &model.Message{
		ID:             m.ID,
		Token:          m.Token,
		ConversationID: m.ConversationID,
		Body:           m.Body,
		AuthorID:       m.AuthorID,
		CreatedAt:      m.CreatedAt,
		ReplyToID:      m.ReplyToID,
		Unread:         m.Unread,
		OpponentUnread: m.OpponentUnread,
		Deleted:        m.Deleted,
		Deletable:      m.Deletable,
	}
	for _, md := range m.Medias {
		out.Medias = append(out.Medias, model.Media{ID: md.ID, Name: md.Name, URL: md.URL, MimeType: md.MimeType})
	}
	return out
}

// ToModel converts a wire conversation with its messages.
func (c Conversation) ToModel() *model.Conversation {
	conv := &model.Conversation{
		ID:   c.ID,
		Name: c.Name,
		Type: model.ParseConversationType(c.Type),
		Status: model.Status{
			Online:    c.Status.Online,
			LastVisit: c.Status.LastVisit,
			Label:     c.Status.Label,
		},
		Messages: make([]*model.Message, 0, len(c.Messages)),
	}
	for _, m := range c.Messages {
		msg := m.ToModel()
		if msg.ConversationID == 0 {
			msg.ConversationID = c.ID
		}
		conv.Messages = append(conv.Messages, msg)
	}
	return conv
}

// ToModel converts wire settings.
func (s Settings) ToModel() model.Settings {
	return model.Settings{
		NotificationsEnabled: s.Notifications,
		OwnerID:              s.OwnerID,
		Members:              Members(s.Members),
	}
}

// Members converts a wire member list.
func Members(in []Member) []model.Member {
	if in == nil {
		return nil
	}
	out := make([]model.Member, 0, len(in))
	for _, m := range in {
		out = append(out, model.Member{ID: m.ID, Name: m.Name})
	}
	return out
}

// ToModel converts a wire contact.
func (c Contact) ToModel() model.Contact {
	return model.Contact{ID: c.ID, Name: c.Name}
}
