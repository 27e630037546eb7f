package model

import (
	"slices"
	"time"
)

// ConversationType distinguishes direct conversations from groups.
type ConversationType string

const (
	TypeConversation   ConversationType = "conversation"
	TypeChatGroup      ConversationType = "chat-group"
	TypeMarketingGroup ConversationType = "marketing-group"
)

// IsGroup reports whether the type is one of the group kinds.
func (t ConversationType) IsGroup() bool {
	return t == TypeChatGroup || t == TypeMarketingGroup
}

// ParseConversationType maps a wire value to a type, defaulting to a plain
// conversation for unknown values.
func ParseConversationType(s string) ConversationType {
	switch ConversationType(s) {
	case TypeChatGroup, TypeMarketingGroup, TypeConversation:
		return ConversationType(s)
	}
	return TypeConversation
}

// Status is the presence information of a conversation.
type Status struct {
	Online    bool
	Typing    bool
	LastVisit time.Time
	Label     string
}

// Member is a participant of a group.
type Member struct {
	ID   int64
	Name string
}

// Settings holds per-conversation preferences and, for groups, membership.
type Settings struct {
	NotificationsEnabled bool
	OwnerID              int64
	Members              []Member
}

// Conversation is one loaded chat thread. It is not safe for concurrent use;
// the owning store serializes access.
type Conversation struct {
	ID                 int64
	Name               string
	Type               ConversationType
	Messages           []*Message
	Status             Status
	Settings           Settings
	AllMessagesFetched bool

	typingTimer *time.Timer
	typingSeq   uint64
}

// IsGroup reports whether the conversation is a group.
func (c *Conversation) IsGroup() bool {
	return c.Type.IsGroup()
}

// Append adds a message at the end of the list.
func (c *Conversation) Append(m *Message) {
	c.Messages = append(c.Messages, m)
}

// Find returns the message with the given server id.
func (c *Conversation) Find(id int64) (*Message, int) {
	for i, m := range c.Messages {
		if m.ID == id && id != 0 {
			return m, i
		}
	}
	return nil, -1
}

// FindTemporary returns the temporary message with the given temp id.
func (c *Conversation) FindTemporary(tempID int64) (*Message, int) {
	for i, m := range c.Messages {
		if m.IsTemporary() && m.TempID == tempID {
			return m, i
		}
	}
	return nil, -1
}

// ReplaceByToken swaps the temporary message carrying token for confirmed,
// keeping its position. It reports whether a temporary message matched.
func (c *Conversation) ReplaceByToken(token string, confirmed *Message) bool {
	if token == "" {
		return false
	}
	for i, m := range c.Messages {
		if m.IsTemporary() && m.Token == token {
			c.Messages[i] = confirmed
			c.dropDuplicate(i, confirmed.ID)
			return true
		}
	}
	return false
}

// dropDuplicate removes any other entry with id besides the one at keep.
func (c *Conversation) dropDuplicate(keep int, id int64) {
	if id == 0 {
		return
	}
	kept := c.Messages[keep]
	c.Messages = slices.DeleteFunc(c.Messages, func(m *Message) bool {
		return m != kept && m.ID == id
	})
}

// UnreadCount returns the number of unread messages.
func (c *Conversation) UnreadCount() int {
	n := 0
	for _, m := range c.Messages {
		if m.Unread {
			n++
		}
	}
	return n
}

// MarkAllRead clears the unread flag and returns the ids that were unread.
func (c *Conversation) MarkAllRead() []int64 {
	var ids []int64
	for _, m := range c.Messages {
		if !m.Unread {
			continue
		}
		m.Unread = false
		if m.ID != 0 {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// Temporaries returns the messages still awaiting confirmation.
func (c *Conversation) Temporaries() []*Message {
	var out []*Message
	for _, m := range c.Messages {
		if m.IsTemporary() {
			out = append(out, m)
		}
	}
	return out
}

// StartTyping sets the typing flag and (re)arms the quiet timer. When the
// timer fires, onQuiet receives the sequence number of this signal; the
// owner passes it back to StopTyping under its lock.
func (c *Conversation) StartTyping(quiet time.Duration, onQuiet func(seq uint64)) {
	c.Status.Online = true
	c.Status.Typing = true
	c.typingSeq++
	seq := c.typingSeq
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.typingTimer = time.AfterFunc(quiet, func() { onQuiet(seq) })
}

// StopTyping clears typing if seq is still the latest signal. It reports
// whether the flag changed.
func (c *Conversation) StopTyping(seq uint64) bool {
	if seq != c.typingSeq || !c.Status.Typing {
		return false
	}
	c.Status.Typing = false
	c.typingTimer = nil
	return true
}

// CancelTyping stops a pending quiet timer without touching the flag.
func (c *Conversation) CancelTyping() {
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	c.typingSeq++
}

// HasMember reports whether id is a group member.
func (c *Conversation) HasMember(id int64) bool {
	return slices.ContainsFunc(c.Settings.Members, func(m Member) bool { return m.ID == id })
}

// AddMember appends a member unless already present.
func (c *Conversation) AddMember(m Member) {
	if c.HasMember(m.ID) {
		return
	}
	c.Settings.Members = append(c.Settings.Members, m)
}

// RemoveMember drops the member with id.
func (c *Conversation) RemoveMember(id int64) {
	c.Settings.Members = slices.DeleteFunc(c.Settings.Members, func(m Member) bool { return m.ID == id })
}

// Snapshot returns a copy safe to hand to readers outside the store lock.
// The copy has no typing timer.
func (c *Conversation) Snapshot() *Conversation {
	out := &Conversation{
		ID:                 c.ID,
		Name:               c.Name,
		Type:               c.Type,
		Status:             c.Status,
		Settings:           c.Settings,
		AllMessagesFetched: c.AllMessagesFetched,
		Messages:           make([]*Message, 0, len(c.Messages)),
	}
	out.Settings.Members = slices.Clone(c.Settings.Members)
	for _, m := range c.Messages {
		out.Messages = append(out.Messages, m.Clone())
	}
	return out
}

// Contact is a user that can be added to a group.
type Contact struct {
	ID   int64
	Name string
}
