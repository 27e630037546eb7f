package model

import (
	"sync"
	"testing"
	"time"
)

func TestParseConversationType(t *testing.T) {
	tests := []struct {
		in    string
		want  ConversationType
		group bool
	}{
		{"conversation", TypeConversation, false},
		{"chat-group", TypeChatGroup, true},
		{"marketing-group", TypeMarketingGroup, true},
		{"", TypeConversation, false},
		{"broadcast", TypeConversation, false},
	}
	for _, tt := range tests {
		got := ParseConversationType(tt.in)
		if got != tt.want {
			t.Errorf("ParseConversationType(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if got.IsGroup() != tt.group {
			t.Errorf("%q.IsGroup() = %v, want %v", got, got.IsGroup(), tt.group)
		}
	}
}

func TestReplaceByTokenKeepsPosition(t *testing.T) {
	c := &Conversation{ID: 1}
	c.Append(&Message{ID: 1})
	c.Append(&Message{TempID: 99, Token: "tok", IsSendingMessage: true})
	c.Append(&Message{ID: 2})

	if !c.ReplaceByToken("tok", &Message{ID: 3, Token: "tok"}) {
		t.Fatal("ReplaceByToken() = false, want true")
	}
	if got := c.Messages[1].ID; got != 3 {
		t.Errorf("Messages[1].ID = %d, want 3", got)
	}
	if len(c.Messages) != 3 {
		t.Errorf("len = %d, want 3", len(c.Messages))
	}
	if c.ReplaceByToken("tok", &Message{ID: 4}) {
		t.Error("second replace matched a confirmed message")
	}
	if c.ReplaceByToken("", &Message{ID: 5}) {
		t.Error("empty token matched")
	}
}

func TestReplaceByTokenDropsPushedDuplicate(t *testing.T) {
	c := &Conversation{ID: 1}
	c.Append(&Message{TempID: 99, Token: "tok"})
	c.Append(&Message{ID: 7})

	c.ReplaceByToken("tok", &Message{ID: 7, Token: "tok"})
	if len(c.Messages) != 1 || c.Messages[0].Token != "tok" {
		t.Errorf("messages = %+v, want the confirmed message only", c.Messages)
	}
}

func TestMarkAllReadSkipsTemporaries(t *testing.T) {
	c := &Conversation{ID: 1}
	c.Append(&Message{ID: 1, Unread: true})
	c.Append(&Message{ID: 2})
	c.Append(&Message{TempID: 3, Unread: true})
	c.Append(&Message{ID: 4, Unread: true})

	if got := c.UnreadCount(); got != 3 {
		t.Errorf("UnreadCount() = %d, want 3", got)
	}
	ids := c.MarkAllRead()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 4 {
		t.Errorf("MarkAllRead() = %v, want [1 4]", ids)
	}
	if got := c.UnreadCount(); got != 0 {
		t.Errorf("UnreadCount() after = %d, want 0", got)
	}
	if ids := c.MarkAllRead(); len(ids) != 0 {
		t.Errorf("second MarkAllRead() = %v, want none", ids)
	}
}

func TestTypingOnlyLatestSignalClears(t *testing.T) {
	var mu sync.Mutex
	fired := make(chan uint64, 4)
	c := &Conversation{ID: 1}

	mu.Lock()
	c.StartTyping(time.Hour, func(seq uint64) { fired <- seq })
	first := c.typingSeq
	c.StartTyping(time.Millisecond, func(seq uint64) { fired <- seq })
	mu.Unlock()

	seq := <-fired
	mu.Lock()
	defer mu.Unlock()
	if c.StopTyping(first) {
		t.Error("StopTyping(stale seq) = true, want false")
	}
	if !c.Status.Typing {
		t.Fatal("typing cleared by stale signal")
	}
	if !c.StopTyping(seq) {
		t.Error("StopTyping(latest) = false, want true")
	}
	if c.Status.Typing {
		t.Error("typing still set")
	}
	if c.StopTyping(seq) {
		t.Error("StopTyping twice reported a change")
	}
}

func TestCancelTypingInvalidatesPendingTimer(t *testing.T) {
	c := &Conversation{ID: 1}
	var got uint64
	c.StartTyping(time.Hour, func(seq uint64) { got = seq })
	pending := c.typingSeq
	c.CancelTyping()

	if c.StopTyping(pending) {
		t.Error("cancelled signal still clears typing")
	}
	if got != 0 {
		t.Error("timer fired after cancel")
	}
}

func TestFindTemporary(t *testing.T) {
	c := &Conversation{ID: 1}
	c.Append(&Message{ID: 4, TempID: 4})
	c.Append(&Message{TempID: 4, Token: "tok"})

	m, i := c.FindTemporary(4)
	if m == nil || i != 1 || m.Token != "tok" {
		t.Errorf("FindTemporary(4) = %+v, %d, want the unconfirmed message at 1", m, i)
	}
	if m, i := c.FindTemporary(5); m != nil || i != -1 {
		t.Errorf("FindTemporary(5) = %+v, %d, want nil, -1", m, i)
	}
}

func TestMembers(t *testing.T) {
	c := &Conversation{ID: 1, Type: TypeChatGroup}
	c.AddMember(Member{ID: 3, Name: "ana"})
	c.AddMember(Member{ID: 3, Name: "ana again"})
	c.AddMember(Member{ID: 4, Name: "bo"})
	if len(c.Settings.Members) != 2 {
		t.Fatalf("members = %v, want 2", c.Settings.Members)
	}
	c.RemoveMember(3)
	if c.HasMember(3) || !c.HasMember(4) {
		t.Errorf("members = %v, want only 4", c.Settings.Members)
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	c := &Conversation{ID: 1, Settings: Settings{Members: []Member{{ID: 3}}}}
	c.Append(&Message{ID: 1, Body: "hi", Medias: []Media{{ID: 8}}})

	s := c.Snapshot()
	s.Messages[0].Body = "changed"
	s.Messages[0].Medias[0].ID = 9
	s.Settings.Members[0].ID = 5

	if c.Messages[0].Body != "hi" || c.Messages[0].Medias[0].ID != 8 {
		t.Errorf("snapshot message aliases original: %+v", c.Messages[0])
	}
	if c.Settings.Members[0].ID != 3 {
		t.Error("snapshot members alias original")
	}
}

func TestNewestFirstIsStable(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	msgs := []*Message{
		{ID: 1, CreatedAt: base},
		{ID: 2, CreatedAt: base.Add(time.Minute)},
		{ID: 3, CreatedAt: base},
	}
	NewestFirst(msgs)
	want := []int64{2, 1, 3}
	for i, m := range msgs {
		if m.ID != want[i] {
			t.Fatalf("order = %v at %d, want %v", m.ID, i, want)
		}
	}
}
