// Package roster holds the lightweight summaries of every known
// conversation and group, independent of which conversations are loaded.
package roster

import (
	"slices"

	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/wire"
)

// Entry summarizes one conversation or group.
type Entry struct {
	ID          int64
	Name        string
	Type        model.ConversationType
	UnreadCount int
	Status      string
	LastMessage string
}

// Roster keeps conversations and groups in server order. Entries are only
// removed by an explicit Remove. It is not safe for concurrent use.
type Roster struct {
	conversations []*Entry
	groups        []*Entry
}

// New creates an empty roster.
func New() *Roster {
	return &Roster{}
}

// Merge applies a server snapshot. Listed entries are overwritten in place
// or appended; entries the snapshot omits are kept, since only Remove
// deletes.
func (r *Roster) Merge(info wire.MessengerInfo) {
	for _, e := range info.Conversations {
		r.Upsert(fromWire(e))
	}
	for _, e := range info.Groups {
		r.Upsert(fromWire(e))
	}
}

func fromWire(e wire.RosterEntry) Entry {
	return Entry{
		ID:          e.ID,
		Name:        e.Name,
		Type:        model.ParseConversationType(e.Type),
		UnreadCount: e.UnreadCount,
		Status:      e.Status,
		LastMessage: e.LastMessage,
	}
}

// Get returns the entry for id.
func (r *Roster) Get(id int64) (*Entry, bool) {
	if e := find(r.conversations, id); e != nil {
		return e, true
	}
	if e := find(r.groups, id); e != nil {
		return e, true
	}
	return nil, false
}

func find(list []*Entry, id int64) *Entry {
	for _, e := range list {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// Upsert adds e or overwrites the entry with the same id in place.
func (r *Roster) Upsert(e Entry) *Entry {
	if cur, ok := r.Get(e.ID); ok {
		*cur = e
		return cur
	}
	entry := &e
	if e.Type.IsGroup() {
		r.groups = append(r.groups, entry)
	} else {
		r.conversations = append(r.conversations, entry)
	}
	return entry
}

// Ensure returns the entry for id, creating a minimal one if absent.
func (r *Roster) Ensure(id int64, name string, typ model.ConversationType) *Entry {
	if e, ok := r.Get(id); ok {
		return e
	}
	return r.Upsert(Entry{ID: id, Name: name, Type: typ})
}

// SetUnread sets the unread count of id if present.
func (r *Roster) SetUnread(id int64, n int) {
	if e, ok := r.Get(id); ok {
		e.UnreadCount = n
	}
}

// Remove deletes the group or conversation with id and returns the index it
// occupied in its list.
func (r *Roster) Remove(id int64) (int, bool) {
	if i := slices.IndexFunc(r.groups, func(e *Entry) bool { return e.ID == id }); i >= 0 {
		r.groups = slices.Delete(r.groups, i, i+1)
		return i, true
	}
	if i := slices.IndexFunc(r.conversations, func(e *Entry) bool { return e.ID == id }); i >= 0 {
		r.conversations = slices.Delete(r.conversations, i, i+1)
		return i, true
	}
	return -1, false
}

// AdjacentGroup picks the group to select after the one at removed was
// deleted: the previous index if any, else the one now at removed.
func (r *Roster) AdjacentGroup(removed int) (*Entry, bool) {
	if len(r.groups) == 0 {
		return nil, false
	}
	if removed-1 >= 0 && removed-1 < len(r.groups) {
		return r.groups[removed-1], true
	}
	if removed >= 0 && removed < len(r.groups) {
		return r.groups[removed], true
	}
	return r.groups[len(r.groups)-1], true
}

// Conversations returns copies of the conversation entries.
func (r *Roster) Conversations() []Entry {
	return copies(r.conversations)
}

// Groups returns copies of the group entries.
func (r *Roster) Groups() []Entry {
	return copies(r.groups)
}

func copies(list []*Entry) []Entry {
	out := make([]Entry, 0, len(list))
	for _, e := range list {
		out = append(out, *e)
	}
	return out
}
