package messenger

import (
	"context"
	"fmt"
	"slices"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/roster"
	"github.com/matheus3301/chatsync/internal/transport"
	"github.com/matheus3301/chatsync/internal/wire"
	"go.uber.org/zap"
)

// GroupState is the lifecycle state of one group.
type GroupState string

const (
	GroupNone            GroupState = "none"
	GroupSettingsLoading GroupState = "settings-loading"
	GroupActive          GroupState = "active"
)

var validGroupTransitions = map[GroupState][]GroupState{
	GroupNone:            {GroupSettingsLoading},
	GroupSettingsLoading: {GroupActive, GroupNone},
	GroupActive:          {GroupSettingsLoading, GroupNone},
}

// transitionGroupLocked moves group id to state to. Caller holds mu.
func (s *Store) transitionGroupLocked(id int64, to GroupState) error {
	from := s.groupStateLocked(id)
	if !slices.Contains(validGroupTransitions[from], to) {
		return fmt.Errorf("group %d: invalid transition from %s to %s", id, from, to)
	}
	s.groups[id] = to
	return nil
}

func (s *Store) groupStateLocked(id int64) GroupState {
	if st, ok := s.groups[id]; ok {
		return st
	}
	return GroupNone
}

// GroupState returns the lifecycle state of group id.
func (s *Store) GroupState(id int64) GroupState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groupStateLocked(id)
}

// LoadGroupSettings fetches the settings and members of group id. On
// failure the group returns to its previous state.
func (s *Store) LoadGroupSettings(ctx context.Context, id int64) error {
	s.mu.Lock()
	e, ok := s.roster.Get(id)
	if !ok || !e.Type.IsGroup() {
		s.mu.Unlock()
		return fmt.Errorf("group %d: %w", id, ErrGroupNotFound)
	}
	prev := s.groupStateLocked(id)
	joining := prev == GroupSettingsLoading
	if !joining {
		if err := s.transitionGroupLocked(id, GroupSettingsLoading); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	settings, err := s.conv.Settings(ctx, id, true)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roster.Get(id); !ok {
		return fmt.Errorf("group %d: %w", id, ErrGroupNotFound)
	}
	if err != nil {
		if !joining {
			s.groups[id] = prev
		}
		s.logger.Warn("failed to load group settings", zap.Error(err), zap.Int64("group_id", id))
		return err
	}
	if conv, ok := s.conv.Get(id); ok {
		conv.Settings = settings
	}
	s.groups[id] = GroupActive
	s.notifyConversation(id)
	return nil
}

// CreateGroup creates a group with the staged recipients. Both staging
// sets are cleared on success.
func (s *Store) CreateGroup(ctx context.Context, name string, typ model.ConversationType) (int64, error) {
	if !typ.IsGroup() {
		typ = model.TypeChatGroup
	}
	s.mu.Lock()
	req := wire.GroupRequest{Name: name, Type: string(typ), Recipients: s.recipientsLocked()}
	s.mu.Unlock()

	created, err := call[wire.RosterEntry](ctx, s, transport.MethodCreateGroup, req)
	if err != nil {
		return 0, err
	}
	if created.Name == "" {
		created.Name = name
	}
	if created.Type == "" {
		created.Type = string(typ)
	}

	s.mu.Lock()
	s.roster.Upsert(roster.Entry{
		ID:          created.ID,
		Name:        created.Name,
		Type:        model.ParseConversationType(created.Type),
		UnreadCount: created.UnreadCount,
		Status:      created.Status,
		LastMessage: created.LastMessage,
	})
	s.groups[created.ID] = GroupNone
	s.clearContactsLocked()
	s.mu.Unlock()

	s.bus.Notify(bus.RosterUpdated, nil)
	s.bus.Notify(bus.SelectionChanged, nil)
	return created.ID, nil
}

// InviteContacts adds the staged recipients to group id. Both staging sets
// are cleared on success.
func (s *Store) InviteContacts(ctx context.Context, id int64) error {
	s.mu.Lock()
	if _, ok := s.roster.Get(id); !ok {
		s.mu.Unlock()
		return fmt.Errorf("group %d: %w", id, ErrGroupNotFound)
	}
	req := wire.GroupRequest{GroupID: id, Recipients: s.recipientsLocked()}
	s.mu.Unlock()

	if err := s.invoke(ctx, transport.MethodInviteToGroup, req); err != nil {
		return err
	}

	s.mu.Lock()
	s.clearContactsLocked()
	s.mu.Unlock()
	s.bus.Notify(bus.SelectionChanged, nil)
	return nil
}

// AddMember adds m to group id. The member list changes before the call
// and is restored if the call fails.
func (s *Store) AddMember(ctx context.Context, id int64, m model.Member) error {
	return s.changeMembers(ctx, id, transport.MethodAddGroupMember, m.ID, func(c *model.Conversation) {
		c.AddMember(m)
	})
}

// RemoveMember removes member memberID from group id.
func (s *Store) RemoveMember(ctx context.Context, id, memberID int64) error {
	return s.changeMembers(ctx, id, transport.MethodRemoveGroupMember, memberID, func(c *model.Conversation) {
		c.RemoveMember(memberID)
	})
}

func (s *Store) changeMembers(ctx context.Context, id int64, method string, memberID int64, apply func(*model.Conversation)) error {
	s.mu.Lock()
	conv, ok := s.conv.Get(id)
	if !ok || !conv.IsGroup() {
		s.mu.Unlock()
		return fmt.Errorf("group %d: %w", id, ErrGroupNotFound)
	}
	if st := s.groupStateLocked(id); st != GroupActive {
		s.mu.Unlock()
		return fmt.Errorf("group %d is %s: %w", id, st, ErrGroupNotActive)
	}
	before := slices.Clone(conv.Settings.Members)
	apply(conv)
	s.mu.Unlock()
	s.notifyConversation(id)

	if err := s.invoke(ctx, method, id, memberID); err != nil {
		s.mu.Lock()
		if cur, ok := s.conv.Get(id); ok {
			cur.Settings.Members = before
		}
		s.mu.Unlock()
		s.notifyConversation(id)
		return err
	}
	return s.MarkConversationAsRead(ctx, id)
}

// DeleteGroup deletes group id and removes it from the roster. If it was
// selected, the previous group in the list is selected, else the next,
// else nothing.
func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	s.mu.Lock()
	e, ok := s.roster.Get(id)
	s.mu.Unlock()
	if !ok || !e.Type.IsGroup() {
		return fmt.Errorf("group %d: %w", id, ErrGroupNotFound)
	}

	if err := s.invoke(ctx, transport.MethodDeleteGroup, id); err != nil {
		return err
	}

	s.mu.Lock()
	idx, removed := s.roster.Remove(id)
	delete(s.groups, id)
	wasSelected := s.selectedID == id
	var next int64
	if removed && wasSelected {
		if adj, ok := s.roster.AdjacentGroup(idx); ok {
			next = adj.ID
		}
	}
	s.mu.Unlock()
	s.bus.Notify(bus.RosterUpdated, nil)

	if !wasSelected {
		return nil
	}
	if err := s.SetSelectedConversationID(ctx, next); err != nil {
		s.logger.Warn("failed to open adjacent group", zap.Error(err), zap.Int64("group_id", next))
	}
	return nil
}
