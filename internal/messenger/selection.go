package messenger

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
)

// ToggleMessageSelection adds or removes id from the selected messages.
func (s *Store) ToggleMessageSelection(id int64) {
	s.mu.Lock()
	if _, ok := s.selectedMsgs[id]; ok {
		delete(s.selectedMsgs, id)
	} else {
		s.selectedMsgs[id] = struct{}{}
	}
	s.mu.Unlock()
	s.bus.Notify(bus.SelectionChanged, nil)
}

// ClearMessageSelection empties the selected messages and leaves forward
// mode.
func (s *Store) ClearMessageSelection() {
	s.mu.Lock()
	clear(s.selectedMsgs)
	s.forwardMode = false
	s.mu.Unlock()
	s.bus.Notify(bus.SelectionChanged, nil)
}

// SelectedMessages returns the selected message ids in ascending order.
func (s *Store) SelectedMessages() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.selectedMsgs)
}

// SetForwardMode enters or leaves forward mode.
func (s *Store) SetForwardMode(on bool) {
	s.mu.Lock()
	s.forwardMode = on
	if on {
		s.replyTo = nil
		s.editTarget = nil
	}
	s.mu.Unlock()
	s.bus.Notify(bus.SelectionChanged, nil)
}

// ForwardMode reports whether forward mode is on.
func (s *Store) ForwardMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forwardMode
}

// SetReplyTo targets message id of conversationID for the next send. It
// clears the edit target, the message selection and forward mode.
func (s *Store) SetReplyTo(conversationID, id int64) error {
	s.mu.Lock()
	msg, err := s.messageLocked(conversationID, id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.clearModesLocked()
	s.replyTo = msg.Clone()
	s.mu.Unlock()
	s.bus.Notify(bus.SelectionChanged, nil)
	return nil
}

// SetEditTarget picks message id of conversationID for editing. It clears
// the reply target, the message selection and forward mode.
func (s *Store) SetEditTarget(conversationID, id int64) error {
	s.mu.Lock()
	msg, err := s.messageLocked(conversationID, id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.clearModesLocked()
	s.editTarget = msg.Clone()
	s.mu.Unlock()
	s.bus.Notify(bus.SelectionChanged, nil)
	return nil
}

// ClearReplyTo drops the reply target.
func (s *Store) ClearReplyTo() {
	s.mu.Lock()
	s.replyTo = nil
	s.mu.Unlock()
	s.bus.Notify(bus.SelectionChanged, nil)
}

// ClearEditTarget drops the edit target.
func (s *Store) ClearEditTarget() {
	s.mu.Lock()
	s.editTarget = nil
	s.mu.Unlock()
	s.bus.Notify(bus.SelectionChanged, nil)
}

// ReplyTo returns the pending reply target, or nil.
func (s *Store) ReplyTo() *model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replyTo == nil {
		return nil
	}
	return s.replyTo.Clone()
}

// EditTarget returns the pending edit target, or nil.
func (s *Store) EditTarget() *model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editTarget == nil {
		return nil
	}
	return s.editTarget.Clone()
}

// clearModesLocked resets every message interaction mode. Caller holds mu.
func (s *Store) clearModesLocked() {
	clear(s.selectedMsgs)
	s.forwardMode = false
	s.replyTo = nil
	s.editTarget = nil
}

func (s *Store) messageLocked(conversationID, id int64) (*model.Message, error) {
	conv, ok := s.conv.Get(conversationID)
	if !ok {
		return nil, fmt.Errorf("conversation %d: %w", conversationID, ErrConversationNotFound)
	}
	msg, _ := conv.Find(id)
	if msg == nil {
		return nil, fmt.Errorf("message %d: %w", id, ErrMessageNotFound)
	}
	return msg, nil
}

// ToggleKnownContact adds or removes an existing contact from the
// recipients of the next group action.
func (s *Store) ToggleKnownContact(id int64) {
	s.mu.Lock()
	if _, ok := s.knownContacts[id]; ok {
		delete(s.knownContacts, id)
	} else {
		s.knownContacts[id] = struct{}{}
	}
	s.mu.Unlock()
	s.bus.Notify(bus.SelectionChanged, nil)
}

// StageContact adds a contact found by search to the recipients of the
// next group action.
func (s *Store) StageContact(c model.Contact) {
	s.mu.Lock()
	s.stagedContact[c.ID] = c
	s.mu.Unlock()
	s.bus.Notify(bus.SelectionChanged, nil)
}

// UnstageContact removes a contact staged from search.
func (s *Store) UnstageContact(id int64) {
	s.mu.Lock()
	delete(s.stagedContact, id)
	s.mu.Unlock()
	s.bus.Notify(bus.SelectionChanged, nil)
}

// Recipients returns the comma-joined recipient list built from known
// contacts and, prefixed, contacts staged from search.
func (s *Store) Recipients() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recipientsLocked()
}

func (s *Store) recipientsLocked() string {
	var parts []string
	for _, id := range sortedKeys(s.knownContacts) {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	for _, id := range sortedKeys(s.stagedContact) {
		parts = append(parts, s.opts.ContactPrefix+strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}

func (s *Store) clearContactsLocked() {
	clear(s.knownContacts)
	clear(s.stagedContact)
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
