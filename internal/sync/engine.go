package sync

import (
	"encoding/json"
	"errors"
	gosync "sync"

	"github.com/matheus3301/chatsync/internal/metrics"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/transport"
	"github.com/matheus3301/chatsync/internal/wire"
	"go.uber.org/zap"
)

// Applier mutates the read model for inbound pushes. Each call must apply
// its change atomically.
type Applier interface {
	ApplyMessage(msg *model.Message)
	ApplyEdited(msg *model.Message)
	ApplyDeleted(conversationID int64, ids []int64)
	ApplyRead(conversationID int64, ids []int64)
	ApplyTyping(conversationID int64)
	ApplyPresence(conversationID int64, st model.Status)
	ApplyMembers(conversationID int64, members []model.Member)
}

// errNoConversation rejects pushes that do not name a conversation.
var errNoConversation = errors.New("push has no conversation id")

// Engine translates the channel's push stream into model mutations. Pushes
// are applied in the order the channel delivers them.
type Engine struct {
	applier Applier
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu     gosync.Mutex
	unbind []func()
}

// NewEngine creates an engine applying pushes through a.
func NewEngine(a Applier, m *metrics.Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		applier: a,
		metrics: m,
		logger:  logger,
	}
}

// Bind subscribes to every push on t, releasing any previous binding first.
func (e *Engine) Bind(t transport.Transport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.release()
	for _, name := range transport.Events {
		event := name
		e.unbind = append(e.unbind, t.Subscribe(event, func(raw json.RawMessage) {
			e.handleEvent(event, raw)
		}))
	}
}

// Unbind drops the current subscriptions.
func (e *Engine) Unbind() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.release()
}

func (e *Engine) release() {
	for _, fn := range e.unbind {
		fn()
	}
	e.unbind = nil
}

func (e *Engine) handleEvent(event string, raw json.RawMessage) {
	if err := e.apply(event, raw); err != nil {
		e.metrics.Drop(event)
		e.logger.Warn("dropping push", zap.String("event", event), zap.Error(err))
		return
	}
	e.metrics.Event(event)
}

func (e *Engine) apply(event string, raw json.RawMessage) error {
	switch event {
	case transport.EventMessageNew, transport.EventMessageConfirmed:
		msg, err := transport.Decode[wire.Message](raw)
		if err != nil {
			return err
		}
		if msg.ConversationID == 0 {
			return errNoConversation
		}
		e.applier.ApplyMessage(msg.ToModel())
	case transport.EventMessageEdited:
		msg, err := transport.Decode[wire.Message](raw)
		if err != nil {
			return err
		}
		if msg.ConversationID == 0 {
			return errNoConversation
		}
		e.applier.ApplyEdited(msg.ToModel())
	case transport.EventMessageDeleted:
		ev, err := transport.Decode[wire.DeletedEvent](raw)
		if err != nil {
			return err
		}
		if ev.ConversationID == 0 {
			return errNoConversation
		}
		e.applier.ApplyDeleted(ev.ConversationID, ev.MessageIDs)
	case transport.EventMessageRead:
		ev, err := transport.Decode[wire.ReadEvent](raw)
		if err != nil {
			return err
		}
		if ev.ConversationID == 0 {
			return errNoConversation
		}
		e.applier.ApplyRead(ev.ConversationID, ev.MessageIDs)
	case transport.EventTyping:
		ev, err := transport.Decode[wire.TypingEvent](raw)
		if err != nil {
			return err
		}
		if ev.ConversationID == 0 {
			return errNoConversation
		}
		e.applier.ApplyTyping(ev.ConversationID)
	case transport.EventPresence:
		ev, err := transport.Decode[wire.PresenceEvent](raw)
		if err != nil {
			return err
		}
		if ev.ConversationID == 0 {
			return errNoConversation
		}
		e.applier.ApplyPresence(ev.ConversationID, model.Status{
			Online:    ev.Online,
			LastVisit: ev.LastVisit,
			Label:     ev.Label,
		})
	case transport.EventGroupMembers:
		ev, err := transport.Decode[wire.MembersEvent](raw)
		if err != nil {
			return err
		}
		if ev.ConversationID == 0 {
			return errNoConversation
		}
		e.applier.ApplyMembers(ev.ConversationID, wire.Members(ev.Members))
	}
	return nil
}
