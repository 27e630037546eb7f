package bus

import (
	"testing"
	"time"
)

func TestNotifySubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("store.", 10)
	defer unsub()

	b.Notify(ConversationUpdated, ConversationChange{ConversationID: 5})

	select {
	case evt := <-ch:
		if evt.Kind != ConversationUpdated {
			t.Errorf("got kind %q, want %q", evt.Kind, ConversationUpdated)
		}
		change, ok := evt.Payload.(ConversationChange)
		if !ok || change.ConversationID != 5 {
			t.Errorf("payload = %#v, want conversation 5", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("store.upload.", 10)
	defer unsub()

	b.Notify(RosterUpdated, nil)
	b.Notify(UploadProgress, UploadChange{TempID: 1, Percent: 50})

	select {
	case evt := <-ch:
		if evt.Kind != UploadProgress {
			t.Errorf("got kind %q, want %q", evt.Kind, UploadProgress)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("store.", 10)
	unsub()
	unsub()

	b.Notify(RosterUpdated, nil)

	if _, ok := <-ch; ok {
		t.Error("received event after unsubscribe")
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("store.", 1)
	defer unsub()

	b.Notify(RosterUpdated, nil)
	b.Notify(SelectionChanged, nil)

	evt := <-ch
	if evt.Kind != RosterUpdated {
		t.Errorf("got %q, want %q", evt.Kind, RosterUpdated)
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected buffered event %q", evt.Kind)
	default:
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("store.", 1)
	b.Close()
	unsub()

	if _, ok := <-ch; ok {
		t.Error("channel still open after Close")
	}
	late, _ := b.Subscribe("store.", 1)
	if _, ok := <-late; ok {
		t.Error("subscription after Close should be closed")
	}
	b.Notify(RosterUpdated, nil)
}

func TestNotifyOnNilBus(t *testing.T) {
	var b *Bus
	b.Notify(RosterUpdated, nil)
}
