package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	sub := b.Subscribe("connection.", 10)
	defer sub.Close()

	b.Publish(Event{Kind: KindStatusChanged, Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-sub.Events():
		if evt.Kind != KindStatusChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, KindStatusChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	sub := b.Subscribe("chat.", 10)
	defer sub.Close()

	b.Emit(KindStatusChanged, nil)
	b.Emit(KindListUpdated, nil)

	select {
	case evt := <-sub.Events():
		if evt.Kind != KindListUpdated {
			t.Errorf("got kind %q, want %s", evt.Kind, KindListUpdated)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-sub.Events():
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmitStampsTimestamp(t *testing.T) {
	b := New()
	sub := b.Subscribe("", 1)
	defer sub.Close()

	b.Publish(Event{Kind: "x"})
	evt := <-sub.Events()
	if evt.Timestamp.IsZero() {
		t.Error("timestamp was not set")
	}
}

func TestCloseSubscription(t *testing.T) {
	b := New()
	sub := b.Subscribe("notice.", 10)
	sub.Close()
	sub.Close()

	b.Emit(KindNoticeShown, nil)

	select {
	case evt := <-sub.Events():
		t.Errorf("received event after close: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	sub := b.Subscribe("test.", 1)
	defer sub.Close()

	b.Emit("test.one", nil)
	b.Emit("test.two", nil)

	evt := <-sub.Events()
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
	if b.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", b.Dropped())
	}
}
