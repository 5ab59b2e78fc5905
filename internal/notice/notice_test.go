package notice

import (
	"testing"
	"time"

	"github.com/Zain0205/travelin-chat/internal/bus"
)

func waitKind(t *testing.T, sub *bus.Subscription, kind string) bus.Event {
	t.Helper()
	for {
		select {
		case evt := <-sub.Events():
			if evt.Kind == kind {
				return evt
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %s", kind)
			return bus.Event{}
		}
	}
}

func TestShowPublishesAndExpires(t *testing.T) {
	b := bus.New()
	sub := b.Subscribe("notice.", 8)
	defer sub.Close()

	c := NewCenter(b, WithTTL(30*time.Millisecond))
	n := c.Error("Not connected to chat server")

	shown := waitKind(t, sub, bus.KindNoticeShown)
	if got := shown.Payload.(Notice); got.ID != n.ID || got.Level != Error {
		t.Fatalf("shown payload = %+v", got)
	}
	if cur, ok := c.Current(); !ok || cur.Text != "Not connected to chat server" {
		t.Fatalf("current = %+v, %v", cur, ok)
	}

	expired := waitKind(t, sub, bus.KindNoticeExpired)
	if expired.Payload.(Notice).ID != n.ID {
		t.Fatal("expired the wrong notice")
	}
	if _, ok := c.Current(); ok {
		t.Fatal("notice still visible after expiry")
	}
}

func TestLastNoticeWins(t *testing.T) {
	c := NewCenter(nil, WithTTL(50*time.Millisecond))
	c.Warn("Connection lost. Reconnecting...")
	time.Sleep(25 * time.Millisecond)
	second := c.Info("Connected")

	cur, ok := c.Current()
	if !ok || cur.ID != second.ID {
		t.Fatalf("current = %+v, want second notice", cur)
	}

	// The first notice's timer fires in between and must not hide the second.
	time.Sleep(35 * time.Millisecond)
	if cur, ok := c.Current(); !ok || cur.ID != second.ID {
		t.Fatal("second notice hidden by the first notice's timer")
	}

	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Current(); ok {
		t.Fatal("second notice did not expire")
	}
}

func TestDefaultTTL(t *testing.T) {
	c := NewCenter(nil)
	defer c.Stop()
	n := c.Info("hello")
	if got := n.ExpiresAt.Sub(n.ShownAt); got != 5*time.Second {
		t.Fatalf("ttl = %v, want 5s", got)
	}
}

func TestDismiss(t *testing.T) {
	b := bus.New()
	sub := b.Subscribe(bus.KindNoticeExpired, 4)
	defer sub.Close()

	c := NewCenter(b)
	n := c.Info("hello")
	c.Dismiss(n.ID)
	if _, ok := c.Current(); ok {
		t.Fatal("dismissed notice still visible")
	}
	waitKind(t, sub, bus.KindNoticeExpired)

	c.Dismiss(n.ID)
	c.Clear()
}

func TestShowHook(t *testing.T) {
	var levels []Level
	c := NewCenter(nil, WithShowHook(func(l Level) { levels = append(levels, l) }))
	defer c.Stop()
	c.Info("a")
	c.Error("b")
	if len(levels) != 2 || levels[0] != Info || levels[1] != Error {
		t.Fatalf("levels = %v", levels)
	}
}
