package web

import (
	"encoding/json"
	"testing"
	"time"
)

func recvEvent(t *testing.T, ch <-chan string) StatusEvent {
	t.Helper()
	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
	}
	return StatusEvent{}
}

func TestBroadcaster_SubscribeAndReceive(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Broadcast("error", "lock failed")

	evt := recvEvent(t, ch)
	if evt.Msg != "lock failed" || evt.Level != "error" {
		t.Errorf("event = %+v", evt)
	}
	if evt.Time == "" {
		t.Error("event should have a timestamp")
	}
}

func TestBroadcaster_MultipleSubscribers(t *testing.T) {
	b := NewStatusBroadcaster()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.BroadcastMsg("multi")

	for i, ch := range []<-chan string{ch1, ch2} {
		if evt := recvEvent(t, ch); evt.Msg != "multi" || evt.Level != "info" {
			t.Errorf("subscriber %d: event = %+v", i, evt)
		}
	}
}

func TestBroadcaster_BroadcastEvent(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.BroadcastEvent("flash", "on")

	evt := recvEvent(t, ch)
	if evt.Kind != "flash" || evt.Data != "on" {
		t.Errorf("event = %+v, want kind flash data on", evt)
	}
	if evt.Msg != "" {
		t.Errorf("msg = %q, want empty for session events", evt.Msg)
	}
}

func TestBroadcaster_UnsubscribeClosesChannelOnce(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	unsub()
	unsub()

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
	// Broadcasting with no subscribers must not panic.
	b.BroadcastMsg("after unsub")
}

func TestBroadcaster_FullChannelDropsMessage(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	for i := 0; i < 70; i++ {
		b.BroadcastEvent("orientation", "up")
	}

	if got := len(ch); got != 64 {
		t.Errorf("buffered messages = %d, want 64", got)
	}
}

func TestBroadcastWriter(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	w := BroadcastWriter(b)
	line := "  [LIVE] Flash: on  \n"
	n, err := w.Write([]byte(line))
	if err != nil || n != len(line) {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if evt := recvEvent(t, ch); evt.Msg != "[LIVE] Flash: on" {
		t.Errorf("msg = %q", evt.Msg)
	}

	w.Write([]byte("   \n"))
	select {
	case <-ch:
		t.Error("expected no message for whitespace-only write")
	case <-time.After(50 * time.Millisecond):
	}
}
