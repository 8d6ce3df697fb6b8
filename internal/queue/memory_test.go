package queue

import (
	"context"
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan Delivery) Delivery {
	t.Helper()
	select {
	case d, ok := <-ch:
		if !ok {
			t.Fatal("delivery channel closed")
		}
		return d
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	return Delivery{}
}

func TestMemory_BuffersWhileUnsubscribed(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Publish(ctx, "q1", []byte("first")); err != nil {
		t.Fatal(err)
	}
	if got := m.Buffered("q1"); got != 1 {
		t.Fatalf("Buffered() = %d, want 1", got)
	}

	ch, err := m.Subscribe(ctx, "q1")
	if err != nil {
		t.Fatal(err)
	}
	if d := receive(t, ch); string(d.Body) != "first" {
		t.Errorf("buffered message = %q", d.Body)
	}
}

func TestMemory_UnsubscribeStopsDelivery(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	ch, err := m.Subscribe(ctx, "q1")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Unsubscribe("q1"); err != nil {
		t.Fatal(err)
	}

	// the consumer channel closes on unsubscribe
	if _, ok := <-ch; ok {
		t.Error("channel still open after unsubscribe")
	}

	// messages published after the pause stay buffered
	if err := m.Publish(ctx, "q1", []byte("while paused")); err != nil {
		t.Fatal(err)
	}
	if got := m.Buffered("q1"); got != 1 {
		t.Fatalf("Buffered() = %d, want 1", got)
	}

	// and flow again on resubscribe
	ch2, err := m.Subscribe(ctx, "q1")
	if err != nil {
		t.Fatal(err)
	}
	if d := receive(t, ch2); string(d.Body) != "while paused" {
		t.Errorf("resumed message = %q", d.Body)
	}
}

func TestMemory_ReplaysLargeBacklog(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	const n = 200
	for i := 0; i < n; i++ {
		if err := m.Publish(ctx, "q1", []byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}

	ch, err := m.Subscribe(ctx, "q1")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		if d := receive(t, ch); d.Body[0] != byte(i) {
			t.Fatalf("message %d out of order: got %d", i, d.Body[0])
		}
	}
	if got := m.Buffered("q1"); got != 0 {
		t.Errorf("Buffered() = %d after full replay", got)
	}
}

func TestMemory_UnsubscribeWithoutSubscription(t *testing.T) {
	m := NewMemory()
	if err := m.Unsubscribe("nope"); err != ErrNotSubscribed {
		t.Errorf("Unsubscribe() = %v, want ErrNotSubscribed", err)
	}
}

func TestMemory_Close(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	ch, _ := m.Subscribe(ctx, "q1")
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	if _, ok := <-ch; ok {
		t.Error("channel open after close")
	}
	if m.Connected() {
		t.Error("Connected() true after close")
	}
	if err := m.Publish(ctx, "q1", []byte("x")); err != ErrNotConnected {
		t.Errorf("Publish() after close = %v, want ErrNotConnected", err)
	}
}
