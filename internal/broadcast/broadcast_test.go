package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestBroadcaster_DeliversInOrder(t *testing.T) {
	t.Parallel()

	b := New(testLogger(t))
	defer b.Close()

	sub := b.Subscribe()
	defer sub.Cancel()

	b.Publish(ConnectionChanged{HasConnection: true})
	b.Publish(Custom{Kind: KindUploadDone})
	b.Publish(ConnectionChanged{HasConnection: false})

	want := []Event{
		ConnectionChanged{HasConnection: true},
		Custom{Kind: KindUploadDone},
		ConnectionChanged{HasConnection: false},
	}

	for i, expected := range want {
		select {
		case got := <-sub.C():
			if got != expected {
				t.Errorf("event %d = %#v, want %#v", i, got, expected)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for event %d", i)
		}
	}
}

func TestBroadcaster_MultipleSubscribersEachReceiveAll(t *testing.T) {
	t.Parallel()

	b := New(testLogger(t))
	defer b.Close()

	const subscribers = 3

	subs := make([]*Subscription, subscribers)
	for i := range subs {
		subs[i] = b.Subscribe()
		defer subs[i].Cancel()
	}

	b.Publish(ConnectionChanged{HasConnection: true})

	for i, sub := range subs {
		select {
		case got := <-sub.C():
			if got != (ConnectionChanged{HasConnection: true}) {
				t.Errorf("subscriber %d got %#v", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never received event", i)
		}
	}
}

func TestBroadcaster_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	b := New(testLogger(t))
	defer b.Close()

	slow := b.Subscribe() // never drained
	defer slow.Cancel()

	fast := b.Subscribe()
	defer fast.Cancel()

	// Overflow the slow subscriber's queue.
	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(Custom{Kind: "tick", Payload: i})
	}

	// The fast subscriber still got its buffer's worth without Publish blocking.
	received := 0

	for received < subscriberBuffer {
		select {
		case <-fast.C():
			received++
		case <-time.After(time.Second):
			t.Fatalf("fast subscriber starved after %d events", received)
		}
	}

	if slow.Dropped() == 0 {
		t.Error("slow subscriber should have dropped events")
	}

	if fast.Dropped() == 0 {
		// fast was not drained during the publish loop either, so it also
		// overflowed; the property under test is that Publish never blocked.
		t.Log("fast subscriber dropped nothing")
	}
}

func TestBroadcaster_CancelReleasesSubscription(t *testing.T) {
	t.Parallel()

	b := New(testLogger(t))
	defer b.Close()

	sub := b.Subscribe()

	if got := b.ActiveSubscribers(); got != 1 {
		t.Fatalf("ActiveSubscribers = %d, want 1", got)
	}

	sub.Cancel()
	sub.Cancel() // idempotent

	if got := b.ActiveSubscribers(); got != 0 {
		t.Errorf("ActiveSubscribers = %d after Cancel, want 0", got)
	}

	// Channel is closed after Cancel.
	if _, ok := <-sub.C(); ok {
		t.Error("subscription channel should be closed after Cancel")
	}
}

func TestBroadcaster_CloseTearsDownAll(t *testing.T) {
	t.Parallel()

	b := New(testLogger(t))

	s1 := b.Subscribe()
	s2 := b.Subscribe()

	b.Close()

	if got := b.ActiveSubscribers(); got != 0 {
		t.Errorf("ActiveSubscribers = %d after Close, want 0", got)
	}

	for i, sub := range []*Subscription{s1, s2} {
		if _, ok := <-sub.C(); ok {
			t.Errorf("subscription %d channel open after Close", i)
		}
	}

	// Publishing and closing again are no-ops.
	b.Publish(ConnectionChanged{HasConnection: true})
	b.Close()

	// Subscribing after Close yields a closed channel.
	late := b.Subscribe()
	if _, ok := <-late.C(); ok {
		t.Error("late subscription should receive a closed channel")
	}
}

func TestListen_PanickingListenerDoesNotStopDelivery(t *testing.T) {
	t.Parallel()

	b := New(testLogger(t))
	defer b.Close()

	var (
		mu       sync.Mutex
		received []Event
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})

	Listen(ctx, b, testLogger(t), func(e Event) {
		mu.Lock()
		received = append(received, e)
		count := len(received)
		mu.Unlock()

		if count == 2 {
			close(done)
		}

		if count == 1 {
			panic("listener bug")
		}
	})

	// Second independent listener keeps receiving regardless.
	otherDone := make(chan struct{})
	otherCount := 0

	Listen(ctx, b, testLogger(t), func(Event) {
		otherCount++
		if otherCount == 2 {
			close(otherDone)
		}
	})

	// Give both listener goroutines time to subscribe.
	time.Sleep(10 * time.Millisecond)

	b.Publish(ConnectionChanged{HasConnection: false})
	b.Publish(ConnectionChanged{HasConnection: true})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("panicking listener stopped receiving events")
	}

	select {
	case <-otherDone:
	case <-time.After(time.Second):
		t.Fatal("sibling listener starved by panicking listener")
	}
}

func TestListen_ContextCancelReleasesSubscription(t *testing.T) {
	t.Parallel()

	b := New(testLogger(t))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())

	Listen(ctx, b, testLogger(t), func(Event) {})

	// Wait for the goroutine to register.
	deadline := time.Now().Add(time.Second)
	for b.ActiveSubscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if got := b.ActiveSubscribers(); got != 1 {
		t.Fatalf("ActiveSubscribers = %d, want 1", got)
	}

	cancel()

	deadline = time.Now().Add(time.Second)
	for b.ActiveSubscribers() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if got := b.ActiveSubscribers(); got != 0 {
		t.Errorf("ActiveSubscribers = %d after cancel, want 0 (leak)", got)
	}
}
