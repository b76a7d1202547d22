package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu          sync.Mutex
	messages    []Notification
	connects    int
	disconnects int
}

func (r *recorder) subscription(topics ...string) Subscription {
	return Subscription{
		Topics: topics,
		OnMessage: func(_ context.Context, topic string, data json.RawMessage) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.messages = append(r.messages, Notification{Topic: topic, Data: data})
		},
		OnConnect: func(context.Context) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.connects++
		},
		OnDisconnect: func(context.Context) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.disconnects++
		},
	}
}

func (r *recorder) snapshot() ([]Notification, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.messages...), r.connects, r.disconnects
}

func waitForSubscribers(t *testing.T, b *Broker, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.Subscribers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d subscribers, have %d", n, b.Subscribers())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func subscribe(t *testing.T, b *Broker, sub Subscription) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Subscribe(ctx, sub)
	}()
	t.Cleanup(cancel)
	return cancel, errCh
}

func TestBroker_PublishRoutesByTopic(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	users, admins := &recorder{}, &recorder{}
	subscribe(t, b, users.subscription("policy_data", "users"))
	subscribe(t, b, admins.subscription("admins"))
	waitForSubscribers(t, b, 2)

	if err := b.Publish(context.Background(), []string{"users", "policy_data"}, map[string]string{"id": "1"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := b.Publish(context.Background(), []string{"admins"}, map[string]string{"id": "2"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	msgs, connects, _ := users.snapshot()
	if connects != 1 {
		t.Errorf("connects = %d, want 1", connects)
	}
	if len(msgs) != 1 {
		t.Fatalf("users got %d messages, want 1: %v", len(msgs), msgs)
	}
	if msgs[0].Topic != "users" {
		t.Errorf("topic = %q, want first matching topic %q", msgs[0].Topic, "users")
	}
	if string(msgs[0].Data) != `{"id":"1"}` {
		t.Errorf("data = %s", msgs[0].Data)
	}

	msgs, _, _ = admins.snapshot()
	if len(msgs) != 1 || string(msgs[0].Data) != `{"id":"2"}` {
		t.Errorf("admins got %v", msgs)
	}
}

func TestBroker_ConnectionHooks(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	r := &recorder{}
	subscribe(t, b, r.subscription("t"))
	waitForSubscribers(t, b, 1)

	b.SetConnected(false)
	if err := b.Publish(context.Background(), []string{"t"}, "dropped"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	b.SetConnected(false)
	b.SetConnected(true)

	msgs, connects, disconnects := r.snapshot()
	if len(msgs) != 0 {
		t.Errorf("message delivered while disconnected: %v", msgs)
	}
	if connects != 2 || disconnects != 1 {
		t.Errorf("connects = %d, disconnects = %d, want 2 and 1", connects, disconnects)
	}
}

func TestBroker_SubscribeReturnsOnCancel(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	cancel, errCh := subscribe(t, b, (&recorder{}).subscription("t"))
	waitForSubscribers(t, b, 1)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Subscribe() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
	waitForSubscribers(t, b, 0)
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker()

	_, errCh := subscribe(t, b, (&recorder{}).subscription("t"))
	waitForSubscribers(t, b, 1)

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Subscribe() error = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after Close")
	}

	if err := b.Publish(context.Background(), []string{"t"}, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish() after Close error = %v, want ErrClosed", err)
	}
}

func TestBroker_PublishEncodingError(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	if err := b.Publish(context.Background(), []string{"t"}, make(chan int)); err == nil {
		t.Error("Publish() with unencodable payload should fail")
	}
}
