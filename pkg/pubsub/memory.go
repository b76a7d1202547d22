package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Broker is an in-process pub/sub hub. It implements Client directly, so a
// single Broker can be shared by publishers and subscribers in one process.
// SetConnected simulates connection loss for every subscriber.
type Broker struct {
	mu        sync.Mutex
	subs      map[int]*memorySubscriber
	nextID    int
	connected bool
	closed    bool
	done      chan struct{}
	logger    *slog.Logger
}

type memorySubscriber struct {
	ctx context.Context
	sub Subscription
}

// NewBroker creates a connected broker.
func NewBroker() *Broker {
	return &Broker{
		subs:      make(map[int]*memorySubscriber),
		connected: true,
		done:      make(chan struct{}),
		logger:    slog.Default().With("component", "pubsub.memory"),
	}
}

// Subscribe implements Subscriber.
func (b *Broker) Subscribe(ctx context.Context, sub Subscription) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = &memorySubscriber{ctx: ctx, sub: sub}
	connected := b.connected
	b.mu.Unlock()

	b.logger.Debug("subscribed", "topics", sub.Topics)
	if connected {
		sub.connected(ctx)
	}

	defer func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrClosed
	}
}

// Publish implements Publisher. Payloads are encoded to JSON as they would
// be on the wire. Delivery is synchronous; a disconnected broker drops the
// notification.
func (b *Broker) Publish(ctx context.Context, topics []string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if !b.connected {
		b.mu.Unlock()
		b.logger.Warn("dropping notification while disconnected", "topics", topics)
		return nil
	}
	targets := make([]*memorySubscriber, 0, len(b.subs))
	for _, s := range b.subs {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		topic, ok := s.sub.matchTopic(topics)
		if !ok || s.sub.OnMessage == nil {
			continue
		}
		s.sub.OnMessage(s.ctx, topic, json.RawMessage(data))
	}
	return nil
}

// SetConnected changes the simulated connection state, calling the
// OnConnect or OnDisconnect hook of every subscriber on a transition.
func (b *Broker) SetConnected(connected bool) {
	b.mu.Lock()
	if b.connected == connected || b.closed {
		b.mu.Unlock()
		return
	}
	b.connected = connected
	targets := make([]*memorySubscriber, 0, len(b.subs))
	for _, s := range b.subs {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		if connected {
			s.sub.connected(s.ctx)
		} else {
			s.sub.disconnected(s.ctx)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription. It is safe to call more than once.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
	return nil
}
