package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
)

// ErrClosed is returned by operations on a closed client.
var ErrClosed = errors.New("pubsub: client closed")

// MessageHandler receives a notification published on topic.
type MessageHandler func(ctx context.Context, topic string, data json.RawMessage)

// Subscription describes what a subscriber listens to and the hooks it
// wants called as the connection comes and goes.
type Subscription struct {
	Topics       []string
	OnMessage    MessageHandler
	OnConnect    func(ctx context.Context)
	OnDisconnect func(ctx context.Context)
}

func (s Subscription) matchTopic(topics []string) (string, bool) {
	for _, t := range topics {
		if slices.Contains(s.Topics, t) {
			return t, true
		}
	}
	return "", false
}

func (s Subscription) connected(ctx context.Context) {
	if s.OnConnect != nil {
		s.OnConnect(ctx)
	}
}

func (s Subscription) disconnected(ctx context.Context) {
	if s.OnDisconnect != nil {
		s.OnDisconnect(ctx)
	}
}

// Subscriber delivers notifications for a set of topics.
type Subscriber interface {
	// Subscribe listens until ctx is done and then returns ctx.Err().
	// OnConnect is called on every (re)connection, OnDisconnect whenever the
	// connection drops. A notification published on several subscribed
	// topics is delivered once, under the first of them.
	Subscribe(ctx context.Context, sub Subscription) error
}

// Publisher sends notifications to topics.
type Publisher interface {
	Publish(ctx context.Context, topics []string, payload any) error
}

// Client is a full pub/sub connection.
type Client interface {
	Subscriber
	Publisher
	Close() error
}

// Notification is the envelope delivered to subscribers.
type Notification struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// PublishRequest is the envelope sent by publishers.
type PublishRequest struct {
	Topics []string `json:"topics"`
	Data   any      `json:"data"`
}

// SubscribeRequest announces the topics of a subscriber to the server.
type SubscribeRequest struct {
	Topics []string `json:"topics"`
}
