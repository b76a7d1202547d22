package pubsub

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"mercator-hq/policysync/pkg/config"
)

// Socket.io event names exchanged with the pub/sub server.
const (
	EventSubscribe    = "subscribe"
	EventPublish      = "publish"
	EventNotification = "notification"
)

// SocketIOClient is a Client speaking socket.io to a pub/sub server.
// Subscribers announce their topics with a "subscribe" event after every
// (re)connection and receive "notification" events; publishers emit
// "publish" events. Reconnection is handled by the socket.io manager.
type SocketIOClient struct {
	baseURL        string
	namespace      string
	opts           *socket.Options
	connectTimeout time.Duration

	once   sync.Once
	io     *socket.Socket
	mu     sync.Mutex
	closed bool
	logger *slog.Logger
}

// NewSocketIOClient creates a client for cfg.URL. No connection is made
// until Subscribe or Publish is called.
func NewSocketIOClient(cfg config.PubSubConfig) (*SocketIOClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("pubsub URL cannot be empty")
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("pubsub URL %q must include scheme and host", cfg.URL)
	}

	logger := slog.Default().With("component", "pubsub.socketio", "url", cfg.URL)

	opts := socket.DefaultOptions()
	if parsed.Path != "" {
		opts.SetPath(parsed.Path)
	}
	if cfg.InsecureSkipVerify {
		logger.Warn("skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = config.DefaultPubSubNamespace
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = config.DefaultPubSubConnectTimeout
	}

	return &SocketIOClient{
		baseURL:        fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host),
		namespace:      namespace,
		opts:           opts,
		connectTimeout: timeout,
		logger:         logger,
	}, nil
}

func (c *SocketIOClient) socket() *socket.Socket {
	c.once.Do(func() {
		manager := socket.NewManager(c.baseURL, c.opts)
		c.io = manager.Socket(c.namespace, c.opts)
	})
	return c.io
}

func (c *SocketIOClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Subscribe implements Subscriber.
func (c *SocketIOClient) Subscribe(ctx context.Context, sub Subscription) error {
	if c.isClosed() {
		return ErrClosed
	}
	io := c.socket()

	io.On(types.EventName("connect"), func(...any) {
		c.logger.Info("connected", "sid", io.Id(), "topics", sub.Topics)
		req, err := toWireValue(SubscribeRequest{Topics: sub.Topics})
		if err == nil {
			err = io.Emit(EventSubscribe, req)
		}
		if err != nil {
			c.logger.Error("failed to announce topics", "error", err)
		}
		sub.connected(ctx)
	})
	io.On(types.EventName("disconnect"), func(args ...any) {
		c.logger.Warn("disconnected", "reason", args)
		sub.disconnected(ctx)
	})
	io.On(types.EventName("connect_error"), func(args ...any) {
		c.logger.Warn("connection attempt failed", "error", args)
	})
	io.On(types.EventName(EventNotification), func(args ...any) {
		n, err := decodeNotification(args)
		if err != nil {
			c.logger.Error("dropping malformed notification", "error", err)
			return
		}
		topic, ok := sub.matchTopic([]string{n.Topic})
		if !ok || sub.OnMessage == nil {
			return
		}
		sub.OnMessage(ctx, topic, n.Data)
	})

	if !io.Connected() {
		io.Connect()
	}

	<-ctx.Done()
	io.Disconnect()
	return ctx.Err()
}

// Publish implements Publisher. It connects first if needed, waiting at
// most the configured connect timeout.
func (c *SocketIOClient) Publish(ctx context.Context, topics []string, payload any) error {
	if c.isClosed() {
		return ErrClosed
	}
	io := c.socket()
	if !io.Connected() {
		if err := c.connect(ctx, io); err != nil {
			return err
		}
	}

	req, err := toWireValue(PublishRequest{Topics: topics, Data: payload})
	if err != nil {
		return err
	}
	if err := io.Emit(EventPublish, req); err != nil {
		return fmt.Errorf("failed to publish to %v: %w", topics, err)
	}
	c.logger.Debug("published notification", "topics", topics)
	return nil
}

func (c *SocketIOClient) connect(ctx context.Context, io *socket.Socket) error {
	connectCh := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		select {
		case connectCh <- nil:
		default:
		}
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect_error: %v", errs)
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case connectCh <- err:
		default:
		}
	})
	io.Connect()

	timer := time.NewTimer(c.connectTimeout)
	defer timer.Stop()

	select {
	case err := <-connectCh:
		if err != nil {
			return fmt.Errorf("socket.io connection failed: %w", err)
		}
		c.logger.Info("connected", "sid", io.Id())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-timer.C:
		return fmt.Errorf("timed out after %s waiting for socket.io connection", c.connectTimeout)
	}
}

// Close disconnects the socket. It is safe to call more than once.
func (c *SocketIOClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.io != nil {
		c.io.Disconnect()
	}
	return nil
}

// toWireValue round-trips payload through JSON so that the socket.io
// encoder only sees maps, slices and scalars.
func toWireValue(payload any) (any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return v, nil
}

// decodeNotification parses the arguments of a notification event, which
// arrive either as a decoded JSON object or as a JSON string.
func decodeNotification(args []any) (Notification, error) {
	var n Notification
	if len(args) == 0 {
		return n, fmt.Errorf("notification without payload")
	}

	var raw []byte
	switch v := args[0].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return n, fmt.Errorf("failed to re-encode notification: %w", err)
		}
		raw = b
	}

	if err := json.Unmarshal(raw, &n); err != nil {
		return n, fmt.Errorf("failed to decode notification: %w", err)
	}
	if n.Topic == "" {
		return n, fmt.Errorf("notification without topic")
	}
	return n, nil
}
