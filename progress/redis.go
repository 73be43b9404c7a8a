package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nijaru/autoclip/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisBroker relays events through Redis pub/sub so listeners attached to
// any instance receive them. Publishing only goes to Redis; the pattern
// subscription feeds the local hub, which keeps a single delivery path.
type RedisBroker struct {
	client *redis.Client
	pubsub *redis.PubSub
	prefix string
	hub    *Hub
	logger *logrus.Logger
	done   chan struct{}
}

func NewRedisBroker(ctx context.Context, url, prefix string, hub *Hub, logger *logrus.Logger) (*RedisBroker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisBrokerWithClient(ctx, redis.NewClient(opts), prefix, hub, logger)
}

func NewRedisBrokerWithClient(ctx context.Context, client *redis.Client, prefix string, hub *Hub, logger *logrus.Logger) (*RedisBroker, error) {
	prefix = strings.TrimSuffix(prefix, ":")

	pubsub := client.PSubscribe(ctx, prefix+":*")
	// Wait for the subscription to be confirmed so no early event is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		client.Close()
		return nil, fmt.Errorf("failed to subscribe to redis: %w", err)
	}

	b := &RedisBroker{
		client: client,
		pubsub: pubsub,
		prefix: prefix,
		hub:    hub,
		logger: logger,
		done:   make(chan struct{}),
	}
	go b.relay()
	return b, nil
}

func (b *RedisBroker) channel(jobID string) string {
	return b.prefix + ":" + jobID
}

func (b *RedisBroker) relay() {
	defer close(b.done)

	for msg := range b.pubsub.Channel() {
		var event models.Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			b.logger.WithError(err).WithField("channel", msg.Channel).Warn("Dropping malformed event")
			continue
		}
		b.hub.Publish(context.Background(), event)
	}
}

func (b *RedisBroker) Publish(ctx context.Context, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return b.client.Publish(ctx, b.channel(event.JobID), payload).Err()
}

func (b *RedisBroker) Subscribe(jobID string) *Subscription {
	return b.hub.Subscribe(jobID)
}

func (b *RedisBroker) Unsubscribe(sub *Subscription) {
	b.hub.Unsubscribe(sub)
}

func (b *RedisBroker) Close() error {
	err := b.pubsub.Close()
	<-b.done
	if cerr := b.client.Close(); err == nil {
		err = cerr
	}
	b.hub.Close()
	return err
}
