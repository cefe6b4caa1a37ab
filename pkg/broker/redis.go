package broker

import (
	"context"
	"fmt"

	"github.com/classworks/playsync/pkg/log"
	"github.com/redis/go-redis/v9"
)

// RedisBroker fans payloads out through redis pub/sub so multiple
// server nodes share the same channels.
type RedisBroker struct {
	client *redis.Client
}

type NewRedisBrokerOptions struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisBroker(ctx context.Context, opts NewRedisBrokerOptions) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %v", err)
	}
	return &RedisBroker{
		client: client,
	}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %v", channel, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channel)

	// wait for the subscription confirmation before handing it out
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe to channel %s: %v", channel, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		ch:     make(chan []byte, SubscriptionBufferSize),
	}
	go sub.pump(channel)
	return sub, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	ch     chan []byte
}

func (s *redisSubscription) pump(channel string) {
	defer close(s.ch)
	for msg := range s.pubsub.Channel() {
		select {
		case s.ch <- []byte(msg.Payload):
		default:
			log.Warn("Dropping payload for slow subscriber on channel %s", channel)
		}
	}
}

func (s *redisSubscription) Channel() <-chan []byte {
	return s.ch
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}
