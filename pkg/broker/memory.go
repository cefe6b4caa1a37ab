package broker

import (
	"context"
	"sync"

	"github.com/classworks/playsync/pkg/log"
)

const (
	// SubscriptionBufferSize is the per-subscription channel capacity
	SubscriptionBufferSize = 64
)

// InMemoryBroker is the single-node broker implementation.
type InMemoryBroker struct {
	mu   sync.RWMutex
	subs map[string]map[*memorySubscription]struct{}
}

func NewInMemoryBroker() *InMemoryBroker {
	return &InMemoryBroker{
		subs: make(map[string]map[*memorySubscription]struct{}),
	}
}

func (b *InMemoryBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[channel] {
		select {
		case sub.ch <- payload:
		default:
			log.Warn("Dropping payload for slow subscriber on channel %s", channel)
		}
	}
	return nil
}

func (b *InMemoryBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	sub := &memorySubscription{
		broker: b,
		name:   channel,
		ch:     make(chan []byte, SubscriptionBufferSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*memorySubscription]struct{})
	}
	b.subs[channel][sub] = struct{}{}
	return sub, nil
}

func (b *InMemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for channel, subs := range b.subs {
		for sub := range subs {
			sub.once.Do(func() { close(sub.ch) })
		}
		delete(b.subs, channel)
	}
	return nil
}

type memorySubscription struct {
	broker *InMemoryBroker
	name   string
	ch     chan []byte
	once   sync.Once
}

func (s *memorySubscription) Channel() <-chan []byte {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.broker.mu.Lock()
		defer s.broker.mu.Unlock()
		if subs, ok := s.broker.subs[s.name]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.broker.subs, s.name)
			}
		}
		close(s.ch)
	})
	return nil
}
