// Package pubsub provides the change feed behind every live subscription.
// A publish only says "this topic changed"; subscribers re-read the current
// state themselves, so missed or coalesced signals are harmless.
package pubsub

import (
	"context"
	"sync"
)

// Bus delivers change signals for named topics.
type Bus interface {
	// Publish announces that the state behind topic changed.
	Publish(ctx context.Context, topic string) error
	// Subscribe returns a channel that receives at least one signal after
	// every publish on topic, and a cancel func that closes it.
	Subscribe(topic string) (<-chan struct{}, func())
	Close() error
}

func SessionTopic(sessionID string) string  { return "session:" + sessionID }
func MessagesTopic(channelID string) string { return "messages:" + channelID }
func PeerTopic(userID string) string        { return "peer:" + userID }
func UserTopic(userID string) string        { return "user:" + userID }

type subscription struct {
	ch chan struct{}
}

// MemoryBus fans signals out inside one process. The network-backed buses
// use it for local delivery.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[*subscription]struct{})}
}

func (b *MemoryBus) Publish(_ context.Context, topic string) error {
	b.Notify(topic)
	return nil
}

// Notify signals every subscriber of topic without blocking. Pending
// signals are coalesced.
func (b *MemoryBus) Notify(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs[topic] {
		select {
		case s.ch <- struct{}{}:
		default:
		}
	}
}

// NotifyAll signals every subscriber of every topic, used after a feed
// reconnect when signals may have been lost.
func (b *MemoryBus) NotifyAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.subs {
		for s := range subs {
			select {
			case s.ch <- struct{}{}:
			default:
			}
		}
	}
}

func (b *MemoryBus) Subscribe(topic string) (<-chan struct{}, func()) {
	s := &subscription{ch: make(chan struct{}, 1)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*subscription]struct{})
	}
	b.subs[topic][s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[topic][s]; !ok {
				return
			}
			delete(b.subs[topic], s)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
			close(s.ch)
		})
	}
	return s.ch, cancel
}

// Subscribers returns the number of live subscriptions on topic.
func (b *MemoryBus) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

// Close closes every subscription channel.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for topic, subs := range b.subs {
		for s := range subs {
			close(s.ch)
		}
		delete(b.subs, topic)
	}
	return nil
}
