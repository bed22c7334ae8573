package pubsub

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

const redisChangesChannel = "blindchat:changes"

// RedisBus carries change signals between server instances over Redis
// Pub/Sub. Every instance keeps one subscription and fans the payload (the
// topic name) out locally.
type RedisBus struct {
	rdb   *redis.Client
	ps    *redis.PubSub
	local *MemoryBus
	done  chan struct{}
}

func NewRedisBus(ctx context.Context, rdb *redis.Client) (*RedisBus, error) {
	ps := rdb.Subscribe(ctx, redisChangesChannel)
	// Wait for the subscription to be confirmed so no publish is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", redisChangesChannel, err)
	}

	b := &RedisBus{
		rdb:   rdb,
		ps:    ps,
		local: NewMemoryBus(),
		done:  make(chan struct{}),
	}
	go b.listen()
	return b, nil
}

func (b *RedisBus) listen() {
	defer close(b.done)
	for msg := range b.ps.Channel() {
		b.local.Notify(msg.Payload)
	}
	log.Println("INFO: Redis change feed closed")
}

func (b *RedisBus) Publish(ctx context.Context, topic string) error {
	return b.rdb.Publish(ctx, redisChangesChannel, topic).Err()
}

func (b *RedisBus) Subscribe(topic string) (<-chan struct{}, func()) {
	return b.local.Subscribe(topic)
}

func (b *RedisBus) Close() error {
	err := b.ps.Close()
	<-b.done
	_ = b.local.Close()
	return err
}
