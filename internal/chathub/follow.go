package chathub

import (
	"blindchat/backend/internal/pubsub"
	"context"
	"log"
)

// follow runs fn once right away and again after every change signal on
// topic, always on the same goroutine, until the returned cancel is called
// or ctx ends. A failed refresh is logged and retried on the next signal.
// cancel never blocks; a refresh already in flight may still complete.
func follow(ctx context.Context, bus pubsub.Bus, topic string, fn func(ctx context.Context) error) func() {
	signals, unsubscribe := bus.Subscribe(topic)
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer unsubscribe()

		refresh := func() {
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				log.Printf("WARNING: Refresh of %s failed: %v", topic, err)
			}
		}

		refresh()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok || ctx.Err() != nil {
					return
				}
				refresh()
			}
		}
	}()

	return cancel
}
