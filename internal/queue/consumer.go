package queue

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Expirer tears a session down if its window has passed.
type Expirer interface {
	ExpireIfDue(ctx context.Context, sessionID string, now time.Time) (bool, error)
}

// Republisher puts a message back for a later attempt.
type Republisher interface {
	Delay(ctx context.Context, msg ExpiryMessage, delay time.Duration) error
	Retry(ctx context.Context, msg ExpiryMessage, delay time.Duration) error
}

// Outcome is what happened to one delivery.
type Outcome int

const (
	Done Outcome = iota
	Rescheduled
	Retried
	DeadLettered
	// Requeue means the message could not be handled or parked and should
	// go back to the main queue as is.
	Requeue
)

type Consumer struct {
	Expirer     Expirer
	Out         Republisher
	MaxAttempts int
	RetryBase   time.Duration
	RetryMax    time.Duration
	Now         func() time.Time
}

func NewConsumer(e Expirer, out Republisher, maxAttempts int) *Consumer {
	return &Consumer{
		Expirer:     e,
		Out:         out,
		MaxAttempts: maxAttempts,
		RetryBase:   time.Second,
		RetryMax:    time.Minute,
		Now:         time.Now,
	}
}

// Handle processes one message body.
func (c *Consumer) Handle(ctx context.Context, body []byte) Outcome {
	var msg ExpiryMessage
	if err := json.Unmarshal(body, &msg); err != nil || msg.SessionID == "" {
		log.Printf("ERROR: Bad expiry message: %v", err)
		return DeadLettered
	}

	now := c.Now()
	if now.Before(msg.DueAt) {
		if err := c.Out.Delay(ctx, msg, msg.DueAt.Sub(now)); err != nil {
			log.Printf("ERROR: Failed to reschedule expiry of %s: %v", msg.SessionID, err)
			return Requeue
		}
		return Rescheduled
	}

	expired, err := c.Expirer.ExpireIfDue(ctx, msg.SessionID, now)
	if err == nil {
		if expired {
			log.Printf("INFO: Expired session %s.", msg.SessionID)
		}
		return Done
	}

	msg.Attempt++
	if msg.Attempt >= c.MaxAttempts {
		log.Printf("ERROR: Giving up on expiry of %s after %d attempts: %v", msg.SessionID, msg.Attempt, err)
		return DeadLettered
	}
	log.Printf("WARNING: Expiry of %s failed (attempt %d): %v", msg.SessionID, msg.Attempt, err)
	if err := c.Out.Retry(ctx, msg, c.retryDelay(msg.Attempt)); err != nil {
		log.Printf("ERROR: Failed to park retry of %s: %v", msg.SessionID, err)
		return Requeue
	}
	return Retried
}

func (c *Consumer) retryDelay(attempt int) time.Duration {
	d := c.RetryBase
	for i := 1; i < attempt && d < c.RetryMax; i++ {
		d *= 2
	}
	return min(d, c.RetryMax)
}

// Run handles deliveries with a fixed pool of workers until ctx ends or
// the delivery channel closes.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery, concurrency int) {
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				c.settle(ctx, workerID, d)
			}
		}(i)
	}

	defer func() {
		close(jobs)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Println("INFO: Expiry consumer shutting down.")
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Println("WARNING: Delivery channel closed.")
				return
			}
			jobs <- d
		}
	}
}

func (c *Consumer) settle(ctx context.Context, workerID int, d amqp.Delivery) {
	var err error
	switch c.Handle(ctx, d.Body) {
	case Done, Rescheduled, Retried:
		err = d.Ack(false)
	case DeadLettered:
		err = d.Nack(false, false)
	case Requeue:
		err = d.Nack(false, true)
	}
	if err != nil {
		log.Printf("ERROR: worker=%d failed to settle delivery: %v", workerID, err)
	}
}
