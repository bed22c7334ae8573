// Package queue schedules session expiries through RabbitMQ so a session
// is torn down on time even when none of its participants is connected.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// ExpiryMessage asks the worker to expire a session once DueAt has passed.
type ExpiryMessage struct {
	SessionID string    `json:"session_id"`
	DueAt     time.Time `json:"due_at"`
	Attempt   int       `json:"attempt"`
}

// Topology names the queues derived from the main queue name. Messages
// parked in the delay and retry queues carry a per-message TTL and are
// dead-lettered back to the main queue when it runs out; the main queue
// dead-letters rejected messages to the DLQ.
type Topology struct {
	Main  string
	Delay string
	Retry string
	DLQ   string
}

func NewTopology(queue string) Topology {
	return Topology{
		Main:  queue,
		Delay: queue + ".delay",
		Retry: queue + ".retry",
		DLQ:   queue + ".dlq",
	}
}

// Declare creates the queues. It is safe to call from every process.
func (t Topology) Declare(ch *amqp.Channel) error {
	backToMain := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": t.Main,
	}
	queues := []struct {
		name string
		args amqp.Table
	}{
		{t.DLQ, nil},
		{t.Delay, backToMain},
		{t.Retry, backToMain},
		{t.Main, amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": t.DLQ,
		}},
	}
	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare %s: %w", q.name, err)
		}
	}
	return nil
}

// Scheduler publishes expiry messages. It implements the hub's
// ExpiryScheduler.
type Scheduler struct {
	conn *amqp.Connection
	topo Topology
	Now  func() time.Time

	mu sync.Mutex
	ch *amqp.Channel
}

func NewScheduler(url, queue string) (*Scheduler, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbit dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbit channel: %w", err)
	}
	topo := NewTopology(queue)
	if err := topo.Declare(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Scheduler{conn: conn, ch: ch, topo: topo, Now: time.Now}, nil
}

func (s *Scheduler) Topology() Topology { return s.topo }

func (s *Scheduler) Close() error {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// ScheduleExpiry arranges for sessionID to be expired at at.
func (s *Scheduler) ScheduleExpiry(ctx context.Context, sessionID string, at time.Time) error {
	msg := ExpiryMessage{SessionID: sessionID, DueAt: at.UTC()}
	return s.Delay(ctx, msg, at.Sub(s.Now()))
}

// Delay parks msg for delay before it reaches the main queue.
func (s *Scheduler) Delay(ctx context.Context, msg ExpiryMessage, delay time.Duration) error {
	if delay <= 0 {
		return s.publish(ctx, s.topo.Main, msg, 0)
	}
	return s.publish(ctx, s.topo.Delay, msg, delay)
}

// Retry parks a failed msg for delay before it is tried again.
func (s *Scheduler) Retry(ctx context.Context, msg ExpiryMessage, delay time.Duration) error {
	return s.publish(ctx, s.topo.Retry, msg, delay)
}

func (s *Scheduler) publish(ctx context.Context, queue string, msg ExpiryMessage, delay time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    s.Now(),
	}
	if delay > 0 {
		pub.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}

	cctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ch.PublishWithContext(cctx, "", queue, false, false, pub); err != nil {
		return fmt.Errorf("publish expiry of %s: %w", msg.SessionID, err)
	}
	return nil
}

// Consume opens a dedicated channel delivering from the main queue with at
// most prefetch unacknowledged messages.
func (s *Scheduler) Consume(prefetch int) (<-chan amqp.Delivery, func() error, error) {
	ch, err := s.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("rabbit channel: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("qos: %w", err)
	}
	msgs, err := ch.Consume(s.topo.Main, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("consume: %w", err)
	}
	return msgs, ch.Close, nil
}
