package chathub

import (
	"blindchat/backend/internal/config"
	"blindchat/backend/internal/storage"
	"context"
	"fmt"
	"sync"
	"time"
)

// Ticker is the part of time.Ticker the countdown needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }

// SessionClock owns the fixed countdown of a session. The start time is
// persisted on the session, so any participant (or a restarted client)
// computes the same remaining time.
type SessionClock struct {
	Store     storage.Storage
	Now       func() time.Time
	NewTicker func(time.Duration) Ticker
}

func NewSessionClock(s storage.Storage) *SessionClock {
	return &SessionClock{
		Store:     s,
		Now:       time.Now,
		NewTicker: newRealTicker,
	}
}

// StartOrResume returns the seconds left in the session. A missing, zero or
// future start time is replaced by now and the full window is returned.
func (c *SessionClock) StartOrResume(ctx context.Context, sessionID string) (int, error) {
	session, err := c.Store.GetSession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("start clock: %w", err)
	}

	now := c.Now().UTC()
	start := session.StartTime
	if start == nil || start.IsZero() || start.After(now) {
		if err := c.Store.SetSessionStart(ctx, sessionID, now); err != nil {
			return 0, fmt.Errorf("start clock: %w", err)
		}
		return config.SessionWindowSeconds, nil
	}
	return RemainingSeconds(*start, now), nil
}

// RemainingSeconds is max(window - (now - start), 0) in whole seconds.
func RemainingSeconds(start, now time.Time) int {
	elapsed := int(now.Sub(start) / time.Second)
	remaining := config.SessionWindowSeconds - elapsed
	if remaining < 0 {
		return 0
	}
	if remaining > config.SessionWindowSeconds {
		return config.SessionWindowSeconds
	}
	return remaining
}

// Countdown is a running session timer.
type Countdown struct {
	SessionID string

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu        sync.Mutex
	remaining int
}

// Start runs a countdown from remaining. onTick receives every new value;
// onExpire fires once when zero is reached, after which the countdown
// stops. Callbacks run on the countdown goroutine; one already in progress
// may complete after Stop.
func (c *SessionClock) Start(sessionID string, remaining int, onTick func(int), onExpire func()) *Countdown {
	cd := &Countdown{
		SessionID: sessionID,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		remaining: remaining,
	}
	go cd.run(c.NewTicker(config.ClockTick), onTick, onExpire)
	return cd
}

func (cd *Countdown) run(t Ticker, onTick func(int), onExpire func()) {
	defer close(cd.done)
	defer t.Stop()

	if cd.Remaining() <= 0 {
		cd.finish(onTick, onExpire)
		return
	}

	for {
		select {
		case <-cd.stop:
			return
		case <-t.C():
		}
		if cd.stopped() {
			return
		}

		cd.mu.Lock()
		cd.remaining--
		left := cd.remaining
		cd.mu.Unlock()

		if left <= 0 {
			cd.finish(onTick, onExpire)
			return
		}
		if onTick != nil {
			onTick(left)
		}
	}
}

func (cd *Countdown) finish(onTick func(int), onExpire func()) {
	cd.mu.Lock()
	cd.remaining = 0
	cd.mu.Unlock()

	if onTick != nil {
		onTick(0)
	}
	if onExpire != nil && !cd.stopped() {
		onExpire()
	}
}

func (cd *Countdown) stopped() bool {
	select {
	case <-cd.stop:
		return true
	default:
		return false
	}
}

// Stop halts the countdown. It is safe to call more than once and from
// inside a callback.
func (cd *Countdown) Stop() {
	cd.stopOnce.Do(func() { close(cd.stop) })
}

func (cd *Countdown) Remaining() int {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	return cd.remaining
}

// Wait blocks until the countdown goroutine has exited. It must not be
// called from a callback.
func (cd *Countdown) Wait() {
	<-cd.done
}
