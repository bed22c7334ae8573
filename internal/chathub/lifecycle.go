package chathub

import (
	"blindchat/backend/internal/config"
	"blindchat/backend/internal/models"
	"blindchat/backend/internal/pubsub"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

type LifecycleState string

const (
	StateIdle        LifecycleState = "idle"
	StateSearching   LifecycleState = "searching"
	StateWaiting     LifecycleState = "waiting"
	StateActive      LifecycleState = "active"
	StateExpired     LifecycleState = "expired"
	StateRequestSent LifecycleState = "request_sent"
)

// SessionView is pushed to the client on every state change. The peer's
// identity is deliberately absent: the chat is blind.
type SessionView struct {
	State     LifecycleState `json:"state"`
	SessionID string         `json:"session_id,omitempty"`
	Remaining int            `json:"remaining"`
}

type tickFrame struct {
	SessionID string `json:"session_id"`
	Remaining int    `json:"remaining"`
}

type messagesFrame struct {
	ChannelID string           `json:"channel_id"`
	Messages  []models.Message `json:"messages"`
}

// BlindMessage is a session message as a participant sees it. The author
// is reduced to whether it is the viewer.
type BlindMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text,omitempty"`
	ImageRef  string    `json:"image_ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Seen      bool      `json:"seen"`
	Mine      bool      `json:"mine"`
}

type blindMessagesFrame struct {
	ChannelID string         `json:"channel_id"`
	Messages  []BlindMessage `json:"messages"`
}

// BlindView strips participant ids from messages for viewerID.
func BlindView(viewerID string, messages []models.Message) []BlindMessage {
	out := make([]BlindMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, BlindMessage{
			ID:        m.ID,
			Text:      m.Text,
			ImageRef:  m.ImageRef,
			CreatedAt: m.CreatedAt,
			Seen:      m.Seen,
			Mine:      m.SenderID == viewerID,
		})
	}
	return out
}

type cueFrame struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// ConnectionRequester sends a friend request after a session expires.
type ConnectionRequester interface {
	SendRequest(ctx context.Context, fromID, toID string) (models.RequestResult, error)
}

// ExpiryScheduler arranges a server-side expiry that fires even when no
// participant is connected.
type ExpiryScheduler interface {
	ScheduleExpiry(ctx context.Context, sessionID string, at time.Time) error
}

// Emitter pushes one frame to the user's connection. It must not block and
// must not call back into the Lifecycle.
type Emitter func(frameType string, data any)

// Lifecycle drives one user's blind session:
// idle -> searching -> waiting -> active -> expired -> (request_sent | idle).
// Commands arrive from the user's handler goroutine; timer and subscription
// callbacks arrive on their own goroutines, so all state is under mu and
// callbacks for a session the controller has moved on from are ignored.
type Lifecycle struct {
	userID string
	svc    *Services
	emit   Emitter

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     LifecycleState
	session   *models.Session
	peerID    string
	remaining int
	countdown *Countdown
	unwatch   func()
	unfollow  func()
	tracker   *SnapshotTracker
	closed    bool
}

func NewLifecycle(userID string, svc *Services, emit Emitter) *Lifecycle {
	ctx, cancel := context.WithCancel(context.Background())
	return &Lifecycle{
		userID: userID,
		svc:    svc,
		emit:   emit,
		ctx:    ctx,
		cancel: cancel,
		state:  StateIdle,
	}
}

func (l *Lifecycle) State() LifecycleState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Lifecycle) SessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil {
		return ""
	}
	return l.session.SessionID
}

// PeerID is the other participant of the current or just expired session.
func (l *Lifecycle) PeerID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peerID
}

// Resume picks up a waiting or active session the user already belongs to,
// e.g. after a reconnect. Without one the controller stays idle.
func (l *Lifecycle) Resume(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.state != StateIdle {
		return nil
	}

	session, err := l.svc.Store.FindSessionForUser(ctx, l.userID)
	if errors.Is(err, models.ErrNotFound) {
		l.emitStateLocked()
		return nil
	}
	if err != nil {
		return fmt.Errorf("resume session: %w", err)
	}
	return l.adoptLocked(ctx, session)
}

// RequestSession resumes the user's session if there is one, otherwise
// joins the oldest open session it can claim, otherwise opens a new
// waiting session.
func (l *Lifecycle) RequestSession(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return models.ErrInvalidState
	}
	switch l.state {
	case StateSearching, StateWaiting, StateActive:
		l.emitStateLocked()
		return nil
	}

	l.resetLocked()
	l.setStateLocked(StateSearching)

	session, err := l.svc.Store.FindSessionForUser(ctx, l.userID)
	switch {
	case err == nil:
		return l.adoptLocked(ctx, session)
	case !errors.Is(err, models.ErrNotFound):
		l.setStateLocked(StateIdle)
		return fmt.Errorf("request session: %w", err)
	}

	session, err = l.claimLocked(ctx)
	if err != nil {
		l.setStateLocked(StateIdle)
		return fmt.Errorf("request session: %w", err)
	}
	if session != nil {
		log.Printf("INFO: User %s joined session %s.", l.userID, session.SessionID)
		return l.adoptLocked(ctx, session)
	}

	session = &models.Session{
		SessionID: uuid.New().String(),
		CreatorID: l.userID,
		Status:    models.SessionWaiting,
	}
	if err := l.svc.Store.CreateSession(ctx, session); err != nil {
		l.setStateLocked(StateIdle)
		return fmt.Errorf("request session: %w", err)
	}
	log.Printf("INFO: User %s opened session %s.", l.userID, session.SessionID)
	return l.adoptLocked(ctx, session)
}

// claimLocked walks open sessions oldest first and joins the first one
// whose conditional update it wins.
func (l *Lifecycle) claimLocked(ctx context.Context) (*models.Session, error) {
	open, err := l.svc.Matcher.OpenSessions(ctx, l.userID, config.OpenSessionFanOut)
	if err != nil {
		return nil, err
	}

	for _, candidate := range open {
		ok, err := l.svc.Store.ClaimSession(ctx, candidate.SessionID, l.userID, l.svc.Clock.Now().UTC())
		if err != nil {
			log.Printf("WARNING: Failed to claim session %s: %v", candidate.SessionID, err)
			continue
		}
		if !ok {
			continue
		}
		l.publish(ctx, pubsub.SessionTopic(candidate.SessionID))
		return l.svc.Store.GetSession(ctx, candidate.SessionID)
	}
	return nil, nil
}

func (l *Lifecycle) adoptLocked(ctx context.Context, session *models.Session) error {
	l.session = session
	l.peerID = session.PeerOf(l.userID)

	id := session.SessionID
	l.unwatch = follow(l.ctx, l.svc.Bus, pubsub.SessionTopic(id), func(ctx context.Context) error {
		return l.onSessionChanged(ctx, id)
	})

	if session.Status == models.SessionActive {
		return l.activateLocked(ctx)
	}
	l.setStateLocked(StateWaiting)
	return nil
}

func (l *Lifecycle) activateLocked(ctx context.Context) error {
	id := l.session.SessionID
	remaining, err := l.svc.Clock.StartOrResume(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			l.toIdleLocked()
		}
		return err
	}

	if l.svc.Scheduler != nil {
		at := l.svc.Clock.Now().UTC().Add(time.Duration(remaining) * time.Second)
		if err := l.svc.Scheduler.ScheduleExpiry(ctx, id, at); err != nil {
			log.Printf("WARNING: Failed to schedule expiry of %s: %v", id, err)
		}
	}

	l.remaining = remaining
	l.tracker = NewSnapshotTracker(l.userID)
	l.countdown = l.svc.Clock.Start(id, remaining,
		func(left int) { l.onTick(id, left) },
		func() { l.onExpire(id) },
	)
	l.unfollow = l.svc.Channel.Subscribe(l.ctx, id, func(messages []models.Message) {
		l.onMessages(id, messages)
	})
	l.setStateLocked(StateActive)
	return nil
}

// onSessionChanged reconciles local state with the persisted session after
// a change signal: a peer joined, ended the session or tore it down.
func (l *Lifecycle) onSessionChanged(ctx context.Context, id string) error {
	session, err := l.svc.Store.GetSession(ctx, id)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.currentLocked(id) {
		return nil
	}

	if err != nil {
		switch l.state {
		case StateActive:
			l.expireLocked(false)
		case StateWaiting:
			l.toIdleLocked()
		}
		return nil
	}

	l.session = session
	switch session.Status {
	case models.SessionEnded:
		l.toIdleLocked()
	case models.SessionActive:
		if l.state == StateWaiting {
			l.peerID = session.PeerOf(l.userID)
			if err := l.activateLocked(ctx); err != nil {
				log.Printf("ERROR: Failed to activate session %s for %s: %v", id, l.userID, err)
			}
		}
	}
	return nil
}

func (l *Lifecycle) onTick(id string, left int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.currentLocked(id) || l.state != StateActive {
		return
	}
	l.remaining = left
	l.emit(models.FrameSessionTick, tickFrame{SessionID: id, Remaining: left})
}

func (l *Lifecycle) onExpire(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.currentLocked(id) || l.state != StateActive {
		return
	}
	l.expireLocked(true)
}

func (l *Lifecycle) onMessages(id string, messages []models.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.currentLocked(id) || l.state != StateActive || l.tracker == nil {
		return
	}

	diff := l.tracker.Observe(messages)
	l.emit(models.FrameSessionMessages, blindMessagesFrame{ChannelID: id, Messages: BlindView(l.userID, messages)})
	for _, m := range diff.Incoming {
		l.emit(models.FrameCue, cueFrame{ChannelID: id, MessageID: m.ID})
	}
}

// expireLocked ends the active phase. With teardown set the controller
// destroys the session itself; otherwise a peer already did.
func (l *Lifecycle) expireLocked(teardown bool) {
	id := l.session.SessionID
	l.releaseLocked()
	l.session = nil
	l.remaining = 0

	if teardown {
		// The teardown must outlive the user's connection.
		ctx, cancel := context.WithTimeout(context.Background(), config.ReleaseTimeout)
		defer cancel()
		if err := l.svc.Reaper.Teardown(ctx, id); err != nil {
			log.Printf("ERROR: Failed to tear down expired session %s: %v", id, err)
		}
	}
	l.setStateLocked(StateExpired)
}

// End leaves the current session from any state. A waiting or active
// session is marked ended so the peer returns to idle too.
func (l *Lifecycle) End(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return models.ErrInvalidState
	}

	if l.session != nil && (l.state == StateWaiting || l.state == StateActive) {
		id := l.session.SessionID
		if err := l.svc.Store.EndSession(ctx, id); err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
		l.publish(ctx, pubsub.SessionTopic(id))
		log.Printf("INFO: User %s ended session %s.", l.userID, id)
	}
	l.toIdleLocked()
	return nil
}

// Send posts to the session channel. It is only allowed while active.
func (l *Lifecycle) Send(ctx context.Context, text, imageRef string) (*models.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateActive || l.session == nil {
		return nil, fmt.Errorf("send in state %s: %w", l.state, models.ErrInvalidState)
	}

	return l.svc.Channel.Send(ctx, SendRequest{
		ChannelID:  l.session.SessionID,
		Kind:       models.ChannelBlind,
		SenderID:   l.userID,
		ReceiverID: l.peerID,
		Text:       text,
		ImageRef:   imageRef,
	})
}

// SendConnectionRequest asks the expired session's peer to connect.
func (l *Lifecycle) SendConnectionRequest(ctx context.Context) (models.RequestResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if (l.state != StateExpired && l.state != StateRequestSent) || l.peerID == "" {
		return "", fmt.Errorf("connect in state %s: %w", l.state, models.ErrInvalidState)
	}

	result, err := l.svc.Connections.SendRequest(ctx, l.userID, l.peerID)
	if err != nil {
		return "", err
	}

	switch result {
	case models.RequestSent, models.RequestAlreadyPending:
		l.setStateLocked(StateRequestSent)
	case models.RequestAlreadyPartners, models.RequestTargetMissing:
		l.toIdleLocked()
	}
	return result, nil
}

// Close releases timers and subscriptions. Persisted state is untouched so
// the session can be resumed from another connection.
func (l *Lifecycle) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.releaseLocked()
	l.cancel()
}

func (l *Lifecycle) currentLocked(id string) bool {
	return !l.closed && l.session != nil && l.session.SessionID == id
}

func (l *Lifecycle) toIdleLocked() {
	l.resetLocked()
	l.setStateLocked(StateIdle)
}

func (l *Lifecycle) resetLocked() {
	l.releaseLocked()
	l.session = nil
	l.peerID = ""
	l.remaining = 0
}

func (l *Lifecycle) releaseLocked() {
	if l.countdown != nil {
		l.countdown.Stop()
		l.countdown = nil
	}
	if l.unwatch != nil {
		l.unwatch()
		l.unwatch = nil
	}
	if l.unfollow != nil {
		l.unfollow()
		l.unfollow = nil
	}
	l.tracker = nil
}

func (l *Lifecycle) setStateLocked(state LifecycleState) {
	l.state = state
	l.emitStateLocked()
}

func (l *Lifecycle) emitStateLocked() {
	view := SessionView{State: l.state, Remaining: l.remaining}
	if l.session != nil {
		view.SessionID = l.session.SessionID
	}
	l.emit(models.FrameSessionState, view)
}

func (l *Lifecycle) publish(ctx context.Context, topic string) {
	if err := l.svc.Bus.Publish(ctx, topic); err != nil {
		log.Printf("WARNING: Failed to publish %s: %v", topic, err)
	}
}
