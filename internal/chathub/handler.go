package chathub

import (
	"blindchat/backend/internal/models"
	"blindchat/backend/internal/pubsub"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

const inboxSize = 64

// UserHandler is the single logical thread serving one connected user.
// Commands are processed one at a time in arrival order; subscription
// callbacks only emit frames.
type UserHandler struct {
	userID    string
	svc       *Services
	lifecycle *Lifecycle

	inbox  chan models.ClientCommand
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	emitMu sync.Mutex
	send   chan<- models.ServerFrame
	closed bool

	started    atomic.Bool
	foreground atomic.Bool
	release    func()

	// Direct chat state, owned by the loop goroutine.
	chatPeer  string
	unfollow  func()
	unobserve func()
}

func NewUserHandler(userID string, svc *Services, send chan<- models.ServerFrame) *UserHandler {
	ctx, cancel := context.WithCancel(context.Background())
	h := &UserHandler{
		userID:  userID,
		svc:     svc,
		inbox:   make(chan models.ClientCommand, inboxSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		send:    send,
		release: func() {},
	}
	h.lifecycle = NewLifecycle(userID, svc, h.emit)
	h.foreground.Store(true)
	return h
}

// Start marks the user online, resumes any session it belongs to and
// begins processing commands.
func (h *UserHandler) Start() {
	if h.started.CompareAndSwap(false, true) {
		go h.loop()
	}
}

// Deliver queues a command. It reports false when the inbox is full.
func (h *UserHandler) Deliver(cmd models.ClientCommand) bool {
	select {
	case h.inbox <- cmd:
		return true
	default:
		return false
	}
}

// Stop ends the loop and releases everything the user held: subscriptions,
// timers and the presence record. It is idempotent.
func (h *UserHandler) Stop() {
	h.cancel()
	if h.started.Load() {
		<-h.done
	}

	h.closeChat()
	h.lifecycle.Close()
	h.release()

	h.emitMu.Lock()
	h.closed = true
	h.emitMu.Unlock()
}

func (h *UserHandler) loop() {
	defer close(h.done)

	release, err := h.svc.Presence.Acquire(h.ctx, h.userID)
	if err != nil {
		log.Printf("ERROR: Failed to mark %s online: %v", h.userID, err)
	}
	h.release = release

	if err := h.lifecycle.Resume(h.ctx); err != nil {
		log.Printf("WARNING: Failed to resume session of %s: %v", h.userID, err)
	}

	unwatch := follow(h.ctx, h.svc.Bus, pubsub.UserTopic(h.userID), h.pushConnections)
	defer unwatch()

	for {
		select {
		case <-h.ctx.Done():
			return
		case cmd := <-h.inbox:
			if err := h.handle(cmd); err != nil {
				h.notify(cmd.Type, err)
			}
		}
	}
}

// pushConnections sends the current requests and partners.
func (h *UserHandler) pushConnections(ctx context.Context) error {
	requests, err := h.svc.Store.ListRequests(ctx, h.userID)
	if err != nil {
		return err
	}
	partners, err := h.svc.Store.ListPartners(ctx, h.userID)
	if err != nil {
		return err
	}
	h.emit(models.FrameConnections, models.ConnectionsView{Requests: requests, Partners: partners})
	return nil
}

func (h *UserHandler) handle(cmd models.ClientCommand) error {
	ctx := h.ctx
	switch cmd.Type {
	case models.FrameSessionRequest:
		return h.lifecycle.RequestSession(ctx)

	case models.FrameSessionEnd:
		return h.lifecycle.End(ctx)

	case models.FrameSessionSend:
		h.emit(models.FrameDraftCleared, nil)
		_, err := h.lifecycle.Send(ctx, cmd.Text, cmd.ImageRef)
		return err

	case models.FrameSessionConnect:
		result, err := h.lifecycle.SendConnectionRequest(ctx)
		if err != nil {
			return err
		}
		return resultError(result)

	case models.FrameChatOpen:
		return h.openChat(ctx, cmd.PeerID)

	case models.FrameChatClose:
		h.closeChat()
		return nil

	case models.FrameChatSend:
		if h.chatPeer == "" {
			return fmt.Errorf("no open chat: %w", models.ErrInvalidState)
		}
		h.emit(models.FrameDraftCleared, nil)
		_, err := h.svc.Channel.Send(ctx, SendRequest{
			ChannelID:  models.DirectChannelID(h.userID, h.chatPeer),
			Kind:       models.ChannelDirect,
			SenderID:   h.userID,
			ReceiverID: h.chatPeer,
			Text:       cmd.Text,
			ImageRef:   cmd.ImageRef,
		})
		return err

	case models.FrameChatSeen:
		for _, id := range cmd.MessageIDs {
			if err := h.svc.Channel.MarkSeen(ctx, id, h.userID); err != nil && !errors.Is(err, models.ErrNotFound) {
				return err
			}
		}
		return nil

	case models.FrameInputFocus, models.FrameInputBlur:
		target := h.typingTarget()
		if target == "" {
			return nil
		}
		return h.svc.Presence.SetTyping(ctx, h.userID, target, cmd.Type == models.FrameInputFocus)

	case models.FrameAppForeground, models.FrameAppBackground:
		online := cmd.Type == models.FrameAppForeground
		h.foreground.Store(online)
		if err := h.svc.Presence.SetOnline(ctx, h.userID, online); err != nil {
			return err
		}
		if online && h.chatPeer != "" {
			// Messages pushed while in the background were never rendered.
			messages, err := h.svc.Store.ListMessages(ctx, models.DirectChannelID(h.userID, h.chatPeer))
			if err != nil {
				return err
			}
			h.markRendered(messages)
		}
		return nil
	}

	log.Printf("WARNING: Unknown frame type %q from %s", cmd.Type, h.userID)
	return fmt.Errorf("unknown frame %q: %w", cmd.Type, models.ErrInvalidState)
}

// openChat subscribes to the persistent chat with a partner and to the
// partner's presence.
func (h *UserHandler) openChat(ctx context.Context, peerID string) error {
	if peerID == "" || peerID == h.userID {
		return fmt.Errorf("open chat with %q: %w", peerID, models.ErrInvalidState)
	}
	ok, err := h.svc.Store.ArePartners(ctx, h.userID, peerID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("open chat with %s: %w", peerID, models.ErrNotFound)
	}

	h.closeChat()
	h.chatPeer = peerID
	channelID := models.DirectChannelID(h.userID, peerID)
	tracker := NewSnapshotTracker(h.userID)

	h.unfollow = h.svc.Channel.Subscribe(h.ctx, channelID, func(messages []models.Message) {
		diff := tracker.Observe(messages)
		h.emit(models.FrameChatMessages, messagesFrame{ChannelID: channelID, Messages: messages})
		for _, m := range diff.Incoming {
			h.emit(models.FrameCue, cueFrame{ChannelID: channelID, MessageID: m.ID})
		}
		if h.foreground.Load() {
			h.markRendered(messages)
		}
	})
	h.unobserve = h.svc.Presence.ObservePeer(h.ctx, h.userID, peerID, func(status models.PeerStatus) {
		h.emit(models.FramePeerStatus, status)
	})
	return nil
}

// markRendered marks every unseen message addressed to the user as seen
// once it has been pushed to the open chat.
func (h *UserHandler) markRendered(messages []models.Message) {
	for _, m := range messages {
		if m.Seen || m.ReceiverID != h.userID {
			continue
		}
		if err := h.svc.Channel.MarkSeen(h.ctx, m.ID, h.userID); err != nil && h.ctx.Err() == nil {
			log.Printf("WARNING: Failed to mark %s seen: %v", m.ID, err)
		}
	}
}

func (h *UserHandler) closeChat() {
	if h.unfollow != nil {
		h.unfollow()
		h.unfollow = nil
	}
	if h.unobserve != nil {
		h.unobserve()
		h.unobserve = nil
	}
	h.chatPeer = ""
}

func (h *UserHandler) typingTarget() string {
	if h.chatPeer != "" {
		return h.chatPeer
	}
	if h.lifecycle.State() == StateActive {
		return h.lifecycle.PeerID()
	}
	return ""
}

// emit pushes a frame without blocking. Frames for a slow client are
// dropped; the next snapshot carries the full state again.
func (h *UserHandler) emit(frameType string, data any) {
	frame, err := models.NewServerFrame(frameType, data)
	if err != nil {
		log.Printf("ERROR: Failed to encode %s frame for %s: %v", frameType, h.userID, err)
		return
	}

	h.emitMu.Lock()
	defer h.emitMu.Unlock()
	if h.closed {
		return
	}
	select {
	case h.send <- frame:
	default:
		log.Printf("WARNING: Send buffer of %s full, dropping %s frame", h.userID, frameType)
	}
}

func (h *UserHandler) notify(frameType string, err error) {
	log.Printf("WARNING: %s from %s failed: %v", frameType, h.userID, err)
	h.emit(models.FrameNotice, h.svc.Notices(err))
}

// resultError maps a non-success request outcome onto the error taxonomy
// so the user gets a notice.
func resultError(result models.RequestResult) error {
	switch result {
	case models.RequestAlreadyPending:
		return models.ErrDuplicateRequest
	case models.RequestAlreadyPartners:
		return models.ErrAlreadyPartners
	case models.RequestTargetMissing:
		return fmt.Errorf("peer profile: %w", models.ErrNotFound)
	}
	return nil
}
