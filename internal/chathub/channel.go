package chathub

import (
	"blindchat/backend/internal/models"
	"blindchat/backend/internal/pubsub"
	"blindchat/backend/internal/storage"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// SendRequest describes one outgoing message.
type SendRequest struct {
	ChannelID  string
	Kind       models.ChannelKind
	SenderID   string
	ReceiverID string
	Text       string
	ImageRef   string
}

// MessageChannel is the append-only message log of a session or a friend
// chat, with a live subscription over it.
type MessageChannel struct {
	Store storage.Storage
	Bus   pubsub.Bus
	Now   func() time.Time
}

func NewMessageChannel(s storage.Storage, bus pubsub.Bus) *MessageChannel {
	return &MessageChannel{Store: s, Bus: bus, Now: time.Now}
}

// Send appends a message. A message without text (after trimming) and
// without an image is silently dropped: it returns nil, nil.
func (c *MessageChannel) Send(ctx context.Context, req SendRequest) (*models.Message, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" && req.ImageRef == "" {
		return nil, nil
	}

	// The ULID carries the same millisecond as CreatedAt.
	at := c.Now().UTC().Truncate(time.Millisecond)
	msg := &models.Message{
		ID:         ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String(),
		ChannelID:  req.ChannelID,
		Kind:       req.Kind,
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		Text:       text,
		ImageRef:   req.ImageRef,
		CreatedAt:  at,
	}
	if err := c.Store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("send to %s: %w", req.ChannelID, err)
	}

	c.publish(ctx, pubsub.MessagesTopic(req.ChannelID))
	return msg, nil
}

// Subscribe delivers the full ordered log of the channel right away and
// again after every change. Each delivery replaces the previous one.
// The returned func unsubscribes and may be called any number of times.
func (c *MessageChannel) Subscribe(ctx context.Context, channelID string, onUpdate func([]models.Message)) func() {
	return follow(ctx, c.Bus, pubsub.MessagesTopic(channelID), func(ctx context.Context) error {
		messages, err := c.Store.ListMessages(ctx, channelID)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		onUpdate(messages)
		return nil
	})
}

// MarkSeen marks a message seen on behalf of its receiver. Calls by anyone
// else, or repeated calls, change nothing.
func (c *MessageChannel) MarkSeen(ctx context.Context, messageID, viewerID string) error {
	msg, err := c.Store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.Seen || msg.ReceiverID != viewerID {
		return nil
	}

	changed, err := c.Store.MarkSeen(ctx, messageID, viewerID)
	if err != nil {
		return err
	}
	if changed {
		c.publish(ctx, pubsub.MessagesTopic(msg.ChannelID))
	}
	return nil
}

// The write already succeeded, so a failed publish only delays subscribers
// until the next change.
func (c *MessageChannel) publish(ctx context.Context, topic string) {
	if err := c.Bus.Publish(ctx, topic); err != nil {
		log.Printf("WARNING: Failed to publish change on %s: %v", topic, err)
	}
}

// SnapshotDiff is what changed between two deliveries of a channel.
type SnapshotDiff struct {
	// Added holds messages not present in any earlier snapshot.
	Added []models.Message
	// Incoming is the subset of Added sent by someone other than the viewer.
	Incoming []models.Message
}

// SnapshotTracker turns full snapshots into per-message side effects. The
// first snapshot only establishes a baseline: history is never announced
// as incoming.
type SnapshotTracker struct {
	viewerID string
	known    map[string]struct{}
	primed   bool
}

func NewSnapshotTracker(viewerID string) *SnapshotTracker {
	return &SnapshotTracker{viewerID: viewerID, known: make(map[string]struct{})}
}

func (t *SnapshotTracker) Observe(snapshot []models.Message) SnapshotDiff {
	var diff SnapshotDiff
	for _, m := range snapshot {
		if _, ok := t.known[m.ID]; ok {
			continue
		}
		t.known[m.ID] = struct{}{}
		diff.Added = append(diff.Added, m)
		if t.primed && m.SenderID != t.viewerID {
			diff.Incoming = append(diff.Incoming, m)
		}
	}
	t.primed = true
	return diff
}
