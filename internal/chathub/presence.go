package chathub

import (
	"blindchat/backend/internal/config"
	"blindchat/backend/internal/models"
	"blindchat/backend/internal/pubsub"
	"blindchat/backend/internal/storage"
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// PresenceTracker keeps the per-user online flag and typing record, and
// lets a viewer observe them for one peer.
type PresenceTracker struct {
	Store storage.Storage
	Bus   pubsub.Bus
	Now   func() time.Time
}

func NewPresenceTracker(s storage.Storage, bus pubsub.Bus) *PresenceTracker {
	return &PresenceTracker{Store: s, Bus: bus, Now: time.Now}
}

func (p *PresenceTracker) SetOnline(ctx context.Context, userID string, online bool) error {
	if err := p.Store.SetOnline(ctx, userID, online); err != nil {
		return err
	}
	p.publish(ctx, userID)
	return nil
}

// SetTyping records that userID is (or stopped) typing to targetID. Typing
// follows input focus, not keystrokes.
func (p *PresenceTracker) SetTyping(ctx context.Context, userID, targetID string, typing bool) error {
	rec := &models.TypingRecord{
		UserID:    userID,
		TargetID:  targetID,
		Typing:    typing,
		UpdatedAt: p.Now().UTC(),
	}
	if err := p.Store.UpsertTyping(ctx, rec); err != nil {
		return err
	}
	p.publish(ctx, userID)
	return nil
}

// ObservePeer reports peerID's status as seen by viewerID, once right away
// and then whenever it changes. Typing aimed at anyone other than the
// viewer is reported as not typing.
func (p *PresenceTracker) ObservePeer(ctx context.Context, viewerID, peerID string, onUpdate func(models.PeerStatus)) func() {
	var last *models.PeerStatus
	return follow(ctx, p.Bus, pubsub.PeerTopic(peerID), func(ctx context.Context) error {
		user, err := p.Store.GetUser(ctx, peerID)
		if err != nil {
			return err
		}
		rec, err := p.Store.GetTyping(ctx, peerID)
		if err != nil {
			return err
		}

		status := models.PeerStatus{
			PeerID: peerID,
			Online: user.Online,
			Typing: user.Online && rec != nil && rec.Typing && rec.TargetID == viewerID,
		}
		if last != nil && *last == status {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		last = &status
		onUpdate(status)
		return nil
	})
}

// Acquire marks the user online and returns the matching release. Release
// clears both the online flag and any typing state, runs at most once and
// does not depend on ctx, so it can be deferred on every exit path.
func (p *PresenceTracker) Acquire(ctx context.Context, userID string) (func(), error) {
	if err := p.SetOnline(ctx, userID, true); err != nil {
		return func() {}, fmt.Errorf("acquire presence: %w", err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), config.ReleaseTimeout)
			defer cancel()

			if err := p.SetOnline(ctx, userID, false); err != nil {
				log.Printf("ERROR: Failed to mark %s offline: %v", userID, err)
			}
			rec, err := p.Store.GetTyping(ctx, userID)
			if err != nil {
				log.Printf("ERROR: Failed to read typing state of %s: %v", userID, err)
				return
			}
			if rec != nil && rec.Typing {
				if err := p.SetTyping(ctx, userID, rec.TargetID, false); err != nil {
					log.Printf("ERROR: Failed to clear typing state of %s: %v", userID, err)
				}
			}
		})
	}
	return release, nil
}

func (p *PresenceTracker) publish(ctx context.Context, userID string) {
	if err := p.Bus.Publish(ctx, pubsub.PeerTopic(userID)); err != nil {
		log.Printf("WARNING: Failed to publish presence of %s: %v", userID, err)
	}
}
