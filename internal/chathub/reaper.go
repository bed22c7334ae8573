package chathub

import (
	"blindchat/backend/internal/config"
	"blindchat/backend/internal/models"
	"blindchat/backend/internal/pubsub"
	"blindchat/backend/internal/storage"
	"context"
	"errors"
	"log"
	"time"
)

// Reaper destroys expired sessions: their messages and the session record
// go in one transaction, then participants are told through the bus.
type Reaper struct {
	Store storage.Storage
	Bus   pubsub.Bus
}

func NewReaper(s storage.Storage, bus pubsub.Bus) *Reaper {
	return &Reaper{Store: s, Bus: bus}
}

// Teardown is idempotent; both participants and the background workers
// may call it for the same session.
func (r *Reaper) Teardown(ctx context.Context, sessionID string) error {
	if err := r.Store.TeardownSession(ctx, sessionID); err != nil {
		return err
	}
	for _, topic := range []string{pubsub.SessionTopic(sessionID), pubsub.MessagesTopic(sessionID)} {
		if err := r.Bus.Publish(ctx, topic); err != nil {
			log.Printf("WARNING: Failed to publish teardown of %s: %v", sessionID, err)
		}
	}
	log.Printf("INFO: Session %s torn down.", sessionID)
	return nil
}

// ExpireIfDue tears the session down when its window has passed. It reports
// whether a teardown happened. Sessions that are gone, still waiting or not
// yet due are left alone.
func (r *Reaper) ExpireIfDue(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	session, err := r.Store.GetSession(ctx, sessionID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	switch session.Status {
	case models.SessionWaiting:
		return false, nil
	case models.SessionActive:
		if session.StartTime == nil || now.Sub(*session.StartTime) < config.SessionWindow {
			return false, nil
		}
	}

	if err := r.Teardown(ctx, sessionID); err != nil {
		return false, err
	}
	return true, nil
}
