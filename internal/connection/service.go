// Package connection maintains the friend graph: pending requests stored
// on the receiver and partner edges stored on both sides.
package connection

import (
	"blindchat/backend/internal/models"
	"blindchat/backend/internal/pubsub"
	"blindchat/backend/internal/storage"
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

type Service struct {
	Store storage.Storage
	Bus   pubsub.Bus
	Now   func() time.Time
}

func NewService(s storage.Storage, bus pubsub.Bus) *Service {
	return &Service{Store: s, Bus: bus, Now: time.Now}
}

// SendRequest records a pending request from fromID on toID. The sender
// must have a directory entry, since the request carries a copy of it.
func (s *Service) SendRequest(ctx context.Context, fromID, toID string) (models.RequestResult, error) {
	if fromID == toID {
		return "", models.ErrSelfRequest
	}

	sender, err := s.Store.GetUser(ctx, fromID)
	if err != nil {
		return "", fmt.Errorf("sender profile: %w", err)
	}

	if _, err := s.Store.GetUser(ctx, toID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.RequestTargetMissing, nil
		}
		return "", err
	}

	partners, err := s.Store.ArePartners(ctx, fromID, toID)
	if err != nil {
		return "", err
	}
	if partners {
		return models.RequestAlreadyPartners, nil
	}

	pending, err := s.Store.ListRequests(ctx, toID)
	if err != nil {
		return "", err
	}
	for _, r := range pending {
		if r.FromUserID == fromID {
			return models.RequestAlreadyPending, nil
		}
	}

	summary := sender.Summary()
	created, err := s.Store.CreateRequest(ctx, &models.ConnectionRequest{
		ToUserID:   toID,
		FromUserID: fromID,
		Name:       summary.Name,
		Email:      summary.Email,
		AvatarRef:  summary.AvatarRef,
		Interests:  summary.Interests,
		Timestamp:  s.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	if !created {
		// Lost a race with a concurrent send of the same pair.
		return models.RequestAlreadyPending, nil
	}

	s.publish(ctx, toID)
	log.Printf("INFO: Connection request %s -> %s sent.", fromID, toID)
	return models.RequestSent, nil
}

// AcceptRequest makes selfID and requesterID partners. Retrying an accept
// that already went through succeeds.
func (s *Service) AcceptRequest(ctx context.Context, selfID, requesterID string) error {
	if selfID == requesterID {
		return models.ErrSelfRequest
	}
	if err := s.Store.AcceptRequest(ctx, selfID, requesterID, s.Now().UTC()); err != nil {
		return err
	}
	s.publish(ctx, selfID, requesterID)
	return nil
}

// DeclineRequest drops the pending request without creating edges.
func (s *Service) DeclineRequest(ctx context.Context, selfID, requesterID string) error {
	deleted, err := s.Store.DeleteRequest(ctx, selfID, requesterID)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("request from %s: %w", requesterID, models.ErrNotFound)
	}
	s.publish(ctx, selfID)
	return nil
}

func (s *Service) ListRequests(ctx context.Context, selfID string) ([]models.ConnectionRequest, error) {
	return s.Store.ListRequests(ctx, selfID)
}

func (s *Service) ListPartners(ctx context.Context, selfID string) ([]models.PartnerEdge, error) {
	return s.Store.ListPartners(ctx, selfID)
}

func (s *Service) publish(ctx context.Context, userIDs ...string) {
	for _, id := range userIDs {
		if err := s.Bus.Publish(ctx, pubsub.UserTopic(id)); err != nil {
			log.Printf("WARNING: Failed to publish connection change for %s: %v", id, err)
		}
	}
}
