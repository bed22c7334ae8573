package storage

import (
	"blindchat/backend/internal/models"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateRequest stores a pending request unless one already exists for the
// pair. It reports whether a row was written.
func (s *Service) CreateRequest(ctx context.Context, req *models.ConnectionRequest) (bool, error) {
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(req)
	if res.Error != nil {
		return false, fmt.Errorf("create request %s->%s: %w", req.FromUserID, req.ToUserID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Service) ListRequests(ctx context.Context, toUserID string) ([]models.ConnectionRequest, error) {
	reqs := []models.ConnectionRequest{}
	err := s.read(ctx, "list requests", func(db *gorm.DB) error {
		return db.Where("to_user_id = ?", toUserID).Order("timestamp ASC").Find(&reqs).Error
	})
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

func (s *Service) DeleteRequest(ctx context.Context, toUserID, fromUserID string) (bool, error) {
	res := s.DB.WithContext(ctx).
		Where("to_user_id = ? AND from_user_id = ?", toUserID, fromUserID).
		Delete(&models.ConnectionRequest{})
	if res.Error != nil {
		return false, fmt.Errorf("delete request %s->%s: %w", fromUserID, toUserID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// AcceptRequest turns the pending request from requesterID into a pair of
// partner edges. Everything happens in one transaction: the request (and
// any reverse request) is removed and both edges are inserted if absent.
// Accepting an already accepted request succeeds.
func (s *Service) AcceptRequest(ctx context.Context, selfID, requesterID string, at time.Time) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reqs []models.ConnectionRequest
		if err := tx.Where("to_user_id = ? AND from_user_id = ?", selfID, requesterID).
			Limit(1).Find(&reqs).Error; err != nil {
			return err
		}
		if len(reqs) == 0 {
			var n int64
			if err := tx.Model(&models.PartnerEdge{}).
				Where("owner_id = ? AND partner_id = ?", selfID, requesterID).
				Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return nil
			}
			return fmt.Errorf("request from %s: %w", requesterID, models.ErrNotFound)
		}

		var self models.User
		if err := tx.Preload("Interests").Where("id = ?", selfID).First(&self).Error; err != nil {
			return notFound(err, "user "+selfID)
		}

		if err := tx.Where("(to_user_id = ? AND from_user_id = ?) OR (to_user_id = ? AND from_user_id = ?)",
			selfID, requesterID, requesterID, selfID).
			Delete(&models.ConnectionRequest{}).Error; err != nil {
			return err
		}

		edges := []*models.PartnerEdge{
			models.NewPartnerEdge(selfID, reqs[0].Summary(), at),
			models.NewPartnerEdge(requesterID, self.Summary(), at),
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(edges).Error
	})
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.Printf("ERROR: Failed to accept request %s->%s: %v", requesterID, selfID, err)
		}
		return fmt.Errorf("accept request: %w", err)
	}
	return nil
}

func (s *Service) ListPartners(ctx context.Context, ownerID string) ([]models.PartnerEdge, error) {
	edges := []models.PartnerEdge{}
	err := s.read(ctx, "list partners", func(db *gorm.DB) error {
		return db.Where("owner_id = ?", ownerID).Order("created_at ASC").Find(&edges).Error
	})
	if err != nil {
		return nil, err
	}
	return edges, nil
}

// ArePartners checks a's partner list for b.
func (s *Service) ArePartners(ctx context.Context, a, b string) (bool, error) {
	var n int64
	err := s.read(ctx, "are partners", func(db *gorm.DB) error {
		return db.Model(&models.PartnerEdge{}).
			Where("owner_id = ? AND partner_id = ?", a, b).
			Count(&n).Error
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
