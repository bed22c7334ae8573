package storage

import (
	"blindchat/backend/internal/models"
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
)

func (s *Service) CreateSession(ctx context.Context, session *models.Session) error {
	if err := s.DB.WithContext(ctx).Create(session).Error; err != nil {
		log.Printf("ERROR: Failed to create session for %s: %v", session.CreatorID, err)
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	err := s.read(ctx, "get session", func(db *gorm.DB) error {
		return db.Where("session_id = ?", sessionID).First(&session).Error
	})
	if err != nil {
		return nil, notFound(err, "session "+sessionID)
	}
	return &session, nil
}

// FindSessionForUser returns the newest waiting or active session the user
// takes part in.
func (s *Service) FindSessionForUser(ctx context.Context, userID string) (*models.Session, error) {
	var session models.Session
	err := s.read(ctx, "find session for user", func(db *gorm.DB) error {
		return db.Where("status IN ?", []models.SessionStatus{models.SessionWaiting, models.SessionActive}).
			Where("creator_id = ? OR peer_id = ?", userID, userID).
			Order("created_at DESC").
			First(&session).Error
	})
	if err != nil {
		return nil, notFound(err, "session of "+userID)
	}
	return &session, nil
}

// FindWaitingSessions lists open sessions, oldest first, skipping those
// created by excludeCreator.
func (s *Service) FindWaitingSessions(ctx context.Context, excludeCreator string, limit int) ([]models.Session, error) {
	var sessions []models.Session
	err := s.read(ctx, "find waiting sessions", func(db *gorm.DB) error {
		q := db.Where("status = ?", models.SessionWaiting).
			Where("creator_id <> ?", excludeCreator).
			Order("created_at ASC").
			Order("session_id ASC")
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q.Find(&sessions).Error
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// ClaimSession joins userID to a waiting session. The status guard makes
// the claim atomic: of several concurrent joiners exactly one gets true.
func (s *Service) ClaimSession(ctx context.Context, sessionID, userID string, at time.Time) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.Session{}).
		Where("session_id = ? AND status = ? AND creator_id <> ?", sessionID, models.SessionWaiting, userID).
		Updates(map[string]any{
			"peer_id":    userID,
			"status":     models.SessionActive,
			"start_time": at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim session %s: %w", sessionID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Service) SetSessionStart(ctx context.Context, sessionID string, at time.Time) error {
	res := s.DB.WithContext(ctx).Model(&models.Session{}).
		Where("session_id = ?", sessionID).
		Update("start_time", at)
	if res.Error != nil {
		return fmt.Errorf("set start of %s: %w", sessionID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("set start of %s: %w", sessionID, models.ErrNotFound)
	}
	return nil
}

// EndSession marks a session ended. The record stays until a teardown.
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	res := s.DB.WithContext(ctx).Model(&models.Session{}).
		Where("session_id = ?", sessionID).
		Update("status", models.SessionEnded)
	if res.Error != nil {
		return fmt.Errorf("end session %s: %w", sessionID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("end session %s: %w", sessionID, models.ErrNotFound)
	}
	return nil
}

// TeardownSession deletes the session's messages and then the session in
// one transaction. Tearing down a missing session is a no-op, so both
// participants may race to do it.
func (s *Service) TeardownSession(ctx context.Context, sessionID string) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("channel_id = ?", sessionID).Delete(&models.Message{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&models.Session{}).Error; err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Printf("ERROR: Failed to tear down session %s: %v", sessionID, err)
		return fmt.Errorf("teardown %s: %w", sessionID, err)
	}
	return nil
}

// ListStaleSessions returns sessions that are ended, waiting since before
// waitingBefore, or active since before activeBefore.
func (s *Service) ListStaleSessions(ctx context.Context, waitingBefore, activeBefore time.Time) ([]models.Session, error) {
	var sessions []models.Session
	err := s.read(ctx, "list stale sessions", func(db *gorm.DB) error {
		return db.Where("status = ?", models.SessionEnded).
			Or("status = ? AND created_at < ?", models.SessionWaiting, waitingBefore).
			Or("status = ? AND COALESCE(start_time, created_at) < ?", models.SessionActive, activeBefore).
			Order("created_at ASC").
			Find(&sessions).Error
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
