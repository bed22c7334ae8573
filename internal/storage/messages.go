package storage

import (
	"blindchat/backend/internal/models"
	"context"
	"fmt"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InsertMessage appends a message to its channel.
func (s *Service) InsertMessage(ctx context.Context, msg *models.Message) error {
	if err := s.DB.WithContext(ctx).Create(msg).Error; err != nil {
		log.Printf("ERROR: Failed to save message for channel %s: %v", msg.ChannelID, err)
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Service) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	var msg models.Message
	err := s.read(ctx, "get message", func(db *gorm.DB) error {
		return db.Where("id = ?", messageID).First(&msg).Error
	})
	if err != nil {
		return nil, notFound(err, "message "+messageID)
	}
	return &msg, nil
}

// ListMessages returns the channel's messages oldest first. The id breaks
// ties between messages created in the same instant.
func (s *Service) ListMessages(ctx context.Context, channelID string) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.read(ctx, "list messages", func(db *gorm.DB) error {
		return db.Where("channel_id = ?", channelID).
			Order("created_at ASC").
			Order("id ASC").
			Find(&messages).Error
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkSeen flips seen to true when viewerID is the receiver. It reports
// whether anything changed.
func (s *Service) MarkSeen(ctx context.Context, messageID, viewerID string) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND receiver_id = ? AND seen = ?", messageID, viewerID, false).
		Update("seen", true)
	if res.Error != nil {
		return false, fmt.Errorf("mark seen %s: %w", messageID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListReceivedBlindMessages returns blind messages addressed to userID that
// still exist, newest first.
func (s *Service) ListReceivedBlindMessages(ctx context.Context, userID string) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.read(ctx, "list received blind messages", func(db *gorm.DB) error {
		return db.Where("kind = ? AND receiver_id = ?", models.ChannelBlind, userID).
			Order("created_at DESC").
			Order("id DESC").
			Find(&messages).Error
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// UpsertTyping overwrites the typer's record.
func (s *Service) UpsertTyping(ctx context.Context, rec *models.TypingRecord) error {
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"target_id", "typing", "updated_at"}),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("upsert typing %s: %w", rec.UserID, err)
	}
	return nil
}

// GetTyping returns nil without error when the user never typed.
func (s *Service) GetTyping(ctx context.Context, userID string) (*models.TypingRecord, error) {
	var recs []models.TypingRecord
	err := s.read(ctx, "get typing", func(db *gorm.DB) error {
		return db.Where("user_id = ?", userID).Limit(1).Find(&recs).Error
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}
