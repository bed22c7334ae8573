package storage

import (
	"blindchat/backend/internal/models"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
)

// Storage is the document store used by the chat hub, the connection graph
// and the HTTP handlers. Every call is scoped by ctx.
type Storage interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SetOnline(ctx context.Context, userID string, online bool) error
	FindCandidates(ctx context.Context, userID string, interests, excludeIDs []string) ([]models.User, error)

	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	FindSessionForUser(ctx context.Context, userID string) (*models.Session, error)
	FindWaitingSessions(ctx context.Context, excludeCreator string, limit int) ([]models.Session, error)
	ClaimSession(ctx context.Context, sessionID, userID string, at time.Time) (bool, error)
	SetSessionStart(ctx context.Context, sessionID string, at time.Time) error
	EndSession(ctx context.Context, sessionID string) error
	TeardownSession(ctx context.Context, sessionID string) error
	ListStaleSessions(ctx context.Context, waitingBefore, activeBefore time.Time) ([]models.Session, error)

	InsertMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, messageID string) (*models.Message, error)
	ListMessages(ctx context.Context, channelID string) ([]models.Message, error)
	MarkSeen(ctx context.Context, messageID, viewerID string) (bool, error)
	ListReceivedBlindMessages(ctx context.Context, userID string) ([]models.Message, error)

	UpsertTyping(ctx context.Context, rec *models.TypingRecord) error
	GetTyping(ctx context.Context, userID string) (*models.TypingRecord, error)

	CreateRequest(ctx context.Context, req *models.ConnectionRequest) (bool, error)
	ListRequests(ctx context.Context, toUserID string) ([]models.ConnectionRequest, error)
	DeleteRequest(ctx context.Context, toUserID, fromUserID string) (bool, error)
	AcceptRequest(ctx context.Context, selfID, requesterID string, at time.Time) error
	ListPartners(ctx context.Context, ownerID string) ([]models.PartnerEdge, error)
	ArePartners(ctx context.Context, a, b string) (bool, error)
}

type Service struct {
	DB *gorm.DB
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

var _ Storage = (*Service)(nil)

// CreateUser stores a new directory entry together with its interests.
func (s *Service) CreateUser(ctx context.Context, user *models.User) error {
	err := s.DB.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("create user %s: %w", user.Email, models.ErrAlreadyExists)
	}
	if err != nil {
		log.Printf("ERROR: Failed to create user %s: %v", user.Email, err)
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Service) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.read(ctx, "get user", func(db *gorm.DB) error {
		return db.Preload("Interests").Where("id = ?", userID).First(&user).Error
	})
	if err != nil {
		return nil, notFound(err, "user "+userID)
	}
	return &user, nil
}

// GetUserByEmail looks a user up by the login email.
func (s *Service) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.read(ctx, "get user by email", func(db *gorm.DB) error {
		return db.Preload("Interests").Where("email = ?", email).First(&user).Error
	})
	if err != nil {
		return nil, notFound(err, "user "+email)
	}
	return &user, nil
}

// SetOnline writes the user's presence record.
func (s *Service) SetOnline(ctx context.Context, userID string, online bool) error {
	res := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("online", online)
	if res.Error != nil {
		return fmt.Errorf("set online %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("set online %s: %w", userID, models.ErrNotFound)
	}
	return nil
}

// FindCandidates returns users sharing at least one interest with the
// caller, minus the caller, the excluded ids and the caller's partners.
func (s *Service) FindCandidates(ctx context.Context, userID string, interests, excludeIDs []string) ([]models.User, error) {
	if len(interests) == 0 {
		return []models.User{}, nil
	}

	var users []models.User
	err := s.read(ctx, "find candidates", func(db *gorm.DB) error {
		shared := db.Session(&gorm.Session{NewDB: true}).
			Model(&models.UserInterest{}).
			Select("user_id").
			Where("interest IN ?", interests)
		partners := db.Session(&gorm.Session{NewDB: true}).
			Model(&models.PartnerEdge{}).
			Select("partner_id").
			Where("owner_id = ?", userID)

		q := db.Preload("Interests").
			Where("id IN (?)", shared).
			Where("id <> ?", userID).
			Where("id NOT IN (?)", partners)
		if len(excludeIDs) > 0 {
			q = q.Where("id NOT IN ?", excludeIDs)
		}
		return q.Find(&users).Error
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// notFound maps gorm's missing-record error onto the domain sentinel.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}
