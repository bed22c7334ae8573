package chathub_test

import (
	"blindchat/backend/internal/models"
	"blindchat/backend/internal/storage"
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

var (
	anyCtx        = mock.Anything
	anyTime       = mock.AnythingOfType("time.Time")
	mockAnyString = mock.AnythingOfType("string")
)

// MockStorage is a testify implementation of storage.Storage for failure
// paths that a real database cannot produce on demand.
type MockStorage struct {
	mock.Mock
}

var _ storage.Storage = (*MockStorage)(nil)

// User operations
func (m *MockStorage) CreateUser(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockStorage) GetUser(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) SetOnline(ctx context.Context, userID string, online bool) error {
	return m.Called(ctx, userID, online).Error(0)
}

func (m *MockStorage) FindCandidates(ctx context.Context, userID string, interests, excludeIDs []string) ([]models.User, error) {
	args := m.Called(ctx, userID, interests, excludeIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

// Session operations
func (m *MockStorage) CreateSession(ctx context.Context, session *models.Session) error {
	return m.Called(ctx, session).Error(0)
}

func (m *MockStorage) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *MockStorage) FindSessionForUser(ctx context.Context, userID string) (*models.Session, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *MockStorage) FindWaitingSessions(ctx context.Context, excludeCreator string, limit int) ([]models.Session, error) {
	args := m.Called(ctx, excludeCreator, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Session), args.Error(1)
}

func (m *MockStorage) ClaimSession(ctx context.Context, sessionID, userID string, at time.Time) (bool, error) {
	args := m.Called(ctx, sessionID, userID, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) SetSessionStart(ctx context.Context, sessionID string, at time.Time) error {
	return m.Called(ctx, sessionID, at).Error(0)
}

func (m *MockStorage) EndSession(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

func (m *MockStorage) TeardownSession(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

func (m *MockStorage) ListStaleSessions(ctx context.Context, waitingBefore, activeBefore time.Time) ([]models.Session, error) {
	args := m.Called(ctx, waitingBefore, activeBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Session), args.Error(1)
}

// Message operations
func (m *MockStorage) InsertMessage(ctx context.Context, msg *models.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockStorage) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStorage) ListMessages(ctx context.Context, channelID string) ([]models.Message, error) {
	args := m.Called(ctx, channelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStorage) MarkSeen(ctx context.Context, messageID, viewerID string) (bool, error) {
	args := m.Called(ctx, messageID, viewerID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) ListReceivedBlindMessages(ctx context.Context, userID string) ([]models.Message, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

// Typing operations
func (m *MockStorage) UpsertTyping(ctx context.Context, rec *models.TypingRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockStorage) GetTyping(ctx context.Context, userID string) (*models.TypingRecord, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TypingRecord), args.Error(1)
}

// Connection operations
func (m *MockStorage) CreateRequest(ctx context.Context, req *models.ConnectionRequest) (bool, error) {
	args := m.Called(ctx, req)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) ListRequests(ctx context.Context, toUserID string) ([]models.ConnectionRequest, error) {
	args := m.Called(ctx, toUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ConnectionRequest), args.Error(1)
}

func (m *MockStorage) DeleteRequest(ctx context.Context, toUserID, fromUserID string) (bool, error) {
	args := m.Called(ctx, toUserID, fromUserID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) AcceptRequest(ctx context.Context, selfID, requesterID string, at time.Time) error {
	return m.Called(ctx, selfID, requesterID, at).Error(0)
}

func (m *MockStorage) ListPartners(ctx context.Context, ownerID string) ([]models.PartnerEdge, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PartnerEdge), args.Error(1)
}

func (m *MockStorage) ArePartners(ctx context.Context, a, b string) (bool, error) {
	args := m.Called(ctx, a, b)
	return args.Bool(0), args.Error(1)
}
