package chathub

import (
	"blindchat/backend/internal/models"
	"blindchat/backend/internal/storage"
	"context"
)

// MatcherService answers the directory queries behind matchmaking: open
// sessions to join and users sharing an interest.
type MatcherService struct {
	Storage storage.Storage
}

// NewMatcherService creates the directory over s.
func NewMatcherService(s storage.Storage) *MatcherService {
	return &MatcherService{Storage: s}
}

// FindOpenSession returns the oldest waiting session not created by userID,
// or "" when there is none.
func (m *MatcherService) FindOpenSession(ctx context.Context, userID string) (string, error) {
	sessions, err := m.OpenSessions(ctx, userID, 1)
	if err != nil || len(sessions) == 0 {
		return "", err
	}
	return sessions[0].SessionID, nil
}

// OpenSessions lists up to limit waiting sessions, oldest first.
func (m *MatcherService) OpenSessions(ctx context.Context, userID string, limit int) ([]models.Session, error) {
	return m.Storage.FindWaitingSessions(ctx, userID, limit)
}

// FindCandidates returns users sharing any of interests with userID,
// excluding userID, excludeIDs and userID's partners. Order is unspecified.
func (m *MatcherService) FindCandidates(ctx context.Context, userID string, interests, excludeIDs []string) ([]models.UserSummary, error) {
	if len(interests) == 0 {
		return []models.UserSummary{}, nil
	}
	users, err := m.Storage.FindCandidates(ctx, userID, interests, excludeIDs)
	if err != nil {
		return nil, err
	}

	out := make([]models.UserSummary, 0, len(users))
	for i := range users {
		out = append(out, users[i].Summary())
	}
	return out, nil
}
