package models

import "time"

// SessionStatus is the persisted state of a blind chat session.
type SessionStatus string

const (
	SessionWaiting SessionStatus = "waiting"
	SessionActive  SessionStatus = "active"
	SessionEnded   SessionStatus = "ended"
)

// Session represents a time-boxed anonymous chat between two users.
// It is destroyed together with its messages when the clock expires.
type Session struct {
	// SessionID is the unique identifier of the session (UUID). It also
	// names the session's message channel.
	SessionID string `gorm:"primaryKey;size:64" json:"session_id"`
	// CreatorID is the user who opened the session and waited for a peer.
	CreatorID string `gorm:"size:64;index;not null" json:"creator_id"`
	// PeerID is the user who joined. Empty while waiting.
	PeerID string `gorm:"size:64;index" json:"peer_id,omitempty"`
	// Status is waiting, active or ended.
	Status SessionStatus `gorm:"size:16;index;not null" json:"status"`
	// StartTime is when the second participant joined; the countdown is
	// measured from it.
	StartTime *time.Time `json:"start_time,omitempty"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt time.Time  `json:"-"`
}

// ParticipantIDs returns the set of users in the session.
func (s *Session) ParticipantIDs() []string {
	if s.PeerID == "" {
		return []string{s.CreatorID}
	}
	return []string{s.CreatorID, s.PeerID}
}

// HasParticipant reports whether userID is one of the participants.
func (s *Session) HasParticipant(userID string) bool {
	return userID != "" && (s.CreatorID == userID || s.PeerID == userID)
}

// PeerOf returns the other participant, or "" if there is none.
func (s *Session) PeerOf(userID string) string {
	switch userID {
	case s.CreatorID:
		return s.PeerID
	case s.PeerID:
		return s.CreatorID
	}
	return ""
}
