package models

import "time"

// ConnectionRequest is a pending request stored on the receiving user.
// The composite key allows at most one pending request per (from, to) pair.
type ConnectionRequest struct {
	ToUserID   string    `gorm:"primaryKey;size:64" json:"to_user_id"`
	FromUserID string    `gorm:"primaryKey;size:64;index" json:"from_user_id"`
	Name       string    `gorm:"type:text" json:"name"`
	Email      string    `gorm:"type:text" json:"email"`
	AvatarRef  string    `gorm:"type:text" json:"avatar_ref,omitempty"`
	Interests  []string  `gorm:"serializer:json;type:text" json:"interests"`
	Timestamp  time.Time `gorm:"not null" json:"timestamp"`
}

// Summary returns the requester as seen by the receiver.
func (r *ConnectionRequest) Summary() UserSummary {
	return UserSummary{
		ID:        r.FromUserID,
		Name:      r.Name,
		Email:     r.Email,
		AvatarRef: r.AvatarRef,
		Interests: r.Interests,
	}
}

// PartnerEdge is one side of an accepted connection. Both users carry an
// edge pointing at the other.
type PartnerEdge struct {
	OwnerID   string    `gorm:"primaryKey;size:64" json:"-"`
	PartnerID string    `gorm:"primaryKey;size:64;index" json:"uid"`
	Name      string    `gorm:"type:text" json:"name"`
	Email     string    `gorm:"type:text" json:"email"`
	AvatarRef string    `gorm:"type:text" json:"avatar_ref,omitempty"`
	Interests []string  `gorm:"serializer:json;type:text" json:"interests"`
	CreatedAt time.Time `json:"created_at"`
}

// NewPartnerEdge builds the edge owned by ownerID that points at partner.
func NewPartnerEdge(ownerID string, partner UserSummary, at time.Time) *PartnerEdge {
	return &PartnerEdge{
		OwnerID:   ownerID,
		PartnerID: partner.ID,
		Name:      partner.Name,
		Email:     partner.Email,
		AvatarRef: partner.AvatarRef,
		Interests: partner.Interests,
		CreatedAt: at,
	}
}

// RequestResult is the outcome of sending a connection request.
type RequestResult string

const (
	RequestSent            RequestResult = "sent"
	RequestAlreadyPending  RequestResult = "already_pending"
	RequestAlreadyPartners RequestResult = "already_partners"
	RequestTargetMissing   RequestResult = "target_missing"
)
