package models

import (
	"sort"
	"time"
)

// ChannelKind distinguishes ephemeral session channels from persistent
// friend chats.
type ChannelKind string

const (
	ChannelBlind  ChannelKind = "blind"
	ChannelDirect ChannelKind = "direct"
)

// Message is one entry of a channel's append-only log. Only Seen changes
// after creation.
type Message struct {
	// ID is a ULID whose timestamp equals CreatedAt, so id order breaks
	// createdAt ties.
	ID string `gorm:"primaryKey;size:26" json:"id"`
	// ChannelID is the session id for blind channels and DirectChannelID for
	// friend chats.
	ChannelID string      `gorm:"size:128;not null;index:idx_channel_created,priority:1" json:"channel_id"`
	Kind      ChannelKind `gorm:"size:16;not null" json:"kind"`
	SenderID  string      `gorm:"size:64;not null" json:"sender_id"`
	// ReceiverID is the peer the message was addressed to.
	ReceiverID string `gorm:"size:64;index" json:"receiver_id"`
	Text       string `gorm:"type:text" json:"text,omitempty"`
	// ImageRef is the public URL returned by the object store.
	ImageRef  string    `gorm:"type:text" json:"image_ref,omitempty"`
	CreatedAt time.Time `gorm:"not null;index:idx_channel_created,priority:2" json:"created_at"`
	Seen      bool      `gorm:"not null;default:false" json:"seen"`
}

// DirectChannelID names the persistent channel between two users. It is the
// same for both sides.
func DirectChannelID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids[0] + ":" + ids[1]
}
