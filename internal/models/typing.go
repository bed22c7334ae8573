package models

import "time"

// TypingRecord is the typer's current input-focus state towards TargetID.
type TypingRecord struct {
	UserID    string    `gorm:"primaryKey;size:64"`
	TargetID  string    `gorm:"size:64"`
	Typing    bool      `gorm:"not null;default:false"`
	UpdatedAt time.Time `gorm:"not null"`
}
