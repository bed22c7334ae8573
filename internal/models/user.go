package models

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User is a directory entry. Online is the user's presence record.
type User struct {
	ID        string         `gorm:"primaryKey;size:64" json:"id"`
	Name      string         `gorm:"type:text;not null" json:"name"`
	Email     string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	AvatarRef string         `gorm:"type:text" json:"avatar_ref,omitempty"`
	Online    bool           `gorm:"not null;default:false" json:"online"`
	Password  string         `gorm:"column:password_hash;type:text" json:"-"`
	Interests []UserInterest `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"-"`
}

// UserInterest is one tag from the interest taxonomy attached to a user.
type UserInterest struct {
	UserID   string `gorm:"primaryKey;size:64"`
	Interest string `gorm:"primaryKey;size:64;index"`
}

// BeforeCreate generates a UUID for the user if none was set.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// SetPassword stores a bcrypt hash of password.
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hash)
	return nil
}

// CheckPassword reports whether password matches the stored hash. A user
// without a hash never matches.
func (u *User) CheckPassword(password string) bool {
	if u.Password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) == nil
}

// InterestNames flattens the interest rows.
func (u *User) InterestNames() []string {
	names := make([]string, 0, len(u.Interests))
	for _, i := range u.Interests {
		names = append(names, i.Interest)
	}
	return names
}

// SetInterests replaces the interest rows, dropping blanks and duplicates.
func (u *User) SetInterests(names []string) {
	seen := make(map[string]struct{}, len(names))
	u.Interests = u.Interests[:0]
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		u.Interests = append(u.Interests, UserInterest{UserID: u.ID, Interest: n})
	}
}

// Summary is the denormalized view of the user that gets copied into
// requests and partner edges.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		AvatarRef: u.AvatarRef,
		Interests: u.InterestNames(),
	}
}

// UserSummary is what other users get to see about a user.
type UserSummary struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	AvatarRef string   `json:"avatar_ref,omitempty"`
	Interests []string `json:"interests"`
}
