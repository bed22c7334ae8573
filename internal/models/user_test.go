package models_test

import (
	"blindchat/backend/internal/models"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// TestUserBeforeCreate_GeneratesUUID verifies that the BeforeCreate hook generates a valid UUID.
func TestUserBeforeCreate_GeneratesUUID(t *testing.T) {
	// Arrange
	user := &models.User{Name: "Nadia", Email: "nadia@example.com"}
	assert.Empty(t, user.ID, "User ID should be empty before BeforeCreate")

	// Act
	err := user.BeforeCreate(nil)

	// Assert
	assert.NoError(t, err)
	parsed, parseErr := uuid.Parse(user.ID)
	assert.NoError(t, parseErr, "User ID must be a valid UUID string")
	assert.NotEqual(t, uuid.Nil, parsed)
}

// TestUserBeforeCreate_PreservesExistingID verifies that the hook doesn't overwrite an existing ID.
func TestUserBeforeCreate_PreservesExistingID(t *testing.T) {
	existingID := uuid.New().String()
	user := &models.User{ID: existingID, Name: "Omar"}

	err := user.BeforeCreate(nil)

	assert.NoError(t, err)
	assert.Equal(t, existingID, user.ID, "BeforeCreate should preserve existing ID")
}

func TestUserSetInterests_DropsBlanksAndDuplicates(t *testing.T) {
	user := &models.User{ID: "u1"}

	user.SetInterests([]string{"Music", "", "Travel", "Music"})

	assert.Equal(t, []string{"Music", "Travel"}, user.InterestNames())
	for _, i := range user.Interests {
		assert.Equal(t, "u1", i.UserID)
	}
}

func TestUserSummary(t *testing.T) {
	user := &models.User{ID: "u1", Name: "Lena", Email: "lena@example.com", AvatarRef: "https://img/x.png"}
	user.SetInterests([]string{"Books"})

	summary := user.Summary()

	assert.Equal(t, models.UserSummary{
		ID:        "u1",
		Name:      "Lena",
		Email:     "lena@example.com",
		AvatarRef: "https://img/x.png",
		Interests: []string{"Books"},
	}, summary)
}

// TestUserStructTags guards the tags the storage layer relies on.
func TestUserStructTags(t *testing.T) {
	userType := reflect.TypeOf(models.User{})

	idField, found := userType.FieldByName("ID")
	assert.True(t, found)
	assert.Contains(t, idField.Tag.Get("gorm"), "primaryKey")

	emailField, found := userType.FieldByName("Email")
	assert.True(t, found)
	assert.Contains(t, emailField.Tag.Get("gorm"), "uniqueIndex")

	reqType := reflect.TypeOf(models.ConnectionRequest{})
	to, _ := reqType.FieldByName("ToUserID")
	from, _ := reqType.FieldByName("FromUserID")
	assert.Contains(t, to.Tag.Get("gorm"), "primaryKey", "pending requests are keyed by (to, from)")
	assert.Contains(t, from.Tag.Get("gorm"), "primaryKey", "pending requests are keyed by (to, from)")
}

func TestSessionParticipants(t *testing.T) {
	tests := []struct {
		name    string
		session models.Session
		want    []string
		peerOfX string
	}{
		{
			name:    "waiting",
			session: models.Session{CreatorID: "x", Status: models.SessionWaiting},
			want:    []string{"x"},
			peerOfX: "",
		},
		{
			name:    "active",
			session: models.Session{CreatorID: "x", PeerID: "y", Status: models.SessionActive},
			want:    []string{"x", "y"},
			peerOfX: "y",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.session.ParticipantIDs())
			assert.Equal(t, tt.peerOfX, tt.session.PeerOf("x"))
			assert.True(t, tt.session.HasParticipant("x"))
			assert.False(t, tt.session.HasParticipant("z"))
			assert.False(t, tt.session.HasParticipant(""))
		})
	}
}

func TestDirectChannelID_IsSymmetric(t *testing.T) {
	assert.Equal(t, models.DirectChannelID("a", "b"), models.DirectChannelID("b", "a"))
	assert.Equal(t, "a:b", models.DirectChannelID("b", "a"))
}

func TestNewServerFrame(t *testing.T) {
	frame, err := models.NewServerFrame(models.FrameSessionTick, map[string]int{"remaining": 42})
	assert.NoError(t, err)
	assert.Equal(t, models.FrameSessionTick, frame.Type)
	assert.JSONEq(t, `{"remaining":42}`, string(frame.Data))

	empty, err := models.NewServerFrame(models.FrameDraftCleared, nil)
	assert.NoError(t, err)
	assert.Nil(t, empty.Data)
}

func TestUserPassword(t *testing.T) {
	user := &models.User{Name: "Nadia", Email: "nadia@example.com"}
	assert.False(t, user.CheckPassword(""), "no hash never matches")

	assert.NoError(t, user.SetPassword("secret1"))
	assert.NotEqual(t, "secret1", user.Password)
	assert.True(t, user.CheckPassword("secret1"))
	assert.False(t, user.CheckPassword("secret2"))
}
