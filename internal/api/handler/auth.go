package handler

import (
	"blindchat/backend/internal/auth"
	"blindchat/backend/internal/models"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Name      string   `json:"name" binding:"required"`
	Email     string   `json:"email" binding:"required,email"`
	Password  string   `json:"password" binding:"required,min=6,max=72"`
	AvatarRef string   `json:"avatar_ref"`
	Interests []string `json:"interests"`
}

// Register створює запис у довіднику та повертає JWT
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := &models.User{
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		AvatarRef: req.AvatarRef,
	}
	user.SetInterests(req.Interests)
	if err := user.SetPassword(req.Password); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Store.CreateUser(c.Request.Context(), user); err != nil {
		h.fail(c, err)
		return
	}

	h.issue(c, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login issues a fresh token for an existing account. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.Store.GetUserByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, models.ErrNotFound) {
		h.fail(c, models.ErrNotAuthenticated)
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	if !user.CheckPassword(req.Password) {
		h.fail(c, models.ErrNotAuthenticated)
		return
	}

	h.issue(c, http.StatusOK, user)
}

func (h *Handler) issue(c *gin.Context, status int, user *models.User) {
	token, id, err := h.Auth.Issue(user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, gin.H{
		"token":      token,
		"expires_at": id.ExpiresAt,
		"user":       user.Summary(),
	})
}

// Logout revokes the token the request was made with.
func (h *Handler) Logout(c *gin.Context) {
	id, err := auth.Caller(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Auth.Logout(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
