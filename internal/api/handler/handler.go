package handler

import (
	"blindchat/backend/internal/auth"
	"blindchat/backend/internal/chathub"
	"blindchat/backend/internal/connection"
	"blindchat/backend/internal/localization"
	"blindchat/backend/internal/media"
	"blindchat/backend/internal/storage"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler містить посилання на ChatHub та сервіси, спільні для всіх запитів
type Handler struct {
	Hub         *chathub.ManagerService
	Store       storage.Storage
	Auth        *auth.Service
	Matcher     *chathub.MatcherService
	Connections *connection.Service
	Uploader    *media.Uploader
	Localizer   *localization.Localizer
	Language    string
}

func NewHandler(
	hub *chathub.ManagerService,
	authSvc *auth.Service,
	connections *connection.Service,
	uploader *media.Uploader,
	localizer *localization.Localizer,
	language string,
) *Handler {
	return &Handler{
		Hub:         hub,
		Store:       hub.Services.Store,
		Auth:        authSvc,
		Matcher:     hub.Services.Matcher,
		Connections: connections,
		Uploader:    uploader,
		Localizer:   localizer,
		Language:    language,
	}
}

// fail writes err as a status code plus a localized notice.
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("ERROR: %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	lang := h.Localizer.Language(c.GetHeader("Accept-Language"), h.Language)
	c.AbortWithStatusJSON(status, gin.H{"error": h.Localizer.Notice(lang, err)})
}

func statusFor(err error) int {
	switch localization.ErrorCode(err) {
	case "not_authenticated":
		return http.StatusUnauthorized
	case "not_found":
		return http.StatusNotFound
	case "duplicate_request", "already_partners", "already_exists", "invalid_state":
		return http.StatusConflict
	case "self_request":
		return http.StatusBadRequest
	case "transient":
		return http.StatusServiceUnavailable
	}
	switch {
	case errors.Is(err, media.ErrNotImage):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, media.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, media.ErrNotConfigured):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

// caller returns the authenticated user id, writing a 401 when absent.
func (h *Handler) caller(c *gin.Context) (string, bool) {
	id, err := auth.Caller(c)
	if err != nil {
		h.fail(c, err)
		return "", false
	}
	return id.UserID, true
}
