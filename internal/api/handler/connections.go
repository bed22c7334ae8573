package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type sendRequestBody struct {
	To string `json:"to" binding:"required"`
}

// ListRequests returns the caller's pending incoming requests.
func (h *Handler) ListRequests(c *gin.Context) {
	userID, ok := h.caller(c)
	if !ok {
		return
	}
	reqs, err := h.Connections.ListRequests(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

// SendRequest reports the outcome rather than failing on the expected
// "already" cases, so the client can show the matching message.
func (h *Handler) SendRequest(c *gin.Context) {
	userID, ok := h.caller(c)
	if !ok {
		return
	}
	var body sendRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Connections.SendRequest(c.Request.Context(), userID, body.To)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (h *Handler) AcceptRequest(c *gin.Context) {
	userID, ok := h.caller(c)
	if !ok {
		return
	}
	if err := h.Connections.AcceptRequest(c.Request.Context(), userID, c.Param("from")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DeclineRequest(c *gin.Context) {
	userID, ok := h.caller(c)
	if !ok {
		return
	}
	if err := h.Connections.DeclineRequest(c.Request.Context(), userID, c.Param("from")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListPartners(c *gin.Context) {
	userID, ok := h.caller(c)
	if !ok {
		return
	}
	partners, err := h.Connections.ListPartners(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"partners": partners})
}
