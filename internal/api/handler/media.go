package handler

import (
	"blindchat/backend/internal/media"
	"net/http"

	"github.com/gin-gonic/gin"
)

// UploadImage accepts a multipart "file" field and returns the stored URL.
func (h *Handler) UploadImage(c *gin.Context) {
	if _, ok := h.caller(c); !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, media.MaxImageSize+1<<20)

	fh, err := c.FormFile("file")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()

	url, err := h.Uploader.Upload(c.Request.Context(), fh.Filename, f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}
