package media_test

import (
	"blindchat/backend/internal/media"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A 1x1 PNG header is enough for content sniffing.
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

func TestUpload_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "blindChatApp", r.FormValue("upload_preset"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "cat.png", hdr.Filename)
		data, _ := io.ReadAll(f)
		assert.Equal(t, pngBytes, data)

		json.NewEncoder(w).Encode(map[string]string{"secure_url": "https://cdn.example.com/cat.png"})
	}))
	defer srv.Close()

	u := media.NewUploader(srv.URL, "blindChatApp")
	url, err := u.Upload(context.Background(), "cat.png", bytes.NewReader(pngBytes))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/cat.png", url)
}

func TestUpload_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"secure_url": "https://cdn.example.com/x.png"})
	}))
	defer srv.Close()

	u := media.NewUploader(srv.URL, "p")
	url, err := u.Upload(context.Background(), "x.png", bytes.NewReader(pngBytes))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/x.png", url)
	assert.Equal(t, int32(2), calls.Load())
}

func TestUpload_RejectionIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "Upload preset not found"}})
	}))
	defer srv.Close()

	u := media.NewUploader(srv.URL, "p")
	u.MaxElapsed = time.Second
	_, err := u.Upload(context.Background(), "x.png", bytes.NewReader(pngBytes))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Upload preset not found")
	assert.Equal(t, int32(1), calls.Load())
}

func TestUpload_Validation(t *testing.T) {
	u := media.NewUploader("", "p")
	_, err := u.Upload(context.Background(), "x.png", bytes.NewReader(pngBytes))
	assert.ErrorIs(t, err, media.ErrNotConfigured)

	u = media.NewUploader("http://127.0.0.1:1", "p")
	_, err = u.Upload(context.Background(), "notes.txt", bytes.NewReader([]byte("plain text")))
	assert.ErrorIs(t, err, media.ErrNotImage)

	big := append(append([]byte{}, pngBytes...), make([]byte, media.MaxImageSize)...)
	_, err = u.Upload(context.Background(), "big.png", bytes.NewReader(big))
	assert.ErrorIs(t, err, media.ErrTooLarge)
}
