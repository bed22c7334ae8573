// Package media forwards user images to the external object store and
// returns the public URL that messages and profiles refer to.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// MaxImageSize bounds a single upload.
const MaxImageSize = 10 << 20

var (
	ErrNotConfigured = errors.New("image upload is not configured")
	ErrNotImage      = errors.New("file is not an image")
	ErrTooLarge      = errors.New("image too large")
)

type Uploader struct {
	Endpoint string
	Preset   string
	Client   *http.Client
	// MaxElapsed bounds retries of failed uploads.
	MaxElapsed time.Duration
}

func NewUploader(endpoint, preset string) *Uploader {
	return &Uploader{
		Endpoint:   endpoint,
		Preset:     preset,
		Client:     &http.Client{Timeout: 30 * time.Second},
		MaxElapsed: 10 * time.Second,
	}
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Upload sends the image read from r and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	if u.Endpoint == "" {
		return "", ErrNotConfigured
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(data) > MaxImageSize {
		return "", ErrTooLarge
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", ErrNotImage
	}

	var url string
	op := func() error {
		var err error
		url, err = u.post(ctx, filename, contentType, data)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = u.MaxElapsed
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return url, nil
}

func (u *Uploader) post(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreatePart(fileHeader(filename, contentType))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	if _, err := part.Write(data); err != nil {
		return "", backoff.Permanent(err)
	}
	if err := w.WriteField("upload_preset", u.Preset); err != nil {
		return "", backoff.Permanent(err)
	}
	if err := w.Close(); err != nil {
		return "", backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.Endpoint, &body)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := u.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	defer resp.Body.Close()

	var out uploadResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("upload image: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && out.Error != nil {
			msg = out.Error.Message
		}
		return "", backoff.Permanent(fmt.Errorf("upload image rejected: %s", msg))
	}
	if decodeErr != nil || out.SecureURL == "" {
		return "", backoff.Permanent(fmt.Errorf("upload image: unexpected response"))
	}
	return out.SecureURL, nil
}

func fileHeader(filename, contentType string) textproto.MIMEHeader {
	if filename == "" {
		filename = "upload"
	}
	return textproto.MIMEHeader{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename))},
		"Content-Type":        {contentType},
	}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }
