package storage

import (
	"blindchat/backend/internal/config"
	"blindchat/backend/internal/models"
	"context"
	"database/sql/driver"
	"errors"
	"log"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// read runs a query with exponential backoff. Only transient failures are
// retried; a read that keeps failing transiently comes back wrapped in
// models.TransientError.
func (s *Service) read(ctx context.Context, op string, fn func(db *gorm.DB) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.ReadRetryInitial
	b.MaxInterval = config.ReadRetryMax
	b.MaxElapsedTime = config.ReadRetryElapsed

	attempt := func() error {
		err := fn(s.DB.WithContext(ctx))
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Printf("WARNING: %s failed, retrying in %s: %v", op, wait, err)
	}

	err := backoff.RetryNotify(attempt, backoff.WithContext(b, ctx), notify)
	if err != nil && isTransient(err) {
		return &models.TransientError{Op: op, Err: err}
	}
	return err
}

// isTransient reports whether a failed read may succeed if repeated.
func isTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, models.ErrNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, driver.ErrBadConn):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}
