package chathub

import (
	"blindchat/backend/internal/config"
	"blindchat/backend/internal/models"
	"blindchat/backend/internal/storage"
	"context"
	"log"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Sweeper periodically removes sessions no client will clean up: ended
// ones, waiting ones nobody joined, and active ones past their window.
type Sweeper struct {
	Store         storage.Storage
	Reaper        *Reaper
	OrphanTimeout time.Duration
	Interval      time.Duration
	Now           func() time.Time
}

func NewSweeper(s storage.Storage, r *Reaper, orphanTimeout, interval time.Duration) *Sweeper {
	return &Sweeper{
		Store:         s,
		Reaper:        r,
		OrphanTimeout: orphanTimeout,
		Interval:      interval,
		Now:           time.Now,
	}
}

// Sweep runs one pass and returns the ids it removed. When only some
// teardowns fail the error is a *models.PartialWriteError.
func (s *Sweeper) Sweep(ctx context.Context) ([]string, error) {
	now := s.Now().UTC()
	stale, err := s.Store.ListStaleSessions(ctx, now.Add(-s.OrphanTimeout), now.Add(-config.SessionWindow))
	if err != nil {
		return nil, err
	}

	var (
		done []string
		errs *multierror.Error
	)
	for _, session := range stale {
		if err := ctx.Err(); err != nil {
			errs = multierror.Append(errs, err)
			break
		}
		if err := s.Reaper.Teardown(ctx, session.SessionID); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		done = append(done, session.SessionID)
	}

	if err := errs.ErrorOrNil(); err != nil {
		if len(done) == 0 {
			return nil, err
		}
		return done, &models.PartialWriteError{Op: "sweep", Done: done, Err: err}
	}
	return done, nil
}

// Run sweeps every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	log.Printf("INFO: Session sweeper started (every %s).", s.Interval)
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("INFO: Session sweeper stopped.")
			return
		case <-ticker.C:
			removed, err := s.Sweep(ctx)
			if err != nil {
				log.Printf("ERROR: Session sweep failed: %v", err)
			}
			if len(removed) > 0 {
				log.Printf("INFO: Swept %d stale session(s).", len(removed))
			}
		}
	}
}
