// Package session keeps the normalized original of each upload so a later
// denoise request can compute its relative SNR.
//
// Every upload gets its own slot keyed by a random session id. Slots are
// immutable once written; a new upload under the same id replaces the slot.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"medidenoise/internal/models"
	"medidenoise/pkg/config"
)

// ErrNotFound is returned when a session has no stored original
var ErrNotFound = errors.New("session not found")

// Store holds one original image per session
type Store interface {
	// Put stores img under id, replacing any previous image
	Put(ctx context.Context, id string, img *models.CanonicalImage) error

	// Get returns the image stored under id or ErrNotFound
	Get(ctx context.Context, id string) (*models.CanonicalImage, error)

	// Sweep removes expired sessions and reports how many were removed
	Sweep(ctx context.Context) (int, error)

	// Close releases the store's resources
	Close() error
}

// NewID returns a fresh random session id
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id has the session id format
func ValidID(id string) bool {
	return uuid.Validate(id) == nil
}

// New opens the store selected by the session configuration
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Session.Backend {
	case config.SessionMemory:
		return NewMemoryStore(cfg.Session.TTL, WithMaxEntries(cfg.Session.MaxEntries)), nil
	case config.SessionPostgres:
		return NewPostgresStore(ctx, cfg.Session.DatabaseURL, cfg.Session.TTL)
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}

// RunJanitor sweeps the store every interval until ctx is cancelled
func RunJanitor(ctx context.Context, store Store, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Sweep(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("Session sweep failed")
				continue
			}
			if n > 0 {
				logger.Debug().Int("removed", n).Msg("Expired sessions removed")
			}
		}
	}
}
