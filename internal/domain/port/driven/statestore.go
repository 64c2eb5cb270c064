package driven

import (
	"context"
	"time"

	"github.com/tgrelay/tgrelay/internal/domain/model"
)

// StateStore persists quota accounting and liveness markers so a restarted
// process does not grant itself a fresh request budget mid-window.
// Uses full replacement: SaveUsage atomically replaces all stored rows.
type StateStore interface {
	// SaveUsage replaces the persisted usage snapshot with snaps.
	SaveUsage(ctx context.Context, snaps []model.CredentialStatus) error
	// LoadUsage returns the persisted usage snapshot, ordered by credential index.
	LoadUsage(ctx context.Context) ([]model.CredentialStatus, error)
	// RecordHeartbeat stores the most recent liveness timestamp.
	RecordHeartbeat(ctx context.Context, at time.Time) error
	// LastHeartbeat returns the stored liveness timestamp, or the zero time
	// when none has been recorded yet.
	LastHeartbeat(ctx context.Context) (time.Time, error)
}
