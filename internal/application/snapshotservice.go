package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/tgrelay/tgrelay/internal/domain/port/driven"
)

// SnapshotService periodically persists the pool's usage counters and a
// heartbeat timestamp so quota accounting survives restarts. Hosted
// containers restart freely; without this a restart would hand every
// credential a fresh window.
type SnapshotService struct {
	pool     *Pool
	store    driven.StateStore
	interval time.Duration
	logger   *slog.Logger
}

// NewSnapshotService creates a SnapshotService with the given persistence
// interval.
func NewSnapshotService(pool *Pool, store driven.StateStore, interval time.Duration, logger *slog.Logger) *SnapshotService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotService{pool: pool, store: store, interval: interval, logger: logger}
}

// Restore loads the persisted usage snapshot into the pool. Windows that
// expired while the process was down are skipped by the pool.
func (s *SnapshotService) Restore(ctx context.Context) error {
	snaps, err := s.store.LoadUsage(ctx)
	if err != nil {
		return err
	}
	s.pool.RestoreUsage(snaps)
	s.logger.Info("credential usage restored", "credentials", len(snaps))
	return nil
}

// Start runs the persistence loop until ctx is cancelled, then writes one
// final snapshot so shutdown never loses the current window state.
func (s *SnapshotService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// The run context is already cancelled; give the final save its
			// own short deadline.
			saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.save(saveCtx)
			cancel()
			s.logger.Info("snapshot service stopped")
			return
		case <-ticker.C:
			s.save(ctx)
		}
	}
}

func (s *SnapshotService) save(ctx context.Context) {
	if err := s.store.SaveUsage(ctx, s.pool.Snapshot()); err != nil {
		s.logger.Error("save usage snapshot failed", "error", err)
		return
	}
	if err := s.store.RecordHeartbeat(ctx, time.Now().UTC()); err != nil {
		s.logger.Error("record heartbeat failed", "error", err)
	}
}
