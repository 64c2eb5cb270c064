package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tgrelay/tgrelay/internal/domain/model"
	"github.com/tgrelay/tgrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.StateStore = (*StateRepo)(nil)

// StateRepo is the SQLite implementation of the StateStore port. Usage rows
// use full replacement: every save deletes and re-inserts the whole
// snapshot in one transaction.
type StateRepo struct {
	db *DB
}

// NewStateRepo creates a new StateRepo.
func NewStateRepo(db *DB) *StateRepo {
	return &StateRepo{db: db}
}

// SaveUsage replaces the persisted usage snapshot with snaps.
func (r *StateRepo) SaveUsage(ctx context.Context, snaps []model.CredentialStatus) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save usage: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM credential_usage`); err != nil {
		return fmt.Errorf("clear credential usage: %w", err)
	}

	const query = `
		INSERT INTO credential_usage (idx, window_count, window_reset_at, last_used_at, consecutive_errors, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	now := formatTime(time.Now())
	for _, s := range snaps {
		_, err := tx.ExecContext(ctx, query,
			s.Index, s.WindowCount,
			formatTime(s.WindowResetAt), formatTime(s.LastUsedAt),
			s.ConsecutiveErrors, now,
		)
		if err != nil {
			return fmt.Errorf("insert usage for credential %d: %w", s.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save usage: %w", err)
	}
	return nil
}

// LoadUsage returns the persisted usage snapshot, ordered by credential index.
func (r *StateRepo) LoadUsage(ctx context.Context) ([]model.CredentialStatus, error) {
	const query = `
		SELECT idx, window_count, window_reset_at, last_used_at, consecutive_errors
		FROM credential_usage
		ORDER BY idx
	`
	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load credential usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snaps []model.CredentialStatus
	for rows.Next() {
		var s model.CredentialStatus
		var resetAt, lastUsed string
		if err := rows.Scan(&s.Index, &s.WindowCount, &resetAt, &lastUsed, &s.ConsecutiveErrors); err != nil {
			return nil, fmt.Errorf("scan credential usage: %w", err)
		}

		s.WindowResetAt, err = parseTime(resetAt)
		if err != nil {
			return nil, fmt.Errorf("parse window_reset_at: %w", err)
		}
		s.LastUsedAt, err = parseTime(lastUsed)
		if err != nil {
			return nil, fmt.Errorf("parse last_used_at: %w", err)
		}

		snaps = append(snaps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credential usage: %w", err)
	}

	return snaps, nil
}

// RecordHeartbeat stores the most recent liveness timestamp.
func (r *StateRepo) RecordHeartbeat(ctx context.Context, at time.Time) error {
	const query = `INSERT OR REPLACE INTO heartbeat (id, at) VALUES (1, ?)`
	if _, err := r.db.Writer.ExecContext(ctx, query, formatTime(at)); err != nil {
		return fmt.Errorf("record heartbeat: %w", err)
	}
	return nil
}

// LastHeartbeat returns the stored liveness timestamp, or the zero time when
// none has been recorded yet.
func (r *StateRepo) LastHeartbeat(ctx context.Context) (time.Time, error) {
	var at string
	err := r.db.Reader.QueryRowContext(ctx, `SELECT at FROM heartbeat WHERE id = 1`).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("load heartbeat: %w", err)
	}
	return parseTime(at)
}

// formatTime stores timestamps as RFC3339Nano in UTC. The zero time is
// stored as the empty string.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime is the inverse of formatTime. The empty string maps back to the
// zero time.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
