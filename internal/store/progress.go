package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// DetectProgress is where an interrupted duplicate scan stopped
type DetectProgress struct {
	Method        string
	NextOffset    int
	Done          bool
	AssetsScanned int
	GroupsFound   int
	StopReason    string
	StartedAt     time.Time
	UpdatedAt     time.Time
}

// GetDetectProgress returns the saved scan position, or nil if none
func (s *Store) GetDetectProgress(ctx context.Context) (*DetectProgress, error) {
	var p DetectProgress
	var stopReason, startedAt, updatedAt sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT method, next_offset, done, assets_scanned, groups_found,
		       stop_reason, started_at, updated_at
		FROM detect_progress
		WHERE id = 1
	`).Scan(&p.Method, &p.NextOffset, &p.Done, &p.AssetsScanned, &p.GroupsFound,
		&stopReason, &startedAt, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		// No progress tracked yet
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.StopReason = stopReason.String
	if startedAt.Valid {
		p.StartedAt, _ = time.Parse("2006-01-02 15:04:05", startedAt.String)
	}
	if updatedAt.Valid {
		p.UpdatedAt, _ = time.Parse("2006-01-02 15:04:05", updatedAt.String)
	}

	return &p, nil
}

// SaveDetectProgress records where a partial scan stopped. Scanned and
// group counts accumulate across resumed runs of the same method.
func (s *Store) SaveDetectProgress(ctx context.Context, p *DetectProgress) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO detect_progress
		(id, method, next_offset, done, assets_scanned, groups_found, stop_reason, started_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			next_offset = excluded.next_offset,
			done = excluded.done,
			assets_scanned = CASE WHEN method = excluded.method
				THEN assets_scanned + excluded.assets_scanned ELSE excluded.assets_scanned END,
			groups_found = CASE WHEN method = excluded.method
				THEN groups_found + excluded.groups_found ELSE excluded.groups_found END,
			started_at = CASE WHEN method = excluded.method THEN started_at ELSE excluded.started_at END,
			method = excluded.method,
			stop_reason = excluded.stop_reason,
			updated_at = datetime('now')
	`, p.Method, p.NextOffset, p.Done, p.AssetsScanned, p.GroupsFound, nullString(p.StopReason))
	return err
}

// ClearDetectProgress removes progress tracking (called when a scan completes)
func (s *Store) ClearDetectProgress(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM detect_progress WHERE id = 1`)
	return err
}
