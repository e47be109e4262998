package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/franz/media-janitor/internal/asset"
	"github.com/franz/media-janitor/internal/safedelete"
	"github.com/franz/media-janitor/internal/util"
)

// Store implements safedelete.Ledger on the quarantine table
var _ safedelete.Ledger = (*Store)(nil)

const entryColumns = `deletion_id, asset_id, original_path, trash_path, metadata_snapshot,
	size_bytes, state, enqueued_at, expires_at, purged_at, updated_at`

func scanEntry(row rowScanner) (*safedelete.Entry, error) {
	var (
		e                              safedelete.Entry
		snapshot                       string
		state                          string
		enqueuedNs, expiresNs, updated int64
		purgedNs                       sql.NullInt64
	)
	if err := row.Scan(&e.DeletionID, &e.AssetID, &e.OriginalPath, &e.TrashPath, &snapshot,
		&e.SizeBytes, &state, &enqueuedNs, &expiresNs, &purgedNs, &updated); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(snapshot), &e.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot of deletion %d: %w", e.DeletionID, err)
	}
	e.State = safedelete.State(state)
	e.EnqueuedAt = time.Unix(0, enqueuedNs).UTC()
	e.ExpiresAt = time.Unix(0, expiresNs).UTC()
	e.UpdatedAt = time.Unix(0, updated).UTC()
	if purgedNs.Valid {
		t := time.Unix(0, purgedNs.Int64).UTC()
		e.PurgedAt = &t
	}
	return &e, nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]*safedelete.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []*safedelete.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// InsertPending implements safedelete.Ledger
func (s *Store) InsertPending(ctx context.Context, e *safedelete.Entry, layout func(deletionID int64) string) error {
	snapshot, err := json.Marshal(e.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	return s.Transaction(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO quarantine (asset_id, original_path, metadata_snapshot, size_bytes,
			                        state, enqueued_at, expires_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING deletion_id
		`, e.AssetID, e.OriginalPath, string(snapshot), e.SizeBytes, string(safedelete.StatePending),
			e.EnqueuedAt.UnixNano(), e.ExpiresAt.UnixNano(), e.UpdatedAt.UnixNano()).Scan(&id)
		if isUniqueViolation(err) {
			return fmt.Errorf("asset %d: %w", e.AssetID, util.ErrAlreadyQuarantined)
		}
		if err != nil {
			return fmt.Errorf("failed to insert ledger entry: %w", err)
		}

		trashPath := layout(id)
		if _, err := tx.ExecContext(ctx,
			"UPDATE quarantine SET trash_path = ? WHERE deletion_id = ?", trashPath, id); err != nil {
			return fmt.Errorf("failed to set trash path: %w", err)
		}

		e.DeletionID = id
		e.TrashPath = trashPath
		e.State = safedelete.StatePending
		return nil
	})
}

// Get implements safedelete.Ledger
func (s *Store) Get(ctx context.Context, deletionID int64) (*safedelete.Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM quarantine WHERE deletion_id = ?", deletionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return e, nil
}

// FindLive implements safedelete.Ledger
func (s *Store) FindLive(ctx context.Context, assetID asset.ID) (*safedelete.Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM quarantine WHERE asset_id = ? AND purged_at IS NULL", assetID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return e, nil
}

// Transition implements safedelete.Ledger as a single conditional update
func (s *Store) Transition(ctx context.Context, deletionID int64, from, to safedelete.State, at time.Time) (bool, error) {
	var purgedAt any
	if to == safedelete.StatePurged {
		purgedAt = at.UnixNano()
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE quarantine SET state = ?, purged_at = ?, updated_at = ?
		WHERE deletion_id = ? AND state = ?
	`, string(to), purgedAt, at.UnixNano(), deletionID, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to update ledger entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Delete implements safedelete.Ledger
func (s *Store) Delete(ctx context.Context, deletionID int64, state safedelete.State) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM quarantine WHERE deletion_id = ? AND state = ?", deletionID, string(state))
	if err != nil {
		return false, fmt.Errorf("failed to delete ledger entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListExpired implements safedelete.Ledger
func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]*safedelete.Entry, error) {
	return s.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM quarantine
		WHERE state = ? AND expires_at <= ?
		ORDER BY expires_at, deletion_id
	`, string(safedelete.StateQuarantined), now.UnixNano())
}

// ListLive implements safedelete.Ledger
func (s *Store) ListLive(ctx context.Context) ([]*safedelete.Entry, error) {
	return s.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM quarantine
		WHERE purged_at IS NULL
		ORDER BY expires_at, deletion_id
	`)
}

// ListHistory implements safedelete.Ledger
func (s *Store) ListHistory(ctx context.Context, limit int) ([]*safedelete.Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM quarantine
		ORDER BY enqueued_at DESC, deletion_id DESC
		LIMIT ?
	`, limit)
}

// LedgerStats summarizes the quarantine table
type LedgerStats struct {
	Live        int
	Purged      int
	LiveBytes   int64
	PurgedBytes int64
}

// LedgerStats counts live and purged entries
func (s *Store) LedgerStats(ctx context.Context) (*LedgerStats, error) {
	var st LedgerStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN purged_at IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN purged_at IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN purged_at IS NULL THEN size_bytes ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN purged_at IS NOT NULL THEN size_bytes ELSE 0 END), 0)
		FROM quarantine
	`).Scan(&st.Live, &st.Purged, &st.LiveBytes, &st.PurgedBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize ledger: %w", err)
	}
	return &st, nil
}
