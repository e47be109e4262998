package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/franz/media-janitor/internal/asset"
)

// Pin excludes assets from detection and quarantine
func (s *Store) Pin(ctx context.Context, reason string, ids ...asset.ID) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO exclusions (asset_id, reason) VALUES (?, ?)
				ON CONFLICT(asset_id) DO UPDATE SET reason = excluded.reason
			`, id, nullString(reason))
			if err != nil {
				return fmt.Errorf("failed to pin asset %d: %w", id, err)
			}
		}
		return nil
	})
}

// Unpin lifts exclusions and returns how many were removed
func (s *Store) Unpin(ctx context.Context, ids ...asset.ID) (int64, error) {
	var removed int64
	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			result, err := tx.ExecContext(ctx, "DELETE FROM exclusions WHERE asset_id = ?", id)
			if err != nil {
				return fmt.Errorf("failed to unpin asset %d: %w", id, err)
			}
			n, _ := result.RowsAffected()
			removed += n
		}
		return nil
	})
	return removed, err
}

// AddPattern excludes every asset whose path matches a GLOB pattern
func (s *Store) AddPattern(ctx context.Context, pattern string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO exclusion_patterns (pattern) VALUES (?) ON CONFLICT(pattern) DO NOTHING", pattern)
	if err != nil {
		return fmt.Errorf("failed to add exclusion pattern: %w", err)
	}
	return nil
}

// RemovePattern drops an exclusion pattern
func (s *Store) RemovePattern(ctx context.Context, pattern string) (bool, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM exclusion_patterns WHERE pattern = ?", pattern)
	if err != nil {
		return false, fmt.Errorf("failed to remove exclusion pattern: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// Pinned returns the pinned asset ids in ascending order
func (s *Store) Pinned(ctx context.Context) ([]asset.ID, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT asset_id FROM exclusions ORDER BY asset_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query exclusions: %w", err)
	}
	defer rows.Close()

	var ids []asset.ID
	for rows.Next() {
		var id asset.ID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan exclusion: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Patterns returns the configured exclusion patterns
func (s *Store) Patterns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT pattern FROM exclusion_patterns ORDER BY pattern")
	if err != nil {
		return nil, fmt.Errorf("failed to query exclusion patterns: %w", err)
	}
	defer rows.Close()

	var patterns []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan exclusion pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// excludedClause matches assets that are pinned or whose path matches a pattern
const excludedClause = `(
	EXISTS (SELECT 1 FROM exclusions e WHERE e.asset_id = a.id)
	OR EXISTS (SELECT 1 FROM exclusion_patterns p WHERE a.path GLOB p.pattern)
)`

// FilterExcluded implements asset.ExclusionPolicy. Order is preserved.
// Ids without a catalog record are only checked against pins.
func (s *Store) FilterExcluded(ctx context.Context, ids []asset.ID) ([]asset.ID, error) {
	if len(ids) == 0 {
		return ids, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, 2*len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id FROM assets a WHERE a.id IN (`+placeholders+`) AND `+excludedClause+`
		UNION
		SELECT e.asset_id FROM exclusions e WHERE e.asset_id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query exclusions: %w", err)
	}
	defer rows.Close()

	excluded := make(map[asset.ID]bool)
	for rows.Next() {
		var id asset.ID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan exclusion: %w", err)
		}
		excluded[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	kept := make([]asset.ID, 0, len(ids))
	for _, id := range ids {
		if !excluded[id] {
			kept = append(kept, id)
		}
	}
	return kept, nil
}

// IsExcluded implements asset.ExclusionPolicy
func (s *Store) IsExcluded(ctx context.Context, id asset.ID) (bool, error) {
	kept, err := s.FilterExcluded(ctx, []asset.ID{id})
	if err != nil {
		return false, err
	}
	return len(kept) == 0, nil
}

// SeedPatterns makes sure every configured pattern is stored
func (s *Store) SeedPatterns(ctx context.Context, patterns []string) error {
	for _, p := range patterns {
		if err := s.AddPattern(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
