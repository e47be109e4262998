package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/franz/media-janitor/internal/asset"
	"github.com/franz/media-janitor/internal/util"
)

// AssetRecord is one cataloged file as written by a scan
type AssetRecord struct {
	asset.Asset
	// DerivedFrom is the path of the file a thumbnail was generated from
	DerivedFrom string
}

const assetColumns = `id, path, COALESCE(title, ''), size_bytes, COALESCE(mime_type, ''),
	created_at, width, height, parent_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*asset.Asset, error) {
	var (
		a         asset.Asset
		createdNs int64
		width     sql.NullInt64
		height    sql.NullInt64
		parentID  sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.Path, &a.Title, &a.SizeBytes, &a.MimeType,
		&createdNs, &width, &height, &parentID); err != nil {
		return nil, err
	}

	a.CreatedAt = time.Unix(0, createdNs).UTC()
	if width.Valid && height.Valid {
		a.Dimensions = &asset.Dimensions{Width: int(width.Int64), Height: int(height.Int64)}
	}
	if parentID.Valid {
		p := asset.ID(parentID.Int64)
		a.ParentID = &p
	}
	return &a, nil
}

func dimensionArgs(d *asset.Dimensions) (any, any) {
	if d == nil {
		return nil, nil
	}
	return d.Width, d.Height
}

func parentArg(p *asset.ID) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// UpsertAsset inserts or updates an asset by path and fills in its ID
func (s *Store) UpsertAsset(ctx context.Context, rec *AssetRecord) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		return upsertAsset(ctx, tx, rec)
	})
}

// UpsertAssets writes a batch of assets in one transaction
func (s *Store) UpsertAssets(ctx context.Context, recs []*AssetRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		for _, rec := range recs {
			if err := upsertAsset(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertAsset(ctx context.Context, tx *sql.Tx, rec *AssetRecord) error {
	w, h := dimensionArgs(rec.Dimensions)
	err := tx.QueryRowContext(ctx, `
		INSERT INTO assets (path, title, size_bytes, mime_type, created_at, width, height, derived_from)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title = excluded.title,
			size_bytes = excluded.size_bytes,
			mime_type = excluded.mime_type,
			created_at = excluded.created_at,
			width = excluded.width,
			height = excluded.height,
			derived_from = excluded.derived_from,
			last_update_at = CURRENT_TIMESTAMP
		RETURNING id
	`, rec.Path, nullString(rec.Title), rec.SizeBytes, nullString(rec.MimeType),
		rec.CreatedAt.UnixNano(), w, h, nullString(rec.DerivedFrom)).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert asset %s: %w", rec.Path, err)
	}
	return nil
}

// LinkDerivatives points every thumbnail at the asset it was derived from.
// Derivatives whose source is not cataloged are unlinked.
func (s *Store) LinkDerivatives(ctx context.Context) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE assets SET parent_id = (
			SELECT p.id FROM assets p WHERE p.path = assets.derived_from
		)
		WHERE derived_from IS NOT NULL
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to link derivatives: %w", err)
	}

	var linked int64
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM assets WHERE parent_id IS NOT NULL").Scan(&linked)
	if err != nil {
		return 0, fmt.Errorf("failed to count derivatives: %w", err)
	}
	return linked, nil
}

// CountAssets returns the size of the active corpus
func (s *Store) CountAssets(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM assets").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count assets: %w", err)
	}
	return count, nil
}

// AssetByPath returns the asset cataloged at path or util.ErrNotFound
func (s *Store) AssetByPath(ctx context.Context, path string) (*asset.Asset, error) {
	a, err := scanAsset(s.db.QueryRowContext(ctx,
		"SELECT "+assetColumns+" FROM assets WHERE path = ?", path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("asset at %s: %w", path, util.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return a, nil
}

// EnumerateIDs implements asset.Store
func (s *Store) EnumerateIDs(ctx context.Context, batchSize, offset int) ([]asset.ID, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM assets ORDER BY id LIMIT ? OFFSET ?", batchSize+1, offset)
	if err != nil {
		return nil, false, fmt.Errorf("failed to enumerate assets: %w", err)
	}
	defer rows.Close()

	ids := make([]asset.ID, 0, batchSize+1)
	for rows.Next() {
		var id asset.ID
		if err := rows.Scan(&id); err != nil {
			return nil, false, fmt.Errorf("failed to scan asset id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	if len(ids) > batchSize {
		return ids[:batchSize], true, nil
	}
	return ids, false, nil
}

// Path implements asset.Store
func (s *Store) Path(ctx context.Context, id asset.ID) (string, bool, error) {
	var path string
	err := s.db.QueryRowContext(ctx, "SELECT path FROM assets WHERE id = ?", id).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get asset path: %w", err)
	}
	return path, true, nil
}

// Metadata implements asset.Store
func (s *Store) Metadata(ctx context.Context, id asset.ID) (*asset.Asset, error) {
	a, err := scanAsset(s.db.QueryRowContext(ctx,
		"SELECT "+assetColumns+" FROM assets WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("asset %d: %w", id, util.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return a, nil
}

// RemoveRecord implements asset.Store. Derivatives of the removed asset are
// unlinked; the next scan relinks them if the asset comes back.
func (s *Store) RemoveRecord(ctx context.Context, id asset.ID) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM assets WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to remove asset: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("asset %d: %w", id, util.ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE assets SET parent_id = NULL WHERE parent_id = ?", id); err != nil {
			return fmt.Errorf("failed to unlink derivatives: %w", err)
		}
		return nil
	})
}

// RecreateRecord implements asset.Store. The asset gets a fresh id.
func (s *Store) RecreateRecord(ctx context.Context, snap asset.Snapshot) (asset.ID, error) {
	w, h := dimensionArgs(snap.Dimensions)

	var id asset.ID
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO assets (path, title, size_bytes, mime_type, created_at, width, height, parent_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT id FROM assets WHERE id = ?))
		RETURNING id
	`, snap.Path, nullString(snap.Title), snap.SizeBytes, nullString(snap.MimeType),
		snap.CreatedAt.UnixNano(), w, h, parentArg(snap.ParentID)).Scan(&id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("%w: an asset is already cataloged at %s", util.ErrConflict, snap.Path)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to recreate asset: %w", err)
	}
	return id, nil
}
