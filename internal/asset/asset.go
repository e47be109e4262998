// Package asset defines the media asset model shared by duplicate detection
// and the safe-delete lifecycle, together with the narrow interfaces through
// which both consume the media catalog.
package asset

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ID identifies an asset. IDs are assigned by the AssetStore and enumerate
// in ascending order.
type ID int64

// Dimensions is the pixel size of a raster image
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Key renders the dimensions as "WxH"
func (d Dimensions) Key() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// Valid reports whether both sides are positive
func (d Dimensions) Valid() bool {
	return d.Width > 0 && d.Height > 0
}

// Asset is one media file tracked by the catalog
type Asset struct {
	ID         ID
	Path       string
	Title      string
	SizeBytes  int64
	MimeType   string
	CreatedAt  time.Time
	Dimensions *Dimensions // nil unless the asset is a raster image
	ParentID   *ID         // set for generated derivatives (thumbnails)
}

// Filename returns the base name of the asset's path
func (a *Asset) Filename() string {
	return filepath.Base(a.Path)
}

// IsImage reports whether the asset has an image MIME type
func (a *Asset) IsImage() bool {
	return IsImageMime(a.MimeType)
}

// IsImageMime reports whether mime is an image/* type
func IsImageMime(mime string) bool {
	return strings.HasPrefix(strings.ToLower(mime), "image/")
}

// Snapshot captures everything needed to recreate an asset record after a
// restore. It is serialized into the quarantine ledger.
type Snapshot struct {
	AssetID    ID                `json:"asset_id"`
	Path       string            `json:"path"`
	Title      string            `json:"title,omitempty"`
	MimeType   string            `json:"mime_type"`
	SizeBytes  int64             `json:"size_bytes"`
	CreatedAt  time.Time         `json:"created_at"`
	Dimensions *Dimensions       `json:"dimensions,omitempty"`
	ParentID   *ID               `json:"parent_id,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// SnapshotOf builds the restore snapshot of a
func SnapshotOf(a *Asset) Snapshot {
	s := Snapshot{
		AssetID:   a.ID,
		Path:      a.Path,
		Title:     a.Title,
		MimeType:  a.MimeType,
		SizeBytes: a.SizeBytes,
		CreatedAt: a.CreatedAt,
	}
	if a.Dimensions != nil {
		d := *a.Dimensions
		s.Dimensions = &d
	}
	if a.ParentID != nil {
		p := *a.ParentID
		s.ParentID = &p
	}
	return s
}

// Store is the read accessor over the media corpus plus the two record
// mutations the safe-delete lifecycle needs.
type Store interface {
	// EnumerateIDs returns up to batchSize ids in ascending order starting at
	// offset, and whether more ids follow.
	EnumerateIDs(ctx context.Context, batchSize, offset int) ([]ID, bool, error)

	// Path resolves an id to its file path; ok is false for unknown ids.
	Path(ctx context.Context, id ID) (path string, ok bool, err error)

	// Metadata returns the asset or util.ErrNotFound.
	Metadata(ctx context.Context, id ID) (*Asset, error)

	// RemoveRecord drops the asset from the active corpus.
	RemoveRecord(ctx context.Context, id ID) error

	// RecreateRecord inserts a fresh asset from a snapshot and returns its id.
	RecreateRecord(ctx context.Context, snap Snapshot) (ID, error)
}

// ExclusionPolicy filters out assets the operator pinned as "never touch"
type ExclusionPolicy interface {
	FilterExcluded(ctx context.Context, ids []ID) ([]ID, error)
	IsExcluded(ctx context.Context, id ID) (bool, error)
}
