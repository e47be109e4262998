// Package testutil provides in-memory fakes of the catalog interfaces and
// helpers for building media fixtures on disk.
package testutil

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/franz/media-janitor/internal/asset"
	"github.com/franz/media-janitor/internal/util"
)

// MemStore is an in-memory asset.Store and asset.ExclusionPolicy
type MemStore struct {
	mu       sync.Mutex
	assets   map[asset.ID]*asset.Asset
	pinned   map[asset.ID]bool
	nextID   asset.ID
	failEnum map[int]int // offset -> remaining failures
}

// NewMemStore creates an empty store whose first id is 1
func NewMemStore() *MemStore {
	return &MemStore{
		assets:   make(map[asset.ID]*asset.Asset),
		pinned:   make(map[asset.ID]bool),
		failEnum: make(map[int]int),
		nextID:   1,
	}
}

// Add inserts a copy of a; a zero ID is assigned the next free id
func (m *MemStore) Add(a asset.Asset) asset.ID {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.ID == 0 {
		a.ID = m.nextID
	}
	if a.ID >= m.nextID {
		m.nextID = a.ID + 1
	}
	cp := a
	m.assets[a.ID] = &cp
	return a.ID
}

// Pin marks ids as excluded
func (m *MemStore) Pin(ids ...asset.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.pinned[id] = true
	}
}

// FailEnumerate makes the page at offset fail n times
func (m *MemStore) FailEnumerate(offset, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failEnum[offset] = n
}

// Has reports whether id is in the active corpus
func (m *MemStore) Has(id asset.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.assets[id]
	return ok
}

// Len returns the number of active assets
func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.assets)
}

func (m *MemStore) EnumerateIDs(ctx context.Context, batchSize, offset int) ([]asset.ID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := m.failEnum[offset]; n > 0 {
		m.failEnum[offset] = n - 1
		return nil, false, errors.New("database is locked")
	}

	ids := make([]asset.ID, 0, len(m.assets))
	for id := range m.assets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if offset >= len(ids) {
		return nil, false, nil
	}
	end := offset + batchSize
	if end > len(ids) {
		end = len(ids)
	}
	return ids[offset:end], end < len(ids), nil
}

func (m *MemStore) Path(ctx context.Context, id asset.ID) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok {
		return "", false, nil
	}
	return a.Path, true, nil
}

func (m *MemStore) Metadata(ctx context.Context, id asset.ID) (*asset.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok {
		return nil, util.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemStore) RemoveRecord(ctx context.Context, id asset.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assets[id]; !ok {
		return util.ErrNotFound
	}
	delete(m.assets, id)
	return nil
}

func (m *MemStore) RecreateRecord(ctx context.Context, snap asset.Snapshot) (asset.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.assets[id] = &asset.Asset{
		ID:         id,
		Path:       snap.Path,
		Title:      snap.Title,
		SizeBytes:  snap.SizeBytes,
		MimeType:   snap.MimeType,
		CreatedAt:  snap.CreatedAt,
		Dimensions: snap.Dimensions,
		ParentID:   snap.ParentID,
	}
	return id, nil
}

func (m *MemStore) FilterExcluded(ctx context.Context, ids []asset.ID) ([]asset.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]asset.ID, 0, len(ids))
	for _, id := range ids {
		if !m.pinned[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *MemStore) IsExcluded(ctx context.Context, id asset.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pinned[id], nil
}

// Clock is a settable time source
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at t
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current simulated time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// WriteFile creates dir/name with content and returns its path
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	return path
}
