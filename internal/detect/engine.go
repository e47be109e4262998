package detect

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/franz/media-janitor/internal/asset"
	"github.com/franz/media-janitor/internal/batch"
	"github.com/franz/media-janitor/internal/report"
	"github.com/franz/media-janitor/internal/util"
)

// Method selects which strategies feed the merger
type Method string

const (
	MethodHash     Method = "hash"
	MethodFilename Method = "filename"
	MethodBoth     Method = "both"
)

// ParseMethod validates a method name. The empty string means both.
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case MethodHash:
		return MethodHash, nil
	case MethodFilename, "name", "pattern":
		return MethodFilename, nil
	case MethodBoth, "":
		return MethodBoth, nil
	default:
		return "", fmt.Errorf("%w: unknown method %q (want hash, filename or both)", util.ErrInvalidConfig, s)
	}
}

func (m Method) hashes() bool    { return m == MethodHash || m == MethodBoth }
func (m Method) filenames() bool { return m == MethodFilename || m == MethodBoth }

// Config wires the engine to its collaborators. Zero values fall back to
// package defaults.
type Config struct {
	Store  asset.Store
	Policy asset.ExclusionPolicy

	BatchSize   int
	ChunkSize   int
	HashWorkers int

	// MemoryHeadroom stops a scan once available memory drops below it.
	// Zero disables the check.
	MemoryHeadroom uint64
	Probe          MemoryProbe

	Retry  *util.RetryConfig
	Logger *report.EventLogger

	// OnBatch is called after each committed batch with the running total
	OnBatch func(scanned int)
}

// Options are per-call detection settings
type Options struct {
	Method            Method
	ExcludeThumbnails bool
	Dimensions        bool
	From              batch.Cursor
}

// Engine runs duplicate detection over an asset store
type Engine struct {
	cfg   Config
	guard headroomGuard
}

// NewEngine creates an engine
func NewEngine(cfg Config) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = batch.DefaultSize
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.HashWorkers <= 0 {
		cfg.HashWorkers = 1
	}
	if cfg.Retry == nil {
		cfg.Retry = util.DefaultRetryConfig()
	}
	if cfg.Probe == nil {
		cfg.Probe = SystemMemory{}
	}
	return &Engine{
		cfg:   cfg,
		guard: headroomGuard{probe: cfg.Probe, headroom: cfg.MemoryHeadroom},
	}
}

// record is what the engine keeps per asset to pick originals and size copies
type record struct {
	size    int64
	created time.Time
	order   int
}

// Report is the outcome of one detection run. A partial report is still
// valid: every group in it is complete, the corpus just was not fully covered.
type Report struct {
	Groups Groups

	Partial    bool
	StopReason error
	// Cursor resumes the enumeration where this run stopped
	Cursor batch.Cursor

	Scanned    int
	Excluded   int
	Unreadable int
	Missing    int
	Duration   time.Duration

	records map[asset.ID]record
}

// DuplicateGroup is a merged group with its original decided
type DuplicateGroup struct {
	Key        string
	Strategy   Strategy
	OriginalID asset.ID
	CopyIDs    []asset.ID
}

// Savings is the space reclaimable by keeping only originals
type Savings struct {
	Bytes       int64
	GroupsCount int
}

// staged holds one batch's observations until the batch is known to be whole
type staged struct {
	assets []*asset.Asset
	hashed []hashResult
}

// FindDuplicates scans the store from opts.From and returns the merged groups.
// Excluded ids never reach a strategy. Cancelling ctx or running low on memory
// ends the scan early with Partial set; a storage failure that survives
// retries is returned as util.ErrStorageUnavailable.
func (e *Engine) FindDuplicates(ctx context.Context, opts Options) (*Report, error) {
	if opts.Method == "" {
		opts.Method = MethodBoth
	}
	if e.cfg.Store == nil {
		return nil, fmt.Errorf("%w: no asset store configured", util.ErrInvalidConfig)
	}

	start := time.Now()
	hashes := NewHashStrategy(e.cfg.ChunkSize, e.cfg.HashWorkers)
	patterns := NewPatternStrategy()
	dims := NewDimensionStrategy()

	rep := &Report{records: make(map[asset.ID]record)}
	it := batch.NewIterator(e.cfg.Store, e.cfg.BatchSize, opts.From, e.cfg.Retry)

	for {
		batchStart := it.Cursor()

		ids, err := it.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				rep.stop(batchStart, ctx.Err())
				break
			}
			return nil, err
		}
		if ids == nil && it.Cursor().Done {
			rep.Cursor = it.Cursor()
			break
		}

		kept, err := e.filter(ctx, ids)
		if err != nil {
			if ctx.Err() != nil {
				rep.stop(batchStart, ctx.Err())
				break
			}
			return nil, err
		}

		st, missing, err := e.prepare(ctx, kept, opts, hashes)
		if err != nil {
			if ctx.Err() != nil {
				rep.stop(batchStart, ctx.Err())
				break
			}
			return nil, err
		}
		// A batch interrupted while hashing is discarded whole
		if ctx.Err() != nil {
			rep.stop(batchStart, ctx.Err())
			break
		}

		rep.Excluded += len(ids) - len(kept)
		rep.Missing += missing
		rep.Scanned += len(ids)
		e.commit(rep, st, opts, hashes, patterns, dims)
		rep.Cursor = it.Cursor()

		if e.cfg.OnBatch != nil {
			e.cfg.OnBatch(rep.Scanned)
		}

		if breached, avail := e.guard.breached(); breached {
			util.WarnLog("Available memory %s below headroom %s, stopping scan at offset %d",
				humanize.IBytes(avail), humanize.IBytes(e.guard.headroom), rep.Cursor.Offset)
			rep.Partial = true
			rep.StopReason = fmt.Errorf("%w: %s available", util.ErrMemoryPressure, humanize.IBytes(avail))
			break
		}
		if rep.Cursor.Done {
			break
		}
	}

	rep.Unreadable = hashes.Unreadable()

	ranked := make([]Ranked, 0, 3)
	if opts.Method.hashes() {
		ranked = append(ranked, Ranked{Strategy: StrategyHash, Groups: hashes.Groups()})
	}
	if opts.Method.filenames() {
		ranked = append(ranked, Ranked{Strategy: StrategyFilename, Groups: patterns.Groups()})
	}
	if opts.Dimensions {
		ranked = append(ranked, Ranked{Strategy: StrategyDimension, Groups: dims.Groups()})
	}
	rep.Groups = Merge(ranked...)
	rep.Duration = time.Since(start)

	for _, g := range rep.DuplicateGroups() {
		e.cfg.Logger.LogGroup(g.Key, int64(g.OriginalID), idsToInt64(g.CopyIDs), rep.reclaimable(g))
	}

	return rep, nil
}

// stop marks the report partial and rewinds the cursor to the discarded batch
func (r *Report) stop(at batch.Cursor, reason error) {
	r.Partial = true
	r.StopReason = reason
	r.Cursor = at
}

// filter drops ids the exclusion policy protects
func (e *Engine) filter(ctx context.Context, ids []asset.ID) ([]asset.ID, error) {
	if e.cfg.Policy == nil || len(ids) == 0 {
		return ids, nil
	}
	kept, err := util.RetryWithBackoff(ctx, e.cfg.Retry, func() ([]asset.ID, error) {
		kept, err := e.cfg.Policy.FilterExcluded(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", util.ErrBatchUnavailable, err)
		}
		return kept, nil
	}, "filter excluded")
	if err != nil {
		return nil, fmt.Errorf("%w: exclusion policy: %w", util.ErrStorageUnavailable, err)
	}
	return kept, nil
}

// prepare loads metadata for a batch and hashes it, without touching any
// strategy state. Ids whose record vanished are counted as missing.
func (e *Engine) prepare(ctx context.Context, ids []asset.ID, opts Options, hashes *HashStrategy) (staged, int, error) {
	type loaded struct {
		assets  []*asset.Asset
		missing int
	}

	l, err := util.RetryWithBackoff(ctx, e.cfg.Retry, func() (loaded, error) {
		out := loaded{assets: make([]*asset.Asset, 0, len(ids))}
		for _, id := range ids {
			a, err := e.cfg.Store.Metadata(ctx, id)
			if errors.Is(err, util.ErrNotFound) {
				out.missing++
				continue
			}
			if err != nil {
				return loaded{}, fmt.Errorf("metadata %d: %w: %w", id, util.ErrBatchUnavailable, err)
			}
			out.assets = append(out.assets, a)
		}
		return out, nil
	}, "load batch metadata")
	if err != nil {
		return staged{}, 0, fmt.Errorf("%w: %w", util.ErrStorageUnavailable, err)
	}

	st := staged{assets: l.assets}
	if opts.Method.hashes() {
		toHash := make([]*asset.Asset, 0, len(l.assets))
		for _, a := range l.assets {
			if opts.ExcludeThumbnails && isThumbnail(a) {
				continue
			}
			toHash = append(toHash, a)
		}
		st.hashed = hashes.hashBatch(ctx, toHash)
	}
	return st, l.missing, nil
}

// commit folds a whole batch into the strategies
func (e *Engine) commit(rep *Report, st staged, opts Options, hashes *HashStrategy, patterns *PatternStrategy, dims *DimensionStrategy) {
	hashes.commit(st.hashed)

	for _, a := range st.assets {
		rep.records[a.ID] = record{size: a.SizeBytes, created: a.CreatedAt, order: len(rep.records)}
		e.cfg.Logger.LogScan(int64(a.ID), a.Path, a.MimeType, a.SizeBytes)

		if opts.Method.filenames() {
			patterns.Observe(a.ID, a.Filename())
		}
		if opts.Dimensions && !(opts.ExcludeThumbnails && isThumbnail(a)) {
			dims.Observe(a)
		}
	}
}

// isThumbnail reports whether a is a generated size variant
func isThumbnail(a *asset.Asset) bool {
	return a.ParentID != nil || IsThumbnailName(a.Filename())
}

// DuplicateGroups returns the merged groups sorted by key, each with its
// original picked: the oldest member, ties going to enumeration order.
func (r *Report) DuplicateGroups() []DuplicateGroup {
	keys := make([]string, 0, len(r.Groups))
	for k := range r.Groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]DuplicateGroup, 0, len(keys))
	for _, key := range keys {
		members := r.Groups[key]
		strategy, _, _ := ParseKey(key)

		original := members[0]
		for _, id := range members[1:] {
			if r.older(id, original) {
				original = id
			}
		}

		copies := make([]asset.ID, 0, len(members)-1)
		for _, id := range members {
			if id != original {
				copies = append(copies, id)
			}
		}

		out = append(out, DuplicateGroup{
			Key:        key,
			Strategy:   strategy,
			OriginalID: original,
			CopyIDs:    copies,
		})
	}
	return out
}

// older reports whether a should be kept over b
func (r *Report) older(a, b asset.ID) bool {
	ra, rb := r.records[a], r.records[b]
	if !ra.created.Equal(rb.created) {
		return ra.created.Before(rb.created)
	}
	return ra.order < rb.order
}

// SizeOf returns the recorded size of a scanned asset
func (r *Report) SizeOf(id asset.ID) int64 {
	return r.records[id].size
}

func (r *Report) reclaimable(g DuplicateGroup) int64 {
	var total int64
	for _, id := range g.CopyIDs {
		total += r.records[id].size
	}
	return total
}

// PotentialSavings sums the size of every copy across all groups
func (r *Report) PotentialSavings() Savings {
	groups := r.DuplicateGroups()
	s := Savings{GroupsCount: len(groups)}
	for _, g := range groups {
		s.Bytes += r.reclaimable(g)
	}
	return s
}

// DuplicateGroups runs a scan and returns its enriched groups
func (e *Engine) DuplicateGroups(ctx context.Context, opts Options) ([]DuplicateGroup, error) {
	rep, err := e.FindDuplicates(ctx, opts)
	if err != nil {
		return nil, err
	}
	return rep.DuplicateGroups(), nil
}

// PotentialSavings runs a scan and returns the reclaimable space
func (e *Engine) PotentialSavings(ctx context.Context, opts Options) (Savings, error) {
	rep, err := e.FindDuplicates(ctx, opts)
	if err != nil {
		return Savings{}, err
	}
	return rep.PotentialSavings(), nil
}

func idsToInt64(ids []asset.ID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}
