package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrUnreadableAsset indicates an asset's backing file is missing or unreadable
	ErrUnreadableAsset = errors.New("unreadable asset")

	// ErrAlreadyQuarantined indicates the asset already sits in the trash
	// (or its file vanished from the expected location mid-quarantine)
	ErrAlreadyQuarantined = errors.New("already quarantined")

	// ErrAlreadyPurged indicates the quarantine entry was permanently deleted
	ErrAlreadyPurged = errors.New("already purged")

	// ErrTrashCorrupted indicates the trash file of a live entry is missing
	ErrTrashCorrupted = errors.New("trash corrupted")

	// ErrMemoryPressure indicates a scan stopped early to stay under the memory headroom
	ErrMemoryPressure = errors.New("memory pressure")

	// ErrStorageUnavailable indicates the asset store or ledger could not be reached
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrBatchUnavailable indicates a single enumeration batch failed and may be retried
	ErrBatchUnavailable = errors.New("batch unavailable")

	// ErrExcluded indicates the asset is pinned by the exclusion policy
	ErrExcluded = errors.New("excluded by policy")

	// ErrConflict indicates a destination conflict or a competing state transition
	ErrConflict = errors.New("conflict")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
