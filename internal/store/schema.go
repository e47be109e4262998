package store

// Schema v1 - asset catalog and exclusions.
// Timestamps the core compares are stored as unix nanoseconds.
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Media files in the active corpus
CREATE TABLE IF NOT EXISTS assets (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  path TEXT UNIQUE NOT NULL,
  title TEXT,
  size_bytes INTEGER NOT NULL DEFAULT 0,
  mime_type TEXT,
  created_at INTEGER NOT NULL,
  width INTEGER,
  height INTEGER,
  parent_id INTEGER,
  derived_from TEXT,
  first_seen_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  last_update_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_assets_derived_from ON assets(derived_from);
CREATE INDEX IF NOT EXISTS idx_assets_parent_id ON assets(parent_id);

-- Assets pinned as never-touch
CREATE TABLE IF NOT EXISTS exclusions (
  asset_id INTEGER PRIMARY KEY,
  reason TEXT,
  pinned_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- GLOB patterns matched against asset paths
CREATE TABLE IF NOT EXISTS exclusion_patterns (
  pattern TEXT PRIMARY KEY,
  added_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// Schema v2 - quarantine ledger
const schemaV2 = `
CREATE TABLE IF NOT EXISTS quarantine (
  deletion_id INTEGER PRIMARY KEY AUTOINCREMENT,
  asset_id INTEGER NOT NULL,
  original_path TEXT NOT NULL,
  trash_path TEXT NOT NULL DEFAULT '',
  metadata_snapshot TEXT NOT NULL,
  size_bytes INTEGER NOT NULL DEFAULT 0,
  state TEXT NOT NULL CHECK (state IN ('pending', 'quarantined', 'restoring', 'purging', 'purged')),
  enqueued_at INTEGER NOT NULL,
  expires_at INTEGER NOT NULL,
  purged_at INTEGER,
  updated_at INTEGER NOT NULL,
  CHECK ((state = 'purged') = (purged_at IS NOT NULL))
);

-- At most one live entry per asset
CREATE UNIQUE INDEX IF NOT EXISTS idx_quarantine_live_asset ON quarantine(asset_id) WHERE purged_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_quarantine_state_expires ON quarantine(state, expires_at);
`

// Schema v3 - resumable duplicate scans
const schemaV3 = `
CREATE TABLE IF NOT EXISTS detect_progress (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  method TEXT NOT NULL,
  next_offset INTEGER NOT NULL DEFAULT 0,
  done INTEGER NOT NULL DEFAULT 0,
  assets_scanned INTEGER NOT NULL DEFAULT 0,
  groups_found INTEGER NOT NULL DEFAULT 0,
  stop_reason TEXT,
  started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`
