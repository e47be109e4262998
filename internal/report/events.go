package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventScan       EventType = "scan"
	EventGroup      EventType = "group"
	EventQuarantine EventType = "quarantine"
	EventRestore    EventType = "restore"
	EventPurge      EventType = "purge"
	EventSweep      EventType = "sweep"
	EventReconcile  EventType = "reconcile"
	EventError      EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event is one line of the audit log
type Event struct {
	Timestamp  time.Time         `json:"ts"`
	RunID      string            `json:"run_id"`
	Level      EventLevel        `json:"level"`
	Event      EventType         `json:"event"`
	AssetID    int64             `json:"asset_id,omitempty"`
	DeletionID int64             `json:"deletion_id,omitempty"`
	Path       string            `json:"path,omitempty"`
	TrashPath  string            `json:"trash_path,omitempty"`
	GroupKey   string            `json:"group_key,omitempty"`
	Bytes      int64             `json:"bytes,omitempty"`
	Error      string            `json:"error,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file. A nil *EventLogger is a valid
// no-op logger.
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	runID    string
	minLevel EventLevel
}

// NewEventLogger creates events-<timestamp>.jsonl in outputDir. Events below
// minLevel are dropped.
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	runID := uuid.NewString()
	filename := fmt.Sprintf("events-%s-%s.jsonl", time.Now().Format("20060102-150405"), runID[:8])
	path := filepath.Join(outputDir, filename)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		runID:    runID,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.RunID = l.runID

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return nil
}

func levelFor(err error) (EventLevel, string) {
	if err != nil {
		return LevelError, err.Error()
	}
	return LevelInfo, ""
}

// LogScan logs a cataloged file
func (l *EventLogger) LogScan(assetID int64, path, mime string, sizeBytes int64) error {
	return l.Log(&Event{
		Level:   LevelDebug,
		Event:   EventScan,
		AssetID: assetID,
		Path:    path,
		Bytes:   sizeBytes,
		Extra:   map[string]string{"mime": mime},
	})
}

// LogGroup logs an accepted duplicate group
func (l *EventLogger) LogGroup(key string, originalID int64, copyIDs []int64, reclaimable int64) error {
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventGroup,
		GroupKey: key,
		AssetID:  originalID,
		Bytes:    reclaimable,
		Extra:    map[string]string{"copies": strconv.Itoa(len(copyIDs))},
	})
}

// LogQuarantine logs one quarantine attempt
func (l *EventLogger) LogQuarantine(assetID, deletionID int64, path, trashPath string, err error) error {
	level, msg := levelFor(err)
	return l.Log(&Event{
		Level:      level,
		Event:      EventQuarantine,
		AssetID:    assetID,
		DeletionID: deletionID,
		Path:       path,
		TrashPath:  trashPath,
		Error:      msg,
	})
}

// LogRestore logs one restore attempt
func (l *EventLogger) LogRestore(deletionID, newAssetID int64, path string, err error) error {
	level, msg := levelFor(err)
	return l.Log(&Event{
		Level:      level,
		Event:      EventRestore,
		DeletionID: deletionID,
		AssetID:    newAssetID,
		Path:       path,
		Error:      msg,
	})
}

// LogPurge logs one purge attempt
func (l *EventLogger) LogPurge(deletionID int64, trashPath string, err error) error {
	level, msg := levelFor(err)
	return l.Log(&Event{
		Level:      level,
		Event:      EventPurge,
		DeletionID: deletionID,
		TrashPath:  trashPath,
		Error:      msg,
	})
}

// LogSweep logs the outcome of an expiry sweep
func (l *EventLogger) LogSweep(purged, failed int) error {
	level := LevelInfo
	if failed > 0 {
		level = LevelWarning
	}
	return l.Log(&Event{
		Level: level,
		Event: EventSweep,
		Extra: map[string]string{
			"purged": strconv.Itoa(purged),
			"failed": strconv.Itoa(failed),
		},
	})
}

// LogReconcile logs a ledger repair action
func (l *EventLogger) LogReconcile(deletionID int64, action string, err error) error {
	level, msg := levelFor(err)
	if err == nil {
		level = LevelWarning
	}
	return l.Log(&Event{
		Level:      level,
		Event:      EventReconcile,
		DeletionID: deletionID,
		Error:      msg,
		Extra:      map[string]string{"action": action},
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, path string, err error) error {
	return l.Log(&Event{
		Level: LevelError,
		Event: event,
		Path:  path,
		Error: err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// RunID returns the identifier stamped on every event of this run
func (l *EventLogger) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
