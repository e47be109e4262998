package report

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func readEvents(t *testing.T, logger *EventLogger) []Event {
	t.Helper()

	logger.Close()
	f, err := os.Open(logger.Path())
	if err != nil {
		t.Fatalf("Failed to open log file: %v", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("Failed to decode JSONL line %q: %v", scanner.Text(), err)
		}
		events = append(events, e)
	}
	return events
}

func TestNewEventLogger(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewEventLogger(tmpDir, LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(logger.Path()); os.IsNotExist(err) {
		t.Errorf("Event log file was not created at %s", logger.Path())
	}

	filename := filepath.Base(logger.Path())
	if !strings.HasPrefix(filename, "events-") || !strings.HasSuffix(filename, ".jsonl") {
		t.Errorf("Event log filename format incorrect: %s", filename)
	}
	if logger.RunID() == "" {
		t.Error("Expected a run id")
	}
}

func TestEventLogger_StampsRunID(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	logger.LogQuarantine(5, 1, "/lib/a.jpg", "/trash/1/a.jpg", nil)
	logger.LogPurge(1, "/trash/1/a.jpg", nil)

	events := readEvents(t, logger)
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	for _, e := range events {
		if e.RunID != logger.RunID() {
			t.Errorf("Event %s has run id %q, want %q", e.Event, e.RunID, logger.RunID())
		}
		if e.Timestamp.IsZero() {
			t.Errorf("Event %s has no timestamp", e.Event)
		}
	}
	if events[0].Event != EventQuarantine || events[0].AssetID != 5 || events[0].DeletionID != 1 {
		t.Errorf("Unexpected quarantine event: %+v", events[0])
	}
}

func TestEventLogger_ErrorsRaiseLevel(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	logger.LogRestore(3, 0, "/lib/a.jpg", errors.New("trash corrupted"))
	logger.LogSweep(2, 1)

	events := readEvents(t, logger)
	if events[0].Level != LevelError || events[0].Error != "trash corrupted" {
		t.Errorf("Expected error-level restore event, got %+v", events[0])
	}
	if events[1].Level != LevelWarning || events[1].Extra["failed"] != "1" {
		t.Errorf("Expected warning sweep event, got %+v", events[1])
	}
}

func TestEventLogger_LogLevelFiltering(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelInfo)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	logger.LogScan(1, "/lib/a.jpg", "image/jpeg", 10) // debug, dropped
	logger.LogGroup("hash:abc", 1, []int64{2, 3}, 20)

	events := readEvents(t, logger)
	if len(events) != 1 {
		t.Fatalf("Expected 1 event after filtering, got %d", len(events))
	}
	if events[0].Event != EventGroup || events[0].Extra["copies"] != "2" {
		t.Errorf("Unexpected event: %+v", events[0])
	}
}

func TestEventLogger_ConcurrentWrites(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			logger.LogPurge(int64(i), "/trash", nil)
		}(i)
	}
	wg.Wait()

	if events := readEvents(t, logger); len(events) != 20 {
		t.Errorf("Expected 20 events, got %d", len(events))
	}
}

func TestEventLogger_NullLogger(t *testing.T) {
	logger := NullLogger()

	if err := logger.LogPurge(1, "/trash", nil); err != nil {
		t.Errorf("NullLogger should ignore events, got %v", err)
	}
	if logger.Path() != "" || logger.RunID() != "" {
		t.Error("NullLogger should have no path or run id")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("NullLogger Close failed: %v", err)
	}
}
