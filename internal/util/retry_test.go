package util

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "EAGAIN", err: syscall.EAGAIN, expected: true},
		{name: "ETIMEDOUT", err: syscall.ETIMEDOUT, expected: true},
		{name: "EIO", err: syscall.EIO, expected: true},
		{name: "ENOENT (not retryable)", err: syscall.ENOENT, expected: false},
		{name: "EPERM (not retryable)", err: syscall.EPERM, expected: false},
		{name: "timeout in error message", err: errors.New("connection timeout"), expected: true},
		{name: "sqlite busy", err: errors.New("database is locked (5) (SQLITE_BUSY)"), expected: true},
		{name: "generic error (not retryable)", err: errors.New("invalid argument"), expected: false},
		{
			name:     "PathError with ETIMEDOUT",
			err:      &os.PathError{Op: "open", Path: "/test", Err: syscall.ETIMEDOUT},
			expected: true,
		},
		{
			name:     "PathError with ENOENT (not retryable)",
			err:      &os.PathError{Op: "open", Path: "/test", Err: syscall.ENOENT},
			expected: false,
		},
		{
			name:     "wrapped batch sentinel",
			err:      fmt.Errorf("batch at offset 50: %w", ErrBatchUnavailable),
			expected: true,
		},
		{name: "context cancelled", err: context.Canceled, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsRetryableError(tt.err)
			if result != tt.expected {
				t.Errorf("IsRetryableError(%v) = %v, expected %v", tt.err, result, tt.expected)
			}
		})
	}
}

func fastRetry() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: 5 * time.Millisecond,
		MaxWait:     20 * time.Millisecond,
	}
}

func TestRetryWithBackoff_SuccessAfterRetries(t *testing.T) {
	attempts := 0

	result, err := RetryWithBackoff(context.Background(), fastRetry(), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", syscall.ETIMEDOUT
		}
		return "success", nil
	}, "test operation")

	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result != "success" {
		t.Errorf("Expected result 'success', got: %s", result)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestRetryWithBackoff_FailureKeepsCause(t *testing.T) {
	attempts := 0

	_, err := RetryWithBackoff(context.Background(), fastRetry(), func() (int, error) {
		attempts++
		return 0, fmt.Errorf("offset 0: %w", ErrBatchUnavailable)
	}, "test operation")

	if !errors.Is(err, ErrBatchUnavailable) {
		t.Errorf("Expected ErrBatchUnavailable to survive wrapping, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts (max), got: %d", attempts)
	}
}

func TestRetryWithBackoff_NonRetryableError(t *testing.T) {
	attempts := 0

	_, err := RetryWithBackoff(context.Background(), fastRetry(), func() (int, error) {
		attempts++
		return 0, syscall.ENOENT
	}, "test operation")

	if !errors.Is(err, syscall.ENOENT) {
		t.Errorf("Expected ENOENT, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt (no retry for non-retryable), got: %d", attempts)
	}
}

func TestRetryWithBackoff_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &RetryConfig{MaxAttempts: 5, InitialWait: time.Hour, MaxWait: time.Hour}
	attempts := 0

	_, err := RetryWithBackoff(ctx, cfg, func() (int, error) {
		attempts++
		cancel()
		return 0, syscall.EAGAIN
	}, "test operation")

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}

func TestRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), &RetryConfig{}, func() error {
		attempts++
		return nil
	}, "test operation")

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxAttempts != 3 {
		t.Errorf("Expected MaxAttempts=3, got: %d", cfg.MaxAttempts)
	}
	if cfg.InitialWait != 100*time.Millisecond {
		t.Errorf("Expected InitialWait=100ms, got: %v", cfg.InitialWait)
	}
}
