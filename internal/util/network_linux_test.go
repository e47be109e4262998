//go:build linux

package util

import (
	"testing"
)

func TestParseProcMounts(t *testing.T) {
	mounts, err := parseProcMounts()
	if err != nil {
		t.Skipf("/proc/mounts unavailable: %v", err)
	}

	if _, found := mounts["/"]; !found {
		t.Error("Expected root filesystem to be mounted")
	}
}

func TestDetectNetworkFilesystem_TempDir(t *testing.T) {
	info, err := DetectNetworkFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("DetectNetworkFilesystem failed: %v", err)
	}
	if info.IsNetwork {
		t.Logf("Temp directory is on network storage (%s)", info.Protocol)
	}
}

func TestRetryConfigForPaths_Override(t *testing.T) {
	on, off := true, false

	if cfg := RetryConfigForPaths(&on, t.TempDir()); cfg.MaxAttempts != NASRetryConfig().MaxAttempts {
		t.Errorf("Expected NAS retry config when forced on, got %+v", cfg)
	}
	if cfg := RetryConfigForPaths(&off); cfg.MaxAttempts != DefaultRetryConfig().MaxAttempts {
		t.Errorf("Expected default retry config when forced off, got %+v", cfg)
	}
}
