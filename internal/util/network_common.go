package util

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// NetworkInfo contains information about a filesystem's network characteristics
type NetworkInfo struct {
	IsNetwork bool   // Whether the filesystem is network-mounted
	Protocol  string // Protocol (smb, nfs, cifs, etc.) or empty if local
	MountPath string // Mount point of the filesystem
}

// DetectNetworkFilesystem checks if a path is on a network-mounted filesystem
func DetectNetworkFilesystem(path string) (*NetworkInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(absPath, &stat); err != nil {
		return nil, fmt.Errorf("failed to stat filesystem: %w", err)
	}

	return detectPlatformNetwork(absPath, &stat)
}

// IsNetworkPath checks if a path is on a network filesystem (convenience function)
func IsNetworkPath(path string) bool {
	info, err := DetectNetworkFilesystem(path)
	if err != nil {
		return false
	}
	return info.IsNetwork
}

// RetryConfigForPaths returns NAS retry settings when any of the paths is
// network-mounted, and the default settings otherwise. A non-nil nasMode
// overrides detection.
func RetryConfigForPaths(nasMode *bool, paths ...string) *RetryConfig {
	if nasMode != nil {
		if *nasMode {
			return NASRetryConfig()
		}
		return DefaultRetryConfig()
	}

	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := DetectNetworkFilesystem(p)
		if err != nil {
			DebugLog("Network detection failed for %s: %v", p, err)
			continue
		}
		if info.IsNetwork {
			InfoLog("Network filesystem detected: %s is on %s (%s), enabling NAS retries",
				p, info.Protocol, info.MountPath)
			return NASRetryConfig()
		}
	}
	return DefaultRetryConfig()
}
