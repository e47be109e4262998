//go:build !linux

package util

import "golang.org/x/sys/unix"

// detectPlatformNetwork assumes a local filesystem where detection is unsupported
func detectPlatformNetwork(path string, stat *unix.Statfs_t) (*NetworkInfo, error) {
	return &NetworkInfo{}, nil
}
