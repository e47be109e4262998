package util

import (
	"github.com/dustin/go-humanize"
)

// FormatBytes formats bytes in human-readable IEC form (e.g. "1.5 MiB")
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}

// ParseBytes parses a human-readable size such as "512MiB" or "2 GB"
func ParseBytes(s string) (uint64, error) {
	return humanize.ParseBytes(s)
}
