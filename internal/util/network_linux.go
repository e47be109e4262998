//go:build linux

package util

import (
	"bufio"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// Linux VFS magic numbers of network filesystems
var networkMagic = map[uint32]string{
	unix.NFS_SUPER_MAGIC:  "nfs",
	unix.CIFS_SUPER_MAGIC: "cifs",
	unix.SMB_SUPER_MAGIC:  "smb",
	0xfe534d42:            "smb2",
	0x564c:                "ncp",
}

// detectPlatformNetwork detects network filesystems on Linux
func detectPlatformNetwork(path string, stat *unix.Statfs_t) (*NetworkInfo, error) {
	info := &NetworkInfo{}

	if proto, found := networkMagic[uint32(stat.Type)]; found {
		info.IsNetwork = true
		info.Protocol = proto
	}

	mounts, err := parseProcMounts()
	if err != nil {
		// Magic number is good enough without /proc
		return info, nil
	}

	bestMatch := ""
	for mountPoint, fsType := range mounts {
		if !strings.HasPrefix(path, mountPoint) || len(mountPoint) <= len(bestMatch) {
			continue
		}
		bestMatch = mountPoint
		info.MountPath = mountPoint

		fsType = strings.ToLower(fsType)
		for _, marker := range []string{"nfs", "cifs", "smb", "ncpfs", "fuse.sshfs", "fuse.rclone"} {
			if strings.Contains(fsType, marker) {
				info.IsNetwork = true
				info.Protocol = fsType
				break
			}
		}
	}

	return info, nil
}

// parseProcMounts maps mount points to filesystem types
func parseProcMounts() (map[string]string, error) {
	file, err := os.Open("/proc/mounts")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	mounts := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		// device mountpoint fstype options dump pass
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		mounts[fields[1]] = fields[2]
	}

	return mounts, scanner.Err()
}
