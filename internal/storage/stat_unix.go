//go:build unix

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// freeBytes returns the bytes available to unprivileged users on the filesystem holding path.
func freeBytes(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return -1, fmt.Errorf("statfs %s: %w", path, err)
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
