//go:build darwin

package core

import "syscall"

// getDiskSpace returns bytes available to an unprivileged user on the
// volume containing path.
func getDiskSpace(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}

	return stat.Bavail * uint64(stat.Bsize), nil
}
