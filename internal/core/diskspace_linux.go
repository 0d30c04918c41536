//go:build linux

package core

import "golang.org/x/sys/unix"

// getDiskSpace returns bytes available to an unprivileged user on the
// volume containing path. Uses unix.Statfs rather than syscall.Statfs,
// whose field types vary across architectures; the unix package
// normalizes them. Bavail, not Bfree, excludes root-reserved blocks.
func getDiskSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}

	return uint64(stat.Bavail) * uint64(stat.Bsize), nil //nolint:gosec // kernel guarantees non-negative
}
