//go:build unix

package fsinit

import (
	"os"

	"golang.org/x/sys/unix"
)

// hostFileSize reports f's current size via a raw fstat(2) instead of
// os.File.Stat, matching the rest of the pack's preference (mender,
// siderolabs-go-blockdevice) for golang.org/x/sys over the higher-level
// os package when a host syscall is already in play.
func hostFileSize(f *os.File) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return 0, err
	}
	return st.Size, nil
}
