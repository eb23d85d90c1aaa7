//go:build !unix

package fsinit

import "os"

// hostFileSize falls back to os.File.Stat on non-unix hosts, where
// golang.org/x/sys/unix.Fstat is unavailable.
func hostFileSize(f *os.File) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
