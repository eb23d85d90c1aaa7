// Package vfs multiplexes one or more mounted filesystem.Filesystem
// instances behind a single POSIX-flavored surface, the way a small
// embedded OS multiplexes FatFs/littlefs volumes behind libc's open/read/
// write/close. Every exported method is safe for concurrent use: each Vfs
// has one recursive lock that serializes access to it, reentrant so a mounted
// filesystem's own loopback block device can call back into the Vfs that
// hosts it without deadlocking.
package vfs

import (
	"strings"
	"sync"

	"github.com/picofs/vfs/filesystem"
)

// MaxMountpoints bounds the number of simultaneously mounted filesystems,
// mirroring the fixed-size mount table of the original design.
const MaxMountpoints = 10

type mountpoint struct {
	path   string // Absolute, normalized, no trailing slash except for "/" itself.
	fs     filesystem.Filesystem
	device filesystem.BlockDevice
}

// Vfs is one virtual filesystem multiplexer. The zero value can mount and
// open files but has no Stdio, so descriptors 0-2 need a Vfs from NewVfs.
type Vfs struct {
	mu          recursiveMutex
	mounts      [MaxMountpoints]*mountpoint
	nmounts     int
	files       fileTable
	dirs        dirTable
	stdio       Stdio
	initStdioOn sync.Once
}

// NewVfs constructs an empty, unmounted Vfs.
func NewVfs() *Vfs {
	v := &Vfs{}
	v.stdio = defaultStdio{}
	return v
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

// resolve finds the mountpoint with the longest matching path prefix and
// returns it alongside the path relative to that mountpoint (always
// absolute, rooted at "/" within the mounted filesystem).
func (v *Vfs) resolve(path string) (*mountpoint, string, error) {
	path = normalizePath(path)
	var best *mountpoint
	bestLen := -1
	for i := 0; i < v.nmounts; i++ {
		m := v.mounts[i]
		if m == nil {
			continue
		}
		if m.path == "/" {
			if bestLen < 1 {
				best, bestLen = m, 1
			}
			continue
		}
		if path == m.path || strings.HasPrefix(path, m.path+"/") {
			if len(m.path) > bestLen {
				best, bestLen = m, len(m.path)
			}
		}
	}
	if best == nil {
		return nil, "", filesystem.ErrNotMounted
	}
	rel := strings.TrimPrefix(path, best.path)
	if rel == "" {
		rel = "/"
	}
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	return best, rel, nil
}

// Default is the package-level convenience instance most callers use
// directly instead of constructing their own Vfs, the Go-idiomatic
// equivalent of a single well-known global table of mounted filesystems.
var Default = NewVfs()
