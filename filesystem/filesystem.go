// Package filesystem defines the uniform filesystem trait mounted filesystem
// adapters (FAT, littlefs-style) implement, plus the value types shared
// between them and the VFS multiplexer.
package filesystem

import (
	"errors"
	"time"
)

// OpenFlag mirrors the POSIX open(2) flags the VFS accepts and forwards to
// adapters, translated into whatever the underlying engine expects.
type OpenFlag int

const (
	RDONLY OpenFlag = 0
	WRONLY OpenFlag = 1 << iota
	RDWR
	CREAT
	EXCL
	TRUNC
	APPEND
)

// Whence mirrors lseek(2)'s SEEK_SET/SEEK_CUR/SEEK_END.
type Whence int

const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)

// FileInfo is the subset of stat(2) information both adapters can
// synthesize: FAT from its directory-entry attribute byte, littlefs-style
// from its own metadata.
type FileInfo struct {
	Name    string
	Size    int64
	IsDir   bool
	ModTime time.Time
}

// DirEntry is one entry returned by a directory read.
type DirEntry struct {
	Name  string
	IsDir bool
}

// Code is the internal negative error-code space every adapter remaps its
// engine's errors onto (spec.md §7). It reuses the POSIX errno values so
// the VFS's syscall boundary can convert it to (-1, errno) with a plain
// sign flip.
type Code int

// File is an open file handle, implemented per-adapter.
type File interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	Sync() error
	Seek(offset int64, whence Whence) (int64, error)
	Tell() (int64, error)
	Size() (int64, error)
	Truncate(size int64) error
	Close() error
}

// Dir is an open directory handle, implemented per-adapter.
type Dir interface {
	Read() (DirEntry, error)
	Close() error
}

// BlockDevice is the narrow device contract the VFS passes through to
// Mount/Format unexamined; it intentionally is not blockdevice.BlockDevice
// to keep this package free of a dependency on the blockdevice package
// (adapters import blockdevice directly and type-assert as needed).
type BlockDevice interface {
	Name() string
}

// Filesystem is the uniform trait every concrete filesystem (FatAdapter,
// LittleFsAdapter) implements. Mount retains the device for the lifetime
// of the mount; Unmount detaches it. pendingFormat tells Mount to skip
// integrity checks that would fail because the caller is about to format.
type Filesystem interface {
	Mount(device BlockDevice, pendingFormat bool) error
	Unmount() error
	Format(device BlockDevice) error

	Remove(path string) error
	Rename(oldpath, newpath string) error
	Mkdir(path string) error
	Rmdir(path string) error
	Stat(path string) (FileInfo, error)

	OpenFile(path string, flags OpenFlag) (File, error)
	OpenDir(path string) (Dir, error)

	// Name identifies the adapter kind: "fat" or "littlefs".
	Name() string
}

var (
	ErrNotMounted    = errors.New("filesystem: not mounted")
	ErrAlreadyMounted = errors.New("filesystem: already mounted")
)
