package blockdevice

import (
	"errors"
	"io"
	"sync"
)

// LoopbackFile is the subset of an open file handle LoopbackDevice needs.
// [vfs.Vfs]'s own file type implements this, which is what lets a
// LoopbackDevice be backed by a file living inside an already-mounted
// filesystem: the VFS layer is reentered by Read/Program/Erase below, so
// the caller must guard the underlying [LoopbackFS] with a reentrant lock
// (see vfs.Vfs's recursive mutex).
type LoopbackFile interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Truncate(size int64) error
	Close() error
}

// LoopbackFS opens the backing file for a LoopbackDevice. Flags follow the
// same O_RDONLY/O_WRONLY/O_RDWR/O_CREAT constants the VFS POSIX surface
// accepts.
type LoopbackFS interface {
	OpenFile(path string, flags int) (LoopbackFile, error)
}

const (
	loopbackORDWR  = 0x2
	loopbackOCREAT = 0x40
)

// LoopbackDevice is a block device whose storage is a regular file inside
// another mounted filesystem. Geometry is fixed at creation time. Reads
// past the file's current end-of-file pad with zeros up to size; erase is
// a no-op since the backing filesystem has no erase semantics of its own;
// program is a positioned write to the backing file.
type LoopbackDevice struct {
	mu       sync.Mutex
	fs       LoopbackFS
	path     string
	capacity int64
	blockSz  int64

	file LoopbackFile
	init bool
}

// NewLoopbackDevice creates a loopback device of capacity bytes, backed by
// path opened through fs (typically a *vfs.Vfs). blockSize sets the
// program/erase alignment exposed to the mounted filesystem.
func NewLoopbackDevice(fs LoopbackFS, path string, capacity, blockSize int64) *LoopbackDevice {
	return &LoopbackDevice{fs: fs, path: path, capacity: capacity, blockSz: blockSize}
}

func (l *LoopbackDevice) Init() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.init {
		return nil
	}
	f, err := l.fs.OpenFile(l.path, loopbackORDWR|loopbackOCREAT)
	if err != nil {
		return newErr("init", ErrDeviceError, err)
	}
	l.file = f
	l.init = true
	return nil
}

func (l *LoopbackDevice) Deinit() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.init {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.init = false
	if err != nil {
		return newErr("deinit", ErrDeviceError, err)
	}
	return nil
}

func (l *LoopbackDevice) IsInitialized() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.init
}

func (l *LoopbackDevice) Read(buf []byte, addr, size int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.init {
		return newErr("read", ErrNotInitialized, errNotInitialized)
	}
	if err := checkRead(l, addr, size); err != nil {
		return err
	}
	n, err := l.file.ReadAt(buf[:size], addr)
	if err != nil && !errors.Is(err, io.EOF) {
		return newErr("read", ErrDeviceError, err)
	}
	for i := n; i < int(size); i++ {
		buf[i] = 0
	}
	return nil
}

func (l *LoopbackDevice) Program(buf []byte, addr, size int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.init {
		return newErr("program", ErrNotInitialized, errNotInitialized)
	}
	if err := checkProgram(l, addr, size); err != nil {
		return err
	}
	_, err := l.file.WriteAt(buf[:size], addr)
	if err != nil {
		return newErr("program", ErrDeviceError, err)
	}
	return nil
}

// Erase is a no-op: the backing filesystem has no erase semantics.
func (l *LoopbackDevice) Erase(addr, size int64) error {
	if err := checkErase(l, addr, size); err != nil {
		return err
	}
	return nil
}

func (l *LoopbackDevice) Trim(addr, size int64) error { return nil }

func (l *LoopbackDevice) Sync() error { return nil }

func (l *LoopbackDevice) Size() int64        { return l.capacity }
func (l *LoopbackDevice) ReadSize() int64    { return 1 }
func (l *LoopbackDevice) ProgramSize() int64 { return l.blockSz }
func (l *LoopbackDevice) EraseSize() int64   { return l.blockSz }
func (l *LoopbackDevice) Name() string       { return "loopback" }

var _ BlockDevice = (*LoopbackDevice)(nil)
