package vfs

import (
	"errors"
	"io"
	pathpkg "path"

	"github.com/picofs/vfs/blockdevice"
	"github.com/picofs/vfs/filesystem"
)

// Open resolves path against the mounted filesystems and returns a file
// descriptor, translating POSIX-style flags the same way every adapter's
// OpenFlag already does.
func (v *Vfs) Open(path string, flags filesystem.OpenFlag) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, rel, err := v.resolve(path)
	if err != nil {
		return -1, err
	}
	f, err := m.fs.OpenFile(rel, flags)
	if err != nil {
		return -1, err
	}
	fd := v.files.alloc(&fileEntry{f: f, mp: m, path: rel})
	return fd, nil
}

func (v *Vfs) fileAt(fd int) (*fileEntry, error) {
	if fd >= 0 && fd < fdOffset {
		return nil, errStdioFd
	}
	e, ok := v.files.get(fd)
	if !ok {
		return nil, filesystem.EBADF
	}
	return e, nil
}

var errStdioFd = errors.New("vfs: operation not supported on a stdio descriptor")

func (v *Vfs) Close(fd int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if fd >= 0 && fd < fdOffset {
		return nil // Closing stdio fds is a no-op.
	}
	e, err := v.fileAt(fd)
	if err != nil {
		return err
	}
	cerr := e.f.Close()
	v.files.free(fd)
	return cerr
}

func (v *Vfs) Read(fd int, buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if fd == 0 {
		b, err := v.stdio.Getchar()
		if err != nil {
			return 0, err
		}
		if len(buf) == 0 {
			return 0, nil
		}
		buf[0] = b
		return 1, nil
	}
	e, err := v.fileAt(fd)
	if err != nil {
		return 0, err
	}
	n, err := e.f.Read(buf)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

func (v *Vfs) Write(fd int, buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if fd == 1 || fd == 2 {
		for _, b := range buf {
			if err := v.stdio.Putchar(b); err != nil {
				return 0, err
			}
		}
		return len(buf), nil
	}
	e, err := v.fileAt(fd)
	if err != nil {
		return 0, err
	}
	return e.f.Write(buf)
}

func (v *Vfs) Seek(fd int, offset int64, whence filesystem.Whence) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, err := v.fileAt(fd)
	if err != nil {
		return 0, err
	}
	return e.f.Seek(offset, whence)
}

func (v *Vfs) Ftruncate(fd int, size int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, err := v.fileAt(fd)
	if err != nil {
		return err
	}
	return e.f.Truncate(size)
}

func (v *Vfs) Fsync(fd int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, err := v.fileAt(fd)
	if err != nil {
		return err
	}
	return e.f.Sync()
}

func (v *Vfs) Unlink(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, rel, err := v.resolve(path)
	if err != nil {
		return err
	}
	return m.fs.Remove(rel)
}

func (v *Vfs) Rename(oldpath, newpath string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	mo, relOld, err := v.resolve(oldpath)
	if err != nil {
		return err
	}
	mn, relNew, err := v.resolve(newpath)
	if err != nil {
		return err
	}
	if mo != mn {
		return errors.New("vfs: rename across mountpoints is not supported")
	}
	return mo.fs.Rename(relOld, relNew)
}

func (v *Vfs) Mkdir(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, rel, err := v.resolve(path)
	if err != nil {
		return err
	}
	return m.fs.Mkdir(rel)
}

func (v *Vfs) Rmdir(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, rel, err := v.resolve(path)
	if err != nil {
		return err
	}
	return m.fs.Rmdir(rel)
}

func (v *Vfs) Stat(path string) (filesystem.FileInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, rel, err := v.resolve(path)
	if err != nil {
		return filesystem.FileInfo{}, err
	}
	return m.fs.Stat(rel)
}

// Fstat stats the file underlying fd. FAT handles (those exposing
// StatSize) are stat'ed by their path through the mounted filesystem's own
// Stat, since a write-mode seek past end-of-file extends the FAT handle's
// own size. Other handles report their own size, which also covers data
// not yet committed to the volume.
func (v *Vfs) Fstat(fd int) (filesystem.FileInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, err := v.fileAt(fd)
	if err != nil {
		return filesystem.FileInfo{}, err
	}
	if _, ok := e.f.(interface{ StatSize() (int64, error) }); ok {
		return e.mp.fs.Stat(e.path)
	}
	size, err := e.f.Size()
	if err != nil {
		return filesystem.FileInfo{}, err
	}
	return filesystem.FileInfo{Name: pathpkg.Base(e.path), Size: size}, nil
}

func (v *Vfs) Opendir(path string) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, rel, err := v.resolve(path)
	if err != nil {
		return -1, err
	}
	d, err := m.fs.OpenDir(rel)
	if err != nil {
		return -1, err
	}
	dd := v.dirs.alloc(&dirEntry{d: d})
	return dd, nil
}

func (v *Vfs) Closedir(dd int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.dirs.get(dd)
	if !ok {
		return filesystem.EBADF
	}
	err := e.d.Close()
	v.dirs.free(dd)
	return err
}

func (v *Vfs) Readdir(dd int) (filesystem.DirEntry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.dirs.get(dd)
	if !ok {
		return filesystem.DirEntry{}, filesystem.EBADF
	}
	entry, err := e.d.Read()
	if errors.Is(err, io.EOF) {
		return filesystem.DirEntry{}, nil
	}
	return entry, err
}

// --- LoopbackFS / LoopbackFile, letting blockdevice.LoopbackDevice back
// its storage with a file opened through this very Vfs.

const (
	loopbackORDWR  = 0x2
	loopbackOCREAT = 0x40
)

// OpenFile satisfies blockdevice.LoopbackFS. flags uses the same bit
// values as the POSIX O_RDWR/O_CREAT constants, translated here since
// LoopbackFS takes plain int flags rather than filesystem.OpenFlag.
func (v *Vfs) OpenFile(path string, flags int) (blockdevice.LoopbackFile, error) {
	var of filesystem.OpenFlag
	if flags&loopbackORDWR != 0 {
		of |= filesystem.RDWR
	} else {
		of |= filesystem.WRONLY
	}
	if flags&loopbackOCREAT != 0 {
		of |= filesystem.CREAT
	}
	fd, err := v.Open(path, of)
	if err != nil {
		return nil, err
	}
	return &vfsLoopbackFile{v: v, fd: fd}, nil
}

type vfsLoopbackFile struct {
	v  *Vfs
	fd int
}

func (l *vfsLoopbackFile) ReadAt(p []byte, off int64) (int, error) {
	if _, err := l.v.Seek(l.fd, off, filesystem.SeekSet); err != nil {
		return 0, err
	}
	return l.v.Read(l.fd, p)
}

func (l *vfsLoopbackFile) WriteAt(p []byte, off int64) (int, error) {
	if _, err := l.v.Seek(l.fd, off, filesystem.SeekSet); err != nil {
		return 0, err
	}
	return l.v.Write(l.fd, p)
}

func (l *vfsLoopbackFile) Truncate(size int64) error {
	return l.v.Ftruncate(l.fd, size)
}

func (l *vfsLoopbackFile) Close() error {
	return l.v.Close(l.fd)
}

var (
	_ blockdevice.LoopbackFS   = (*Vfs)(nil)
	_ blockdevice.LoopbackFile = (*vfsLoopbackFile)(nil)
)
