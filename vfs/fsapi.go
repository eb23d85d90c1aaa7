package vfs

import (
	"github.com/picofs/vfs/filesystem"
)

// codeOf converts an error from the POSIX surface into a raw negative
// internal code, the way the fs_* surface reports failures directly
// instead of through a Go error value: fs_strerror and callers comparing
// against specific codes don't need to unwrap anything.
func codeOf(err error) filesystem.Code {
	if err == nil {
		return 0
	}
	if c, ok := err.(filesystem.Code); ok {
		return c
	}
	return filesystem.EIO
}

// fs_open mirrors Open but returns (fd, code) instead of (fd, error): fd is
// negative (the raw code) on failure.
func (v *Vfs) fs_open(path string, flags filesystem.OpenFlag) int {
	fd, err := v.Open(path, flags)
	if err != nil {
		return int(codeOf(err))
	}
	return fd
}

func (v *Vfs) fs_close(fd int) int { return int(codeOf(v.Close(fd))) }

func (v *Vfs) fs_read(fd int, buf []byte) int {
	n, err := v.Read(fd, buf)
	if err != nil {
		return int(codeOf(err))
	}
	return n
}

func (v *Vfs) fs_write(fd int, buf []byte) int {
	n, err := v.Write(fd, buf)
	if err != nil {
		return int(codeOf(err))
	}
	return n
}

func (v *Vfs) fs_lseek(fd int, offset int64, whence filesystem.Whence) int64 {
	n, err := v.Seek(fd, offset, whence)
	if err != nil {
		return int64(codeOf(err))
	}
	return n
}

func (v *Vfs) fs_ftruncate(fd int, size int64) int { return int(codeOf(v.Ftruncate(fd, size))) }
func (v *Vfs) fs_unlink(path string) int            { return int(codeOf(v.Unlink(path))) }
func (v *Vfs) fs_rename(oldpath, newpath string) int {
	return int(codeOf(v.Rename(oldpath, newpath)))
}
func (v *Vfs) fs_mkdir(path string) int { return int(codeOf(v.Mkdir(path))) }
func (v *Vfs) fs_rmdir(path string) int { return int(codeOf(v.Rmdir(path))) }

func (v *Vfs) fs_stat(path string) (filesystem.FileInfo, int) {
	fi, err := v.Stat(path)
	return fi, int(codeOf(err))
}

func (v *Vfs) fs_fstat(fd int) (filesystem.FileInfo, int) {
	fi, err := v.Fstat(fd)
	return fi, int(codeOf(err))
}

func (v *Vfs) fs_opendir(path string) int {
	dd, err := v.Opendir(path)
	if err != nil {
		return int(codeOf(err))
	}
	return dd
}

func (v *Vfs) fs_closedir(dd int) int { return int(codeOf(v.Closedir(dd))) }

func (v *Vfs) fs_readdir(dd int) (filesystem.DirEntry, int) {
	e, err := v.Readdir(dd)
	return e, int(codeOf(err))
}

func (v *Vfs) fs_format(fs filesystem.Filesystem, device filesystem.BlockDevice) int {
	return int(codeOf(fs.Format(device)))
}

func (v *Vfs) fs_mount(path string, fs filesystem.Filesystem, device filesystem.BlockDevice) int {
	return int(codeOf(v.Mount(path, fs, device, false)))
}

func (v *Vfs) fs_unmount(path string) int { return int(codeOf(v.Unmount(path))) }

func (v *Vfs) fs_reformat(path string) int {
	return int(codeOf(v.Reformat(path)))
}

func (v *Vfs) fs_info(path string) (string, int) {
	name, err := v.Info(path)
	return name, int(codeOf(err))
}
