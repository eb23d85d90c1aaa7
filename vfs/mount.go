package vfs

import (
	"errors"

	"github.com/picofs/vfs/filesystem"
)

var (
	ErrTooManyMounts = errors.New("vfs: too many mountpoints")
	ErrAlreadyMounted = errors.New("vfs: path already has a mounted filesystem")
)

// Mount mounts fs, backed by device, at path. path must not already host a
// mount. If format is true, device is formatted before mounting.
func (v *Vfs) Mount(path string, fs filesystem.Filesystem, device filesystem.BlockDevice, format bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mountLocked(path, fs, device, format)
}

func (v *Vfs) mountLocked(path string, fs filesystem.Filesystem, device filesystem.BlockDevice, format bool) error {
	path = normalizePath(path)
	for i := 0; i < v.nmounts; i++ {
		if v.mounts[i] != nil && v.mounts[i].path == path {
			return ErrAlreadyMounted
		}
	}
	slot := -1
	for i := 0; i < MaxMountpoints; i++ {
		if v.mounts[i] == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		return ErrTooManyMounts
	}
	if format {
		if err := fs.Format(device); err != nil {
			return err
		}
	}
	if err := fs.Mount(device, format); err != nil {
		return err
	}
	v.mounts[slot] = &mountpoint{path: path, fs: fs, device: device}
	if slot >= v.nmounts {
		v.nmounts = slot + 1
	}
	return nil
}

// Unmount detaches whatever filesystem is mounted at path.
func (v *Vfs) Unmount(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	path = normalizePath(path)
	for i := 0; i < v.nmounts; i++ {
		m := v.mounts[i]
		if m != nil && m.path == path {
			if err := m.fs.Unmount(); err != nil {
				return err
			}
			v.mounts[i] = nil
			return nil
		}
	}
	return filesystem.ErrNotMounted
}

// Reformat wipes and reformats the filesystem already mounted at path,
// reusing the mount table's own stored fs/device references instead of
// requiring the caller to re-supply them — the caller only ever has the
// path, the same way fs_reformat(path) does in the POSIX surface. The
// filesystem is unmounted before it is formatted. The mount-table slot is
// not cleared, so if Format or Mount then fails the slot still holds the
// path with its fs/device, but that filesystem is left unmounted.
func (v *Vfs) Reformat(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	path = normalizePath(path)
	slot := -1
	for i := 0; i < v.nmounts; i++ {
		if v.mounts[i] != nil && v.mounts[i].path == path {
			slot = i
			break
		}
	}
	if slot == -1 {
		return filesystem.ErrNotMounted
	}
	fs := v.mounts[slot].fs
	device := v.mounts[slot].device
	if err := fs.Unmount(); err != nil {
		return err
	}
	if err := fs.Format(device); err != nil {
		return err
	}
	if err := fs.Mount(device, true); err != nil {
		return err
	}
	v.mounts[slot] = &mountpoint{path: path, fs: fs, device: device}
	return nil
}

// Info reports the Filesystem.Name() mounted at path, for fs_info.
func (v *Vfs) Info(path string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, _, err := v.resolve(path)
	if err != nil {
		return "", err
	}
	return m.fs.Name(), nil
}
