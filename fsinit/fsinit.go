// Package fsinit collects example wirings of block devices to mountpoints,
// the Go analogue of the application-provided fs_init() every board in the
// source tree supplies (examples/fs_inits/*.c, examples/default_fs/*.c).
// None of this is part of the VFS core; it exists so a caller has a
// concrete starting point instead of hand-assembling Mount calls.
package fsinit

import (
	"log/slog"

	"github.com/picofs/vfs/vfs"
	"github.com/picofs/vfs/blockdevice"
	"github.com/picofs/vfs/filesystem"
	"github.com/picofs/vfs/filesystem/fat"
	"github.com/picofs/vfs/filesystem/littlefs"
)

// FlashReserveSize is the amount of on-chip flash this package's layouts
// set aside for the application image before the filesystem window
// begins, mirroring the source's PICO_FS_DEFAULT_SIZE default.
const FlashReserveSize = 1024 * 1024

const (
	loopbackImageSize  = 640 * 1024
	loopbackBlockSize  = 512
	heapStorageSize    = 128 * 1024
	littleFsBlockCycle = 500
	littleFsLookahead  = 16
)

// mountOrFormat mounts fs at path on device, formatting first if the mount
// fails the way a blank or corrupt volume would — the same fallback the
// source's fs_init functions perform inline after every fs_mount call.
func mountOrFormat(log *slog.Logger, v *vfs.Vfs, path string, fs filesystem.Filesystem, device filesystem.BlockDevice) error {
	if err := v.Mount(path, fs, device, false); err == nil {
		return nil
	}
	if log != nil {
		log.Info("formatting unmountable volume", slog.String("path", path))
	}
	if err := fs.Format(device); err != nil {
		return err
	}
	return v.Mount(path, fs, device, false)
}

// InitFatOnFlash mounts a FAT volume on the remaining on-chip flash at "/",
// grounded on examples/fs_inits/fs_init_fat.c.
func InitFatOnFlash(log *slog.Logger, v *vfs.Vfs) error {
	dev, err := blockdevice.NewFlashDevice(FlashReserveSize, 0)
	if err != nil {
		return err
	}
	if err := dev.Init(); err != nil {
		return err
	}
	return mountOrFormat(log, v, "/", fat.New(nil), dev)
}

// InitHeapWithFlashBackup mounts FAT on a RAM-backed device at "/" and
// littlefs on the remaining on-chip flash at "/flash", grounded on
// examples/fs_inits/fs_init_heap.c.
func InitHeapWithFlashBackup(log *slog.Logger, v *vfs.Vfs) error {
	heap := blockdevice.NewHeapDevice(heapStorageSize, 512, 4096)
	if err := heap.Init(); err != nil {
		return err
	}
	if err := mountOrFormat(log, v, "/", fat.New(nil), heap); err != nil {
		return err
	}

	flash, err := blockdevice.NewFlashDevice(FlashReserveSize, 0)
	if err != nil {
		return err
	}
	if err := flash.Init(); err != nil {
		return err
	}
	return mountOrFormat(log, v, "/flash", littlefs.New(littleFsBlockCycle, littleFsLookahead), flash)
}

// InitLoopbackOnFlash mounts littlefs on the remaining on-chip flash at
// "/flash", then a FAT volume inside a loopback image file living on that
// littlefs volume, mounted at "/" — the reentrant-VFS scenario from
// spec.md §8 scenario 5, grounded on examples/fs_inits/fs_init_loopback.c.
func InitLoopbackOnFlash(log *slog.Logger, v *vfs.Vfs) error {
	flash, err := blockdevice.NewFlashDevice(FlashReserveSize, 0)
	if err != nil {
		return err
	}
	if err := flash.Init(); err != nil {
		return err
	}
	if err := mountOrFormat(log, v, "/flash", littlefs.New(littleFsBlockCycle, littleFsLookahead), flash); err != nil {
		return err
	}

	loopback := blockdevice.NewLoopbackDevice(v, "/flash/disk-image.dmg", loopbackImageSize, loopbackBlockSize)
	return mountOrFormat(log, v, "/", fat.New(nil), loopback)
}
