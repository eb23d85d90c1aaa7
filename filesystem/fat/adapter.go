// Package fat adapts the FAT12/16/32 engine in ./engine to the uniform
// filesystem.Filesystem trait so it can be mounted by the vfs multiplexer
// alongside littlefs-style volumes.
package fat

import (
	"errors"
	"io"
	"time"

	"github.com/picofs/vfs/blockdevice"
	"github.com/picofs/vfs/filesystem"
	engine "github.com/picofs/vfs/filesystem/fat/engine"
)

// MaxVolumes is the size of the volume id space f_mount uses in the
// reference design. Nothing in this package reads it: FatAdapter keeps no
// volume-id table, each adapter owns its own engine.FS, and the number of
// adapters mounted at once is not limited.
const MaxVolumes = 8

// FatAdapter wraps one mounted engine.FS. Zero value is unmounted.
type FatAdapter struct {
	fsys      engine.FS
	device    *engineBlockDevice
	now       func() time.Time
	sectorSz  int
	clusterSz int
	mounted   bool
}

// New constructs an unmounted adapter. now supplies timestamps for new and
// modified directory entries; pass nil to reproduce the zero-timestamp
// behavior of the original C engine's missing get_fattime hook.
func New(now func() time.Time) *FatAdapter {
	return &FatAdapter{now: now}
}

// engineBlockDevice translates the byte-addressed blockdevice.BlockDevice
// contract into the engine's block-indexed ReadBlocks/WriteBlocks/
// EraseBlocks, so FatAdapter never needs its own copy of a block device
// abstraction. filesystem.BlockDevice is intentionally too narrow (Name()
// only) to express this, so Mount/Format type-assert to the concrete
// blockdevice.BlockDevice interface.
type engineBlockDevice struct {
	bd        blockdevice.BlockDevice
	blockSize int64
}

func (e *engineBlockDevice) ReadBlocks(dst []byte, startBlock int64) (int, error) {
	addr := startBlock * e.blockSize
	if err := e.bd.Read(dst, addr, int64(len(dst))); err != nil {
		return 0, err
	}
	return len(dst), nil
}

func (e *engineBlockDevice) WriteBlocks(data []byte, startBlock int64) (int, error) {
	addr := startBlock * e.blockSize
	if err := e.bd.Program(data, addr, int64(len(data))); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (e *engineBlockDevice) EraseBlocks(startBlock, numBlocks int64) error {
	addr := startBlock * e.blockSize
	return e.bd.Erase(addr, numBlocks*e.blockSize)
}

// minFATBlockSize is the smallest logical sector the FAT engine can lay
// a boot sector down on (see engine.minFATSectorSize). Devices with a
// finer program granularity, like on-chip flash's 256-byte pages, still
// work: a 512-byte-aligned write just decomposes into whole pages, so
// the engine's logical sector is rounded up instead of inherited as-is.
const minFATBlockSize = 512

func asEngineDevice(device filesystem.BlockDevice) (*engineBlockDevice, blockdevice.BlockDevice, error) {
	bd, ok := device.(blockdevice.BlockDevice)
	if !ok {
		return nil, nil, errors.New("fat: device does not implement blockdevice.BlockDevice")
	}
	blockSize := bd.ProgramSize()
	if blockSize <= 0 {
		blockSize = bd.ReadSize()
	}
	if blockSize < minFATBlockSize {
		if minFATBlockSize%blockSize != 0 {
			return nil, nil, errors.New("fat: device program granularity does not evenly divide the minimum FAT sector size")
		}
		blockSize = minFATBlockSize
	}
	return &engineBlockDevice{bd: bd, blockSize: blockSize}, bd, nil
}

// Mount attaches device and parses its boot sector. pendingFormat skips
// nothing here: the engine always validates the boot sector it finds,
// Format below is what callers run first when pendingFormat is true.
func (a *FatAdapter) Mount(device filesystem.BlockDevice, pendingFormat bool) error {
	if a.mounted {
		return filesystem.ErrAlreadyMounted
	}
	ebd, bd, err := asEngineDevice(device)
	if err != nil {
		return err
	}
	if bd.ProgramSize() > 1<<16 {
		return errors.New("fat: sector size exceeds uint16 range")
	}
	a.fsys.SetClock(a.now)
	if err := a.fsys.Mount(ebd, int(ebd.blockSize), engine.ModeRW); err != nil {
		return remapErr(err)
	}
	a.device = ebd
	a.sectorSz = int(ebd.blockSize)
	a.mounted = true
	return nil
}

// Unmount detaches the device. The engine has no explicit teardown step:
// dropping the device reference is enough since every open handle already
// holds its own id generation stamp that the next Mount invalidates.
func (a *FatAdapter) Unmount() error {
	if !a.mounted {
		return filesystem.ErrNotMounted
	}
	a.device = nil
	a.mounted = false
	return nil
}

// Format writes a fresh FAT volume to device, sized to the device's full
// capacity. The cluster size and FAT12/16/32 subtype are auto-selected
// from the device's capacity, the same way a real card's f_mkfs would
// pick a layout that a plain mount can classify back correctly: small
// embedded volumes land on FAT12/16, and only large ones reach FAT32.
func (a *FatAdapter) Format(device filesystem.BlockDevice) error {
	ebd, bd, err := asEngineDevice(device)
	if err != nil {
		return err
	}
	blockSize := int(ebd.blockSize)
	sizeInBlocks := int(bd.Size() / ebd.blockSize)
	var f engine.Formatter
	return f.Format(ebd, blockSize, sizeInBlocks, engine.FormatConfig{})
}

func (a *FatAdapter) Remove(path string) error {
	if err := a.fsys.Remove(path); err != nil {
		return remapErr(err)
	}
	return nil
}

func (a *FatAdapter) Rename(oldpath, newpath string) error {
	if err := a.fsys.Rename(oldpath, newpath); err != nil {
		return remapErr(err)
	}
	return nil
}

func (a *FatAdapter) Mkdir(path string) error {
	if err := a.fsys.Mkdir(path); err != nil {
		return remapErr(err)
	}
	return nil
}

// Rmdir removes an empty directory. The engine's f_unlink already refuses
// to remove a non-empty directory or a plain file passed here; Stat first
// rejects a path that does not resolve to a directory at all, matching
// POSIX rmdir(2) semantics more closely than a bare Remove would.
func (a *FatAdapter) Rmdir(path string) error {
	var fno engine.FileInfo
	if err := a.fsys.Stat(path, &fno); err != nil {
		return remapErr(err)
	}
	if !fno.IsDir() {
		return filesystem.ENOTDIR
	}
	if err := a.fsys.Remove(path); err != nil {
		if errors.Is(err, engine.ErrDenied) {
			return filesystem.ENOTEMPTY
		}
		return remapErr(err)
	}
	return nil
}

func (a *FatAdapter) Stat(path string) (filesystem.FileInfo, error) {
	var fno engine.FileInfo
	if err := a.fsys.Stat(path, &fno); err != nil {
		return filesystem.FileInfo{}, remapErr(err)
	}
	return filesystem.FileInfo{
		Name:    fno.Name(),
		Size:    fno.Size(),
		IsDir:   fno.IsDir(),
		ModTime: fno.ModTime(),
	}, nil
}

func (a *FatAdapter) OpenFile(path string, flags filesystem.OpenFlag) (filesystem.File, error) {
	mode := translateOpenFlag(flags)
	fp := &engine.File{}
	if err := a.fsys.OpenFile(fp, path, mode); err != nil {
		return nil, remapErr(err)
	}
	f := &fatFile{fp: fp, path: path, adapter: a}
	if flags&filesystem.APPEND != 0 {
		if err := f.fp.Seek(f.fp.Size()); err != nil {
			return nil, remapErr(err)
		}
	}
	return f, nil
}

func (a *FatAdapter) OpenDir(path string) (filesystem.Dir, error) {
	dp := &engine.Dir{}
	if err := a.fsys.OpenDir(dp, path); err != nil {
		return nil, remapErr(err)
	}
	return &fatDir{dp: dp}, nil
}

func (a *FatAdapter) Name() string { return "fat" }

func translateOpenFlag(flags filesystem.OpenFlag) engine.Mode {
	var mode engine.Mode
	switch {
	case flags&filesystem.RDWR != 0:
		mode = engine.ModeRW
	case flags&filesystem.WRONLY != 0:
		mode = engine.ModeWrite
	default:
		mode = engine.ModeRead
	}
	switch {
	case flags&filesystem.CREAT != 0 && flags&filesystem.EXCL != 0:
		mode |= engine.ModeCreateNew
	case flags&filesystem.TRUNC != 0:
		mode |= engine.ModeCreateAlways
	case flags&filesystem.CREAT != 0:
		mode |= engine.ModeOpenAlways
	default:
		mode |= engine.ModeOpenExisting
	}
	return mode
}

// fatFile adapts engine.File to filesystem.File. The engine's Truncate
// always truncates at the current pointer (no target-size argument), so
// Truncate here saves and restores the pointer around a seek; a pointer
// that was past the new end is left at the new end instead.
type fatFile struct {
	fp      *engine.File
	path    string
	adapter *FatAdapter
}

// StatSize re-resolves the file's path through Stat rather than trusting a
// SEEK_END seek's resulting pointer: the engine's f_lseek silently extends
// a write-mode handle's size when seeking past EOF. vfs.Fstat recognizes FAT
// handles by this method and stats their path the same way, so mtime and
// size always come from the directory entry.
func (f *fatFile) StatSize() (int64, error) {
	fi, err := f.adapter.Stat(f.path)
	if err != nil {
		return 0, err
	}
	return fi.Size, nil
}

func (f *fatFile) Read(buf []byte) (int, error) {
	n, err := f.fp.Read(buf)
	if err != nil && err != io.EOF {
		return n, remapErr(err)
	}
	return n, err
}

func (f *fatFile) Write(buf []byte) (int, error) {
	n, err := f.fp.Write(buf)
	if err != nil {
		return n, remapErr(err)
	}
	return n, nil
}

func (f *fatFile) Sync() error {
	if err := f.fp.Sync(); err != nil {
		return remapErr(err)
	}
	return nil
}

func (f *fatFile) Seek(offset int64, whence filesystem.Whence) (int64, error) {
	var target int64
	switch whence {
	case filesystem.SeekSet:
		target = offset
	case filesystem.SeekCur:
		target = f.fp.Tell() + offset
	case filesystem.SeekEnd:
		target = f.fp.Size() + offset
	default:
		return 0, filesystem.EINVAL
	}
	if err := f.fp.Seek(target); err != nil {
		return 0, remapErr(err)
	}
	return f.fp.Tell(), nil
}

func (f *fatFile) Tell() (int64, error) { return f.fp.Tell(), nil }
func (f *fatFile) Size() (int64, error) { return f.fp.Size(), nil }

func (f *fatFile) Truncate(size int64) error {
	cur := f.fp.Tell()
	if err := f.fp.Seek(size); err != nil {
		return remapErr(err)
	}
	if err := f.fp.Truncate(); err != nil {
		return remapErr(err)
	}
	if cur > size {
		return nil // A write-mode seek back past the new end would extend the file again.
	}
	if err := f.fp.Seek(cur); err != nil {
		return remapErr(err)
	}
	return nil
}

func (f *fatFile) Close() error {
	if err := f.fp.Close(); err != nil {
		return remapErr(err)
	}
	return nil
}

// fatDir adapts engine.Dir to filesystem.Dir. ForEachFile is push-style in
// the engine; the first Read collects every entry in one ForEachFile pass
// and later Reads hand them out one at a time.
type fatDir struct {
	dp      *engine.Dir
	entries []filesystem.DirEntry
	pos     int
	loaded  bool
}

func (d *fatDir) load() error {
	if d.loaded {
		return nil
	}
	d.loaded = true
	return d.dp.ForEachFile(func(fi *engine.FileInfo) error {
		name := fi.Name()
		if name == "" {
			return nil
		}
		d.entries = append(d.entries, filesystem.DirEntry{Name: name, IsDir: fi.IsDir()})
		return nil
	})
}

func (d *fatDir) Read() (filesystem.DirEntry, error) {
	if err := d.load(); err != nil {
		return filesystem.DirEntry{}, remapErr(err)
	}
	if d.pos >= len(d.entries) {
		return filesystem.DirEntry{}, io.EOF
	}
	e := d.entries[d.pos]
	d.pos++
	return e, nil
}

func (d *fatDir) Close() error { return nil }
