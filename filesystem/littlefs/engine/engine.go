// Package littlefs implements a small, from-scratch log-structured,
// copy-on-write filesystem engine in the spirit of ARM's littlefs: a
// superblock, directories as copy-on-write metadata pairs, a lookahead
// block allocator and CTZ skip-list block chains for file data. Small
// files are not stored inline: every non-empty file gets at least one
// chain block, and an empty file has no block at all. No pack example ships a pure-Go littlefs, so
// this engine is authored from first principles rather than ported (see
// DESIGN.md).
package littlefs

import (
	"encoding/binary"
	"errors"
)

// BlockDevice is the narrow block-indexed contract the engine needs,
// mirroring the FAT engine's own BlockDevice trait so both engines present
// the same shape to their adapters.
type BlockDevice interface {
	ReadBlocks(dst []byte, startBlock int64) (int, error)
	WriteBlocks(data []byte, startBlock int64) (int, error)
	EraseBlocks(startBlock, numBlocks int64) error
}

// Result is this engine's typed error, matching the FAT engine's
// fileResult idiom (a small integer implementing error) rather than
// pkg/errors-style wrapping.
type Result int

const (
	ErrOK Result = iota
	ErrIO
	ErrCorrupt
	ErrNoEnt
	ErrExist
	ErrNotDir
	ErrIsDir
	ErrNotEmpty
	ErrInval
	ErrNoSpace
	ErrNameTooLong
	ErrBadFd
)

func (r Result) Error() string {
	switch r {
	case ErrOK:
		return "ok"
	case ErrIO:
		return "littlefs: i/o error"
	case ErrCorrupt:
		return "littlefs: corrupt metadata"
	case ErrNoEnt:
		return "littlefs: no such file or directory"
	case ErrExist:
		return "littlefs: file exists"
	case ErrNotDir:
		return "littlefs: not a directory"
	case ErrIsDir:
		return "littlefs: is a directory"
	case ErrNotEmpty:
		return "littlefs: directory not empty"
	case ErrInval:
		return "littlefs: invalid argument"
	case ErrNoSpace:
		return "littlefs: no space left on device"
	case ErrNameTooLong:
		return "littlefs: name too long"
	case ErrBadFd:
		return "littlefs: bad file descriptor"
	default:
		return "littlefs: unknown error"
	}
}

const (
	nameMax     = 255
	superMagic  = 0x2E736366 // ".scf" little endian, arbitrary but stable.
	reservedSB0 = 0          // Superblock primary.
	reservedSB1 = 1          // Superblock backup.
)

// Config holds the wear-spreading and allocator lookahead knobs.
type Config struct {
	BlockCycles   int
	LookaheadSize uint32
}

// FS is one mounted littlefs-style volume. The zero value is unmounted.
type FS struct {
	device    BlockDevice
	blockSize uint32
	blockCnt  uint32
	cfg       Config

	rootA, rootB uint32
	rev          uint32

	alloc *allocator
}

var errNotMounted = errors.New("littlefs: not mounted")

// Format writes a fresh, empty volume spanning the whole device.
func Format(device BlockDevice, blockSize uint32, blockCount uint32, cfg Config) error {
	if blockCount < 4 {
		return ErrNoSpace
	}
	fs := &FS{device: device, blockSize: blockSize, blockCnt: blockCount, cfg: cfg}

	rootA, rootB := uint32(2), uint32(3)
	if err := fs.writeDir(rootA, 1, nil); err != nil {
		return err
	}
	if err := fs.writeDir(rootB, 1, nil); err != nil {
		return err
	}
	if err := fs.writeSuperblock(reservedSB0, 1, blockSize, blockCount, rootA, rootB); err != nil {
		return err
	}
	if err := fs.writeSuperblock(reservedSB1, 1, blockSize, blockCount, rootA, rootB); err != nil {
		return err
	}
	return nil
}

// Mount reads back the superblock (preferring whichever of the two copies
// has the newer revision and a valid magic number) and the root directory.
func (fs *FS) Mount(device BlockDevice, blockSize uint32, blockCount uint32, cfg Config) error {
	fs.device = device
	fs.blockSize = blockSize
	fs.blockCnt = blockCount
	fs.cfg = cfg

	sb0, err0 := fs.readSuperblock(reservedSB0)
	sb1, err1 := fs.readSuperblock(reservedSB1)
	var sb superblock
	switch {
	case err0 == nil && (err1 != nil || sb0.rev >= sb1.rev):
		sb = sb0
	case err1 == nil:
		sb = sb1
	default:
		return ErrCorrupt
	}
	if sb.magic != superMagic || sb.blockSize != blockSize {
		return ErrCorrupt
	}
	fs.rootA, fs.rootB, fs.rev = sb.rootA, sb.rootB, sb.rev
	fs.alloc = newAllocator(blockCount, cfg.LookaheadSize)
	fs.alloc.markUsed(reservedSB0)
	fs.alloc.markUsed(reservedSB1)
	return fs.scanUsed(fs.rootA, fs.rootB)
}

// scanUsed walks the whole directory tree marking every block referenced
// (metadata pairs and file chains) as used in the allocator, since this
// engine rebuilds its free-block view from the tree at mount time rather
// than persisting a separate free list.
func (fs *FS) scanUsed(pairA, pairB uint32) error {
	fs.alloc.markUsed(pairA)
	fs.alloc.markUsed(pairB)
	entries, _, err := fs.readDir(pairA, pairB)
	if err != nil {
		return err
	}
	for _, e := range entries {
		switch e.etype {
		case entryDir:
			if err := fs.scanUsed(e.ptrA, e.ptrB); err != nil {
				return err
			}
		case entryFile:
			if e.ptrA != invalidBlock {
				blocks, err := fs.chainBlocks(e.ptrA, e.ptrB)
				if err != nil {
					return err
				}
				for _, b := range blocks {
					fs.alloc.markUsed(b)
				}
			}
		}
	}
	return nil
}

func (fs *FS) blockBuf() []byte { return make([]byte, fs.blockSize) }

func (fs *FS) readBlock(block uint32) ([]byte, error) {
	buf := fs.blockBuf()
	if _, err := fs.device.ReadBlocks(buf, int64(block)); err != nil {
		return nil, ErrIO
	}
	return buf, nil
}

func (fs *FS) writeBlock(block uint32, data []byte) error {
	if err := fs.device.EraseBlocks(int64(block), 1); err != nil {
		return ErrIO
	}
	if _, err := fs.device.WriteBlocks(data, int64(block)); err != nil {
		return ErrIO
	}
	return nil
}

// --- superblock ---

type superblock struct {
	magic     uint32
	rev       uint32
	blockSize uint32
	blockCnt  uint32
	rootA     uint32
	rootB     uint32
}

func (fs *FS) writeSuperblock(block, rev, blockSize, blockCount, rootA, rootB uint32) error {
	buf := fs.blockBuf()
	binary.LittleEndian.PutUint32(buf[0:], superMagic)
	binary.LittleEndian.PutUint32(buf[4:], rev)
	binary.LittleEndian.PutUint32(buf[8:], blockSize)
	binary.LittleEndian.PutUint32(buf[12:], blockCount)
	binary.LittleEndian.PutUint32(buf[16:], rootA)
	binary.LittleEndian.PutUint32(buf[20:], rootB)
	return fs.writeBlock(block, buf)
}

func (fs *FS) readSuperblock(block uint32) (superblock, error) {
	buf, err := fs.readBlock(block)
	if err != nil {
		return superblock{}, err
	}
	sb := superblock{
		magic:     binary.LittleEndian.Uint32(buf[0:]),
		rev:       binary.LittleEndian.Uint32(buf[4:]),
		blockSize: binary.LittleEndian.Uint32(buf[8:]),
		blockCnt:  binary.LittleEndian.Uint32(buf[12:]),
		rootA:     binary.LittleEndian.Uint32(buf[16:]),
		rootB:     binary.LittleEndian.Uint32(buf[20:]),
	}
	if sb.magic != superMagic {
		return sb, ErrCorrupt
	}
	return sb, nil
}
