package fat

import (
	"encoding/binary"
	"errors"
)

type Format uint8

const (
	// _FormatUnknown/0 selects auto-detection (see autoSelectFAT): FAT16
	// if any candidate cluster size fits, else FAT12, falling back to FAT32
	// only once the volume is big enough that FAT16 can no longer address
	// it (after f_mkfs's own FM_ANY behavior).
	_FormatUnknown Format = iota
	FormatFAT12
	FormatFAT16
	FormatFAT32
	FormatExFAT
)

type Formatter struct {
	window     []byte
	windowaddr lba
	// block device is temporarily used by the formatter to read/write blocks.
	bd BlockDevice
}

type FormatConfig struct {
	Label string
	// ClusterSize is the size of a FAT cluster in blocks. 0 auto-selects
	// a cluster size that makes the volume's cluster count land within
	// the chosen format's addressable range.
	ClusterSize int
	// Format selects the FAT format to use. 0 auto-selects FAT12, FAT16
	// or FAT32 based on volume size, same as init_fat would classify it.
	Format Format
	// Number of reserved blocks for FAT tables. Either 1 or 2. 0 defaults to 2.
	// NumberOfFATs uint8
}

// minFATSectorSize is the minimum sector size a FAT volume can be built
// on: every boot sector layout (FAT12/16/32) writes its 0xAA55 signature
// at byte offset 510, which requires a full 512-byte window regardless
// of FAT variant.
const minFATSectorSize = 512

func (f *Formatter) Format(bd BlockDevice, blocksize, fsSizeInBlocks int, cfg FormatConfig) error {
	if blocksize < minFATSectorSize || fsSizeInBlocks <= 32 || bd == nil {
		return errors.New("invalid Format argument")
	}
	if cfg.Format == _FormatUnknown {
		fmtType, au, err := autoSelectFAT(uint32(fsSizeInBlocks), uint32(blocksize))
		if err != nil {
			return err
		}
		cfg.Format = fmtType
		if cfg.ClusterSize <= 0 {
			cfg.ClusterSize = int(au)
		}
	}
	if len(f.window) < blocksize {
		f.window = make([]byte, blocksize)
	}
	if cfg.Label == "" {
		cfg.Label = "tinygo.unnamed"
	}
	f.windowaddr = ^lba(0)
	f.bd = bd

	switch cfg.Format {
	case FormatFAT12, FormatFAT16, FormatFAT32:
		return f.formatFAT(bd, blocksize, fsSizeInBlocks, cfg)
	case FormatExFAT:
		return frUnsupported
	default:
		return frUnsupported
	}
}

// fatLayout describes the reserved-area and root-directory shape that
// differs between the FAT32 cluster-chain root and the FAT12/16 fixed
// root directory region.
type fatLayout struct {
	rsvd           uint32 // Reserved sectors before the first FAT copy.
	rootDirSectors uint32 // Fixed-size root directory, 0 for FAT32.
	entryBits      int    // FAT entry width: 12, 16 or 32.
}

func layoutFor(fmtType Format) fatLayout {
	switch fmtType {
	case FormatFAT32:
		return fatLayout{rsvd: 32, rootDirSectors: 0, entryBits: 32}
	case FormatFAT16:
		return fatLayout{rsvd: 1, rootDirSectors: 4, entryBits: 16}
	default: // FormatFAT12
		return fatLayout{rsvd: 1, rootDirSectors: 4, entryBits: 12}
	}
}

// neededFATBytes mirrors init_fat's neededSizeOfFAT computation so a
// formatted volume's FAT size agrees with what mount will expect to see.
func neededFATBytes(nFatEnt uint32, entryBits int) uint32 {
	switch entryBits {
	case 12:
		return nFatEnt*3/2 + nFatEnt&1
	case 16:
		return nFatEnt * 2
	default:
		return nFatEnt * 4
	}
}

// solveFATGeometry finds the cluster count and per-copy FAT size that
// are self-consistent for a volume of tot sectors, the given layout and
// cluster size au, following the same non-application-sector accounting
// as init_fat (reserved + nFAT*fatSize + fixed root directory).
func solveFATGeometry(tot uint32, layout fatLayout, au, ss uint32, nFAT int) (clusters, fatSize uint32, err error) {
	if au == 0 || au&(au-1) != 0 {
		return 0, 0, errors.New("cluster size must be a power of two")
	}
	fatSize = 1
	for {
		nonApp := layout.rsvd + uint32(nFAT)*fatSize + layout.rootDirSectors
		if tot <= nonApp {
			return 0, 0, errors.New("volume too small for requested cluster size")
		}
		nc := (tot - nonApp) / au
		if nc == 0 {
			return 0, 0, errors.New("volume too small for requested cluster size")
		}
		nfs := (neededFATBytes(nc+2, layout.entryBits) + ss - 1) / ss
		if nfs == fatSize {
			return nc, fatSize, nil
		}
		fatSize = nfs
	}
}

// inClusterBand reports whether clusters falls within the range init_fat
// would classify as fmtType, so a format choice round-trips through mount.
func inClusterBand(fmtType Format, clusters uint32) bool {
	switch fmtType {
	case FormatFAT32:
		return clusters > clustMaxFAT16 && clusters <= clustMaxFAT32
	case FormatFAT16:
		return clusters > clustMaxFAT12 && clusters <= clustMaxFAT16
	default: // FormatFAT12
		return clusters >= 1 && clusters <= clustMaxFAT12
	}
}

// autoSelectFAT tries FAT16, then FAT12, then FAT32, and for each the
// cluster sizes 8, 4, 2, 1, 16, 32, 64, 128 sectors in that order, and
// returns the first pair whose cluster count lands in that variant's
// init_fat band. Small embedded volumes land on FAT12/16; with 512-byte
// sectors FAT16 covers volumes up to roughly 4 GiB (128-sector clusters),
// and only larger ones reach FAT32.
func autoSelectFAT(tot, ss uint32) (Format, uint32, error) {
	candidates := []Format{FormatFAT16, FormatFAT12, FormatFAT32}
	aus := []uint32{8, 4, 2, 1, 16, 32, 64, 128}
	for _, fmtType := range candidates {
		layout := layoutFor(fmtType)
		for _, au := range aus {
			clusters, _, err := solveFATGeometry(tot, layout, au, ss, 2)
			if err != nil {
				continue
			}
			if inClusterBand(fmtType, clusters) {
				return fmtType, au, nil
			}
		}
	}
	return 0, 0, errors.New("volume too small to format as FAT")
}

// formatFAT lays down a minimal single-partition FAT12/16/32 volume: a
// boot sector (FAT32 also gets its backup + FSInfo + backup), nFAT
// zeroed FAT copies (save for the two reserved + media-descriptor
// entries) and a root directory — a cluster chain for FAT32, a
// fixed-size area following the FAT copies for FAT12/16 — matching the
// layout init_fat expects to parse back.
func (f *Formatter) formatFAT(bd BlockDevice, blocksize, fsSizeInBlocks int, cfg FormatConfig) error {
	const nFAT = 2
	ss := blocksize
	au := cfg.ClusterSize
	if au <= 0 {
		au = 8 // 8 sectors/cluster default, matches common 4KiB-cluster/512B-sector media.
	}
	if au&(au-1) != 0 {
		return errors.New("cluster size must be a power of two")
	}

	layout := layoutFor(cfg.Format)
	tot := uint32(fsSizeInBlocks)
	clusters, fatSize, err := solveFATGeometry(tot, layout, uint32(au), uint32(ss), nFAT)
	if err != nil {
		return err
	}
	if !inClusterBand(cfg.Format, clusters) {
		return errors.New("cluster count does not match requested FAT format, adjust cluster size")
	}

	window := make([]byte, ss)
	writeSector := func(addr lba, fn func([]byte)) error {
		for i := range window {
			window[i] = 0
		}
		fn(window)
		_, err := bd.WriteBlocks(window, int64(addr))
		return err
	}

	isFAT32 := cfg.Format == FormatFAT32
	bootSector := func(w []byte) {
		w[0], w[1], w[2] = 0xEB, 0x58, 0x90
		copy(w[3:11], "MSDOS5.0")
		binary.LittleEndian.PutUint16(w[bpbBytsPerSec:], uint16(ss))
		w[bpbSecPerClus] = byte(au)
		binary.LittleEndian.PutUint16(w[bpbRsvdSecCnt:], uint16(layout.rsvd))
		w[bpbNumFATs] = nFAT
		w[bpbMedia] = 0xF8 // Fixed disk.
		binary.LittleEndian.PutUint16(w[bs55AA:], 0xAA55)

		rootEntries := layout.rootDirSectors * uint32(ss) / sizeDirEntry
		if isFAT32 {
			binary.LittleEndian.PutUint16(w[bpbRootEntCnt:], 0) // FAT32: must be 0.
			binary.LittleEndian.PutUint16(w[bpbTotSec16:], 0)
			binary.LittleEndian.PutUint16(w[bpbFATSz16:], 0)
			binary.LittleEndian.PutUint32(w[bpbTotSec32:], tot)
			binary.LittleEndian.PutUint32(w[bpbFATSz32:], fatSize)
			binary.LittleEndian.PutUint32(w[bpbRootClus32:], 2) // Root directory is cluster 2.
			binary.LittleEndian.PutUint16(w[bpbFSInfo32:], 1)
			binary.LittleEndian.PutUint16(w[bpbBkBootSec32:], 6)
			w[bsBootSig32] = 0x29
			copy(w[71:82], "NO NAME    ")
			copy(w[82:90], "FAT32   ")
			return
		}
		binary.LittleEndian.PutUint16(w[bpbRootEntCnt:], uint16(rootEntries))
		if tot <= 0xFFFF {
			binary.LittleEndian.PutUint16(w[bpbTotSec16:], uint16(tot))
			binary.LittleEndian.PutUint32(w[bpbTotSec32:], 0)
		} else {
			binary.LittleEndian.PutUint16(w[bpbTotSec16:], 0)
			binary.LittleEndian.PutUint32(w[bpbTotSec32:], tot)
		}
		binary.LittleEndian.PutUint16(w[bpbFATSz16:], uint16(fatSize))
		w[bsBootSig] = 0x29
		copy(w[bsVolLab:bsVolLab+11], "NO NAME    ")
		if cfg.Format == FormatFAT12 {
			copy(w[bsFilSysType:bsFilSysType+8], "FAT12   ")
		} else {
			copy(w[bsFilSysType:bsFilSysType+8], "FAT16   ")
		}
	}
	fsInfoSector := func(w []byte) {
		binary.LittleEndian.PutUint32(w[fsiLeadSig:], 0x41615252)
		binary.LittleEndian.PutUint32(w[fsiStrucSig:], 0x61417272)
		binary.LittleEndian.PutUint32(w[fsiFree_Count:], clusters-1) // Root directory takes cluster 2.
		binary.LittleEndian.PutUint32(w[fsiNxt_Free:], 2)
		binary.LittleEndian.PutUint16(w[bs55AA:], 0xAA55)
	}

	if err := writeSector(0, bootSector); err != nil {
		return err
	}
	if isFAT32 {
		if err := writeSector(1, fsInfoSector); err != nil {
			return err
		}
		if err := writeSector(6, bootSector); err != nil {
			return err
		}
		if err := writeSector(7, fsInfoSector); err != nil {
			return err
		}
	}

	fatBase := lba(layout.rsvd)
	entryBits := layout.entryBits
	for n := 0; n < nFAT; n++ {
		base := fatBase + lba(n)*lba(fatSize)
		for s := uint32(0); s < fatSize; s++ {
			addr := base + lba(s)
			if s == 0 {
				if err := writeSector(addr, func(w []byte) {
					switch entryBits {
					case 32:
						binary.LittleEndian.PutUint32(w[0:], 0x0FFFFFF8) // Media descriptor + reserved.
						binary.LittleEndian.PutUint32(w[4:], 0x0FFFFFFF) // Reserved.
						binary.LittleEndian.PutUint32(w[8:], 0x0FFFFFFF) // Root dir cluster 2: end-of-chain.
					case 16:
						binary.LittleEndian.PutUint16(w[0:], 0xFFF8) // Media descriptor + reserved.
						binary.LittleEndian.PutUint16(w[2:], 0xFFFF) // Reserved.
					default: // 12-bit, packed 2 entries per 3 bytes.
						w[0], w[1], w[2] = 0xF8, 0xFF, 0xFF
					}
				}); err != nil {
					return err
				}
				continue
			}
			if err := writeSector(addr, func([]byte) {}); err != nil {
				return err
			}
		}
	}

	database := fatBase + lba(nFAT)*lba(fatSize)
	if !isFAT32 {
		// FAT12/16 root directory is a fixed area right after the FAT
		// copies, not a cluster chain; just zero it and start the data
		// area after it.
		for s := uint32(0); s < layout.rootDirSectors; s++ {
			if err := writeSector(database+lba(s), func([]byte) {}); err != nil {
				return err
			}
		}
		return nil
	}

	for s := 0; s < au; s++ {
		if err := writeSector(database+lba(s), func([]byte) {}); err != nil {
			return err
		}
	}
	return nil
}

func (f *Formatter) move_window(addr lba) error {
	if addr != f.windowaddr {
		if _, err := f.bd.ReadBlocks(f.window, int64(addr)); err != nil {
			return err
		}
		f.windowaddr = addr
	}
	return nil
}
