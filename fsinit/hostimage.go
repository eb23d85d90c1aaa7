package fsinit

import (
	"os"

	"github.com/picofs/vfs/blockdevice"
)

// HostFileImage opens loopback-image files as plain host files instead of
// going back through a mounted vfs.Vfs — useful when running the demo
// layouts above on a development host rather than the target board, where
// the "loopback" image is just a regular file on the host filesystem. An
// *os.File already satisfies blockdevice.LoopbackFile (ReadAt/WriteAt/
// Truncate/Close match exactly), so this type only needs to open it.
type HostFileImage struct{}

func (HostFileImage) OpenFile(path string, flags int) (blockdevice.LoopbackFile, error) {
	const loopbackOCREAT = 0x40
	osFlags := os.O_RDWR
	if flags&loopbackOCREAT != 0 {
		osFlags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, osFlags, 0o600)
	if err != nil {
		return nil, err
	}
	return f, nil
}

var _ blockdevice.LoopbackFS = HostFileImage{}

// NewHostLoopbackDevice builds a LoopbackDevice backed directly by a host
// file at imagePath, sized at least minSize bytes by growing the file if
// it is smaller (via hostFileSize, defined per platform in hostfile_*.go).
func NewHostLoopbackDevice(imagePath string, minSize, blockSize int64) (*blockdevice.LoopbackDevice, error) {
	f, err := os.OpenFile(imagePath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	size, err := hostFileSize(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if size < minSize {
		if err := f.Truncate(minSize); err != nil {
			f.Close()
			return nil, err
		}
		size = minSize
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return blockdevice.NewLoopbackDevice(HostFileImage{}, imagePath, size, blockSize), nil
}
