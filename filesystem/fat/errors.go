package fat

import (
	"errors"

	"github.com/picofs/vfs/filesystem"
	engine "github.com/picofs/vfs/filesystem/fat/engine"
)

// remapErr translates an engine error onto the shared negative-errno space
// every adapter reports through. Unrecognized errors (device I/O failures
// surfaced from blockdevice, context cancellation) pass through unchanged;
// the vfs layer maps those to EIO at its syscall boundary.
func remapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, engine.ErrNoFile), errors.Is(err, engine.ErrNoPath):
		return filesystem.ENOENT
	case errors.Is(err, engine.ErrExist):
		return filesystem.EEXIST
	case errors.Is(err, engine.ErrDenied):
		return filesystem.EACCES
	case errors.Is(err, engine.ErrWriteProtected):
		return filesystem.EACCES
	case errors.Is(err, engine.ErrInvalidName), errors.Is(err, engine.ErrInvalidParameter):
		return filesystem.EINVAL
	case errors.Is(err, engine.ErrInvalidObject):
		return filesystem.EBADF
	case errors.Is(err, engine.ErrTooManyOpenFiles):
		return filesystem.ENFILE
	case errors.Is(err, engine.ErrNotEnoughCore):
		return filesystem.ENOMEM
	case errors.Is(err, engine.ErrTimeout), errors.Is(err, engine.ErrLocked):
		return filesystem.EBUSY
	case errors.Is(err, engine.ErrNoFilesystem), errors.Is(err, engine.ErrNotReady):
		return filesystem.ENODEV
	case errors.Is(err, engine.ErrDiskErr), errors.Is(err, engine.ErrIntErr), errors.Is(err, engine.ErrUnsupported):
		return filesystem.EIO
	default:
		return err
	}
}
