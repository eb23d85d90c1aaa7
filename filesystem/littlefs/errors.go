package littlefs

import (
	"errors"

	"github.com/picofs/vfs/filesystem"
	engine "github.com/picofs/vfs/filesystem/littlefs/engine"
)

// remapErr translates the engine's Result codes onto the shared
// negative-errno space, this package's half of the shared remap table.
func remapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, engine.ErrNoEnt):
		return filesystem.ENOENT
	case errors.Is(err, engine.ErrExist):
		return filesystem.EEXIST
	case errors.Is(err, engine.ErrNotDir):
		return filesystem.ENOTDIR
	case errors.Is(err, engine.ErrIsDir):
		return filesystem.EISDIR
	case errors.Is(err, engine.ErrNotEmpty):
		return filesystem.ENOTEMPTY
	case errors.Is(err, engine.ErrNoSpace):
		return filesystem.ENOSPC
	case errors.Is(err, engine.ErrCorrupt):
		return filesystem.EIO
	case errors.Is(err, engine.ErrInval):
		return filesystem.EINVAL
	case errors.Is(err, engine.ErrNameTooLong):
		return filesystem.ENAMETOOLONG
	case errors.Is(err, engine.ErrIO):
		return filesystem.EIO
	case errors.Is(err, engine.ErrBadFd):
		return filesystem.EBADF
	default:
		return err
	}
}
