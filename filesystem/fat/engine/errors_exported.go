package fat

// Exported sentinels over the unexported fileResult codes, so adapters in
// other packages can classify a returned error with errors.Is instead of
// string-matching Error().
var (
	ErrDiskErr          error = frDiskErr
	ErrIntErr           error = frIntErr
	ErrNotReady         error = frNotReady
	ErrNoFile           error = frNoFile
	ErrNoPath           error = frNoPath
	ErrInvalidName      error = frInvalidName
	ErrDenied           error = frDenied
	ErrExist            error = frExist
	ErrInvalidObject    error = frInvalidObject
	ErrWriteProtected   error = frWriteProtected
	ErrNoFilesystem     error = frNoFilesystem
	ErrTimeout          error = frTimeout
	ErrLocked           error = frLocked
	ErrNotEnoughCore    error = frNotEnoughCore
	ErrTooManyOpenFiles error = frTooManyOpenFiles
	ErrInvalidParameter error = frInvalidParameter
	ErrUnsupported      error = frUnsupported
)
