package vfs

import (
	"syscall"

	"github.com/picofs/vfs/filesystem"
)

// SD and flash domain codes occupy their own ranges disjoint from the
// shared POSIX errno space (blockdevice.ErrDeviceError et al. start at
// -4001; the SD backend's own command/CRC failures start at -5001).
const (
	sdRangeStart    = -5011
	sdRangeEnd      = -5001
	flashRangeStart = -4003
	flashRangeEnd   = -4001
)

var sdErrorText = map[int]string{
	-5001: "sd: operation would block",
	-5002: "sd: unsupported operation",
	-5003: "sd: invalid parameter",
	-5004: "sd: device not initialized",
	-5005: "sd: no device",
	-5006: "sd: write protected",
	-5007: "sd: device unusable",
	-5008: "sd: no response from device",
	-5009: "sd: CRC error",
	-5010: "sd: erase error",
	-5011: "sd: write error",
}

var flashErrorText = map[int]string{
	-4001: "flash: safe-execute timed out",
	-4002: "flash: safe-execute not permitted from this context",
	-4003: "flash: insufficient resources to safe-execute",
}

// fs_strerror renders code the way the original design partitions it:
// 5001-5011 for SD-card failures, 4001-4003 for flash failures, else the
// code is interpreted as a POSIX errno and rendered through the standard
// library's own strerror-equivalent text.
func fs_strerror(code int) string {
	if code == 0 {
		return "success"
	}
	if code >= sdRangeStart && code <= sdRangeEnd {
		if s, ok := sdErrorText[code]; ok {
			return s
		}
	}
	if code >= flashRangeStart && code <= flashRangeEnd {
		if s, ok := flashErrorText[code]; ok {
			return s
		}
	}
	if fc := filesystem.Code(code); fc.String() != "unknown error" {
		return fc.String()
	}
	return syscall.Errno(-code).Error()
}
