package fat

// accessmode carries the FA_* style flags through f_open and the File.flag
// field. Aliased to uint8 so callers can pass OpenFile's public Mode byte
// straight through without a defined-type mismatch.
type accessmode = uint8

// File access/state flags. The low two bits double as the public Mode bits
// (see exported.go); the rest are private to f_open/f_write/f_lseek.
const (
	faRead         = 0x01
	faWrite        = 0x02
	faOpenExisting = 0x00
	faCreateNew    = 0x04
	faCreateAlways = 0x08
	faOpenAlways   = 0x10
	faSEEKEND      = 0x20
	faOpenAppend   = faOpenAlways | faSEEKEND

	faMODIFIED = 0x40 // Data written since open; directory entry needs an update.
	faDIRTY    = 0x80 // fp.buf holds unflushed sector data.
)

// maxu32 is the FAT chain sentinel for "disk error" returned by
// clusterstat/create_chain, distinct from 0 (free) and 1 (internal error).
const maxu32 = 0xffff_ffff
