package blockdevice

import "errors"

// csd holds the raw 16-byte Card Specific Data register, decoded just
// enough to recover total sector count. Layout grounded on
// other_examples/…nmaggioni-tinygo-drivers__sd-definitions.go's CSD
// bitfield documentation.
type csd struct {
	raw [16]byte
}

func (c csd) structureVersion() uint8 { return c.raw[0] >> 6 }

// sectors returns the card capacity in 512-byte sectors.
func (c csd) sectors() int64 {
	if c.structureVersion() == 1 {
		// CSD v2 (SDHC/SDXC): C_SIZE is a 22-bit field at byte offset 7..9,
		// capacity = (C_SIZE+1) * 512KiB, expressed in 512-byte sectors.
		cSize := int64(c.raw[7]&0x3F)<<16 | int64(c.raw[8])<<8 | int64(c.raw[9])
		return (cSize + 1) * 1024
	}
	// CSD v1 (SDSC): capacity = (C_SIZE+1) * 2^(C_SIZE_MULT+2) * 2^READ_BL_LEN bytes.
	cSize := int64(c.raw[6]&0x03)<<10 | int64(c.raw[7])<<2 | int64(c.raw[8]>>6)
	cSizeMult := int64(c.raw[9]&0x03)<<1 | int64(c.raw[10]>>7)
	readBlLen := int64(c.raw[5] & 0x0F)
	blockCount := (cSize + 1) << (cSizeMult + 2)
	bytes := blockCount << readBlLen
	return bytes / blockSizeHC
}

// readCSD issues CMD9 and reads back the 16-byte CSD plus the data
// block's 2-byte CRC16 trailer, preceded by a start token exactly like a
// single-block read.
func (d *SDDevice) readCSD() (csd, error) {
	r1, err := d.command(9, 0)
	if err != nil {
		return csd{}, err
	}
	if r1 != 0 {
		return csd{}, newErr("init", SDErrorNoDevice, errors.New("sd: CMD9 rejected"))
	}
	if err := d.waitToken(tokenStartBlock, 1000); err != nil {
		return csd{}, err
	}
	var out csd
	if err := d.txRx(nil, out.raw[:]); err != nil {
		return csd{}, newErr("init", ErrDeviceError, err)
	}
	var crcBuf [2]byte
	if err := d.txRx(nil, crcBuf[:]); err != nil {
		return csd{}, newErr("init", ErrDeviceError, err)
	}
	return out, nil
}
