package blockdevice

import (
	"errors"
	"sync"
	"time"
)

// SD/MMC error kinds (SD_BLOCK_DEVICE_ERROR_* in the source). Range
// -5001..-5011 is reserved for this device, partitioned per spec.md §6.
const (
	SDErrorWouldBlock      Code = -5001
	SDErrorUnsupported     Code = -5002
	SDErrorParameter       Code = -5003
	SDErrorNoInit          Code = -5004
	SDErrorNoDevice        Code = -5005
	SDErrorWriteProtected  Code = -5006
	SDErrorUnusable        Code = -5007
	SDErrorNoResponse      Code = -5008
	SDErrorCRC             Code = -5009
	SDErrorErase           Code = -5010
	SDErrorWrite           Code = -5011
)

// CardType identifies the detected SD/MMC card generation.
type CardType uint8

const (
	CardUnknown CardType = iota
	CardV1
	CardV2
	CardV2HC
)

const (
	blockSizeHC           = 512
	cmd8Pattern           = 0xAA
	ocrHCS_CCS            = 1 << 30
	ocrLowVoltage         = 0x01 << 24
	ocr3_3V               = 0x1 << 20
	tokenStartBlock       = 0xFE
	tokenStartBlockMul    = 0xFC
	tokenStopTran         = 0xFD
	dataResponseMask      = 0x1F
	dataResponseAccepted  = 0x05
	initClockHz           = 10_000_000 // the source's own init-clock constant, see spec.md §4.3
	transferClockCapHz    = 25_000_000
	cmd0Retries           = 5
	cmdDispatchRetries    = 3
	acmd41PollTimeout     = 5 * time.Second
)

// SPIBus is the subset of an SPI peripheral the SD driver needs: a single
// full-duplex transfer and the ability to change clock speed mid-session
// (init clock, then transfer clock once the card is ready).
type SPIBus interface {
	Tx(w, r []byte) error
	SetBaudRate(hz uint32) error
}

// ChipSelect drives the SD card's CS line.
type ChipSelect interface {
	Set(asserted bool)
}

// SDConfig configures an SDDevice.
type SDConfig struct {
	Bus        SPIBus
	CS         ChipSelect
	TargetHz   uint32 // transfer clock once init completes; capped at 25 MHz
	EnableCRC  bool
}

// SDDevice is an SPI-attached SD/MMC block device driver: CMD packet
// protocol, R1/R3/R7 response parsing, CRC7/CRC16, CSD decode, and
// multi-block I/O.
type SDDevice struct {
	mu sync.Mutex

	bus       SPIBus
	cs        ChipSelect
	targetHz  uint32
	enableCRC bool

	cardType     CardType
	totalSectors int64
	init         bool
}

// NewSDDevice constructs an SDDevice from its configuration. Init must be
// called before use; it runs the full power-on handshake.
func NewSDDevice(cfg SDConfig) *SDDevice {
	hz := cfg.TargetHz
	if hz == 0 || hz > transferClockCapHz {
		hz = transferClockCapHz
	}
	return &SDDevice{bus: cfg.Bus, cs: cfg.CS, targetHz: hz, enableCRC: cfg.EnableCRC}
}

func (d *SDDevice) assert()   { d.cs.Set(true) }
func (d *SDDevice) deassert() { d.cs.Set(false) }

// txRx performs a full-duplex transfer, discarding the write side's echo
// when the caller only wants to read (w may be nil, in which case 0xFF
// filler bytes are clocked out, matching SPI SD convention).
func (d *SDDevice) txRx(w, r []byte) error {
	if w == nil {
		w = make([]byte, len(r))
		for i := range w {
			w[i] = 0xFF
		}
	}
	return d.bus.Tx(w, r)
}

// command sends a 6-byte SD command packet (SPI_CMD|index, 4 arg bytes,
// CRC7 trailer) and returns the first non-0xFF response byte (R1), up to
// 8 poll bytes, retried up to cmdDispatchRetries times on no response.
func (d *SDDevice) command(index uint8, arg uint32) (uint8, error) {
	var lastErr error
	for attempt := 0; attempt < cmdDispatchRetries; attempt++ {
		pkt := [6]byte{0x40 | (index & 0x3f), byte(arg >> 24), byte(arg >> 16), byte(arg >> 8), byte(arg)}
		pkt[5] = sdCRC7Byte(pkt[:5])
		if err := d.txRx(pkt[:], make([]byte, 6)); err != nil {
			lastErr = err
			continue
		}
		r1 := [1]byte{0xFF}
		for i := 0; i < 8; i++ {
			if err := d.txRx(nil, r1[:]); err != nil {
				lastErr = err
				break
			}
			if r1[0] != 0xFF {
				return r1[0], nil
			}
		}
		lastErr = newErr("command", SDErrorNoResponse, errors.New("sd: no response"))
	}
	return 0xFF, lastErr
}

// acommand issues CMD55 (APP_CMD) followed by the given ACMD.
func (d *SDDevice) acommand(index uint8, arg uint32) (uint8, error) {
	if _, err := d.command(55, 0); err != nil {
		return 0xFF, err
	}
	return d.command(index, arg)
}

// Init runs the SPI SD/MMC power-on state machine from spec.md §4.3.
func (d *SDDevice) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.init {
		return nil
	}
	if err := d.bus.SetBaudRate(initClockHz); err != nil {
		return newErr("init", ErrDeviceError, err)
	}
	d.deassert()
	if err := d.txRx(nil, make([]byte, 10)); err != nil {
		return newErr("init", ErrDeviceError, err)
	}

	d.assert()
	defer d.deassert()

	var r1 uint8
	var err error
	for i := 0; i < cmd0Retries; i++ {
		r1, err = d.command(0, 0)
		if err == nil && r1&0x01 != 0 {
			break
		}
	}
	if err != nil || r1&0x01 == 0 {
		return newErr("init", SDErrorNoDevice, errors.New("sd: CMD0 did not reach idle state"))
	}

	cardType := CardV1
	r1, err = d.command(8, 0x100|cmd8Pattern)
	if err != nil {
		return err
	}
	if r1&0x04 == 0 { // not illegal-command: v2 card
		var echo [4]byte
		if err := d.txRx(nil, echo[:]); err != nil {
			return newErr("init", ErrDeviceError, err)
		}
		if echo[3] != cmd8Pattern {
			return newErr("init", SDErrorUnusable, errors.New("sd: CMD8 echo pattern mismatch"))
		}
		cardType = CardV2
	}

	if d.enableCRC {
		if _, err := d.command(59, 1); err != nil {
			return err
		}
	}

	ocr, err := d.readOCR(58)
	if err != nil {
		return err
	}
	if ocr&ocr3_3V == 0 {
		return newErr("init", SDErrorUnusable, errors.New("sd: card does not support 3.3V"))
	}

	hcsArg := uint32(0)
	if cardType == CardV2 {
		hcsArg = ocrHCS_CCS
	}
	deadline := time.Now().Add(acmd41PollTimeout)
	for {
		r1, err = d.acommand(41, hcsArg)
		if err != nil {
			return err
		}
		if r1&0x01 == 0 {
			break
		}
		if time.Now().After(deadline) {
			return newErr("init", SDErrorNoResponse, errors.New("sd: ACMD41 timed out"))
		}
	}

	if cardType == CardV2 {
		ocr, err = d.readOCR(58)
		if err != nil {
			return err
		}
		if ocr&ocrHCS_CCS != 0 {
			cardType = CardV2HC
		}
	}

	if cardType != CardV2HC {
		if _, err := d.command(16, blockSizeHC); err != nil {
			return err
		}
	}

	d.cardType = cardType
	cardCSD, err := d.readCSD()
	if err != nil {
		return err
	}
	d.totalSectors = cardCSD.sectors()

	if err := d.bus.SetBaudRate(d.targetHz); err != nil {
		return newErr("init", ErrDeviceError, err)
	}

	d.init = true
	return nil
}

// readOCR issues CMDindex (CMD58) and reads back the 4-byte OCR register.
func (d *SDDevice) readOCR(cmdIndex uint8) (uint32, error) {
	r1, err := d.command(cmdIndex, 0)
	if err != nil {
		return 0, err
	}
	if r1&0x04 != 0 {
		return 0, newErr("init", SDErrorUnsupported, errors.New("sd: command not supported"))
	}
	var buf [4]byte
	if err := d.txRx(nil, buf[:]); err != nil {
		return 0, newErr("init", ErrDeviceError, err)
	}
	return uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]), nil
}

func (d *SDDevice) Deinit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.init = false
	return nil
}

func (d *SDDevice) IsInitialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.init
}

// blockAddress converts a byte address to the address SD SPI commands
// expect: byte addresses for v1/v2, 512-byte block addresses for v2HC.
func (d *SDDevice) blockAddress(addr int64) uint32 {
	if d.cardType == CardV2HC {
		return uint32(addr / blockSizeHC)
	}
	return uint32(addr)
}

func (d *SDDevice) waitToken(want uint8, tries int) error {
	var b [1]byte
	for i := 0; i < tries; i++ {
		if err := d.txRx(nil, b[:]); err != nil {
			return newErr("read", ErrDeviceError, err)
		}
		if b[0] == want {
			return nil
		}
	}
	return newErr("read", SDErrorNoResponse, errors.New("sd: start token timeout"))
}

// Read implements single- and multi-block SD reads (CMD17/CMD18).
func (d *SDDevice) Read(buf []byte, addr, size int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.init {
		return newErr("read", SDErrorNoInit, errNotInitialized)
	}
	if err := checkRead(d, addr, size); err != nil {
		return err
	}
	nblocks := size / blockSizeHC
	d.assert()
	defer d.deassert()

	cmd := uint8(17)
	if nblocks > 1 {
		cmd = 18
	}
	r1, err := d.command(cmd, d.blockAddress(addr))
	if err != nil {
		return err
	}
	if r1 != 0 {
		return newErr("read", SDErrorNoDevice, errors.New("sd: read command rejected"))
	}
	for b := int64(0); b < nblocks; b++ {
		if err := d.waitToken(tokenStartBlock, 1000); err != nil {
			return err
		}
		chunk := buf[b*blockSizeHC : (b+1)*blockSizeHC]
		if err := d.txRx(nil, chunk); err != nil {
			return newErr("read", ErrDeviceError, err)
		}
		var crcBuf [2]byte
		if err := d.txRx(nil, crcBuf[:]); err != nil {
			return newErr("read", ErrDeviceError, err)
		}
		if d.enableCRC {
			got := uint16(crcBuf[0])<<8 | uint16(crcBuf[1])
			if sdCRC16(chunk) != got {
				return newErr("read", SDErrorCRC, errors.New("sd: CRC16 mismatch on read"))
			}
		}
	}
	if nblocks > 1 {
		if _, err := d.command(12, 0); err != nil {
			return err
		}
	}
	return nil
}

// Program implements single- and multi-block SD writes (CMD24/CMD25,
// preceded by ACMD23 for multi-block pre-erase).
func (d *SDDevice) Program(buf []byte, addr, size int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.init {
		return newErr("program", SDErrorNoInit, errNotInitialized)
	}
	if err := checkProgram(d, addr, size); err != nil {
		return err
	}
	nblocks := size / blockSizeHC
	d.assert()
	defer d.deassert()

	if nblocks > 1 {
		if _, err := d.acommand(23, uint32(nblocks)); err != nil {
			return err
		}
	}
	cmd := uint8(24)
	if nblocks > 1 {
		cmd = 25
	}
	r1, err := d.command(cmd, d.blockAddress(addr))
	if err != nil {
		return err
	}
	if r1 != 0 {
		return newErr("program", SDErrorNoDevice, errors.New("sd: write command rejected"))
	}
	startToken := uint8(tokenStartBlock)
	if nblocks > 1 {
		startToken = tokenStartBlockMul
	}
	for b := int64(0); b < nblocks; b++ {
		chunk := buf[b*blockSizeHC : (b+1)*blockSizeHC]
		crc := sdCRC16(chunk)
		pkt := append([]byte{startToken}, chunk...)
		pkt = append(pkt, byte(crc>>8), byte(crc))
		if err := d.txRx(pkt, make([]byte, len(pkt))); err != nil {
			return newErr("program", ErrDeviceError, err)
		}
		var resp [1]byte
		if err := d.txRx(nil, resp[:]); err != nil {
			return newErr("program", ErrDeviceError, err)
		}
		if resp[0]&dataResponseMask != dataResponseAccepted {
			return newErr("program", SDErrorWrite, errors.New("sd: data not accepted"))
		}
		if err := d.waitBusy(); err != nil {
			return err
		}
	}
	if nblocks > 1 {
		var stop [1]byte
		stop[0] = tokenStopTran
		if err := d.txRx(stop[:], make([]byte, 1)); err != nil {
			return newErr("program", ErrDeviceError, err)
		}
		if err := d.waitBusy(); err != nil {
			return err
		}
	}
	return nil
}

func (d *SDDevice) waitBusy() error {
	var b [1]byte
	for i := 0; i < 100000; i++ {
		if err := d.txRx(nil, b[:]); err != nil {
			return newErr("program", ErrDeviceError, err)
		}
		if b[0] == 0xFF {
			return nil
		}
	}
	return newErr("program", SDErrorNoResponse, errors.New("sd: card stayed busy"))
}

// Erase issues CMD32/CMD33 (erase range) followed by CMD38 (erase), the
// SD command-level equivalent of a trim/erase since SD media have no
// block-device erase-before-program requirement of their own.
func (d *SDDevice) Erase(addr, size int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.init {
		return newErr("erase", SDErrorNoInit, errNotInitialized)
	}
	d.assert()
	defer d.deassert()
	start := d.blockAddress(addr)
	end := d.blockAddress(addr + size - blockSizeHC)
	if r1, err := d.command(32, start); err != nil || r1 != 0 {
		return eraseErr(r1, err)
	}
	if r1, err := d.command(33, end); err != nil || r1 != 0 {
		return eraseErr(r1, err)
	}
	if r1, err := d.command(38, 0); err != nil || r1 != 0 {
		return eraseErr(r1, err)
	}
	return d.waitBusy()
}

func eraseErr(r1 uint8, err error) error {
	if err != nil {
		return err
	}
	return newErr("erase", SDErrorErase, errors.New("sd: erase command rejected"))
}

// Trim is advisory for SD media and never fails.
func (d *SDDevice) Trim(addr, size int64) error { return nil }

func (d *SDDevice) Sync() error { return nil }

func (d *SDDevice) Size() int64        { return d.totalSectors * blockSizeHC }
func (d *SDDevice) ReadSize() int64    { return blockSizeHC }
func (d *SDDevice) ProgramSize() int64 { return blockSizeHC }
func (d *SDDevice) EraseSize() int64   { return blockSizeHC }
func (d *SDDevice) Name() string       { return "sd" }

// CardType reports the detected card generation after Init.
func (d *SDDevice) CardType() CardType { return d.cardType }

var _ BlockDevice = (*SDDevice)(nil)
