package blockdevice

import "sync"

// HeapDevice is a RAM-backed block device used for tests and tmpfs-style
// mounts. Its buffer is allocated on Init, not construction, so
// reinitializing a HeapDevice reproduces uninitialized-media behavior
// (erase pattern 0xFF) deliberately, matching the on-chip flash devices it
// substitutes for in host tests.
type HeapDevice struct {
	mu   sync.Mutex
	buf  []byte
	size int64

	readSize, programSize, eraseSize int64
	init                             bool
}

// NewHeapDevice creates a HeapDevice of the given size with 1-byte read
// granularity and the given program/erase alignment. Call Init before use.
func NewHeapDevice(size int64, programSize, eraseSize int64) *HeapDevice {
	if programSize <= 0 {
		programSize = 1
	}
	if eraseSize <= 0 {
		eraseSize = programSize
	}
	return &HeapDevice{
		size:        size,
		readSize:    1,
		programSize: programSize,
		eraseSize:   eraseSize,
	}
}

func (h *HeapDevice) Init() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.init {
		return nil
	}
	h.buf = make([]byte, h.size)
	for i := range h.buf {
		h.buf[i] = 0xFF
	}
	h.init = true
	return nil
}

func (h *HeapDevice) Deinit() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf = nil
	h.init = false
	return nil
}

func (h *HeapDevice) IsInitialized() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.init
}

func (h *HeapDevice) Read(buf []byte, addr, size int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.init {
		return newErr("read", ErrNotInitialized, errNotInitialized)
	}
	if err := checkRead(h, addr, size); err != nil {
		return err
	}
	copy(buf[:size], h.buf[addr:addr+size])
	return nil
}

func (h *HeapDevice) Program(buf []byte, addr, size int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.init {
		return newErr("program", ErrNotInitialized, errNotInitialized)
	}
	if err := checkProgram(h, addr, size); err != nil {
		return err
	}
	copy(h.buf[addr:addr+size], buf[:size])
	return nil
}

func (h *HeapDevice) Erase(addr, size int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.init {
		return newErr("erase", ErrNotInitialized, errNotInitialized)
	}
	if err := checkErase(h, addr, size); err != nil {
		return err
	}
	region := h.buf[addr : addr+size]
	for i := range region {
		region[i] = 0xFF
	}
	return nil
}

func (h *HeapDevice) Trim(addr, size int64) error {
	return nil
}

func (h *HeapDevice) Sync() error { return nil }

func (h *HeapDevice) Size() int64        { return h.size }
func (h *HeapDevice) ReadSize() int64    { return h.readSize }
func (h *HeapDevice) ProgramSize() int64 { return h.programSize }
func (h *HeapDevice) EraseSize() int64   { return h.eraseSize }
func (h *HeapDevice) Name() string       { return "heap" }

var _ BlockDevice = (*HeapDevice)(nil)
