// Package blockdevice defines the uniform block-device abstraction shared
// by every storage backend in the module: on-chip flash, RAM, a file
// loopbacked through an already-mounted filesystem, and SPI-attached SD/MMC
// cards.
//
// Every device exposes read/program/erase/trim/sync plus its geometry
// (read/program/erase alignment) and serializes its own operations with a
// per-instance mutex; different devices may run concurrently.
package blockdevice

import (
	"errors"
	"fmt"
)

// Code is a negative domain error code, mirroring the C source's
// int-return convention. Backend-specific codes are declared in the
// concrete device files; the generic codes below reuse the numbers
// -4001..-4003 of the flash codes, so those values alone do not tell a
// generic failure from a flash one.
type Code int

// Error wraps a negative domain [Code] so it satisfies the error interface
// while still being recoverable via [AsCode].
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("blockdevice: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("blockdevice: %s: code %d", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// AsCode extracts the domain [Code] from err, returning (0, false) if err is
// nil or not a [*Error].
func AsCode(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

func newErr(op string, code Code, err error) error {
	return &Error{Op: op, Code: code, Err: err}
}

// Generic domain codes shared by every backend (BD_ERROR_* in the source).
const (
	ErrDeviceError   Code = -4001 // device-specific failure
	ErrUnaligned     Code = -4002 // addr/size violates geometry alignment
	ErrOutOfRange    Code = -4003 // addr/size outside [0, Size())
	ErrNotInitialized Code = -4004
)

var (
	errUnaligned      = errors.New("addr/size not aligned to device geometry")
	errOutOfRange     = errors.New("addr/size outside device range")
	errNotInitialized = errors.New("device not initialized")
)

// BlockDevice is the uniform storage contract every backend implements.
// addr/size arguments to Program and Erase must be aligned to ProgramSize
// and EraseSize respectively and lie within [0, Size()). Read need only be
// aligned to ReadSize.
type BlockDevice interface {
	// Init prepares the device for use. Idempotent: calling Init on an
	// already-initialized device succeeds without side effects.
	Init() error
	// Deinit releases any resources acquired by Init. Idempotent.
	Deinit() error
	// IsInitialized reports whether Init has succeeded more recently than
	// any Deinit.
	IsInitialized() bool

	// Read reads size bytes starting at addr into buf[:size].
	Read(buf []byte, addr, size int64) error
	// Program writes size bytes from buf[:size] to addr. Media that
	// require erase-before-program (flash, SD) must have had Erase called
	// over the same range first.
	Program(buf []byte, addr, size int64) error
	// Erase resets [addr, addr+size) to the device's erase pattern.
	Erase(addr, size int64) error
	// Trim advises that [addr, addr+size) is no longer in use. Never
	// fails merely because the backend has no trim semantics.
	Trim(addr, size int64) error
	// Sync flushes any host-side caches.
	Sync() error

	// Size returns the total addressable byte capacity. Constant after Init.
	Size() int64
	ReadSize() int64
	ProgramSize() int64
	EraseSize() int64
	// Name identifies the backend kind: "flash", "sd", "heap", or "loopback".
	Name() string
}

func alignedWithin(addr, size, align, capacity int64) error {
	if align <= 0 {
		return errUnaligned
	}
	if addr < 0 || size < 0 || addr%align != 0 || size%align != 0 {
		return errUnaligned
	}
	if addr+size > capacity {
		return errOutOfRange
	}
	return nil
}

// checkProgram validates addr/size against a device's program geometry.
func checkProgram(d BlockDevice, addr, size int64) error {
	if err := alignedWithin(addr, size, d.ProgramSize(), d.Size()); err != nil {
		if err == errUnaligned {
			return newErr("program", ErrUnaligned, err)
		}
		return newErr("program", ErrOutOfRange, err)
	}
	return nil
}

// checkErase validates addr/size against a device's erase geometry.
func checkErase(d BlockDevice, addr, size int64) error {
	if err := alignedWithin(addr, size, d.EraseSize(), d.Size()); err != nil {
		if err == errUnaligned {
			return newErr("erase", ErrUnaligned, err)
		}
		return newErr("erase", ErrOutOfRange, err)
	}
	return nil
}

// checkRead validates addr/size against a device's read geometry.
func checkRead(d BlockDevice, addr, size int64) error {
	if err := alignedWithin(addr, size, d.ReadSize(), d.Size()); err != nil {
		if err == errUnaligned {
			return newErr("read", ErrUnaligned, err)
		}
		return newErr("read", ErrOutOfRange, err)
	}
	return nil
}
