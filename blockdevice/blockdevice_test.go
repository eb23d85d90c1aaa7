package blockdevice

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, d BlockDevice) {
	t.Helper()
	require.NoError(t, d.Init())
	defer d.Deinit()

	addr := d.EraseSize()
	size := d.ProgramSize()
	if addr+size > d.Size() {
		addr = 0
	}
	want := bytes.Repeat([]byte{0xAB}, int(size))
	require.NoError(t, d.Erase(addr, d.EraseSize()))
	require.NoError(t, d.Program(want, addr, size))
	got := make([]byte, size)
	require.NoError(t, d.Read(got, addr, size))
	require.Equal(t, want, got, "round trip mismatch")
}

func TestHeapDevice_RoundTrip(t *testing.T) {
	roundTrip(t, NewHeapDevice(64*1024, 256, 4096))
}

func TestFlashDevice_RoundTrip(t *testing.T) {
	dev, err := NewFlashDevice(2*1024*1024, 64*1024)
	require.NoError(t, err)
	roundTrip(t, dev)
}

func TestFlashDevice_AlignmentPrecondition(t *testing.T) {
	_, err := NewFlashDevice(1, FlashSectorSize)
	require.Error(t, err, "expected error for misaligned start")

	_, err = NewFlashDevice(0, 1)
	require.Error(t, err, "expected error for misaligned length")
}

func TestFlashDevice_ProgramRejectsUnalignedAddr(t *testing.T) {
	dev, err := NewFlashDevice(4*1024*1024, 64*1024)
	require.NoError(t, err)
	require.NoError(t, dev.Init())

	buf := make([]byte, FlashPageSize)
	err = dev.Program(buf, 1, FlashPageSize)
	require.Error(t, err, "expected alignment error")
}

func TestFlashDevice_SafeExecuteTimeoutRetry(t *testing.T) {
	exec := &TimeoutSafeExecutor{FailTimes: 2}
	dev, err := NewFlashDeviceWithExecutor(6*1024*1024, 64*1024, exec)
	require.NoError(t, err)
	require.NoError(t, dev.Init())

	buf := make([]byte, FlashPageSize)
	require.Error(t, dev.Erase(0, dev.EraseSize()), "first erase attempt should report timeout")
	require.Error(t, dev.Erase(0, dev.EraseSize()), "second erase attempt should report timeout")
	require.NoError(t, dev.Erase(0, dev.EraseSize()), "third attempt should succeed")
	require.NoError(t, dev.Program(buf, 0, FlashPageSize))
}

func TestHeapDevice_ReinitReproducesErasePattern(t *testing.T) {
	d := NewHeapDevice(4096, 256, 4096)
	require.NoError(t, d.Init())

	buf := bytes.Repeat([]byte{0x42}, 256)
	require.NoError(t, d.Program(buf, 0, 256))
	require.NoError(t, d.Deinit())
	require.NoError(t, d.Init())

	got := make([]byte, 256)
	require.NoError(t, d.Read(got, 0, 256))
	want := bytes.Repeat([]byte{0xFF}, 256)
	require.Equal(t, want, got, "reinit did not reproduce erase pattern")
}
