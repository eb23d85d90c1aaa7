package fat

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/picofs/vfs/blockdevice"
	"github.com/picofs/vfs/filesystem"
)

func newTestDevice(t *testing.T) blockdevice.BlockDevice {
	t.Helper()
	// 8MiB at 512-byte sectors lands Format's auto-select on FAT12 or
	// FAT16 (its cluster count at the tried cluster sizes never reaches
	// the FAT32 band) — exercising the small-volume subtypes most real
	// embedded devices actually use, not just FAT32.
	dev := blockdevice.NewHeapDevice(8<<20, 512, 512)
	require.NoError(t, dev.Init())
	return dev
}

func mustMountAdapter(t *testing.T) *FatAdapter {
	t.Helper()
	dev := newTestDevice(t)
	a := New(nil)
	require.NoError(t, a.Format(dev))
	require.NoError(t, a.Mount(dev, false))
	return a
}

func TestFatAdapterRoundTrip(t *testing.T) {
	a := mustMountAdapter(t)

	f, err := a.OpenFile("/hello.txt", filesystem.WRONLY|filesystem.CREAT|filesystem.EXCL)
	require.NoError(t, err)
	want := []byte("hello, fat32")
	_, err = f.Write(want)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rf, err := a.OpenFile("/hello.txt", filesystem.RDONLY)
	require.NoError(t, err)
	defer rf.Close()
	got := make([]byte, len(want))
	_, err = io.ReadFull(rf, got)
	require.NoError(t, err)
	require.Equal(t, want, got)

	fi, err := a.Stat("/hello.txt")
	require.NoError(t, err)
	require.Equal(t, int64(len(want)), fi.Size)
	require.False(t, fi.IsDir)
}

func TestFatAdapterMkdirRmdirRename(t *testing.T) {
	a := mustMountAdapter(t)
	require.NoError(t, a.Mkdir("/sub"))

	fi, err := a.Stat("/sub")
	require.NoError(t, err)
	require.True(t, fi.IsDir)

	require.NoError(t, a.Rename("/sub", "/sub2"))
	_, err = a.Stat("/sub")
	require.Error(t, err, "expected stat of renamed-away path to fail")

	require.NoError(t, a.Rmdir("/sub2"))
}

func TestFatAdapterRmdirNotEmpty(t *testing.T) {
	a := mustMountAdapter(t)
	require.NoError(t, a.Mkdir("/sub"))

	f, err := a.OpenFile("/sub/file.txt", filesystem.WRONLY|filesystem.CREAT)
	require.NoError(t, err)
	f.Close()

	err = a.Rmdir("/sub")
	require.ErrorIs(t, err, filesystem.ENOTEMPTY)
}

func TestFatAdapterSeekAndTruncate(t *testing.T) {
	a := mustMountAdapter(t)
	f, err := a.OpenFile("/seek.bin", filesystem.RDWR|filesystem.CREAT)
	require.NoError(t, err)

	_, err = f.Write([]byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, f.Truncate(5))
	_, err = f.Seek(0, filesystem.SeekSet)
	require.NoError(t, err)

	got, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, "01234", string(got))
	f.Close()
}

func TestFatAdapterOpenMissingFails(t *testing.T) {
	a := mustMountAdapter(t)
	_, err := a.OpenFile("/nope.txt", filesystem.RDONLY)
	require.ErrorIs(t, err, filesystem.ENOENT)
}
