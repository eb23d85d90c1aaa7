package littlefs

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/picofs/vfs/blockdevice"
	"github.com/picofs/vfs/filesystem"
)

func newTestDevice(t *testing.T) blockdevice.BlockDevice {
	t.Helper()
	dev := blockdevice.NewHeapDevice(128*512, 512, 512)
	require.NoError(t, dev.Init())
	return dev
}

func mustMountAdapter(t *testing.T) (*LittleFsAdapter, blockdevice.BlockDevice) {
	t.Helper()
	dev := newTestDevice(t)
	a := New(0, 0)
	require.NoError(t, a.Format(dev))
	require.NoError(t, a.Mount(dev, false))
	return a, dev
}

func TestAdapterRoundTrip(t *testing.T) {
	a, _ := mustMountAdapter(t)

	f, err := a.OpenFile("/hello.txt", filesystem.WRONLY|filesystem.CREAT|filesystem.EXCL)
	require.NoError(t, err)
	want := []byte("hello, littlefs")
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

func TestAdapterExclFailsOnExisting(t *testing.T) {
	a, _ := mustMountAdapter(t)
	f, err := a.OpenFile("/x.txt", filesystem.WRONLY|filesystem.CREAT)
	require.NoError(t, err)
	f.Close()

	_, err = a.OpenFile("/x.txt", filesystem.WRONLY|filesystem.CREAT|filesystem.EXCL)
	require.ErrorIs(t, err, filesystem.EEXIST)
}

func TestAdapterMkdirRmdirRename(t *testing.T) {
	a, _ := mustMountAdapter(t)
	require.NoError(t, a.Mkdir("/dir"))

	d, err := a.OpenDir("/")
	require.NoError(t, err)
	e, err := d.Read()
	require.NoError(t, err)
	require.Equal(t, "dir", e.Name)
	require.True(t, e.IsDir)

	require.NoError(t, a.Rename("/dir", "/dir2"))
	_, err = a.Stat("/dir")
	require.ErrorIs(t, err, filesystem.ENOENT)

	require.NoError(t, a.Rmdir("/dir2"))
}

func TestAdapterAppend(t *testing.T) {
	a, _ := mustMountAdapter(t)
	f, err := a.OpenFile("/log.txt", filesystem.WRONLY|filesystem.CREAT)
	require.NoError(t, err)
	_, err = f.Write([]byte("first "))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f2, err := a.OpenFile("/log.txt", filesystem.WRONLY|filesystem.APPEND)
	require.NoError(t, err)
	_, err = f2.Write([]byte("second"))
	require.NoError(t, err)
	require.NoError(t, f2.Close())

	rf, err := a.OpenFile("/log.txt", filesystem.RDONLY)
	require.NoError(t, err)
	got, err := io.ReadAll(rf)
	require.NoError(t, err)
	rf.Close()
	require.Equal(t, "first second", string(got))
}

func TestAdapterRemoveMissingFails(t *testing.T) {
	a, _ := mustMountAdapter(t)
	err := a.Remove("/nope.txt")
	require.ErrorIs(t, err, filesystem.ENOENT)
}
