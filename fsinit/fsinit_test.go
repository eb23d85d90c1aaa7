package fsinit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/picofs/vfs/vfs"
	"github.com/picofs/vfs/filesystem"
)

func TestInitFatOnFlash(t *testing.T) {
	v := vfs.NewVfs()
	require.NoError(t, InitFatOnFlash(nil, v))

	fd, err := v.Open("/hello.txt", filesystem.WRONLY|filesystem.CREAT)
	require.NoError(t, err)
	_, err = v.Write(fd, []byte("hi"))
	require.NoError(t, err)
	require.NoError(t, v.Close(fd))
}

func TestInitHeapWithFlashBackup(t *testing.T) {
	v := vfs.NewVfs()
	require.NoError(t, InitHeapWithFlashBackup(nil, v))

	fd, err := v.Open("/root.txt", filesystem.WRONLY|filesystem.CREAT)
	require.NoError(t, err)
	require.NoError(t, v.Close(fd))

	fd, err = v.Open("/flash/sub.txt", filesystem.WRONLY|filesystem.CREAT)
	require.NoError(t, err)
	require.NoError(t, v.Close(fd))
}

func TestInitLoopbackOnFlash(t *testing.T) {
	v := vfs.NewVfs()
	require.NoError(t, InitLoopbackOnFlash(nil, v))

	fd, err := v.Open("/LOOP.TXT", filesystem.WRONLY|filesystem.CREAT)
	require.NoError(t, err)
	want := []byte("through the loopback")
	_, err = v.Write(fd, want)
	require.NoError(t, err)
	require.NoError(t, v.Close(fd))

	fd, err = v.Open("/LOOP.TXT", filesystem.RDONLY)
	require.NoError(t, err)
	got := make([]byte, len(want))
	n, err := v.Read(fd, got)
	require.NoError(t, err)
	require.Equal(t, want, got[:n])
	v.Close(fd)
}

func TestHostLoopbackDevice(t *testing.T) {
	img := filepath.Join(t.TempDir(), "disk.img")
	dev, err := NewHostLoopbackDevice(img, 256*1024, 512)
	require.NoError(t, err)
	require.NoError(t, dev.Init())
	defer dev.Deinit()

	buf := []byte("hostfile-backed loopback block")
	padded := make([]byte, 512)
	copy(padded, buf)
	require.NoError(t, dev.Program(padded, 0, 512))

	got := make([]byte, 512)
	require.NoError(t, dev.Read(got, 0, 512))
	require.Equal(t, padded, got)

	fi, err := os.Stat(img)
	require.NoError(t, err)
	require.GreaterOrEqual(t, fi.Size(), int64(256*1024))
}
