package vfs

import (
	"bufio"
	"os"
)

// Stdio is the capability interface fds 0-2 fall through to instead of
// being routed to a mounted filesystem.
type Stdio interface {
	Getchar() (byte, error)
	Putchar(b byte) error
}

// defaultStdio wires stdin/stdout for host builds.
type defaultStdio struct{}

var stdinReader = bufio.NewReader(os.Stdin)

func (defaultStdio) Getchar() (byte, error) {
	return stdinReader.ReadByte()
}

func (defaultStdio) Putchar(b byte) error {
	_, err := os.Stdout.Write([]byte{b})
	return err
}

// SetStdio installs a custom Stdio capability, e.g. for tests or embedded
// builds that have no os.Stdin/os.Stdout.
func (v *Vfs) SetStdio(s Stdio) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stdio = s
}
