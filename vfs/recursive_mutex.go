package vfs

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// goid returns the calling goroutine's id by parsing the leading line of
// its own stack trace ("goroutine 123 [running]:"). There is no supported
// API for this; it exists purely so recursiveMutex can recognize reentry
// from the same goroutine, the same trick runtime/pprof and most reentrant-
// mutex shims in the wild rely on.
func goid() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	b = b[len(prefix):]
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(b[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// recursiveMutex is a reentrant lock: the goroutine already holding it may
// Lock again without blocking. Needed because fs_reformat and loopback
// block devices re-enter the Vfs's own lock from inside a call already
// holding it (spec: lock order Vfs -> filesystem -> block device, with
// loopback's reentry as the documented exception).
type recursiveMutex struct {
	mu    sync.Mutex
	owner uint64
	depth int
}

func (r *recursiveMutex) Lock() {
	id := goid()
	r.mu.Lock()
	if r.depth > 0 && r.owner == id {
		r.depth++
		r.mu.Unlock()
		return
	}
	if r.depth > 0 {
		// Held by a different goroutine: release our provisional grip on
		// the bookkeeping mutex and block on the real acquisition path.
		r.mu.Unlock()
		r.acquireSlow(id)
		return
	}
	r.owner = id
	r.depth = 1
	r.mu.Unlock()
}

// acquireSlow spins with a short yield until the current owner releases.
// A condition variable would be cleaner but pulls in sync.Cond bookkeeping
// for a lock that is only ever contended across two or three goroutines in
// practice (spec.md §8 scenario 6); Gosched keeps it simple and correct.
func (r *recursiveMutex) acquireSlow(id uint64) {
	for {
		r.mu.Lock()
		if r.depth == 0 {
			r.owner = id
			r.depth = 1
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()
		runtime.Gosched()
	}
}

func (r *recursiveMutex) Unlock() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.depth == 0 {
		panic("vfs: Unlock of unlocked recursiveMutex")
	}
	r.depth--
	if r.depth == 0 {
		r.owner = 0
	}
}
