package vfs

import "github.com/picofs/vfs/filesystem"

// File descriptors 0-2 are reserved for Stdio; real entries start at 3.
const fdOffset = 3

type fileEntry struct {
	f    filesystem.File
	mp   *mountpoint
	path string
	used bool
}

type dirEntry struct {
	d    filesystem.Dir
	used bool
}

// fileTable and dirTable are slices that double on growth, indexed
// directly by (fd - fdOffset)/(dd - fdOffset). Freed slots are reused
// before the table grows, so fds get recycled rather than growing
// monotonically under open/close churn.
type fileTable struct {
	entries []*fileEntry
}

type dirTable struct {
	entries []*dirEntry
}

func (t *fileTable) alloc(e *fileEntry) int {
	for i, slot := range t.entries {
		if slot == nil || !slot.used {
			t.entries[i] = e
			e.used = true
			return i + fdOffset
		}
	}
	grown := t.grow()
	t.entries[grown] = e
	e.used = true
	return grown + fdOffset
}

// grow doubles the table (starting at 4) and returns the index of the
// first newly available slot.
func (t *fileTable) grow() int {
	old := len(t.entries)
	size := 4
	if old > 0 {
		size = old * 2
	}
	grown := make([]*fileEntry, size)
	copy(grown, t.entries)
	t.entries = grown
	return old
}

func (t *fileTable) get(fd int) (*fileEntry, bool) {
	i := fd - fdOffset
	if i < 0 || i >= len(t.entries) || t.entries[i] == nil || !t.entries[i].used {
		return nil, false
	}
	return t.entries[i], true
}

func (t *fileTable) free(fd int) {
	i := fd - fdOffset
	if i >= 0 && i < len(t.entries) && t.entries[i] != nil {
		t.entries[i].used = false
		t.entries[i] = nil
	}
}

func (t *dirTable) alloc(e *dirEntry) int {
	for i, slot := range t.entries {
		if slot == nil || !slot.used {
			t.entries[i] = e
			e.used = true
			return i + fdOffset
		}
	}
	grown := t.grow()
	t.entries[grown] = e
	e.used = true
	return grown + fdOffset
}

func (t *dirTable) grow() int {
	old := len(t.entries)
	size := 4
	if old > 0 {
		size = old * 2
	}
	grown := make([]*dirEntry, size)
	copy(grown, t.entries)
	t.entries = grown
	return old
}

func (t *dirTable) get(dd int) (*dirEntry, bool) {
	i := dd - fdOffset
	if i < 0 || i >= len(t.entries) || t.entries[i] == nil || !t.entries[i].used {
		return nil, false
	}
	return t.entries[i], true
}

func (t *dirTable) free(dd int) {
	i := dd - fdOffset
	if i >= 0 && i < len(t.entries) && t.entries[i] != nil {
		t.entries[i].used = false
		t.entries[i] = nil
	}
}
