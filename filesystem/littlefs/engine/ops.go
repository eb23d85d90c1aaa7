package littlefs

import (
	"strings"
)

// splitPath breaks an absolute, slash-separated path into its non-empty
// components; "/" or "" yields an empty slice.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// resolveParent walks from the root to the directory containing the last
// path component, returning that directory's metadata pair and the final
// component's name.
func (fs *FS) resolveParent(path string) (pairA, pairB uint32, name string, err error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return 0, 0, "", ErrInval
	}
	pairA, pairB = fs.rootA, fs.rootB
	for _, part := range parts[:len(parts)-1] {
		entries, _, err := fs.readDir(pairA, pairB)
		if err != nil {
			return 0, 0, "", err
		}
		e, _, ok := findEntry(entries, part)
		if !ok {
			return 0, 0, "", ErrNoEnt
		}
		if e.etype != entryDir {
			return 0, 0, "", ErrNotDir
		}
		pairA, pairB = e.ptrA, e.ptrB
	}
	return pairA, pairB, parts[len(parts)-1], nil
}

// lookup resolves an absolute path fully, returning the matching entry
// and the metadata pair of the directory it lives in.
func (fs *FS) lookup(path string) (dirEntry, uint32, uint32, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return dirEntry{etype: entryDir, name: "/", ptrA: fs.rootA, ptrB: fs.rootB}, fs.rootA, fs.rootB, nil
	}
	pairA, pairB, name, err := fs.resolveParent(path)
	if err != nil {
		return dirEntry{}, 0, 0, err
	}
	entries, _, err := fs.readDir(pairA, pairB)
	if err != nil {
		return dirEntry{}, 0, 0, err
	}
	e, _, ok := findEntry(entries, name)
	if !ok {
		return dirEntry{}, 0, 0, ErrNoEnt
	}
	return e, pairA, pairB, nil
}

// commitDir rewrites both halves of a metadata pair with a bumped
// revision so the new entry set supersedes the old one atomically.
func (fs *FS) commitDir(pairA, pairB uint32, entries []dirEntry) error {
	_, rev, err := fs.readDir(pairA, pairB)
	if err != nil {
		return err
	}
	rev++
	if err := fs.writeDir(pairA, rev, entries); err != nil {
		return err
	}
	return fs.writeDir(pairB, rev, entries)
}

func (fs *FS) insertEntry(pairA, pairB uint32, entry dirEntry) error {
	entries, _, err := fs.readDir(pairA, pairB)
	if err != nil {
		return err
	}
	if _, _, ok := findEntry(entries, entry.name); ok {
		return ErrExist
	}
	if len(entry.name) > nameMax {
		return ErrNameTooLong
	}
	entries = append(entries, entry)
	return fs.commitDir(pairA, pairB, entries)
}

func (fs *FS) replaceEntry(pairA, pairB uint32, entry dirEntry) error {
	entries, _, err := fs.readDir(pairA, pairB)
	if err != nil {
		return err
	}
	_, idx, ok := findEntry(entries, entry.name)
	if !ok {
		return ErrNoEnt
	}
	entries[idx] = entry
	return fs.commitDir(pairA, pairB, entries)
}

func (fs *FS) removeEntry(pairA, pairB uint32, name string) error {
	entries, _, err := fs.readDir(pairA, pairB)
	if err != nil {
		return err
	}
	_, idx, ok := findEntry(entries, name)
	if !ok {
		return ErrNoEnt
	}
	entries = append(entries[:idx], entries[idx+1:]...)
	return fs.commitDir(pairA, pairB, entries)
}

// Mkdir creates an empty directory at path.
func (fs *FS) Mkdir(path string) error {
	pairA, pairB, name, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	blockA, err := fs.alloc.alloc()
	if err != nil {
		return err
	}
	blockB, err := fs.alloc.alloc()
	if err != nil {
		return err
	}
	if err := fs.writeDir(blockA, 1, nil); err != nil {
		return err
	}
	if err := fs.writeDir(blockB, 1, nil); err != nil {
		return err
	}
	return fs.insertEntry(pairA, pairB, dirEntry{etype: entryDir, name: name, ptrA: blockA, ptrB: blockB})
}

// Rmdir removes an empty directory at path.
func (fs *FS) Rmdir(path string) error {
	e, pairA, pairB, err := fs.lookup(path)
	if err != nil {
		return err
	}
	if e.etype != entryDir {
		return ErrNotDir
	}
	entries, _, err := fs.readDir(e.ptrA, e.ptrB)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return ErrNotEmpty
	}
	_, name, err2 := splitLast(path)
	if err2 != nil {
		return err2
	}
	fs.alloc.markFree(e.ptrA)
	fs.alloc.markFree(e.ptrB)
	return fs.removeEntry(pairA, pairB, name)
}

func splitLast(path string) (string, string, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return "", "", ErrInval
	}
	return "/" + strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1], nil
}

// Remove deletes the file at path, freeing its data chain.
func (fs *FS) Remove(path string) error {
	e, pairA, pairB, err := fs.lookup(path)
	if err != nil {
		return err
	}
	if e.etype != entryFile {
		return ErrIsDir
	}
	if e.ptrA != invalidBlock {
		blocks, err := fs.chainBlocks(e.ptrA, e.ptrB)
		if err != nil {
			return err
		}
		for _, b := range blocks {
			fs.alloc.markFree(b)
		}
	}
	_, name, err2 := splitLast(path)
	if err2 != nil {
		return err2
	}
	return fs.removeEntry(pairA, pairB, name)
}

// Rename moves the entry at oldpath to newpath, which must not already
// exist: rename never silently overwrites a destination.
func (fs *FS) Rename(oldpath, newpath string) error {
	e, srcA, srcB, err := fs.lookup(oldpath)
	if err != nil {
		return err
	}
	dstA, dstB, newName, err := fs.resolveParent(newpath)
	if err != nil {
		return err
	}
	moved := e
	moved.name = newName
	if err := fs.insertEntry(dstA, dstB, moved); err != nil {
		return err
	}
	_, oldName, err2 := splitLast(oldpath)
	if err2 != nil {
		return err2
	}
	return fs.removeEntry(srcA, srcB, oldName)
}

// Stat reports whether path is a directory and its size.
func (fs *FS) Stat(path string) (isDir bool, size uint32, err error) {
	e, _, _, err := fs.lookup(path)
	if err != nil {
		return false, 0, err
	}
	if e.etype == entryDir {
		return true, 0, nil
	}
	return false, e.ptrB, nil
}

// DirEntry is one name exposed by Readdir, the engine's equivalent of the
// FAT engine's FileInfo for directory iteration.
type DirEntry struct {
	Name  string
	IsDir bool
}

// Readdir returns the names and kinds of path's immediate children.
func (fs *FS) Readdir(path string) ([]DirEntry, error) {
	e, _, _, err := fs.lookup(path)
	if err != nil {
		return nil, err
	}
	if e.etype != entryDir {
		return nil, ErrNotDir
	}
	entries, _, err := fs.readDir(e.ptrA, e.ptrB)
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, len(entries))
	for i, e := range entries {
		out[i] = DirEntry{Name: e.name, IsDir: e.etype == entryDir}
	}
	return out, nil
}

// Create makes a new, empty file at path (truncating if it already
// exists), returning a writer to append its content.
func (fs *FS) Create(path string) (*fileWriter, error) {
	pairA, pairB, name, err := fs.resolveParent(path)
	if err != nil {
		return nil, err
	}
	entries, _, err := fs.readDir(pairA, pairB)
	if err != nil {
		return nil, err
	}
	if e, _, ok := findEntry(entries, name); ok {
		if e.etype != entryFile {
			return nil, ErrIsDir
		}
		if e.ptrA != invalidBlock {
			blocks, err := fs.chainBlocks(e.ptrA, e.ptrB)
			if err != nil {
				return nil, err
			}
			for _, b := range blocks {
				fs.alloc.markFree(b)
			}
		}
	}
	return newFileWriter(fs), nil
}

// CommitFile records the finished write's chain head/size as name's entry
// in its parent directory, creating or replacing as needed.
func (fs *FS) CommitFile(path string, head, size uint32) error {
	pairA, pairB, name, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	entry := dirEntry{etype: entryFile, name: name, ptrA: head, ptrB: size}
	entries, _, err := fs.readDir(pairA, pairB)
	if err != nil {
		return err
	}
	if _, _, ok := findEntry(entries, name); ok {
		return fs.replaceEntry(pairA, pairB, entry)
	}
	return fs.insertEntry(pairA, pairB, entry)
}

// Open returns a reader over the file's full content.
func (fs *FS) Open(path string) (*fileReader, uint32, error) {
	e, _, _, err := fs.lookup(path)
	if err != nil {
		return nil, 0, err
	}
	if e.etype != entryFile {
		return nil, 0, ErrIsDir
	}
	r, err := newFileReader(fs, e.ptrA, e.ptrB)
	return r, e.ptrB, err
}
