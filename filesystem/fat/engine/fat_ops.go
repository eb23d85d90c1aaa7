package fat

import (
	"encoding/binary"
	"log/slog"
)

// f_unlink removes a file or an empty directory.
func (fsys *FS) f_unlink(path string) (fr fileResult) {
	fsys.trace("f_unlink", slog.String("path", path))
	if fsys.fstype == fstypeExFAT {
		return frUnsupported
	} else if fsys.perm&ModeWrite == 0 {
		return frWriteProtected
	}
	var dj dir
	dj.obj.fs = fsys
	fr = dj.follow_path(path + "\x00")
	if fr == frOK && dj.fn[nsFLAG]&(nsDOT|nsNONAME) != 0 {
		fr = frInvalidName // Cannot remove "." entries or the volume root.
	}
	if fr == frOK && dj.obj.attr&amRDO != 0 {
		fr = frDenied
	}
	if fr != frOK {
		return fr
	}

	dptr := dj.dptr
	entSect := fsys.winsect
	clst := fsys.ld_clust(dj.dir)
	isDir := dj.obj.attr&amDIR != 0

	if isDir && clst != 0 {
		var sdj dir
		sdj.obj.fs = fsys
		sdj.obj.sclust = clst
		fr = sdj.sdi(2 * sizeDirEntry) // Skip "." and "..".
		if fr == frOK {
			fr = sdj.read(false) // First live entry, if any.
			if fr == frOK {
				return frDenied // Not empty.
			} else if fr == frNoFile {
				fr = frOK
			}
		}
		if fr != frOK {
			return fr
		}
	}

	// The emptiness scan above may have reloaded the shared window; bring
	// it back to the entry's own sector before mutating it.
	fr = dj.sdi(dptr)
	if fr != frOK {
		return fr
	}
	fr = fsys.move_window(dj.sect)
	if fr != frOK {
		return fr
	}
	dj.dir[dirNameOff] = mskDDEM
	fsys.wflag = 1
	fr = fsys.sync()
	if fr != frOK {
		return fr
	}

	if clst != 0 {
		fr = fsys.move_window(entSect)
		if fr != frOK {
			return fr
		}
		fr = dj.obj.remove_chain(clst, 0)
		if fr == frOK {
			fr = fsys.sync()
		}
	}
	return fr
}

// f_mkdir creates a new directory.
func (fsys *FS) f_mkdir(path string) (fr fileResult) {
	fsys.trace("f_mkdir", slog.String("path", path))
	if fsys.fstype == fstypeExFAT {
		return frUnsupported
	} else if fsys.perm&ModeWrite == 0 {
		return frWriteProtected
	}
	var dj dir
	dj.obj.fs = fsys
	fr = dj.follow_path(path + "\x00")
	if fr == frOK {
		return frExist
	}
	if fr == frNoFile && dj.fn[nsFLAG]&nsDOT != 0 {
		return frInvalidName
	}
	if fr != frNoFile {
		return fr
	}

	var obj objid
	obj.fs = fsys
	dcl := obj.create_chain(0)
	switch dcl {
	case 0:
		return frDenied
	case 1:
		return frIntErr
	case maxu32:
		return frDiskErr
	}
	tm := fsys.time()

	fr = fsys.dir_clear(dcl)
	if fr == frOK {
		// First entry: "." pointing at the new directory itself.
		copy(fsys.win[dirNameOff:], ".          ")
		fsys.win[dirAttrOff] = amDIR
		binary.LittleEndian.PutUint32(fsys.win[dirModTimeOff:], tm)
		fsys.st_clust(fsys.win[:], dcl)

		// Second entry: ".." pointing at the parent directory.
		copy(fsys.win[sizeDirEntry:], fsys.win[:sizeDirEntry])
		copy(fsys.win[sizeDirEntry+dirNameOff:], "..         ")
		pcl := dj.obj.sclust
		if fsys.fstype >= fstypeFAT32 && pcl == uint32(fsys.dirbase) {
			pcl = 0
		}
		fsys.st_clust(fsys.win[sizeDirEntry:], pcl)

		fsys.wflag = 1
		fr = fsys.sync_window()
	}

	if fr == frOK {
		fr = dj.register()
	}
	if fr == frOK {
		dj.dir[dirAttrOff] = amDIR
		binary.LittleEndian.PutUint32(dj.dir[dirModTimeOff:], tm)
		fsys.st_clust(dj.dir, dcl)
		fsys.wflag = 1
	}
	if fr == frOK {
		fr = fsys.sync()
	} else {
		obj.sclust = dcl
		obj.remove_chain(dcl, 0)
	}
	return fr
}

// f_rename moves/renames a directory entry within the same volume.
func (fsys *FS) f_rename(oldpath, newpath string) (fr fileResult) {
	fsys.trace("f_rename", slog.String("old", oldpath), slog.String("new", newpath))
	if fsys.fstype == fstypeExFAT {
		return frUnsupported
	} else if fsys.perm&ModeWrite == 0 {
		return frWriteProtected
	}

	var djo dir
	djo.obj.fs = fsys
	fr = djo.follow_path(oldpath + "\x00")
	if fr == frOK && djo.fn[nsFLAG]&(nsDOT|nsNONAME) != 0 {
		fr = frInvalidName
	}
	if fr != frOK {
		return fr
	}
	var saved [sizeDirEntry]byte
	copy(saved[:], djo.dir[:sizeDirEntry])
	oldSect := fsys.winsect

	var djn dir
	djn.obj.fs = fsys
	fr = djn.follow_path(newpath + "\x00")
	if fr == frOK {
		return frExist
	}
	if fr != frNoFile {
		return fr
	}
	if djn.fn[nsFLAG]&nsDOT != 0 {
		return frInvalidName
	}

	fr = djn.register()
	if fr != frOK {
		return fr
	}
	// register() leaves the window positioned at the new entry's sector.
	copy(djn.dir[dirAttrOff:sizeDirEntry], saved[dirAttrOff:sizeDirEntry])
	fsys.wflag = 1
	fr = fsys.sync_window()
	if fr != frOK {
		return fr
	}

	fr = fsys.move_window(oldSect)
	if fr != frOK {
		return fr
	}
	djo.dir[dirNameOff] = mskDDEM
	fsys.wflag = 1
	return fsys.sync()
}

// f_stat fills fno with the attributes of the object at path.
func (fsys *FS) f_stat(path string, fno *FileInfo) (fr fileResult) {
	fsys.trace("f_stat", slog.String("path", path))
	if fsys.fstype == fstypeExFAT {
		return frUnsupported
	}
	var dj dir
	dj.obj.fs = fsys
	fr = dj.follow_path(path + "\x00")
	if fr != frOK {
		return fr
	}
	if fno == nil {
		return frOK
	}
	if dj.fn[nsFLAG]&nsNONAME != 0 {
		// Volume root: synthesize an entry, there is no directory record for it.
		*fno = FileInfo{fattrib: amDIR}
		fno.fname[0] = '/'
		fno.fname[1] = 0
		return frOK
	}
	dj.get_fileinfo(fno)
	return frOK
}

// f_lseek moves the file's read/write pointer, allocating clusters along
// the way if the file is open for writing and ofs extends past EOF.
func (fp *File) f_lseek(ofs int64) (fr fileResult) {
	fsys := fp.obj.fs
	fsys.trace("f_lseek", slog.Int64("ofs", ofs))
	if fsys.fstype == fstypeExFAT {
		return frUnsupported
	}
	if ofs < 0 {
		return frInvalidParameter
	}
	if ofs > fp.obj.objsize && fp.flag&faWrite == 0 {
		ofs = fp.obj.objsize
	}
	if fp.flag&faDIRTY != 0 {
		if fsys.disk_write(fp.buf[:], fp.sect, 1) != drOK {
			return fp.abort(frDiskErr)
		}
		fp.flag &^= faDIRTY
	}

	fp.fptr = 0
	fp.sect = 0
	clst := fp.obj.sclust
	if ofs > 0 {
		bcs := int64(fsys.csize) * int64(fsys.ssize)
		remaining := ofs
		for remaining > bcs {
			if clst == 0 {
				if fp.flag&faWrite == 0 {
					break // Seeking into a hole while reading: clip.
				}
				nc := fp.obj.create_chain(clst)
				if nc == 0 || nc == 1 || nc == maxu32 {
					break // Disk full or error: clip at current position.
				}
				clst = nc
				if fp.obj.sclust == 0 {
					fp.obj.sclust = clst
				}
			} else {
				nc := fp.obj.clusterstat(clst)
				if nc == 1 {
					return fp.abort(frIntErr)
				} else if nc == maxu32 {
					return fp.abort(frDiskErr)
				}
				clst = nc
			}
			remaining -= bcs
			fp.fptr += bcs
		}
		fp.clust = clst
		fp.fptr += remaining

		if clst != 0 && fsys.modSS(uint32(fp.fptr)) != 0 {
			sect := fsys.clst2sect(clst)
			if sect == 0 {
				return fp.abort(frIntErr)
			}
			sect += lba(((fp.fptr - 1) / int64(fsys.ssize)) % int64(fsys.csize))
			if fsys.disk_read(fp.buf[:], sect, 1) != drOK {
				return fp.abort(frDiskErr)
			}
			fp.sect = sect
		}
	}
	if fp.fptr > fp.obj.objsize && fp.flag&faWrite != 0 {
		fp.obj.objsize = fp.fptr
		fp.flag |= faMODIFIED
	}
	return frOK
}

// f_truncate truncates the file at the current read/write pointer.
func (fp *File) f_truncate() (fr fileResult) {
	fsys := fp.obj.fs
	fsys.trace("f_truncate")
	if fsys.fstype == fstypeExFAT {
		return frUnsupported
	} else if fp.flag&faWrite == 0 {
		return frDenied
	}
	if fp.fptr >= fp.obj.objsize {
		return frOK
	}

	if fp.fptr == 0 {
		fr = fp.obj.remove_chain(fp.obj.sclust, 0)
		fp.obj.sclust = 0
	} else {
		ncl := fp.obj.clusterstat(fp.clust)
		if ncl == maxu32 {
			fr = frDiskErr
		} else if ncl == 1 {
			fr = frIntErr
		} else if ncl < fsys.n_fatent {
			fr = fsys.put_clusterstat(fp.clust, maxu32)
			if fr == frOK {
				fr = fp.obj.remove_chain(ncl, fp.clust)
			}
		}
	}
	fp.obj.objsize = fp.fptr
	fp.flag |= faMODIFIED
	if fr == frOK && fp.flag&faDIRTY != 0 {
		if fsys.disk_write(fp.buf[:], fp.sect, 1) != drOK {
			fr = frDiskErr
		} else {
			fp.flag &^= faDIRTY
		}
	}
	if fr != frOK {
		return fp.abort(fr)
	}
	return frOK
}
