package lfs

import (
	"context"
	"strings"
)

// Open flags, mirroring the subset of POSIX open(2) flags this
// filesystem actually needs.
const (
	OReadOnly  = 0x0
	OWriteOnly = 0x1
	OReadWrite = 0x2
	OCreate    = 0x100
)

// Handle is an open file or directory, positioned for sequential or
// random access.
type Handle struct {
	fs    *Filesystem
	ino   Inode
	flags int
	pos   int64
}

func splitPath(path string) []string {
	var out []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// RootHandle opens the root directory.
func (fs *Filesystem) RootHandle(ctx context.Context) (*Handle, error) {
	root, err := fs.loadInode(ctx, rootInodeNum)
	if err != nil {
		return nil, err
	}
	return &Handle{fs: fs, ino: root}, nil
}

// resolveParent walks every component but the last, returning the parent
// directory's inode and the leaf name.
func (fs *Filesystem) resolveParent(ctx context.Context, path string) (Inode, string, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return Inode{}, "", ErrInvalidArg
	}
	cur, err := fs.loadInode(ctx, rootInodeNum)
	if err != nil {
		return Inode{}, "", err
	}
	for _, comp := range parts[:len(parts)-1] {
		if cur.Mode != ModeDirectory {
			return Inode{}, "", ErrNotDirectory
		}
		id, found, err := fs.dirLookup(ctx, &cur, comp)
		if err != nil {
			return Inode{}, "", err
		}
		if !found {
			return Inode{}, "", ErrNotFound
		}
		cur, err = fs.loadInode(ctx, id)
		if err != nil {
			return Inode{}, "", err
		}
	}
	return cur, parts[len(parts)-1], nil
}

// Open resolves path, optionally creating a regular file when O_CREAT is
// set and no entry exists.
func (fs *Filesystem) Open(ctx context.Context, path string, flags int, mode InodeMode) (*Handle, error) {
	parent, leaf, err := fs.resolveParent(ctx, path)
	if err != nil {
		return nil, err
	}
	if parent.Mode != ModeDirectory {
		return nil, ErrNotDirectory
	}

	id, found, err := fs.dirLookup(ctx, &parent, leaf)
	if err != nil {
		return nil, err
	}
	if found {
		ino, err := fs.loadInode(ctx, id)
		if err != nil {
			return nil, err
		}
		return &Handle{fs: fs, ino: ino, flags: flags}, nil
	}

	if flags&OCreate == 0 {
		return nil, ErrNotFound
	}
	if mode == 0 {
		mode = ModeRegular
	}

	newID, err := fs.allocateInodeID()
	if err != nil {
		return nil, err
	}
	ino := newInode(mode, newID, parent.InodeNum)
	ino.updateCRC()

	block, err := fs.allocateBlock()
	if err != nil {
		return nil, err
	}
	if err := fs.writeInodeBlock(ctx, block, &ino); err != nil {
		fs.markBlockInvalid(block)
		return nil, err
	}
	fs.nat[newID] = NATEntry{BlockAddr: block, Version: 1, Type: NodeInode}
	fs.natDirty = true

	dtype := uint8(DirentFile)
	if mode == ModeDirectory {
		dtype = DirentDir
	}
	if err := fs.dirAdd(ctx, &parent, leaf, newID, dtype); err != nil {
		return nil, err
	}

	return &Handle{fs: fs, ino: ino, flags: flags}, nil
}

// Mkdir creates an empty directory at path, failing if anything already
// exists there (unlike Open+O_CREAT, mkdir has no reuse-existing mode).
func (fs *Filesystem) Mkdir(ctx context.Context, path string) error {
	parent, leaf, err := fs.resolveParent(ctx, path)
	if err != nil {
		return err
	}
	if parent.Mode != ModeDirectory {
		return ErrNotDirectory
	}
	if _, found, err := fs.dirLookup(ctx, &parent, leaf); err != nil {
		return err
	} else if found {
		return ErrExists
	}

	_, err = fs.Open(ctx, path, OReadWrite|OCreate, ModeDirectory)
	return err
}

// OpenDir opens path, failing unless it names a directory.
func (fs *Filesystem) OpenDir(ctx context.Context, path string) (*Handle, error) {
	if len(splitPath(path)) == 0 {
		return fs.RootHandle(ctx)
	}
	h, err := fs.Open(ctx, path, OReadOnly, 0)
	if err != nil {
		return nil, err
	}
	if h.ino.Mode != ModeDirectory {
		return nil, ErrNotDirectory
	}
	return h, nil
}

// ReadDir lists the directory handle's live entries.
func (fs *Filesystem) ReadDir(ctx context.Context, h *Handle) ([]Dirent, error) {
	if h.ino.Mode != ModeDirectory {
		return nil, ErrNotDirectory
	}
	return fs.ReadDirEntries(ctx, &h.ino)
}

// Size reports the handle's current inode size.
func (h *Handle) Size() int64 { return int64(h.ino.Size) }

// InodeNum reports the handle's inode number.
func (h *Handle) InodeNum() uint32 { return h.ino.InodeNum }

// Seek repositions pos per whence (0=start, 1=current, 2=end), matching
// io.Seeker semantics.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case 0:
		base = 0
	case 1:
		base = h.pos
	case 2:
		base = int64(h.ino.Size)
	default:
		return 0, ErrInvalidArg
	}
	newPos := base + offset
	if newPos < 0 {
		return 0, ErrInvalidArg
	}
	h.pos = newPos
	return h.pos, nil
}

// Read copies up to len(buf) bytes starting at the handle's current
// position, following direct block pointers only: logical blocks 10 and
// beyond are unsupported, never silently truncated without error.
func (h *Handle) Read(ctx context.Context, buf []byte) (int, error) {
	if h.ino.Mode != ModeRegular {
		return 0, ErrNotDirectory
	}
	remaining := int64(h.ino.Size) - h.pos
	if remaining <= 0 {
		return 0, nil
	}
	toRead := int64(len(buf))
	if toRead > remaining {
		toRead = remaining
	}

	var total int
	for int64(total) < toRead {
		abs := h.pos + int64(total)
		lb := uint32(abs / blockBytes)
		off := int(abs % blockBytes)
		addr, err := bmap(&h.ino, lb)
		if err == ErrUnsupported {
			return total, err
		}
		n := int(toRead) - total
		if blockBytes-off < n {
			n = blockBytes - off
		}
		if err != nil {
			for i := 0; i < n; i++ {
				buf[total+i] = 0
			}
			total += n
			continue
		}
		var block [blockBytes]byte
		if err := h.fs.backend.ReadBlock(ctx, addr, &block); err != nil {
			return total, ErrIO
		}
		copy(buf[total:total+n], block[off:off+n])
		total += n
	}
	h.pos += int64(total)
	return total, nil
}

// Write copies buf into the file starting at the handle's current
// position, extending it with fresh blocks as needed and reclaiming any
// block version it supersedes.
func (h *Handle) Write(ctx context.Context, buf []byte) (int, error) {
	if h.ino.Mode != ModeRegular {
		return 0, ErrNotDirectory
	}
	fs := h.fs
	var total int
	for total < len(buf) {
		abs := h.pos + int64(total)
		lb := uint32(abs / blockBytes)
		off := int(abs % blockBytes)
		if lb >= directPointers {
			return total, ErrUnsupported
		}
		n := len(buf) - total
		if blockBytes-off < n {
			n = blockBytes - off
		}

		var block [blockBytes]byte
		if oldAddr, err := bmap(&h.ino, lb); err == nil {
			if err := fs.backend.ReadBlock(ctx, oldAddr, &block); err != nil {
				return total, ErrIO
			}
		}
		copy(block[off:off+n], buf[total:total+n])

		newAddr, err := fs.allocateBlock()
		if err != nil {
			return total, err
		}
		if err := fs.backend.WriteBlock(ctx, newAddr, &block); err != nil {
			fs.markBlockInvalid(newAddr)
			return total, ErrIO
		}
		if err := fs.setDirect(&h.ino, lb, newAddr); err != nil {
			return total, err
		}
		total += n
	}

	h.pos += int64(total)
	if uint64(h.pos) > h.ino.Size {
		h.ino.Size = uint64(h.pos)
	}
	if err := fs.storeInode(ctx, &h.ino); err != nil {
		return total, err
	}
	return total, nil
}

// Close flushes nothing extra: every mutating call already commits its
// own inode version, so Close is a no-op kept for symmetry with a
// conventional file-handle API.
func (h *Handle) Close(ctx context.Context) error { return nil }

// Unlink always fails: directory-entry removal and inode reclamation are
// out of scope for this filesystem's first cut, so callers get an
// explicit, typed error rather than silent data loss.
func (fs *Filesystem) Unlink(ctx context.Context, path string) error {
	return ErrUnsupported
}
