package lfs

import "context"

// readDirBlock reads one directory data block.
func (fs *Filesystem) readDirBlock(ctx context.Context, addr uint32) ([blockBytes]byte, error) {
	var buf [blockBytes]byte
	if err := fs.backend.ReadBlock(ctx, addr, &buf); err != nil {
		return buf, ErrIO
	}
	return buf, nil
}

// writeDirBlock writes a directory block through the same write-once
// discipline as inodes: a fresh physical block is allocated, the old one
// (if any) is reclaimed, and the inode's direct pointer is redirected.
// The caller still owns calling storeInode once all of its block edits
// for this operation are done.
func (fs *Filesystem) writeDirBlock(ctx context.Context, ino *Inode, logicalBlock uint32, data [blockBytes]byte) error {
	newAddr, err := fs.allocateBlock()
	if err != nil {
		return err
	}
	if err := fs.backend.WriteBlock(ctx, newAddr, &data); err != nil {
		fs.markBlockInvalid(newAddr)
		return ErrIO
	}
	return fs.setDirect(ino, logicalBlock, newAddr)
}

// dirLookup scans every allocated direct block of a directory inode for
// an exact (hash then byte-compare) name match.
func (fs *Filesystem) dirLookup(ctx context.Context, dirIno *Inode, name string) (uint32, bool, error) {
	targetHash := djb2(name)
	for lb := uint32(0); lb < directPointers; lb++ {
		addr := dirIno.Direct[lb]
		if addr == invalidBlock {
			continue
		}
		data, err := fs.readDirBlock(ctx, addr)
		if err != nil {
			return 0, false, err
		}
		off := 0
		for {
			d, ok := unmarshalDirentAt(data[:], off)
			if !ok {
				break
			}
			if d.NameHash == targetHash && d.Name == name {
				return d.InodeNum, true, nil
			}
			off += int(d.EntrySize)
			if off >= blockBytes {
				break
			}
		}
	}
	return 0, false, nil
}

// dirAdd inserts a new packed entry into dirIno, reusing trailing block
// slack or an oversized existing entry before allocating a fresh block,
// following the packed-entry, zero-terminated directory format.
func (fs *Filesystem) dirAdd(ctx context.Context, dirIno *Inode, name string, inodeNum uint32, dtype uint8) error {
	if len(name) == 0 || len(name) > 255 {
		return ErrInvalidArg
	}
	if _, found, err := fs.dirLookup(ctx, dirIno, name); err != nil {
		return err
	} else if found {
		return ErrExists
	}

	needed := direntHeaderSize + len(name)
	newEntry := Dirent{
		InodeNum: inodeNum,
		NameLen:  uint8(len(name)),
		Type:     dtype,
		NameHash: djb2(name),
		Name:     name,
	}

	var lastUsedLB uint32 = 0
	for lb := uint32(0); lb < directPointers; lb++ {
		addr := dirIno.Direct[lb]
		if addr == invalidBlock {
			continue
		}
		lastUsedLB = lb
		data, err := fs.readDirBlock(ctx, addr)
		if err != nil {
			return err
		}

		off := 0
		lastEnd := 0
		for {
			d, ok := unmarshalDirentAt(data[:], off)
			if !ok {
				break
			}
			actual := direntHeaderSize + int(d.NameLen)
			if slack := int(d.EntrySize) - actual; slack >= needed {
				d.EntrySize = uint16(actual)
				copy(data[off:], marshalDirent(d))
				newEntry.EntrySize = uint16(slack)
				copy(data[off+actual:], marshalDirent(newEntry))
				if err := fs.writeDirBlock(ctx, dirIno, lb, data); err != nil {
					return err
				}
				return fs.finishDirAdd(ctx, dirIno, lb)
			}
			off += int(d.EntrySize)
			lastEnd = off
			if off >= blockBytes {
				break
			}
		}

		if blockBytes-lastEnd >= needed {
			newEntry.EntrySize = uint16(blockBytes - lastEnd)
			copy(data[lastEnd:], marshalDirent(newEntry))
			if err := fs.writeDirBlock(ctx, dirIno, lb, data); err != nil {
				return err
			}
			return fs.finishDirAdd(ctx, dirIno, lb)
		}
	}

	freeLB := uint32(0)
	foundSlot := false
	for lb := lastUsedLB; lb < directPointers; lb++ {
		if dirIno.Direct[lb] == invalidBlock {
			freeLB = lb
			foundSlot = true
			break
		}
	}
	if !foundSlot {
		for lb := uint32(0); lb < directPointers; lb++ {
			if dirIno.Direct[lb] == invalidBlock {
				freeLB = lb
				foundSlot = true
				break
			}
		}
	}
	if !foundSlot {
		return ErrUnsupported
	}

	var data [blockBytes]byte
	newEntry.EntrySize = blockBytes
	copy(data[:], marshalDirent(newEntry))
	if err := fs.writeDirBlock(ctx, dirIno, freeLB, data); err != nil {
		return err
	}
	return fs.finishDirAdd(ctx, dirIno, freeLB)
}

// finishDirAdd grows the directory's reported size following the
// size = max(size, (last_logical_block+1)*512) rule, then commits the
// inode.
func (fs *Filesystem) finishDirAdd(ctx context.Context, dirIno *Inode, touchedLB uint32) error {
	grown := uint64(touchedLB+1) * blockBytes
	if grown > dirIno.Size {
		dirIno.Size = grown
	}
	return fs.storeInode(ctx, dirIno)
}

// ReadDirEntries lists every live packed entry in a directory inode.
func (fs *Filesystem) ReadDirEntries(ctx context.Context, dirIno *Inode) ([]Dirent, error) {
	var out []Dirent
	for lb := uint32(0); lb < directPointers; lb++ {
		addr := dirIno.Direct[lb]
		if addr == invalidBlock {
			continue
		}
		data, err := fs.readDirBlock(ctx, addr)
		if err != nil {
			return nil, err
		}
		off := 0
		for {
			d, ok := unmarshalDirentAt(data[:], off)
			if !ok {
				break
			}
			out = append(out, d)
			off += int(d.EntrySize)
			if off >= blockBytes {
				break
			}
		}
	}
	return out, nil
}
