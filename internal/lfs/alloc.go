package lfs

import "context"

// findFirstFreeDataBlockLocked scans the main area for the first block not
// already marked allocated, the filesystem's first-free-block allocation
// policy. mainStart/totalSegments are passed explicitly so Format can call
// it before fs.sb is populated.
func (fs *Filesystem) findFirstFreeDataBlockLocked(mainStart, totalSegments uint32) (uint32, bool) {
	for seg := uint32(0); seg < totalSegments; seg++ {
		segStart := seg * segmentBlocks
		if segStart < mainStart {
			continue
		}
		if fs.sit[seg].ValidCount >= segmentBlocks {
			continue
		}
		for i := uint32(0); i < segmentBlocks; i++ {
			b := segStart + i
			if !fs.allocated[b] {
				return b, true
			}
		}
	}
	return 0, false
}

// findFirstFreeDataBlock is the steady-state (post-mount) allocator entry
// point.
func (fs *Filesystem) findFirstFreeDataBlock() (uint32, error) {
	b, ok := fs.findFirstFreeDataBlockLocked(fs.sb.MainStart, fs.sb.TotalSegments)
	if !ok {
		return 0, ErrNoSpace
	}
	return b, nil
}

// markBlockValidAt records block b as allocated, incrementing its
// segment's SIT valid-block count. mainStart is accepted for symmetry
// with findFirstFreeDataBlockLocked but unused; the block address alone
// determines its segment.
func (fs *Filesystem) markBlockValidAt(b, mainStart uint32) error {
	seg := b / segmentBlocks
	if seg >= uint32(len(fs.sit)) {
		return ErrInvalidBlock
	}
	if fs.allocated == nil {
		fs.allocated = make(map[uint32]bool)
	}
	if fs.allocated[b] {
		return nil
	}
	fs.allocated[b] = true
	fs.sit[seg].ValidCount++
	fs.sitDirty = true
	if fs.freeBlocks > 0 {
		fs.freeBlocks--
	}
	return nil
}

// markBlockInvalid releases a previously valid block back to its
// segment's free pool, used when a write-once update supersedes an old
// block version: old versions are reclaimed, not overwritten in place.
func (fs *Filesystem) markBlockInvalid(b uint32) {
	if !fs.allocated[b] {
		return
	}
	seg := b / segmentBlocks
	if seg >= uint32(len(fs.sit)) {
		return
	}
	if fs.sit[seg].ValidCount > 0 {
		fs.sit[seg].ValidCount--
	}
	fs.sitDirty = true
	delete(fs.allocated, b)
	fs.freeBlocks++
}

// allocateBlock finds and marks valid the next free block in the main
// area.
func (fs *Filesystem) allocateBlock() (uint32, error) {
	b, err := fs.findFirstFreeDataBlock()
	if err != nil {
		return 0, err
	}
	if err := fs.markBlockValidAt(b, fs.sb.MainStart); err != nil {
		return 0, err
	}
	return b, nil
}

// rebuildAllocationMap reconstructs fs.allocated after Mount by walking
// the NAT for live inode blocks, then each inode's direct pointers. SIT
// only tracks per-segment counts, so the exact in-use set is recovered
// from the node graph, the same source of truth a real fsck would use.
func (fs *Filesystem) rebuildAllocationMap(ctx context.Context) error {
	fs.allocated = make(map[uint32]bool)
	for b := uint32(0); b < fs.sb.MainStart; b++ {
		fs.allocated[b] = true
	}
	for id, e := range fs.nat {
		if e.BlockAddr == invalidBlock {
			continue
		}
		fs.allocated[e.BlockAddr] = true
		if e.Type != NodeInode {
			continue
		}
		ino, err := fs.readInodeBlock(ctx, uint32(id), e.BlockAddr)
		if err != nil {
			return err
		}
		for _, d := range ino.Direct {
			if d != invalidBlock {
				fs.allocated[d] = true
			}
		}
	}
	return nil
}

func (fs *Filesystem) writeInodeBlock(ctx context.Context, addr uint32, ino *Inode) error {
	data := ino.MarshalBlock()
	if err := fs.backend.WriteBlock(ctx, addr, &data); err != nil {
		return ErrIO
	}
	return nil
}

// readInodeBlock reads and validates the inode at addr, asserting that it
// belongs to id: a NAT entry mis-pointed at another (CRC-valid) inode's
// block must be rejected rather than returned silently.
func (fs *Filesystem) readInodeBlock(ctx context.Context, id, addr uint32) (Inode, error) {
	var buf [blockBytes]byte
	if err := fs.backend.ReadBlock(ctx, addr, &buf); err != nil {
		return Inode{}, ErrIO
	}
	ino := unmarshalInode(buf[:])
	if !ino.computeCRCMatches() {
		return Inode{}, ErrCorrupted
	}
	if ino.InodeNum != id {
		return Inode{}, ErrCorrupted
	}
	return ino, nil
}

func (i Inode) computeCRCMatches() bool {
	tmp := i
	tmp.CRC32 = 0
	block := tmp.MarshalBlock()
	return i.CRC32 == crcOf(block[:])
}
