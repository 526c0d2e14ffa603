// Package lfs implements the log-structured, F2FS-inspired filesystem:
// superblock, dual checkpoints, NAT, SIT, inodes, and directories over a
// block.Backend. Filesystem state is owned by a single mount and is not
// internally serialised; callers must fence concurrent access themselves.
package lfs

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/littleos-dev/littleos/internal/block"
	"github.com/littleos-dev/littleos/internal/clockutil"
)

func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}

// layout is the static geometry derived from total_blocks at format time.
type layout struct {
	totalInodes   uint32
	natStart      uint32
	natBlocks     uint32
	sitStart      uint32
	sitBlocks     uint32
	totalSegments uint32
	mainStart     uint32
}

func computeLayout(totalBlocks uint32) layout {
	l := layout{totalInodes: defaultTotalInodes}
	l.natStart = fixedMetadataBlocks
	l.natBlocks = ceilDiv(l.totalInodes*natEntrySize, blockBytes)
	l.sitStart = l.natStart + l.natBlocks
	l.totalSegments = ceilDiv(totalBlocks, segmentBlocks)
	l.sitBlocks = ceilDiv(l.totalSegments*sitEntrySize, blockBytes)
	mainStart := l.sitStart + l.sitBlocks
	// keep the main area segment-aligned: divided into 4 KiB segments of
	// 8 blocks.
	l.mainStart = ceilDiv(mainStart, segmentBlocks) * segmentBlocks
	return l
}

// Filesystem is one mounted log-structured filesystem instance.
type Filesystem struct {
	backend block.Backend
	clock   clockutil.Clock

	sb Superblock

	cp         [2]Checkpoint
	activeSlot int

	nat      []NATEntry
	sit      []SITEntry
	natDirty bool
	sitDirty bool
	sbDirty  bool

	freeBlocks uint32
	mounted    bool

	allocated map[uint32]bool

	// opLock is the serialisation guard callers use to fence concurrent
	// operations, since the filesystem itself does not lock internally.
	// A weighted semaphore of 1 models the single external mutex a real
	// mount would need.
	opLock *semaphore.Weighted
}

// Lock acquires the filesystem's external operation guard, blocking until
// it is free or ctx is done. Callers that need to serialise a sequence of
// operations (e.g. a directory create followed by a write) should hold
// this across the whole sequence.
func (fs *Filesystem) Lock(ctx context.Context) error {
	return fs.opLock.Acquire(ctx, 1)
}

// Unlock releases the guard acquired by Lock.
func (fs *Filesystem) Unlock() {
	fs.opLock.Release(1)
}

// Format lays out a fresh device of totalBlocks blocks: superblock, dual
// checkpoints, NAT, SIT, and a materialised root directory inode.
func Format(ctx context.Context, backend block.Backend, clock clockutil.Clock, totalBlocks uint32) error {
	if totalBlocks < fixedMetadataBlocks+1 {
		return ErrInvalidArg
	}
	l := computeLayout(totalBlocks)
	if l.mainStart >= totalBlocks {
		return ErrNoSpace
	}

	nat := make([]NATEntry, l.totalInodes)
	for i := range nat {
		nat[i] = NATEntry{BlockAddr: invalidBlock, Type: NodeNone}
	}
	sit := make([]SITEntry, l.totalSegments)

	// every block in [0, main_start) is metadata and counted valid.
	for b := uint32(0); b < l.mainStart; b++ {
		seg := b / segmentBlocks
		sit[seg].ValidCount++
	}

	fs := &Filesystem{
		backend: backend,
		clock:   clock,
		nat:     nat,
		sit:     sit,
	}

	rootBlock, ok := fs.findFirstFreeDataBlockLocked(l.mainStart, l.totalSegments)
	if !ok {
		return ErrNoSpace
	}
	root := newInode(ModeDirectory, rootInodeNum, rootInodeNum)
	root.updateCRC()
	if err := fs.writeInodeBlock(ctx, rootBlock, &root); err != nil {
		return err
	}
	if err := fs.markBlockValidAt(rootBlock, l.mainStart); err != nil {
		return err
	}
	nat[rootInodeNum] = NATEntry{BlockAddr: rootBlock, Version: 1, Type: NodeInode}

	freeBlocks := totalBlocks - l.mainStart - 1

	now := clock.NowMs()
	rootSeg := rootBlock / segmentBlocks
	cpTemplate := Checkpoint{
		FreeBlocks:     freeBlocks,
		NextFreeNodeID: rootInodeNum + 1,
		ActiveSegNode:  rootSeg,
		ActiveSegInode: rootSeg,
		ActiveSegData:  rootSeg,
		Timestamp:      now,
	}
	cp0 := cpTemplate
	cp0.CheckpointNum = 1
	cp0.updateCRC()
	cp1 := cpTemplate
	cp1.CheckpointNum = 0
	cp1.updateCRC()

	sb := Superblock{
		Magic:         magicSuperblock,
		Version:       fsVersion,
		BlockSize:     blockBytes,
		SegmentSize:   segmentBlocks * blockBytes,
		TotalBlocks:   totalBlocks,
		TotalSegments: l.totalSegments,
		TotalInodes:   l.totalInodes,
		RootInode:     rootInodeNum,
		NATStart:      l.natStart,
		NATBlocks:     l.natBlocks,
		SITStart:      l.sitStart,
		SITBlocks:     l.sitBlocks,
		MainStart:     l.mainStart,
		MountCount:    0,
		CreationTime:  now,
		LastSyncTime:  now,
	}
	sb.updateCRC()

	if err := writeBlock(ctx, backend, 0, sb.MarshalBlock()); err != nil {
		return err
	}
	if err := writeBlock(ctx, backend, 1, cp0.MarshalBlock()); err != nil {
		return err
	}
	if err := writeBlock(ctx, backend, 2, cp1.MarshalBlock()); err != nil {
		return err
	}
	fs.sb = sb
	fs.cp[0] = cp0
	fs.cp[1] = cp1
	fs.freeBlocks = freeBlocks
	if err := fs.writeAllNAT(ctx); err != nil {
		return err
	}
	if err := fs.writeAllSIT(ctx); err != nil {
		return err
	}
	return nil
}

func writeBlock(ctx context.Context, backend block.Backend, addr uint32, data [blockBytes]byte) error {
	return backend.WriteBlock(ctx, addr, &data)
}

func readBlock(ctx context.Context, backend block.Backend, addr uint32) ([blockBytes]byte, error) {
	var buf [blockBytes]byte
	if err := backend.ReadBlock(ctx, addr, &buf); err != nil {
		return buf, err
	}
	return buf, nil
}

// Mount reads and validates the superblock, picks the valid checkpoint
// slot with the higher checkpoint_num, and loads NAT/SIT into memory.
func Mount(ctx context.Context, backend block.Backend, clock clockutil.Clock) (*Filesystem, error) {
	sbBlock, err := readBlock(ctx, backend, 0)
	if err != nil {
		return nil, ErrIO
	}
	sb := unmarshalSuperblock(sbBlock[:])
	if sb.Magic != magicSuperblock || sb.Version != fsVersion || sb.BlockSize != blockBytes {
		return nil, ErrCorrupted
	}
	if !sb.validCRC() {
		return nil, ErrCorrupted
	}

	cp0Block, err := readBlock(ctx, backend, 1)
	if err != nil {
		return nil, ErrIO
	}
	cp1Block, err := readBlock(ctx, backend, 2)
	if err != nil {
		return nil, ErrIO
	}
	cp0 := unmarshalCheckpoint(cp0Block[:])
	cp1 := unmarshalCheckpoint(cp1Block[:])

	cp0Valid := cp0.validCRC()
	cp1Valid := cp1.validCRC()
	var activeSlot int
	switch {
	case cp0Valid && cp1Valid:
		if cp1.CheckpointNum > cp0.CheckpointNum {
			activeSlot = 1
		} else {
			activeSlot = 0
		}
	case cp0Valid:
		activeSlot = 0
	case cp1Valid:
		activeSlot = 1
	default:
		return nil, ErrCorrupted
	}

	fs := &Filesystem{backend: backend, clock: clock, sb: sb, cp: [2]Checkpoint{cp0, cp1}, activeSlot: activeSlot, opLock: semaphore.NewWeighted(1)}

	fs.nat = make([]NATEntry, sb.TotalInodes)
	entriesPerBlock := blockBytes / natEntrySize
	for i := uint32(0); i < sb.NATBlocks; i++ {
		b, err := readBlock(ctx, backend, sb.NATStart+i)
		if err != nil {
			return nil, ErrIO
		}
		for j := 0; j < entriesPerBlock; j++ {
			idx := i*uint32(entriesPerBlock) + uint32(j)
			if idx >= sb.TotalInodes {
				break
			}
			off := j * natEntrySize
			fs.nat[idx] = unmarshalNATEntry(b[off : off+natEntrySize])
		}
	}

	fs.sit = make([]SITEntry, sb.TotalSegments)
	sitPerBlock := blockBytes / sitEntrySize
	for i := uint32(0); i < sb.SITBlocks; i++ {
		b, err := readBlock(ctx, backend, sb.SITStart+i)
		if err != nil {
			return nil, ErrIO
		}
		for j := 0; j < sitPerBlock; j++ {
			idx := i*uint32(sitPerBlock) + uint32(j)
			if idx >= sb.TotalSegments {
				break
			}
			off := j * sitEntrySize
			fs.sit[idx] = unmarshalSITEntry(b[off : off+sitEntrySize])
		}
	}

	fs.freeBlocks = fs.cp[activeSlot].FreeBlocks
	if err := fs.rebuildAllocationMap(ctx); err != nil {
		return nil, err
	}
	fs.sb.MountCount++
	fs.sbDirty = true
	fs.mounted = true
	return fs, nil
}

func (fs *Filesystem) activeCheckpoint() Checkpoint { return fs.cp[fs.activeSlot] }

func (fs *Filesystem) writeAllNAT(ctx context.Context) error {
	entriesPerBlock := blockBytes / natEntrySize
	for i := uint32(0); i < fs.sb.NATBlocks; i++ {
		var buf [blockBytes]byte
		for j := 0; j < entriesPerBlock; j++ {
			idx := i*uint32(entriesPerBlock) + uint32(j)
			if idx >= uint32(len(fs.nat)) {
				break
			}
			e := marshalNATEntry(fs.nat[idx])
			copy(buf[j*natEntrySize:], e[:])
		}
		if err := writeBlock(ctx, fs.backend, fs.sb.NATStart+i, buf); err != nil {
			return ErrIO
		}
	}
	fs.natDirty = false
	return nil
}

func (fs *Filesystem) writeAllSIT(ctx context.Context) error {
	sitPerBlock := blockBytes / sitEntrySize
	for i := uint32(0); i < fs.sb.SITBlocks; i++ {
		var buf [blockBytes]byte
		for j := 0; j < sitPerBlock; j++ {
			idx := i*uint32(sitPerBlock) + uint32(j)
			if idx >= uint32(len(fs.sit)) {
				break
			}
			e := marshalSITEntry(fs.sit[idx])
			copy(buf[j*sitEntrySize:], e[:])
		}
		if err := writeBlock(ctx, fs.backend, fs.sb.SITStart+i, buf); err != nil {
			return ErrIO
		}
	}
	fs.sitDirty = false
	return nil
}

// Sync writes dirty NAT/SIT blocks, then atomically rolls a checkpoint
// into the currently inactive slot, and finally rewrites the superblock
// if dirty. This single checkpoint write is the commit point.
func (fs *Filesystem) Sync(ctx context.Context) error {
	if fs.natDirty {
		if err := fs.writeAllNAT(ctx); err != nil {
			return err
		}
	}
	if fs.sitDirty {
		if err := fs.writeAllSIT(ctx); err != nil {
			return err
		}
	}

	inactive := 1 - fs.activeSlot
	next := fs.activeCheckpoint()
	next.CheckpointNum++
	next.Timestamp = fs.clock.NowMs()
	next.FreeBlocks = fs.freeBlocks
	next.updateCRC()

	slotBlock := uint32(1 + inactive)
	if err := writeBlock(ctx, fs.backend, slotBlock, next.MarshalBlock()); err != nil {
		return ErrIO
	}
	fs.cp[inactive] = next
	fs.activeSlot = inactive

	if fs.sbDirty {
		fs.sb.LastSyncTime = fs.clock.NowMs()
		fs.sb.updateCRC()
		if err := writeBlock(ctx, fs.backend, 0, fs.sb.MarshalBlock()); err != nil {
			return ErrIO
		}
		fs.sbDirty = false
	}
	return nil
}

// Unmount syncs and releases in-memory NAT/SIT state.
func (fs *Filesystem) Unmount(ctx context.Context) error {
	if err := fs.Sync(ctx); err != nil {
		return err
	}
	fs.nat = nil
	fs.sit = nil
	fs.mounted = false
	return nil
}

// Fsck verifies the on-disk structural invariants: superblock fields,
// metadata region layout, and a root inode present in the NAT inside the
// main area. Checkpoint records are not examined.
func (fs *Filesystem) Fsck(ctx context.Context) error {
	sb := fs.sb
	if sb.Magic != magicSuperblock || sb.Version != fsVersion || sb.BlockSize != blockBytes || sb.SegmentSize != segmentBlocks*blockBytes {
		return ErrCorrupted
	}
	if sb.NATStart != fixedMetadataBlocks {
		return ErrCorrupted
	}
	if sb.NATStart+sb.NATBlocks != sb.SITStart {
		return ErrCorrupted
	}
	if sb.SITStart+sb.SITBlocks != sb.MainStart {
		return ErrCorrupted
	}
	if sb.MainStart >= sb.TotalBlocks {
		return ErrCorrupted
	}
	root := fs.nat[rootInodeNum]
	if root.BlockAddr == invalidBlock || root.BlockAddr < sb.MainStart {
		return ErrCorrupted
	}
	return nil
}

// Statfs reports aggregate device usage, grounded in every example
// filesystem's StatFs-equivalent call.
type Statfs struct {
	TotalBlocks uint32
	FreeBlocks  uint32
	TotalInodes uint32
	FreeInodes  uint32
}

func (fs *Filesystem) StatfsInfo() Statfs {
	freeInodes := uint32(0)
	for _, e := range fs.nat {
		if e.BlockAddr == invalidBlock {
			freeInodes++
		}
	}
	return Statfs{
		TotalBlocks: fs.sb.TotalBlocks,
		FreeBlocks:  fs.freeBlocks,
		TotalInodes: fs.sb.TotalInodes,
		FreeInodes:  freeInodes,
	}
}

// MountCount exposes the superblock's persisted mount counter, used by
// crash-safe remount round-trip tests.
func (fs *Filesystem) MountCount() uint32 { return fs.sb.MountCount }

// SuperblockSnapshot returns a copy of the in-memory superblock.
func (fs *Filesystem) SuperblockSnapshot() Superblock { return fs.sb }
