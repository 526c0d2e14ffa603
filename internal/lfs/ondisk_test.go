package lfs

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/require"
)

func TestRecordSizesAreBlockMultiples(t *testing.T) {
	var sb Superblock
	require.Len(t, sb.MarshalBlock(), blockBytes)

	var cp Checkpoint
	require.Len(t, cp.MarshalBlock(), blockBytes)

	var ino Inode
	require.Len(t, ino.MarshalBlock(), blockBytes)
}

// TestSuperblockCRCRoundTrip verifies that for all valid superblocks, the
// CRC over the record with its CRC field zeroed equals the stored CRC.
func TestSuperblockCRCRoundTrip(t *testing.T) {
	sb := Superblock{Magic: magicSuperblock, Version: fsVersion, BlockSize: blockBytes, TotalBlocks: 64}
	sb.updateCRC()
	require.True(t, sb.validCRC())

	block := sb.MarshalBlock()
	got := unmarshalSuperblock(block[:])
	require.True(t, got.validCRC())
	require.Equal(t, sb.Magic, got.Magic)
}

func TestNATEntryRoundTrip(t *testing.T) {
	e := NATEntry{BlockAddr: 42, Version: 7, Type: NodeInode}
	buf := marshalNATEntry(e)
	require.Equal(t, natEntrySize, len(buf))
	got := unmarshalNATEntry(buf[:])
	require.Equal(t, e, got)
}

func TestDjb2Hash(t *testing.T) {
	// h = h*33 + c, seeded at 5381
	h := djb2("")
	require.EqualValues(t, 5381, h)
}

func TestDirentMarshalRoundTrip(t *testing.T) {
	d := Dirent{InodeNum: 3, NameLen: 5, Type: DirentFile, NameHash: djb2("hello"), Name: "hello"}
	d.EntrySize = uint16(direntHeaderSize + len(d.Name))
	buf := marshalDirent(d)
	got, ok := unmarshalDirentAt(buf, 0)
	require.True(t, ok)
	require.Equal(t, d, got)
}

// TestCheckpointRoundTripStructuralDiff marshals and unmarshals a
// Checkpoint and diffs the two structs field by field.
func TestCheckpointRoundTripStructuralDiff(t *testing.T) {
	cp := Checkpoint{
		CheckpointNum:  3,
		FreeBlocks:     1000,
		NextFreeNodeID: 5,
		ActiveSegNode:  1,
		ActiveSegInode: 2,
		ActiveSegData:  3,
		Timestamp:      123456,
	}
	cp.updateCRC()

	buf := cp.MarshalBlock()
	got := unmarshalCheckpoint(buf[:])

	if diff := pretty.Compare(cp, got); diff != "" {
		t.Errorf("checkpoint round trip mismatch (-want +got):\n%s", diff)
	}
}
