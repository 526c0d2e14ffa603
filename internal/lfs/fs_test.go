package lfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/littleos-dev/littleos/internal/block"
	"github.com/littleos-dev/littleos/internal/clockutil"
)

const testTotalBlocks = 512

func newTestDevice(t *testing.T) (*block.Memory, *clockutil.Fake) {
	t.Helper()
	return block.NewMemory(testTotalBlocks), clockutil.NewFake()
}

// TestFormatAndRoot verifies that after formatting, the root directory
// is mountable and empty.
func TestFormatAndRoot(t *testing.T) {
	ctx := context.Background()
	dev, clk := newTestDevice(t)
	require.NoError(t, Format(ctx, dev, clk, testTotalBlocks))

	fs, err := Mount(ctx, dev, clk)
	require.NoError(t, err)
	require.NoError(t, fs.Fsck(ctx))

	root, err := fs.RootHandle(ctx)
	require.NoError(t, err)
	entries, err := fs.ReadDir(ctx, root)
	require.NoError(t, err)
	require.Empty(t, entries)

	st := fs.StatfsInfo()
	require.Equal(t, uint32(testTotalBlocks), st.TotalBlocks)
	require.Less(t, st.FreeBlocks, st.TotalBlocks)
}

// TestWriteReadRoundTrip is scenario S2: data written to a file is read
// back unchanged after a fresh Open.
func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	dev, clk := newTestDevice(t)
	require.NoError(t, Format(ctx, dev, clk, testTotalBlocks))
	fs, err := Mount(ctx, dev, clk)
	require.NoError(t, err)

	h, err := fs.Open(ctx, "/greeting.txt", OReadWrite|OCreate, ModeRegular)
	require.NoError(t, err)
	payload := []byte("hello from the main core")
	n, err := h.Write(ctx, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.NoError(t, h.Close(ctx))

	h2, err := fs.Open(ctx, "/greeting.txt", OReadOnly, 0)
	require.NoError(t, err)
	require.EqualValues(t, len(payload), h2.Size())
	buf := make([]byte, len(payload))
	n, err = h2.Read(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, buf)
}

// TestCrashSafeRemount is scenario S3: Sync rolls a checkpoint, and a
// fresh Mount after that point recovers all committed state.
func TestCrashSafeRemount(t *testing.T) {
	ctx := context.Background()
	dev, clk := newTestDevice(t)
	require.NoError(t, Format(ctx, dev, clk, testTotalBlocks))
	fs, err := Mount(ctx, dev, clk)
	require.NoError(t, err)

	require.NoError(t, fs.Mkdir(ctx, "/etc"))
	h, err := fs.Open(ctx, "/etc/boot.cfg", OReadWrite|OCreate, ModeRegular)
	require.NoError(t, err)
	_, err = h.Write(ctx, []byte("speed=fast"))
	require.NoError(t, err)
	require.NoError(t, fs.Sync(ctx))

	fs2, err := Mount(ctx, dev, clk)
	require.NoError(t, err)
	require.NoError(t, fs2.Fsck(ctx))

	h2, err := fs2.Open(ctx, "/etc/boot.cfg", OReadOnly, 0)
	require.NoError(t, err)
	buf := make([]byte, 10)
	_, err = h2.Read(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, "speed=fast", string(buf))
	require.EqualValues(t, 2, fs2.MountCount())
}

func TestOpenWithoutCreateFailsWhenMissing(t *testing.T) {
	ctx := context.Background()
	dev, clk := newTestDevice(t)
	require.NoError(t, Format(ctx, dev, clk, testTotalBlocks))
	fs, err := Mount(ctx, dev, clk)
	require.NoError(t, err)

	_, err = fs.Open(ctx, "/nope.txt", OReadOnly, 0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBmapUnsupportedBeyondDirectPointers(t *testing.T) {
	ino := newInode(ModeRegular, 5, rootInodeNum)
	ino.Direct[9] = 100

	b, err := bmap(&ino, 9)
	require.NoError(t, err)
	require.EqualValues(t, 100, b)

	_, err = bmap(&ino, 10)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestSeekRejectsNegativePosition(t *testing.T) {
	ctx := context.Background()
	dev, clk := newTestDevice(t)
	require.NoError(t, Format(ctx, dev, clk, testTotalBlocks))
	fs, err := Mount(ctx, dev, clk)
	require.NoError(t, err)

	h, err := fs.Open(ctx, "/f", OReadWrite|OCreate, ModeRegular)
	require.NoError(t, err)
	_, err = h.Seek(-1, 0)
	require.ErrorIs(t, err, ErrInvalidArg)
}

func TestUnlinkAlwaysUnsupported(t *testing.T) {
	ctx := context.Background()
	dev, clk := newTestDevice(t)
	require.NoError(t, Format(ctx, dev, clk, testTotalBlocks))
	fs, err := Mount(ctx, dev, clk)
	require.NoError(t, err)
	_, err = fs.Open(ctx, "/f", OReadWrite|OCreate, ModeRegular)
	require.NoError(t, err)

	err = fs.Unlink(ctx, "/f")
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestDuplicateNameFails(t *testing.T) {
	ctx := context.Background()
	dev, clk := newTestDevice(t)
	require.NoError(t, Format(ctx, dev, clk, testTotalBlocks))
	fs, err := Mount(ctx, dev, clk)
	require.NoError(t, err)

	_, err = fs.Open(ctx, "/dup", OReadWrite|OCreate, ModeRegular)
	require.NoError(t, err)
	_, err = fs.Open(ctx, "/dup", OCreate, ModeRegular)
	require.NoError(t, err, "opening an existing path without exclusivity just returns the existing inode")

	require.NoError(t, fs.Mkdir(ctx, "/d"))
	err = fs.Mkdir(ctx, "/d")
	require.Error(t, err)
}

func TestMultiBlockWriteSpansDirectPointers(t *testing.T) {
	ctx := context.Background()
	dev, clk := newTestDevice(t)
	require.NoError(t, Format(ctx, dev, clk, testTotalBlocks))
	fs, err := Mount(ctx, dev, clk)
	require.NoError(t, err)

	h, err := fs.Open(ctx, "/big", OReadWrite|OCreate, ModeRegular)
	require.NoError(t, err)
	payload := make([]byte, blockBytes*3+17)
	for i := range payload {
		payload[i] = byte(i)
	}
	n, err := h.Write(ctx, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	h2, err := fs.Open(ctx, "/big", OReadOnly, 0)
	require.NoError(t, err)
	buf := make([]byte, len(payload))
	n, err = h2.Read(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, buf)
}

// TestLockSerialisesConcurrentCallers exercises the external operation
// guard: a second Lock call blocks until the first Unlock, and a
// cancelled context unblocks Lock with an error instead of hanging.
func TestLockSerialisesConcurrentCallers(t *testing.T) {
	ctx := context.Background()
	dev, clk := newTestDevice(t)
	require.NoError(t, Format(ctx, dev, clk, testTotalBlocks))
	fs, err := Mount(ctx, dev, clk)
	require.NoError(t, err)

	require.NoError(t, fs.Lock(ctx))

	blockedCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- fs.Lock(blockedCtx)
	}()
	cancel()
	require.Error(t, <-done)

	fs.Unlock()
	require.NoError(t, fs.Lock(ctx))
	fs.Unlock()
}

func TestLoadInodeDetectsMispointedNATEntry(t *testing.T) {
	ctx := context.Background()
	dev, clk := newTestDevice(t)
	require.NoError(t, Format(ctx, dev, clk, testTotalBlocks))
	fs, err := Mount(ctx, dev, clk)
	require.NoError(t, err)

	h1, err := fs.Open(ctx, "/a", OReadWrite|OCreate, ModeRegular)
	require.NoError(t, err)
	_, err = fs.Open(ctx, "/b", OReadWrite|OCreate, ModeRegular)
	require.NoError(t, err)

	aID := h1.InodeNum()
	bID := aID + 1

	// Point a's NAT entry at b's inode block: both blocks carry valid
	// CRCs, so only the inode_num assertion can catch the mismatch.
	fs.nat[aID] = NATEntry{BlockAddr: fs.nat[bID].BlockAddr, Version: fs.nat[aID].Version, Type: NodeInode}

	_, err = fs.loadInode(ctx, aID)
	require.ErrorIs(t, err, ErrCorrupted)
}
