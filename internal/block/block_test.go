package block

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryReadWrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(4)
	var buf [Size]byte
	for i := range buf {
		buf[i] = 0x42
	}
	require.NoError(t, m.WriteBlock(ctx, 1, &buf))

	var got [Size]byte
	require.NoError(t, m.ReadBlock(ctx, 1, &got))
	require.Equal(t, buf, got)

	var zero [Size]byte
	require.NoError(t, m.ReadBlock(ctx, 2, &zero))
	require.Equal(t, [Size]byte{}, zero)
}

func TestMemoryOutOfRange(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	var buf [Size]byte
	require.ErrorIs(t, m.ReadBlock(ctx, 2, &buf), ErrInvalidBlock)
	require.ErrorIs(t, m.WriteBlock(ctx, 99, &buf), ErrInvalidBlock)
}

func TestFileReadWriteRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f, err := OpenFile(filepath.Join(dir, "dev.img"), 8)
	require.NoError(t, err)
	defer f.Close()

	var buf [Size]byte
	copy(buf[:], "hello device")
	require.NoError(t, f.WriteBlock(ctx, 3, &buf))
	require.NoError(t, f.Sync())

	var got [Size]byte
	require.NoError(t, f.ReadBlock(ctx, 3, &got))
	require.Equal(t, buf, got)
}
