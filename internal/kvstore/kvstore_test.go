package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/littleos-dev/littleos/internal/block"
)

func testBlockCount() uint32 {
	return (RecordBytes + block.Size - 1) / block.Size
}

func newTestStore() (*Store, *block.Memory) {
	dev := block.NewMemory(testBlockCount())
	return New(dev, 0, testBlockCount()), dev
}

func TestSetGetRoundTrip(t *testing.T) {
	s, _ := newTestStore()
	require.NoError(t, s.Set("hostname", "littleos-01"))
	v, err := s.Get("hostname")
	require.NoError(t, err)
	require.Equal(t, "littleos-01", v)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s, _ := newTestStore()
	_, err := s.Get("nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetUpdatesExistingEntry(t *testing.T) {
	s, _ := newTestStore()
	require.NoError(t, s.Set("k", "v1"))
	require.NoError(t, s.Set("k", "v2"))
	require.Equal(t, 1, s.Count())
	v, _ := s.Get("k")
	require.Equal(t, "v2", v)
}

func TestStoreFullReturnsErrFull(t *testing.T) {
	s, _ := newTestStore()
	for i := 0; i < maxEntries; i++ {
		require.NoError(t, s.Set(string(rune('a'+i)), "v"))
	}
	err := s.Set("overflow", "v")
	require.ErrorIs(t, err, ErrFull)
}

func TestDeleteFreesSlot(t *testing.T) {
	s, _ := newTestStore()
	require.NoError(t, s.Set("k", "v"))
	require.NoError(t, s.Delete("k"))
	require.False(t, s.Exists("k"))
	require.NoError(t, s.Set("k2", "v2"))
}

// TestSaveLoadRoundTrip verifies Save followed by Load (on a fresh Store)
// recovers byte-identical configuration.
func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, dev := newTestStore()
	require.NoError(t, s.Set("hostname", "littleos-01"))
	require.NoError(t, s.Set("mode", "autoboot"))
	require.NoError(t, s.SetAutoboot("run demo.lit"))
	require.NoError(t, s.Save(ctx))
	require.False(t, s.Dirty())

	s2 := New(dev, 0, testBlockCount())
	require.NoError(t, s2.Load(ctx))

	v, err := s2.Get("hostname")
	require.NoError(t, err)
	require.Equal(t, "littleos-01", v)
	v, err = s2.Get("mode")
	require.NoError(t, err)
	require.Equal(t, "autoboot", v)
	script, ok := s2.GetAutoboot()
	require.True(t, ok)
	require.Equal(t, "run demo.lit", script)
}

func TestLoadOnBlankDeviceKeepsDefaults(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()
	require.NoError(t, s.Load(ctx))
	require.Zero(t, s.Count())
	require.False(t, s.HasAutoboot())
}

func TestClearResetsEverything(t *testing.T) {
	s, _ := newTestStore()
	require.NoError(t, s.Set("k", "v"))
	require.NoError(t, s.SetAutoboot("x"))
	s.Clear()
	require.Zero(t, s.Count())
	require.False(t, s.HasAutoboot())
}

func TestClearAutobootOnlyAffectsScript(t *testing.T) {
	s, _ := newTestStore()
	require.NoError(t, s.Set("k", "v"))
	require.NoError(t, s.SetAutoboot("x"))
	s.ClearAutoboot()
	require.False(t, s.HasAutoboot())
	require.True(t, s.Exists("k"))
}
