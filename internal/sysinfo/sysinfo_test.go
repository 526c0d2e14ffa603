package sysinfo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/littleos-dev/littleos/internal/memory"
	"github.com/littleos-dev/littleos/internal/security"
)

func TestFormatUptimeUnits(t *testing.T) {
	require.Equal(t, "5s", FormatUptime(5000))
	require.Equal(t, "1m 5s", FormatUptime(65000))
	require.Equal(t, "1h 1m 5s", FormatUptime(3665000))
	require.Equal(t, "1d 1h 1m", FormatUptime(90065000))
}

func TestMemoryInfoReflectsManagerStats(t *testing.T) {
	layout := memory.Layout{
		KernelBase: 0, KernelSize: 1024,
		InterpreterBase: 1024, InterpreterSize: 1024,
		StackBase: 2048, StackTop: 4096,
	}
	mem, ok := memory.New(layout, memory.NewFakeStackProbe(4096))
	require.True(t, ok)
	_, allocOk := mem.KernelAlloc(256)
	require.True(t, allocOk)

	total, used, free := MemoryInfo(mem)
	require.Equal(t, uint32(2), total) // 2048 bytes == 2KB
	require.Equal(t, uint32(0), used)  // 256 bytes rounds down under 1KB
	_ = free
}

func TestCollectAndLines(t *testing.T) {
	layout := memory.Layout{
		KernelBase: 0, KernelSize: 4096,
		InterpreterBase: 4096, InterpreterSize: 4096,
		StackBase: 8192, StackTop: 16384,
	}
	mem, ok := memory.New(layout, memory.NewFakeStackProbe(16384))
	require.True(t, ok)

	snap := Collect(5000, 133, 42.5, "OK", mem, security.Context{UID: 0, EGID: 0})
	require.Equal(t, uint64(5000), snap.UptimeMs)
	lines := snap.Lines()
	require.Len(t, lines, 6)
	require.Contains(t, lines[0], "Uptime")
}
