package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/littleos-dev/littleos/internal/clockutil"
	"github.com/stretchr/testify/require"
)

func TestInitCapturesBootReason(t *testing.T) {
	hw := NewFakeHardware(ResetReasonWatchdog)
	clk := clockutil.NewFake()
	f := New(hw, clk)
	f.Init(500)
	require.Equal(t, ResetReasonWatchdog, f.BootResetReason())
	require.Equal(t, Ready, f.State())
}

func TestTimeoutIsClamped(t *testing.T) {
	hw := NewFakeHardware(ResetReasonPowerOn)
	clk := clockutil.NewFake()
	f := New(hw, clk)
	f.Init(0)
	require.Equal(t, uint32(MinTimeoutMs), f.TimeoutMs())

	f.Init(999999)
	require.Equal(t, uint32(MaxTimeoutMs), f.TimeoutMs())
}

func TestFeedNoopWhenNotEnabled(t *testing.T) {
	hw := NewFakeHardware(ResetReasonPowerOn)
	clk := clockutil.NewFake()
	f := New(hw, clk)
	f.Init(100)
	f.Feed()
	require.Zero(t, hw.Kicks)
	require.Zero(t, f.FeedCount())
}

func TestEnableFeedTimeRemaining(t *testing.T) {
	hw := NewFakeHardware(ResetReasonPowerOn)
	clk := clockutil.NewFake()
	f := New(hw, clk)
	f.Init(1000)
	f.Enable(1000)
	require.Equal(t, uint32(1000), f.TimeRemaining())

	clk.Advance(400)
	require.Equal(t, uint32(600), f.TimeRemaining())

	f.Feed()
	require.Equal(t, uint64(1), f.FeedCount())
	require.Equal(t, uint32(1000), f.TimeRemaining())
}

func TestTimeRemainingFloorsAtZero(t *testing.T) {
	hw := NewFakeHardware(ResetReasonPowerOn)
	clk := clockutil.NewFake()
	f := New(hw, clk)
	f.Init(100)
	f.Enable(100)
	clk.Advance(1000)
	require.Equal(t, uint32(0), f.TimeRemaining())
}

func TestDisableArmsMaxTimeout(t *testing.T) {
	hw := NewFakeHardware(ResetReasonPowerOn)
	clk := clockutil.NewFake()
	f := New(hw, clk)
	f.Init(100)
	f.Enable(100)
	f.Disable()
	require.Equal(t, uint32(MaxTimeoutMs), hw.TimeoutMs)
	require.Equal(t, Uninit, f.State())
}

func TestRebootForcesResetAndBlocks(t *testing.T) {
	hw := NewFakeHardware(ResetReasonPowerOn)
	clk := clockutil.NewFake()
	f := New(hw, clk)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	f.Reboot(ctx, 0)
	require.Equal(t, 1, hw.ForceResets)
}
