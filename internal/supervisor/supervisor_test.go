package supervisor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/littleos-dev/littleos/internal/clockutil"
	"github.com/littleos-dev/littleos/internal/kernellog"
	"github.com/littleos-dev/littleos/internal/memory"
	"github.com/littleos-dev/littleos/internal/watchdog"
)

func newTestSupervisor(t *testing.T, clk *clockutil.Fake, temp TemperatureSensor) *Supervisor {
	t.Helper()
	layout := memory.Layout{
		KernelBase: 0, KernelSize: 4096,
		InterpreterBase: 4096, InterpreterSize: 8192,
		StackBase: 12288, StackTop: 16384,
	}
	mem, ok := memory.New(layout, memory.NewFakeStackProbe(16384))
	require.True(t, ok)

	hw := watchdog.NewFakeHardware(watchdog.ResetReasonPowerOn)
	wd := watchdog.New(hw, clk)
	wd.Init(8000)
	wd.Enable(8000)

	log := kernellog.New("SUPERVISOR", kernellog.LevelDebug, nil)
	return New(DefaultConfig(), clk, mem, wd, temp, log)
}

func TestCheckSystemHealthOkWhenNominal(t *testing.T) {
	clk := clockutil.NewFake()
	clk.Set(1000)
	s := newTestSupervisor(t, clk, FixedTemperature{Celsius: 25})

	s.checkSystemHealth(clk.NowMs())
	require.Equal(t, HealthOK, s.GetHealth())
	require.Zero(t, s.GetMetrics().HealthFlags)
}

func TestCheckSystemHealthFlagsTempCritical(t *testing.T) {
	clk := clockutil.NewFake()
	clk.Set(1000)
	s := newTestSupervisor(t, clk, FixedTemperature{Celsius: 85})

	s.checkSystemHealth(clk.NowMs())
	require.Equal(t, HealthEmergency, s.GetHealth())
	require.NotZero(t, s.GetMetrics().HealthFlags&FlagTempCritical)
}

func TestCheckSystemHealthFlagsTempWarning(t *testing.T) {
	clk := clockutil.NewFake()
	clk.Set(1000)
	s := newTestSupervisor(t, clk, FixedTemperature{Celsius: 75})

	s.checkSystemHealth(clk.NowMs())
	require.Equal(t, HealthWarning, s.GetHealth())
	require.NotZero(t, s.GetMetrics().HealthFlags&FlagTempHigh)
}

func TestCheckSystemHealthFlagsCore0Hung(t *testing.T) {
	clk := clockutil.NewFake()
	clk.Set(1000)
	s := newTestSupervisor(t, clk, FixedTemperature{Celsius: 25})

	clk.Advance(heartbeatHangMs + 1)
	s.checkSystemHealth(clk.NowMs())
	require.Equal(t, HealthCritical, s.GetHealth())
	require.False(t, s.GetMetrics().Core0Responsive)
}

func TestHeartbeatResetsHungFlag(t *testing.T) {
	clk := clockutil.NewFake()
	clk.Set(1000)
	s := newTestSupervisor(t, clk, FixedTemperature{Celsius: 25})

	clk.Advance(heartbeatHangMs + 1)
	s.checkSystemHealth(clk.NowMs())
	require.False(t, s.GetMetrics().Core0Responsive)

	s.Heartbeat()
	s.checkSystemHealth(clk.NowMs())
	require.True(t, s.GetMetrics().Core0Responsive)
}

func TestHeartbeatOverflowGuardResyncs(t *testing.T) {
	clk := clockutil.NewFake()
	clk.Set(1000)
	s := newTestSupervisor(t, clk, FixedTemperature{Celsius: 25})

	clk.Advance(overflowGuardMs + 1)
	s.checkSystemHealth(clk.NowMs())
	// the overflow guard resyncs the heartbeat to "now" before the hang
	// check runs, so this must NOT register as a hang.
	require.True(t, s.GetMetrics().Core0Responsive)
}

func TestWatchdogStaleFlag(t *testing.T) {
	clk := clockutil.NewFake()
	clk.Set(1000)
	s := newTestSupervisor(t, clk, FixedTemperature{Celsius: 25})

	clk.Advance(DefaultWatchdogTimeoutMs/2 + 1)
	s.checkSystemHealth(clk.NowMs())
	require.NotZero(t, s.GetMetrics().HealthFlags&FlagWatchdog)
}

func TestMemoryLeakFlaggedAfterSustainedGrowth(t *testing.T) {
	clk := clockutil.NewFake()
	clk.Set(1000)

	layout := memory.Layout{
		KernelBase: 0, KernelSize: 200_000,
		InterpreterBase: 200_000, InterpreterSize: 8192,
		StackBase: 208_192, StackTop: 216_192,
	}
	mem, ok := memory.New(layout, memory.NewFakeStackProbe(216_192))
	require.True(t, ok)

	hw := watchdog.NewFakeHardware(watchdog.ResetReasonPowerOn)
	wd := watchdog.New(hw, clk)
	wd.Init(8000)
	wd.Enable(8000)
	log := kernellog.New("SUPERVISOR", kernellog.LevelDebug, nil)
	s := New(DefaultConfig(), clk, mem, wd, FixedTemperature{Celsius: 25}, log)

	for i := 0; i < leakStreakToFlag-1; i++ {
		_, ok := mem.KernelAlloc(leakSampleBytes + 1)
		require.True(t, ok)
		clk.Advance(DefaultCheckIntervalMs)
		s.checkSystemHealth(clk.NowMs())
		require.Zero(t, s.GetMetrics().HealthFlags&FlagMemoryLeak, "iteration %d", i)
	}

	_, ok = mem.KernelAlloc(leakSampleBytes + 1)
	require.True(t, ok)
	clk.Advance(DefaultCheckIntervalMs)
	s.checkSystemHealth(clk.NowMs())
	require.NotZero(t, s.GetMetrics().HealthFlags&FlagMemoryLeak)
}

func TestMemoryLeakStreakResetsOnPlateau(t *testing.T) {
	clk := clockutil.NewFake()
	clk.Set(1000)

	layout := memory.Layout{
		KernelBase: 0, KernelSize: 200_000,
		InterpreterBase: 200_000, InterpreterSize: 8192,
		StackBase: 208_192, StackTop: 216_192,
	}
	mem, ok := memory.New(layout, memory.NewFakeStackProbe(216_192))
	require.True(t, ok)

	hw := watchdog.NewFakeHardware(watchdog.ResetReasonPowerOn)
	wd := watchdog.New(hw, clk)
	wd.Init(8000)
	wd.Enable(8000)
	log := kernellog.New("SUPERVISOR", kernellog.LevelDebug, nil)
	s := New(DefaultConfig(), clk, mem, wd, FixedTemperature{Celsius: 25}, log)

	for i := 0; i < leakStreakToFlag-1; i++ {
		_, ok := mem.KernelAlloc(leakSampleBytes + 1)
		require.True(t, ok)
		clk.Advance(DefaultCheckIntervalMs)
		s.checkSystemHealth(clk.NowMs())
	}
	require.Equal(t, leakStreakToFlag-1, s.leakStreak)

	// a plateau check (no growth) resets the streak
	clk.Advance(DefaultCheckIntervalMs)
	s.checkSystemHealth(clk.NowMs())
	require.Zero(t, s.leakStreak)
	require.Zero(t, s.GetMetrics().HealthFlags&FlagMemoryLeak)
}
