// Package watchdog implements the watchdog façade: a thin wrapper over an
// unstoppable hardware countdown timer, fed by both the primary core and
// the supervisor (which also reads the feed count and last-feed time to
// judge staleness).
package watchdog

import (
	"context"

	"github.com/littleos-dev/littleos/internal/clockutil"
)

// State is the façade's lifecycle state.
type State int

const (
	Uninit State = iota
	Ready
	Enabled
)

func (s State) String() string {
	switch s {
	case Uninit:
		return "Uninit"
	case Ready:
		return "Ready"
	case Enabled:
		return "Enabled"
	default:
		return "Unknown"
	}
}

// ResetReason records why the previous boot ended, queried from hardware
// at init time (original_source/include/watchdog.h).
type ResetReason int

const (
	ResetReasonUnknown ResetReason = iota
	ResetReasonPowerOn
	ResetReasonWatchdog
	ResetReasonSoftware
)

const (
	// MinTimeoutMs and MaxTimeoutMs bound the configurable timeout.
	MinTimeoutMs = 1
	MaxTimeoutMs = 8388
)

// Hardware is the platform watchdog primitive: a configurable countdown,
// reset-reason query, and an inherently unstoppable countdown once
// started.
type Hardware interface {
	// Start arms the countdown for timeoutMs, replacing any previous
	// arming.
	Start(timeoutMs uint32)
	// Kick resets the countdown back to its configured timeout.
	Kick()
	// LastResetReason reports why the chip last came out of reset.
	LastResetReason() ResetReason
	// ForceReset arms the shortest possible countdown and returns; the
	// caller is expected to spin until the reset fires.
	ForceReset()
}

func clampTimeout(ms uint32) uint32 {
	if ms < MinTimeoutMs {
		return MinTimeoutMs
	}
	if ms > MaxTimeoutMs {
		return MaxTimeoutMs
	}
	return ms
}

// Facade is the watchdog state machine: Uninit -> Ready -> Enabled,
// wrapping the hardware countdown with feed bookkeeping and the boot
// reset reason.
type Facade struct {
	hw    Hardware
	clock clockutil.Clock

	state         State
	timeoutMs     uint32
	feedCount     uint64
	lastFeedMs    uint64
	bootReason    ResetReason
}

// New constructs an uninitialized façade bound to hw and clock.
func New(hw Hardware, clock clockutil.Clock) *Facade {
	return &Facade{hw: hw, clock: clock, state: Uninit}
}

// Init records timeoutMs (clamped) and captures the boot reset reason.
// Must be called before Enable.
func (f *Facade) Init(timeoutMs uint32) {
	f.timeoutMs = clampTimeout(timeoutMs)
	f.bootReason = f.hw.LastResetReason()
	f.state = Ready
}

// BootResetReason reports why the prior boot ended (watchdog, power-on,
// software or unknown), as captured at Init. Surfaced once to the caller at boot; callers are expected to
// clear their own "seen" flag after consuming it.
func (f *Facade) BootResetReason() ResetReason {
	return f.bootReason
}

// Enable transitions to Enabled, starts the hardware countdown, and
// resets feed bookkeeping.
func (f *Facade) Enable(timeoutMs uint32) {
	f.timeoutMs = clampTimeout(timeoutMs)
	f.hw.Start(f.timeoutMs)
	f.state = Enabled
	f.feedCount = 0
	f.lastFeedMs = f.clock.NowMs()
}

// Feed kicks the hardware countdown and updates feed statistics. No-op
// when not Enabled.
func (f *Facade) Feed() {
	if f.state != Enabled {
		return
	}
	f.hw.Kick()
	f.feedCount++
	f.lastFeedMs = f.clock.NowMs()
}

// TimeRemaining reports max(0, timeout - (now - last_feed)) while Enabled,
// and 0 otherwise.
func (f *Facade) TimeRemaining() uint32 {
	if f.state != Enabled {
		return 0
	}
	elapsed := f.clock.NowMs() - f.lastFeedMs
	if elapsed >= uint64(f.timeoutMs) {
		return 0
	}
	return f.timeoutMs - uint32(elapsed)
}

// Reboot arms the hardware for an immediate reset, then blocks until ctx
// is cancelled (standing in for "spins forever" on real hardware, where
// the reset fires before the caller ever returns).
func (f *Facade) Reboot(ctx context.Context, delayMs uint32) {
	f.hw.ForceReset()
	<-ctx.Done()
}

// Disable marks the façade disabled and re-arms the hardware at its
// maximum timeout, since the hardware cannot truly be disabled.
func (f *Facade) Disable() {
	f.hw.Start(MaxTimeoutMs)
	f.state = Uninit
}

// FeedCount and LastFeedMs are read by the supervisor to judge feed
// staleness.
func (f *Facade) FeedCount() uint64   { return f.feedCount }
func (f *Facade) LastFeedMs() uint64  { return f.lastFeedMs }
func (f *Facade) State() State        { return f.state }
func (f *Facade) TimeoutMs() uint32   { return f.timeoutMs }
