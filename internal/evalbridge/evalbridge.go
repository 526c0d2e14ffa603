// Package evalbridge implements the scripting embedding surface of
// original_source/src/sage/sage_embed.c: an opaque evaluator context with
// forced heartbeat/watchdog feeds before and after every eval call, plus an
// execution timeout sampled against the system clock once the call
// returns. Parse and statement boundaries inside a single EvalString call
// are not visible to the bridge; no heartbeat fires between them.
package evalbridge

import (
	"context"
	"errors"

	"github.com/littleos-dev/littleos/internal/clockutil"
)

// Result mirrors sage_result_t.
type Result int

const (
	ResultOK Result = iota
	ResultParseError
	ResultRuntimeError
	ResultMemoryError
	ResultIOError
	ResultNotSupported
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultParseError:
		return "ParseError"
	case ResultRuntimeError:
		return "RuntimeError"
	case ResultMemoryError:
		return "MemoryError"
	case ResultIOError:
		return "IOError"
	case ResultNotSupported:
		return "NotSupported"
	default:
		return "Unknown"
	}
}

// HeartbeatInterval is the 250ms cadence HEARTBEAT_INTERVAL_MS uses
// between opportunistic (as opposed to forced) heartbeats.
const HeartbeatInterval = 250

// MemoryStats mirrors sage_get_memory_stats.
type MemoryStats struct {
	AllocatedBytes uint64
	NumObjects     uint32
}

// ErrTimeout is returned by Eval when the configured execution timeout
// elapses mid-script.
var ErrTimeout = errors.New("evalbridge: execution timed out")

// Heartbeater is the pair of side effects every heartbeat performs: tell
// the supervisor Core 0 is alive, and kick the watchdog directly (the
// script runtime is trusted to feed the watchdog itself, same as the
// main loop).
type Heartbeater interface {
	Heartbeat()
	Feed()
}

// Evaluator is the opaque scripting context surface:
// init/cleanup/eval/get_error/timeout/memory-stats, matching
// sage_context_t's public API one for one.
type Evaluator interface {
	Init() error
	Cleanup()
	EvalString(ctx context.Context, source string) Result
	GetError() string
	SetExecutionTimeout(ms uint32)
	GetExecutionTimeout() uint32
	GetMemoryStats() MemoryStats
}

// Bridge wraps an Evaluator with the heartbeat/timeout maintenance loop
// original_source performs around every eval call, independent of which
// concrete evaluator is plugged in.
type Bridge struct {
	eval  Evaluator
	hb    Heartbeater
	clock clockutil.Clock

	lastHeartbeatMs uint64
	heartbeatCount  uint64
	heartbeatOn     bool
}

// New wires a Bridge around eval, calling Init immediately (matching
// sage_init's eager setup) and sending the first forced heartbeat.
func New(eval Evaluator, hb Heartbeater, clock clockutil.Clock) (*Bridge, error) {
	if err := eval.Init(); err != nil {
		return nil, err
	}
	b := &Bridge{eval: eval, hb: hb, clock: clock, heartbeatOn: true}
	b.forceHeartbeat()
	return b, nil
}

// SetHeartbeatEnabled toggles the 250ms opportunistic heartbeat; forced
// heartbeats around eval boundaries still fire regardless.
func (b *Bridge) SetHeartbeatEnabled(enabled bool) { b.heartbeatOn = enabled }

// HeartbeatStats mirrors sage_get_heartbeat_stats.
func (b *Bridge) HeartbeatStats() (count uint64, lastMs uint64) {
	return b.heartbeatCount, b.lastHeartbeatMs
}

func (b *Bridge) forceHeartbeat() {
	b.hb.Heartbeat()
	b.hb.Feed()
	b.lastHeartbeatMs = b.clock.NowMs()
	b.heartbeatCount++
}

func (b *Bridge) tryHeartbeat() {
	if !b.heartbeatOn {
		return
	}
	now := b.clock.NowMs()
	if now-b.lastHeartbeatMs >= HeartbeatInterval {
		b.forceHeartbeat()
	}
}

// Eval runs source through the wrapped evaluator with heartbeats forced
// before and after, honoring the configured execution timeout sampled
// against the clock (a deterministic stand-in for the original's
// statement-by-statement interleaving, since this bridge treats one
// EvalString call as the indivisible unit of work).
func (b *Bridge) Eval(ctx context.Context, source string) (Result, error) {
	b.forceHeartbeat()
	b.tryHeartbeat()

	timeout := b.eval.GetExecutionTimeout()
	deadline := b.clock.NowMs() + uint64(timeout)

	result := b.eval.EvalString(ctx, source)

	if timeout > 0 && b.clock.NowMs() >= deadline {
		b.forceHeartbeat()
		return ResultRuntimeError, ErrTimeout
	}

	b.forceHeartbeat()
	return result, nil
}

// GetError surfaces the evaluator's last error message.
func (b *Bridge) GetError() string { return b.eval.GetError() }

// SetExecutionTimeout configures the bridge's timeout window in
// milliseconds; 0 disables the timeout check.
func (b *Bridge) SetExecutionTimeout(ms uint32) { b.eval.SetExecutionTimeout(ms) }

// GetExecutionTimeout reports the configured timeout.
func (b *Bridge) GetExecutionTimeout() uint32 { return b.eval.GetExecutionTimeout() }

// GetMemoryStats surfaces the evaluator's allocation counters.
func (b *Bridge) GetMemoryStats() MemoryStats { return b.eval.GetMemoryStats() }

// Cleanup tears down the evaluator, with a final forced heartbeat first
// (sage_cleanup's "heartbeat before cleanup").
func (b *Bridge) Cleanup() {
	b.forceHeartbeat()
	b.eval.Cleanup()
}

// NopEvaluator is a stub Evaluator: EvalString always succeeds without
// interpreting anything. It exists so cmd/littleosctl and tests can
// exercise the heartbeat/timeout bridge without a real scripting runtime
// wired in.
type NopEvaluator struct {
	timeoutMs uint32
	lastError string
}

func (n *NopEvaluator) Init() error { return nil }
func (n *NopEvaluator) Cleanup()    {}

func (n *NopEvaluator) EvalString(ctx context.Context, source string) Result {
	n.lastError = ""
	return ResultOK
}

func (n *NopEvaluator) GetError() string { return n.lastError }

func (n *NopEvaluator) SetExecutionTimeout(ms uint32) { n.timeoutMs = ms }
func (n *NopEvaluator) GetExecutionTimeout() uint32   { return n.timeoutMs }

func (n *NopEvaluator) GetMemoryStats() MemoryStats { return MemoryStats{} }
