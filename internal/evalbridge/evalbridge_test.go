package evalbridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/littleos-dev/littleos/internal/clockutil"
)

type fakeHeartbeater struct {
	beats int
	feeds int
}

func (f *fakeHeartbeater) Heartbeat() { f.beats++ }
func (f *fakeHeartbeater) Feed()      { f.feeds++ }

func TestNewForcesInitialHeartbeat(t *testing.T) {
	hb := &fakeHeartbeater{}
	clk := clockutil.NewFake()
	b, err := New(&NopEvaluator{}, hb, clk)
	require.NoError(t, err)
	require.NotNil(t, b)
	require.Equal(t, 1, hb.beats)
	require.Equal(t, 1, hb.feeds)
}

func TestEvalForcesHeartbeatsAroundCall(t *testing.T) {
	hb := &fakeHeartbeater{}
	clk := clockutil.NewFake()
	b, err := New(&NopEvaluator{}, hb, clk)
	require.NoError(t, err)

	before := hb.beats
	result, err := b.Eval(context.Background(), "1 + 1")
	require.NoError(t, err)
	require.Equal(t, ResultOK, result)
	require.Greater(t, hb.beats, before)
}

func TestEvalTimesOutPastDeadline(t *testing.T) {
	hb := &fakeHeartbeater{}
	clk := clockutil.NewFake()
	eval := &slowEvaluator{clk: clk, advanceMs: 500}
	b, err := New(eval, hb, clk)
	require.NoError(t, err)
	b.SetExecutionTimeout(100)

	_, err = b.Eval(context.Background(), "loop forever")
	require.ErrorIs(t, err, ErrTimeout)
}

func TestEvalNoTimeoutWhenZero(t *testing.T) {
	hb := &fakeHeartbeater{}
	clk := clockutil.NewFake()
	eval := &slowEvaluator{clk: clk, advanceMs: 10_000}
	b, err := New(eval, hb, clk)
	require.NoError(t, err)
	b.SetExecutionTimeout(0)

	result, err := b.Eval(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, ResultOK, result)
}

func TestCleanupForcesFinalHeartbeat(t *testing.T) {
	hb := &fakeHeartbeater{}
	clk := clockutil.NewFake()
	b, err := New(&NopEvaluator{}, hb, clk)
	require.NoError(t, err)

	before := hb.beats
	b.Cleanup()
	require.Greater(t, hb.beats, before)
}

// slowEvaluator advances the shared fake clock by advanceMs during
// EvalString, simulating a long-running script for timeout tests.
type slowEvaluator struct {
	NopEvaluator
	clk       *clockutil.Fake
	advanceMs uint64
}

func (s *slowEvaluator) EvalString(ctx context.Context, source string) Result {
	s.clk.Advance(s.advanceMs)
	return ResultOK
}
