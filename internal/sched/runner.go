package sched

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// tickIntervalMs is the cooperative scheduling tick: each tick, a core's
// run loop picks its next-ready task (if any) and accounts one tick of
// runtime against it, standing in for the original firmware's
// interrupt-driven dispatch.
const tickIntervalMs = 10

// Stepper is invoked once per tick with the task id the core picked to
// run (0 meaning idle), letting the caller simulate or log actual task
// execution. Runner itself only owns dispatch and runtime accounting.
type Stepper func(core int, taskID uint16)

// RunCore drives core's ready queue until ctx is cancelled: each tick it
// asks the table for the next task to run, marks elapsed runtime against
// it, and reports the pick to step (if non-nil).
func (t *Table) RunCore(ctx context.Context, core int, step Stepper) error {
	next := t.NextTaskCore1
	if core == 0 {
		next = t.NextTaskCore0
	}
	ticker := time.NewTicker(tickIntervalMs * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			id := next()
			if id != 0 {
				t.UpdateRuntime(id, tickIntervalMs)
			}
			if step != nil {
				step(core, id)
			}
		}
	}
}

// RunBothCores runs RunCore for core 0 and core 1 concurrently under a
// single errgroup, returning as soon as either core's loop errors or ctx
// is cancelled, modeling the two independent cores sharing one task table.
func (t *Table) RunBothCores(ctx context.Context, step Stepper) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return t.RunCore(gctx, 0, step) })
	g.Go(func() error { return t.RunCore(gctx, 1, step) })
	return g.Wait()
}
