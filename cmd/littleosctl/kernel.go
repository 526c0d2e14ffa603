package main

import (
	"context"
	"fmt"

	"github.com/littleos-dev/littleos/internal/block"
	"github.com/littleos-dev/littleos/internal/clockutil"
	"github.com/littleos-dev/littleos/internal/config"
	"github.com/littleos-dev/littleos/internal/evalbridge"
	"github.com/littleos-dev/littleos/internal/fifo"
	"github.com/littleos-dev/littleos/internal/kernellog"
	"github.com/littleos-dev/littleos/internal/kvstore"
	"github.com/littleos-dev/littleos/internal/lfs"
	"github.com/littleos-dev/littleos/internal/memory"
	"github.com/littleos-dev/littleos/internal/sched"
	"github.com/littleos-dev/littleos/internal/security"
	"github.com/littleos-dev/littleos/internal/supervisor"
	"github.com/littleos-dev/littleos/internal/watchdog"
)

// rootSecurityContext returns the uid-0 context cmd/littleosctl runs its
// demo subcommands as, since there is no real login session to read one
// from.
func rootSecurityContext() security.Context {
	return security.Context{UID: 0, EUID: 0, GID: 0, EGID: 0, Capabilities: ^uint32(0)}
}

// kernel bundles every booted component, standing in for the single
// global kernel context a bare-metal main() would hold.
type kernel struct {
	cfg   config.Config
	clock clockutil.Clock
	log   *kernellog.KLog

	mem  *memory.Manager
	sp   *memory.FakeStackProbe
	wd   *watchdog.Facade
	hw   *watchdog.FakeHardware
	sup  *supervisor.Supervisor
	temp supervisor.FixedTemperature

	tasks *sched.Table
	inter *fifo.FIFO

	dev *block.Memory
	fs  *lfs.Filesystem
	kv  *kvstore.Store

	bridge *evalbridge.Bridge
}

// heartbeater adapts the supervisor and watchdog into the single
// evalbridge.Heartbeater seam the script bridge expects.
type heartbeater struct {
	sup *supervisor.Supervisor
	wd  *watchdog.Facade
}

func (h heartbeater) Heartbeat() { h.sup.Heartbeat() }
func (h heartbeater) Feed()      { h.wd.Feed() }

// bootKernel wires every component from cfg, formats and mounts a fresh
// in-memory filesystem, loads (or seeds) the key/value store, and enables
// the watchdog, the same order original_source's main() performs boot in.
func bootKernel(ctx context.Context, cfg config.Config) (*kernel, error) {
	clock := clockutil.NewSystem()
	log := kernellog.New("KERNEL", kernellog.LevelInfo, nil)

	sp := memory.NewFakeStackProbe(cfg.Memory.StackTop)
	mem, ok := memory.New(cfg.Memory.ToLayout(), sp)
	if !ok {
		return nil, fmt.Errorf("kernel: invalid memory layout")
	}

	hw := watchdog.NewFakeHardware(watchdog.ResetReasonPowerOn)
	wd := watchdog.New(hw, clock)
	wd.Init(cfg.Watchdog.TimeoutMs)
	wd.Enable(cfg.Watchdog.TimeoutMs)

	temp := supervisor.FixedTemperature{Celsius: 35.0}
	supLog := kernellog.New("SUPERVISOR", kernellog.LevelInfo, nil)
	sup := supervisor.New(cfg.Supervisor.ToSupervisorConfig(), clock, mem, wd, temp, supLog)

	tasks := sched.New(sched.NewFakeStackAllocator(cfg.Memory.StackTop+65536), sched.NewUserDB())
	inter := fifo.New()

	dev := block.NewMemory(cfg.Device.TotalBlocks)
	fsBlocks := cfg.Device.FilesystemBlocks()
	if err := lfs.Format(ctx, dev, clock, fsBlocks); err != nil {
		return nil, fmt.Errorf("kernel: format filesystem: %w", err)
	}
	fs, err := lfs.Mount(ctx, dev, clock)
	if err != nil {
		return nil, fmt.Errorf("kernel: mount filesystem: %w", err)
	}

	kv := kvstore.New(dev, cfg.Device.KVBaseBlock(), cfg.Device.KVBlocks)
	if err := kv.Load(ctx); err != nil {
		log.Warnf("kvstore load failed, starting empty: %v", err)
	}

	hb := heartbeater{sup: sup, wd: wd}
	bridge, err := evalbridge.New(&evalbridge.NopEvaluator{}, hb, clock)
	if err != nil {
		return nil, fmt.Errorf("kernel: eval bridge init: %w", err)
	}

	return &kernel{
		cfg: cfg, clock: clock, log: log,
		mem: mem, sp: sp, wd: wd, hw: hw, sup: sup, temp: temp,
		tasks: tasks, inter: inter,
		dev: dev, fs: fs, kv: kv,
		bridge: bridge,
	}, nil
}
