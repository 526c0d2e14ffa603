// Package config loads the boot-time parameters every kernel package is
// constructed from: region sizes, watchdog timeout, supervisor
// thresholds, and device geometry. Defaults mirror
// original_source/include/memory.h's LITTLEOS_HEAP_SIZE (32 KiB) split
// evenly between the kernel and interpreter regions, and
// supervisor.h/watchdog.h's threshold constants.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/littleos-dev/littleos/internal/memory"
	"github.com/littleos-dev/littleos/internal/supervisor"
)

// MemoryConfig sizes the kernel/interpreter/stack regions.
type MemoryConfig struct {
	KernelBase      uint32 `yaml:"kernel_base"`
	KernelSize      uint32 `yaml:"kernel_size"`
	InterpreterBase uint32 `yaml:"interpreter_base"`
	InterpreterSize uint32 `yaml:"interpreter_size"`
	StackBase       uint32 `yaml:"stack_base"`
	StackTop        uint32 `yaml:"stack_top"`
}

// ToLayout converts the YAML-friendly config into a memory.Layout.
func (m MemoryConfig) ToLayout() memory.Layout {
	return memory.Layout{
		KernelBase:      m.KernelBase,
		KernelSize:      m.KernelSize,
		InterpreterBase: m.InterpreterBase,
		InterpreterSize: m.InterpreterSize,
		StackBase:       m.StackBase,
		StackTop:        m.StackTop,
	}
}

// WatchdogConfig sizes the façade's clamp-guarded timeout.
type WatchdogConfig struct {
	TimeoutMs uint32 `yaml:"timeout_ms"`
}

// SupervisorConfig mirrors supervisor.Config in YAML form.
type SupervisorConfig struct {
	CheckIntervalMs   uint64  `yaml:"check_interval_ms"`
	WatchdogTimeoutMs uint64  `yaml:"watchdog_timeout_ms"`
	MemoryWarnPercent float64 `yaml:"memory_warn_percent"`
	TempWarnC         float64 `yaml:"temp_warn_c"`
	TempCriticalC     float64 `yaml:"temp_critical_c"`
}

// ToSupervisorConfig converts to supervisor.Config.
func (s SupervisorConfig) ToSupervisorConfig() supervisor.Config {
	return supervisor.Config{
		CheckIntervalMs:   s.CheckIntervalMs,
		WatchdogTimeoutMs: s.WatchdogTimeoutMs,
		MemoryWarnPercent: s.MemoryWarnPercent,
		TempWarnC:         s.TempWarnC,
		TempCriticalC:     s.TempCriticalC,
	}
}

// DeviceConfig describes the simulated flash block device geometry.
// KVBlocks are reserved off the top of the device for the key/value
// store; the filesystem gets the remaining [0, TotalBlocks-KVBlocks).
type DeviceConfig struct {
	TotalBlocks uint32 `yaml:"total_blocks"`
	KVBlocks    uint32 `yaml:"kv_blocks"`
}

// FilesystemBlocks reports how many of TotalBlocks the log-structured
// filesystem gets, after reserving KVBlocks for the config store.
func (d DeviceConfig) FilesystemBlocks() uint32 {
	return d.TotalBlocks - d.KVBlocks
}

// KVBaseBlock reports the first block of the reserved key/value region.
func (d DeviceConfig) KVBaseBlock() uint32 {
	return d.FilesystemBlocks()
}

// Config is the full boot configuration document.
type Config struct {
	Memory     MemoryConfig     `yaml:"memory"`
	Watchdog   WatchdogConfig   `yaml:"watchdog"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Device     DeviceConfig     `yaml:"device"`
}

// Default returns the configuration littleOS boots with when no file is
// supplied: a 32 KiB heap split evenly between kernel and interpreter
// regions, an 8 second watchdog timeout, and the supervisor's stock
// thresholds.
func Default() Config {
	const heapTotal = 32 * 1024
	const half = heapTotal / 2
	return Config{
		Memory: MemoryConfig{
			KernelBase:      0,
			KernelSize:      half,
			InterpreterBase: half,
			InterpreterSize: half,
			StackBase:       heapTotal,
			StackTop:        heapTotal + 8192,
		},
		Watchdog: WatchdogConfig{TimeoutMs: supervisor.DefaultWatchdogTimeoutMs},
		Supervisor: SupervisorConfig{
			CheckIntervalMs:   supervisor.DefaultCheckIntervalMs,
			WatchdogTimeoutMs: supervisor.DefaultWatchdogTimeoutMs,
			MemoryWarnPercent: supervisor.DefaultMemoryWarnPercent,
			TempWarnC:         supervisor.DefaultTempWarnC,
			TempCriticalC:     supervisor.DefaultTempCriticalC,
		},
		Device: DeviceConfig{
			TotalBlocks: 2048,
			KVBlocks:    24,
		},
	}
}

// Load reads and parses a YAML boot configuration file, filling any
// zero-valued fields from Default() so a partial file is valid input.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
