// Package supervisor implements the Core 1 health monitor: watchdog
// feeding, memory/temperature thresholds, a best-effort leak heuristic
// (its rule is described at the leak check in checkSystemHealth), and a
// Core 0 heartbeat-staleness check, all driven by a 100ms check interval
// nested inside a 10ms poll loop (original_source/src/supervisor.c).
package supervisor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/littleos-dev/littleos/internal/clockutil"
	"github.com/littleos-dev/littleos/internal/kernellog"
	"github.com/littleos-dev/littleos/internal/memory"
	"github.com/littleos-dev/littleos/internal/watchdog"
)

// HealthStatus mirrors original_source/include/supervisor.h's system_health_t.
type HealthStatus int32

const (
	HealthOK HealthStatus = iota
	HealthWarning
	HealthCritical
	HealthEmergency
)

func (h HealthStatus) String() string {
	switch h {
	case HealthOK:
		return "OK"
	case HealthWarning:
		return "WARNING"
	case HealthCritical:
		return "CRITICAL"
	case HealthEmergency:
		return "EMERGENCY"
	default:
		return "UNKNOWN"
	}
}

// Health check flags, a direct port of health_flag_t's bitfield.
const (
	FlagWatchdog      uint32 = 1 << 0
	FlagMemoryHigh    uint32 = 1 << 1
	FlagMemoryLeak    uint32 = 1 << 2
	FlagTempHigh      uint32 = 1 << 3
	FlagTempCritical  uint32 = 1 << 4
	FlagStackOverflow uint32 = 1 << 5
	FlagCore0Hung     uint32 = 1 << 6
	FlagFIFOOverflow  uint32 = 1 << 7
)

// Defaults taken verbatim from original_source/include/supervisor.h.
const (
	DefaultCheckIntervalMs   = 100
	DefaultWatchdogTimeoutMs = 8000
	DefaultMemoryWarnPercent = 80
	DefaultTempWarnC         = 70.0
	DefaultTempCriticalC     = 80.0

	pollIntervalMs   = 10
	heartbeatHangMs  = 5000
	overflowGuardMs  = 1_000_000_000 // ~11 days; anything past this is a wrap, not a hang
	leakSampleBytes  = 1024
	leakFloorBytes   = 50_000
	leakStreakToFlag = 50
)

// TemperatureSensor abstracts the RP2040 die-temperature ADC channel
// (original_source reads ADC channel 4 and applies a linear conversion;
// the simulated sensor returns a pre-converted Celsius reading).
type TemperatureSensor interface {
	ReadCelsius() float64
}

// FixedTemperature is a deterministic sensor stand-in for tests and demos.
type FixedTemperature struct {
	Celsius float64
}

func (f FixedTemperature) ReadCelsius() float64 { return f.Celsius }

// Config holds the supervisor's tunable thresholds.
type Config struct {
	CheckIntervalMs   uint64
	WatchdogTimeoutMs uint64
	MemoryWarnPercent float64
	TempWarnC         float64
	TempCriticalC     float64
}

// DefaultConfig returns the original firmware's threshold values.
func DefaultConfig() Config {
	return Config{
		CheckIntervalMs:   DefaultCheckIntervalMs,
		WatchdogTimeoutMs: DefaultWatchdogTimeoutMs,
		MemoryWarnPercent: DefaultMemoryWarnPercent,
		TempWarnC:         DefaultTempWarnC,
		TempCriticalC:     DefaultTempCriticalC,
	}
}

// Metrics is the atomically-updated snapshot read by cmd/littleosctl and
// exported as Prometheus gauges/counters.
type Metrics struct {
	watchdogFeeds   uint64
	lastFeedMs      uint64
	heapUsedBytes   uint64
	heapFreeBytes   uint64
	heapPeakBytes   uint64
	heapAllocations uint64
	tempMilliC      int64
	tempPeakMilliC  int64
	uptimeMs        uint64
	core0LastBeatMs uint64
	core0Responsive uint32
	healthStatus    int32
	healthFlags     uint32
	warningCount    uint64
	criticalCount   uint64
}

// Snapshot is an immutable point-in-time copy of Metrics.
type Snapshot struct {
	WatchdogFeeds   uint64
	HeapUsedBytes   uint64
	HeapFreeBytes   uint64
	HeapPeakBytes   uint64
	HeapAllocations uint64
	TempCelsius     float64
	TempPeakCelsius float64
	UptimeMs        uint64
	Core0Responsive bool
	HealthStatus    HealthStatus
	HealthFlags     uint32
	WarningCount    uint64
	CriticalCount   uint64
}

// Supervisor is the Core 1 health monitor.
type Supervisor struct {
	cfg   Config
	clock clockutil.Clock
	mem   *memory.Manager
	wd    *watchdog.Facade
	temp  TemperatureSensor
	log   *kernellog.KLog

	metrics Metrics

	lastHeapUsed   uint64
	leakStreak     int
	lastCheckMs    uint64
	alertsEnabled  uint32

	promGauges *prometheusGauges
}

// New constructs a Supervisor over the given dependencies; callers run it
// with Run, typically on a dedicated goroutine standing in for Core 1.
func New(cfg Config, clock clockutil.Clock, mem *memory.Manager, wd *watchdog.Facade, temp TemperatureSensor, log *kernellog.KLog) *Supervisor {
	s := &Supervisor{cfg: cfg, clock: clock, mem: mem, wd: wd, temp: temp, log: log, alertsEnabled: 1}
	now := clock.NowMs()
	atomic.StoreUint64(&s.metrics.uptimeMs, now)
	atomic.StoreUint64(&s.metrics.core0LastBeatMs, now)
	atomic.StoreUint64(&s.metrics.lastFeedMs, now)
	atomic.StoreUint32(&s.metrics.core0Responsive, 1)
	s.lastCheckMs = now
	s.promGauges = newPrometheusGauges()
	return s
}

// SetAlertsEnabled toggles console alert logging without affecting metrics
// collection (original_source's supervisor_set_alerts_enabled).
func (s *Supervisor) SetAlertsEnabled(enabled bool) {
	var v uint32
	if enabled {
		v = 1
	}
	atomic.StoreUint32(&s.alertsEnabled, v)
}

// Heartbeat records that Core 0's main loop made forward progress.
func (s *Supervisor) Heartbeat() {
	atomic.StoreUint64(&s.metrics.core0LastBeatMs, s.clock.NowMs())
}

// ReportMemory is unused directly here: heap figures are sampled fresh
// from the memory manager every check rather than accumulated from
// caller-reported deltas, since the manager already tracks exact usage.
// Kept as a named no-op to match original_source's supervisor_report_memory
// entry point for callers migrating from delta-based reporting.
func (s *Supervisor) ReportMemory(delta int64) {}

// Run drives the 10ms poll / 100ms health-check loop until ctx is
// cancelled. It always feeds the watchdog once per poll, mirroring
// original_source/src/supervisor.c's placement of wdt_feed() outside the
// interval-gated check.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(pollIntervalMs * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := s.clock.NowMs()
			atomic.StoreUint64(&s.metrics.uptimeMs, now)
			if now-s.lastCheckMs >= s.cfg.CheckIntervalMs {
				s.checkSystemHealth(now)
				s.lastCheckMs = now
			}
			s.wd.Feed()
			atomic.StoreUint64(&s.metrics.watchdogFeeds, s.wd.FeedCount())
			atomic.StoreUint64(&s.metrics.lastFeedMs, s.wd.LastFeedMs())
			s.promGauges.feeds.Inc()
		}
	}
}

func (s *Supervisor) alertf(format string, args ...interface{}) {
	if atomic.LoadUint32(&s.alertsEnabled) == 0 {
		return
	}
	s.log.Warnf(format, args...)
}

// checkSystemHealth is the 100ms body of original_source's
// check_system_health: watchdog staleness, Core 0 heartbeat staleness
// (with an overflow/resync guard), memory high-watermark and leak
// heuristic, and temperature thresholds, folded into one overall status.
func (s *Supervisor) checkSystemHealth(now uint64) {
	var flags uint32
	health := HealthOK

	timeSinceFeed := now - atomic.LoadUint64(&s.metrics.lastFeedMs)
	if timeSinceFeed > s.cfg.WatchdogTimeoutMs/2 {
		flags |= FlagWatchdog
		health = maxHealth(health, HealthWarning)
		s.alertf("watchdog not fed for %d ms", timeSinceFeed)
	}

	lastBeat := atomic.LoadUint64(&s.metrics.core0LastBeatMs)
	timeSinceBeat := now - lastBeat
	if timeSinceBeat > overflowGuardMs {
		s.log.Infof("heartbeat timing overflow detected, resynchronizing")
		atomic.StoreUint64(&s.metrics.core0LastBeatMs, now)
		timeSinceBeat = 0
	}
	if timeSinceBeat > heartbeatHangMs {
		flags |= FlagCore0Hung
		health = maxHealth(health, HealthCritical)
		atomic.StoreUint32(&s.metrics.core0Responsive, 0)
		s.alertf("core 0 not responding (last heartbeat %d ms ago)", timeSinceBeat)
	} else {
		atomic.StoreUint32(&s.metrics.core0Responsive, 1)
	}

	stats := s.mem.GetStats()
	heapUsed := uint64(stats.Kernel.Used) + uint64(stats.Interpreter.Used)
	heapCapacity := uint64(stats.Kernel.Used+stats.Kernel.Free) + uint64(stats.Interpreter.Used+stats.Interpreter.Free)
	var usagePercent float64
	if heapCapacity > 0 {
		usagePercent = float64(heapUsed) / float64(heapCapacity) * 100
	}
	atomic.StoreUint64(&s.metrics.heapUsedBytes, heapUsed)
	atomic.StoreUint64(&s.metrics.heapFreeBytes, heapCapacity-heapUsed)
	atomic.StoreUint64(&s.metrics.heapAllocations, uint64(stats.Kernel.Allocations+stats.Interpreter.Allocations))
	peakUsed := uint64(stats.Kernel.Peak) + uint64(stats.Interpreter.Peak)
	if peakUsed > atomic.LoadUint64(&s.metrics.heapPeakBytes) {
		atomic.StoreUint64(&s.metrics.heapPeakBytes, peakUsed)
	}

	if usagePercent > s.cfg.MemoryWarnPercent {
		flags |= FlagMemoryHigh
		health = maxHealth(health, HealthWarning)
		s.alertf("memory usage high: %.1f%%", usagePercent)
	}

	// A leak streak counts consecutive checks in which usage grew by more
	// than leakSampleBytes; any check without such growth resets it, and leakStreakToFlag
	// consecutive growing checks above leakFloorBytes is flagged.
	if heapUsed > s.lastHeapUsed+leakSampleBytes {
		s.leakStreak++
	} else {
		s.leakStreak = 0
	}
	if heapUsed > leakFloorBytes && s.leakStreak >= leakStreakToFlag {
		flags |= FlagMemoryLeak
		health = maxHealth(health, HealthWarning)
	}
	s.lastHeapUsed = heapUsed

	tempC := s.temp.ReadCelsius()
	tempMilliC := int64(tempC * 1000)
	atomic.StoreInt64(&s.metrics.tempMilliC, tempMilliC)
	if tempMilliC > atomic.LoadInt64(&s.metrics.tempPeakMilliC) {
		atomic.StoreInt64(&s.metrics.tempPeakMilliC, tempMilliC)
	}
	if tempC > s.cfg.TempCriticalC {
		flags |= FlagTempCritical
		health = HealthEmergency
		s.alertf("temperature critical: %.1fC", tempC)
	} else if tempC > s.cfg.TempWarnC {
		flags |= FlagTempHigh
		health = maxHealth(health, HealthWarning)
		s.alertf("temperature high: %.1fC", tempC)
	}

	atomic.StoreUint32(&s.metrics.healthFlags, flags)
	atomic.StoreInt32(&s.metrics.healthStatus, int32(health))
	if health >= HealthWarning {
		atomic.AddUint64(&s.metrics.warningCount, 1)
		s.promGauges.warnings.Inc()
	}
	if health >= HealthCritical {
		atomic.AddUint64(&s.metrics.criticalCount, 1)
		s.promGauges.criticals.Inc()
	}

	s.promGauges.update(s)
}

func maxHealth(a, b HealthStatus) HealthStatus {
	if b > a {
		return b
	}
	return a
}

// GetMetrics returns a snapshot of the current metrics. Each field is
// loaded atomically on its own, so one snapshot may mix fields written by
// different checks.
func (s *Supervisor) GetMetrics() Snapshot {
	return Snapshot{
		WatchdogFeeds:   atomic.LoadUint64(&s.metrics.watchdogFeeds),
		HeapUsedBytes:   atomic.LoadUint64(&s.metrics.heapUsedBytes),
		HeapFreeBytes:   atomic.LoadUint64(&s.metrics.heapFreeBytes),
		HeapPeakBytes:   atomic.LoadUint64(&s.metrics.heapPeakBytes),
		HeapAllocations: atomic.LoadUint64(&s.metrics.heapAllocations),
		TempCelsius:     float64(atomic.LoadInt64(&s.metrics.tempMilliC)) / 1000,
		TempPeakCelsius: float64(atomic.LoadInt64(&s.metrics.tempPeakMilliC)) / 1000,
		UptimeMs:        atomic.LoadUint64(&s.metrics.uptimeMs),
		Core0Responsive: atomic.LoadUint32(&s.metrics.core0Responsive) == 1,
		HealthStatus:    HealthStatus(atomic.LoadInt32(&s.metrics.healthStatus)),
		HealthFlags:     atomic.LoadUint32(&s.metrics.healthFlags),
		WarningCount:    atomic.LoadUint64(&s.metrics.warningCount),
		CriticalCount:   atomic.LoadUint64(&s.metrics.criticalCount),
	}
}

// GetHealth reports just the overall status, for callers that need nothing
// else from the metrics record.
func (s *Supervisor) GetHealth() HealthStatus {
	return HealthStatus(atomic.LoadInt32(&s.metrics.healthStatus))
}

// Collectors exposes the Prometheus collectors for registration by a
// caller-owned registry (cmd/littleosctl's `serve-metrics`).
func (s *Supervisor) Collectors() []prometheus.Collector {
	return s.promGauges.collectors()
}

type prometheusGauges struct {
	heapUsed     prometheus.Gauge
	heapPeak     prometheus.Gauge
	tempCelsius  prometheus.Gauge
	healthStatus prometheus.Gauge
	warnings     prometheus.Counter
	criticals    prometheus.Counter
	feeds        prometheus.Counter
}

func newPrometheusGauges() *prometheusGauges {
	return &prometheusGauges{
		heapUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "littleos", Subsystem: "supervisor", Name: "heap_used_bytes",
		}),
		heapPeak: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "littleos", Subsystem: "supervisor", Name: "heap_peak_bytes",
		}),
		tempCelsius: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "littleos", Subsystem: "supervisor", Name: "die_temperature_celsius",
		}),
		healthStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "littleos", Subsystem: "supervisor", Name: "health_status",
			Help: "0=OK 1=WARNING 2=CRITICAL 3=EMERGENCY",
		}),
		warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "littleos", Subsystem: "supervisor", Name: "warnings_total",
		}),
		criticals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "littleos", Subsystem: "supervisor", Name: "criticals_total",
		}),
		feeds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "littleos", Subsystem: "supervisor", Name: "watchdog_feeds_total",
		}),
	}
}

func (g *prometheusGauges) update(s *Supervisor) {
	snap := Snapshot{
		HeapUsedBytes: atomic.LoadUint64(&s.metrics.heapUsedBytes),
		HeapPeakBytes: atomic.LoadUint64(&s.metrics.heapPeakBytes),
		TempCelsius:   float64(atomic.LoadInt64(&s.metrics.tempMilliC)) / 1000,
		HealthStatus:  HealthStatus(atomic.LoadInt32(&s.metrics.healthStatus)),
	}
	g.heapUsed.Set(float64(snap.HeapUsedBytes))
	g.heapPeak.Set(float64(snap.HeapPeakBytes))
	g.tempCelsius.Set(snap.TempCelsius)
	g.healthStatus.Set(float64(snap.HealthStatus))
}

func (g *prometheusGauges) collectors() []prometheus.Collector {
	return []prometheus.Collector{g.heapUsed, g.heapPeak, g.tempCelsius, g.healthStatus, g.warnings, g.criticals, g.feeds}
}
