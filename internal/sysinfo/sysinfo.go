// Package sysinfo assembles the neofetch-style system snapshot of
// original_source/src/sys/littlefetch.c: uptime, clock rate, memory
// usage, temperature, and the caller's security context, gathered from
// the other kernel packages rather than read directly from hardware.
package sysinfo

import (
	"fmt"

	"github.com/littleos-dev/littleos/internal/memory"
	"github.com/littleos-dev/littleos/internal/security"
)

// Logo is the RP2040-themed ASCII art original_source prints alongside the
// info lines.
var Logo = []string{
	`    ___       ___    `,
	`   /   \___/   \   `,
	`  |  RP2040 OS  |  `,
	`   \___________/   `,
	`    | | | | | |    `,
	`    |_|_|_|_|_|    `,
	`                   `,
	` littleOS v0.1    `,
}

// Snapshot is one point-in-time aggregate system report.
type Snapshot struct {
	UptimeMs      uint64
	CPUFreqMHz    uint32
	TempCelsius   float64
	HealthStatus  string
	MemoryTotalKB uint32
	MemoryUsedKB  uint32
	MemoryFreeKB  uint32
	CurrentUser   security.Context
}

// FormatUptime renders milliseconds the way format_uptime does: days,
// hours and minutes once past a day; hours, minutes and seconds once past
// an hour; minutes and seconds once past a minute; seconds alone below
// that. Lower units are printed even when they are zero.
func FormatUptime(ms uint64) string {
	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours%24, minutes%60)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes%60, seconds%60)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds%60)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// MemoryInfo reports total/used/free heap kilobytes across both
// memory.Manager regions, mirroring get_memory_info's combined view.
func MemoryInfo(mem *memory.Manager) (totalKB, usedKB, freeKB uint32) {
	stats := mem.GetStats()
	usedBytes := stats.Kernel.Used + stats.Interpreter.Used
	freeBytes := stats.Kernel.Free + stats.Interpreter.Free
	totalBytes := usedBytes + freeBytes
	return totalBytes / 1024, usedBytes / 1024, freeBytes / 1024
}

// Collect builds a Snapshot from the kernel's live subsystems. cpuFreqMHz
// and tempCelsius are supplied by the caller since they come from
// platform-specific sources (clock_get_hz / the supervisor's last
// temperature sample) that sysinfo itself has no access to.
func Collect(uptimeMs uint64, cpuFreqMHz uint32, tempCelsius float64, healthStatus string, mem *memory.Manager, user security.Context) Snapshot {
	total, used, free := MemoryInfo(mem)
	return Snapshot{
		UptimeMs:      uptimeMs,
		CPUFreqMHz:    cpuFreqMHz,
		TempCelsius:   tempCelsius,
		HealthStatus:  healthStatus,
		MemoryTotalKB: total,
		MemoryUsedKB:  used,
		MemoryFreeKB:  free,
		CurrentUser:   user,
	}
}

// Lines renders the snapshot as the label/value pairs littlefetch prints
// next to the logo, in its original order.
func (s Snapshot) Lines() []string {
	return []string{
		"Uptime: " + FormatUptime(s.UptimeMs),
		fmt.Sprintf("CPU: %d MHz", s.CPUFreqMHz),
		fmt.Sprintf("Temp: %.1fC", s.TempCelsius),
		"Health: " + s.HealthStatus,
		fmt.Sprintf("Memory: %d/%d KB (%d KB free)", s.MemoryUsedKB, s.MemoryTotalKB, s.MemoryFreeKB),
		fmt.Sprintf("User: uid=%d gid=%d", s.CurrentUser.UID, s.CurrentUser.EGID),
	}
}
