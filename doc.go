// Package lib documents the top-level layout of littleOS's core kernel
// subsystems: the segmented memory manager, task scheduler, log-structured
// filesystem, and second-core supervisor, plus the ambient components they
// depend on (byte-block backend, permissions, watchdog, config K/V, eval
// bridge, system info).
//
// See internal/ for implementation packages and cmd/littleosctl for a
// runnable demonstration that wires every component together.
package lib
