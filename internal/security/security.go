// Package security implements the permission and capability model: a
// security context (uid/gid/umask/capabilities) consulted on every
// resource access check, applying owner/group/other mode-bit logic
// against a security context instead of the current host user.
package security

// Capability is a single bit in a 32-bit capability mask.
type Capability uint32

const (
	// CapTaskKill gates killing (Exec-on-Task) another task.
	CapTaskKill Capability = 1 << iota
)

// Action is a requested combination of read/write/exec bits, matching
// Unix mode semantics.
type Action uint8

const (
	Read Action = 1 << iota
	Write
	Exec
)

// ResourceType tags what kind of object a ResourcePermission guards. Only
// Task resources currently gate on capabilities in addition to mode bits.
type ResourceType int

const (
	ResourceFile ResourceType = iota
	ResourceDirectory
	ResourceTask
)

// Context carries the uid/gid/capability tuple accompanying every task,
// consulted on every permission check.
type Context struct {
	UID          uint32
	EUID         uint32
	GID          uint32
	EGID         uint32
	Umask        uint16
	Capabilities uint32
}

// HasCapability reports whether cap is granted, with root (euid==0)
// implicitly holding every capability.
func (c Context) HasCapability(cap Capability) bool {
	if c.EUID == 0 {
		return true
	}
	return c.Capabilities&uint32(cap) != 0
}

// Grant adds cap to the context's mask. The mask is always intersected
// with what euid permits when consulted (root implicitly has all caps
// regardless of the stored mask).
func (c *Context) Grant(cap Capability) {
	c.Capabilities |= uint32(cap)
}

// Revoke removes cap from the context's mask.
func (c *Context) Revoke(cap Capability) {
	c.Capabilities &^= uint32(cap)
}

// Permission is a resource permission: owner uid/gid, 9-bit Unix-style
// mode, and a resource type tag.
type Permission struct {
	OwnerUID uint32
	OwnerGID uint32
	Mode     uint16 // 9 bits: owner(3) group(3) other(3)
	Type     ResourceType
}

const (
	modeOwnerShift = 6
	modeGroupShift = 3
	modeOtherShift = 0
)

// bitsFor extracts the 3-bit rwx group for owner/group/other from mode.
func bitsFor(mode uint16, shift uint) uint8 {
	return uint8((mode >> shift) & 0x7)
}

func actionSatisfied(bits uint8, action Action) bool {
	var need uint8
	if action&Read != 0 {
		need |= 0x4
	}
	if action&Write != 0 {
		need |= 0x2
	}
	if action&Exec != 0 {
		need |= 0x1
	}
	return bits&need == need
}

// CheckAccess is the pure access-check function: its result depends only
// on (euid, egid, owner_uid, owner_gid, mode, action); running it twice
// yields the same answer.
//
//  1. euid == 0 (root): allow.
//  2. euid == resource.owner_uid: check owner bits.
//  3. egid == resource.owner_gid: check group bits.
//  4. otherwise: check other bits.
func CheckAccess(ctx Context, perm Permission, action Action) bool {
	if ctx.EUID == 0 {
		return true
	}
	switch {
	case ctx.EUID == perm.OwnerUID:
		return actionSatisfied(bitsFor(perm.Mode, modeOwnerShift), action)
	case ctx.EGID == perm.OwnerGID:
		return actionSatisfied(bitsFor(perm.Mode, modeGroupShift), action)
	default:
		return actionSatisfied(bitsFor(perm.Mode, modeOtherShift), action)
	}
}

// CheckAccessWithCapability layers the capability gate on top of
// CheckAccess: Task resources additionally require CAP_TASK_KILL for any
// action that includes Exec ("kill"); other resource types rely on mode
// bits alone.
func CheckAccessWithCapability(ctx Context, perm Permission, action Action) bool {
	if !CheckAccess(ctx, perm, action) {
		return false
	}
	if perm.Type == ResourceTask && action&Exec != 0 {
		return ctx.HasCapability(CapTaskKill)
	}
	return true
}

// CanSeteuid reports whether ctx may change its effective uid to target:
// permitted iff target equals the real uid (dropping privilege) or the
// current euid is root. There is no capability-based setuid in this
// design.
func CanSeteuid(ctx Context, target uint32) bool {
	return target == ctx.UID || ctx.EUID == 0
}

// CanSetegid is the gid analogue of CanSeteuid.
func CanSetegid(ctx Context, target uint32) bool {
	return target == ctx.GID || ctx.EUID == 0
}

// CanChmod reports whether ctx may chmod a resource it owns or is root
// for.
func CanChmod(ctx Context, perm Permission) bool {
	return ctx.EUID == 0 || ctx.EUID == perm.OwnerUID
}

// CanChown is root-only.
func CanChown(ctx Context) bool {
	return ctx.EUID == 0
}
