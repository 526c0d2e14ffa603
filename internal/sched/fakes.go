package sched

import "github.com/littleos-dev/littleos/internal/security"

// FakeStackAllocator hands out sequential stack bases from a bump pointer,
// standing in for the platform allocator, which hands out stacks from
// outside the managed memory regions.
type FakeStackAllocator struct {
	next uint32
	freed map[uint32]bool
}

func NewFakeStackAllocator(base uint32) *FakeStackAllocator {
	return &FakeStackAllocator{next: base, freed: make(map[uint32]bool)}
}

func (a *FakeStackAllocator) AllocStack(size uint32) (uint32, bool) {
	base := a.next
	a.next += size
	return base, true
}

func (a *FakeStackAllocator) FreeStack(base uint32) {
	a.freed[base] = true
}

// UserDB is a minimal in-memory user database: root (uid 0) gets full
// capabilities and gid 0, everyone else gets the "users" gid and no
// capabilities.
type UserDB struct {
	UsersGID uint32
}

func NewUserDB() *UserDB { return &UserDB{UsersGID: 100} }

func (u *UserDB) SecurityContextFor(uid uint32) security.Context {
	if uid == 0 {
		return security.Context{
			UID: 0, EUID: 0, GID: 0, EGID: 0,
			Capabilities: ^uint32(0),
		}
	}
	return security.Context{
		UID: uid, EUID: uid, GID: u.UsersGID, EGID: u.UsersGID,
	}
}
