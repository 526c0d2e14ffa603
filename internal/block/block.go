// Package block defines the byte-block backend contract consumed by the
// filesystem and ships two implementations: an in-memory backend used by
// every other package's tests, and a file-backed backend for on-disk
// integration testing.
package block

import (
	"context"
	"errors"
)

// Size is the fixed I/O unit of the filesystem, in bytes.
const Size = 512

// Errors returned by Backend implementations. Higher layers propagate
// these unchanged.
var (
	ErrInvalidBlock  = errors.New("block: invalid block address")
	ErrUnsupported   = errors.New("block: operation not supported by this backend")
	ErrIO            = errors.New("block: I/O failure")
)

// Backend is the abstract 512-byte block read/write/erase provider that
// the filesystem is built on. Implementations must bound block_addr by
// BlockCount and fail with ErrInvalidBlock otherwise.
type Backend interface {
	ReadBlock(ctx context.Context, blockAddr uint32, buf *[Size]byte) error
	WriteBlock(ctx context.Context, blockAddr uint32, buf *[Size]byte) error
	// EraseSector is optional; backends without a sector-erase concept
	// return ErrUnsupported.
	EraseSector(ctx context.Context, sectorAddr uint32) error
	BlockCount() uint32
}
