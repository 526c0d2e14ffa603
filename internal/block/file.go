package block

import (
	"context"
	"os"

	"golang.org/x/sys/unix"
)

// File is an os.File-backed device, exercised by integration tests that
// want a real on-disk, crash-simulatable backend rather than the in-memory
// one. It uses unix.Pread/Pwrite so concurrent reads and writes don't
// require an extra seek+lock round trip.
type File struct {
	f          *os.File
	blockCount uint32
}

// OpenFile opens (or creates) path and truncates/extends it to exactly
// blockCount*Size bytes.
func OpenFile(path string, blockCount uint32) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	size := int64(blockCount) * Size
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}
	return &File{f: f, blockCount: blockCount}, nil
}

func (d *File) BlockCount() uint32 { return d.blockCount }

func (d *File) ReadBlock(ctx context.Context, blockAddr uint32, buf *[Size]byte) error {
	if blockAddr >= d.blockCount {
		return ErrInvalidBlock
	}
	off := int64(blockAddr) * Size
	n, err := unix.Pread(int(d.f.Fd()), buf[:], off)
	if err != nil {
		return ErrIO
	}
	if n != Size {
		return ErrIO
	}
	return nil
}

func (d *File) WriteBlock(ctx context.Context, blockAddr uint32, buf *[Size]byte) error {
	if blockAddr >= d.blockCount {
		return ErrInvalidBlock
	}
	off := int64(blockAddr) * Size
	n, err := unix.Pwrite(int(d.f.Fd()), buf[:], off)
	if err != nil {
		return ErrIO
	}
	if n != Size {
		return ErrIO
	}
	return nil
}

func (d *File) EraseSector(ctx context.Context, sectorAddr uint32) error {
	return ErrUnsupported
}

// Close releases the underlying file descriptor.
func (d *File) Close() error { return d.f.Close() }

// Sync flushes dirty pages to the host filesystem, standing in for the
// device's single-block-write atomicity assumption.
func (d *File) Sync() error { return d.f.Sync() }
