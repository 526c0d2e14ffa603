package block

import "context"

// Memory is an in-RAM backend, the standard test and demo device: a flat
// byte slice sized blockCount*Size.
type Memory struct {
	data       []byte
	blockCount uint32
}

// NewMemory allocates a zeroed in-memory device of blockCount blocks.
func NewMemory(blockCount uint32) *Memory {
	return &Memory{
		data:       make([]byte, uint64(blockCount)*Size),
		blockCount: blockCount,
	}
}

func (m *Memory) BlockCount() uint32 { return m.blockCount }

func (m *Memory) ReadBlock(ctx context.Context, blockAddr uint32, buf *[Size]byte) error {
	if blockAddr >= m.blockCount {
		return ErrInvalidBlock
	}
	off := uint64(blockAddr) * Size
	copy(buf[:], m.data[off:off+Size])
	return nil
}

func (m *Memory) WriteBlock(ctx context.Context, blockAddr uint32, buf *[Size]byte) error {
	if blockAddr >= m.blockCount {
		return ErrInvalidBlock
	}
	off := uint64(blockAddr) * Size
	copy(m.data[off:off+Size], buf[:])
	return nil
}

func (m *Memory) EraseSector(ctx context.Context, sectorAddr uint32) error {
	return ErrUnsupported
}
