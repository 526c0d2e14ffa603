package lfs

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
)

// All on-disk records are bit-exact, little-endian, and a multiple of 512
// bytes. CRC is CRC-32 with the standard reflected IEEE polynomial
// 0xEDB88320 (crc32.IEEE), computed with the record's CRC field zeroed.

const (
	blockBytes = 512

	magicSuperblock  uint32 = 0xF2FE
	fsVersion        uint16 = 1
	segmentBlocks           = 8    // 8 blocks == 4096 bytes per segment
	defaultTotalInodes      = 256
	fixedMetadataBlocks     = 3 // superblock + 2 checkpoint slots
	rootInodeNum     uint32 = 2

	invalidBlock uint32 = 0xFFFFFFFF
	invalidNode  uint32 = 0xFFFFFFFF

	natEntrySize = 8
	sitEntrySize = 4

	directPointers = 10
)

// NodeType tags what a NAT entry currently points at.
type NodeType uint8

const (
	NodeNone NodeType = iota
	NodeInode
	NodeIndirect
	NodeData
)

// InodeMode distinguishes regular files from directories.
type InodeMode uint16

const (
	ModeRegular   InodeMode = 1
	ModeDirectory InodeMode = 2
)

// DirentType mirrors InodeMode for the packed on-disk directory entry.
const (
	DirentFile = 1
	DirentDir  = 2
)

func djb2(name string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(name); i++ {
		h = h*33 + uint32(name[i])
	}
	return h
}

func crcOf(buf []byte) uint32 {
	return crc32.ChecksumIEEE(buf)
}

// ---- Superblock ----

type Superblock struct {
	Magic         uint32
	Version       uint16
	_             uint16 // padding to keep the struct naturally aligned
	BlockSize     uint32
	SegmentSize   uint32
	TotalBlocks   uint32
	TotalSegments uint32
	TotalInodes   uint32
	RootInode     uint32
	NATStart      uint32
	NATBlocks     uint32
	SITStart      uint32
	SITBlocks     uint32
	MainStart     uint32
	Flags         uint32
	MountCount    uint32
	LastSyncTime  uint64
	CreationTime  uint64
	CRC32         uint32
	Reserved      [432]byte
}

func (s *Superblock) MarshalBlock() [blockBytes]byte {
	var out [blockBytes]byte
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, s)
	copy(out[:], buf.Bytes())
	return out
}

func unmarshalSuperblock(buf []byte) Superblock {
	var s Superblock
	_ = binary.Read(bytes.NewReader(buf), binary.LittleEndian, &s)
	return s
}

// computeCRC returns the CRC32 of the record with the CRC32 field treated
// as zero, without mutating s.
func (s Superblock) computeCRC() uint32 {
	tmp := s
	tmp.CRC32 = 0
	block := tmp.MarshalBlock()
	return crcOf(block[:])
}

func (s *Superblock) updateCRC() { s.CRC32 = s.computeCRC() }

func (s Superblock) validCRC() bool { return s.CRC32 == s.computeCRC() }

// ---- Checkpoint ----

const orphanListLen = 32

type Checkpoint struct {
	CheckpointNum  uint64
	Timestamp      uint64
	FreeBlocks     uint32
	NextFreeNodeID uint32
	ActiveSegNode  uint32
	ActiveSegInode uint32
	ActiveSegData  uint32
	OrphanList     [orphanListLen]uint32
	CRC32          uint32
	Reserved       [344]byte
}

func (c *Checkpoint) MarshalBlock() [blockBytes]byte {
	var out [blockBytes]byte
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, c)
	copy(out[:], buf.Bytes())
	return out
}

func unmarshalCheckpoint(buf []byte) Checkpoint {
	var c Checkpoint
	_ = binary.Read(bytes.NewReader(buf), binary.LittleEndian, &c)
	return c
}

func (c Checkpoint) computeCRC() uint32 {
	tmp := c
	tmp.CRC32 = 0
	block := tmp.MarshalBlock()
	return crcOf(block[:])
}

func (c *Checkpoint) updateCRC() { c.CRC32 = c.computeCRC() }

func (c Checkpoint) validCRC() bool { return c.CRC32 == c.computeCRC() }

// ---- NAT entry ----

// NATEntry maps a node id to its current physical block address, the only
// mutable mapping in the log-structured design.
type NATEntry struct {
	BlockAddr uint32
	Version   uint16
	Type      NodeType
	_         uint8
}

func marshalNATEntry(e NATEntry) [natEntrySize]byte {
	var out [natEntrySize]byte
	binary.LittleEndian.PutUint32(out[0:4], e.BlockAddr)
	binary.LittleEndian.PutUint16(out[4:6], e.Version)
	out[6] = byte(e.Type)
	return out
}

func unmarshalNATEntry(b []byte) NATEntry {
	return NATEntry{
		BlockAddr: binary.LittleEndian.Uint32(b[0:4]),
		Version:   binary.LittleEndian.Uint16(b[4:6]),
		Type:      NodeType(b[6]),
	}
}

// ---- SIT entry ----

// SITEntry is the per-segment valid-block bookkeeping record.
type SITEntry struct {
	ValidCount uint16
	Flags      uint8
	Age        uint8
}

func marshalSITEntry(e SITEntry) [sitEntrySize]byte {
	var out [sitEntrySize]byte
	binary.LittleEndian.PutUint16(out[0:2], e.ValidCount)
	out[2] = e.Flags
	out[3] = e.Age
	return out
}

func unmarshalSITEntry(b []byte) SITEntry {
	return SITEntry{
		ValidCount: binary.LittleEndian.Uint16(b[0:2]),
		Flags:      b[2],
		Age:        b[3],
	}
}

// ---- Inode ----

type Inode struct {
	Mode           InodeMode
	_              uint16
	Size           uint64
	Atime          uint64
	Mtime          uint64
	Ctime          uint64
	LinkCount      uint32
	Direct         [directPointers]uint32
	Indirect       uint32
	DoubleIndirect uint32
	InodeNum       uint32
	ParentInodeNum uint32
	Generation     uint32
	CRC32          uint32
	Reserved       [408]byte
}

func (i *Inode) MarshalBlock() [blockBytes]byte {
	var out [blockBytes]byte
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, i)
	copy(out[:], buf.Bytes())
	return out
}

func unmarshalInode(buf []byte) Inode {
	var i Inode
	_ = binary.Read(bytes.NewReader(buf), binary.LittleEndian, &i)
	return i
}

func (i Inode) computeCRC() uint32 {
	tmp := i
	tmp.CRC32 = 0
	block := tmp.MarshalBlock()
	return crcOf(block[:])
}

func (i *Inode) updateCRC() { i.CRC32 = i.computeCRC() }

func newInode(mode InodeMode, inodeNum, parent uint32) Inode {
	n := Inode{
		Mode:           mode,
		InodeNum:       inodeNum,
		ParentInodeNum: parent,
		Generation:     1,
	}
	for i := range n.Direct {
		n.Direct[i] = invalidBlock
	}
	n.Indirect = invalidBlock
	n.DoubleIndirect = invalidBlock
	if mode == ModeDirectory {
		n.LinkCount = 2
	} else {
		n.LinkCount = 1
	}
	return n
}

// ---- Directory entry (packed, variable length) ----

const direntHeaderSize = 12

// Dirent is one packed directory entry. EntrySize spans to the next entry
// (header + name, possibly with trailing slack reserved by a split).
type Dirent struct {
	EntrySize uint16
	InodeNum  uint32
	NameLen   uint8
	Type      uint8
	NameHash  uint32
	Name      string
}

func marshalDirent(d Dirent) []byte {
	out := make([]byte, direntHeaderSize+len(d.Name))
	binary.LittleEndian.PutUint16(out[0:2], d.EntrySize)
	binary.LittleEndian.PutUint32(out[2:6], d.InodeNum)
	out[6] = d.NameLen
	out[7] = d.Type
	binary.LittleEndian.PutUint32(out[8:12], d.NameHash)
	copy(out[direntHeaderSize:], d.Name)
	return out
}

func unmarshalDirentAt(block []byte, off int) (Dirent, bool) {
	if off+direntHeaderSize > len(block) {
		return Dirent{}, false
	}
	entrySize := binary.LittleEndian.Uint16(block[off : off+2])
	if entrySize == 0 {
		return Dirent{}, false
	}
	inodeNum := binary.LittleEndian.Uint32(block[off+2 : off+6])
	nameLen := block[off+6]
	typ := block[off+7]
	hash := binary.LittleEndian.Uint32(block[off+8 : off+12])
	nameEnd := off + direntHeaderSize + int(nameLen)
	if nameEnd > len(block) || nameEnd > off+int(entrySize) {
		return Dirent{}, false
	}
	name := string(block[off+direntHeaderSize : nameEnd])
	return Dirent{
		EntrySize: entrySize,
		InodeNum:  inodeNum,
		NameLen:   nameLen,
		Type:      typ,
		NameHash:  hash,
		Name:      name,
	}, true
}
