// Package kvstore implements the persistent configuration store, grounded
// directly in original_source/src/config_storage.c: a fixed-size flash-resident
// record of up to 32 key/value entries plus an autoboot script, validated
// by magic/version/checksum and loaded into RAM at boot.
package kvstore

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/littleos-dev/littleos/internal/block"
)

const (
	magic   uint32 = 0x434F4E46 // "CONF"
	version uint32 = 1

	maxKeyLen           = 32
	maxValueLen         = 256
	maxEntries          = 32
	autobootScriptBytes = 2048

	headerBytes = 16 // magic + version + entry_count + checksum
	entryBytes  = maxKeyLen + maxValueLen + 1
	recordBytes = headerBytes + maxEntries*entryBytes + autobootScriptBytes + 1
)

// RecordBytes is the serialized record size, exported so callers can size
// a backend region for it.
const RecordBytes = recordBytes

type entry struct {
	key   [maxKeyLen]byte
	value [maxValueLen]byte
	used  bool
}

type record struct {
	entryCount      uint32
	entries         [maxEntries]entry
	autobootScript  [autobootScriptBytes]byte
	autobootEnabled bool
}

func (r *record) checksum() uint32 {
	var sum uint32
	for _, e := range r.entries {
		for _, b := range e.key {
			sum += uint32(b)
		}
		for _, b := range e.value {
			sum += uint32(b)
		}
		if e.used {
			sum += 1
		}
	}
	for _, b := range r.autobootScript {
		sum += uint32(b)
	}
	if r.autobootEnabled {
		sum += 1
	}
	return sum
}

func (r *record) marshal() []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, magic)
	_ = binary.Write(buf, binary.LittleEndian, version)
	_ = binary.Write(buf, binary.LittleEndian, r.entryCount)
	_ = binary.Write(buf, binary.LittleEndian, r.checksum())
	for _, e := range r.entries {
		buf.Write(e.key[:])
		buf.Write(e.value[:])
		if e.used {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}
	buf.Write(r.autobootScript[:])
	if r.autobootEnabled {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	out := make([]byte, recordBytes)
	copy(out, buf.Bytes())
	return out
}

func unmarshalRecord(buf []byte) (record, uint32, bool) {
	var r record
	if len(buf) < recordBytes {
		return r, 0, false
	}
	gotMagic := binary.LittleEndian.Uint32(buf[0:4])
	gotVersion := binary.LittleEndian.Uint32(buf[4:8])
	r.entryCount = binary.LittleEndian.Uint32(buf[8:12])
	storedChecksum := binary.LittleEndian.Uint32(buf[12:16])

	off := headerBytes
	for i := 0; i < maxEntries; i++ {
		copy(r.entries[i].key[:], buf[off:off+maxKeyLen])
		off += maxKeyLen
		copy(r.entries[i].value[:], buf[off:off+maxValueLen])
		off += maxValueLen
		r.entries[i].used = buf[off] != 0
		off++
	}
	copy(r.autobootScript[:], buf[off:off+autobootScriptBytes])
	off += autobootScriptBytes
	r.autobootEnabled = buf[off] != 0

	valid := gotMagic == magic && gotVersion == version && r.entryCount <= maxEntries && storedChecksum == r.checksum()
	return r, storedChecksum, valid
}

func cstr(b []byte) string {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return string(b)
	}
	return string(b[:i])
}

func putCString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// Error codes, mirroring config_result_t.
var (
	ErrNotFound     = &storeError{"kvstore: not found"}
	ErrFull         = &storeError{"kvstore: no free entry slots"}
	ErrInvalidKey   = &storeError{"kvstore: invalid key"}
	ErrInvalidValue = &storeError{"kvstore: invalid value"}
	ErrFlash        = &storeError{"kvstore: flash I/O error"}
	ErrCorrupt      = &storeError{"kvstore: corrupt configuration record"}
)

type storeError struct{ msg string }

func (e *storeError) Error() string { return e.msg }

// Store is the in-RAM configuration store, mirrored to a flash-backed
// block region on explicit Save calls.
type Store struct {
	backend    block.Backend
	baseBlock  uint32
	blockCount uint32

	data  record
	dirty bool
}

// New constructs a Store over the given backend region (baseBlock is the
// first block of the region; blockCount must cover at least RecordBytes).
// The store starts with default (empty) configuration; call Load to read
// back anything previously saved.
func New(backend block.Backend, baseBlock, blockCount uint32) *Store {
	return &Store{backend: backend, baseBlock: baseBlock, blockCount: blockCount}
}

func (s *Store) readRaw(ctx context.Context) ([]byte, error) {
	buf := make([]byte, 0, s.blockCount*block.Size)
	for i := uint32(0); i < s.blockCount; i++ {
		var b [block.Size]byte
		if err := s.backend.ReadBlock(ctx, s.baseBlock+i, &b); err != nil {
			return nil, ErrFlash
		}
		buf = append(buf, b[:]...)
	}
	return buf, nil
}

// Load reads the record from flash, validating magic/version/checksum. An
// invalid or blank region is treated as "no configuration yet" rather
// than an error: the store keeps its current (default) in-memory state.
func (s *Store) Load(ctx context.Context) error {
	raw, err := s.readRaw(ctx)
	if err != nil {
		return err
	}
	r, _, ok := unmarshalRecord(raw)
	if !ok {
		return nil
	}
	s.data = r
	s.dirty = false
	return nil
}

// Save erases the backing region (simulating the platform's
// disable-interrupts-then-erase-sector discipline) and writes the current
// in-memory record.
func (s *Store) Save(ctx context.Context) error {
	// Flash erase operates on whole sectors; a block-granular in-memory
	// backend has no real sector concept, so EraseSector is best-effort
	// and its failure (e.g. block.Memory's ErrUnsupported) does not block
	// the subsequent full-region overwrite.
	_ = s.backend.EraseSector(ctx, s.baseBlock)

	raw := s.data.marshal()
	for i := uint32(0); i < s.blockCount; i++ {
		var b [block.Size]byte
		off := uint64(i) * block.Size
		if off < uint64(len(raw)) {
			end := off + block.Size
			if end > uint64(len(raw)) {
				end = uint64(len(raw))
			}
			copy(b[:], raw[off:end])
		}
		if err := s.backend.WriteBlock(ctx, s.baseBlock+i, &b); err != nil {
			return ErrFlash
		}
	}
	s.dirty = false
	return nil
}

func (s *Store) findEntry(key string) int {
	for i, e := range s.data.entries {
		if e.used && cstr(e.key[:]) == key {
			return i
		}
	}
	return -1
}

// Set stores value under key, reusing an existing slot or claiming the
// first free one, failing with ErrFull once all maxEntries slots are used.
func (s *Store) Set(key, value string) error {
	if key == "" || len(key) >= maxKeyLen {
		return ErrInvalidKey
	}
	if len(value) >= maxValueLen {
		return ErrInvalidValue
	}
	if idx := s.findEntry(key); idx >= 0 {
		putCString(s.data.entries[idx].value[:], value)
		s.dirty = true
		return nil
	}
	for i := range s.data.entries {
		if !s.data.entries[i].used {
			putCString(s.data.entries[i].key[:], key)
			putCString(s.data.entries[i].value[:], value)
			s.data.entries[i].used = true
			s.data.entryCount++
			s.dirty = true
			return nil
		}
	}
	return ErrFull
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (string, error) {
	idx := s.findEntry(key)
	if idx < 0 {
		return "", ErrNotFound
	}
	return cstr(s.data.entries[idx].value[:]), nil
}

// Exists reports whether key currently has a value.
func (s *Store) Exists(key string) bool {
	return s.findEntry(key) >= 0
}

// Delete removes key's entry, if present.
func (s *Store) Delete(key string) error {
	idx := s.findEntry(key)
	if idx < 0 {
		return ErrNotFound
	}
	s.data.entries[idx] = entry{}
	s.data.entryCount--
	s.dirty = true
	return nil
}

// List returns every currently-used key.
func (s *Store) List() []string {
	var out []string
	for _, e := range s.data.entries {
		if e.used {
			out = append(out, cstr(e.key[:]))
		}
	}
	return out
}

// Count reports the number of used entries.
func (s *Store) Count() int {
	n := 0
	for _, e := range s.data.entries {
		if e.used {
			n++
		}
	}
	return n
}

// Clear resets to an empty configuration (factory reset), including the
// autoboot script.
func (s *Store) Clear() {
	s.data = record{}
	s.dirty = true
}

// Dirty reports whether in-memory state has unsaved changes.
func (s *Store) Dirty() bool { return s.dirty }

// SetAutoboot stores script and enables autoboot.
func (s *Store) SetAutoboot(script string) error {
	if len(script) >= autobootScriptBytes {
		return ErrInvalidValue
	}
	putCString(s.data.autobootScript[:], script)
	s.data.autobootEnabled = true
	s.dirty = true
	return nil
}

// GetAutoboot returns the stored script, if autoboot is enabled.
func (s *Store) GetAutoboot() (string, bool) {
	if !s.data.autobootEnabled {
		return "", false
	}
	return cstr(s.data.autobootScript[:]), true
}

// HasAutoboot reports whether an autoboot script is configured.
func (s *Store) HasAutoboot() bool { return s.data.autobootEnabled }

// ClearAutoboot disables and blanks the autoboot script.
func (s *Store) ClearAutoboot() {
	s.data.autobootScript = [autobootScriptBytes]byte{}
	s.data.autobootEnabled = false
	s.dirty = true
}

// Stats mirrors config_get_stats.
type Stats struct {
	UsedEntries  int
	TotalEntries int
	FlashUsed    int
	FlashTotal   int
}

func (s *Store) Stats() Stats {
	return Stats{
		UsedEntries:  s.Count(),
		TotalEntries: maxEntries,
		FlashUsed:    recordBytes,
		FlashTotal:   int(s.blockCount) * block.Size,
	}
}
