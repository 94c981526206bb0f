// Package cortex implements the Nano-Cortex anchor table of spec §4.4: an
// in-RAM array of fixed-size file records, hashed-and-linear-walked for
// slotting, with atomic durable-write-before-cache-refresh commits. Record
// layout and checksum convention follow the teacher's inode.go
// (inodeFromBytes/toBytes) and its CRC32 Castagnoli use in crc32c.go.
package cortex

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/hydranexus/hn4/internal/hnerr"
)

// RecordSize is the fixed on-disk size of one anchor slot.
const RecordSize = 128

// InlineNameLen is the inline name capacity; longer names spill to an
// extension block (spec's Open Question #3: settled at 28, not 24).
const InlineNameLen = 28

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// DataClass bits (spec §3 "Anchor (file record)").
type DataClass uint64

const (
	FlagValid DataClass = 1 << iota
	FlagTombstone
	FlagIsDirectory
	FlagHorizonHint
	FlagExtendedName
)

// Anchor is one fixed-size Nano-Cortex record.
type Anchor struct {
	SeedID        [16]byte
	PublicID      [16]byte
	GravityCenter uint64
	OrbitVector   uint64 // 48 significant bits
	FractalScale  uint16
	Mass          uint64
	Permissions   uint32
	CreateClock   uint32
	ModClock      uint64
	WriteGen      uint32
	DataClass     DataClass
	InlineBuffer  [InlineNameLen]byte
}

// HasFlag reports whether all of flags are set on the anchor.
func (a *Anchor) HasFlag(flags DataClass) bool { return a.DataClass&flags == flags }

// SetFlag ORs flags into data_class.
func (a *Anchor) SetFlag(flags DataClass) { a.DataClass |= flags }

// ClearFlag ANDs flags out of data_class.
func (a *Anchor) ClearFlag(flags DataClass) { a.DataClass &^= flags }

// Encode packs the anchor into its RecordSize on-disk byte layout,
// little-endian throughout, with a trailing CRC32C over everything
// preceding it (spec §6: "Anchor on disk (byte layout)").
func (a *Anchor) Encode() []byte {
	b := make([]byte, RecordSize)
	copy(b[0x00:0x10], a.SeedID[:])
	copy(b[0x10:0x20], a.PublicID[:])
	binary.LittleEndian.PutUint64(b[0x20:0x28], a.GravityCenter)

	var ov [8]byte
	binary.LittleEndian.PutUint64(ov[:], a.OrbitVector)
	copy(b[0x28:0x2e], ov[:6])

	binary.LittleEndian.PutUint16(b[0x2e:0x30], a.FractalScale)
	binary.LittleEndian.PutUint64(b[0x30:0x38], a.Mass)
	binary.LittleEndian.PutUint32(b[0x38:0x3c], a.Permissions)
	binary.LittleEndian.PutUint32(b[0x3c:0x40], a.CreateClock)
	binary.LittleEndian.PutUint64(b[0x40:0x48], a.ModClock)
	binary.LittleEndian.PutUint32(b[0x48:0x4c], a.WriteGen)
	binary.LittleEndian.PutUint64(b[0x4c:0x54], uint64(a.DataClass))
	copy(b[0x54:0x54+InlineNameLen], a.InlineBuffer[:])

	crc := crc32.Checksum(b[:RecordSize-4], crcTable)
	binary.LittleEndian.PutUint32(b[RecordSize-4:RecordSize], crc)
	return b
}

// Decode validates and parses a RecordSize-byte anchor record.
func Decode(b []byte) (*Anchor, hnerr.Code) {
	if len(b) != RecordSize {
		return nil, hnerr.ErrGeometry
	}
	crc := crc32.Checksum(b[:RecordSize-4], crcTable)
	if want := binary.LittleEndian.Uint32(b[RecordSize-4 : RecordSize]); crc != want {
		return nil, hnerr.ErrHeaderRot
	}

	a := &Anchor{}
	copy(a.SeedID[:], b[0x00:0x10])
	copy(a.PublicID[:], b[0x10:0x20])
	a.GravityCenter = binary.LittleEndian.Uint64(b[0x20:0x28])

	var ov [8]byte
	copy(ov[:6], b[0x28:0x2e])
	a.OrbitVector = binary.LittleEndian.Uint64(ov[:]) & 0xFFFFFFFFFFFF

	a.FractalScale = binary.LittleEndian.Uint16(b[0x2e:0x30])
	a.Mass = binary.LittleEndian.Uint64(b[0x30:0x38])
	a.Permissions = binary.LittleEndian.Uint32(b[0x38:0x3c])
	a.CreateClock = binary.LittleEndian.Uint32(b[0x3c:0x40])
	a.ModClock = binary.LittleEndian.Uint64(b[0x40:0x48])
	a.WriteGen = binary.LittleEndian.Uint32(b[0x48:0x4c])
	a.DataClass = DataClass(binary.LittleEndian.Uint64(b[0x4c:0x54]))
	copy(a.InlineBuffer[:], b[0x54:0x54+InlineNameLen])
	return a, hnerr.OK
}
