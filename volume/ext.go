package volume

import (
	"context"
	"encoding/binary"
	"hash/crc32"

	"github.com/hydranexus/hn4/internal/hnerr"
	"github.com/hydranexus/hn4/internal/qmask"
)

// extCRCTable matches the Castagnoli polynomial used everywhere else on
// the wire (internal/cortex, internal/blockio).
var extCRCTable = crc32.MakeTable(crc32.Castagnoli)

// extWriteName is cortex.ExtWriteFunc: it claims one block from the same
// Flux Manifold pool user data lives in (spec §4.4's name-spill
// supplement gives the extension block no home of its own), and packs it
// as a u16 length prefix, the UTF-8 name bytes, and a trailing CRC32
// (SPEC_FULL's ambient-stack decision for this record).
func (v *Volume) extWriteName(name string) (uint64, hnerr.Code) {
	if len(name) > int(v.blockSize)-6 {
		return 0, hnerr.ErrGeometry
	}

	v.mu.Lock()
	n := v.extNext
	v.extNext++
	params := v.extParams
	v.mu.Unlock()

	lba, _, _, wrapped, code := v.alloc.Block(params, n, qmask.IntentMetadata, true)
	if code.IsError() {
		return 0, code
	}

	ctx := context.Background()
	if v.alloc.NeedsZoneReset(wrapped) {
		if zcode := zoneResetBlock(ctx, v.dev, lba, v.blockSize); zcode.IsError() {
			v.alloc.Rollback(lba)
			v.noteIO(zcode)
			return 0, zcode
		}
	}

	buf := make([]byte, v.blockSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(name)))
	copy(buf[2:2+len(name)], name)
	crc := crc32.Checksum(buf[2:2+len(name)], extCRCTable)
	binary.LittleEndian.PutUint32(buf[2+len(name):6+len(name)], crc)

	if wcode := writeRegion(ctx, v.dev, lba, buf, v.blockSize); wcode.IsError() {
		v.alloc.Rollback(lba)
		v.noteIO(wcode)
		return 0, wcode
	}
	return lba, hnerr.OK
}

// extReadName is cortex.ExtReadFunc: the inverse of extWriteName.
func (v *Volume) extReadName(lba uint64) (string, hnerr.Code) {
	buf, code := readRegion(context.Background(), v.dev, lba, 1, v.blockSize)
	if code.IsError() {
		v.noteIO(code)
		return "", code
	}
	if len(buf) < 6 {
		return "", hnerr.ErrGeometry
	}
	n := int(binary.LittleEndian.Uint16(buf[0:2]))
	if 2+n+4 > len(buf) {
		return "", hnerr.ErrHeaderRot
	}
	want := binary.LittleEndian.Uint32(buf[2+n : 6+n])
	got := crc32.Checksum(buf[2:2+n], extCRCTable)
	if got != want {
		return "", hnerr.ErrDataRot
	}
	return string(buf[2 : 2+n]), hnerr.OK
}
