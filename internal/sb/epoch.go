package sb

import (
	"context"
	"encoding/binary"
	"hash/crc32"

	"github.com/hydranexus/hn4/hal"
	"github.com/hydranexus/hn4/internal/hnerr"
)

// recordSize is one Epoch Ring slot: an 8-byte epoch id plus a 4-byte CRC,
// rounded up to a 16-byte stride so records never straddle a cacheline in
// the way the teacher pads its own fixed-record tables.
const recordSize = 16

// Ring is the Epoch Ring of spec §4.5.2: a fixed-capacity circular buffer
// of epoch records, whose advance is the last step of an unmount before
// the superblock broadcast.
type Ring struct {
	dev       hal.Device
	startLBA  uint64
	blockSize uint32
	capacity  uint32
}

// NewRing describes (without allocating on-device state) the ring rooted
// at startLBA with room for capacity records.
func NewRing(dev hal.Device, startLBA uint64, blockSize uint32, capacity uint32) *Ring {
	return &Ring{dev: dev, startLBA: startLBA, blockSize: blockSize, capacity: capacity}
}

// blockSectors is how many 512-byte addressing units one HN4 block spans.
func (r *Ring) blockSectors() uint64 {
	bs := uint64(r.blockSize) / sectorSize
	if bs == 0 {
		bs = 1
	}
	return bs
}

func (r *Ring) lbaFor(ptr uint32) uint64 {
	recordsPerBlock := uint64(r.blockSize) / recordSize
	if recordsPerBlock == 0 {
		recordsPerBlock = 1
	}
	return r.startLBA + (uint64(ptr)/recordsPerBlock)*r.blockSectors()
}

func (r *Ring) offsetInBlock(ptr uint32) uint64 {
	recordsPerBlock := uint64(r.blockSize) / recordSize
	if recordsPerBlock == 0 {
		recordsPerBlock = 1
	}
	return (uint64(ptr) % recordsPerBlock) * recordSize
}

func encodeEpochRecord(id uint64) []byte {
	b := make([]byte, recordSize)
	binary.LittleEndian.PutUint64(b[0:8], id)
	crc := crc32.Checksum(b[0:8], crcTable)
	binary.LittleEndian.PutUint32(b[8:12], crc)
	return b
}

func decodeEpochRecord(b []byte) (id uint64, ok bool) {
	if len(b) < recordSize {
		return 0, false
	}
	id = binary.LittleEndian.Uint64(b[0:8])
	want := binary.LittleEndian.Uint32(b[8:12])
	got := crc32.Checksum(b[0:8], crcTable)
	return id, got == want
}

// Advance computes the next (epochID, ptr) pair without touching the
// device; callers persist it via WriteRecord once the preceding data flush
// has completed (spec §4.5.2's strict ordering: flush, then advance).
func (r *Ring) Advance(currentID uint64, currentPtr uint32) (nextID uint64, nextPtr uint32) {
	nextID = currentID + 1
	nextPtr = currentPtr + 1
	if r.capacity > 0 {
		nextPtr %= r.capacity
	}
	return nextID, nextPtr
}

// WriteRecord persists one epoch record at ptr's slot and issues a barrier,
// so the record is durable before the caller proceeds to the superblock
// broadcast step.
func (r *Ring) WriteRecord(ctx context.Context, ptr uint32, epochID uint64) hnerr.Code {
	blockLBA := r.lbaFor(ptr)
	withinOff := r.offsetInBlock(ptr)

	blk := make([]byte, r.blockSize)
	res := r.dev.SyncIO(ctx, &hal.Request{Op: hal.OpRead, LBA: blockLBA, Buf: blk, Sectors: uint32(len(blk) / sectorSize)})
	if res != hal.IOOk {
		return hnerr.ErrHwIO
	}
	copy(blk[withinOff:withinOff+recordSize], encodeEpochRecord(epochID))

	res = r.dev.SyncIO(ctx, &hal.Request{Op: hal.OpWrite, LBA: blockLBA, Buf: blk, Sectors: uint32(len(blk) / sectorSize)})
	if res != hal.IOOk {
		return hnerr.ErrHwIO
	}
	if r.dev.Barrier(ctx) != hal.IOOk {
		return hnerr.ErrHwIO
	}
	return hnerr.OK
}

// ReadRecord reads back the record at ptr's slot, reporting whether its CRC
// validates.
func (r *Ring) ReadRecord(ctx context.Context, ptr uint32) (epochID uint64, code hnerr.Code) {
	blockLBA := r.lbaFor(ptr)
	withinOff := r.offsetInBlock(ptr)

	blk := make([]byte, r.blockSize)
	res := r.dev.SyncIO(ctx, &hal.Request{Op: hal.OpRead, LBA: blockLBA, Buf: blk, Sectors: uint32(len(blk) / sectorSize)})
	if res != hal.IOOk {
		return 0, hnerr.ErrHwIO
	}
	id, ok := decodeEpochRecord(blk[withinOff : withinOff+recordSize])
	if !ok {
		return 0, hnerr.ErrHeaderRot
	}
	return id, hnerr.OK
}

// UnmountSequence performs the ordered, four-step unmount spec §4.5.2
// requires: the caller's flush callback runs first, then the ring advances
// and persists, then the caller's superblock-broadcast callback runs, then
// a final barrier. Any failing step aborts the remainder and returns its
// code; the caller then reverts instead of declaring the volume clean: it
// marks the superblock Degraded, bumps its generation and rebroadcasts it.
func (r *Ring) UnmountSequence(ctx context.Context, currentID uint64, currentPtr uint32,
	flush func() hnerr.Code, broadcast func(epochID uint64, epochPtr uint32) hnerr.Code) hnerr.Code {

	if code := flush(); code.IsError() {
		return code
	}

	nextID, nextPtr := r.Advance(currentID, currentPtr)
	if code := r.WriteRecord(ctx, nextPtr, nextID); code.IsError() {
		return code
	}

	if code := broadcast(nextID, nextPtr); code.IsError() {
		return code
	}

	if r.dev.Barrier(ctx) != hal.IOOk {
		return hnerr.ErrHwIO
	}
	return hnerr.OK
}
