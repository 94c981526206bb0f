package volume

import (
	"context"

	"github.com/hydranexus/hn4/hal"
	"github.com/hydranexus/hn4/internal/hnerr"
)

// deviceSectorSize is the HAL's fixed addressing unit (spec §6):
// hal.Request.LBA and Sectors always count 512-byte sectors, independent
// of the volume's logical HN4 block size, exactly as internal/sb and
// internal/blockio already assume.
const deviceSectorSize = 512

func sectorsPerBlock(blockSize uint32) uint64 {
	s := uint64(blockSize) / deviceSectorSize
	if s == 0 {
		s = 1
	}
	return s
}

func deviceLBA(blockIdx uint64, blockSize uint32) uint64 {
	return blockIdx * sectorsPerBlock(blockSize)
}

func ioCode(res hal.IOResult) hnerr.Code {
	switch res {
	case hal.IOOk:
		return hnerr.OK
	case hal.IOGeometry:
		return hnerr.ErrGeometry
	default:
		return hnerr.ErrHwIO
	}
}

// readRegion reads numBlocks contiguous HN4 blocks starting at startBlock.
func readRegion(ctx context.Context, dev hal.Device, startBlock, numBlocks uint64, blockSize uint32) ([]byte, hnerr.Code) {
	buf := make([]byte, numBlocks*uint64(blockSize))
	res := dev.SyncIO(ctx, &hal.Request{
		Op:      hal.OpRead,
		LBA:     deviceLBA(startBlock, blockSize),
		Buf:     buf,
		Sectors: uint32(sectorsPerBlock(blockSize) * numBlocks),
	})
	return buf, ioCode(res)
}

// zoneReset issues a zone reset over numBlocks HN4 blocks starting at
// startBlock.
func zoneReset(ctx context.Context, dev hal.Device, startBlock, numBlocks uint64, blockSize uint32) hnerr.Code {
	res := dev.SyncIO(ctx, &hal.Request{
		Op:      hal.OpZoneReset,
		LBA:     deviceLBA(startBlock, blockSize),
		Sectors: uint32(sectorsPerBlock(blockSize) * numBlocks),
	})
	return ioCode(res)
}

// zoneResetBlock issues a zone reset over a single HN4 block, required on
// ZNS devices before writing a Horizon allocation that wrapped the ring
// (spec §4.1.4 step 4).
func zoneResetBlock(ctx context.Context, dev hal.Device, blockIdx uint64, blockSize uint32) hnerr.Code {
	return zoneReset(ctx, dev, blockIdx, 1, blockSize)
}

// writeRegion writes buf starting at startBlock, zero-padding up to the
// next whole block if buf does not end on a block boundary.
func writeRegion(ctx context.Context, dev hal.Device, startBlock uint64, buf []byte, blockSize uint32) hnerr.Code {
	numBlocks := (uint64(len(buf)) + uint64(blockSize) - 1) / uint64(blockSize)
	if numBlocks == 0 {
		numBlocks = 1
	}
	padded := buf
	if uint64(len(buf)) != numBlocks*uint64(blockSize) {
		padded = make([]byte, numBlocks*uint64(blockSize))
		copy(padded, buf)
	}
	res := dev.SyncIO(ctx, &hal.Request{
		Op:      hal.OpWrite,
		LBA:     deviceLBA(startBlock, blockSize),
		Buf:     padded,
		Sectors: uint32(sectorsPerBlock(blockSize) * numBlocks),
	})
	return ioCode(res)
}

// flushChunkBlocks is the flush-sized chunk spec §4.5.2 step 2 streams
// metadata writes in (" ≥ block size"); ZNS zone-resets each chunk's
// location before writing it, since a metadata region write can otherwise
// land on an already-written zone mid-lifecycle.
const flushChunkBlocks = 8

// writeRegionFlush is writeRegion's metadata-flush variant: on a ZNS
// device it streams buf in flushChunkBlocks-sized chunks, zone-resetting
// each chunk's location immediately before writing it (spec §4.5.2 step
// 2); every other profile writes the whole region in one shot exactly
// like writeRegion.
func writeRegionFlush(ctx context.Context, dev hal.Device, startBlock uint64, buf []byte, blockSize uint32, profile hal.Profile) hnerr.Code {
	if profile != hal.ProfileZNS {
		return writeRegion(ctx, dev, startBlock, buf, blockSize)
	}

	numBlocks := (uint64(len(buf)) + uint64(blockSize) - 1) / uint64(blockSize)
	if numBlocks == 0 {
		numBlocks = 1
	}
	padded := buf
	if uint64(len(buf)) != numBlocks*uint64(blockSize) {
		padded = make([]byte, numBlocks*uint64(blockSize))
		copy(padded, buf)
	}

	for off := uint64(0); off < numBlocks; off += flushChunkBlocks {
		chunkBlocks := flushChunkBlocks
		if off+uint64(chunkBlocks) > numBlocks {
			chunkBlocks = int(numBlocks - off)
		}
		chunkStart := startBlock + off
		if code := zoneReset(ctx, dev, chunkStart, uint64(chunkBlocks), blockSize); code.IsError() {
			return code
		}
		chunkBuf := padded[off*uint64(blockSize) : (off+uint64(chunkBlocks))*uint64(blockSize)]
		if code := writeRegion(ctx, dev, chunkStart, chunkBuf, blockSize); code.IsError() {
			return code
		}
	}
	return hnerr.OK
}
