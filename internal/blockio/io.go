package blockio

import (
	"context"

	"github.com/hydranexus/hn4/hal"
	"github.com/hydranexus/hn4/internal/hnerr"
)

// deviceSectorSize is the HAL's fixed sector size: hal.Request.LBA and
// Sectors always address the device in 512-byte units regardless of the
// volume's logical HN4 block size, the same convention internal/sb's
// Cardinal and Epoch Ring placement follow.
const deviceSectorSize = 512

func sectorsPerBlock(blockSize uint32) uint32 {
	return blockSize / deviceSectorSize
}

// deviceLBA converts an HN4 block index into the device LBA (in 512-byte
// sectors) SyncIO expects.
func deviceLBA(blockIndex uint64, blockSize uint32) uint64 {
	return blockIndex * uint64(sectorsPerBlock(blockSize))
}

func readBlock(ctx context.Context, dev hal.Device, blockIndex uint64, blockSize uint32) ([]byte, hnerr.Code) {
	buf := make([]byte, blockSize)
	req := &hal.Request{
		Op:      hal.OpRead,
		LBA:     deviceLBA(blockIndex, blockSize),
		Buf:     buf,
		Sectors: sectorsPerBlock(blockSize),
	}
	switch dev.SyncIO(ctx, req) {
	case hal.IOOk:
		return buf, hnerr.OK
	case hal.IOGeometry:
		return nil, hnerr.ErrGeometry
	default:
		return nil, hnerr.ErrHwIO
	}
}

// zoneResetBlock issues a zone reset over blockIndex before a caller
// writes to it, required on ZNS devices whenever a Horizon allocation
// wrapped the ring (spec §4.1.4 step 4).
func zoneResetBlock(ctx context.Context, dev hal.Device, blockIndex uint64, blockSize uint32) hnerr.Code {
	req := &hal.Request{
		Op:      hal.OpZoneReset,
		LBA:     deviceLBA(blockIndex, blockSize),
		Sectors: sectorsPerBlock(blockSize),
	}
	switch dev.SyncIO(ctx, req) {
	case hal.IOOk:
		return hnerr.OK
	case hal.IOGeometry:
		return hnerr.ErrGeometry
	default:
		return hnerr.ErrHwIO
	}
}

func writeBlock(ctx context.Context, dev hal.Device, blockIndex uint64, block []byte) hnerr.Code {
	req := &hal.Request{
		Op:      hal.OpWrite,
		LBA:     deviceLBA(blockIndex, uint32(len(block))),
		Buf:     block,
		Sectors: sectorsPerBlock(uint32(len(block))),
	}
	switch dev.SyncIO(ctx, req) {
	case hal.IOOk:
		return hnerr.OK
	case hal.IOGeometry:
		return hnerr.ErrGeometry
	default:
		return hnerr.ErrHwIO
	}
}
