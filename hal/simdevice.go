package hal

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"
)

// SimDevice is an in-memory Device used by tests and by callers who want
// an HN4 volume without a real block device underneath — the byte-slice-
// backed stand-in for the teacher's fixture-file-opened-as-util.File
// pattern seen in ext4_test.go's openTestFilesystem.
type SimDevice struct {
	mu         sync.Mutex
	data       []byte
	blockSize  uint32
	caps       Caps
	zoneSize   uint64 // 0 disables zone semantics
	zoneLive   map[uint64]bool
	failNextOp bool
}

// NewSimDevice allocates a zeroed in-memory device of the given size.
func NewSimDevice(sizeBytes uint64, blockSize uint32, profile Profile, flags DeviceFlag) *SimDevice {
	return &SimDevice{
		data:      make([]byte, sizeBytes),
		blockSize: blockSize,
		caps: Caps{
			TotalCapacityBytes: sizeBytes,
			LogicalBlockSize:   blockSize,
			Flags:              flags,
			Profile:            profile,
		},
		zoneLive: map[uint64]bool{},
	}
}

// FailNextOp forces the next SyncIO call to report IOHwIO, for testing
// shadow-hop rollback and unmount-degrade paths.
func (d *SimDevice) FailNextOp() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNextOp = true
}

func (d *SimDevice) SyncIO(_ context.Context, req *Request) IOResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failNextOp {
		d.failNextOp = false
		return IOHwIO
	}

	sectorSize := uint64(512)
	start := req.LBA * sectorSize
	length := uint64(req.Sectors) * sectorSize

	switch req.Op {
	case OpFlush:
		return IOOk
	case OpZoneReset:
		return IOOk
	case OpRead:
		if start+length > uint64(len(d.data)) {
			return IOGeometry
		}
		if len(req.Buf) < int(length) {
			return IOGeometry
		}
		copy(req.Buf, d.data[start:start+length])
		return IOOk
	case OpWrite, OpZoneAppend:
		if start+length > uint64(len(d.data)) {
			return IOGeometry
		}
		if uint64(len(req.Buf)) < length {
			return IOGeometry
		}
		copy(d.data[start:start+length], req.Buf[:length])
		if req.Op == OpZoneAppend {
			req.ResultLBA = req.LBA
		}
		return IOOk
	default:
		return IOGeometry
	}
}

func (d *SimDevice) Barrier(_ context.Context) IOResult { return IOOk }

func (d *SimDevice) Caps() Caps { return d.caps }

func (d *SimDevice) GetTimeNS() uint64 { return uint64(time.Now().UnixNano()) }

func (d *SimDevice) GetRandomU64() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return binary.LittleEndian.Uint64(b[:])
}

// Zero wipes the backing store. Nothing in the volume package calls it:
// unmount releases its in-memory structures and leaves the device
// contents in place.
func (d *SimDevice) Zero() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.data {
		d.data[i] = 0
	}
}
