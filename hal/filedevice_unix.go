//go:build unix

package hal

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// FileDevice is a reference HAL backed by a real file or block special
// device, using raw pread/pwrite/fdatasync via golang.org/x/sys/unix —
// the dependency the teacher's own go.mod already carries, dormant in the
// decode-only ext4 subset we were handed.
type FileDevice struct {
	f        *os.File
	caps     Caps
	zoneSize uint64
}

// OpenFileDevice opens path as a block device or regular file of the
// given logical size, reporting the supplied capability set.
func OpenFileDevice(path string, caps Caps) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("hal: opening device %q: %w", path, err)
	}
	return &FileDevice{f: f, caps: caps}, nil
}

func (d *FileDevice) Close() error { return d.f.Close() }

func (d *FileDevice) SyncIO(_ context.Context, req *Request) IOResult {
	sectorSize := int64(512)
	off := int64(req.LBA) * sectorSize
	length := int64(req.Sectors) * sectorSize

	switch req.Op {
	case OpFlush:
		if err := unix.Fdatasync(int(d.f.Fd())); err != nil {
			return IOHwIO
		}
		return IOOk
	case OpZoneReset:
		// Regular files have no zone semantics; treat as success, the
		// block-special-device implementation would issue BLKZONERESET.
		return IOOk
	case OpRead:
		if int64(len(req.Buf)) < length {
			return IOGeometry
		}
		n, err := unix.Pread(int(d.f.Fd()), req.Buf[:length], off)
		if err != nil || int64(n) != length {
			return IOHwIO
		}
		return IOOk
	case OpWrite, OpZoneAppend:
		if int64(len(req.Buf)) < length {
			return IOGeometry
		}
		n, err := unix.Pwrite(int(d.f.Fd()), req.Buf[:length], off)
		if err != nil || int64(n) != length {
			return IOHwIO
		}
		if req.Op == OpZoneAppend {
			req.ResultLBA = req.LBA
		}
		return IOOk
	default:
		return IOGeometry
	}
}

func (d *FileDevice) Barrier(_ context.Context) IOResult {
	if err := unix.Fdatasync(int(d.f.Fd())); err != nil {
		return IOHwIO
	}
	return IOOk
}

func (d *FileDevice) Caps() Caps { return d.caps }

func (d *FileDevice) GetTimeNS() uint64 { return uint64(time.Now().UnixNano()) }

func (d *FileDevice) GetRandomU64() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return binary.LittleEndian.Uint64(b[:])
}
