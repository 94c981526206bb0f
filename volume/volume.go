// Package volume implements the top-level HN4 Volume of spec §3: the
// object a mount creates and an unmount destroys, owning the device
// handle, the superblock, the Armored Void Bitmap, the Quality Mask, the
// Nano-Cortex anchor table, the Flux Manifold allocator and its Horizon
// fallback, and the small pieces of mutable lifecycle state (ref count,
// taint counter, scavenger cursor) spec §3's Volume definition lists.
// Grounds on the teacher's filesystem/ext4/ext4.go FileSystem struct: one
// type owning superblock, bitmaps and backing file, with Mount-shaped
// constructors rather than a public zero value.
package volume

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/hydranexus/hn4/hal"
	"github.com/hydranexus/hn4/internal/armor"
	"github.com/hydranexus/hn4/internal/cortex"
	"github.com/hydranexus/hn4/internal/flux"
	"github.com/hydranexus/hn4/internal/hnerr"
	"github.com/hydranexus/hn4/internal/qmask"
	"github.com/hydranexus/hn4/internal/sb"
)

// taintThreshold is how many ERR_HW_IO reports it takes before the
// advisory taint counter forces the volume read-only (spec §3/§9's
// "taint counter ... forcing read-only above threshold").
const taintThreshold = 8

// Volume is the mounted HN4 root. All subsystem state lives here; there
// are no package-level singletons anywhere in the core (spec §9).
type Volume struct {
	dev       hal.Device
	blockSize uint32
	profile   hal.Profile
	log       *logrus.Logger

	offsets sb.Offsets
	super   *sb.Superblock
	ring    *sb.Ring
	lay     layout

	void    *armor.VoidBitmap
	qmask   *qmask.Mask
	cortex  *cortex.Table
	alloc   *flux.Allocator
	horizon *flux.Horizon

	mu             sync.Mutex
	readOnly       bool
	dirty          bool
	scavengeCursor uint64
	extNext        uint64
	extParams      flux.Params

	refCount     int32
	taintCounter uint32
}

// BlockSize is the volume's logical HN4 block size.
func (v *Volume) BlockSize() uint32 { return v.blockSize }

// ReadOnly reports whether the volume currently refuses writes, whether
// because it was mounted that way or because the taint counter tripped.
func (v *Volume) ReadOnly() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.readOnly
}

// IsDirty reports the in-memory mirror of the superblock's Dirty state
// flag: true from the first uncommitted mutation until the next clean
// Unmount clears it.
func (v *Volume) IsDirty() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dirty
}

// UsedBlocks is the allocator's live used_blocks counter.
func (v *Volume) UsedBlocks() uint64 { return v.alloc.UsedBlocks() }

// TaintCount is the advisory hardware-failure counter.
func (v *Volume) TaintCount() uint32 { return atomic.LoadUint32(&v.taintCounter) }

// Open increments the reference count an unmount must see drop back to
// 1 before it will proceed (spec §3/§7: "ref_count: ... unmount refuses
// if > 1").
func (v *Volume) Open() { atomic.AddInt32(&v.refCount, 1) }

// Release decrements the reference count a prior Open raised.
func (v *Volume) Release() { atomic.AddInt32(&v.refCount, -1) }

func (v *Volume) refs() int32 { return atomic.LoadInt32(&v.refCount) }

// markDirty is threaded into every subsystem (VoidBitmap, Allocator,
// Horizon) as their dirty callback: the first call after a clean state
// flips the in-memory flag, sets the superblock's Dirty state bit, and
// logs once so an operator sees why the next mount reports "not cleanly
// unmounted".
func (v *Volume) markDirty() {
	v.mu.Lock()
	wasDirty := v.dirty
	v.dirty = true
	v.mu.Unlock()

	v.super.SetState(sb.StateDirty)
	if !wasDirty {
		v.log.Warn("volume dirtied by an uncommitted mutation")
	}
}

// noteIO folds a device-level result into the taint counter (spec §3/§9:
// "advisory hardware-failure counter forcing read-only above
// threshold"). Only ERR_HW_IO taints; geometry and logical errors do not
// implicate the hardware.
func (v *Volume) noteIO(code hnerr.Code) {
	if code != hnerr.ErrHwIO {
		return
	}
	n := atomic.AddUint32(&v.taintCounter, 1)
	v.super.DirtyBits |= 1
	if n == taintThreshold {
		v.mu.Lock()
		v.readOnly = true
		v.mu.Unlock()
		v.void.SetReadOnly(true)
		v.log.WithField("taint_count", n).Error("taint threshold reached; volume forced read-only")
	}
}
