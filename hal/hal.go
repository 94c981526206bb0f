// Package hal defines the hardware abstraction contract HN4's core is
// built against (spec §6): synchronous block I/O, barriers, device
// capabilities, aligned memory, clock and RNG, and spinlocks. The core
// never talks to a real device directly — it only ever holds a Device
// handle, the non-owning-handle pattern spec §9 requires for the
// volume<->device relationship.
package hal

import (
	"context"
	"sync"
)

// Op identifies a synchronous I/O request kind.
type Op int

const (
	OpRead Op = iota
	OpWrite
	OpFlush
	OpZoneReset
	OpZoneAppend
)

// DeviceFlag reports hardware characteristics that influence trajectory
// jitter and trajectory budget (spec §4.1, §9 — "data tables indexed by
// device type tag, not vtables").
type DeviceFlag uint32

const (
	FlagZNSNative DeviceFlag = 1 << iota
	FlagNVM
	FlagRotational
)

// Profile is the format/device profile tag stored in the superblock and
// used to select trajectory budgets (spec §4.1.2, §4.1.4).
type Profile int

const (
	ProfileSSD Profile = iota
	ProfileHDD
	ProfileZNS
	ProfileTape
	ProfileUSB
	ProfilePico
	ProfileSystem
)

// Caps describes a device's fixed geometry.
type Caps struct {
	TotalCapacityBytes uint64
	LogicalBlockSize   uint32
	Flags              DeviceFlag
	Profile            Profile
}

// Request is a single synchronous I/O request. For OpZoneAppend the
// device writes the actual landing LBA back into ResultLBA.
type Request struct {
	Op        Op
	LBA       uint64
	Buf       []byte
	Sectors   uint32
	ResultLBA uint64
}

// IOResult mirrors the C-source OK/HW_IO/Geometry trichotomy for sync_io.
type IOResult int

const (
	IOOk IOResult = iota
	IOHwIO
	IOGeometry
)

// Device is the HAL contract the core depends on. Implementations are
// supplied by the caller of Mount; the core never owns a Device's
// lifetime (spec §9: "the device is owned by the caller of mount").
type Device interface {
	SyncIO(ctx context.Context, req *Request) IOResult
	Barrier(ctx context.Context) IOResult
	Caps() Caps
	GetTimeNS() uint64
	GetRandomU64() uint64
}

// SpinLock is a zero-initialized, legal-unheld lock, per spec §6
// ("Zero-initialized locks are legal and unheld"). It backs the shard
// locks in internal/armor and the single cortex slot-table lock.
type SpinLock struct {
	mu sync.Mutex
}

// Acquire blocks until the lock is held.
func (s *SpinLock) Acquire() { s.mu.Lock() }

// Release releases a held lock.
func (s *SpinLock) Release() { s.mu.Unlock() }
