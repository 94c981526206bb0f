package cortex

import (
	"encoding/binary"

	"github.com/hydranexus/hn4/hal"
	"github.com/hydranexus/hn4/internal/hnerr"
)

// PersistFunc durably writes an encoded anchor record to its slot's
// persistent offset (spec §4.4: "commit the full anchor durably before
// publishing it to the in-RAM cache").
type PersistFunc func(slot uint64, raw []byte) hnerr.Code

// ExtWriteFunc writes a name too long for the inline buffer to a fresh
// extension block and returns its LBA (SPEC_FULL's name-spill supplement).
type ExtWriteFunc func(name string) (lba uint64, code hnerr.Code)

// ExtReadFunc resolves a name previously spilled to an extension block.
type ExtReadFunc func(lba uint64) (name string, code hnerr.Code)

// Table is the in-RAM Nano-Cortex slot array. Per spec §4.5.3 it is
// guarded by exactly one volume-wide spinlock for slot-table mutation;
// there is no finer-grained locking here (slot-level CAS is approximated
// by performing the whole read-modify-encode-persist-publish sequence
// while holding that single lock, since Go has no lock-free 128-bit CAS).
type Table struct {
	slots    []Anchor
	lock     hal.SpinLock
	dev      hal.Device
	persist  PersistFunc
	extWrite ExtWriteFunc
	extRead  ExtReadFunc
}

// NewTable allocates a table with the given slot capacity, backed by dev
// for seed/public identity RNG and the three persistence callbacks a
// mounted volume supplies.
func NewTable(capacity uint64, dev hal.Device, persist PersistFunc, extWrite ExtWriteFunc, extRead ExtReadFunc) *Table {
	return &Table{
		slots:    make([]Anchor, capacity),
		dev:      dev,
		persist:  persist,
		extWrite: extWrite,
		extRead:  extRead,
	}
}

// Capacity returns the number of slots in the table.
func (t *Table) Capacity() uint64 { return uint64(len(t.slots)) }

// LoadTable rebuilds a table from a prior raw dump of the on-disk Cortex
// region (one RecordSize chunk per slot, in slot order), for mount-time
// hydration. A slot whose record fails to decode (bad magic-equivalent
// length or a CRC mismatch) is treated as a free, never-allocated slot
// rather than an error: the in-memory array has no durability guarantee
// of its own beyond what individually persisted slots already carry.
func LoadTable(raw []byte, dev hal.Device, persist PersistFunc, extWrite ExtWriteFunc, extRead ExtReadFunc) (*Table, hnerr.Code) {
	if len(raw)%RecordSize != 0 {
		return nil, hnerr.ErrGeometry
	}
	capacity := uint64(len(raw)) / RecordSize
	slots := make([]Anchor, capacity)
	for i := uint64(0); i < capacity; i++ {
		chunk := raw[i*RecordSize : (i+1)*RecordSize]
		if a, code := Decode(chunk); !code.IsError() {
			slots[i] = *a
		}
	}
	return &Table{slots: slots, dev: dev, persist: persist, extWrite: extWrite, extRead: extRead}, hnerr.OK
}

// Dump encodes every slot in order, the mirror image of LoadTable, for
// the volume layer to persist to the on-disk Cortex region at unmount
// (or any quiescent flush point).
func (t *Table) Dump() []byte {
	t.lock.Acquire()
	defer t.lock.Release()

	out := make([]byte, 0, len(t.slots)*RecordSize)
	for i := range t.slots {
		out = append(out, t.slots[i].Encode()...)
	}
	return out
}

func slotFor(seedID [16]byte, capacity uint64) uint64 {
	if capacity == 0 {
		return 0
	}
	lo := binary.LittleEndian.Uint64(seedID[0:8])
	hi := binary.LittleEndian.Uint64(seedID[8:16])
	return (lo ^ hi) % capacity
}

func newSeedID(dev hal.Device) [16]byte {
	var id [16]byte
	binary.LittleEndian.PutUint64(id[0:8], dev.GetRandomU64())
	binary.LittleEndian.PutUint64(id[8:16], dev.GetRandomU64())
	return id
}

func (t *Table) nameMatches(a *Anchor, name string) bool {
	if !a.HasFlag(FlagExtendedName) {
		n := inlineNameString(a.InlineBuffer[:])
		return n == name
	}
	if t.extRead == nil {
		return false
	}
	lba := binary.LittleEndian.Uint64(a.InlineBuffer[0:8])
	resolved, code := t.extRead(lba)
	return code == hnerr.OK && resolved == name
}

// NameOf resolves an anchor's name, following the extension-block spill
// the same way nameMatches does, for a directory-listing caller that
// needs the string rather than a yes/no match.
func (t *Table) NameOf(a *Anchor) (string, hnerr.Code) {
	if !a.HasFlag(FlagExtendedName) {
		return inlineNameString(a.InlineBuffer[:]), hnerr.OK
	}
	if t.extRead == nil {
		return "", hnerr.ErrGeometry
	}
	lba := binary.LittleEndian.Uint64(a.InlineBuffer[0:8])
	return t.extRead(lba)
}

// Live returns every live (Valid, non-Tombstone) anchor along with its
// resolved name, for a directory-listing caller (spec's adapter layer;
// cortex itself has no notion of a directory hierarchy, just a flat
// namespace of anchors).
func (t *Table) Live() []NamedAnchor {
	t.lock.Acquire()
	snapshot := make([]Anchor, 0, len(t.slots))
	for i := range t.slots {
		a := &t.slots[i]
		if a.HasFlag(FlagValid) && !a.HasFlag(FlagTombstone) {
			snapshot = append(snapshot, *a)
		}
	}
	t.lock.Release()

	out := make([]NamedAnchor, 0, len(snapshot))
	for i := range snapshot {
		name, code := t.NameOf(&snapshot[i])
		if code.IsError() {
			continue
		}
		out = append(out, NamedAnchor{Name: name, Anchor: snapshot[i]})
	}
	return out
}

// NamedAnchor pairs an anchor with its resolved name, the shape a
// directory listing needs but the flat Nano-Cortex slot array does not
// itself carry.
type NamedAnchor struct {
	Name   string
	Anchor Anchor
}

func inlineNameString(buf []byte) string {
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	return string(buf[:n])
}

// populateName fills a.InlineBuffer, spilling to an extension block and
// setting FlagExtendedName if name does not fit inline.
func (t *Table) populateName(a *Anchor, name string) hnerr.Code {
	if len(name) <= InlineNameLen {
		var buf [InlineNameLen]byte
		copy(buf[:], name)
		a.InlineBuffer = buf
		a.ClearFlag(FlagExtendedName)
		return hnerr.OK
	}
	if t.extWrite == nil {
		return hnerr.ErrGeometry
	}
	lba, code := t.extWrite(name)
	if code.IsError() {
		return code
	}
	var buf [InlineNameLen]byte
	binary.LittleEndian.PutUint64(buf[0:8], lba)
	a.InlineBuffer = buf
	a.SetFlag(FlagExtendedName)
	return hnerr.OK
}

// Create reserves a free slot, generates a fresh seed_id/public_id via the
// HAL RNG, populates the name (spilling if needed), and durably commits
// the anchor before publishing it to the in-RAM cache (spec §4.4
// "Creation").
func (t *Table) Create(name string, isDir bool) (Anchor, uint64, hnerr.Code) {
	t.lock.Acquire()
	defer t.lock.Release()

	capacity := uint64(len(t.slots))
	if capacity == 0 {
		return Anchor{}, 0, hnerr.ErrEnospc
	}

	seedID := newSeedID(t.dev)
	start := slotFor(seedID, capacity)

	slot := capacity
	for i := uint64(0); i < capacity; i++ {
		idx := (start + i) % capacity
		existing := &t.slots[idx]
		if !existing.HasFlag(FlagValid) || existing.HasFlag(FlagTombstone) {
			slot = idx
			break
		}
	}
	if slot == capacity {
		return Anchor{}, 0, hnerr.ErrEnospc
	}

	a := Anchor{SeedID: seedID, PublicID: newSeedID(t.dev)}
	if isDir {
		a.SetFlag(FlagIsDirectory)
	}
	if code := t.populateName(&a, name); code.IsError() {
		return Anchor{}, 0, code
	}
	a.CreateClock = uint32(t.dev.GetTimeNS())
	a.ModClock = t.dev.GetTimeNS()
	a.WriteGen = 1
	a.SetFlag(FlagValid)
	a.ClearFlag(FlagTombstone)

	if t.persist != nil {
		if code := t.persist(slot, a.Encode()); code.IsError() {
			return Anchor{}, 0, code
		}
	}

	t.slots[slot] = a
	return a, slot, hnerr.OK
}

// Lookup finds the anchor with the given seed_id.
func (t *Table) Lookup(seedID [16]byte) (Anchor, uint64, hnerr.Code) {
	t.lock.Acquire()
	defer t.lock.Release()

	capacity := uint64(len(t.slots))
	start := slotFor(seedID, capacity)
	for i := uint64(0); i < capacity; i++ {
		idx := (start + i) % capacity
		a := &t.slots[idx]
		if a.HasFlag(FlagValid) && !a.HasFlag(FlagTombstone) && a.SeedID == seedID {
			return *a, idx, hnerr.OK
		}
	}
	return Anchor{}, 0, hnerr.ErrNotFound
}

// LookupByName linearly scans for a live (Valid, non-Tombstone) anchor
// whose name (inline or spilled) matches.
func (t *Table) LookupByName(name string) (Anchor, uint64, hnerr.Code) {
	t.lock.Acquire()
	defer t.lock.Release()

	for idx := range t.slots {
		a := &t.slots[idx]
		if a.HasFlag(FlagValid) && !a.HasFlag(FlagTombstone) && t.nameMatches(a, name) {
			return *a, uint64(idx), hnerr.OK
		}
	}
	return Anchor{}, 0, hnerr.ErrNotFound
}

// LookupTombstoned finds a tombstoned anchor by name without clearing
// its Tombstone flag, for a caller that needs to pulse-check the
// physical block before committing to Undelete.
func (t *Table) LookupTombstoned(name string) (Anchor, uint64, hnerr.Code) {
	t.lock.Acquire()
	defer t.lock.Release()

	for idx := range t.slots {
		a := &t.slots[idx]
		if a.HasFlag(FlagValid) && a.HasFlag(FlagTombstone) && t.nameMatches(a, name) {
			return *a, uint64(idx), hnerr.OK
		}
	}
	return Anchor{}, 0, hnerr.ErrNotFound
}

// Mutate is write_anchor_atomic (spec §4.4 "Update"): it loads the slot,
// lets fn adjust the anchor in place, recomputes the checksum, writes the
// record durably, and only then refreshes the in-RAM cache — all under
// the single table lock.
func (t *Table) Mutate(slot uint64, fn func(*Anchor)) hnerr.Code {
	t.lock.Acquire()
	defer t.lock.Release()

	if slot >= uint64(len(t.slots)) {
		return hnerr.ErrGeometry
	}
	a := t.slots[slot]
	fn(&a)

	if t.persist != nil {
		if code := t.persist(slot, a.Encode()); code.IsError() {
			return code
		}
	}
	t.slots[slot] = a
	return hnerr.OK
}

// Delete tombstones the anchor at slot (spec §4.4's delete path: set
// Tombstone, bump mod_clock, commit).
func (t *Table) Delete(slot uint64) hnerr.Code {
	return t.Mutate(slot, func(a *Anchor) {
		a.SetFlag(FlagTombstone)
		a.ModClock = t.dev.GetTimeNS()
	})
}

// Undelete recovers a tombstoned anchor whose name matches (spec §4.3.4
// step 1 at the cortex layer); the caller is responsible for the
// block-level pulse check before calling this, since that requires
// blockio, which cortex does not depend on.
func (t *Table) Undelete(name string) (Anchor, uint64, hnerr.Code) {
	t.lock.Acquire()

	slot := uint64(len(t.slots))
	for idx := range t.slots {
		a := &t.slots[idx]
		if a.HasFlag(FlagValid) && a.HasFlag(FlagTombstone) && t.nameMatches(a, name) {
			slot = uint64(idx)
			break
		}
	}
	t.lock.Release()

	if slot == uint64(len(t.slots)) {
		return Anchor{}, 0, hnerr.ErrNotFound
	}

	code := t.Mutate(slot, func(a *Anchor) {
		a.ClearFlag(FlagTombstone)
		a.ModClock = t.dev.GetTimeNS()
	})
	if code.IsError() {
		return Anchor{}, 0, code
	}

	t.lock.Acquire()
	a := t.slots[slot]
	t.lock.Release()
	if !t.nameMatches(&a, name) {
		return Anchor{}, 0, hnerr.ErrTimeParadox
	}
	return a, slot, hnerr.OK
}

// Reclaim hard-frees a tombstoned slot for reuse (the Valid bit itself is
// cleared), the scavenger's unit of work (spec §4.4's "out of core scope"
// background scavenger, given a synchronous, budget-bounded home by
// SPEC_FULL's Volume.ScavengeOnce).
func (t *Table) Reclaim(slot uint64) hnerr.Code {
	return t.Mutate(slot, func(a *Anchor) {
		*a = Anchor{}
	})
}

// NextTombstoned scans forward from cursor (inclusive) for the next slot
// that is Valid-and-Tombstoned, for the scavenger to consume in bounded
// batches. It reports the slot after the one it returned as the next
// cursor, wrapping to 0 at the end of the table.
func (t *Table) NextTombstoned(cursor uint64) (slot uint64, anchor Anchor, found bool, nextCursor uint64) {
	t.lock.Acquire()
	defer t.lock.Release()

	capacity := uint64(len(t.slots))
	if capacity == 0 {
		return 0, Anchor{}, false, 0
	}
	for i := uint64(0); i < capacity; i++ {
		idx := (cursor + i) % capacity
		a := &t.slots[idx]
		if a.HasFlag(FlagValid) && a.HasFlag(FlagTombstone) {
			return idx, *a, true, (idx + 1) % capacity
		}
	}
	return 0, Anchor{}, false, cursor
}
