package sb

import (
	"context"

	"github.com/hydranexus/hn4/hal"
	"github.com/hydranexus/hn4/internal/hnerr"
)

// Cardinal identifies one of the four superblock replica slots (spec §4.5.1).
type Cardinal int

const (
	North Cardinal = iota
	East
	West
	South
)

func (c Cardinal) String() string {
	switch c {
	case North:
		return "North"
	case East:
		return "East"
	case West:
		return "West"
	case South:
		return "South"
	default:
		return "Cardinal(?)"
	}
}

// Offsets gives the LBA (in 512-byte device sectors, not HN4 blocks) of each
// cardinal replica, spread across the device so a single bad region of
// media cannot take out more than one copy (spec §4.5.1).
type Offsets struct {
	LBA [4]uint64
}

// ComputeOffsets lays North at LBA 0, East and West at roughly the 1/3 and
// 2/3 marks, and South at the final superblock-sized slot, each rounded
// down to a record boundary so replicas never overlap on a tiny device.
// LBAs here are always in the device's fixed 512-byte addressing unit
// (spec §6), independent of the volume's logical HN4 block size.
func ComputeOffsets(caps hal.Caps) Offsets {
	recordLBAs := uint64(Size) / sectorSize
	totalLBAs := caps.TotalCapacityBytes / sectorSize

	align := func(lba uint64) uint64 { return (lba / recordLBAs) * recordLBAs }

	off := Offsets{}
	off.LBA[North] = 0
	off.LBA[East] = align(totalLBAs / 3)
	off.LBA[West] = align((totalLBAs * 2) / 3)
	if totalLBAs >= recordLBAs {
		off.LBA[South] = align(totalLBAs - recordLBAs)
	} else {
		off.LBA[South] = 0
	}
	return off
}

// isZNSOnlyNorth reports the spec §4.5.1 special case: a native-ZNS device
// only ever carries the North replica, since append-only zones cannot host
// independently-addressable mirror copies without their own zone.
func isZNSOnlyNorth(caps hal.Caps) bool { return caps.Flags&hal.FlagZNSNative != 0 }

// sectorSize is the fixed 512-byte unit hal.Request.Sectors counts in
// (spec §6); every buffer this package moves is a whole multiple of it.
const sectorSize = 512

func writeReplica(ctx context.Context, dev hal.Device, lba uint64, buf []byte) bool {
	res := dev.SyncIO(ctx, &hal.Request{Op: hal.OpWrite, LBA: lba, Buf: buf, Sectors: uint32(len(buf) / sectorSize)})
	return res == hal.IOOk
}

func readReplica(ctx context.Context, dev hal.Device, lba uint64) ([]byte, bool) {
	buf := make([]byte, Size)
	res := dev.SyncIO(ctx, &hal.Request{Op: hal.OpRead, LBA: lba, Buf: buf, Sectors: uint32(len(buf) / sectorSize)})
	if res != hal.IOOk {
		return nil, false
	}
	return buf, true
}

// WriteQuorum broadcasts sb to every cardinal replica the device geometry
// supports and decides success per spec §4.5.1: a ZNS-native device needs
// only North; otherwise, North succeeding plus at least one mirror, or all
// three mirrors succeeding even without North, both count as quorum.
func WriteQuorum(ctx context.Context, dev hal.Device, record *Superblock, off Offsets) hnerr.Code {
	buf := record.ToBytes()

	if isZNSOnlyNorth(dev.Caps()) {
		if writeReplica(ctx, dev, off.LBA[North], buf) {
			return hnerr.OK
		}
		return hnerr.ErrHwIO
	}

	northOK := writeReplica(ctx, dev, off.LBA[North], buf)
	eastOK := writeReplica(ctx, dev, off.LBA[East], buf)
	westOK := writeReplica(ctx, dev, off.LBA[West], buf)
	southOK := writeReplica(ctx, dev, off.LBA[South], buf)

	mirrors := 0
	for _, ok := range []bool{eastOK, westOK, southOK} {
		if ok {
			mirrors++
		}
	}

	if northOK && mirrors >= 1 {
		return hnerr.OK
	}
	if mirrors == 3 {
		return hnerr.OK
	}
	return hnerr.ErrHwIO
}

// ReadQuorum reads every available replica, keeps the ones that pass their
// own CRC, and returns the one with the highest CopyGeneration (ties broken
// North > East > West > South). If the winner was not North, it is
// immediately rewritten to North so the next mount finds a coherent primary
// (spec §4.5.1, spec §8 scenario 6).
func ReadQuorum(ctx context.Context, dev hal.Device, off Offsets) (*Superblock, Cardinal, bool, hnerr.Code) {
	order := []Cardinal{North, East, West, South}
	zns := isZNSOnlyNorth(dev.Caps())

	var best *Superblock
	var bestFrom Cardinal
	found := false

	for _, c := range order {
		if zns && c != North {
			continue
		}
		raw, ok := readReplica(ctx, dev, off.LBA[c])
		if !ok {
			continue
		}
		parsed, err := FromBytes(raw)
		if err != nil {
			continue
		}
		if !found || parsed.CopyGeneration > best.CopyGeneration {
			best = parsed
			bestFrom = c
			found = true
		}
	}

	if !found {
		return nil, North, false, hnerr.ErrHeaderRot
	}

	healed := false
	if bestFrom != North && !zns {
		if writeReplica(ctx, dev, off.LBA[North], best.ToBytes()) {
			healed = true
		}
	}

	return best, bestFrom, healed, hnerr.OK
}
