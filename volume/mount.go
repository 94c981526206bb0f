package volume

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hydranexus/hn4/hal"
	"github.com/hydranexus/hn4/internal/addr"
	"github.com/hydranexus/hn4/internal/armor"
	"github.com/hydranexus/hn4/internal/cortex"
	"github.com/hydranexus/hn4/internal/flux"
	"github.com/hydranexus/hn4/internal/hnerr"
	"github.com/hydranexus/hn4/internal/qmask"
	"github.com/hydranexus/hn4/internal/sb"
)

// minFormatBlocks is the smallest device this package will format: below
// it there isn't room for the fixed regions plus a usable D1 window.
const minFormatBlocks = 256

// epochMaskFromUUID derives the Armored Word version mask from the
// volume UUID's low 64 bits (spec §4.2.3: "XORed with the volume epoch
// mask"); mixVersion itself masks the result to 56 bits.
func epochMaskFromUUID(id uuid.UUID) uint64 {
	var lo [8]byte
	copy(lo[:], id[8:16])
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(lo[i]) << (8 * i)
	}
	return v
}

// Mount implements spec §3/§9's mount protocol: read the Cardinal
// quorum, and either hydrate a Volume from the winning superblock or, if
// no replica validates, format a fresh one (callers that never want an
// implicit format should check the device for a valid superblock
// themselves before calling Mount; this mirrors the teacher's
// ext4.Read-vs-ext4.Create split collapsed into one entry point, since
// HN4's superblock quorum already tells first-mount from every-other-
// mount apart for us).
func Mount(ctx context.Context, dev hal.Device, blockSize uint32, readOnly bool, log *logrus.Logger) (*Volume, hnerr.Code) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	caps := dev.Caps()
	offsets := sb.ComputeOffsets(caps)

	best, from, healed, code := sb.ReadQuorum(ctx, dev, offsets)
	if code.IsError() {
		if readOnly {
			return nil, hnerr.ErrGeometry
		}
		v, fcode := formatFresh(ctx, dev, offsets, blockSize, caps, log)
		if fcode.IsError() {
			return nil, fcode
		}
		v.refCount = 1
		return v, hnerr.OK
	}

	v, hcode := hydrate(ctx, dev, offsets, best, log)
	if hcode.IsError() {
		return nil, hcode
	}
	if from != sb.North {
		log.WithField("replica", from.String()).Info("mounted from a non-North cardinal replica")
	}
	if healed {
		log.Info("self-healed North superblock replica from quorum winner")
	}
	if best.HasState(sb.StateDirty) {
		log.Warn("volume was not cleanly unmounted; mounting in its last known dirty state")
	}
	if best.HasState(sb.StatePanic) || best.HasState(sb.StateToxic) {
		log.Error("volume superblock reports Panic or Toxic state; forcing read-only mount")
		readOnly = true
	}

	v.readOnly = readOnly
	v.void.SetReadOnly(readOnly)
	v.refCount = 1
	return v, hnerr.OK
}

func formatFresh(ctx context.Context, dev hal.Device, offsets sb.Offsets, blockSize uint32, caps hal.Caps, log *logrus.Logger) (*Volume, hnerr.Code) {
	if blockSize == 0 {
		blockSize = 4096
	}
	totalBlocks := caps.TotalCapacityBytes / uint64(blockSize)
	if totalBlocks < minFormatBlocks {
		return nil, hnerr.ErrGeometry
	}
	lay := computeLayout(totalBlocks, blockSize)

	volUUID := uuid.New()
	epochMask := epochMaskFromUUID(volUUID)

	super := &sb.Superblock{
		Version:           1,
		BlockSize:         blockSize,
		TotalCapacity:     addr.FromU64(totalBlocks),
		EpochRingStart:    lay.EpochRingStart,
		CortexStart:       lay.CortexStart,
		VoidBitmapStart:   lay.VoidBitmapStart,
		QualityMaskStart:  lay.QualityMaskStart,
		FluxManifoldStart: lay.FluxManifoldStart,
		HorizonStart:      lay.HorizonStart,
		JournalStart:      lay.JournalStart,
		CopyGeneration:    1,
		StateFlags:        sb.StateClean,
		FormatProfile:     uint32(caps.Profile),
		DeviceType:        caps.Profile,
		VolumeUUID:        volUUID,
	}
	if caps.Flags&hal.FlagZNSNative == 0 {
		super.CompatFlags |= sb.CompatSouthPresent
	}

	v := &Volume{
		dev:       dev,
		blockSize: blockSize,
		profile:   caps.Profile,
		log:       log,
		offsets:   offsets,
		super:     super,
		lay:       lay,
		extParams: flux.Params{G: dev.GetRandomU64(), V: 1, M: 0},
	}
	v.void = armor.NewVoidBitmap(totalBlocks, epochMask, v.markDirty)
	v.qmask = qmask.New(totalBlocks)
	v.horizon = flux.NewHorizon(lay.HorizonStart, lay.JournalStart, blockSize, caps.Profile, v.void, v.markDirty)
	v.alloc = flux.NewAllocator(lay.FluxManifoldStart, lay.AvailableD1Blocks, totalBlocks, caps.Profile, v.void, v.qmask, v.horizon, v.markDirty)
	v.cortex = cortex.NewTable(lay.CortexCapacity, dev, v.persistAnchor, v.extWriteName, v.extReadName)
	v.ring = sb.NewRing(dev, lay.EpochRingStart, blockSize, epochRingRecords)

	if code := sb.WriteQuorum(ctx, dev, super, offsets); code.IsError() {
		return nil, code
	}
	if code := v.ring.WriteRecord(ctx, 0, 0); code.IsError() {
		return nil, code
	}
	if code := v.flushMetadataRegions(ctx); code.IsError() {
		return nil, code
	}

	log.WithFields(logrus.Fields{
		"total_blocks":  totalBlocks,
		"block_size":    blockSize,
		"volume_uuid":   volUUID.String(),
		"cortex_slots":  lay.CortexCapacity,
		"d1_blocks":     lay.AvailableD1Blocks,
	}).Info("formatted fresh HN4 volume")
	return v, hnerr.OK
}

func hydrate(ctx context.Context, dev hal.Device, offsets sb.Offsets, best *sb.Superblock, log *logrus.Logger) (*Volume, hnerr.Code) {
	totalBlocks, err := best.TotalCapacity.ToU64Checked()
	if err != nil {
		return nil, hnerr.ErrGeometry
	}
	lay := computeLayout(totalBlocks, best.BlockSize)
	if lay.EpochRingStart != best.EpochRingStart || lay.CortexStart != best.CortexStart ||
		lay.VoidBitmapStart != best.VoidBitmapStart || lay.QualityMaskStart != best.QualityMaskStart ||
		lay.FluxManifoldStart != best.FluxManifoldStart || lay.HorizonStart != best.HorizonStart {
		return nil, hnerr.ErrGeometry
	}

	epochMask := epochMaskFromUUID(best.VolumeUUID)

	v := &Volume{
		dev:       dev,
		blockSize: best.BlockSize,
		profile:   best.DeviceType,
		log:       log,
		offsets:   offsets,
		super:     best,
		lay:       lay,
		extParams: flux.Params{G: dev.GetRandomU64(), V: 1, M: 0},
	}

	voidBuf, code := readRegion(ctx, dev, lay.VoidBitmapStart, lay.VoidBitmapBlocks, best.BlockSize)
	if code.IsError() {
		return nil, code
	}
	l3, l2, ok := decodeTwoBlobs(voidBuf)
	if !ok {
		return nil, hnerr.ErrGeometry
	}
	v.void = armor.NewVoidBitmap(totalBlocks, epochMask, v.markDirty)
	if code := v.void.LoadFrom(l3, l2); code.IsError() {
		return nil, code
	}

	qBuf, code := readRegion(ctx, dev, lay.QualityMaskStart, lay.QualityMaskBlocks, best.BlockSize)
	if code.IsError() {
		return nil, code
	}
	loB, hiB, ok := decodeTwoBlobs(qBuf)
	if !ok {
		return nil, hnerr.ErrGeometry
	}
	qm, err := qmask.LoadMask(totalBlocks, loB, hiB)
	if err != nil {
		return nil, hnerr.ErrGeometry
	}
	v.qmask = qm

	cortexBytes := lay.CortexCapacity * cortex.RecordSize
	cortexBlocks := (cortexBytes + uint64(best.BlockSize) - 1) / uint64(best.BlockSize)
	cBuf, code := readRegion(ctx, dev, lay.CortexStart, cortexBlocks, best.BlockSize)
	if code.IsError() {
		return nil, code
	}
	table, code := cortex.LoadTable(cBuf[:cortexBytes], dev, v.persistAnchor, v.extWriteName, v.extReadName)
	if code.IsError() {
		return nil, code
	}
	v.cortex = table

	v.horizon = flux.NewHorizon(lay.HorizonStart, lay.JournalStart, best.BlockSize, best.DeviceType, v.void, v.markDirty)
	v.alloc = flux.NewAllocator(lay.FluxManifoldStart, lay.AvailableD1Blocks, totalBlocks, best.DeviceType, v.void, v.qmask, v.horizon, v.markDirty)
	v.ring = sb.NewRing(dev, lay.EpochRingStart, best.BlockSize, epochRingRecords)

	// The superblock carries no used-blocks field to restore from, so the
	// void bitmap's own set-bit count is the only authoritative source
	// for the saturation state machine (spec §4.1.5) after a remount.
	usedBlocks := v.void.L3.CountSet()
	v.alloc.SeedUsed(usedBlocks)
	log.WithFields(logrus.Fields{
		"used_blocks":  usedBlocks,
		"total_blocks": totalBlocks,
	}).Debug("seeded allocator used_blocks from void bitmap cross-check")

	if best.HasState(sb.StateDirty) {
		v.dirty = true
	}
	return v, hnerr.OK
}

// flushMetadataRegions dumps the void bitmap, quality mask, and cortex
// table to their fixed on-disk regions, in flush-sized chunks with a
// zone reset ahead of each chunk on ZNS devices (spec §4.5.2 step 2).
// Used both right after a fresh format and as the first step of an
// orderly unmount.
func (v *Volume) flushMetadataRegions(ctx context.Context) hnerr.Code {
	l3, l2 := v.void.Dump()
	if code := writeRegionFlush(ctx, v.dev, v.lay.VoidBitmapStart, encodeTwoBlobs(l3, l2), v.blockSize, v.profile); code.IsError() {
		return code
	}

	lo, hi, err := v.qmask.Dump()
	if err != nil {
		return hnerr.ErrGeometry
	}
	if code := writeRegionFlush(ctx, v.dev, v.lay.QualityMaskStart, encodeTwoBlobs(lo, hi), v.blockSize, v.profile); code.IsError() {
		return code
	}

	cortexBuf := v.cortex.Dump()
	if code := writeRegionFlush(ctx, v.dev, v.lay.CortexStart, cortexBuf, v.blockSize, v.profile); code.IsError() {
		return code
	}

	return hnerr.OK
}
