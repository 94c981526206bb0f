//go:build unix

// Package adapter is the thin POSIX-shaped surface spec.md's Non-goals
// explicitly keep out of core scope: an errno mapping table and a
// minimal file handle wrapping volume.Volume's seed_id/logical_idx API
// in the byte-offset terms a POSIX caller expects. None of the
// placement, allocation or quorum logic lives here — this package only
// translates.
package adapter

import (
	"golang.org/x/sys/unix"

	"github.com/hydranexus/hn4/internal/hnerr"
)

// ToErrno maps an HN4 result code onto the nearest POSIX errno, the way
// a FUSE or NFS front end would report it to a caller that only
// understands syscall.Errno. Info codes have no errno analogue and map
// to 0 (success); callers that care about INFO_SPARSE vs a real hit
// should inspect the hnerr.Code directly rather than go through this
// table. Built on golang.org/x/sys/unix's errno constants, the same
// dependency the file-backed HAL already uses for pread/pwrite.
func ToErrno(code hnerr.Code) unix.Errno {
	switch code {
	case hnerr.OK, hnerr.InfoHealed, hnerr.InfoHorizonFallback, hnerr.InfoSparse:
		return 0
	case hnerr.ErrEnospc:
		return unix.ENOSPC
	case hnerr.ErrEventHorizon:
		return unix.ENOSPC
	case hnerr.ErrGravityCollapse:
		return unix.EIO
	case hnerr.ErrGeometry:
		return unix.EINVAL
	case hnerr.ErrBitmapCorrupt:
		return unix.EIO
	case hnerr.ErrDataRot:
		return unix.EIO
	case hnerr.ErrHeaderRot:
		return unix.EIO
	case hnerr.ErrIDMismatch:
		return unix.EIO
	case hnerr.ErrHwIO:
		return unix.EIO
	case hnerr.ErrBusy:
		return unix.EBUSY
	case hnerr.ErrTimeParadox:
		return unix.EROFS
	case hnerr.ErrMediaToxic:
		return unix.EIO
	case hnerr.ErrAccessDenied:
		return unix.EACCES
	case hnerr.ErrImmutable:
		return unix.EPERM
	case hnerr.ErrNotFound:
		return unix.ENOENT
	case hnerr.ErrExist:
		return unix.EEXIST
	case hnerr.ErrVolumeLocked:
		return unix.EBUSY
	default:
		return unix.EIO
	}
}
