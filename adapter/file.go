//go:build unix

package adapter

import (
	"context"
	"errors"
	"io"

	"github.com/hydranexus/hn4/internal/hnerr"
	"github.com/hydranexus/hn4/volume"
)

// File is a POSIX-shaped handle onto one HN4 anchor, the same role the
// teacher's ext4.File plays over an inode: byte-offset Read/Write/Seek
// translated into volume.Volume's logical-block-indexed Read/Write.
// Grounded on filesystem/ext4/file.go's field layout and its
// acknowledged "inefficient, whole-object" read/write strategy — HN4's
// version is whole-block rather than whole-file, since Volume has no
// extent tree to read selectively from either.
type File struct {
	v      *volume.Volume
	name   string
	offset int64
}

// Open resolves name to a live anchor and returns a seekable handle.
// create, when the anchor does not already exist, makes a fresh one
// exactly like os.O_CREATE.
func Open(v *volume.Volume, name string, create bool) (*File, error) {
	_, code := v.Lookup(name)
	if code == hnerr.ErrNotFound && create {
		if _, ccode := v.Create(name, false); ccode.IsError() {
			return nil, wrapErr(ccode, "create")
		}
	} else if code.IsError() {
		return nil, wrapErr(code, "open")
	}
	v.Open()
	return &File{v: v, name: name}, nil
}

func wrapErr(code hnerr.Code, op string) error {
	if !code.IsError() {
		return nil
	}
	return &PathError{Op: op, Code: code}
}

// PathError is the error type File's methods return, carrying the
// underlying hnerr.Code for a caller that wants more than an errno.
type PathError struct {
	Op   string
	Code hnerr.Code
}

func (e *PathError) Error() string { return e.Op + ": " + e.Code.String() }

// Errno maps e onto the nearest POSIX errno via ToErrno.
func (e *PathError) Errno() error { return ToErrno(e.Code) }

// Read reads up to len(b) bytes starting at the handle's current
// offset, advancing it by the number of bytes read. A read that runs
// past the end of every logical block the anchor has ever written
// returns io.EOF, the same contract os.File.Read promises.
func (f *File) Read(b []byte) (int, error) {
	ctx := context.Background()
	blockSize := f.v.PayloadCapacity()
	if blockSize <= 0 {
		return 0, &PathError{Op: "read", Code: hnerr.ErrGeometry}
	}

	a, lcode := f.v.Lookup(f.name)
	if lcode.IsError() {
		return 0, &PathError{Op: "read", Code: lcode}
	}
	mass := int64(a.Mass)

	total := 0
	for total < len(b) && f.offset < mass {
		idx := uint64(f.offset) / uint64(blockSize)
		within := int(uint64(f.offset) % uint64(blockSize))

		block, code := f.v.Read(ctx, f.name, idx)
		if code == hnerr.InfoSparse {
			block = make([]byte, blockSize)
		} else if code == hnerr.ErrNotFound {
			if total == 0 {
				return 0, io.EOF
			}
			break
		} else if code.IsError() {
			return total, &PathError{Op: "read", Code: code}
		}
		if end := int64(within) + (mass - f.offset); end < int64(len(block)) {
			block = block[:end]
		}
		if within >= len(block) {
			break
		}

		n := copy(b[total:], block[within:])
		total += n
		f.offset += int64(n)
		if n < len(block)-within {
			// Filled the caller's buffer before exhausting this block.
			break
		}
	}
	if total == 0 && len(b) > 0 {
		return 0, io.EOF
	}
	return total, nil
}

// Write writes len(p) bytes starting at the handle's current offset,
// advancing it by len(p). Each touched logical block is read back
// (InfoSparse treated as a zero-filled block), overlaid with the
// caller's bytes, and written back whole via Volume.Write, since
// computed placement has no means of a sub-block in-place patch.
func (f *File) Write(p []byte) (int, error) {
	ctx := context.Background()
	blockSize := f.v.PayloadCapacity()
	if blockSize <= 0 {
		return 0, &PathError{Op: "write", Code: hnerr.ErrGeometry}
	}

	total := 0
	for total < len(p) {
		idx := uint64(f.offset) / uint64(blockSize)
		within := int(uint64(f.offset) % uint64(blockSize))

		existing, code := f.v.Read(ctx, f.name, idx)
		switch {
		case code == hnerr.OK:
		case code == hnerr.InfoSparse, code == hnerr.ErrNotFound:
			existing = nil
		default:
			return total, &PathError{Op: "write", Code: code}
		}

		block := make([]byte, blockSize)
		copy(block, existing)

		n := copy(block[within:], p[total:])
		newLen := within + n
		if newLen < len(existing) {
			newLen = len(existing)
		}

		if code := f.v.Write(ctx, f.name, idx, block[:newLen]); code.IsError() {
			return total, &PathError{Op: "write", Code: code}
		}
		total += n
		f.offset += int64(n)
	}
	return total, nil
}

// Seek sets the handle's offset, following io.Seeker's whence contract.
// HN4 has no fixed notion of file length beyond an anchor's mass, so
// io.SeekEnd looks it up from the anchor each call.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	newOffset := int64(0)
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekCurrent:
		newOffset = f.offset + offset
	case io.SeekEnd:
		a, code := f.v.Lookup(f.name)
		if code.IsError() {
			return f.offset, &PathError{Op: "seek", Code: code}
		}
		newOffset = int64(a.Mass) + offset
	default:
		return f.offset, errors.New("adapter: invalid whence")
	}
	if newOffset < 0 {
		return f.offset, errors.New("adapter: negative offset")
	}
	f.offset = newOffset
	return f.offset, nil
}

// Close releases the handle's hold on the volume, letting an Unmount
// proceed once every File opened against it has been closed.
func (f *File) Close() error {
	f.v.Release()
	return nil
}

// ReadDir lists every live anchor's name, the minimal directory surface
// spec.md's Non-goals leave for adapter rather than core (HN4 has no
// hierarchical directory structure of its own; every anchor lives in
// one flat namespace).
func ReadDir(v *volume.Volume) []string {
	live := v.List()
	names := make([]string, 0, len(live))
	for _, na := range live {
		names = append(names, na.Name)
	}
	return names
}
