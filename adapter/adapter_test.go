//go:build unix

package adapter

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/hydranexus/hn4/hal"
	"github.com/hydranexus/hn4/internal/hnerr"
	"github.com/hydranexus/hn4/volume"
)

const testBlockSize = 4096

func testVolume(t *testing.T) *volume.Volume {
	t.Helper()
	const totalBlocks = 4096
	dev := hal.NewSimDevice(totalBlocks*testBlockSize, testBlockSize, hal.ProfileSSD, 0)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	v, code := volume.Mount(context.Background(), dev, testBlockSize, false, log)
	if code.IsError() {
		t.Fatalf("Mount: %v", code)
	}
	return v
}

func TestFileWriteReadRoundTrips(t *testing.T) {
	v := testVolume(t)

	f, err := Open(v, "greeting.txt", true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	payload := []byte("hello from the POSIX adapter")
	if _, err := f.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	got := make([]byte, len(payload))
	n, err := io.ReadFull(f, got)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != len(payload) || string(got) != string(payload) {
		t.Fatalf("Read = %q, want %q", got[:n], payload)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestFileWriteSpanningMultipleBlocks(t *testing.T) {
	v := testVolume(t)
	f, err := Open(v, "big.bin", true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	capacity := v.PayloadCapacity()
	payload := make([]byte, capacity*3+17)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	if _, err := f.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	got := make([]byte, len(payload))
	if _, err := io.ReadFull(f, got); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], payload[i])
		}
	}
}

func TestReadDirListsCreatedFiles(t *testing.T) {
	v := testVolume(t)
	for _, name := range []string{"one", "two", "three"} {
		if _, err := Open(v, name, true); err != nil {
			t.Fatalf("Open(%s): %v", name, err)
		}
	}

	names := ReadDir(v)
	want := map[string]bool{"one": true, "two": true, "three": true}
	if len(names) != len(want) {
		t.Fatalf("ReadDir returned %d names, want %d", len(names), len(want))
	}
	for _, n := range names {
		if !want[n] {
			t.Fatalf("unexpected name %q in ReadDir result", n)
		}
	}
}

func TestOpenMissingFileWithoutCreateFails(t *testing.T) {
	v := testVolume(t)
	_, err := Open(v, "nope", false)
	if err == nil {
		t.Fatal("Open of a missing file without create should fail")
	}
	pe, ok := err.(*PathError)
	if !ok {
		t.Fatalf("error type = %T, want *PathError", err)
	}
	if pe.Code != hnerr.ErrNotFound {
		t.Fatalf("PathError.Code = %v, want ErrNotFound", pe.Code)
	}
}
