package blockio

import (
	"bytes"
	"testing"

	"github.com/hydranexus/hn4/internal/hnerr"
)

func TestBuildBlockRoundTrips(t *testing.T) {
	wellID := [16]byte{1, 2, 3, 4}
	payload := []byte("the quick brown fox")

	block, code := BuildBlock(4096, wellID, 7, 3, payload)
	if code.IsError() {
		t.Fatalf("BuildBlock: %v", code)
	}

	hdr, code := DecodeHeader(block)
	if code.IsError() {
		t.Fatalf("DecodeHeader: %v", code)
	}
	if hdr.WellID != wellID || hdr.LogicalIdx != 7 || hdr.WriteGen != 3 {
		t.Fatalf("decoded header mismatch: %+v", hdr)
	}
	if hdr.PayloadLen != uint32(len(payload)) {
		t.Fatalf("PayloadLen = %d, want %d", hdr.PayloadLen, len(payload))
	}
	if code := VerifyPayload(block, hdr); code.IsError() {
		t.Fatalf("VerifyPayload: %v", code)
	}
	if got := block[HeaderSize : HeaderSize+len(payload)]; !bytes.Equal(got, payload) {
		t.Fatalf("payload bytes = %q, want %q", got, payload)
	}
}

func TestDecodeHeaderRejectsBadMagic(t *testing.T) {
	block := make([]byte, 4096)
	if _, code := DecodeHeader(block); code != hnerr.ErrNotFound {
		t.Fatalf("expected ErrNotFound on an all-zero (never written) block, got %v", code)
	}
}

func TestDecodeHeaderRejectsCorruptHeaderCRC(t *testing.T) {
	wellID := [16]byte{9}
	block, code := BuildBlock(4096, wellID, 0, 1, []byte("x"))
	if code.IsError() {
		t.Fatal(code)
	}
	block[10] ^= 0xFF // corrupt a byte inside well_id, inside the CRC'd span
	if _, code := DecodeHeader(block); code != hnerr.ErrHeaderRot {
		t.Fatalf("expected ErrHeaderRot, got %v", code)
	}
}

func TestVerifyPayloadDetectsDataRot(t *testing.T) {
	wellID := [16]byte{9}
	block, code := BuildBlock(4096, wellID, 0, 1, []byte("hello"))
	if code.IsError() {
		t.Fatal(code)
	}
	hdr, code := DecodeHeader(block)
	if code.IsError() {
		t.Fatal(code)
	}
	block[HeaderSize] ^= 0xFF // flip a payload byte without touching the header
	if code := VerifyPayload(block, hdr); code != hnerr.ErrDataRot {
		t.Fatalf("expected ErrDataRot, got %v", code)
	}
}

func TestBuildBlockRejectsOversizedPayload(t *testing.T) {
	wellID := [16]byte{1}
	payload := make([]byte, 4096)
	if _, code := BuildBlock(4096, wellID, 0, 1, payload); code != hnerr.ErrGeometry {
		t.Fatalf("expected ErrGeometry for a payload that doesn't fit, got %v", code)
	}
}
