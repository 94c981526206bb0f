package addr

import "testing"

func TestAddUintMaxPlusOneCarries(t *testing.T) {
	a := Addr{Lo: ^uint64(0), Hi: 0}
	got, overflow := Add(a, FromU64(1))
	want := Addr{Lo: 0, Hi: 1}
	if got != want || overflow {
		t.Fatalf("Add(MAX,1) = %+v overflow=%v, want %+v overflow=false", got, overflow, want)
	}
}

func TestSubBorrow(t *testing.T) {
	a := Addr{Lo: 0, Hi: 1}
	got, underflow := Sub(a, FromU64(1))
	want := Addr{Lo: ^uint64(0), Hi: 0}
	if got != want || underflow {
		t.Fatalf("Sub = %+v underflow=%v, want %+v", got, underflow, want)
	}
}

func TestCmp(t *testing.T) {
	if Cmp(FromU64(1), FromU64(2)) >= 0 {
		t.Fatal("expected 1 < 2")
	}
	if Cmp(Addr{Hi: 1}, Addr{Lo: ^uint64(0)}) <= 0 {
		t.Fatal("expected high-half value to compare greater")
	}
}

func TestMulMod(t *testing.T) {
	max := ^uint64(0)
	if got := MulMod(max, 2, max); got != 0 {
		t.Fatalf("MulMod(UINT64_MAX, 2, UINT64_MAX) = %d, want 0", got)
	}
}

func TestDivByU64RoundTrip(t *testing.T) {
	v := Addr{Lo: 12345, Hi: 7}
	q, r := DivByU64(v, 100)
	rebuilt, _ := MulByU64(q, 100)
	rebuilt, _ = Add(rebuilt, FromU64(r))
	if rebuilt != v {
		t.Fatalf("division did not round-trip: got %+v want %+v", rebuilt, v)
	}
}

func TestToU64CheckedRejectsHighHalf(t *testing.T) {
	if _, err := (Addr{Hi: 1}).ToU64Checked(); err == nil {
		t.Fatal("expected error for nonzero high half")
	}
}
