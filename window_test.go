package lfg

import (
	"bytes"
	"testing"
)

func TestWindowOverlapCopy(t *testing.T) {
	w := newWindow(16)
	w.append(0x58)

	var out bytes.Buffer
	sink := &outputSink{w: &out}
	if err := w.copyMatch(sink, 1, 9); err != nil {
		t.Fatal(err)
	}
	got := out.Bytes()
	for i, b := range got {
		if b != 0x58 {
			t.Fatalf("byte %d = %#x, want 0x58", i, b)
		}
	}
	if len(got) != 9 {
		t.Fatalf("len(got) = %d, want 9", len(got))
	}
}

func TestWindowWrap(t *testing.T) {
	w := newWindow(4)
	for _, b := range []byte{1, 2, 3, 4, 5} {
		w.append(b)
	}
	// after appending 1..5 into a 4-byte window, contents are 5,2,3,4
	// (1 was overwritten); back=1 is the most recent (5).
	if got := w.at(1); got != 5 {
		t.Fatalf("at(1) = %d, want 5", got)
	}
	if got := w.at(4); got != 2 {
		t.Fatalf("at(4) = %d, want 2", got)
	}
}
