package muxer

import "testing"

func TestEncodeAMF0String(t *testing.T) {
	b, err := encodeAMF0(amf0Array{amf0String("connect")})
	if err != nil {
		t.Fatalf("encodeAMF0: %v", err)
	}
	want := []byte{amf0MarkerString, 0x00, 0x07, 'c', 'o', 'n', 'n', 'e', 'c', 't'}
	if len(b) != len(want) {
		t.Fatalf("len = %d, want %d (% X)", len(b), len(want), b)
	}
	for i := range want {
		if b[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, b[i], want[i])
		}
	}
}

func TestEncodeAMF0Number(t *testing.T) {
	b, err := encodeAMF0(amf0Array{amf0Number(1)})
	if err != nil {
		t.Fatalf("encodeAMF0: %v", err)
	}
	if len(b) != 9 {
		t.Fatalf("len = %d, want 9", len(b))
	}
	if b[0] != amf0MarkerNumber {
		t.Fatalf("marker = %#x, want 0x00", b[0])
	}
}

func TestEncodeAMF0Null(t *testing.T) {
	b, err := encodeAMF0(amf0Array{amf0Null{}})
	if err != nil {
		t.Fatalf("encodeAMF0: %v", err)
	}
	if len(b) != 1 || b[0] != amf0MarkerNull {
		t.Fatalf("got % X, want a single 0x05 byte", b)
	}
}

func TestEncodeAMF0ObjectTerminatesWithEmptyKeyAndObjectEndMarker(t *testing.T) {
	b, err := encodeAMF0(amf0Array{amf0Object{"app": amf0String("live")}})
	if err != nil {
		t.Fatalf("encodeAMF0: %v", err)
	}
	// last 3 bytes must be the empty-string UTF8 (00 00) followed by the object-end marker (09)
	tail := b[len(b)-3:]
	if tail[0] != 0 || tail[1] != 0 || tail[2] != amf0MarkerObjectEnd {
		t.Fatalf("object did not terminate correctly: % X", tail)
	}
}
