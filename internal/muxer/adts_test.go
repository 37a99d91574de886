package muxer

import "testing"

func TestDemuxADTSScenarioS4(t *testing.T) {
	buf := []byte{0xFF, 0xF9, 0x2C, 0x40, 0x00, 0xE0, 0x00}
	frame, rest, err := DemuxADTS(buf)
	if err != nil {
		t.Fatalf("DemuxADTS: %v", err)
	}
	if !frame.ProtectionAbsent {
		t.Fatal("expected protection_absent=1")
	}
	if frame.Object != ObjectMain {
		t.Fatalf("object = %v, want Main", frame.Object)
	}
	if frame.SamplingFreqIndex != 11 {
		t.Fatalf("freq idx = %d, want 11", frame.SamplingFreqIndex)
	}
	if frame.ChannelConfig != 1 {
		t.Fatalf("channel config = %d, want 1", frame.ChannelConfig)
	}
	if frame.FrameLength != 7 {
		t.Fatalf("frame length = %d, want 7", frame.FrameLength)
	}
	if len(frame.Payload) != 0 {
		t.Fatalf("payload = % X, want empty", frame.Payload)
	}
	if len(rest) != 0 {
		t.Fatalf("rest = % X, want empty", rest)
	}
}

func TestDemuxADTSScenarioS5(t *testing.T) {
	buf := []byte{0xFF, 0xF9, 0x04, 0x40, 0x00, 0xE0, 0x00}
	frame, _, err := DemuxADTS(buf)
	if err != nil {
		t.Fatalf("DemuxADTS: %v", err)
	}
	if frame.SamplingFreqIndex != 1 {
		t.Fatalf("freq idx = %d, want 1", frame.SamplingFreqIndex)
	}
	if frame.Object != ObjectMain {
		t.Fatalf("object = %v, want Main", frame.Object)
	}
	if frame.FrameLength != 7 {
		t.Fatalf("frame length = %d, want 7", frame.FrameLength)
	}
}

func TestDemuxADTSRejectsShortBuffer(t *testing.T) {
	_, rest, err := DemuxADTS([]byte{0xFF, 0xF9, 0x2C})
	if err == nil {
		t.Fatal("expected an error for a too-short buffer")
	}
	if len(rest) != 3 {
		t.Fatalf("buffer should be returned unchanged on error, got % X", rest)
	}
}

func TestDemuxADTSRejectsBadSyncWord(t *testing.T) {
	buf := []byte{0x00, 0xF9, 0x2C, 0x40, 0x00, 0xE0, 0x00}
	_, _, err := DemuxADTS(buf)
	if err == nil {
		t.Fatal("expected an error for a missing sync word")
	}
}

func TestDemuxADTSConsumesTrailingFrame(t *testing.T) {
	first := []byte{0xFF, 0xF9, 0x2C, 0x40, 0x00, 0xE0, 0x00}
	buf := append(append([]byte{}, first...), 0xDE, 0xAD)
	frame, rest, err := DemuxADTS(buf)
	if err != nil {
		t.Fatalf("DemuxADTS: %v", err)
	}
	if frame.FrameLength != 7 {
		t.Fatalf("frame length = %d, want 7", frame.FrameLength)
	}
	if len(rest) != 2 || rest[0] != 0xDE || rest[1] != 0xAD {
		t.Fatalf("rest = % X, want DE AD", rest)
	}
}
