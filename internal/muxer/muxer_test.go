package muxer

import (
	"testing"

	"firestige.xyz/otus/internal/ps"
)

type publishCall struct {
	track   string
	dts     uint32
	payload []byte
}

type fakePublisher struct {
	calls      []publishCall
	resetCount int
}

func (f *fakePublisher) PublishVideo(dts uint32, payload []byte) error {
	f.calls = append(f.calls, publishCall{"video", dts, append([]byte{}, payload...)})
	return nil
}

func (f *fakePublisher) PublishAudio(dts uint32, payload []byte) error {
	f.calls = append(f.calls, publishCall{"audio", dts, append([]byte{}, payload...)})
	return nil
}

func (f *fakePublisher) ResetSequenceHeaders() { f.resetCount++ }

func annexBNals(nals ...[]byte) []byte {
	var out []byte
	for _, n := range nals {
		out = append(out, 0, 0, 0, 1)
		out = append(out, n...)
	}
	return out
}

func adtsFrame(payload []byte) []byte {
	frameLength := 7 + len(payload)
	b := make([]byte, 7)
	b[0] = 0xFF
	b[1] = 0xF9                                             // sync + protection_absent=1
	b[2] = 0x2C                                              // profile=Main, freq_idx=11
	b[3] = byte((frameLength>>11)&0x03) | (1 << 6)           // frame_length high bits, channel_config=1 (mono)
	b[4] = byte(frameLength >> 3)
	b[5] = byte((frameLength&0x07)<<5) | 0x1F
	return append(b, payload...)
}

func TestMuxerEmitsVideoSequenceHeaderOnceSPSAndPPSSeen(t *testing.T) {
	fp := &fakePublisher{}
	m := NewMuxer(fp)

	sps := []byte{0x67, 0x42, 0x00, 0x1E}
	pps := []byte{0x68, 0xCE}
	idr := []byte{0x65, 0xAA, 0xBB}

	// The later-DTS audio message lets the reorder queue release the video frames.
	m.OnPackBundle(ps.Bundle{Messages: []ps.TSMessage{
		{Kind: ps.KindVideo, Codec: ps.CodecH264, DTS: 900, Payload: annexBNals(sps, pps, idr)},
		{Kind: ps.KindAudio, Codec: ps.CodecMP3, DTS: 90000, Payload: []byte{0x00}},
	}})

	if len(fp.calls) != 2 {
		t.Fatalf("expected 2 publish calls (seq header + frame), got %d: %+v", len(fp.calls), fp.calls)
	}
	if fp.calls[0].track != "video" || fp.calls[0].payload[1] != AVCPacketSequenceHeader {
		t.Fatalf("first call should be the sequence header, got %+v", fp.calls[0])
	}
	if fp.calls[1].payload[1] != AVCPacketNALU {
		t.Fatalf("second call should be a NALU frame, got %+v", fp.calls[1])
	}
}

func TestMuxerDoesNotResendUnchangedSequenceHeader(t *testing.T) {
	fp := &fakePublisher{}
	m := NewMuxer(fp)
	sps := []byte{0x67, 0x42, 0x00, 0x1E}
	pps := []byte{0x68, 0xCE}

	for i := 0; i < 2; i++ {
		m.OnPackBundle(ps.Bundle{Messages: []ps.TSMessage{
			{Kind: ps.KindVideo, Codec: ps.CodecH264, DTS: uint64(900 * (i + 1)), Payload: annexBNals(sps, pps, []byte{0x41, 0x01})},
			{Kind: ps.KindAudio, Codec: ps.CodecMP3, DTS: 90000, Payload: []byte{0x00}},
		}})
	}

	seqHeaders := 0
	for _, c := range fp.calls {
		if c.track == "video" && len(c.payload) > 1 && c.payload[1] == AVCPacketSequenceHeader {
			seqHeaders++
		}
	}
	if seqHeaders != 1 {
		t.Fatalf("expected exactly 1 sequence header across two identical-SPS/PPS bundles, got %d", seqHeaders)
	}
}

func TestMuxerResendsSequenceHeaderAfterReset(t *testing.T) {
	fp := &fakePublisher{}
	m := NewMuxer(fp)
	sps := []byte{0x67, 0x42, 0x00, 0x1E}
	pps := []byte{0x68, 0xCE}

	m.OnPackBundle(ps.Bundle{Messages: []ps.TSMessage{
		{Kind: ps.KindVideo, Codec: ps.CodecH264, DTS: 900, Payload: annexBNals(sps, pps, []byte{0x41})},
		{Kind: ps.KindAudio, Codec: ps.CodecMP3, DTS: 90000, Payload: []byte{0x00}},
	}})
	m.Reset()
	m.OnPackBundle(ps.Bundle{Messages: []ps.TSMessage{
		{Kind: ps.KindVideo, Codec: ps.CodecH264, DTS: 1800, Payload: annexBNals(sps, pps, []byte{0x41})},
		{Kind: ps.KindAudio, Codec: ps.CodecMP3, DTS: 90000, Payload: []byte{0x00}},
	}})

	if fp.resetCount != 1 {
		t.Fatalf("expected ResetSequenceHeaders to be called once, got %d", fp.resetCount)
	}
	seqHeaders := 0
	for _, c := range fp.calls {
		if c.track == "video" && len(c.payload) > 1 && c.payload[1] == AVCPacketSequenceHeader {
			seqHeaders++
		}
	}
	if seqHeaders != 2 {
		t.Fatalf("expected a sequence header resend after Reset, got %d total", seqHeaders)
	}
}

func TestMuxerInterleavesAudioAndVideoByDTS(t *testing.T) {
	fp := &fakePublisher{}
	m := NewMuxer(fp)
	sps := []byte{0x67, 0x42, 0x00, 0x1E}
	pps := []byte{0x68, 0xCE}

	m.OnPackBundle(ps.Bundle{Messages: []ps.TSMessage{
		{Kind: ps.KindVideo, Codec: ps.CodecH264, DTS: 1000, Payload: annexBNals(sps, pps, []byte{0x65})},
		{Kind: ps.KindAudio, Codec: ps.CodecAAC, DTS: 500, Payload: adtsFrame([]byte{0xAA, 0xBB})},
	}})

	if len(fp.calls) == 0 {
		t.Fatal("expected some frames to be released once both tracks are present")
	}
	// lowest DTS among anything released must never exceed a later one for the same track pairing need
	for i := 1; i < len(fp.calls); i++ {
		if fp.calls[i].dts < fp.calls[i-1].dts {
			t.Fatalf("frames released out of DTS order: %+v", fp.calls)
		}
	}
}

func TestMuxerEmitsHEVCSequenceHeaderOnceVPSSPSPPSSeen(t *testing.T) {
	fp := &fakePublisher{}
	m := NewMuxer(fp)

	vps := []byte{0x40, 0x01, 0x0C}
	sps := []byte{0x42, 0x01, 0x01, 0x02, 0x20, 0x00, 0x00, 0x03, 0x00, 0x90, 0x00, 0x00, 0x03, 0x00, 0x00, 0x03, 0x00, 0x99, 0xA0}
	pps := []byte{0x44, 0x01, 0xC0}
	idr := []byte{0x26, 0x01, 0xAA, 0xBB}

	m.OnPackBundle(ps.Bundle{Messages: []ps.TSMessage{
		{Kind: ps.KindVideo, Codec: ps.CodecH265, DTS: 900, Payload: annexBNals(vps, sps, pps, idr)},
		{Kind: ps.KindAudio, Codec: ps.CodecMP3, DTS: 90000, Payload: []byte{0x00}},
	}})

	if len(fp.calls) != 2 {
		t.Fatalf("expected 2 publish calls (seq header + frame), got %d: %+v", len(fp.calls), fp.calls)
	}
	if fp.calls[0].payload[1] != AVCPacketSequenceHeader {
		t.Fatalf("first call should be the sequence header, got %+v", fp.calls[0])
	}
	if fp.calls[0].payload[0]&0x0F != VideoCodecHEVC {
		t.Fatalf("expected CodecID=HEVC in video tag header, got %#x", fp.calls[0].payload[0])
	}
}

func TestMuxerPassesThroughNonAACAudioUnmodified(t *testing.T) {
	fp := &fakePublisher{}
	m := NewMuxer(fp)
	sps := []byte{0x67, 0x42, 0x00, 0x1E}
	pps := []byte{0x68, 0xCE}

	m.OnPackBundle(ps.Bundle{Messages: []ps.TSMessage{
		{Kind: ps.KindVideo, Codec: ps.CodecH264, DTS: 100, Payload: annexBNals(sps, pps, []byte{0x65})},
		{Kind: ps.KindAudio, Codec: ps.CodecMP3, DTS: 90, Payload: []byte("Hello")},
	}})

	wantHeader := (SoundFormatMP3 << 4) | (0 << 2) | (1 << 1) | 1 // SoundRate 0: MP3 is taken as 8kHz
	found := false
	for _, c := range fp.calls {
		if c.track == "audio" && c.payload[0] == wantHeader {
			found = true
			if string(c.payload[1:]) != "Hello" {
				t.Fatalf("mp3 payload mutated: %q", c.payload[1:])
			}
		}
	}
	if !found {
		t.Fatalf("expected an mp3 audio tag with header byte %#x", wantHeader)
	}
}
