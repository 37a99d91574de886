package muxer

import (
	"fmt"

	"firestige.xyz/otus/internal/log"
	"firestige.xyz/otus/internal/ps"
)

// Publisher is the subset of *Client a Muxer drives. Tests substitute a
// fake to exercise demux/sequence-header/reorder logic without a live
// RTMP server.
type Publisher interface {
	PublishVideo(dts uint32, payload []byte) error
	PublishAudio(dts uint32, payload []byte) error
	ResetSequenceHeaders()
}

// Muxer adapts a stream of ps.Bundle pack deliveries into an RTMP publish:
// Annex-B/ADTS demux, FLV tag construction, DTS reordering, and sequence
// header (re)emission. One Muxer per session; it implements ps.BundleHandler
// so it can be wired directly as a session's pack sink.
type Muxer struct {
	client Publisher
	queue  *ReorderQueue

	vps, sps, pps []byte
	videoShSent   bool

	audioObject  ObjectType
	audioFreqIdx int
	audioChans   int
	audioShSent  bool

	videoCodec byte // VideoCodecAVC or VideoCodecHEVC
}

// NewMuxer wraps an already-connected RTMP client.
func NewMuxer(client Publisher) *Muxer {
	return &Muxer{client: client, queue: NewReorderQueue(), videoCodec: VideoCodecAVC}
}

// OnPackBundle implements ps.BundleHandler. It demuxes every elementary
// stream message in the bundle into FLV-ready frames, reorders them by
// DTS, and publishes whatever the reorder queue releases.
func (m *Muxer) OnPackBundle(b ps.Bundle) {
	for _, msg := range b.Messages {
		if err := m.ingest(msg); err != nil {
			log.L().WithField("stream_id", msg.StreamID).WithError(err).Warn("muxer: dropping message")
		}
	}
	for {
		f, ok := m.queue.Pop()
		if !ok {
			break
		}
		if err := m.publish(f); err != nil {
			log.L().WithError(err).Warn("muxer: publish failed")
		}
	}
}

func (m *Muxer) ingest(msg ps.TSMessage) error {
	switch msg.Codec {
	case ps.CodecH264, ps.CodecH265:
		return m.ingestVideo(msg)
	case ps.CodecAAC:
		return m.ingestAAC(msg)
	case ps.CodecMP3, ps.CodecG711A, ps.CodecOpus, ps.CodecSpeex:
		return m.ingestRawAudio(msg)
	default:
		return fmt.Errorf("muxer: unhandled codec %s", msg.Codec)
	}
}

func (m *Muxer) ingestVideo(msg ps.TSMessage) error {
	nals, err := DemuxAnnexB(msg.Payload)
	if err != nil {
		return fmt.Errorf("annex-b demux: %w", err)
	}

	if msg.Codec == ps.CodecH265 {
		m.videoCodec = VideoCodecHEVC
		return m.ingestHEVC(msg, nals)
	}
	return m.ingestAVC(msg, nals)
}

func (m *Muxer) ingestAVC(msg ps.TSMessage, nals [][]byte) error {
	isKey := false
	var changed bool
	for _, nal := range nals {
		switch ClassifyNAL(nal) {
		case NALSPS:
			if !bytesEqual(m.sps, nal) {
				m.sps = append([]byte{}, nal...)
				changed = true
			}
		case NALPPS:
			if !bytesEqual(m.pps, nal) {
				m.pps = append([]byte{}, nal...)
				changed = true
			}
		case NALIDR:
			isKey = true
		}
	}

	if (changed || !m.videoShSent) && len(m.sps) > 0 && len(m.pps) > 0 {
		sh := H264SequenceHeader(m.sps, m.pps)
		tag := MuxVideoFLVTag(FrameTypeKey, m.videoCodec, AVCPacketSequenceHeader, 0, sh)
		m.queue.Push(Frame{Track: TrackVideo, DTS: msg.DTS, IsKey: true, Data: tag})
		m.videoShSent = true
	}

	if len(nals) == 0 {
		return nil
	}
	frameType := byte(FrameTypeInterFrame)
	if isKey {
		frameType = FrameTypeKey
	}
	tag := MuxVideoFLVTag(frameType, m.videoCodec, AVCPacketNALU, 0, muxAVCNALUs(nals))
	m.queue.Push(Frame{Track: TrackVideo, DTS: msg.DTS, IsKey: isKey, Data: tag})
	return nil
}

// ingestHEVC is ingestAVC's H.265 counterpart: HEVC NAL headers are 2 bytes
// with nal_unit_type in bits 1-6 of the first byte, so classification and
// the VPS/SPS/PPS triple each need their own handling rather than reusing
// the H.264 path's single-byte, low-5-bits NAL classification.
func (m *Muxer) ingestHEVC(msg ps.TSMessage, nals [][]byte) error {
	isKey := false
	var changed bool
	for _, nal := range nals {
		switch t := ClassifyHEVCNAL(nal); t {
		case HEVCNALVPS:
			if !bytesEqual(m.vps, nal) {
				m.vps = append([]byte{}, nal...)
				changed = true
			}
		case HEVCNALSPS:
			if !bytesEqual(m.sps, nal) {
				m.sps = append([]byte{}, nal...)
				changed = true
			}
		case HEVCNALPPS:
			if !bytesEqual(m.pps, nal) {
				m.pps = append([]byte{}, nal...)
				changed = true
			}
		default:
			if isHEVCKeyFrame(t) {
				isKey = true
			}
		}
	}

	if (changed || !m.videoShSent) && len(m.vps) > 0 && len(m.sps) > 0 && len(m.pps) > 0 {
		sh := HEVCSequenceHeader(m.vps, m.sps, m.pps)
		tag := MuxVideoFLVTag(FrameTypeKey, m.videoCodec, AVCPacketSequenceHeader, 0, sh)
		m.queue.Push(Frame{Track: TrackVideo, DTS: msg.DTS, IsKey: true, Data: tag})
		m.videoShSent = true
	}

	if len(nals) == 0 {
		return nil
	}
	frameType := byte(FrameTypeInterFrame)
	if isKey {
		frameType = FrameTypeKey
	}
	tag := MuxVideoFLVTag(frameType, m.videoCodec, AVCPacketNALU, 0, muxAVCNALUs(nals))
	m.queue.Push(Frame{Track: TrackVideo, DTS: msg.DTS, IsKey: isKey, Data: tag})
	return nil
}

func (m *Muxer) ingestAAC(msg ps.TSMessage) error {
	buf := msg.Payload
	for len(buf) > 0 {
		frame, rest, err := DemuxADTS(buf)
		if err != nil {
			return fmt.Errorf("adts demux: %w", err)
		}
		buf = rest

		rate := flvSoundRate(frame.SamplingFreqIndex)
		if !m.audioShSent || frame.Object != m.audioObject || frame.SamplingFreqIndex != m.audioFreqIdx || frame.ChannelConfig != m.audioChans {
			m.audioObject, m.audioFreqIdx, m.audioChans = frame.Object, frame.SamplingFreqIndex, frame.ChannelConfig
			sh := AACSequenceHeader(frame.Object, frame.SamplingFreqIndex, frame.ChannelConfig)
			tag := MuxAudioFLVTag(SoundFormatAAC, rate, 1, 1, 0, sh)
			m.queue.Push(Frame{Track: TrackAudio, DTS: msg.DTS, Data: tag})
			m.audioShSent = true
		}

		tag := MuxAudioFLVTag(SoundFormatAAC, rate, 1, 1, 1, frame.Payload)
		m.queue.Push(Frame{Track: TrackAudio, DTS: msg.DTS, Data: tag})
	}
	return nil
}

// ingestRawAudio handles the non-AAC audio formats, which publish their PS
// payload through untouched: there's no ADTS-equivalent framing to strip
// and no sequence header to (re)send.
// rawAudioFreqIndex gives the ADTS-style sampling_frequency_index each
// non-AAC PS audio codec implies, since none of them frame a sampling rate
// field of their own the way ADTS does: GB28181 profiles run G.711A,
// Opus and Speex at a fixed 8kHz, and carry MP3 at the same rate in
// practice for this profile.
var rawAudioFreqIndex = map[ps.CodecID]int{
	ps.CodecMP3:   11, // 8000 Hz
	ps.CodecG711A: 11,
	ps.CodecOpus:  11,
	ps.CodecSpeex: 11,
}

func (m *Muxer) ingestRawAudio(msg ps.TSMessage) error {
	var format byte
	switch msg.Codec {
	case ps.CodecMP3:
		format = SoundFormatMP3
	case ps.CodecG711A:
		format = SoundFormatG711A
	case ps.CodecOpus:
		format = SoundFormatOpus
	case ps.CodecSpeex:
		format = SoundFormatSpeex
	}
	rate := flvSoundRate(rawAudioFreqIndex[msg.Codec])
	tag := MuxAudioFLVTag(format, rate, 1, 1, 0, msg.Payload)
	m.queue.Push(Frame{Track: TrackAudio, DTS: msg.DTS, Data: tag})
	return nil
}

func (m *Muxer) publish(f Frame) error {
	switch f.Track {
	case TrackVideo:
		return m.client.PublishVideo(uint32(f.DTS/90), f.Data) // PS clock is 90kHz; FLV timestamps are milliseconds
	case TrackAudio:
		return m.client.PublishAudio(uint32(f.DTS/90), f.Data)
	}
	return nil
}

// Reset clears sequence-header state after a reconnect, so the first
// frame on the new RTMP session always re-sends fresh AAC/AVC sequence
// headers regardless of whether the SPS/PPS content actually changed.
func (m *Muxer) Reset() {
	m.videoShSent = false
	m.audioShSent = false
	m.client.ResetSequenceHeaders()
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
