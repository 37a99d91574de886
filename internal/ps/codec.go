package ps

// CodecID identifies the elementary stream codec carried by one PES stream
// inside a PS pack. Values follow the ISO/IEC 13818-1 stream_type registry
// where one exists; the private-stream codes GB28181 encoders use for
// G.711/Opus/Speex are not standardised, so this gateway follows the
// assignment most GB28181 gateways (SRS among them) settled on.
type CodecID int

const (
	CodecUnknown CodecID = iota
	CodecH264
	CodecH265
	CodecAAC
	CodecMP3
	CodecG711A
	CodecOpus
	CodecSpeex
)

// classifyStreamType maps a Program Stream Map stream_type byte to a CodecID.
func classifyStreamType(streamType byte) CodecID {
	switch streamType {
	case 0x1B:
		return CodecH264
	case 0x24:
		return CodecH265
	case 0x0F, 0x1C:
		return CodecAAC
	case 0x03, 0x04:
		return CodecMP3
	case 0x90:
		return CodecG711A
	case 0x91:
		return CodecOpus
	case 0x92:
		return CodecSpeex
	default:
		return CodecUnknown
	}
}

func (c CodecID) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecH265:
		return "h265"
	case CodecAAC:
		return "aac"
	case CodecMP3:
		return "mp3"
	case CodecG711A:
		return "g711a"
	case CodecOpus:
		return "opus"
	case CodecSpeex:
		return "speex"
	default:
		return "unknown"
	}
}

// StreamKind distinguishes video from audio PES streams by their stream_id
// range (0xE0-0xEF video, 0xC0-0xDF / 0xBD audio).
type StreamKind int

const (
	KindUnknown StreamKind = iota
	KindVideo
	KindAudio
)

func classifyStreamID(streamID byte) StreamKind {
	switch {
	case streamID >= 0xE0 && streamID <= 0xEF:
		return KindVideo
	case (streamID >= 0xC0 && streamID <= 0xDF) || streamID == 0xBD:
		return KindAudio
	default:
		return KindUnknown
	}
}
