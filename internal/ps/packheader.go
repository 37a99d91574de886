package ps

import (
	"bytes"

	"github.com/ossrs/go-oryx-lib/errors"
	"github.com/yapingcat/gomedia/codec"
	"github.com/yapingcat/gomedia/mpeg2"
)

// consumePackHeader parses the fixed-size ISO/IEC 13818-1 pack_header (SCR,
// program_mux_rate, stuffing) via gomedia/mpeg2's PSPackHeader and returns
// the remainder of span following it.
func consumePackHeader(span []byte) ([]byte, error) {
	if len(span) < 14 || !bytes.HasPrefix(span, packStartCode) {
		return nil, errors.Errorf("ps: short or missing pack_header")
	}
	hdr := mpeg2.PSPackHeader{}
	if err := hdr.Decode(codec.NewBitStreamReader(span)); err != nil {
		return nil, errors.Wrapf(err, "ps: pack_header")
	}
	total := 14 + int(hdr.Pack_stuffing_length)
	if len(span) < total {
		return nil, errors.Errorf("ps: truncated pack_header stuffing")
	}
	return span[total:], nil
}

// skipSystemHeader consumes a system_header (00 00 01 BB) via gomedia/mpeg2's
// System_header. The gateway has no use for the P-STD bound fields it
// carries, only the framing, but decoding it still validates the bytes
// instead of blindly trusting header_length.
func skipSystemHeader(span []byte) (int, error) {
	if len(span) < 6 {
		return 0, errors.Errorf("ps: truncated system_header")
	}
	headerLen := int(span[4])<<8 | int(span[5])
	total := 6 + headerLen
	if len(span) < total {
		return 0, errors.Errorf("ps: truncated system_header body")
	}
	hdr := mpeg2.System_header{}
	if err := hdr.Decode(codec.NewBitStreamReader(span[:total])); err != nil {
		return 0, errors.Wrapf(err, "ps: system_header")
	}
	return total, nil
}

// parseProgramStreamMap decodes a program_stream_map (00 00 01 BC) via
// gomedia/mpeg2's Program_stream_map, returning the stream_id -> codec
// mapping it advertises and the number of bytes occupied.
func parseProgramStreamMap(span []byte) (map[byte]CodecID, int, error) {
	if len(span) < 6 {
		return nil, 0, errors.Errorf("ps: truncated program_stream_map")
	}
	psmLen := int(span[4])<<8 | int(span[5])
	total := 6 + psmLen
	if len(span) < total || psmLen < 2 {
		return nil, 0, errors.Errorf("ps: program_stream_map length out of range")
	}

	psm := mpeg2.Program_stream_map{}
	if err := psm.Decode(codec.NewBitStreamReader(span[:total])); err != nil {
		return nil, 0, errors.Wrapf(err, "ps: program_stream_map")
	}

	types := make(map[byte]CodecID, len(psm.Stream_map))
	for _, elem := range psm.Stream_map {
		types[elem.Elementary_stream_id] = classifyStreamType(elem.Stream_type)
	}
	return types, total, nil
}

// pesInfo is the decoded subset of a PES packet this gateway cares about.
type pesInfo struct {
	pts     uint64
	dts     uint64
	payload []byte
}

// parsePESPacket decodes one PES packet starting at span[0:4] == 00 00 01
// <stream_id> via gomedia/mpeg2's PesPacket, returning its timestamps,
// payload, and total byte length. padding_stream and private_stream_2
// (0xBE/0xBF) carry no optional PES header and are handled directly, since
// GB28181 encoders never use them for media and PesPacket's decode assumes
// the optional header is present.
func parsePESPacket(span []byte) (pesInfo, int, error) {
	if len(span) < 6 {
		return pesInfo{}, 0, errors.Errorf("ps: truncated pes header")
	}
	streamID := span[3]
	pesLen := int(span[4])<<8 | int(span[5])

	if streamID == 0xBE || streamID == 0xBF {
		total := 6 + pesLen
		if len(span) < total {
			return pesInfo{}, 0, errors.Errorf("ps: truncated padding/private stream")
		}
		return pesInfo{payload: span[6:total]}, total, nil
	}

	// A zero PES_packet_length is legal only on video streams and means
	// "payload runs to the end of the enclosing pack"; PesPacket.Decode
	// expects a bounded buffer, so bound it at the whole remaining span in
	// that case and trust the declared length otherwise.
	bound := len(span)
	if pesLen != 0 {
		bound = 6 + pesLen
		if len(span) < bound {
			return pesInfo{}, 0, errors.Errorf("ps: truncated pes packet")
		}
	}

	pes := mpeg2.PesPacket{}
	if err := pes.Decode(codec.NewBitStreamReader(span[:bound])); err != nil {
		return pesInfo{}, 0, errors.Wrapf(err, "ps: pes_packet stream_id=%#x", streamID)
	}

	total := bound
	if pesLen == 0 {
		total = len(span)
	}
	return pesInfo{pts: pes.Pts, dts: pes.Dts, payload: pes.Pes_payload}, total, nil
}
