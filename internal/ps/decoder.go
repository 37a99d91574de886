// Package ps implements the recoverable MPEG-2 Program Stream decoder (C1)
// and the per-connection pack reassembly context (C2). Surveillance
// encoders routinely emit truncated or garbled packs during channel
// switches; rather than tearing down the whole session, the decoder
// resynchronises on the next pack start code and keeps going.
//
// The pack_header / system_header / program_stream_map / PES_packet syntax
// elements themselves are decoded with github.com/yapingcat/gomedia/mpeg2;
// only the pack-boundary scanning and recovery-mode resync below are this
// gateway's own, since that framing resilience has no equivalent in a
// general-purpose PS demuxer.
package ps

import (
	"bytes"

	"github.com/ossrs/go-oryx-lib/errors"
)

// packStartCode is the ISO/IEC 13818-1 pack_header start code.
var packStartCode = []byte{0x00, 0x00, 0x01, 0xBA}

// TSMessage is one elementary-stream unit extracted from a PS pack: a
// complete PES payload plus its timestamps and stream classification.
type TSMessage struct {
	Kind    StreamKind
	Codec   CodecID
	StreamID byte
	PTS     uint64
	DTS     uint64
	Payload []byte
}

// Handler is the capability abstraction C1 drives; C2's PackContext is the
// production implementation, tests may supply a bare recorder.
type Handler interface {
	// OnPackHeader is called once per recognised pack_header, before any
	// of that pack's messages.
	OnPackHeader(reservedPrefixLen int)
	// OnMessage is called for every TS message decoded from the current
	// pack, in stream order.
	OnMessage(msg TSMessage) error
	// OnRecovery is called each time the decoder drops back into Recover
	// mode after a decode error.
	OnRecovery()
}

// Stats tracks the decoder's lifetime behaviour; Decoder.Stats returns a
// snapshot of it.
type Stats struct {
	Packs           int64
	RecoveredPacks  int64
	DroppedMessages int64
	ReservedBytes   int64
}

// Decoder is the Recoverable PS Decoder (C1). One instance is owned by
// each media connection; it is not safe for concurrent use.
type Decoder struct {
	recovering bool
	stats      Stats
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Stats() Stats { return d.stats }

// DecodeRTP consumes buf (the RTP-TCP payload, already stripped of
// reservedPrefixLen bytes of RTP header) and feeds every recognised TS
// message to handler. It never returns an error unless handler itself
// fails: malformed or truncated packs instead flip the decoder into
// Recover mode, which is retained across calls until a fresh pack_header
// is located.
func (d *Decoder) DecodeRTP(buf []byte, reservedPrefixLen int, handler Handler) error {
	d.stats.ReservedBytes += int64(reservedPrefixLen)
	cursor := 0

	for cursor < len(buf) {
		if d.recovering {
			idx := bytes.Index(buf[cursor:], packStartCode)
			if idx < 0 {
				// Stay in Recover mode; nothing more to find this call.
				return nil
			}
			cursor += idx
			d.recovering = false
			d.stats.RecoveredPacks++
		}

		// cursor now points at a pack start code (or we already returned).
		searchFrom := cursor + len(packStartCode)
		if searchFrom > len(buf) {
			searchFrom = len(buf)
		}
		nextRel := bytes.Index(buf[searchFrom:], packStartCode)
		var end int
		if nextRel < 0 {
			end = len(buf)
		} else {
			end = cursor + len(packStartCode) + nextRel
		}

		if err := d.decodeOnePack(buf[cursor:end], handler); err != nil {
			d.recovering = true
			handler.OnRecovery()
			d.stats.DroppedMessages++
		}
		cursor = end
	}
	return nil
}

// decodeOnePack parses a single pack-header-delimited span: the fixed-size
// pack_header, an optional system_header / program_stream_map, and a
// sequence of PES packets, handing each off to handler.
func (d *Decoder) decodeOnePack(span []byte, handler Handler) error {
	rest, err := consumePackHeader(span)
	if err != nil {
		return err
	}
	d.stats.Packs++
	handler.OnPackHeader(0)

	streamTypes := make(map[byte]CodecID)

	for len(rest) >= 4 {
		if !bytes.HasPrefix(rest, []byte{0x00, 0x00, 0x01}) {
			return errors.Errorf("ps: expected start code, found %x", rest[:min(4, len(rest))])
		}
		streamID := rest[3]

		switch streamID {
		case 0xBB: // system_header_start_code
			consumed, err := skipSystemHeader(rest)
			if err != nil {
				return err
			}
			rest = rest[consumed:]
		case 0xBC: // program_stream_map
			types, consumed, err := parseProgramStreamMap(rest)
			if err != nil {
				return err
			}
			for id, ct := range types {
				streamTypes[id] = ct
			}
			rest = rest[consumed:]
		default:
			pes, consumed, err := parsePESPacket(rest)
			if err != nil {
				return err
			}
			kind := classifyStreamID(streamID)
			codec := streamTypes[streamID]
			if codec == CodecUnknown {
				codec = guessCodecFromStreamID(streamID)
			}
			msg := TSMessage{
				Kind:     kind,
				Codec:    codec,
				StreamID: streamID,
				PTS:      pes.pts,
				DTS:      pes.dts,
				Payload:  pes.payload,
			}
			if err := handler.OnMessage(msg); err != nil {
				return err
			}
			rest = rest[consumed:]
		}
	}
	return nil
}

// guessCodecFromStreamID covers the common case of a pack with no
// preceding program_stream_map (the PSM is only resent periodically):
// GB28181 PS streams are near-universally H.264 video + G.711A/AAC audio.
func guessCodecFromStreamID(streamID byte) CodecID {
	if classifyStreamID(streamID) == KindVideo {
		return CodecH264
	}
	return CodecAAC
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
