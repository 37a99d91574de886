package muxer

// Audio format codes for the FLV AudioTagHeader's SoundFormat field.
// AAC is the only format with a 2-byte AudioSpecificConfig sequence
// header; MP3/Opus/Speex publish straight into the raw-frame path.
const (
	SoundFormatMP3   byte = 2
	SoundFormatG711A byte = 7
	SoundFormatAAC   byte = 10
	SoundFormatSpeex byte = 11
	SoundFormatOpus  byte = 13
)

// aacSoundRate maps an ADTS sampling_frequency_index (ISO/IEC 13818-7
// Table 1.16) to the nearest FLV AudioTagHeader SoundRate code. FLV only
// has four buckets (5.5/11/22/44 kHz); true AAC sampling rates above
// 44.1kHz collapse into the 44kHz code since FLV has no higher bucket.
var aacSoundRate = [13]byte{
	3, // 0: 96000 Hz
	3, // 1: 88200 Hz
	3, // 2: 64000 Hz
	3, // 3: 48000 Hz
	3, // 4: 44100 Hz
	2, // 5: 32000 Hz
	2, // 6: 24000 Hz
	2, // 7: 22050 Hz
	1, // 8: 16000 Hz
	1, // 9: 12000 Hz
	1, // 10: 11025 Hz
	0, // 11: 8000 Hz
	0, // 12: 7350 Hz
}

// flvSoundRate returns the FLV SoundRate code for an ADTS
// sampling_frequency_index, defaulting to the 44kHz code for the
// reserved/explicit indices (13-15) ADTS never legally carries.
func flvSoundRate(freqIdx int) byte {
	if freqIdx >= 0 && freqIdx < len(aacSoundRate) {
		return aacSoundRate[freqIdx]
	}
	return 3
}

// AACSequenceHeader encodes a 2-byte AudioSpecificConfig: 5-bit object
// type, 4-bit sampling frequency index, 4-bit channel config, 3 zero bits
// (no SBR/PS extension, no frame-length-flag).
func AACSequenceHeader(object ObjectType, freqIdx, channelConfig int) []byte {
	v := uint16(object&0x1F)<<11 | uint16(freqIdx&0x0F)<<7 | uint16(channelConfig&0x0F)<<3
	return []byte{byte(v >> 8), byte(v)}
}

// MuxAudioFLVTag renders an FLV AudioTagHeader plus payload. format/rate/
// size/soundType pack into the single SoundFormat|SoundRate|SoundSize|
// SoundType header byte. packetType is only meaningful (and only emitted)
// for AAC, where it distinguishes a sequence header (0) from a raw frame
// (1); other formats carry no second header byte.
func MuxAudioFLVTag(format, rate, size, soundType, packetType byte, payload []byte) []byte {
	header := (format&0x0F)<<4 | (rate&0x03)<<2 | (size&0x01)<<1 | (soundType & 0x01)

	var out []byte
	if format == SoundFormatAAC {
		out = make([]byte, 0, 2+len(payload))
		out = append(out, header, packetType)
	} else {
		out = make([]byte, 0, 1+len(payload))
		out = append(out, header)
	}
	return append(out, payload...)
}

// Video codec IDs for the FLV VideoTagHeader's CodecID field.
const (
	VideoCodecAVC  byte = 7
	VideoCodecHEVC byte = 12 // enhanced-FLV convention this gateway follows for H.265
)

// FrameType values for the VideoTagHeader's high nibble.
const (
	FrameTypeKey       byte = 1
	FrameTypeInterFrame byte = 2
)

// AVCPacketType values.
const (
	AVCPacketSequenceHeader byte = 0
	AVCPacketNALU           byte = 1
)

// H264SequenceHeader encodes an AVCDecoderConfigurationRecord carrying
// exactly one SPS and one PPS, which is all a single GB28181 camera ever
// negotiates.
func H264SequenceHeader(sps, pps []byte) []byte {
	out := make([]byte, 0, 11+len(sps)+len(pps))
	out = append(out, 0x01) // configurationVersion
	if len(sps) >= 4 {
		out = append(out, sps[1], sps[2], sps[3]) // profile/compat/level, echoed from the SPS itself
	} else {
		out = append(out, 0, 0, 0)
	}
	out = append(out, 0xFF) // reserved(6) + lengthSizeMinusOne=3 -> 4-byte NAL length prefix
	out = append(out, 0xE1) // reserved(3) + numOfSequenceParameterSets=1
	out = append(out, byte(len(sps)>>8), byte(len(sps)))
	out = append(out, sps...)
	out = append(out, 0x01) // numOfPictureParameterSets
	out = append(out, byte(len(pps)>>8), byte(len(pps)))
	out = append(out, pps...)
	return out
}

// HEVCSequenceHeader encodes an HEVCDecoderConfigurationRecord (ISO/IEC
// 14496-15 8.3.3.1.1) carrying exactly one VPS, SPS and PPS, which is all a
// single GB28181 camera ever negotiates. profile_tier_level's general
// section happens to be byte-aligned within the SPS RBSP (1+4+6+1 bytes
// right after the vps_id/max_sub_layers/nesting byte), so its fields are
// echoed from the SPS directly rather than bit-parsed, matching
// H264SequenceHeader's equivalent shortcut.
func HEVCSequenceHeader(vps, sps, pps []byte) []byte {
	var profileSpaceTierIdc, levelIdc byte
	var compatFlags [4]byte
	var constraintFlags [6]byte
	if len(sps) >= 15 {
		profileSpaceTierIdc = sps[3]
		copy(compatFlags[:], sps[4:8])
		copy(constraintFlags[:], sps[8:14])
		levelIdc = sps[14]
	}

	out := make([]byte, 0, 23+len(vps)+len(sps)+len(pps))
	out = append(out, 0x01) // configurationVersion
	out = append(out, profileSpaceTierIdc)
	out = append(out, compatFlags[:]...)
	out = append(out, constraintFlags[:]...)
	out = append(out, levelIdc)
	out = append(out, 0xF0, 0x00) // reserved(4) + min_spatial_segmentation_idc(12)=0
	out = append(out, 0xFC)       // reserved(6) + parallelismType(2)=0 (unknown)
	out = append(out, 0xFD)       // reserved(6) + chromaFormat(2)=1 (4:2:0)
	out = append(out, 0xF8)       // reserved(5) + bitDepthLumaMinus8(3)=0
	out = append(out, 0xF8)       // reserved(5) + bitDepthChromaMinus8(3)=0
	out = append(out, 0x00, 0x00) // avgFrameRate=0 (unspecified)
	out = append(out, 0x0F)       // constantFrameRate=0, numTemporalLayers=1, temporalIdNested=1, lengthSizeMinusOne=3
	out = append(out, 0x03)       // numOfArrays: VPS, SPS, PPS

	appendArray := func(nalType byte, nal []byte) {
		out = append(out, 0x80|nalType) // array_completeness=1, reserved=0
		out = append(out, 0x00, 0x01)   // numNalus=1
		out = append(out, byte(len(nal)>>8), byte(len(nal)))
		out = append(out, nal...)
	}
	appendArray(32, vps)
	appendArray(33, sps)
	appendArray(34, pps)
	return out
}

// MuxVideoFLVTag renders an FLV VideoTagHeader plus an AVCPacketType byte,
// a 3-byte composition time, and payload (either an AVCDecoderConfigurationRecord
// sequence header or a run of 4-byte-length-prefixed NAL units).
func MuxVideoFLVTag(frameType, codecID, packetType byte, compositionTime int32, payload []byte) []byte {
	out := make([]byte, 0, 5+len(payload))
	out = append(out, (frameType&0x0F)<<4|(codecID&0x0F))
	out = append(out, packetType)
	out = append(out, byte(compositionTime>>16), byte(compositionTime>>8), byte(compositionTime))
	return append(out, payload...)
}

// muxAVCNALUs concatenates NAL units with 4-byte big-endian length
// prefixes, per the AVCPacketType=1 payload contract.
func muxAVCNALUs(nals [][]byte) []byte {
	var out []byte
	for _, nal := range nals {
		n := len(nal)
		out = append(out, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
		out = append(out, nal...)
	}
	return out
}
