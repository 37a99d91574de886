// Package muxer implements the RTMP Muxer (C7): Annex-B / ADTS elementary
// stream demuxing, FLV tag construction (video sequence headers, AVC NAL
// units, AAC sequence headers and raw frames, and the non-AAC audio
// formats), the DTS-reorder queue, and the RTMP publish client itself.
package muxer

import "fmt"

// startCodeLen reports the length of the Annex-B start code beginning at
// buf[0] (3 for 00 00 01, 4 for 00 00 00 01), or 0 if buf doesn't start
// with one.
func startCodeLen(buf []byte) int {
	if len(buf) >= 4 && buf[0] == 0 && buf[1] == 0 && buf[2] == 0 && buf[3] == 1 {
		return 4
	}
	if len(buf) >= 3 && buf[0] == 0 && buf[1] == 0 && buf[2] == 1 {
		return 3
	}
	return 0
}

// DemuxAnnexB splits an Annex-B byte stream into NAL unit frames. Every
// returned frame begins at the byte following a 00 00 01 or 00 00 00 01
// start code and ends just before the next start code (or the end of
// buf). A buffer containing no start code at all is an error: there is no
// way to anchor a frame boundary.
func DemuxAnnexB(buf []byte) ([][]byte, error) {
	var starts, lens []int
	for i := 0; i < len(buf); {
		if n := startCodeLen(buf[i:]); n > 0 {
			starts = append(starts, i+n)
			lens = append(lens, n)
			i += n
			continue
		}
		i++
	}
	if len(starts) == 0 {
		return nil, fmt.Errorf("muxer: annex-b input has no start code")
	}

	frames := make([][]byte, 0, len(starts))
	for idx, s := range starts {
		var end int
		if idx+1 < len(starts) {
			end = starts[idx+1] - lens[idx+1]
		} else {
			end = len(buf)
		}
		frames = append(frames, buf[s:end])
	}
	return frames, nil
}

// NALType classifies an H.264 NAL unit by its header byte's low 5 bits.
type NALType int

const (
	NALUnknown    NALType = 0
	NALNonIDR     NALType = 1
	NALIDR        NALType = 5
	NALSEI        NALType = 6
	NALSPS        NALType = 7
	NALPPS        NALType = 8
	NALAccessUnit NALType = 9
)

// ClassifyNAL returns the NAL type of a single Annex-B-stripped NAL unit.
func ClassifyNAL(nal []byte) NALType {
	if len(nal) == 0 {
		return NALUnknown
	}
	return NALType(nal[0] & 0x1F)
}
