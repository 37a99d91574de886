package muxer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// AMF0 markers, per the Action Message Format 0 spec used by RTMP command
// messages (connect/createStream/publish).
const (
	amf0MarkerNumber      byte = 0x00
	amf0MarkerBoolean     byte = 0x01
	amf0MarkerString      byte = 0x02
	amf0MarkerObject      byte = 0x03
	amf0MarkerNull        byte = 0x05
	amf0MarkerObjectEnd   byte = 0x09
)

type amf0Value interface{ encodeAMF0Value(*bytes.Buffer) error }

type amf0Array []amf0Value
type amf0Number float64
type amf0String string
type amf0Object map[string]amf0Value
type amf0Null struct{}

func (n amf0Number) encodeAMF0Value(buf *bytes.Buffer) error {
	buf.WriteByte(amf0MarkerNumber)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(float64(n)))
	buf.Write(b[:])
	return nil
}

func (s amf0String) encodeAMF0Value(buf *bytes.Buffer) error {
	buf.WriteByte(amf0MarkerString)
	return writeAMF0UTF8(buf, string(s))
}

func (amf0Null) encodeAMF0Value(buf *bytes.Buffer) error {
	buf.WriteByte(amf0MarkerNull)
	return nil
}

func (o amf0Object) encodeAMF0Value(buf *bytes.Buffer) error {
	buf.WriteByte(amf0MarkerObject)

	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic wire output; server-side order is insignificant

	for _, k := range keys {
		if err := writeAMF0UTF8NoMarker(buf, k); err != nil {
			return err
		}
		if err := o[k].encodeAMF0Value(buf); err != nil {
			return err
		}
	}
	if err := writeAMF0UTF8NoMarker(buf, ""); err != nil {
		return err
	}
	buf.WriteByte(amf0MarkerObjectEnd)
	return nil
}

func writeAMF0UTF8(buf *bytes.Buffer, s string) error {
	return writeAMF0UTF8NoMarker(buf, s)
}

func writeAMF0UTF8NoMarker(buf *bytes.Buffer, s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("muxer: amf0 string too long: %d bytes", len(s))
	}
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(s)))
	buf.Write(l[:])
	buf.WriteString(s)
	return nil
}

// encodeAMF0 serializes a sequence of AMF0 values back to back, which is
// how RTMP command message payloads are laid out.
func encodeAMF0(values amf0Array) ([]byte, error) {
	var buf bytes.Buffer
	for _, v := range values {
		if err := v.encodeAMF0Value(&buf); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
