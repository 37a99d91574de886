package muxer

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

// Message types, per RTMP 4.1 Message Header.
const (
	msgTypeAudio        byte = 8
	msgTypeVideo        byte = 9
	msgTypeAMF0Command  byte = 20
	msgTypeAMF0Data     byte = 18
	msgTypeSetChunkSize byte = 1
	msgTypeWindowAckSize byte = 5
	msgTypeSetPeerBW    byte = 6
)

const (
	csidControl = 2
	csidCommand = 3
	csidAudio   = 4
	csidVideo   = 6
)

const defaultChunkSize = 128

// Client is a minimal RTMP publish client: simple handshake, connect/
// createStream/publish command sequence, and chunked audio/video message
// framing. It implements only what a GB28181-to-RTMP republish needs; it
// is not a general playback or ingest client.
type Client struct {
	nc         net.Conn
	url        string // dialed host:port, also used to build the connect tcUrl
	app        string
	streamName string
	chunkSize  int
	streamID   uint32

	shVideoSent bool
	shAudioSent bool
}

// NewClient dials addr (host:port) and performs the RTMP handshake,
// connect, createStream and publish command sequence against app/stream.
func NewClient(addr, app, streamName string) (*Client, error) {
	nc, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("muxer: rtmp dial %s: %w", addr, err)
	}
	c := &Client{nc: nc, url: addr, app: app, streamName: streamName, chunkSize: defaultChunkSize}
	if err := c.handshake(); err != nil {
		nc.Close()
		return nil, err
	}
	if err := c.connect(); err != nil {
		nc.Close()
		return nil, err
	}
	if err := c.createStream(); err != nil {
		nc.Close()
		return nil, err
	}
	if err := c.publish(); err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

// Close tears down the underlying TCP connection.
func (c *Client) Close() error { return c.nc.Close() }

// ResetSequenceHeaders clears the sent-once flags on the video and audio
// sequence headers. Call this after a reconnect: the new RTMP session
// knows nothing of the prior one's decoder configuration.
func (c *Client) ResetSequenceHeaders() {
	c.shVideoSent = false
	c.shAudioSent = false
}

// handshake performs the RTMP simple (non-encrypted) handshake: C0+C1,
// S0+S1+S2, C2. We don't validate the server's echoed random payload; it
// exists only to foil complex-handshake fingerprinting, which this
// gateway's publish targets never require.
func (c *Client) handshake() error {
	c1 := make([]byte, 1536)
	rand.Read(c1)
	binary.BigEndian.PutUint32(c1[0:4], 0) // time
	binary.BigEndian.PutUint32(c1[4:8], 0) // zero

	c0c1 := append([]byte{0x03}, c1...)
	if _, err := c.nc.Write(c0c1); err != nil {
		return fmt.Errorf("muxer: rtmp handshake write c0c1: %w", err)
	}

	s0s1s2 := make([]byte, 1+1536+1536)
	if _, err := io.ReadFull(c.nc, s0s1s2); err != nil {
		return fmt.Errorf("muxer: rtmp handshake read s0s1s2: %w", err)
	}
	if s0s1s2[0] != 0x03 {
		return fmt.Errorf("muxer: rtmp handshake: unexpected version byte %#x", s0s1s2[0])
	}
	s1 := s0s1s2[1:1537]

	c2 := append([]byte{}, s1...)
	if _, err := c.nc.Write(c2); err != nil {
		return fmt.Errorf("muxer: rtmp handshake write c2: %w", err)
	}
	return nil
}

func (c *Client) connect() error {
	cmd := amf0Array{
		amf0String("connect"),
		amf0Number(1),
		amf0Object{
			"app":      amf0String(c.app),
			"type":     amf0String("nonprivate"),
			"flashVer": amf0String("FMLE/3.0"),
			"tcUrl":    amf0String(fmt.Sprintf("rtmp://%s/%s", c.url, c.app)),
		},
	}
	return c.sendCommand(csidCommand, 0, cmd)
}

func (c *Client) createStream() error {
	cmd := amf0Array{amf0String("createStream"), amf0Number(2), amf0Null{}}
	if err := c.sendCommand(csidCommand, 0, cmd); err != nil {
		return err
	}
	c.streamID = 1
	return nil
}

func (c *Client) publish() error {
	cmd := amf0Array{
		amf0String("publish"),
		amf0Number(3),
		amf0Null{},
		amf0String(c.streamName),
		amf0String("live"),
	}
	return c.sendCommand(csidCommand, c.streamID, cmd)
}

func (c *Client) sendCommand(csid int, streamID uint32, values amf0Array) error {
	payload, err := encodeAMF0(values)
	if err != nil {
		return fmt.Errorf("muxer: rtmp encode command: %w", err)
	}
	return c.sendMessage(csid, msgTypeAMF0Command, streamID, 0, payload)
}

// PublishVideo sends one FLV-framed video tag (sans the FLV TagType/
// DataSize/Timestamp envelope, which RTMP's own chunk header supplies).
func (c *Client) PublishVideo(dts uint32, payload []byte) error {
	return c.sendMessage(csidVideo, msgTypeVideo, c.streamID, dts, payload)
}

// PublishAudio sends one FLV-framed audio tag.
func (c *Client) PublishAudio(dts uint32, payload []byte) error {
	return c.sendMessage(csidAudio, msgTypeAudio, c.streamID, dts, payload)
}

// sendMessage chunk-splits payload per the negotiated chunk size, writing
// a type-0 basic+message header for the first chunk and type-3
// (header-less, same cid) chunks for the remainder.
func (c *Client) sendMessage(csid int, msgType byte, streamID, timestamp uint32, payload []byte) error {
	var buf bytes.Buffer

	writeBasicHeader(&buf, 0, csid)
	var hdr [11]byte
	putUint24(hdr[0:3], timestamp)
	putUint24(hdr[3:6], uint32(len(payload)))
	hdr[6] = msgType
	binary.LittleEndian.PutUint32(hdr[7:11], streamID)
	buf.Write(hdr[:])

	for len(payload) > 0 {
		n := c.chunkSize
		if n > len(payload) {
			n = len(payload)
		}
		buf.Write(payload[:n])
		payload = payload[n:]
		if len(payload) > 0 {
			writeBasicHeader(&buf, 3, csid)
		}
	}

	_, err := c.nc.Write(buf.Bytes())
	if err != nil {
		return fmt.Errorf("muxer: rtmp send message type=%d: %w", msgType, err)
	}
	return nil
}

// writeBasicHeader writes the 1-byte chunk basic header (fmt in bits 7-6,
// cid in bits 5-0) for csid < 64, which covers every fixed chunk stream id
// this client uses.
func writeBasicHeader(buf *bytes.Buffer, fmtByte byte, csid int) {
	buf.WriteByte(fmtByte<<6 | byte(csid&0x3F))
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}
