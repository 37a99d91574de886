// Package media implements the Media Connection (C5): one goroutine per
// accepted media TCP socket, framing RFC 4571 RTP-over-TCP, extracting the
// SSRC to bind a session, and driving the PS decoder (C1/C2) for every
// packet thereafter.
package media

import (
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/ossrs/go-oryx-lib/errors"
	"github.com/pion/rtp"

	"firestige.xyz/otus/internal/log"
	"firestige.xyz/otus/internal/ps"
)

// Binder resolves the session a newly-seen SSRC belongs to. It returns the
// ps.BundleHandler that session wants pack bundles delivered to, or ok=false
// if no session claims this SSRC (yet).
type Binder func(ssrc uint32) (ps.BundleHandler, bool)

// Conn owns one media TCP connection end to end: framing, RTP header
// parsing, session binding, and PS decode. Not safe for concurrent use;
// Serve owns it for the connection's lifetime.
type Conn struct {
	nc                net.Conn
	idleTimeout       time.Duration
	maxUnboundPackets uint32
	bind              Binder

	decoder *ps.Decoder
	pack    *ps.PackContext

	bound         bool
	ssrc          uint32
	unboundCount  uint32
	rtcpCount     uint64
	framesHandled uint64
}

func NewConn(nc net.Conn, idleTimeout time.Duration, maxUnboundPackets uint32, bind Binder) *Conn {
	return &Conn{
		nc:                nc,
		idleTimeout:       idleTimeout,
		maxUnboundPackets: maxUnboundPackets,
		bind:              bind,
		decoder:           ps.NewDecoder(),
	}
}

// SSRC returns the bound SSRC, or 0 before binding completes.
func (c *Conn) SSRC() uint32 { return c.ssrc }

// Serve reads framed RTP packets until the connection errors, the handler
// fails, or too many packets arrive with no session willing to claim the
// SSRC.
func (c *Conn) Serve() error {
	defer func() {
		if c.pack != nil {
			c.pack.Flush()
		}
	}()

	for {
		if c.idleTimeout > 0 {
			c.nc.SetReadDeadline(time.Now().Add(c.idleTimeout))
		}
		payload, err := readFrame(c.nc)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrapf(err, "media: read frame")
		}
		if len(payload) < 12 {
			continue // too short to carry an RTP header; drop silently
		}

		var hdr rtp.Header
		n, err := hdr.Unmarshal(payload)
		if err != nil {
			continue // malformed RTP header; drop this packet only
		}

		if isRTCPPayloadType(hdr.PayloadType) {
			c.rtcpCount++
			continue
		}

		if !c.bound {
			bh, ok := c.bind(hdr.SSRC)
			if !ok {
				c.unboundCount++
				if c.unboundCount > c.maxUnboundPackets {
					return errors.Errorf("media: no session bound ssrc=%d after %d packets", hdr.SSRC, c.unboundCount)
				}
				continue
			}
			c.ssrc = hdr.SSRC
			c.pack = ps.NewPackContext(bh)
			c.bound = true
			log.L().WithSSRC(hdr.SSRC).Info("media: connection bound")
		}

		if hdr.SSRC != c.ssrc {
			// A reconnect mid-stream with a stale SSRC; ignore rather than
			// rebind, the session owns exactly one media transport.
			continue
		}

		if err := c.decoder.DecodeRTP(payload[n:], n, c.pack); err != nil {
			return errors.Wrapf(err, "media: pack handler")
		}
		c.framesHandled++
	}
}

// isRTCPPayloadType reports whether pt falls in the RFC 3550 RTCP
// compound-packet payload type range this gateway ever sees muxed onto
// the same media socket. RTCP packet types 200-204 share their byte with
// the RTP marker bit, so the 7-bit payload type parsed by rtp.Header
// sees them as 72-76.
func isRTCPPayloadType(pt uint8) bool {
	return pt >= 200&0x7F && pt <= 204&0x7F
}

// readFrame reads one RFC 4571 2-byte-length-prefixed RTP packet.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
