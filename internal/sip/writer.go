package sip

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/ossrs/go-oryx-lib/errors"
	"github.com/pion/sdp/v3"
)

// Dialog carries the identifiers a SIP transaction keeps stable across an
// entire call: Call-ID, local tag and the running CSeq counter. The remote
// tag is not stored here; WriteAck and WriteBye take it from the caller.
// Via branch is per-request and handed out by NextBranch.
type Dialog struct {
	CallID   string
	LocalTag string
	CSeq     uint32
}

// NewDialog mints a fresh Call-ID and local tag for an outbound dialog.
func NewDialog() *Dialog {
	return &Dialog{CallID: randomToken(16), LocalTag: randomToken(8)}
}

// NextCSeq returns the next CSeq number to attach to an outbound request.
func (d *Dialog) NextCSeq() uint32 {
	d.CSeq++
	return d.CSeq
}

func randomToken(n int) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	buf := make([]byte, n)
	rand.Read(buf)
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out)
}

// NextBranch returns a fresh Via branch, always prefixed z9hG4bK per RFC 3261.
func NextBranch() string {
	return "z9hG4bK" + randomToken(10)
}

// RequestParams carries the addressing a transaction needs to render any
// outbound request line and header block.
type RequestParams struct {
	DeviceID   string // request-URI user / To user
	DeviceHost string // request-URI host / To host
	LocalHost  string // Via/From/Contact host (this gateway's candidate address)
	LocalPort  int
	LocalUser  string // the gateway's own SIP identity, used as From user
}

// WriteRegisterOK renders a 200 OK for a REGISTER, with the same Call-ID,
// CSeq, From/To and an Expires the gateway is willing to offer.
func WriteRegisterOK(req *Message, expires uint32) string {
	return writeResponse(req, 200, "OK", expires)
}

// WriteMessageOK renders a 200 OK for a MESSAGE (catalog/keepalive).
func WriteMessageOK(req *Message) string {
	return writeResponse(req, 200, "OK", 0)
}

// WriteByeOK renders a 200 OK for a BYE.
func WriteByeOK(req *Message) string {
	return writeResponse(req, 200, "OK", 0)
}

func writeResponse(req *Message, code int, reason string, expires uint32) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SIP/2.0 %d %s\r\n", code, reason)
	fmt.Fprintf(&b, "Via: SIP/2.0/%s %s:%d;branch=%s;rport\r\n", req.Via.Transport, req.Via.Host, req.Via.Port, req.Via.Branch)
	fmt.Fprintf(&b, "From: <sip:%s@%s>;tag=%s\r\n", req.From.User, req.From.Host, req.From.Tag)
	fmt.Fprintf(&b, "To: <sip:%s@%s>;tag=%s\r\n", req.To.User, req.To.Host, randomToken(8))
	fmt.Fprintf(&b, "Call-ID: %s\r\n", req.CallID)
	fmt.Fprintf(&b, "CSeq: %d %s\r\n", req.CSeq.Number, req.CSeq.Method)
	if expires > 0 {
		fmt.Fprintf(&b, "Expires: %d\r\n", expires)
	}
	b.WriteString("Content-Length: 0\r\n\r\n")
	return b.String()
}

// InviteParams describes the SDP offer an outbound INVITE carries.
type InviteParams struct {
	Candidate string // c=IN IP4 address
	MediaPort int    // m=video port
	SSRC      uint32
}

// WriteInvite renders an outbound INVITE with a GB28181 PS-over-RTP SDP
// offer: recvonly, passive TCP setup, and the y= SSRC extension line.
func WriteInvite(p RequestParams, d *Dialog, inv InviteParams) (string, error) {
	offer, err := buildSDPOffer(inv)
	if err != nil {
		return "", errors.Wrapf(err, "sip: build sdp offer")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INVITE sip:%s@%s SIP/2.0\r\n", p.DeviceID, p.DeviceHost)
	fmt.Fprintf(&b, "Via: SIP/2.0/TCP %s:%d;branch=%s;rport\r\n", p.LocalHost, p.LocalPort, NextBranch())
	fmt.Fprintf(&b, "From: <sip:%s@%s>;tag=%s\r\n", p.LocalUser, p.LocalHost, d.LocalTag)
	fmt.Fprintf(&b, "To: <sip:%s@%s>\r\n", p.DeviceID, p.DeviceHost)
	fmt.Fprintf(&b, "Call-ID: %s\r\n", d.CallID)
	fmt.Fprintf(&b, "CSeq: %d INVITE\r\n", d.NextCSeq())
	fmt.Fprintf(&b, "Contact: <sip:%s@%s:%d>\r\n", p.LocalUser, p.LocalHost, p.LocalPort)
	b.WriteString("Max-Forwards: 70\r\n")
	b.WriteString("User-Agent: gb28181-gateway\r\n")
	b.WriteString("Subject: " + fmt.Sprintf("%010d:0", inv.SSRC) + "\r\n")
	b.WriteString("Content-Type: application/sdp\r\n")
	fmt.Fprintf(&b, "Content-Length: %d\r\n\r\n", len(offer))
	b.WriteString(offer)
	return b.String(), nil
}

// buildSDPOffer renders the GB28181 PS-over-RTP SDP offer via pion/sdp/v3:
// one video media line, recvonly, passive TCP setup. The y= SSRC line is a
// GB28181 session-level extension with no RFC 4566 field to carry it in, so
// it is spliced into the marshalled output immediately before the m= line,
// matching where GB28181 devices expect to find it.
func buildSDPOffer(inv InviteParams) (string, error) {
	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "gb28181gw",
			SessionID:      0,
			SessionVersion: 0,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: inv.Candidate,
		},
		SessionName: sdp.SessionName("Play"),
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: inv.Candidate},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "video",
					Port:    sdp.RangedPort{Value: inv.MediaPort},
					Protos:  []string{"TCP", "RTP", "AVP"},
					Formats: []string{"96"},
				},
				Attributes: []sdp.Attribute{
					{Key: "rtpmap", Value: "96 PS/90000"},
					{Key: "recvonly"},
					{Key: "setup", Value: "passive"},
					{Key: "connection", Value: "new"},
				},
			},
		},
	}

	raw, err := desc.Marshal()
	if err != nil {
		return "", err
	}

	y := fmt.Sprintf("y=%010d\r\n", inv.SSRC)
	out := string(raw)
	if idx := strings.Index(out, "\r\nm="); idx >= 0 {
		return out[:idx+2] + y + out[idx+2:], nil
	}
	return out + y, nil
}

// WriteAck renders the ACK that follows a 200 OK to INVITE.
func WriteAck(p RequestParams, d *Dialog, okResp *Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ACK sip:%s@%s SIP/2.0\r\n", p.DeviceID, p.DeviceHost)
	fmt.Fprintf(&b, "Via: SIP/2.0/TCP %s:%d;branch=%s;rport\r\n", p.LocalHost, p.LocalPort, NextBranch())
	fmt.Fprintf(&b, "From: <sip:%s@%s>;tag=%s\r\n", p.LocalUser, p.LocalHost, d.LocalTag)
	fmt.Fprintf(&b, "To: <sip:%s@%s>;tag=%s\r\n", p.DeviceID, p.DeviceHost, okResp.To.Tag)
	fmt.Fprintf(&b, "Call-ID: %s\r\n", d.CallID)
	fmt.Fprintf(&b, "CSeq: %d ACK\r\n", okResp.CSeq.Number)
	b.WriteString("Max-Forwards: 70\r\n")
	b.WriteString("Content-Length: 0\r\n\r\n")
	return b.String()
}

// WriteBye renders an outbound BYE, used both for normal teardown and to
// force a re-INVITE (send BYE, wait for its 200, re-send INVITE).
func WriteBye(p RequestParams, d *Dialog, remoteTag string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "BYE sip:%s@%s SIP/2.0\r\n", p.DeviceID, p.DeviceHost)
	fmt.Fprintf(&b, "Via: SIP/2.0/TCP %s:%d;branch=%s;rport\r\n", p.LocalHost, p.LocalPort, NextBranch())
	fmt.Fprintf(&b, "From: <sip:%s@%s>;tag=%s\r\n", p.LocalUser, p.LocalHost, d.LocalTag)
	fmt.Fprintf(&b, "To: <sip:%s@%s>;tag=%s\r\n", p.DeviceID, p.DeviceHost, remoteTag)
	fmt.Fprintf(&b, "Call-ID: %s\r\n", d.CallID)
	fmt.Fprintf(&b, "CSeq: %d BYE\r\n", d.NextCSeq())
	b.WriteString("Max-Forwards: 70\r\n")
	b.WriteString("Content-Length: 0\r\n\r\n")
	return b.String()
}

// SynthesizeSSRC builds the 10-digit GB28181 SSRC this gateway advertises
// in an INVITE it originates: 1 domain-flag digit, 5 region digits, 4
// random tail digits.
func SynthesizeSSRC(domainFlag int, region string) (uint32, error) {
	if domainFlag < 0 || domainFlag > 9 {
		return 0, errors.Errorf("sip: domain flag must be a single digit, got %d", domainFlag)
	}
	if len(region) != 5 {
		return 0, errors.Errorf("sip: region must be exactly 5 digits, got %q", region)
	}
	tailBuf := make([]byte, 2)
	rand.Read(tailBuf)
	tail := (int(tailBuf[0])<<8 | int(tailBuf[1])) % 10000
	s := fmt.Sprintf("%d%s%04d", domainFlag, region, tail)
	var ssrc uint32
	if _, err := fmt.Sscanf(s, "%d", &ssrc); err != nil {
		return 0, errors.Wrapf(err, "sip: synthesize ssrc")
	}
	return ssrc, nil
}
