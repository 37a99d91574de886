// Package sip implements the GB28181 SIP message model (C3): a typed view
// over an already wire-parsed SIP message, plus the construction of the
// small set of outbound messages this gateway ever sends (REGISTER/MESSAGE
// responses, INVITE, ACK, BYE and its 200 OK). Wire tokenising itself is
// delegated to gosip's SIP-as-HTTP parser; everything this package adds is
// GB28181-specific: Subject-carried SSRC, device-id derivation, and the
// request/response predicates the transaction FSM drives off of.
package sip

import (
	"strconv"
	"strings"

	"github.com/ghettovoice/gosip/sip/parser"
	gosip "github.com/ghettovoice/gosip/sip"
	"github.com/ossrs/go-oryx-lib/errors"
	"github.com/sirupsen/logrus"

	"firestige.xyz/otus/internal/log"
)

// Method enumerates the request methods this gateway ever sees or sends.
type Method string

const (
	MethodRegister Method = "REGISTER"
	MethodMessage  Method = "MESSAGE"
	MethodInvite   Method = "INVITE"
	MethodAck      Method = "ACK"
	MethodBye      Method = "BYE"
)

// Parser tokenises raw SIP-as-HTTP bytes into Messages. One instance is
// shared by every SIP connection; gosip's parser is safe for concurrent use.
type Parser struct {
	delegate *parser.PacketParser
}

func NewParser() *Parser {
	entry, _ := log.L().GetEntry().(*logrus.Entry)
	if entry == nil {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Parser{delegate: parser.NewPacketParser(&loggerAdapter{entry: entry})}
}

// Parse decodes one complete SIP message (headers + body already framed by
// the caller via Content-Length) into the gateway's typed view.
func (p *Parser) Parse(raw []byte) (*Message, error) {
	gm, err := p.delegate.ParseMessage(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "sip: parse")
	}
	return fromGoSip(gm)
}

// Message is a value type: a typed, GB28181-flavoured view over a parsed
// SIP request or response.
type Message struct {
	IsRequest bool
	Method    Method // requests only
	ReqUser   string // request-URI user, requests only
	ReqHost   string // request-URI host, requests only

	StatusCode int    // responses only
	ReasonEcho string // original CSeq method a response answers, e.g. "INVITE"

	Via     Via
	From    Address
	To      Address
	CallID  string
	CSeq    CSeq
	Contact Contact

	Expires     uint32
	MaxForwards uint32
	Subject     string
	ContentType string
	Body        string

	raw string
}

func fromGoSip(gm gosip.Message) (*Message, error) {
	m := &Message{raw: gm.String()}

	headers := make(map[string]string, 16)
	for _, h := range gm.Headers() {
		headers[strings.ToLower(h.Name())] = h.Value()
	}

	if via, ok := ParseVia(headers["via"]); ok {
		m.Via = via
	}
	if from, ok := ParseAddress(headers["from"]); ok {
		m.From = from
	}
	if to, ok := ParseAddress(headers["to"]); ok {
		m.To = to
	}
	if cseq, ok := ParseCSeq(headers["cseq"]); ok {
		m.CSeq = cseq
	}
	if contact, ok := ParseContact(headers["contact"]); ok {
		m.Contact = contact
	}
	if cid, ok := gm.CallID(); ok {
		m.CallID = cid.Value()
	} else {
		m.CallID = headers["call-id"]
	}
	if v, err := strconv.ParseUint(headers["expires"], 10, 32); err == nil {
		m.Expires = uint32(v)
	}
	if v, err := strconv.ParseUint(headers["max-forwards"], 10, 32); err == nil {
		m.MaxForwards = uint32(v)
	}
	m.Subject = headers["subject"]
	m.ContentType = headers["content-type"]

	if req, ok := gm.(gosip.Request); ok {
		m.IsRequest = true
		m.Method = Method(strings.ToUpper(string(req.Method())))
		user, host := splitRequestURI(req.Recipient().String())
		m.ReqUser, m.ReqHost = user, host
		m.Body = req.Body()
	} else if res, ok := gm.(gosip.Response); ok {
		m.IsRequest = false
		m.StatusCode = int(res.StatusCode())
		m.ReasonEcho = m.CSeq.Method
		m.Body = res.Body()
	} else {
		return nil, errors.Errorf("sip: parsed message is neither request nor response")
	}
	return m, nil
}

func splitRequestURI(uri string) (user, host string) {
	uri = strings.TrimPrefix(uri, "sip:")
	uri = strings.TrimPrefix(uri, "sips:")
	at := strings.IndexByte(uri, '@')
	if at < 0 {
		return "", uri
	}
	user = uri[:at]
	host = uri[at+1:]
	if semi := strings.IndexByte(host, ';'); semi >= 0 {
		host = host[:semi]
	}
	return user, host
}

// DeviceID returns the GB28181 device id this message identifies itself
// with: the request-URI user for requests, the From-user for responses
// (which echo the request that was sent to that device).
func (m *Message) DeviceID() string {
	if m.IsRequest {
		return m.ReqUser
	}
	return m.From.User
}

// SSRCDomainID splits the Subject header's "<ssrc>:<domain-id>" value. The
// source material for this spec disagreed on ordering; this gateway follows
// GB/T 28181 §9.1's wire examples, which put the SSRC first.
func (m *Message) SSRCDomainID() (ssrc string, domain string, ok bool) {
	parts := strings.SplitN(m.Subject, ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// EscapedBody returns Body with embedded CRLFs collapsed to literal "\n"
// so a multi-line SDP body can be logged on one line.
func (m *Message) EscapedBody() string {
	s := strings.ReplaceAll(m.Body, "\r\n", "\\n")
	return strings.ReplaceAll(s, "\n", "\\n")
}

// Copy returns an independent deep copy, safe to retain past the lifetime
// of the buffer the original was parsed from.
func (m *Message) Copy() *Message {
	cp := *m
	return &cp
}

func (m *Message) IsRegister() bool { return m.IsRequest && m.Method == MethodRegister }
func (m *Message) IsMessage() bool  { return m.IsRequest && m.Method == MethodMessage }
func (m *Message) IsInvite() bool   { return m.IsRequest && m.Method == MethodInvite }
func (m *Message) IsBye() bool      { return m.IsRequest && m.Method == MethodBye }

func (m *Message) IsTrying() bool {
	return !m.IsRequest && m.StatusCode == 100 && m.ReasonEcho == string(MethodInvite)
}

func (m *Message) IsInviteOK() bool {
	return !m.IsRequest && m.StatusCode == 200 && m.ReasonEcho == string(MethodInvite)
}

func (m *Message) IsByeOK() bool {
	return !m.IsRequest && m.StatusCode == 200 && m.ReasonEcho == string(MethodBye)
}
