package sip

import (
	"regexp"
	"strconv"
)

// Address is the decoded form of a SIP name-addr header value, e.g.
// `<sip:34020000001110000001@3402000000:5060>;tag=abc123`.
type Address struct {
	User string
	Host string
	Port int
	Tag  string
}

var addressRe = regexp.MustCompile(`sip:([^@>]+)@([^>:;]+)(?::(\d+))?`)
var tagRe = regexp.MustCompile(`;tag=([^;]+)`)

// ParseAddress extracts user/host/port/tag from a From/To header value.
// Mirrors the address grammar GB28181 peers actually send: a bare
// `sip:user@host[:port]` optionally wrapped in `<...>` with a trailing
// `;tag=`.
func ParseAddress(raw string) (Address, bool) {
	m := addressRe.FindStringSubmatch(raw)
	if m == nil {
		return Address{}, false
	}
	addr := Address{User: m[1], Host: m[2]}
	if m[3] != "" {
		if p, err := strconv.Atoi(m[3]); err == nil {
			addr.Port = p
		}
	}
	if tm := tagRe.FindStringSubmatch(raw); tm != nil {
		addr.Tag = tm[1]
	}
	return addr, true
}

// Via is the decoded form of a Via header value, e.g.
// `SIP/2.0/TCP 192.168.1.1:5060;branch=z9hG4bK1234;rport`.
type Via struct {
	Transport string
	Host      string
	Port      int
	Branch    string
	RPort     bool
}

var viaRe = regexp.MustCompile(`SIP/2\.0/(\w+)\s+([^:;]+)(?::(\d+))?`)
var branchRe = regexp.MustCompile(`branch=([^;]+)`)

func ParseVia(raw string) (Via, bool) {
	m := viaRe.FindStringSubmatch(raw)
	if m == nil {
		return Via{}, false
	}
	via := Via{Transport: m[1], Host: m[2]}
	if m[3] != "" {
		if p, err := strconv.Atoi(m[3]); err == nil {
			via.Port = p
		}
	}
	if bm := branchRe.FindStringSubmatch(raw); bm != nil {
		via.Branch = bm[1]
	}
	via.RPort = regexp.MustCompile(`[;\s]rport\b`).MatchString(raw)
	return via, true
}

// CSeq is the decoded form of a CSeq header value, e.g. `123 INVITE`.
type CSeq struct {
	Number uint32
	Method string
}

var cseqRe = regexp.MustCompile(`^(\d+)\s+(\S+)`)

func ParseCSeq(raw string) (CSeq, bool) {
	m := cseqRe.FindStringSubmatch(raw)
	if m == nil {
		return CSeq{}, false
	}
	n, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return CSeq{}, false
	}
	return CSeq{Number: uint32(n), Method: m[2]}, true
}

// Contact is the decoded form of a Contact header value.
type Contact struct {
	User string
	Host string
	Port int
}

func ParseContact(raw string) (Contact, bool) {
	addr, ok := ParseAddress(raw)
	if !ok {
		return Contact{}, false
	}
	return Contact{User: addr.User, Host: addr.Host, Port: addr.Port}, true
}
