package sip

import (
	"strconv"
	"strings"
	"testing"
)

func TestSynthesizeSSRCShape(t *testing.T) {
	ssrc, err := SynthesizeSSRC(1, "34020")
	if err != nil {
		t.Fatalf("SynthesizeSSRC: %v", err)
	}
	s := strconv.FormatUint(uint64(ssrc), 10)
	if len(s) != 10 {
		t.Fatalf("expected a 10-digit ssrc, got %q", s)
	}
	if s[0] != '1' {
		t.Fatalf("expected leading digit to be the domain flag, got %q", s)
	}
	if s[1:6] != "34020" {
		t.Fatalf("expected digits 2-6 to be the region code, got %q", s[1:6])
	}
}

func TestSynthesizeSSRCRejectsBadRegion(t *testing.T) {
	if _, err := SynthesizeSSRC(1, "340"); err == nil {
		t.Fatal("expected error for a region shorter than 5 digits")
	}
}

func TestWriteInviteContainsRequiredSDPLines(t *testing.T) {
	d := NewDialog()
	body, err := WriteInvite(
		RequestParams{DeviceID: "34020000001110000001", DeviceHost: "192.168.1.2", LocalHost: "192.168.1.1", LocalPort: 5060, LocalUser: "34020000002000000001"},
		d,
		InviteParams{Candidate: "192.168.1.1", MediaPort: 9000, SSRC: 1000000001},
	)
	if err != nil {
		t.Fatalf("WriteInvite: %v", err)
	}
	for _, want := range []string{
		"INVITE sip:34020000001110000001@192.168.1.2 SIP/2.0",
		"m=video 9000 TCP/RTP/AVP 96",
		"a=rtpmap:96 PS/90000",
		"a=recvonly",
		"a=setup:passive",
		"y=1000000001",
		"Content-Type: application/sdp",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected INVITE to contain %q, got:\n%s", want, body)
		}
	}
}

func TestWriteRegisterOKEchoesDialogIdentifiers(t *testing.T) {
	req := &Message{
		Via:    Via{Transport: "TCP", Host: "192.168.1.2", Port: 5060, Branch: "z9hG4bK1"},
		From:   Address{User: "34020000001110000001", Host: "192.168.1.2", Tag: "t1"},
		To:     Address{User: "34020000002000000001", Host: "192.168.1.1"},
		CallID: "call-1",
		CSeq:   CSeq{Number: 1, Method: "REGISTER"},
	}
	resp := WriteRegisterOK(req, 3600)
	if !strings.HasPrefix(resp, "SIP/2.0 200 OK\r\n") {
		t.Fatalf("expected a 200 OK status line, got:\n%s", resp)
	}
	if !strings.Contains(resp, "Call-ID: call-1") {
		t.Fatal("expected the response to echo the request's Call-ID")
	}
	if !strings.Contains(resp, "CSeq: 1 REGISTER") {
		t.Fatal("expected the response to echo the request's CSeq")
	}
	if !strings.Contains(resp, "Expires: 3600") {
		t.Fatal("expected the offered expiry to be present")
	}
}
