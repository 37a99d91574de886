package sip

import "testing"

func TestMessagePredicates(t *testing.T) {
	reg := &Message{IsRequest: true, Method: MethodRegister}
	if !reg.IsRegister() || reg.IsInvite() {
		t.Fatal("expected only IsRegister to hold")
	}

	invOK := &Message{IsRequest: false, StatusCode: 200, ReasonEcho: "INVITE"}
	if !invOK.IsInviteOK() || invOK.IsByeOK() {
		t.Fatal("expected only IsInviteOK to hold")
	}

	trying := &Message{IsRequest: false, StatusCode: 100, ReasonEcho: "INVITE"}
	if !trying.IsTrying() {
		t.Fatal("expected IsTrying to hold for 100 Trying")
	}

	byeOK := &Message{IsRequest: false, StatusCode: 200, ReasonEcho: "BYE"}
	if !byeOK.IsByeOK() || byeOK.IsInviteOK() {
		t.Fatal("expected only IsByeOK to hold")
	}
}

func TestDeviceID(t *testing.T) {
	req := &Message{IsRequest: true, ReqUser: "34020000001110000001"}
	if req.DeviceID() != "34020000001110000001" {
		t.Fatalf("expected request device id from request-URI, got %q", req.DeviceID())
	}

	resp := &Message{IsRequest: false, From: Address{User: "34020000001110000001"}}
	if resp.DeviceID() != "34020000001110000001" {
		t.Fatalf("expected response device id from From header, got %q", resp.DeviceID())
	}
}

func TestSSRCDomainID(t *testing.T) {
	m := &Message{Subject: "0100000001:34020000"}
	ssrc, domain, ok := m.SSRCDomainID()
	if !ok || ssrc != "0100000001" || domain != "34020000" {
		t.Fatalf("unexpected ssrc/domain split: %q %q %v", ssrc, domain, ok)
	}

	m2 := &Message{Subject: "malformed"}
	if _, _, ok := m2.SSRCDomainID(); ok {
		t.Fatal("expected malformed subject to fail")
	}
}

func TestEscapedBody(t *testing.T) {
	m := &Message{Body: "v=0\r\ns=Play\r\n"}
	if got := m.EscapedBody(); got != "v=0\\ns=Play\\n" {
		t.Fatalf("unexpected escaped body: %q", got)
	}
}

func TestCopyIsIndependent(t *testing.T) {
	m := &Message{ReqUser: "a"}
	cp := m.Copy()
	cp.ReqUser = "b"
	if m.ReqUser != "a" {
		t.Fatal("expected original to be unaffected by mutating the copy")
	}
}
