package sipconn

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"firestige.xyz/otus/internal/sip"
)

func testParams() sip.RequestParams {
	return sip.RequestParams{
		DeviceID:   "34020000001320000001",
		DeviceHost: "192.168.1.100",
		LocalHost:  "192.168.1.1",
		LocalPort:  5060,
		LocalUser:  "34020000002000000001",
	}
}

func registerMessage() *sip.Message {
	return &sip.Message{
		IsRequest: true,
		Method:    sip.MethodRegister,
		ReqUser:   "34020000002000000001",
		ReqHost:   "192.168.1.1",
		Via:       sip.Via{Transport: "TCP", Host: "192.168.1.100", Port: 5060, Branch: "z9hG4bK1"},
		From:      sip.Address{User: "34020000001320000001", Host: "192.168.1.100", Tag: "abc"},
		To:        sip.Address{User: "34020000002000000001", Host: "192.168.1.1"},
		CallID:    "call-1",
		CSeq:      sip.CSeq{Number: 1, Method: "REGISTER"},
	}
}

func inviteOKMessage() *sip.Message {
	return &sip.Message{
		IsRequest:  false,
		StatusCode: 200,
		ReasonEcho: "INVITE",
		From:       sip.Address{User: "34020000001320000001", Host: "192.168.1.100"},
		To:         sip.Address{User: "34020000002000000001", Host: "192.168.1.1", Tag: "totag"},
		CSeq:       sip.CSeq{Number: 1, Method: "INVITE"},
	}
}

func byeOKMessage() *sip.Message {
	return &sip.Message{
		IsRequest:  false,
		StatusCode: 200,
		ReasonEcho: "BYE",
		From:       sip.Address{User: "34020000001320000001", Host: "192.168.1.100"},
		To:         sip.Address{User: "34020000002000000001", Host: "192.168.1.1"},
		CSeq:       sip.CSeq{Number: 2, Method: "BYE"},
	}
}

// newTestTransaction builds a Transaction wired to one end of a net.Pipe,
// with the other end available for the test to write inbound messages and
// read outbound ones.
func newTestTransaction(hooks Hooks) (*Transaction, net.Conn) {
	local, remote := net.Pipe()
	tr := NewTransaction(local, testParams(), hooks)
	return tr, remote
}

func TestTransactionRegisterMovesInitToRegistered(t *testing.T) {
	var mu sync.Mutex
	var transitions []State

	tr, remote := newTestTransaction(Hooks{
		OnStateChange: func(old, new State) {
			mu.Lock()
			transitions = append(transitions, new)
			mu.Unlock()
		},
	})
	defer remote.Close()

	if got := tr.State(); got != StateInit {
		t.Fatalf("initial state = %v, want Init", got)
	}

	msg := registerMessage()
	tr.transition(StateInit) // no-op, documents starting state
	if err := tr.driveState(msg); err != nil {
		t.Fatalf("driveState: %v", err)
	}

	if got := tr.State(); got != StateRegistered {
		t.Fatalf("state after REGISTER = %v, want Registered", got)
	}
}

func TestTransactionInviteLifecycleReachesStable(t *testing.T) {
	tr, remote := newTestTransaction(Hooks{})
	defer remote.Close()

	tr.transition(StateRegistered)
	if err := tr.TriggerInvite(1234567890, 30000, "192.168.1.1"); err != nil {
		t.Fatalf("TriggerInvite: %v", err)
	}
	if got := tr.State(); got != StateInviting {
		t.Fatalf("state after TriggerInvite = %v, want Inviting", got)
	}

	// No sender goroutine runs here, so the INVITE stays queued in sendCh;
	// this test only exercises driveState on the responses.
	if err := tr.driveState(inviteOKMessage()); err != nil {
		t.Fatalf("driveState(200 INVITE): %v", err)
	}
	if got := tr.State(); got != StateStable {
		t.Fatalf("state after 200 OK to INVITE = %v, want Stable", got)
	}
}

func TestTransactionByeFromPeerReachesBye(t *testing.T) {
	tr, remote := newTestTransaction(Hooks{})
	defer remote.Close()

	tr.transition(StateStable)
	byeMsg := &sip.Message{
		IsRequest: true,
		Method:    sip.MethodBye,
		Via:       sip.Via{Transport: "TCP", Host: "192.168.1.100", Port: 5060, Branch: "z9hG4bK2"},
		From:      sip.Address{User: "34020000001320000001", Host: "192.168.1.100", Tag: "abc"},
		To:        sip.Address{User: "34020000002000000001", Host: "192.168.1.1"},
		CallID:    "call-1",
		CSeq:      sip.CSeq{Number: 3, Method: "BYE"},
	}

	byeSeen := false
	tr.hooks.OnBye = func() { byeSeen = true }

	if err := tr.driveState(byeMsg); err != nil {
		t.Fatalf("driveState(BYE): %v", err)
	}
	if got := tr.State(); got != StateBye {
		t.Fatalf("state after BYE = %v, want Bye", got)
	}
	if !byeSeen {
		t.Fatalf("OnBye hook did not fire")
	}
}

func TestTransactionReinviteRoundTrip(t *testing.T) {
	tr, remote := newTestTransaction(Hooks{})
	defer remote.Close()

	tr.transition(StateStable)
	if err := tr.TriggerReinvite("peer-tag"); err != nil {
		t.Fatalf("TriggerReinvite: %v", err)
	}
	if got := tr.State(); got != StateReinviting {
		t.Fatalf("state after TriggerReinvite = %v, want Reinviting", got)
	}

	tr.lastSSRC, tr.lastMediaPort, tr.lastCandidate = 1234567890, 30000, "192.168.1.1"
	if err := tr.driveState(byeOKMessage()); err != nil {
		t.Fatalf("driveState(200 BYE): %v", err)
	}
	if got := tr.State(); got != StateInviting {
		t.Fatalf("state after 200 OK to BYE = %v, want Inviting (re-sent)", got)
	}
}

func TestTransactionResetToRegister(t *testing.T) {
	tr, remote := newTestTransaction(Hooks{})
	defer remote.Close()

	tr.transition(StateStable)
	tr.ResetToRegister()
	if got := tr.State(); got != StateRegistered {
		t.Fatalf("state after ResetToRegister = %v, want Registered", got)
	}
}

func TestTransactionRunFiresOnTransportLostAndReturnsOnRemoteClose(t *testing.T) {
	local, remote := net.Pipe()

	lostCh := make(chan struct{}, 1)
	tr := NewTransaction(local, testParams(), Hooks{
		OnTransportLost: func() { lostCh <- struct{}{} },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- tr.Run(ctx) }()

	remote.Close()

	select {
	case <-lostCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("OnTransportLost did not fire after remote close")
	}

	select {
	case <-runErrCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after remote close")
	}
}
