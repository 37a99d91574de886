package session

import (
	"testing"
	"time"

	"firestige.xyz/otus/internal/sipconn"
)

type fakeSIP struct {
	state         sipconn.State
	inviteCalls   int
	reinviteCalls int
	resetCalls    int
}

func (f *fakeSIP) State() sipconn.State { return f.state }
func (f *fakeSIP) TriggerInvite(ssrc uint32, mediaPort int, candidate string) error {
	f.inviteCalls++
	return nil
}
func (f *fakeSIP) TriggerReinvite(remoteTag string) error {
	f.reinviteCalls++
	return nil
}
func (f *fakeSIP) ResetToRegister() {
	f.resetCalls++
	f.state = sipconn.StateRegistered
}

type fakePublisher struct{}

func (fakePublisher) PublishVideo(dts uint32, payload []byte) error { return nil }
func (fakePublisher) PublishAudio(dts uint32, payload []byte) error { return nil }
func (fakePublisher) ResetSequenceHeaders()                         {}

func testConfig() Config {
	cfg := DefaultConfig("34020000001110000001", "192.168.1.1", 30000)
	cfg.ConnectingTimeout = 10 * time.Millisecond
	cfg.ConnectingTimeoutThreshold = 2
	cfg.ReinviteWait = 10 * time.Millisecond
	return cfg
}

func TestSessionInitToConnectingTriggersInvite(t *testing.T) {
	sip := &fakeSIP{state: sipconn.StateRegistered}
	disposed := false
	s := New(testConfig(), sip, fakePublisher{}, func(string) { disposed = true })

	if done := s.driveState(time.Now()); done {
		t.Fatalf("session disposed unexpectedly")
	}
	if s.State() != StateConnecting {
		t.Fatalf("state = %v, want Connecting", s.State())
	}
	if sip.inviteCalls != 1 {
		t.Fatalf("invite calls = %d, want 1", sip.inviteCalls)
	}
	if disposed {
		t.Fatalf("should not dispose")
	}
}

func TestSessionConnectingToEstablishedRequiresStableAndMedia(t *testing.T) {
	sip := &fakeSIP{state: sipconn.StateRegistered}
	s := New(testConfig(), sip, fakePublisher{}, nil)

	now := time.Now()
	s.driveState(now) // Init -> Connecting

	sip.state = sipconn.StateStable
	s.driveState(now.Add(time.Millisecond))
	if s.State() != StateConnecting {
		t.Fatalf("state = %v, want still Connecting (no media yet)", s.State())
	}

	s.OnMediaConnected(123456789)
	s.driveState(now.Add(2 * time.Millisecond))
	if s.State() != StateEstablished {
		t.Fatalf("state = %v, want Established", s.State())
	}
}

func TestSessionConnectingTimeoutDisposesAfterThreshold(t *testing.T) {
	sip := &fakeSIP{state: sipconn.StateRegistered}
	var disposedReason string
	s := New(testConfig(), sip, fakePublisher{}, func(reason string) { disposedReason = reason })

	now := time.Now()
	s.driveState(now) // Init -> Connecting, connectingStart = now

	// Each subsequent tick past ConnectingTimeout (10ms) bumps nnTimeout.
	// Threshold is 2, so the 3rd such tick disposes.
	for i := 1; i <= 3; i++ {
		now = now.Add(20 * time.Millisecond)
		done := s.driveState(now)
		if i < 3 && done {
			t.Fatalf("disposed too early on tick %d", i)
		}
		if i == 3 && !done {
			t.Fatalf("expected dispose on tick %d", i)
		}
	}
	if disposedReason == "" {
		t.Fatalf("onDispose hook did not fire")
	}
}

func TestSessionEstablishedToByeDisposes(t *testing.T) {
	sip := &fakeSIP{state: sipconn.StateStable}
	disposed := false
	s := New(testConfig(), sip, fakePublisher{}, func(string) { disposed = true })

	now := time.Now()
	s.state = StateEstablished
	s.OnMediaConnected(1)

	sip.state = sipconn.StateBye
	if done := s.driveState(now); !done {
		t.Fatalf("expected dispose on BYE")
	}
	if !disposed {
		t.Fatalf("onDispose hook did not fire")
	}
}

func TestSessionEstablishedMediaLossReturnsToConnectingAndReinvites(t *testing.T) {
	sip := &fakeSIP{state: sipconn.StateStable}
	s := New(testConfig(), sip, fakePublisher{}, nil)
	s.state = StateEstablished
	s.OnMediaConnected(1)

	now := time.Now()
	s.OnMediaDisconnected()
	s.driveState(now)
	if s.State() != StateConnecting {
		t.Fatalf("state = %v, want Connecting after media loss", s.State())
	}

	// Past reinvite_wait (10ms), ResetToRegister should fire.
	s.driveState(now.Add(20 * time.Millisecond))
	if sip.resetCalls != 1 {
		t.Fatalf("resetCalls = %d, want 1", sip.resetCalls)
	}
}

func TestSessionDisposeIsIdempotent(t *testing.T) {
	sip := &fakeSIP{state: sipconn.StateRegistered}
	count := 0
	s := New(testConfig(), sip, fakePublisher{}, func(string) { count++ })

	s.Dispose("manual")
	s.Dispose("manual again")
	if count != 1 {
		t.Fatalf("onDispose called %d times, want 1", count)
	}
}
