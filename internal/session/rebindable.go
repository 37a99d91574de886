package session

import (
	"sync"

	"github.com/ossrs/go-oryx-lib/errors"

	"firestige.xyz/otus/internal/sipconn"
)

// RebindableSIPSide lets a session keep running across a SIP reconnect: a
// GB28181 device may drop and re-open its TCP connection at any time,
// which produces a brand new sipconn.Transaction, but bind_session
// re-attaches it to the same session rather than creating a second one.
// The session only ever talks to the RebindableSIPSide; Bind swaps the
// transport underneath it.
type RebindableSIPSide struct {
	mu      sync.Mutex
	current SIPSide
}

// NewRebindableSIPSide returns one with no transport bound yet.
func NewRebindableSIPSide() *RebindableSIPSide {
	return &RebindableSIPSide{}
}

// Bind replaces the transport this session drives against.
func (r *RebindableSIPSide) Bind(s SIPSide) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = s
}

func (r *RebindableSIPSide) snapshot() SIPSide {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *RebindableSIPSide) State() sipconn.State {
	if s := r.snapshot(); s != nil {
		return s.State()
	}
	return sipconn.StateInit
}

func (r *RebindableSIPSide) TriggerInvite(ssrc uint32, mediaPort int, candidate string) error {
	s := r.snapshot()
	if s == nil {
		return errors.Errorf("session: no sip transport bound yet")
	}
	return s.TriggerInvite(ssrc, mediaPort, candidate)
}

func (r *RebindableSIPSide) TriggerReinvite(remoteTag string) error {
	s := r.snapshot()
	if s == nil {
		return errors.Errorf("session: no sip transport bound yet")
	}
	return s.TriggerReinvite(remoteTag)
}

func (r *RebindableSIPSide) ResetToRegister() {
	if s := r.snapshot(); s != nil {
		s.ResetToRegister()
	}
}
