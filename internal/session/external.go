package session

import "firestige.xyz/otus/internal/sipconn"

// externalSIPSide satisfies SIPSide for a session the HTTP control API
// creates directly against an external SIP server: there is no real SIP
// transaction here, the external system is assumed to already have
// negotiated the stream, so the session should behave as if SIP were
// permanently Stable and ignore invite/reinvite triggers.
type externalSIPSide struct{}

// NewExternalSIPSide returns a SIPSide for sessions driven entirely by the
// HTTP control API rather than a GB28181 device registration.
func NewExternalSIPSide() SIPSide { return externalSIPSide{} }

func (externalSIPSide) State() sipconn.State { return sipconn.StateStable }

func (externalSIPSide) TriggerInvite(ssrc uint32, mediaPort int, candidate string) error {
	return nil
}

func (externalSIPSide) TriggerReinvite(remoteTag string) error { return nil }

func (externalSIPSide) ResetToRegister() {}
