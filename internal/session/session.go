// Package session implements the Session Coordinator (C6): one instance
// per device, binding its SIP transaction and media connection by SSRC,
// driving the Init/Connecting/Established state machine on a periodic
// tick, and owning the RTMP muxer the media connection's pack bundles
// are forwarded to.
package session

import (
	"context"
	"sync"
	"time"

	"firestige.xyz/otus/internal/log"
	"firestige.xyz/otus/internal/muxer"
	"firestige.xyz/otus/internal/ps"
	"firestige.xyz/otus/internal/sip"
	"firestige.xyz/otus/internal/sipconn"
)

// State is the session's position in the Init/Connecting/Established
// coordinator state machine.
type State int

const (
	StateInit State = iota
	StateConnecting
	StateEstablished
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnecting:
		return "connecting"
	case StateEstablished:
		return "established"
	default:
		return "unknown"
	}
}

// SIPSide is the subset of sipconn.Transaction the session drives. An
// external-SIP-server-mode session (created by the HTTP control API, with
// no real SIP transaction behind it) satisfies this with a stub that is
// always Stable and treats the invite/reinvite triggers as no-ops.
type SIPSide interface {
	State() sipconn.State
	TriggerInvite(ssrc uint32, mediaPort int, candidate string) error
	TriggerReinvite(remoteTag string) error
	ResetToRegister()
}

// Config carries the per-device parameters a session's driver consults.
type Config struct {
	DeviceID   string
	Candidate  string // resolved SDP candidate address, "*" already expanded by the caller
	MediaPort  int
	DomainFlag int
	Region     string

	ConnectingTimeout          time.Duration
	ConnectingTimeoutThreshold int
	ReinviteWait               time.Duration
	DriveInterval              time.Duration
}

// DefaultConfig fills in reasonable timing knobs for a session that has
// no config file entry of its own, such as one created directly by the
// HTTP control API.
func DefaultConfig(deviceID, candidate string, mediaPort int) Config {
	return Config{
		DeviceID:                   deviceID,
		Candidate:                  candidate,
		MediaPort:                  mediaPort,
		DomainFlag:                 1,
		Region:                     "34020",
		ConnectingTimeout:          15 * time.Second,
		ConnectingTimeoutThreshold: 3,
		ReinviteWait:               5 * time.Second,
		DriveInterval:              time.Second,
	}
}

// Session is safe for concurrent use: the driver goroutine and the media
// connection's OnMediaConnected/OnMediaDisconnected calls take mu.
// OnPackBundle does not take mu; it drives the muxer directly from the
// media connection's goroutine.
type Session struct {
	cfg   Config
	sip   SIPSide
	muxer *muxer.Muxer

	onDispose func(reason string)
	onTouch   func()

	mu              sync.Mutex
	state           State
	ssrc            uint32
	connectingStart time.Time
	nnTimeout       int
	mediaConnected  bool
	mediaLostAt     time.Time
	disposed        bool
}

// New builds a session in Init, not yet driven. Call Run to start its
// periodic driver.
func New(cfg Config, sipSide SIPSide, client muxer.Publisher, onDispose func(reason string)) *Session {
	return &Session{
		cfg:       cfg,
		sip:       sipSide,
		muxer:     muxer.NewMuxer(client),
		onDispose: onDispose,
	}
}

// SetTouch registers a callback invoked on every live driver tick, letting
// the caller keep an external idle-eviction registry (resource.Manager)
// from expiring a session this driver is still actively running.
func (s *Session) SetTouch(touch func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTouch = touch
}

func (s *Session) DeviceID() string { return s.cfg.DeviceID }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SSRC() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ssrc
}

// SetExpectedSSRC records the SSRC an out-of-band control plane (the HTTP
// publish API) has already assigned, so the media connection can bind
// without waiting for this session to originate its own INVITE.
func (s *Session) SetExpectedSSRC(ssrc uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ssrc = ssrc
}

// OnPackBundle implements ps.BundleHandler. The media connection calls
// this strictly in pack-arrival order, which is the only ordering
// guarantee the muxer needs.
func (s *Session) OnPackBundle(b ps.Bundle) {
	s.muxer.OnPackBundle(b)
}

// OnMediaConnected marks media as live, called once the media connection
// has bound this session's SSRC.
func (s *Session) OnMediaConnected(ssrc uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mediaConnected = true
	s.ssrc = ssrc
	s.mediaLostAt = time.Time{}
	log.L().WithSSRC(ssrc).WithField("device", s.cfg.DeviceID).Info("session: media connected")
}

// OnMediaDisconnected marks media as lost. The muxer is reset so the next
// media connection (even with a fresh SSRC after a re-INVITE) re-emits
// sequence headers.
func (s *Session) OnMediaDisconnected() {
	s.mu.Lock()
	s.mediaConnected = false
	s.mediaLostAt = time.Now()
	s.mu.Unlock()
	s.muxer.Reset()
	log.L().WithField("device", s.cfg.DeviceID).Warn("session: media disconnected")
}

// Run starts the periodic driver; it returns when ctx is cancelled or the
// session disposes itself.
func (s *Session) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.DriveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if s.driveState(now) {
				return
			}
		}
	}
}

// driveState runs one periodic state-machine tick, returning true once
// the session has disposed itself.
func (s *Session) driveState(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return true
	}
	if s.onTouch != nil {
		s.onTouch()
	}

	sipState := s.sip.State()

	switch s.state {
	case StateInit:
		if sipState == sipconn.StateRegistered {
			s.state = StateConnecting
			s.connectingStart = now
			s.nnTimeout = 0
			if !s.mediaConnected {
				s.triggerInviteLocked()
			}
		}

	case StateConnecting:
		if sipState == sipconn.StateStable && s.mediaConnected {
			s.state = StateEstablished
			s.nnTimeout = 0
			break
		}
		// SIP back in Registered (ResetToRegister after media loss): re-INVITE.
		if sipState == sipconn.StateRegistered && !s.mediaConnected {
			s.triggerInviteLocked()
		}
		if now.Sub(s.connectingStart) > s.cfg.ConnectingTimeout {
			s.nnTimeout++
			s.connectingStart = now
			if s.nnTimeout > s.cfg.ConnectingTimeoutThreshold {
				s.disposeLocked("connecting timeout exceeded")
				return true
			}
		}

	case StateEstablished:
		if sipState == sipconn.StateBye {
			s.disposeLocked("sip bye")
			return true
		}
		if !s.mediaConnected {
			s.state = StateConnecting
			s.connectingStart = now
			s.nnTimeout = 0
		}
	}

	// Reinvite flow: independent of the state above, fires whenever media
	// has been missing past reinvite_wait while SIP is otherwise healthy.
	if !s.mediaConnected && sipState == sipconn.StateStable && !s.mediaLostAt.IsZero() {
		if now.Sub(s.mediaLostAt) > s.cfg.ReinviteWait {
			s.sip.ResetToRegister()
			s.mediaLostAt = time.Time{}
		}
	}

	return false
}

func (s *Session) triggerInviteLocked() {
	ssrc := s.ssrc
	if ssrc == 0 {
		synthesized, err := sip.SynthesizeSSRC(s.cfg.DomainFlag, s.cfg.Region)
		if err != nil {
			log.L().WithError(err).WithField("device", s.cfg.DeviceID).Warn("session: ssrc synthesis failed")
			return
		}
		ssrc = synthesized
		s.ssrc = ssrc
	}
	if err := s.sip.TriggerInvite(ssrc, s.cfg.MediaPort, s.cfg.Candidate); err != nil {
		log.L().WithError(err).WithField("device", s.cfg.DeviceID).Warn("session: invite trigger failed")
	}
}

func (s *Session) disposeLocked(reason string) {
	if s.disposed {
		return
	}
	s.disposed = true
	log.L().WithField("device", s.cfg.DeviceID).WithField("reason", reason).Info("session: disposed")
	if s.onDispose != nil {
		s.onDispose(reason)
	}
}

// Dispose forces teardown from outside the driver loop, e.g. an admin
// shutdown request.
func (s *Session) Dispose(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposeLocked(reason)
}
