// Package sipconn implements the SIP Transaction FSM (C4): one instance
// per SIP TCP connection, driving the Receiver/Sender subtask split and
// the Init/Registered/Inviting/Trying/Reinviting/Stable/Bye state table.
package sipconn

import (
	"bufio"
	"context"
	"net"
	"sync"

	"github.com/ossrs/go-oryx-lib/errors"

	"firestige.xyz/otus/internal/log"
	"firestige.xyz/otus/internal/sip"
)

// State is the SIP transaction's current position in the table driven by
// driveState.
type State int

const (
	StateInit State = iota
	StateRegistered
	StateInviting
	StateTrying
	StateReinviting
	StateStable
	StateBye
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRegistered:
		return "registered"
	case StateInviting:
		return "inviting"
	case StateTrying:
		return "trying"
	case StateReinviting:
		return "reinviting"
	case StateStable:
		return "stable"
	case StateBye:
		return "bye"
	default:
		return "unknown"
	}
}

// Hooks lets the owning session observe transitions without sipconn
// importing the session package (which would own the Transaction instead).
type Hooks struct {
	// BindSession resolves the device-id this transport speaks for. ok=true
	// with attached=true means an existing session already claims this
	// device (a reconnect); attached=false means a new session was created
	// and this is the first transport it has ever seen.
	BindSession func(deviceID string) (attached bool, ok bool)
	OnStateChange func(old, new State)
	OnInviteOK    func(msg *sip.Message)
	OnBye         func()
	// OnTransportLost fires once when the receiver exits on its own (a read
	// error, including the peer closing the connection). It does not fire
	// when Run returns because ctx was cancelled.
	OnTransportLost func()
}

// Transaction owns one SIP TCP connection end to end.
type Transaction struct {
	conn   net.Conn
	parser *sip.Parser
	params sip.RequestParams
	hooks  Hooks

	mu       sync.Mutex
	state    State
	dialog   *sip.Dialog
	deviceID string

	registerMsg *sip.Message
	inviteOKMsg *sip.Message

	lastSSRC      uint32
	lastMediaPort int
	lastCandidate string

	sendCh chan string
	done   chan struct{}
}

// NewTransaction constructs a Transaction over an already-accepted SIP TCP
// connection. params carries the local host/port/user this gateway
// identifies itself with when it originates requests (INVITE/ACK/BYE).
func NewTransaction(conn net.Conn, params sip.RequestParams, hooks Hooks) *Transaction {
	return &Transaction{
		conn:   conn,
		parser: sip.NewParser(),
		params: params,
		hooks:  hooks,
		state:  StateInit,
		dialog: sip.NewDialog(),
		sendCh: make(chan string, 16),
		done:   make(chan struct{}),
	}
}

// State returns the current FSM state. Safe for concurrent use: Go's
// preemptive scheduler requires a lock a single-threaded event loop
// wouldn't need.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// DeviceID returns the device-id this transport identifies once bound, or
// "" before the first REGISTER/MESSAGE arrives.
func (t *Transaction) DeviceID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deviceID
}

// Run starts the receiver and sender subtasks and blocks until the
// connection is lost or ctx is cancelled.
func (t *Transaction) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	recvErrCh := make(chan error, 1)
	go t.senderLoop(ctx)
	go func() { recvErrCh <- t.receiverLoop(ctx) }()

	select {
	case <-ctx.Done():
		t.conn.Close()
		<-recvErrCh
		return ctx.Err()
	case err := <-recvErrCh:
		// Receiver failure interrupts the sender by cancelling ctx, then
		// the whole task exits; the session observes transport loss
		// through the OnTransportLost hook, not a shared pointer.
		cancel()
		close(t.done)
		if t.hooks.OnTransportLost != nil {
			t.hooks.OnTransportLost()
		}
		return err
	}
}

func (t *Transaction) receiverLoop(ctx context.Context) error {
	r := bufio.NewReader(t.conn)
	for {
		raw, err := readSIPMessage(r)
		if err != nil {
			return errors.Wrapf(err, "sipconn: receiver")
		}
		msg, err := t.parser.Parse(raw)
		if err != nil {
			log.L().WithError(err).Warn("sipconn: dropping unparseable message")
			continue
		}
		if err := t.handleInbound(msg); err != nil {
			log.L().WithError(err).Warn("sipconn: drive_state error")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (t *Transaction) senderLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-t.sendCh:
			if !ok {
				return
			}
			if _, err := t.conn.Write([]byte(msg)); err != nil {
				log.L().WithError(err).Warn("sipconn: write failed")
				return
			}
		}
	}
}

func (t *Transaction) send(msg string) {
	select {
	case t.sendCh <- msg:
	default:
		log.L().Warn("sipconn: sender queue full, dropping outbound message")
	}
}

// handleInbound implements "first bind_session if unbound, then
// drive_state(msg)".
func (t *Transaction) handleInbound(msg *sip.Message) error {
	t.mu.Lock()
	if t.deviceID == "" && msg.DeviceID() != "" {
		t.deviceID = msg.DeviceID()
		t.mu.Unlock()
		if t.hooks.BindSession != nil {
			attached, _ := t.hooks.BindSession(t.deviceID)
			if attached && msg.IsMessage() {
				t.transition(StateStable)
			}
		}
	} else {
		t.mu.Unlock()
	}
	return t.driveState(msg)
}

func (t *Transaction) transition(next State) {
	t.mu.Lock()
	old := t.state
	t.state = next
	t.mu.Unlock()
	if old != next && t.hooks.OnStateChange != nil {
		t.hooks.OnStateChange(old, next)
	}
}

// driveState implements the Transaction's full state transition table.
func (t *Transaction) driveState(msg *sip.Message) error {
	switch t.State() {
	case StateInit:
		switch {
		case msg.IsRegister():
			t.registerMsg = msg.Copy()
			t.send(sip.WriteRegisterOK(msg, 3600))
			t.transition(StateRegistered)
		case msg.IsMessage():
			t.send(sip.WriteMessageOK(msg))
			// Stable transition (already-existing session) happens in
			// handleInbound via BindSession's attached flag.
		}
	case StateRegistered:
		if msg.IsRegister() {
			t.registerMsg = msg.Copy()
			t.send(sip.WriteRegisterOK(msg, 3600))
		}
	case StateInviting:
		if msg.IsTrying() {
			t.transition(StateTrying)
		} else if msg.IsInviteOK() {
			t.onInviteOK(msg)
		}
	case StateTrying:
		if msg.IsInviteOK() {
			t.onInviteOK(msg)
		}
	case StateStable:
		if msg.IsBye() {
			t.send(sip.WriteByeOK(msg))
			t.transition(StateBye)
			if t.hooks.OnBye != nil {
				t.hooks.OnBye()
			}
		} else if msg.IsRegister() {
			t.registerMsg = msg.Copy()
			t.send(sip.WriteRegisterOK(msg, 3600))
		}
	case StateReinviting:
		if msg.IsByeOK() {
			if err := t.TriggerInvite(t.lastSSRC, t.lastMediaPort, t.lastCandidate); err != nil {
				return err
			}
		}
	case StateBye:
		// terminal; ignore further traffic, the session is tearing down.
	}
	return nil
}

func (t *Transaction) onInviteOK(msg *sip.Message) {
	t.inviteOKMsg = msg.Copy()
	t.send(sip.WriteAck(t.params, t.dialog, msg))
	t.transition(StateStable)
	if t.hooks.OnInviteOK != nil {
		t.hooks.OnInviteOK(msg)
	}
}

// TriggerInvite sends an INVITE with an SDP offer carrying ssrc, moving
// Registered -> Inviting. Called by the session coordinator, not by
// anything the receiver observes.
func (t *Transaction) TriggerInvite(ssrc uint32, mediaPort int, candidate string) error {
	if t.State() != StateRegistered && t.State() != StateReinviting {
		return errors.Errorf("sipconn: TriggerInvite invalid from state %s", t.State())
	}
	t.lastSSRC, t.lastMediaPort, t.lastCandidate = ssrc, mediaPort, candidate
	invite, err := sip.WriteInvite(t.params, t.dialog, sip.InviteParams{
		Candidate: candidate,
		MediaPort: mediaPort,
		SSRC:      ssrc,
	})
	if err != nil {
		return errors.Wrapf(err, "sipconn: build invite")
	}
	t.send(invite)
	t.transition(StateInviting)
	return nil
}

// TriggerReinvite sends a BYE to tear down the current dialog before a
// fresh INVITE; Stable -> Reinviting.
func (t *Transaction) TriggerReinvite(remoteTag string) error {
	if t.State() != StateStable {
		return errors.Errorf("sipconn: TriggerReinvite invalid from state %s", t.State())
	}
	t.send(sip.WriteBye(t.params, t.dialog, remoteTag))
	t.transition(StateReinviting)
	return nil
}

// ResetToRegister forces a Stable transport back to Registered so the
// session's next tick re-triggers an INVITE. Called on media loss.
func (t *Transaction) ResetToRegister() {
	t.transition(StateRegistered)
}
