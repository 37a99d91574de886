// Package daemon wires the gateway's pieces together: the SIP listener
// (C4), the media listener (C5), the session coordinator (C6), the RTMP
// muxer (C7), the HTTP control API (C8) and the resource manager (C9).
// Nothing here implements protocol logic itself; it only accepts
// connections and routes them to the packages that do.
package daemon

import (
	"context"
	"net"
	"os"
	"sync"

	"github.com/ossrs/go-oryx-lib/errors"

	"firestige.xyz/otus/internal/config"
	"firestige.xyz/otus/internal/httpapi"
	"firestige.xyz/otus/internal/log"
	"firestige.xyz/otus/internal/media"
	"firestige.xyz/otus/internal/ps"
	"firestige.xyz/otus/internal/resource"
	"firestige.xyz/otus/internal/session"
	"firestige.xyz/otus/internal/sip"
	"firestige.xyz/otus/internal/sipconn"
)

// Daemon owns every listener and background goroutine the gateway runs.
type Daemon struct {
	cfgPath string
	cfg     *config.GlobalConfig
	cfgMu   sync.RWMutex

	resources *resource.Manager

	sipListener   net.Listener
	mediaListener net.Listener
	httpServer    *httpapi.Server

	rebindMu sync.Mutex
	rebinds  map[string]*session.RebindableSIPSide

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Daemon from an already-loaded configuration. cfgPath is
// retained so SIGHUP/the /gb/v1/reload endpoint can re-read the same file.
func New(cfgPath string, cfg *config.GlobalConfig) *Daemon {
	return &Daemon{
		cfgPath:   cfgPath,
		cfg:       cfg,
		resources: resource.New(cfg.Session.IdleTTL),
		rebinds:   make(map[string]*session.RebindableSIPSide),
	}
}

func (d *Daemon) config() *config.GlobalConfig {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfg
}

// Run starts every listener and blocks until ctx is cancelled (or a
// listener fails to bind), then drains in-flight connections before
// returning.
func (d *Daemon) Run(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)
	defer d.cancel()

	cfg := d.config()

	var err error
	d.sipListener, err = net.Listen("tcp", cfg.SIP.ListenAddr)
	if err != nil {
		return errors.Wrapf(err, "daemon: sip listen on %s", cfg.SIP.ListenAddr)
	}
	d.mediaListener, err = net.Listen("tcp", cfg.Media.ListenAddr)
	if err != nil {
		return errors.Wrapf(err, "daemon: media listen on %s", cfg.Media.ListenAddr)
	}

	d.httpServer = httpapi.New(d.resources, d.externalSessionFactory, d.Reload, listenerPort(d.mediaListener), d.cancel)

	d.wg.Add(2)
	go func() { defer d.wg.Done(); d.acceptLoop(d.sipListener, d.handleSIPConn) }()
	go func() { defer d.wg.Done(); d.acceptLoop(d.mediaListener, d.handleMediaConn) }()

	if cfg.HTTP.ListenAddr != "" {
		l, err := net.Listen("tcp", cfg.HTTP.ListenAddr)
		if err != nil {
			return errors.Wrapf(err, "daemon: http listen on %s", cfg.HTTP.ListenAddr)
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.httpServer.Serve(d.ctx, l); err != nil {
				log.L().WithError(err).Warn("daemon: http server over tcp exited")
			}
		}()
	}
	if cfg.HTTP.SocketPath != "" {
		os.Remove(cfg.HTTP.SocketPath)
		l, err := net.Listen("unix", cfg.HTTP.SocketPath)
		if err != nil {
			return errors.Wrapf(err, "daemon: http listen on %s", cfg.HTTP.SocketPath)
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.httpServer.Serve(d.ctx, l); err != nil {
				log.L().WithError(err).Warn("daemon: http server over unix socket exited")
			}
		}()
	}

	log.L().WithField("sip", cfg.SIP.ListenAddr).WithField("media", cfg.Media.ListenAddr).Info("daemon: gateway started")

	<-d.ctx.Done()
	d.sipListener.Close()
	d.mediaListener.Close()
	d.wg.Wait()
	log.L().Info("daemon: gateway stopped")
	return nil
}

// Shutdown requests a graceful stop; Run returns once every accept loop
// and HTTP server has drained.
func (d *Daemon) Shutdown() {
	if d.cancel != nil {
		d.cancel()
	}
}

// Reload re-reads the configuration file in place. Listener addresses and
// the session idle TTL only take effect on the next process restart. The
// RTMP output template and domain SSRC flag/region apply to sessions
// created after the call returns, and media settings to media connections
// accepted after it. Session timing applies to sessions created after it
// by SIP registration; sessions created by the HTTP publish API always use
// session.DefaultConfig timing.
func (d *Daemon) Reload() error {
	cfg, err := config.Load(d.cfgPath)
	if err != nil {
		return errors.Wrapf(err, "daemon: reload")
	}
	d.cfgMu.Lock()
	d.cfg = cfg
	d.cfgMu.Unlock()
	log.L().Info("daemon: configuration reloaded")
	return nil
}

func (d *Daemon) acceptLoop(l net.Listener, handle func(net.Conn)) {
	for {
		conn, err := l.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				return
			}
			log.L().WithError(err).Warn("daemon: accept error")
			continue
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			handle(conn)
		}()
	}
}

// handleSIPConn drives one SIP transaction (C4) for the lifetime of its
// TCP connection.
func (d *Daemon) handleSIPConn(conn net.Conn) {
	params := sip.RequestParams{
		LocalHost: localHost(conn.LocalAddr()),
		LocalPort: localPort(conn.LocalAddr()),
		LocalUser: "gb28181gw",
	}

	var tr *sipconn.Transaction
	tr = sipconn.NewTransaction(conn, params, sipconn.Hooks{
		BindSession: func(deviceID string) (attached bool, ok bool) {
			return d.bindSession(deviceID, conn, tr)
		},
		OnStateChange: func(old, new sipconn.State) {
			log.L().WithField("sip_state", new.String()).Debug("daemon: sip transaction state change")
		},
	})

	if err := tr.Run(d.ctx); err != nil {
		log.L().WithError(err).Debug("daemon: sip transaction ended")
	}
}

// bindSession looks up (or creates) the session for deviceID, rebinds its
// SIP side to this transport, and starts its driver goroutine once.
func (d *Daemon) bindSession(deviceID string, conn net.Conn, tr *sipconn.Transaction) (attached bool, ok bool) {
	d.rebindMu.Lock()
	rb, exists := d.rebinds[deviceID]
	if !exists {
		rb = session.NewRebindableSIPSide()
		d.rebinds[deviceID] = rb
	}
	d.rebindMu.Unlock()
	rb.Bind(tr)

	h, created := d.resources.GetOrCreate(deviceID, func() interface{} {
		return d.newSession(deviceID, rb, conn)
	})
	defer h.Release()

	sess, okType := h.Value().(*session.Session)
	if !okType {
		return false, false
	}
	if created {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			sess.Run(d.ctx)
		}()
	}
	return !created, true
}

func (d *Daemon) newSession(deviceID string, sipSide session.SIPSide, conn net.Conn) *session.Session {
	cfg := d.config()
	candidate := cfg.Candidate
	if candidate == "*" {
		candidate = localHost(conn.LocalAddr())
	}

	sessCfg := session.Config{
		DeviceID:                   deviceID,
		Candidate:                  candidate,
		MediaPort:                  listenerPort(d.mediaListener),
		DomainFlag:                 cfg.Domain.Flag,
		Region:                     cfg.Domain.Region,
		ConnectingTimeout:          cfg.Session.ConnectingTimeout,
		ConnectingTimeoutThreshold: int(cfg.Session.MaxConnectingRetries),
		ReinviteWait:               cfg.Session.ReinviteWait,
		DriveInterval:              cfg.Session.DriveInterval,
	}

	publisher := d.newPublisher(deviceID)
	sess := session.New(sessCfg, sipSide, publisher, func(reason string) {
		d.resources.Remove(deviceID)
		d.rebindMu.Lock()
		delete(d.rebinds, deviceID)
		d.rebindMu.Unlock()
	})
	sess.SetTouch(func() { d.resources.Touch(deviceID) })
	return sess
}

// externalSessionFactory implements httpapi.SessionFactory for sessions
// the Control API creates directly against an external SIP server: no
// sipconn.Transaction ever exists for these, so bindSession's
// reconnect/re-attach logic does not apply.
func (d *Daemon) externalSessionFactory(id string) (*session.Session, context.CancelFunc, error) {
	cfg := d.config()
	candidate := cfg.Candidate
	if candidate == "*" {
		candidate = localHost(d.sipListener.Addr())
	}
	sessCfg := session.DefaultConfig(id, candidate, listenerPort(d.mediaListener))
	sessCfg.DomainFlag = cfg.Domain.Flag
	sessCfg.Region = cfg.Domain.Region

	publisher := d.newPublisher(id)
	sess := session.New(sessCfg, session.NewExternalSIPSide(), publisher, func(reason string) {
		d.resources.Remove(id)
	})
	sess.SetTouch(func() { d.resources.Touch(id) })

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		sess.Run(d.ctx)
	}()
	return sess, func() {}, nil
}

// handleMediaConn drives one media connection (C5) for its lifetime,
// releasing the session's media-connected flag on exit no matter why the
// connection closed.
func (d *Daemon) handleMediaConn(conn net.Conn) {
	defer conn.Close()
	cfg := d.config()

	c := media.NewConn(conn, cfg.Media.IdleTimeout, cfg.Media.MaxUnboundPackets, d.mediaBinder)
	if err := c.Serve(); err != nil {
		log.L().WithError(err).Warn("daemon: media connection error")
	}

	if ssrc := c.SSRC(); ssrc != 0 {
		if h, ok := d.resources.FindBySSRC(ssrc); ok {
			if sess, ok := h.Value().(*session.Session); ok {
				sess.OnMediaDisconnected()
			}
		}
	}
}

func (d *Daemon) mediaBinder(ssrc uint32) (ps.BundleHandler, bool) {
	h, ok := d.resources.FindBySSRC(ssrc)
	if !ok {
		// A session that originated its own INVITE knows its SSRC but is
		// not indexed by it yet: find it and index it now.
		var ids []string
		var candidates []*session.Session
		d.resources.Each(func(id string, v interface{}) {
			if s, isSess := v.(*session.Session); isSess {
				ids, candidates = append(ids, id), append(candidates, s)
			}
		})
		for i, s := range candidates {
			if s.SSRC() == ssrc && d.resources.BindSSRC(ids[i], ssrc) {
				h, ok = d.resources.FindBySSRC(ssrc)
				break
			}
		}
		if !ok {
			return nil, false
		}
	}
	sess, ok := h.Value().(*session.Session)
	if !ok {
		return nil, false
	}
	sess.OnMediaConnected(ssrc)
	return sess, true
}
