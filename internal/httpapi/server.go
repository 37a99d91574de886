// Package httpapi implements the Control API (C8): publish/status/reload
// /shutdown over HTTP, served with gin the way the surveyed media-server
// corpus (mediamtx) exposes its own control plane.
package httpapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"firestige.xyz/otus/internal/log"
	"firestige.xyz/otus/internal/resource"
	"firestige.xyz/otus/internal/session"
)

// SessionFactory builds a new external-SIP-server-mode session for id,
// wired to its own RTMP publisher for that device.
// The daemon supplies this so httpapi never has to know how an RTMP
// client is dialed.
type SessionFactory func(id string) (*session.Session, context.CancelFunc, error)

// Reloader reloads the gateway's configuration in place.
type Reloader func() error

// Server wires the four Control API endpoints onto a gin engine. It does
// not own its listener: Serve accepts one net.Listener at a time, so the
// daemon can expose the same engine on a TCP port (public API) and a Unix
// socket (local CLI control) simultaneously.
type Server struct {
	engine    *gin.Engine
	resources *resource.Manager
	newSess   SessionFactory
	reload    Reloader
	mediaPort int
	startedAt time.Time
	shuttingDown int32

	onShutdownRequested func()
}

// New builds the gin engine and registers routes. onShutdownRequested is
// invoked (once) when POST /gb/v1/shutdown is received; the daemon uses it
// to begin its own graceful-drain sequence.
func New(resources *resource.Manager, newSess SessionFactory, reload Reloader, mediaPort int, onShutdownRequested func()) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:               engine,
		resources:            resources,
		newSess:              newSess,
		reload:                reload,
		mediaPort:            mediaPort,
		startedAt:            time.Now(),
		onShutdownRequested:  onShutdownRequested,
	}

	g := engine.Group("/gb/v1")
	g.POST("/publish/", s.handlePublish)
	g.GET("/status", s.handleStatus)
	g.POST("/reload", s.handleReload)
	g.POST("/shutdown", s.handleShutdown)

	return s
}

// Serve runs the engine's HTTP server over l until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{Handler: s.engine}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type publishRequest struct {
	ID   string `json:"id" binding:"required"`
	SSRC string `json:"ssrc" binding:"required"`
}

type publishResponse struct {
	Port  int  `json:"port"`
	IsTCP bool `json:"is_tcp"`
}

func (s *Server) handlePublish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id and ssrc are required"})
		return
	}

	ssrc64, err := strconv.ParseUint(req.SSRC, 10, 32)
	if err != nil || ssrc64 == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ssrc must be a non-zero decimal integer"})
		return
	}
	ssrc := uint32(ssrc64)

	h, created := s.resources.GetOrCreate(req.ID, func() interface{} {
		sess, cancel, ferr := s.newSess(req.ID)
		if ferr != nil {
			log.L().WithError(ferr).WithField("device", req.ID).Warn("httpapi: session factory failed")
			return nil
		}
		sess.SetExpectedSSRC(ssrc)
		_ = cancel // session lifetime is tied to the registry entry, not this call
		return sess
	})
	defer h.Release()

	sess, ok := h.Value().(*session.Session)
	if !ok || sess == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	if !created {
		sess.SetExpectedSSRC(ssrc)
	}
	s.resources.BindSSRC(req.ID, ssrc)

	c.JSON(http.StatusOK, publishResponse{Port: s.mediaPort, IsTCP: true})
}

func (s *Server) handleStatus(c *gin.Context) {
	type sessionStatus struct {
		ID    string `json:"id"`
		State string `json:"state"`
		SSRC  uint32 `json:"ssrc"`
	}
	sessions := make([]sessionStatus, 0, s.resources.Len())
	s.resources.Each(func(id string, value interface{}) {
		sess, ok := value.(*session.Session)
		if !ok {
			return
		}
		sessions = append(sessions, sessionStatus{ID: id, State: sess.State().String(), SSRC: sess.SSRC()})
	})

	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"session_count":  len(sessions),
		"sessions":       sessions,
	})
}

func (s *Server) handleReload(c *gin.Context) {
	if s.reload == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "reload not configured"})
		return
	}
	if err := s.reload(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reloaded": true})
}

func (s *Server) handleShutdown(c *gin.Context) {
	if atomic.CompareAndSwapInt32(&s.shuttingDown, 0, 1) && s.onShutdownRequested != nil {
		go s.onShutdownRequested()
	}
	c.JSON(http.StatusOK, gin.H{"shutting_down": true})
}
