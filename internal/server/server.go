// Package server exposes the timer over a local HTTP control API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/tuisplit/internal/engine"
)

const shutdownTimeout = 5 * time.Second

// Controller is the engine surface driven over HTTP.
type Controller interface {
	Primary(ctx context.Context) error
	TogglePause(ctx context.Context) error
	Reset(ctx context.Context) error
	SelectGroup(ctx context.Context, groupID int64) error
	Snapshot() engine.Snapshot
}

// Config holds listener settings.
type Config struct {
	Listen      string
	CORSOrigins []string
}

// Server is the control API lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	Addr() string
}

var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        Config
	ctrl       Controller
	httpServer *http.Server
	addr       string
	wg         sync.WaitGroup
}

// New creates a control API server.
func New(log logrus.FieldLogger, cfg Config, ctrl Controller) Server {
	return &server{
		log:  log.WithField("component", "server"),
		cfg:  cfg,
		ctrl: ctrl,
	}
}

// Start binds the listener and serves in the background.
func (s *server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Listen, err)
	}
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.WithField("listen", s.addr).Info("control API starting")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		s.log.WithError(err).Warn("HTTP server shutdown error")
	}
	s.wg.Wait()
	return err
}

// Addr returns the bound address once started.
func (s *server) Addr() string {
	return s.addr
}
