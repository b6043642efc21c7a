/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	cmap "github.com/orcaman/concurrent-map"
	"github.com/sirupsen/logrus"

	"stash.kopano.io/kgol/contactrelay/utils"
	"stash.kopano.io/kgol/contactrelay/version"
)

// Default values used when the Config leaves them unset.
const (
	DefaultSendTimeout     = 10 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Server is our HTTP server implementation.
type Server struct {
	config *Config

	logger logrus.FieldLogger

	engine   *gin.Engine
	inFlight cmap.ConcurrentMap

	status   *Status
	outcomes *utils.Broadcaster[*Outcome]
	pumpWg   sync.WaitGroup
}

// NewServer constructs a server from the provided parameters.
func NewServer(c *Config) (*Server, error) {
	if c.Sender == nil {
		return nil, fmt.Errorf("mail sender must not be nil")
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}

	s := &Server{
		config: c,
		logger: c.Logger,

		inFlight: cmap.New(),

		status: &Status{
			Version:       version.Version,
			StartedAt:     time.Now(),
			ListenAddress: c.ListenAddress,
			Provider:      c.Provider,
		},
		outcomes: utils.NewBroadcaster[*Outcome](),
	}
	s.outcomes.SetBufferSize(128)
	s.engine = s.newEngine()

	go s.outcomes.Start(nil)
	outcomeCh := s.outcomes.Subscribe()
	s.pumpWg.Add(1)
	go func() {
		defer s.pumpWg.Done()
		s.statusPump(outcomeCh)
	}()

	return s, nil
}

// Logger returns the logger of the server.
func (server *Server) Logger() logrus.FieldLogger {
	return server.logger
}

// Handler returns the HTTP handler serving all routes.
func (server *Server) Handler() http.Handler {
	return server.engine
}

// Close stops status processing. Serve calls it on return.
func (server *Server) Close() {
	server.outcomes.Stop()
	server.pumpWg.Wait()
}

// Serve starts all the accociated servers resources and listeners and blocks
// forever until signals or error occurs.
func (server *Server) Serve(ctx context.Context) error {
	var err error
	defer server.Close()

	errCh := make(chan error, 2)
	exitCh := make(chan struct{}, 1)
	signalCh := make(chan os.Signal, 1)
	readyCh := make(chan struct{}, 1)

	serveCtx, serveCtxCancel := context.WithCancel(ctx)
	defer serveCtxCancel()

	logger := server.logger

	listener, listenErr := net.Listen("tcp", server.config.ListenAddress)
	if listenErr != nil {
		return fmt.Errorf("failed to create listener: %w", listenErr)
	}
	server.status.setListenAddress(listener.Addr().String())

	go func() {
		select {
		case <-serveCtx.Done():
			return
		case <-readyCh:
		}
		logger.Infoln("ready")
		if server.config.OnReady != nil {
			server.config.OnReady(server)
		}
		server.publishStatus()
	}()

	srv := &http.Server{
		Handler:           server.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var serversWg sync.WaitGroup

	serversWg.Add(1)
	go func() {
		defer serversWg.Done()
		logger.WithField("listen_addr", listener.Addr()).Infoln("http listener started")
		serveErr := srv.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	// Wait for all services to stop before closing the exit channel
	go func() {
		serversWg.Wait()
		close(exitCh)
	}()

	// Set ready
	go func() {
		close(readyCh)
	}()

	// Wait for error or signal, with support for HUP to republish status
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signalCh)
	err = func() error {
		for {
			select {
			case errFromChannel := <-errCh:
				return errFromChannel
			case reason := <-signalCh:
				if reason == syscall.SIGHUP {
					logger.Infoln("reload signal received, publishing status")
					server.publishStatus()
					continue
				}
				logger.WithField("signal", reason).Warnln("received signal")
				return nil
			case <-ctx.Done():
				return nil
			}
		}
	}()

	// Shutdown, server will stop to accept new connections and drain active
	// requests.
	logger.Infoln("clean server shutdown start")

	shutdownCtx, shutdownCtxCancel := context.WithTimeout(context.Background(), server.config.ShutdownTimeout)
	go func() {
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.WithError(shutdownErr).Warn("clean http shutdown failed")
			srv.Close()
		} else {
			logger.Info("clean http shutdown complete")
		}
	}()

	func() {
		for {
			select {
			case <-exitCh:
				logger.Infoln("clean server shutdown complete, exiting")
				return
			default:
				// Some requests still running
				logger.WithField("in_flight", server.inFlight.Count()).Info("waiting requests to finish")
			}
			select {
			case reason := <-signalCh:
				logger.WithField("signal", reason).Warn("received signal")
				return
			case <-time.After(100 * time.Millisecond):
			}
		}
	}()

	shutdownCtxCancel() // Prevents leak.
	serveCtxCancel()

	return err
}

// statusPump folds outcomes into the server status until outcomeCh is
// closed.
func (server *Server) statusPump(outcomeCh <-chan *Outcome) {
	for outcome := range outcomeCh {
		server.status.Apply(outcome)
		server.publishStatus()
	}
}

func (server *Server) publishStatus() {
	if server.config.OnStatus != nil {
		server.config.OnStatus(server)
	}
}
