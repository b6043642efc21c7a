/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package mailsink

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/lithammer/shortuuid/v3"
	cmap "github.com/orcaman/concurrent-map"
	"github.com/sirupsen/logrus"
)

// Sink is a SMTP submission server which hands every accepted message to a
// Handler instead of delivering it.
type Sink struct {
	logger  logrus.FieldLogger
	handler Handler

	username string
	password string

	sessionContext       context.Context
	sessionContextCancel context.CancelFunc
	inShutdown           atomic.Bool

	// starting counts Serve calls which have not reached Accept yet. The
	// smtp server registers its listener unlocked against Close, so Shutdown
	// waits for them.
	serveMutex sync.Mutex
	starting   sync.WaitGroup

	s        *smtp.Server
	sessions cmap.ConcurrentMap
	certPool *x509.CertPool
}

var _ smtp.Backend = (*Sink)(nil) // Verify that *Sink implements smtp.Backend.

// New creates a Sink with the provided config.
func New(config *Config) (*Sink, error) {
	if config.Handler == nil {
		return nil, fmt.Errorf("mailsink handler must not be nil")
	}
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithFields(logrus.Fields{
		"scope": "mailsink",
	})

	ctx := config.Context
	if ctx == nil {
		ctx = context.Background()
	}
	sessionContext, sessionContextCancel := context.WithCancel(ctx)

	sink := &Sink{
		logger:  logger,
		handler: config.Handler,

		username: config.Username,
		password: config.Password,

		sessionContext:       sessionContext,
		sessionContextCancel: sessionContextCancel,

		sessions: cmap.New(),
	}

	domain := config.Domain
	if domain == "" {
		domain = "localhost"
	}

	sink.s = smtp.NewServer(sink)
	sink.s.Domain = domain
	sink.s.ReadTimeout = config.ReadTimeout
	sink.s.WriteTimeout = config.WriteTimeout
	sink.s.MaxMessageBytes = config.MaxMessageBytes
	sink.s.MaxRecipients = config.MaxRecipients
	sink.s.ErrorLog = logger

	switch {
	case config.TLSConfig != nil:
		sink.s.TLSConfig = config.TLSConfig
	case config.StartTLS:
		certificate, err := generateCertificate(domain, "localhost")
		if err != nil {
			sessionContextCancel()
			return nil, fmt.Errorf("failed to generate certificate: %w", err)
		}
		leaf, err := x509.ParseCertificate(certificate.Certificate[0])
		if err != nil {
			sessionContextCancel()
			return nil, fmt.Errorf("failed to parse generated certificate: %w", err)
		}
		sink.certPool = x509.NewCertPool()
		sink.certPool.AddCert(leaf)
		sink.s.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{certificate},
			MinVersion:   tls.VersionTLS12,
		}
	default:
		sink.s.AllowInsecureAuth = true
	}

	return sink, nil
}

// CertPool returns a pool holding the generated certificate, or nil if the
// sink did not generate one.
func (sink *Sink) CertPool() *x509.CertPool {
	return sink.certPool
}

func (sink *Sink) Login(state *smtp.ConnectionState, username, password string) (smtp.Session, error) {
	if sink.inShutdown.Load() {
		return nil, ErrServiceNotAvailable
	}

	usernameOK := subtle.ConstantTimeCompare([]byte(username), []byte(sink.username)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(password), []byte(sink.password)) == 1
	if !usernameOK || !passwordOK {
		sink.logger.WithFields(logrus.Fields{
			"username":    username,
			"remote_addr": state.RemoteAddr,
		}).Warnln("smtp authentication failed")
		return nil, ErrInvalidCredentials
	}

	return sink.newSession(username)
}

func (sink *Sink) AnonymousLogin(state *smtp.ConnectionState) (smtp.Session, error) {
	if sink.inShutdown.Load() {
		return nil, ErrServiceNotAvailable
	}
	return nil, ErrAuthenticationRequired
}

func (sink *Sink) newSession(username string) (smtp.Session, error) {
	sessionID := shortuuid.New()
	session, err := NewSession(sink.sessionContext, sessionID, username, sink.handler, sink.logger, sink.onLogout)
	if err != nil {
		sink.logger.WithError(err).WithField("session_id", sessionID).Errorln("failed to create SMTP session")
		return nil, ErrLocalErrorInProcessing
	}
	sink.sessions.Set(sessionID, session)

	return session, nil
}

// Serve accepts incoming connections on the Listener l. It returns nil
// after Shutdown.
func (sink *Sink) Serve(l net.Listener) error {
	sink.serveMutex.Lock()
	if sink.inShutdown.Load() {
		sink.serveMutex.Unlock()
		l.Close()
		return nil
	}
	sink.starting.Add(1)
	sink.serveMutex.Unlock()

	return sink.s.Serve(&startedListener{
		Listener: l,
		started:  sink.starting.Done,
	})
}

// Shutdown stops accepting new sessions and waits for active ones to log out
// until ctx is done, then closes all connections.
func (sink *Sink) Shutdown(ctx context.Context) error {
	sink.serveMutex.Lock()
	sink.inShutdown.Store(true)
	sink.serveMutex.Unlock()
	sink.sessionContextCancel()

	started := make(chan struct{})
	go func() {
		sink.starting.Wait()
		close(started)
	}()
	select {
	case <-started:
	case <-ctx.Done():
	}

	func() {
		for {
			if sink.sessions.Count() == 0 {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
		}
	}()
	return sink.s.Close()
}

func (sink *Sink) onLogout(session *Session) {
	sink.sessions.Remove(session.id)
}

// startedListener calls started once, when the smtp server first accepts.
type startedListener struct {
	net.Listener

	once    sync.Once
	started func()
}

func (l *startedListener) Accept() (net.Conn, error) {
	l.once.Do(l.started)
	return l.Listener.Accept()
}
