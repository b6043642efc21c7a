/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a complete provider session when the context passed
// to Send carries no deadline.
const DefaultTimeout = 30 * time.Second

// SMTPConfig bundles SMTPSender configuration settings.
type SMTPConfig struct {
	Logger logrus.FieldLogger

	Host    string
	Port    int
	TLSMode TLSMode
	// TLSConfig is used for STARTTLS and implicit TLS. ServerName defaults to
	// Host.
	TLSConfig *tls.Config

	// Username and Password are the mail account credentials. Username is
	// also the envelope sender.
	Username string
	Password string

	// LocalName is sent with EHLO.
	LocalName string

	Timeout time.Duration
}

// SMTPSender submits each Message over a fresh authenticated SMTP session.
type SMTPSender struct {
	config *SMTPConfig
	logger logrus.FieldLogger

	now func() time.Time
}

var _ Sender = (*SMTPSender)(nil) // Verify that *SMTPSender implements Sender.

// NewSMTPSender creates a SMTPSender with the provided config.
func NewSMTPSender(config *SMTPConfig) (*SMTPSender, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("smtp host must not be empty")
	}
	if config.Port <= 0 || config.Port > 65535 {
		return nil, fmt.Errorf("invalid smtp port: %d", config.Port)
	}
	if config.TLSMode == "" {
		config.TLSMode = TLSModeStartTLS
	}
	if config.LocalName == "" {
		config.LocalName = "localhost"
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &SMTPSender{
		config: config,
		logger: logger.WithFields(logrus.Fields{
			"scope": "smtp",
			"host":  config.Host,
		}),
		now: time.Now,
	}, nil
}

// Addr returns the provider address in host:port form.
func (s *SMTPSender) Addr() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// Send implements Sender. The returned error is always a *Error.
func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	if s.config.Username == "" || s.config.Password == "" {
		return &Error{Kind: KindAuth, Op: "auth", Err: ErrMissingCredentials}
	}

	data, err := compose(msg, s.config.Username, s.now())
	if err != nil {
		return &Error{Kind: KindInternal, Op: "compose", Err: err}
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}
	deadline, _ := ctx.Deadline()

	logger := s.logger.WithField("rcpt_count", len(msg.To))
	logger.Debugln("smtp session start")

	conn, err := s.dial(ctx)
	if err != nil {
		return s.fail(ctx, "dial", err)
	}
	// Closing the connection unblocks whatever command is in flight.
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	conn.SetDeadline(deadline)
	c, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		conn.Close()
		return s.fail(ctx, "greeting", err)
	}
	defer c.Close()
	c.CommandTimeout = time.Until(deadline)
	c.SubmissionTimeout = time.Until(deadline)

	if err = c.Hello(s.config.LocalName); err != nil {
		return s.fail(ctx, "hello", err)
	}

	if s.config.TLSMode == TLSModeStartTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return &Error{Kind: KindProviderRejected, Op: "starttls", Err: ErrStartTLSUnsupported}
		}
		if err = c.StartTLS(s.tlsConfig()); err != nil {
			return s.fail(ctx, "starttls", err)
		}
	}

	if err = c.Auth(sasl.NewPlainClient("", s.config.Username, s.config.Password)); err != nil {
		var smtpErr *smtp.SMTPError
		if errors.As(err, &smtpErr) {
			return &Error{Kind: KindAuth, Op: "auth", Err: err}
		}
		return s.fail(ctx, "auth", err)
	}

	if err = c.Mail(s.config.Username, nil); err != nil {
		return s.fail(ctx, "mail", err)
	}
	for _, rcpt := range msg.To {
		if err = c.Rcpt(rcpt); err != nil {
			return s.fail(ctx, "rcpt", err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return s.fail(ctx, "data", err)
	}
	if _, err = w.Write(data); err != nil {
		w.Close()
		return s.fail(ctx, "data", err)
	}
	if err = w.Close(); err != nil {
		return s.fail(ctx, "data", err)
	}

	// The message is accepted once DATA completes.
	if quitErr := c.Quit(); quitErr != nil {
		logger.WithError(quitErr).Debugln("smtp quit failed")
	}
	logger.Debugln("smtp session done")

	return nil
}

func (s *SMTPSender) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{}
	if s.config.TLSMode == TLSModeImplicit {
		tlsDialer := &tls.Dialer{
			NetDialer: dialer,
			Config:    s.tlsConfig(),
		}
		return tlsDialer.DialContext(ctx, "tcp", s.Addr())
	}
	return dialer.DialContext(ctx, "tcp", s.Addr())
}

func (s *SMTPSender) tlsConfig() *tls.Config {
	var config *tls.Config
	if s.config.TLSConfig != nil {
		config = s.config.TLSConfig.Clone()
	} else {
		config = &tls.Config{}
	}
	if config.ServerName == "" {
		config.ServerName = s.config.Host
	}
	return config
}

func (s *SMTPSender) fail(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Error{Kind: KindTransport, Op: op, Err: fmt.Errorf("%w: %v", ctxErr, err)}
	}
	return &Error{Kind: Classify(err), Op: op, Err: err}
}
