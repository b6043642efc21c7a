/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package sink

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	netmail "net/mail"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"stash.kopano.io/kgol/contactrelay/cmd/relayd/common"
	"stash.kopano.io/kgol/contactrelay/mailsink"
)

// Default param values used by this command.
var (
	DefaultLogTimestamp    = true
	DefaultLogLevel        = "info"
	DefaultListenAddr      = "127.0.0.1:2525"
	DefaultUsername        = common.EnvOr("EMAIL_USER", "relay@localhost")
	DefaultPassword        = common.EnvOr("EMAIL_PASS", "")
	DefaultDomain          = "localhost"
	DefaultStartTLS        = false
	DefaultRejectCode      = 0
	DefaultShutdownTimeout = 5 * time.Second
)

// Options are the settings of one sink run.
type Options struct {
	Username   string
	Password   string
	Domain     string
	StartTLS   bool
	RejectCode int

	ShutdownTimeout time.Duration
}

func CommandSink() *cobra.Command {
	sinkCmd := &cobra.Command{
		Use:   "sink [...args]",
		Short: "Start a local SMTP sink to develop against",
		Long: `Start a local SMTP submission server which accepts messages from the
configured account and logs them instead of delivering them. Point serve at
it with --smtp-host, --smtp-port and --smtp-tls=plain (or starttls together
with --starttls).`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := sink(cmd, args); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		},
	}

	sinkCmd.Flags().BoolVar(&DefaultLogTimestamp, "log-timestamp", DefaultLogTimestamp, "Prefix each log line with timestamp")
	sinkCmd.Flags().StringVar(&DefaultLogLevel, "log-level", DefaultLogLevel, "Log level (one of panic, fatal, error, warn, info or debug)")
	sinkCmd.Flags().StringVar(&DefaultListenAddr, "listen", DefaultListenAddr, "TCP listen address for SMTP")
	sinkCmd.Flags().StringVar(&DefaultUsername, "username", DefaultUsername, "Account name accepted by AUTH")
	sinkCmd.Flags().StringVar(&DefaultPassword, "password", DefaultPassword, "Password accepted by AUTH")
	sinkCmd.Flags().StringVar(&DefaultDomain, "domain", DefaultDomain, "Domain announced in the greeting")
	sinkCmd.Flags().BoolVar(&DefaultStartTLS, "starttls", DefaultStartTLS, "Offer STARTTLS with an ephemeral self signed certificate")
	sinkCmd.Flags().IntVar(&DefaultRejectCode, "reject-code", DefaultRejectCode, "Reject every message with this SMTP reply code, 0 accepts")

	return sinkCmd
}

func sink(cmd *cobra.Command, args []string) error {
	if err := common.ApplyFlagsFromEnvFile(cmd, map[string]string{
		"username": "EMAIL_USER",
		"password": "EMAIL_PASS",
	}); err != nil {
		return err
	}

	logger, err := common.NewLogger(!DefaultLogTimestamp, DefaultLogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	if DefaultRejectCode != 0 && (DefaultRejectCode < 400 || DefaultRejectCode > 599) {
		return fmt.Errorf("invalid reject code: %d", DefaultRejectCode)
	}
	if DefaultPassword == "" {
		logger.Warnln("password not set, only empty passwords are accepted")
	}

	l, err := net.Listen("tcp", DefaultListenAddr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runSink(ctx, logger, l, &Options{
		Username:   DefaultUsername,
		Password:   DefaultPassword,
		Domain:     DefaultDomain,
		StartTLS:   DefaultStartTLS,
		RejectCode: DefaultRejectCode,

		ShutdownTimeout: DefaultShutdownTimeout,
	})
}

// runSink serves l until ctx is done.
func runSink(ctx context.Context, logger logrus.FieldLogger, l net.Listener, opts *Options) error {
	s, err := mailsink.New(&mailsink.Config{
		Context: ctx,
		Logger:  logger,
		Handler: newLogHandler(logger, opts.RejectCode),

		Username: opts.Username,
		Password: opts.Password,
		Domain:   opts.Domain,
		StartTLS: opts.StartTLS,

		ReadTimeout:     time.Minute,
		WriteTimeout:    time.Minute,
		MaxMessageBytes: 1024 * 1024,
		MaxRecipients:   10,
	})
	if err != nil {
		l.Close()
		return err
	}

	serveErrs := make(chan error, 1)
	go func() {
		serveErrs <- s.Serve(l)
	}()

	logger.WithFields(logrus.Fields{
		"listen_addr": l.Addr().String(),
		"username":    opts.Username,
		"starttls":    opts.StartTLS,
	}).Infoln("mail sink started")

	select {
	case <-ctx.Done():
	case serveErr := <-serveErrs:
		if serveErr != nil {
			return fmt.Errorf("mail sink failed: %w", serveErr)
		}
		return nil
	}

	logger.Infoln("mail sink shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer shutdownCancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warnln("mail sink shutdown incomplete")
	}
	<-serveErrs

	return nil
}

// newLogHandler returns a handler which logs every received message, or
// rejects it with rejectCode when set.
func newLogHandler(logger logrus.FieldLogger, rejectCode int) mailsink.Handler {
	return mailsink.HandlerFunc(func(ctx context.Context, envelope *mailsink.Envelope) error {
		entry := logger.WithFields(logrus.Fields{
			"session_id": envelope.SessionID,
			"from":       envelope.From,
			"to":         envelope.To,
			"size":       len(envelope.Data),
		})

		if rejectCode != 0 {
			entry.WithField("code", rejectCode).Warnln("message rejected")
			return &smtp.SMTPError{
				Code:    rejectCode,
				Message: "Message rejected by sink",
			}
		}

		msg, err := netmail.ReadMessage(bytes.NewReader(envelope.Data))
		if err != nil {
			entry.WithError(err).Warnln("message received, headers unreadable")
			return nil
		}
		entry.WithFields(logrus.Fields{
			"header_from": headerAddress(msg.Header.Get("From")),
			"reply_to":    headerAddress(msg.Header.Get("Reply-To")),
			"subject":     decodeHeader(msg.Header.Get("Subject")),
			"message_id":  msg.Header.Get("Message-Id"),
		}).Infoln("message received")
		entry.Debugf("message data:\n%s", envelope.Data)

		return nil
	})
}

var headerDecoder = &mime.WordDecoder{}

// headerAddress returns the bare address of an address header, or the raw
// value if it does not parse.
func headerAddress(value string) string {
	address, err := (&netmail.AddressParser{WordDecoder: headerDecoder}).Parse(value)
	if err != nil {
		return value
	}
	return address.Address
}

func decodeHeader(value string) string {
	decoded, err := headerDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}
