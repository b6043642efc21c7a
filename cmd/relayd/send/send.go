/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package send

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"stash.kopano.io/kgol/contactrelay/client"
	"stash.kopano.io/kgol/contactrelay/cmd/relayd/common"
	"stash.kopano.io/kgol/contactrelay/contact"
	"stash.kopano.io/kgol/contactrelay/relay"
)

// Options are the resolved settings of one send invocation.
type Options struct {
	Endpoint    string
	Timeout     time.Duration
	Interactive bool

	Fields contact.Message
}

func CommandSend() *cobra.Command {
	sendCmd := &cobra.Command{
		Use:   "send [...args]",
		Short: "Submit a contact message to a relay",
		Long: `Submit a contact message to a relay.

Use --message - to read the message text from stdin. Without --interactive
exactly one submission is made and the command exits non-zero when it fails.`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := send(cmd, args); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		},
	}

	sendCmd.Flags().String("endpoint", client.DefaultEndpoint, "URL of the relay send-message endpoint (CONTACTRELAY_ENDPOINT)")
	sendCmd.Flags().String("name", "", "Sender name (CONTACTRELAY_NAME)")
	sendCmd.Flags().String("email", "", "Sender email address (CONTACTRELAY_EMAIL)")
	sendCmd.Flags().String("message", "", "Message text, - reads from stdin")
	sendCmd.Flags().Duration("timeout", 0, "Give up waiting for the relay after this duration, 0 waits forever (CONTACTRELAY_TIMEOUT)")
	sendCmd.Flags().BoolP("interactive", "i", false, "Fill in and submit the message in a terminal form")
	sendCmd.Flags().String("log-level", "warn", "Log level (one of panic, fatal, error, warn, info or debug)")

	return sendCmd
}

func send(cmd *cobra.Command, args []string) error {
	logLevel, _ := cmd.Flags().GetString("log-level")
	logger, err := common.NewLogger(true, logLevel)
	if err != nil {
		return err
	}

	cfg, err := loadConfigFromEnviron()
	if err != nil {
		return err
	}

	opts, err := resolveOptions(cmd, cfg, os.Stdin)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var clientOpts []client.Option
	if opts.Timeout > 0 {
		clientOpts = append(clientOpts, client.WithTimeout(opts.Timeout))
	}
	c := client.New(opts.Endpoint, clientOpts...)

	logger.WithFields(logrus.Fields{
		"endpoint":    c.Endpoint(),
		"interactive": opts.Interactive,
	}).Debugln("send starting")

	if opts.Interactive {
		return runInteractive(ctx, c, opts.Fields)
	}
	return sendOnce(ctx, logger, c, opts.Fields, cmd.OutOrStdout())
}

// resolveOptions merges flags over the environment defaults. Flags which were
// set explicitly always win.
func resolveOptions(cmd *cobra.Command, cfg *Config, stdin io.Reader) (*Options, error) {
	flags := cmd.Flags()
	opts := &Options{
		Endpoint: cfg.Endpoint,
		Timeout:  cfg.Timeout,
		Fields: contact.Message{
			Name:  cfg.Name,
			Email: cfg.Email,
		},
	}

	if flags.Changed("endpoint") {
		opts.Endpoint, _ = flags.GetString("endpoint")
	}
	if flags.Changed("timeout") {
		opts.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("name") {
		opts.Fields.Name, _ = flags.GetString("name")
	}
	if flags.Changed("email") {
		opts.Fields.Email, _ = flags.GetString("email")
	}
	opts.Interactive, _ = flags.GetBool("interactive")

	message, _ := flags.GetString("message")
	if message == "-" {
		b, err := io.ReadAll(io.LimitReader(stdin, relay.MaxRequestBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to read message from stdin: %w", err)
		}
		message = strings.TrimRight(string(b), "\r\n")
	}
	opts.Fields.Message = message

	if opts.Endpoint == "" {
		return nil, errors.New("endpoint must not be empty")
	}
	if opts.Timeout < 0 {
		return nil, errors.New("timeout must not be negative")
	}

	return opts, nil
}

// sendOnce submits fields exactly once and reports the outcome with the same
// notices as the interactive form.
func sendOnce(ctx context.Context, logger logrus.FieldLogger, submitter client.Submitter, fields contact.Message, w io.Writer) error {
	form := client.NewForm(submitter)
	form.SetFields(fields)

	err := form.Submit(ctx)
	snapshot := form.Snapshot()
	if err != nil {
		if errors.Is(err, client.ErrIncomplete) {
			return fmt.Errorf("%w (set them with --name, --email and --message)", err)
		}
		logger.WithError(err).WithField("reason", snapshot.Reason.String()).Debugln("send failed")
		return fmt.Errorf("%s (%w)", snapshot.Notice, err)
	}

	fmt.Fprintln(w, snapshot.Notice)
	return nil
}
