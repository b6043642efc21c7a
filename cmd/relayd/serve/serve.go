/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package serve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" // Include pprof for debugging, its only enabled when --with-pprof is given.
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	systemDaemon "github.com/coreos/go-systemd/v22/daemon"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"stash.kopano.io/kgol/contactrelay/cmd/relayd/common"
	"stash.kopano.io/kgol/contactrelay/internal/ipc"
	"stash.kopano.io/kgol/contactrelay/mail"
	"stash.kopano.io/kgol/contactrelay/relay"
)

// Default param values used by this command.
var (
	DefaultLogTimestamp    = true
	DefaultLogLevel        = "info"
	DefaultSystemdNotify   = false
	DefaultListenHost      = os.Getenv("RELAYD_DEFAULT_LISTEN_HOST")
	DefaultPort            = 5000
	DefaultEmailUser       = os.Getenv("EMAIL_USER")
	DefaultEmailPass       = os.Getenv("EMAIL_PASS")
	DefaultSMTPService     = os.Getenv("RELAYD_DEFAULT_SMTP_SERVICE")
	DefaultSMTPHost        = ""
	DefaultSMTPPort        = 0
	DefaultSMTPTLS         = ""
	DefaultSendTimeout     = relay.DefaultSendTimeout
	DefaultAllowOrigins    = []string{}
	DefaultStatePath       = os.Getenv("RELAYD_DEFAULT_STATE_PATH")
	DefaultWithPprof       = false
	DefaultPprofListenAddr = "127.0.0.1:6060"
)

func init() {
	if envPort := os.Getenv("PORT"); envPort != "" {
		if port, err := strconv.Atoi(envPort); err == nil {
			DefaultPort = port
		}
	}

	if DefaultStatePath == "" {
		DefaultStatePath, _ = os.Getwd()
	}
}

func CommandServe() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve [...args]",
		Short: "Start service",
		Run: func(cmd *cobra.Command, args []string) {
			if err := serve(cmd, args); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				var exitCodeErr *ErrorWithExitCode
				if errors.As(err, &exitCodeErr) {
					os.Exit(exitCodeErr.Code)
				} else {
					os.Exit(1)
				}
			}
		},
	}

	serveCmd.Flags().BoolVar(&DefaultLogTimestamp, "log-timestamp", DefaultLogTimestamp, "Prefix each log line with timestamp")
	serveCmd.Flags().StringVar(&DefaultLogLevel, "log-level", DefaultLogLevel, "Log level (one of panic, fatal, error, warn, info or debug)")
	serveCmd.Flags().BoolVar(&DefaultSystemdNotify, "systemd-notify", DefaultSystemdNotify, "Enable systemd sd_notify callback")
	serveCmd.Flags().StringVar(&DefaultListenHost, "host", DefaultListenHost, "Host or IP address to listen on, empty for all")
	serveCmd.Flags().IntVar(&DefaultPort, "port", DefaultPort, "TCP port to listen on for HTTP requests")
	serveCmd.Flags().StringVar(&DefaultEmailUser, "email-user", DefaultEmailUser, "Mail account address, used to log in and as the inbox")
	serveCmd.Flags().StringVar(&DefaultEmailPass, "email-pass", DefaultEmailPass, "Mail account password")
	serveCmd.Flags().StringVar(&DefaultSMTPService, "smtp-service", DefaultSMTPService, "Mail service preset (one of gmail, outlook, yahoo or icloud), inferred from email-user if empty")
	serveCmd.Flags().StringVar(&DefaultSMTPHost, "smtp-host", DefaultSMTPHost, "SMTP submission host, overrides the service preset")
	serveCmd.Flags().IntVar(&DefaultSMTPPort, "smtp-port", DefaultSMTPPort, "SMTP submission port, 0 for the default of the TLS mode")
	serveCmd.Flags().StringVar(&DefaultSMTPTLS, "smtp-tls", DefaultSMTPTLS, "SMTP TLS mode (one of starttls, tls or plain)")
	serveCmd.Flags().DurationVar(&DefaultSendTimeout, "send-timeout", DefaultSendTimeout, "Maximum duration of one mail provider session")
	serveCmd.Flags().StringArrayVar(&DefaultAllowOrigins, "allow-origin", DefaultAllowOrigins, "Allowed CORS origin, multiple allowed, any origin if none")
	serveCmd.Flags().StringVar(&DefaultStatePath, "state-path", DefaultStatePath, "Full path to state directory, identifies the shared status")
	serveCmd.Flags().BoolVar(&DefaultWithPprof, "with-pprof", DefaultWithPprof, "With pprof enabled")
	serveCmd.Flags().StringVar(&DefaultPprofListenAddr, "pprof-listen", DefaultPprofListenAddr, "TCP listen address for pprof")

	return serveCmd
}

func serve(cmd *cobra.Command, args []string) error {
	bs := &bootstrap{}
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		bs.Wait()
	}()

	err := bs.configure(ctx, cmd, args)
	if err != nil {
		return StartupError(err)
	}

	return bs.srv.Serve(ctx)
}

type bootstrap struct {
	sync.WaitGroup

	logger logrus.FieldLogger

	srv *relay.Server
}

func (bs *bootstrap) configure(ctx context.Context, cmd *cobra.Command, args []string) error {
	if err := common.ApplyFlagsFromEnvFile(cmd, nil); err != nil {
		return err
	}

	logger, err := common.NewLogger(!DefaultLogTimestamp, DefaultLogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	bs.logger = logger

	logger.Debugln("serve start")

	if DefaultPort < 0 || DefaultPort > 65535 {
		return fmt.Errorf("invalid port: %d", DefaultPort)
	}
	if DefaultEmailUser == "" || DefaultEmailPass == "" {
		logger.Warnln("email-user or email-pass not set, every message will fail to send")
	}

	smtpConfig, err := newSMTPConfig(logger)
	if err != nil {
		return err
	}
	sender, err := mail.NewSMTPSender(smtpConfig)
	if err != nil {
		return fmt.Errorf("failed to create mail sender: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"smtp_addr": sender.Addr(),
		"smtp_tls":  smtpConfig.TLSMode,
	}).Infoln("mail provider configured")

	if DefaultStatePath == "" {
		return fmt.Errorf("state-path must not be empty")
	}
	statePath, err := filepath.Abs(DefaultStatePath)
	if err != nil {
		return fmt.Errorf("state-path invalid: %w", err)
	}
	ipc.MustInitializeStatusSHM(statePath, "")

	if DefaultLogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	var statusOnce sync.Once
	var statusMutex sync.Mutex

	cfg := &relay.Config{
		Logger: logger,

		OnReady: func(srv *relay.Server) {
			if DefaultSystemdNotify {
				ok, notifyErr := systemDaemon.SdNotify(false, systemDaemon.SdNotifyReady)
				logger.WithField("ok", ok).Debugln("called systemd sd_notify ready")
				if notifyErr != nil {
					logger.WithError(notifyErr).Errorln("failed to trigger systemd sd_notify")
				}
			}
		},
		OnStatus: func(srv *relay.Server) {
			statusOnce.Do(func() {
				bs.Add(1)
				go func() {
					defer bs.Done()
					<-ctx.Done()
					statusMutex.Lock()
					defer statusMutex.Unlock()
					statusErr := clearStatus()
					if statusErr != nil {
						logger.WithError(statusErr).Errorln("failed to clear status")
					}
				}()
			})

			statusMutex.Lock()
			defer statusMutex.Unlock()
			onStatus(srv)
		},

		ListenAddress: net.JoinHostPort(DefaultListenHost, strconv.Itoa(DefaultPort)),

		Inbox:    DefaultEmailUser,
		Sender:   sender,
		Provider: sender.Addr(),

		SendTimeout:  DefaultSendTimeout,
		AllowOrigins: DefaultAllowOrigins,
	}

	bs.srv, err = relay.NewServer(cfg)
	if err != nil {
		return err
	}

	// Profiling support.
	withPprof, _ := cmd.Flags().GetBool("with-pprof")
	pprofListenAddr, _ := cmd.Flags().GetString("pprof-listen")
	if withPprof && pprofListenAddr != "" {
		runtime.SetMutexProfileFraction(5)
		go func() {
			pprofListen := pprofListenAddr
			logger.WithField("listenAddr", pprofListen).Infoln("pprof enabled, starting listener")
			pprofServer := &http.Server{
				Addr:              pprofListen,
				Handler:           http.DefaultServeMux,
				ReadHeaderTimeout: 10 * time.Second,
			}
			if listenErr := pprofServer.ListenAndServe(); listenErr != nil {
				logger.WithError(listenErr).Errorln("unable to start pprof listener")
			}
		}()
	}

	return nil
}

// newSMTPConfig resolves the mail provider endpoint from the service preset
// and the explicit smtp flags.
func newSMTPConfig(logger logrus.FieldLogger) (*mail.SMTPConfig, error) {
	service, err := mail.ResolveService(DefaultSMTPService, DefaultEmailUser)
	if err != nil {
		return nil, err
	}

	config := &mail.SMTPConfig{
		Logger: logger,

		Host:    service.Host,
		Port:    service.Port,
		TLSMode: service.TLSMode,

		Username: DefaultEmailUser,
		Password: DefaultEmailPass,

		Timeout: DefaultSendTimeout,
	}

	if DefaultSMTPTLS != "" {
		if config.TLSMode, err = mail.ParseTLSMode(DefaultSMTPTLS); err != nil {
			return nil, err
		}
	}
	if DefaultSMTPHost != "" {
		config.Host = DefaultSMTPHost
	}
	// The preset port belongs to the preset endpoint and TLS mode only.
	if DefaultSMTPHost != "" || config.TLSMode != service.TLSMode {
		config.Port = defaultPortForTLSMode(config.TLSMode)
	}
	if DefaultSMTPPort != 0 {
		config.Port = DefaultSMTPPort
	}

	return config, nil
}

func defaultPortForTLSMode(mode mail.TLSMode) int {
	switch mode {
	case mail.TLSModeImplicit:
		return 465
	case mail.TLSModePlain:
		return 25
	default:
		return 587
	}
}
