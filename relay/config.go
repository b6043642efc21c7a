/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package relay

import (
	"time"

	"github.com/sirupsen/logrus"

	"stash.kopano.io/kgol/contactrelay/mail"
)

// Config bundles configuration settings.
type Config struct {
	Logger logrus.FieldLogger

	OnReady  func(*Server)
	OnStatus func(*Server)

	ListenAddress string

	// Inbox is the mailbox every contact message is delivered to.
	Inbox  string
	Sender mail.Sender
	// Provider describes Sender in status output.
	Provider string

	SendTimeout     time.Duration
	ShutdownTimeout time.Duration

	// AllowOrigins lists the CORS origins. Empty allows any origin.
	AllowOrigins []string
}
