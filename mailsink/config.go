/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package mailsink

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/sirupsen/logrus"
)

// Config bundles mail sink configuration settings.
type Config struct {
	Context context.Context
	Logger  logrus.FieldLogger
	Handler Handler

	// Username and Password are the only credentials accepted by AUTH.
	Username string
	Password string

	Domain string

	// TLSConfig enables STARTTLS. When nil and StartTLS is set, an ephemeral
	// self signed certificate is generated.
	TLSConfig *tls.Config
	StartTLS  bool

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int
	MaxRecipients   int
}
