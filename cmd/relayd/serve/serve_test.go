/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package serve

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stash.kopano.io/kgol/contactrelay/mail"
)

func setSMTPFlags(t *testing.T, service, host string, port int, tlsMode string) {
	t.Helper()

	oldService, oldHost, oldPort, oldTLS := DefaultSMTPService, DefaultSMTPHost, DefaultSMTPPort, DefaultSMTPTLS
	t.Cleanup(func() {
		DefaultSMTPService, DefaultSMTPHost, DefaultSMTPPort, DefaultSMTPTLS = oldService, oldHost, oldPort, oldTLS
	})
	DefaultSMTPService, DefaultSMTPHost, DefaultSMTPPort, DefaultSMTPTLS = service, host, port, tlsMode
}

func TestNewSMTPConfigEndpoint(t *testing.T) {
	for _, tc := range []struct {
		name    string
		service string
		host    string
		port    int
		tlsMode string

		expectedHost string
		expectedPort int
		expectedTLS  mail.TLSMode
	}{
		{"preset", "gmail", "", 0, "", "smtp.gmail.com", 587, mail.TLSModeStartTLS},
		{"preset with implicit tls", "gmail", "", 0, "tls", "smtp.gmail.com", 465, mail.TLSModeImplicit},
		{"preset with plain", "gmail", "", 0, "plain", "smtp.gmail.com", 25, mail.TLSModePlain},
		{"preset with its own tls mode", "yahoo", "", 0, "tls", "smtp.mail.yahoo.com", 465, mail.TLSModeImplicit},
		{"preset with same starttls mode", "gmail", "", 0, "starttls", "smtp.gmail.com", 587, mail.TLSModeStartTLS},
		{"preset with tls and port", "gmail", "", 2465, "tls", "smtp.gmail.com", 2465, mail.TLSModeImplicit},
		{"host", "gmail", "mail.example.com", 0, "", "mail.example.com", 587, mail.TLSModeStartTLS},
		{"host with plain", "gmail", "mail.example.com", 0, "plain", "mail.example.com", 25, mail.TLSModePlain},
		{"host with port", "gmail", "mail.example.com", 2525, "plain", "mail.example.com", 2525, mail.TLSModePlain},
	} {
		t.Run(tc.name, func(t *testing.T) {
			setSMTPFlags(t, tc.service, tc.host, tc.port, tc.tlsMode)

			config, err := newSMTPConfig(logrus.New())
			require.NoError(t, err)
			assert.Equal(t, tc.expectedHost, config.Host)
			assert.Equal(t, tc.expectedPort, config.Port)
			assert.Equal(t, tc.expectedTLS, config.TLSMode)
		})
	}
}

func TestNewSMTPConfigInvalidTLSMode(t *testing.T) {
	setSMTPFlags(t, "gmail", "", 0, "ssl")

	_, err := newSMTPConfig(logrus.New())
	assert.Error(t, err)
}
