/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package mail

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/emersion/go-smtp"
	"github.com/samber/lo"
)

// Kind classifies why a send failed. The value is safe to expose to callers.
type Kind string

const (
	KindTransport        Kind = "transport"
	KindAuth             Kind = "auth"
	KindProviderRejected Kind = "provider-rejected"
	KindInternal         Kind = "internal"
)

var (
	ErrMissingCredentials  = errors.New("mail account credentials are not configured")
	ErrNoRecipients        = errors.New("no recipients")
	ErrStartTLSUnsupported = errors.New("provider does not offer STARTTLS")
)

// SMTP reply codes which mean the provider did not accept our credentials.
var authReplyCodes = []int{530, 534, 535, 538}

// Error is a classified send failure. Op names the step of the provider
// session which failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("mail %s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify returns the Kind of err. Errors which carry no usable hint are
// KindInternal.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var mailErr *Error
	if errors.As(err, &mailErr) {
		return mailErr.Kind
	}

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		if isAuthReply(smtpErr) {
			return KindAuth
		}
		return KindProviderRejected
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed):
		return KindTransport
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransport
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return KindTransport
	}
	var unknownAuthorityErr x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthorityErr) {
		return KindTransport
	}

	return KindInternal
}

func isAuthReply(err *smtp.SMTPError) bool {
	if lo.Contains(authReplyCodes, err.Code) {
		return true
	}
	return err.EnhancedCode == smtp.EnhancedCode{5, 7, 8}
}
