/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package mailsink

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/sirupsen/logrus"

	"stash.kopano.io/kgol/contactrelay/utils"
)

type Session struct {
	ctx      context.Context
	id       string
	username string

	handler  Handler
	logger   logrus.FieldLogger
	onLogout SessionCb

	from string
	to   []string
}

type SessionCb func(session *Session)

func NewSession(ctx context.Context, sessionID string, username string, handler Handler, logger logrus.FieldLogger, onLogout SessionCb) (*Session, error) {
	return &Session{
		ctx:      ctx,
		id:       sessionID,
		username: username,
		handler:  handler,
		logger: logger.WithFields(logrus.Fields{
			"scope":      "mailsink-session",
			"session_id": sessionID,
		}),
		onLogout: onLogout,
	}, nil
}

var _ smtp.Session = (*Session)(nil) // Verify that *Session implements smtp.Session.

func (s *Session) Mail(from string, opts smtp.MailOptions) error {
	s.logger.WithField("from", from).Debugln("mail from")

	s.from = from
	return nil
}

func (s *Session) Rcpt(rcptTo string) error {
	s.logger.WithField("rcptTo", rcptTo).Debugln("mail rcptTo")
	if _, err := utils.GetDomainFromEmail(rcptTo); err != nil {
		s.logger.WithError(err).Debugln("invalid rcpt to value")
		return ErrRequestedActionNotTaken
	}

	s.to = append(s.to, rcptTo)
	return nil
}

func (s *Session) Data(r io.Reader) error {
	s.logger.Debugln("smtp mail data")

	data, err := io.ReadAll(r)
	if err != nil {
		s.logger.WithError(err).Errorln("smtp data failed to read")
		return ErrTransactionFailed
	}

	envelope := &Envelope{
		SessionID:  s.id,
		Username:   s.username,
		From:       s.from,
		To:         append([]string(nil), s.to...),
		Data:       data,
		ReceivedAt: time.Now(),
	}

	if err = s.handler.Deliver(s.ctx, envelope); err != nil {
		var smtpErr *smtp.SMTPError
		if errors.As(err, &smtpErr) {
			s.logger.WithField("code", smtpErr.Code).Debugln("smtp data rejected by handler")
			return smtpErr
		}
		s.logger.WithError(err).Errorln("smtp data handler failed")
		return ErrTransactionFailed
	}

	s.logger.Debugln("smtp mail data done")
	return nil
}

func (s *Session) Reset() {
	s.logger.Debugln("mail reset")

	s.from = ""
	s.to = nil
}

func (s *Session) Logout() error {
	s.logger.Debugln("mail logout")
	if s.onLogout != nil {
		s.onLogout(s)
	}
	return nil
}
