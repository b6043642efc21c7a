/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package mailsink

import (
	"context"
	"time"
)

// Envelope is one message as received by the sink.
type Envelope struct {
	SessionID  string
	Username   string
	From       string
	To         []string
	Data       []byte
	ReceivedAt time.Time
}

// Handler receives every message accepted at DATA. A returned *smtp.SMTPError
// is sent to the client as is, any other error as a transaction failure.
type Handler interface {
	Deliver(ctx context.Context, envelope *Envelope) error
}

// HandlerFunc adapts an ordinary function to a Handler.
type HandlerFunc func(ctx context.Context, envelope *Envelope) error

func (f HandlerFunc) Deliver(ctx context.Context, envelope *Envelope) error {
	return f(ctx, envelope)
}
