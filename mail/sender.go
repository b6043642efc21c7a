/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package mail

import (
	"context"
)

//go:generate mockgen -source=sender.go -destination=mock/sender.go -package=mock

// Message is one outbound mail as handed to a provider.
type Message struct {
	// From is the address the mail claims to be from. It is supplied by the
	// submitter and not verified.
	From     string
	FromName string
	ReplyTo  string
	To       []string
	Subject  string
	// Body is plain text.
	Body string
}

// Sender delivers a Message synchronously. Implementations return nil only
// if the provider accepted the message.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}
