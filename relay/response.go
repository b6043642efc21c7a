/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package relay

import (
	"stash.kopano.io/kgol/contactrelay/contact"
)

const (
	MessageSent          = "Message sent successfully!"
	MessageSendFailed    = "Failed to send message"
	MessageInvalid       = "Invalid contact message"
	MessageUnsupported   = "Content-Type must be application/json"
	MessageTooLarge      = "Request body too large"
	ErrorCodeInvalid     = "invalid"
	ErrorCodeUnsupported = "unsupported-media-type"
	ErrorCodeTooLarge    = "too-large"
)

// Response is the JSON envelope of every relay response.
type Response struct {
	Success bool                 `json:"success"`
	Message string               `json:"message,omitempty"`
	Error   string               `json:"error,omitempty"`
	Fields  []contact.FieldError `json:"fields,omitempty"`
}
