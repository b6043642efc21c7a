/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package relay

import (
	"time"

	"stash.kopano.io/kgol/contactrelay/mail"
)

// Result is the final state of a request.
type Result string

const (
	ResultDelivered Result = "delivered"
	ResultFailed    Result = "failed"
	ResultInvalid   Result = "invalid"
)

// Outcome records how one request ended.
type Outcome struct {
	RequestID string        `json:"request_id"`
	Result    Result        `json:"result"`
	Kind      mail.Kind     `json:"kind,omitempty"`
	At        time.Time     `json:"at"`
	Duration  time.Duration `json:"duration"`
}
