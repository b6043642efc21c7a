/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package client

import (
	"errors"
	"fmt"
)

var (
	ErrSubmitInProgress = errors.New("submit already in progress")
	ErrIncomplete       = errors.New("required fields are empty")
)

// RejectedError is returned when the relay answered with a non-2xx status.
type RejectedError struct {
	StatusCode int
	// Reason is the error code reported by the relay, if any.
	Reason  string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("relay rejected message with status %d (%s)", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("relay rejected message with status %d", e.StatusCode)
}

// TransportError is returned when no response was received from the relay.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to reach relay: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
