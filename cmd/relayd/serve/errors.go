/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package serve

import (
	"fmt"
)

// ExitCodeStartupError is the process exit code for configuration and other
// errors which happen before the service is up.
const ExitCodeStartupError = 64

// ErrorWithExitCode wraps an error with the process exit code to use.
type ErrorWithExitCode struct {
	Err  error
	Code int
}

func (e *ErrorWithExitCode) Error() string {
	return e.Err.Error()
}

func (e *ErrorWithExitCode) Unwrap() error {
	return e.Err
}

// StartupError wraps err so the process exits with ExitCodeStartupError.
func StartupError(err error) error {
	return &ErrorWithExitCode{
		Err:  fmt.Errorf("startup failed: %w", err),
		Code: ExitCodeStartupError,
	}
}
