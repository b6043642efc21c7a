/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package ipc

import (
	"errors"
	"sync"

	"stash.kopano.io/kgol/contactrelay/relay"
)

// ErrStatusNotAvailable is returned when no status has been published yet.
var ErrStatusNotAvailable = errors.New("status not available")

var (
	implStatus statusImpl
	implMutex  sync.RWMutex
)

type statusImpl interface {
	clear() error
	set(*relay.Status) error
	get() (*relay.Status, error)
}

// MustInitializeStatusSHM initializes the status module using shared memory.
// The status object is keyed by statePath, so every relay started from its
// own state directory has its own status.
func MustInitializeStatusSHM(statePath, projectID string) {
	if statePath == "" {
		panic("state path must not be empty")
	}

	initialize(&shmStatus{
		statePath: statePath,
		projectID: projectID,
	})
}

func initialize(impl statusImpl) {
	implMutex.Lock()
	defer implMutex.Unlock()

	if implStatus != nil {
		panic("ipc status already initialized")
	}
	implStatus = impl
}

func current() statusImpl {
	implMutex.RLock()
	defer implMutex.RUnlock()

	if implStatus == nil {
		panic("ipc status not initialized")
	}
	return implStatus
}

func ClearStatus() error {
	return current().clear()
}

func SetStatus(status *relay.Status) error {
	return current().set(status)
}

func GetStatus() (*relay.Status, error) {
	return current().get()
}
