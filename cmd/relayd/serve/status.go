/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package serve

import (
	"stash.kopano.io/kgol/contactrelay/internal/ipc"
	"stash.kopano.io/kgol/contactrelay/relay"
)

func onStatus(srv *relay.Server) {
	logger := srv.Logger()

	s, statusErr := srv.Status()
	if statusErr != nil {
		logger.WithError(statusErr).Errorln("failed to get server status")
		s = &relay.Status{}
	}

	statusErr = ipc.SetStatus(s)
	if statusErr != nil {
		logger.WithError(statusErr).Errorln("failed to share server status")
	} else {
		logger.Debugln("server status stored to shm successfully")
	}
}

func clearStatus() error {
	return ipc.ClearStatus()
}
