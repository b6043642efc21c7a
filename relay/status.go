/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package relay

import (
	"sync"
	"time"

	"github.com/jinzhu/copier"
)

type Status struct {
	mutex sync.RWMutex

	Version       string    `json:"version"`
	StartedAt     time.Time `json:"started_at"`
	ListenAddress string    `json:"listen_addr"`
	Provider      string    `json:"provider"`

	InFlight  int               `json:"in_flight"`
	Delivered uint64            `json:"delivered"`
	Invalid   uint64            `json:"invalid"`
	Failed    map[string]uint64 `json:"failed"`

	LastOutcome *Outcome `json:"last_outcome,omitempty"`
}

var timeConverter = copier.TypeConverter{
	SrcType: time.Time{},
	DstType: time.Time{},
	Fn: func(src interface{}) (interface{}, error) {
		return src, nil
	},
}

// Copy returns a deep copy of status.
func (status *Status) Copy() (*Status, error) {
	status.mutex.RLock()
	defer status.mutex.RUnlock()

	s := &Status{}
	err := copier.CopyWithOption(s, status, copier.Option{
		IgnoreEmpty: true,
		DeepCopy:    true,
		Converters:  []copier.TypeConverter{timeConverter},
	})

	return s, err
}

// Apply folds outcome into the counters.
func (status *Status) Apply(outcome *Outcome) {
	status.mutex.Lock()
	defer status.mutex.Unlock()

	switch outcome.Result {
	case ResultDelivered:
		status.Delivered++
	case ResultInvalid:
		status.Invalid++
	case ResultFailed:
		if status.Failed == nil {
			status.Failed = make(map[string]uint64)
		}
		status.Failed[string(outcome.Kind)]++
	}
	status.LastOutcome = outcome
}

func (status *Status) setListenAddress(addr string) {
	status.mutex.Lock()
	defer status.mutex.Unlock()

	status.ListenAddress = addr
}

// Status returns a snapshot of the server status.
func (server *Server) Status() (*Status, error) {
	status, err := server.status.Copy()
	if err != nil {
		return nil, err
	}
	status.InFlight = server.inFlight.Count()

	return status, nil
}
