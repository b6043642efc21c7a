/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"stash.kopano.io/kgol/contactrelay/mail"
	"stash.kopano.io/kgol/contactrelay/mail/mock"
)

func TestStatusApplyAndCopy(t *testing.T) {
	startedAt := time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC)
	status := &Status{
		Version:   "1.0.0",
		StartedAt: startedAt,
		Provider:  "gmail",
	}

	status.Apply(&Outcome{RequestID: "a", Result: ResultDelivered})
	status.Apply(&Outcome{RequestID: "b", Result: ResultFailed, Kind: mail.KindAuth})
	status.Apply(&Outcome{RequestID: "c", Result: ResultFailed, Kind: mail.KindAuth})
	status.Apply(&Outcome{RequestID: "d", Result: ResultInvalid})

	s, err := status.Copy()
	require.NoError(t, err)

	assert.Equal(t, "1.0.0", s.Version)
	assert.True(t, startedAt.Equal(s.StartedAt))
	assert.Equal(t, uint64(1), s.Delivered)
	assert.Equal(t, uint64(1), s.Invalid)
	assert.Equal(t, uint64(2), s.Failed["auth"])
	require.NotNil(t, s.LastOutcome)
	assert.Equal(t, "d", s.LastOutcome.RequestID)

	// The copy is detached from the source.
	status.Apply(&Outcome{RequestID: "e", Result: ResultFailed, Kind: mail.KindAuth})
	assert.Equal(t, uint64(2), s.Failed["auth"])
	assert.Equal(t, "d", s.LastOutcome.RequestID)
}

func TestServerStatusFollowsOutcomes(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mock.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil)

	statusCh := make(chan *Status, 10)
	srv := newTestServer(t, sender, func(c *Config) {
		c.OnStatus = func(srv *Server) {
			s, err := srv.Status()
			if assert.NoError(t, err) {
				statusCh <- s
			}
		}
	})

	postJSON(t, srv, validBody)
	postJSON(t, srv, `{}`)

	var last *Status
	require.Eventually(t, func() bool {
		select {
		case last = <-statusCh:
		default:
		}
		return last != nil && last.Delivered == 1 && last.Invalid == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "test", last.Provider)
	assert.Equal(t, 0, last.InFlight)
	assert.Equal(t, ResultInvalid, last.LastOutcome.Result)
}

func TestServerStatusExcludesFinishedRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mock.NewMockSender(ctrl)

	sending := make(chan struct{})
	release := make(chan struct{})
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, msg *mail.Message) error {
		close(sending)
		<-release
		return nil
	})
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil).Times(4)

	statusCh := make(chan *Status, 20)
	srv := newTestServer(t, sender, func(c *Config) {
		c.OnStatus = func(srv *Server) {
			s, err := srv.Status()
			if assert.NoError(t, err) {
				statusCh <- s
			}
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		postJSON(t, srv, validBody)
	}()
	<-sending
	s, err := srv.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, s.InFlight)
	close(release)
	<-done

	for i := 1; i <= 5; i++ {
		if i > 1 {
			postJSON(t, srv, validBody)
		}
		var last *Status
		require.Eventually(t, func() bool {
			select {
			case last = <-statusCh:
			default:
			}
			return last != nil && last.Delivered == uint64(i)
		}, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, 0, last.InFlight, "status after request %d counts it as in flight", i)
	}
}
