/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package status

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stash.kopano.io/kgol/contactrelay/mail"
	"stash.kopano.io/kgol/contactrelay/relay"
)

func testStatus() *relay.Status {
	return &relay.Status{
		Version:       "1.0.0",
		StartedAt:     time.Now().Add(-time.Minute),
		ListenAddress: "[::]:5000",
		Provider:      "smtp.gmail.com:587",
		Delivered:     3,
		Invalid:       1,
		Failed: map[string]uint64{
			"transport": 1,
			"auth":      2,
		},
		LastOutcome: &relay.Outcome{
			RequestID: "abc",
			Result:    relay.ResultFailed,
			Kind:      mail.KindAuth,
			At:        time.Date(2021, 5, 6, 7, 8, 9, 0, time.UTC),
		},
	}
}

func TestOutputPretty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, outputPretty(&buf, termenv.Ascii, testStatus()))

	out := buf.String()
	assert.Contains(t, out, "relayd 1.0.0")
	assert.Contains(t, out, "provider: smtp.gmail.com:587")
	assert.Contains(t, out, "delivered: 3")
	assert.Contains(t, out, "failed (auth): 2")
	assert.Contains(t, out, "failed (transport): 1")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("(auth)")), bytes.Index(buf.Bytes(), []byte("(transport)")))
	assert.Contains(t, out, "last: failed (auth) at 2021-05-06 07:08:09 UTC")
}

func TestOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, outputJSON(&buf, testStatus()))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "1.0.0", decoded["version"])
	assert.Equal(t, float64(3), decoded["delivered"])
}

func TestModelGetStatusRetries(t *testing.T) {
	calls := 0
	m := initialModel(context.Background())
	m.fetch = func() (*relay.Status, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("not yet")
		}
		return testStatus(), nil
	}

	msg := m.getStatus()
	s, ok := msg.(statusMsg)
	require.True(t, ok)
	assert.Equal(t, "1.0.0", (*relay.Status)(s).Version)
	assert.Equal(t, 2, calls)
}

func TestModelGetStatusGivesUp(t *testing.T) {
	calls := 0
	m := initialModel(context.Background())
	m.fetch = func() (*relay.Status, error) {
		calls++
		return nil, errors.New("no status")
	}

	msg := m.getStatus()
	_, ok := msg.(errMsg)
	assert.True(t, ok)
	assert.Equal(t, DefaultFetchAttempts, calls)
}
