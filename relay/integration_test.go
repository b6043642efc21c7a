/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package relay

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stash.kopano.io/kgol/contactrelay/client"
	"stash.kopano.io/kgol/contactrelay/contact"
	"stash.kopano.io/kgol/contactrelay/mail"
	"stash.kopano.io/kgol/contactrelay/mailsink"
)

const testPassword = "app-password"

type mailbox struct {
	mutex     sync.Mutex
	envelopes []*mailsink.Envelope
}

func (m *mailbox) Deliver(ctx context.Context, envelope *mailsink.Envelope) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.envelopes = append(m.envelopes, envelope)
	return nil
}

func (m *mailbox) count() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.envelopes)
}

func startMailbox(t *testing.T) (*mailbox, string, int) {
	t.Helper()

	box := &mailbox{}
	sink, err := mailsink.New(&mailsink.Config{
		Logger:   discardLogger(),
		Handler:  box,
		Username: testInbox,
		Password: testPassword,
	})
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go sink.Serve(l)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		sink.Shutdown(ctx)
	})

	host, portString, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portString)
	require.NoError(t, err)

	return box, host, port
}

func startRelay(t *testing.T, username, password string) (*mailbox, string) {
	t.Helper()

	box, host, port := startMailbox(t)
	sender, err := mail.NewSMTPSender(&mail.SMTPConfig{
		Logger:   discardLogger(),
		Host:     host,
		Port:     port,
		TLSMode:  mail.TLSModePlain,
		Username: username,
		Password: password,
	})
	require.NoError(t, err)

	srv := newTestServer(t, sender, func(c *Config) {
		c.ListenAddress = "127.0.0.1:0"
		c.Inbox = username
		c.SendTimeout = 5 * time.Second
	})
	baseURL := startServer(t, srv)

	return box, baseURL + "/send-message"
}

func TestEndToEndDelivery(t *testing.T) {
	box, endpoint := startRelay(t, testInbox, testPassword)

	var mutex sync.Mutex
	var snapshots []client.Snapshot
	form := client.NewForm(client.New(endpoint),
		client.WithSuccessResetDelay(200*time.Millisecond),
		client.WithOnChange(func(snapshot client.Snapshot) {
			mutex.Lock()
			defer mutex.Unlock()
			snapshots = append(snapshots, snapshot)
		}),
	)
	form.SetFields(contact.Message{
		Name:    "Ada Lovelace",
		Email:   "ada@example.org",
		Message: "Hello from the integration test",
	})

	require.NoError(t, form.Submit(context.Background()))
	assert.Equal(t, 1, box.count())
	assert.Equal(t, contact.Message{}, form.Fields())

	require.Eventually(t, func() bool {
		return form.Snapshot().State == client.StateIdle
	}, 2*time.Second, 10*time.Millisecond)

	mutex.Lock()
	defer mutex.Unlock()
	require.Len(t, snapshots, 3)
	assert.False(t, snapshots[0].CanSubmit())
	assert.Equal(t, client.StateSucceeded, snapshots[1].State)
	assert.Equal(t, client.NoticeSent, snapshots[1].Notice)
	assert.Equal(t, client.StateIdle, snapshots[2].State)
	assert.True(t, snapshots[2].CanSubmit())
}

func TestEndToEndIdenticalSubmissions(t *testing.T) {
	box, endpoint := startRelay(t, testInbox, testPassword)
	c := client.New(endpoint)

	msg := &contact.Message{
		Name:    "Ada Lovelace",
		Email:   "ada@example.org",
		Message: "Same text twice",
	}
	require.NoError(t, c.Submit(context.Background(), msg))
	require.NoError(t, c.Submit(context.Background(), msg))

	assert.Equal(t, 2, box.count())
}

func TestEndToEndMissingCredentials(t *testing.T) {
	box, endpoint := startRelay(t, testInbox, "")

	form := client.NewForm(client.New(endpoint))
	fields := contact.Message{
		Name:    "Ada Lovelace",
		Email:   "ada@example.org",
		Message: "Nobody will read this",
	}
	form.SetFields(fields)

	err := form.Submit(context.Background())
	var rejected *client.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, 500, rejected.StatusCode)
	assert.Equal(t, "auth", rejected.Reason)

	snapshot := form.Snapshot()
	assert.Equal(t, client.StateFailed, snapshot.State)
	assert.Equal(t, client.ReasonRejected, snapshot.Reason)
	assert.Equal(t, client.NoticeRejected, snapshot.Notice)
	assert.Equal(t, fields, snapshot.Fields)
	assert.Equal(t, 0, box.count())
}

func TestEndToEndWrongPassword(t *testing.T) {
	box, endpoint := startRelay(t, testInbox, "wrong")

	err := client.New(endpoint).Submit(context.Background(), &contact.Message{
		Name:    "Ada Lovelace",
		Email:   "ada@example.org",
		Message: "Hello",
	})
	var rejected *client.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "auth", rejected.Reason)
	assert.Equal(t, 0, box.count())
}
