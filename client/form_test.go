/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stash.kopano.io/kgol/contactrelay/contact"
)

type fakeSubmitter struct {
	mutex   sync.Mutex
	calls   []contact.Message
	release chan error
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{
		release: make(chan error),
	}
}

func (s *fakeSubmitter) Submit(ctx context.Context, msg *contact.Message) error {
	s.mutex.Lock()
	s.calls = append(s.calls, *msg)
	s.mutex.Unlock()

	select {
	case err := <-s.release:
		return err
	case <-ctx.Done():
		return &TransportError{Err: ctx.Err()}
	}
}

func (s *fakeSubmitter) callCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.calls)
}

type recorder struct {
	mutex     sync.Mutex
	snapshots []Snapshot
}

func (r *recorder) record(snapshot Snapshot) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.snapshots = append(r.snapshots, snapshot)
}

func (r *recorder) states() []State {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	states := make([]State, 0, len(r.snapshots))
	for _, snapshot := range r.snapshots {
		states = append(states, snapshot.State)
	}
	return states
}

func (r *recorder) canSubmit() []bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	result := make([]bool, 0, len(r.snapshots))
	for _, snapshot := range r.snapshots {
		result = append(result, snapshot.CanSubmit())
	}
	return result
}

var filledFields = contact.Message{
	Name:    "Ada Lovelace",
	Email:   "ada@example.org",
	Message: "Hello",
}

func submitAsync(f *Form) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- f.Submit(context.Background())
	}()
	return done
}

func waitState(t *testing.T, f *Form, state State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.Snapshot().State == state
	}, 2*time.Second, 5*time.Millisecond)
}

func TestFormSuccessFlow(t *testing.T) {
	submitter := newFakeSubmitter()
	rec := &recorder{}
	f := NewForm(submitter, WithSuccessResetDelay(200*time.Millisecond), WithOnChange(rec.record))
	f.SetFields(filledFields)

	assert.True(t, f.CanSubmit())
	done := submitAsync(f)
	waitState(t, f, StateSubmitting)
	assert.False(t, f.CanSubmit())

	submitter.release <- nil
	require.NoError(t, <-done)

	snapshot := f.Snapshot()
	assert.Equal(t, StateSucceeded, snapshot.State)
	assert.Equal(t, NoticeSent, snapshot.Notice)
	assert.Equal(t, contact.Message{}, snapshot.Fields, "fields cleared on success")
	assert.True(t, snapshot.ResetPending)

	waitState(t, f, StateIdle)
	assert.Empty(t, f.Snapshot().Notice)

	// The timer fires once, no further transitions follow.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, []State{StateSubmitting, StateSucceeded, StateIdle}, rec.states())
	assert.Equal(t, []bool{false, true, true}, rec.canSubmit())
	assert.Equal(t, 1, submitter.callCount())
}

func TestFormRejectedKeepsFields(t *testing.T) {
	submitter := newFakeSubmitter()
	f := NewForm(submitter)
	f.SetFields(filledFields)

	done := submitAsync(f)
	waitState(t, f, StateSubmitting)
	submitter.release <- &RejectedError{StatusCode: 500, Reason: "auth"}

	err := <-done
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)

	snapshot := f.Snapshot()
	assert.Equal(t, StateFailed, snapshot.State)
	assert.Equal(t, ReasonRejected, snapshot.Reason)
	assert.Equal(t, NoticeRejected, snapshot.Notice)
	assert.Equal(t, filledFields, snapshot.Fields)
	assert.True(t, snapshot.CanSubmit())
	assert.False(t, snapshot.ResetPending)
}

func TestFormTransportFailure(t *testing.T) {
	submitter := newFakeSubmitter()
	f := NewForm(submitter)
	f.SetFields(filledFields)

	done := submitAsync(f)
	waitState(t, f, StateSubmitting)
	submitter.release <- &TransportError{Err: errors.New("connection refused")}
	require.Error(t, <-done)

	snapshot := f.Snapshot()
	assert.Equal(t, StateFailed, snapshot.State)
	assert.Equal(t, ReasonTransport, snapshot.Reason)
	assert.Equal(t, NoticeTransport, snapshot.Notice)
	assert.Equal(t, filledFields, snapshot.Fields)

	// The failure notice stays until the next submit.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, NoticeTransport, f.Snapshot().Notice)

	done = submitAsync(f)
	waitState(t, f, StateSubmitting)
	assert.Empty(t, f.Snapshot().Notice)
	submitter.release <- nil
	require.NoError(t, <-done)
}

func TestFormRejectsConcurrentSubmit(t *testing.T) {
	submitter := newFakeSubmitter()
	f := NewForm(submitter)
	f.SetFields(filledFields)

	done := submitAsync(f)
	waitState(t, f, StateSubmitting)

	assert.ErrorIs(t, f.Submit(context.Background()), ErrSubmitInProgress)

	submitter.release <- nil
	require.NoError(t, <-done)
	assert.Equal(t, 1, submitter.callCount())
}

func TestFormIncompleteMakesNoCall(t *testing.T) {
	submitter := newFakeSubmitter()
	f := NewForm(submitter)
	f.SetFields(contact.Message{Name: "Ada", Message: "Hello"})

	err := f.Submit(context.Background())
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Contains(t, err.Error(), "email")
	assert.Equal(t, 0, submitter.callCount())
	assert.Equal(t, StateIdle, f.Snapshot().State)
}

func TestFormResubmitCancelsPendingReset(t *testing.T) {
	submitter := newFakeSubmitter()
	rec := &recorder{}
	f := NewForm(submitter, WithSuccessResetDelay(300*time.Millisecond), WithOnChange(rec.record))

	f.SetFields(filledFields)
	done := submitAsync(f)
	waitState(t, f, StateSubmitting)
	submitter.release <- nil
	require.NoError(t, <-done)

	// Submit again while the success notice is up, and keep it in flight
	// past the first reset deadline.
	f.SetFields(filledFields)
	done = submitAsync(f)
	waitState(t, f, StateSubmitting)
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, StateSubmitting, f.Snapshot().State)

	submitter.release <- nil
	require.NoError(t, <-done)
	waitState(t, f, StateIdle)

	assert.Equal(t, []State{
		StateSubmitting, StateSucceeded,
		StateSubmitting, StateSucceeded, StateIdle,
	}, rec.states())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "submitting", StateSubmitting.String())
	assert.Equal(t, "transport", ReasonTransport.String())
}

func TestFormDefaultSuccessResetDelay(t *testing.T) {
	assert.Equal(t, 3000*time.Millisecond, DefaultSuccessResetDelay)
	assert.Equal(t, DefaultSuccessResetDelay, NewForm(nil).resetDelay)
}
