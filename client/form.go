/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"stash.kopano.io/kgol/contactrelay/contact"
)

// DefaultSuccessResetDelay is how long the success notice stays up.
const DefaultSuccessResetDelay = 3 * time.Second

// Notices shown for the form states.
const (
	NoticeSent      = "Message sent successfully!"
	NoticeRejected  = "Failed to send. Please try again."
	NoticeTransport = "Server error. Please try again later."
)

// State is the submission state of a Form.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reason tells why a Form is in StateFailed.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonRejected
	ReasonTransport
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonRejected:
		return "rejected"
	case ReasonTransport:
		return "transport"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Submitter delivers a message, Client is the usual implementation.
type Submitter interface {
	Submit(ctx context.Context, msg *contact.Message) error
}

// Snapshot is the observable state of a Form.
type Snapshot struct {
	State        State
	Reason       Reason
	Notice       string
	Fields       contact.Message
	Err          error
	ResetPending bool
}

// CanSubmit reports whether the submit control is enabled.
func (s Snapshot) CanSubmit() bool {
	return s.State != StateSubmitting
}

// Form holds the fields of a contact message and drives one submission at a
// time through its states.
type Form struct {
	mutex sync.Mutex

	submitter  Submitter
	resetDelay time.Duration
	onChange   func(Snapshot)

	fields contact.Message
	state  State
	reason Reason
	notice string
	err    error

	resetTimer *time.Timer
	generation uint64
}

// FormOption configures a Form.
type FormOption func(*Form)

// WithSuccessResetDelay sets how long the form stays in StateSucceeded.
func WithSuccessResetDelay(delay time.Duration) FormOption {
	return func(f *Form) {
		f.resetDelay = delay
	}
}

// WithOnChange registers fn to be called with a Snapshot after every state
// transition. fn is called without holding the form lock.
func WithOnChange(fn func(Snapshot)) FormOption {
	return func(f *Form) {
		f.onChange = fn
	}
}

// NewForm creates an idle, empty Form.
func NewForm(submitter Submitter, opts ...FormOption) *Form {
	f := &Form{
		submitter:  submitter,
		resetDelay: DefaultSuccessResetDelay,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetFields replaces the field values.
func (f *Form) SetFields(fields contact.Message) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.fields = fields
}

// Fields returns the current field values.
func (f *Form) Fields() contact.Message {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.fields
}

// Snapshot returns the current observable state.
func (f *Form) Snapshot() Snapshot {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.snapshotLocked()
}

// CanSubmit reports whether Submit would start a submission now.
func (f *Form) CanSubmit() bool {
	return f.Snapshot().CanSubmit()
}

// Submit sends the current fields once. It returns ErrSubmitInProgress while
// another submission is pending and an error wrapping ErrIncomplete, without
// any network call, when a required field is empty.
func (f *Form) Submit(ctx context.Context) error {
	f.mutex.Lock()
	if f.state == StateSubmitting {
		f.mutex.Unlock()
		return ErrSubmitInProgress
	}
	if missing := f.fields.Missing(); len(missing) > 0 {
		f.mutex.Unlock()
		return fmt.Errorf("%w: %s", ErrIncomplete, strings.Join(missing, ", "))
	}

	if f.resetTimer != nil {
		f.resetTimer.Stop()
		f.resetTimer = nil
	}
	f.generation++
	fields := f.fields
	f.state = StateSubmitting
	f.reason = ReasonNone
	f.notice = ""
	f.err = nil
	snapshot := f.snapshotLocked()
	f.mutex.Unlock()
	f.notify(snapshot)

	err := f.submitter.Submit(ctx, &fields)

	f.mutex.Lock()
	if err == nil {
		f.state = StateSucceeded
		f.fields = contact.Message{}
		f.notice = NoticeSent
		generation := f.generation
		f.resetTimer = time.AfterFunc(f.resetDelay, func() {
			f.resetSucceeded(generation)
		})
	} else {
		f.state = StateFailed
		f.err = err
		var transportErr *TransportError
		if errors.As(err, &transportErr) {
			f.reason = ReasonTransport
			f.notice = NoticeTransport
		} else {
			f.reason = ReasonRejected
			f.notice = NoticeRejected
		}
	}
	snapshot = f.snapshotLocked()
	f.mutex.Unlock()
	f.notify(snapshot)

	return err
}

// resetSucceeded returns the form to idle, unless another submission was
// started since the timer was armed.
func (f *Form) resetSucceeded(generation uint64) {
	f.mutex.Lock()
	if f.generation != generation || f.state != StateSucceeded {
		f.mutex.Unlock()
		return
	}
	f.state = StateIdle
	f.notice = ""
	f.resetTimer = nil
	snapshot := f.snapshotLocked()
	f.mutex.Unlock()
	f.notify(snapshot)
}

func (f *Form) snapshotLocked() Snapshot {
	return Snapshot{
		State:        f.state,
		Reason:       f.reason,
		Notice:       f.notice,
		Fields:       f.fields,
		Err:          f.err,
		ResetPending: f.resetTimer != nil,
	}
}

func (f *Form) notify(snapshot Snapshot) {
	if f.onChange != nil {
		f.onChange(snapshot)
	}
}
