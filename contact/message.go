/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package contact

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// SubjectPrefix is prepended to the sender name to form the mail subject.
const SubjectPrefix = "Portfolio Contact from "

// Field length limits, in characters. They must match the validate tags below.
const (
	MaxNameLength    = 200
	MaxEmailLength   = 254
	MaxMessageLength = 10000
)

// Message is a contact form submission. It only ever lives for the duration
// of one submission.
type Message struct {
	Name    string `json:"name" validate:"required,singleline,max=200"`
	Email   string `json:"email" validate:"required,singleline,max=254,email"`
	Message string `json:"message" validate:"required,max=10000"`
}

// Subject returns the subject line of the outbound mail.
func (m *Message) Subject() string {
	return SubjectPrefix + m.Name
}

// Body returns the plain text body of the outbound mail. It contains all
// three fields verbatim.
func (m *Message) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", m.Name)
	fmt.Fprintf(&b, "Email: %s\n", m.Email)
	fmt.Fprintf(&b, "Message: %s\n", m.Message)
	return b.String()
}

// Missing returns the JSON names of all empty fields, in form order.
func (m *Message) Missing() []string {
	fields := []lo.Tuple2[string, string]{
		lo.T2("name", m.Name),
		lo.T2("email", m.Email),
		lo.T2("message", m.Message),
	}
	return lo.FilterMap(fields, func(field lo.Tuple2[string, string], _ int) (string, bool) {
		return field.A, field.B == ""
	})
}

// IsEmpty reports whether all fields are empty.
func (m *Message) IsEmpty() bool {
	return len(m.Missing()) == 3
}
