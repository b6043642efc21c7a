/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package mail

import (
	"bytes"
	"fmt"
	"mime"
	"mime/quotedprintable"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v3"

	"stash.kopano.io/kgol/contactrelay/utils"
)

// compose renders msg as an RFC 5322 text/plain message. The sender address
// is the authenticated account and lands in the Sender header when it differs
// from From.
func compose(msg *Message, sender string, now time.Time) ([]byte, error) {
	if len(msg.To) == 0 {
		return nil, ErrNoRecipients
	}
	if msg.From == "" {
		return nil, fmt.Errorf("missing from address")
	}

	var buf bytes.Buffer
	header := func(name, value string) {
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.WriteString(value)
		buf.WriteString("\r\n")
	}

	from := &netmail.Address{Name: msg.FromName, Address: msg.From}
	header("From", from.String())
	if sender != "" && !strings.EqualFold(sender, msg.From) {
		header("Sender", (&netmail.Address{Address: sender}).String())
	}
	if msg.ReplyTo != "" {
		header("Reply-To", (&netmail.Address{Address: msg.ReplyTo}).String())
	}
	to := make([]string, 0, len(msg.To))
	for _, rcpt := range msg.To {
		to = append(to, (&netmail.Address{Address: rcpt}).String())
	}
	header("To", strings.Join(to, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", now.Format(time.RFC1123Z))
	header("Message-ID", messageID(sender))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=utf-8")
	header("Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(msg.Body)); err != nil {
		return nil, fmt.Errorf("failed to encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode body: %w", err)
	}
	if !bytes.HasSuffix(buf.Bytes(), []byte("\r\n")) {
		buf.WriteString("\r\n")
	}

	return buf.Bytes(), nil
}

func messageID(sender string) string {
	domain, err := utils.GetDomainFromEmail(sender)
	if err != nil {
		domain = "localhost"
	}
	return "<" + shortuuid.New() + "@" + domain + ">"
}
