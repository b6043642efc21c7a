/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"stash.kopano.io/kgol/contactrelay/contact"
	"stash.kopano.io/kgol/contactrelay/mail"
)

// MaxRequestBytes caps the size of a send-message request body.
const MaxRequestBytes = 64 * 1024

var errTrailingData = errors.New("unexpected data after JSON object")

func (server *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, &Response{Success: true})
}

func (server *Server) handleSendMessage(c *gin.Context) {
	requestID := c.GetString(requestIDKey)
	logger := server.logger.WithField("request_id", requestID)
	started := time.Now()

	server.inFlight.Set(requestID, started)
	finished := false
	defer func() {
		if !finished {
			server.inFlight.Remove(requestID)
		}
	}()

	// finish leaves the in-flight set before the outcome is published, so
	// status derived from the outcome never counts this request.
	finish := func(result Result, kind mail.Kind) {
		finished = true
		server.inFlight.Remove(requestID)
		server.outcomes.Broadcast(&Outcome{
			RequestID: requestID,
			Result:    result,
			Kind:      kind,
			At:        time.Now(),
			Duration:  time.Since(started),
		})
	}

	if c.ContentType() != binding.MIMEJSON {
		logger.WithField("content_type", c.ContentType()).Debugln("send-message unsupported content type")
		c.JSON(http.StatusUnsupportedMediaType, &Response{
			Success: false,
			Message: MessageUnsupported,
			Error:   ErrorCodeUnsupported,
		})
		finish(ResultInvalid, "")
		return
	}

	msg, err := decodeMessage(c.Writer, c.Request.Body)
	if err != nil {
		status, response := invalidResponse(err)
		logger.WithError(err).Debugln("send-message rejected invalid request")
		c.JSON(status, response)
		finish(ResultInvalid, "")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), server.config.SendTimeout)
	defer cancel()

	if err = server.send(ctx, msg); err != nil {
		kind := mail.Classify(err)
		if kind == "" {
			kind = mail.KindInternal
		}
		logger.WithError(err).WithField("kind", kind).Errorln("send-message failed")
		c.JSON(http.StatusInternalServerError, &Response{
			Success: false,
			Message: MessageSendFailed,
			Error:   string(kind),
		})
		finish(ResultFailed, kind)
		return
	}

	logger.WithField("duration", time.Since(started)).Infoln("send-message delivered")
	c.JSON(http.StatusOK, &Response{
		Success: true,
		Message: MessageSent,
	})
	finish(ResultDelivered, "")
}

// send hands msg to the configured mail.Sender exactly once.
func (server *Server) send(ctx context.Context, msg *contact.Message) error {
	if server.config.Inbox == "" {
		return &mail.Error{Kind: mail.KindAuth, Op: "config", Err: mail.ErrMissingCredentials}
	}

	return server.config.Sender.Send(ctx, &mail.Message{
		From:     msg.Email,
		FromName: msg.Name,
		ReplyTo:  msg.Email,
		To:       []string{server.config.Inbox},
		Subject:  msg.Subject(),
		Body:     msg.Body(),
	})
}

// decodeMessage reads exactly one JSON object from body and validates it.
func decodeMessage(w http.ResponseWriter, body io.ReadCloser) (*contact.Message, error) {
	decoder := json.NewDecoder(http.MaxBytesReader(w, body, MaxRequestBytes))

	var msg contact.Message
	if err := decoder.Decode(&msg); err != nil {
		return nil, err
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

func invalidResponse(err error) (int, *Response) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return http.StatusRequestEntityTooLarge, &Response{
			Success: false,
			Message: MessageTooLarge,
			Error:   ErrorCodeTooLarge,
		}
	}

	response := &Response{
		Success: false,
		Message: MessageInvalid,
		Error:   ErrorCodeInvalid,
	}

	var validationErr *contact.ValidationError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &validationErr):
		response.Fields = validationErr.Fields
	case errors.As(err, &typeErr) && typeErr.Field != "":
		response.Fields = []contact.FieldError{{Field: typeErr.Field, Rule: "string"}}
	default:
		response.Message = fmt.Sprintf("%s: malformed JSON", MessageInvalid)
	}

	return http.StatusBadRequest, response
}
