/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"stash.kopano.io/kgol/contactrelay/contact"
	"stash.kopano.io/kgol/contactrelay/version"
)

// DefaultEndpoint is the send-message route of a relay on the local machine.
const DefaultEndpoint = "http://localhost:5000/send-message"

const maxResponseBytes = 64 * 1024

var defaultUserAgent = "relayd/" + version.Version

// Client submits contact messages to a relay.
type Client struct {
	endpoint   string
	httpClient *http.Client
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the http.Client used for requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds every request. Without it only the context passed to
// Submit limits a request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		httpClient := *c.httpClient
		httpClient.Timeout = timeout
		c.httpClient = &httpClient
	}
}

// New creates a Client for endpoint, which defaults to DefaultEndpoint.
func New(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the URL messages are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type relayResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Submit posts msg to the relay exactly once. It returns nil on any 2xx
// response, a *RejectedError for other responses and a *TransportError when
// no response was received.
func (c *Client) Submit(ctx context.Context, msg *contact.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", c.userAgent)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer response.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return nil
	}

	rejected := &RejectedError{
		StatusCode: response.StatusCode,
	}
	var envelope relayResponse
	if json.Unmarshal(body, &envelope) == nil {
		rejected.Reason = envelope.Error
		rejected.Message = envelope.Message
	}
	return rejected
}
