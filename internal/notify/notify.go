// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

// Package notify delivers one-time passcodes and account notices to operators.
//
// # Architecture
//
// The auth service depends only on the [Sender] contract. Production wiring
// uses [SMSSender] against the SMS gateway; development wiring uses
// [LogSender] so flows can be exercised without burning SMS credit.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ethio-transit/bsms-api/pkg/phone"
)

// Sender delivers a short text message to a phone number.
type Sender interface {
	Send(context context.Context, phoneNumber, message string) error
}

// # SMS Gateway

// smsRequestTimeout bounds a single gateway call so a stalled SMS provider
// cannot hold an HTTP handler hostage.
const smsRequestTimeout = 10 * time.Second

// SMSSender delivers messages through the national SMS gateway's HTTP API.
type SMSSender struct {
	gatewayURL string
	token      string
	sender     string
	client     *http.Client
}

// NewSMSSender constructs a gateway-backed [SMSSender].
func NewSMSSender(gatewayURL, token, sender string) *SMSSender {
	return &SMSSender{
		gatewayURL: gatewayURL,
		token:      token,
		sender:     sender,
		client:     &http.Client{Timeout: smsRequestTimeout},
	}
}

/*
Send submits a message to the SMS gateway.

The gateway addresses subscribers in the local "09..." form, so the canonical
"+251..." number is converted at this boundary only.

Parameters:
  - context: context.Context
  - phoneNumber: string (canonical +251 form)
  - message: string

Returns:
  - error: Gateway connectivity failures or non-2xx responses
*/
func (sender *SMSSender) Send(context context.Context, phoneNumber, message string) error {
	request, err := http.NewRequestWithContext(context, http.MethodGet, sender.gatewayURL, nil)
	if err != nil {
		return fmt.Errorf("notify_sms_request_failed: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+sender.token)
	request.Header.Set("Accept", "application/json")

	query := url.Values{}
	query.Set("sender", sender.sender)
	query.Set("to", phone.Local(phoneNumber))
	query.Set("message", message)
	request.URL.RawQuery = query.Encode()

	response, err := sender.client.Do(request)
	if err != nil {
		return fmt.Errorf("notify_sms_send_failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("notify_sms_gateway_status_%d", response.StatusCode)
	}

	return nil
}

// # Development Sender

// LogSender writes messages to the structured log instead of sending them.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender constructs a log-backed [LogSender] for development use.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the message that would have been delivered.
func (sender *LogSender) Send(context context.Context, phoneNumber, message string) error {
	sender.logger.InfoContext(context, "sms_suppressed",
		slog.String("to", phoneNumber),
		slog.String("message", message),
	)
	return nil
}
