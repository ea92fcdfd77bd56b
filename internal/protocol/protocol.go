// Package protocol defines the service's wire types: evaluation API
// responses and the firehose messages pushed to the central tracking
// collector.
package protocol

import (
	"encoding/json"
	"time"
)

// EvaluateResponse is the result of one full evaluation pass for an account.
type EvaluateResponse struct {
	AccountID    string    `json:"account_id"`
	Roles        []string  `json:"roles"`
	ItemCount    int       `json:"item_count"`
	AppliedSkins []string  `json:"applied_skins,omitempty"`
	EvaluatedAt  time.Time `json:"evaluated_at"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Firehose methods.
const (
	MethodLogin = "login"
	MethodEvent = "event"
)

// LoginMsg authenticates the firehose connection by client name.
type LoginMsg struct {
	Method  string `json:"method"`
	Content string `json:"content"`
}

// EventMsg wraps one upstream API response for the collector.
type EventMsg struct {
	Method string            `json:"method"`
	URL    string            `json:"url"`
	Params map[string]string `json:"params,omitempty"`
	Data   json.RawMessage   `json:"data"`
}
