package mcp

import (
	"github.com/henryperkins/mcprag/internal/errors"
)

// Envelope is the only response contract tools have. Success carries data;
// failure carries a caller-safe message and a machine-readable code. Stack
// traces and internal details never cross this boundary.
type Envelope struct {
	OK            bool   `json:"ok"`
	Data          any    `json:"data,omitempty"`
	Error         string `json:"error,omitempty"`
	Code          string `json:"code,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// OK wraps data in a success envelope.
func OK(data any) Envelope {
	return Envelope{OK: true, Data: data}
}

// Err converts an error into a failure envelope. The message comes from
// errors.Message, which substitutes a generic message for internal errors.
func Err(err error, correlationID string) Envelope {
	return Envelope{
		OK:            false,
		Error:         errors.Message(err),
		Code:          string(errors.KindOf(err)),
		CorrelationID: correlationID,
	}
}

// ConfirmationRequired is the success envelope returned by a destructive
// tool called without confirm=true. No side effect has taken place.
func ConfirmationRequired(message string) Envelope {
	return OK(map[string]any{
		"confirmation_required": true,
		"message":               message,
	})
}
