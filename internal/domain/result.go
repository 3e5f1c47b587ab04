package domain

import "encoding/json"

// Tier is the entitlement level of the configured API key.
type Tier string

const (
	TierUnknown Tier = ""
	TierDemo    Tier = "demo"
	TierPremium Tier = "premium"
	TierInvalid Tier = "invalid"
)

// Status tags the outcome of one tool invocation.
type Status string

const (
	StatusOK              Status = "ok"
	StatusPremiumRequired Status = "premium_required"
	StatusValidationError Status = "validation_error"
	StatusRemoteError     Status = "remote_error"
	StatusTimeout         Status = "timeout"
)

// InvocationResult is the uniform envelope returned to the agent for every
// tool call. Exactly one variant's fields are populated, selected by Status.
// Failures are values here, never panics: the dispatcher must survive any
// user input and any remote behavior.
type InvocationResult struct {
	Status  Status          `json:"status"`
	Payload json.RawMessage `json:"payload,omitempty"` // ok
	Feature string          `json:"feature,omitempty"` // premium_required
	Field   string          `json:"field,omitempty"`   // validation_error
	Reason  string          `json:"reason,omitempty"`  // validation_error
	Code    string          `json:"code,omitempty"`    // remote_error
	Message string          `json:"message,omitempty"`
}

// OK wraps a successful remote payload, preserving its structure verbatim.
func OK(payload json.RawMessage) InvocationResult {
	return InvocationResult{Status: StatusOK, Payload: payload}
}

// PremiumRequired names the first feature the current key is not entitled to.
func PremiumRequired(feature, message string) InvocationResult {
	return InvocationResult{Status: StatusPremiumRequired, Feature: feature, Message: message}
}

// ValidationError reports locally detected bad input; these never reach the
// remote service.
func ValidationError(field, reason string) InvocationResult {
	return InvocationResult{Status: StatusValidationError, Field: field, Reason: reason}
}

// RemoteError reports a remote failure that survived the retry policy.
func RemoteError(code, message string) InvocationResult {
	return InvocationResult{Status: StatusRemoteError, Code: code, Message: message}
}

// Timeout reports an exceeded time budget, regardless of which attempt
// expired.
func Timeout(message string) InvocationResult {
	return InvocationResult{Status: StatusTimeout, Message: message}
}

// IsTerminalFailure reports whether the result ends the dispatch pipeline
// before a remote payload was produced.
func (r InvocationResult) IsTerminalFailure() bool {
	return r.Status != StatusOK
}
