package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"planbridge/internal/domain"
)

// errorBody is the structured error shape the computation service returns
// for non-2xx statuses.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Feature string `json:"feature"`
	Error   string `json:"error"` // legacy flat shape
}

// Normalize maps a raw remote outcome into the uniform result contract.
// Server-declared premium errors become premium-required even when the gate
// passed the request: server-side entitlement is authoritative.
func Normalize(op domain.Operation, resp *Response, err error) domain.InvocationResult {
	if err != nil {
		return normalizeError(op, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if !json.Valid(resp.Body) {
			return domain.RemoteError("bad_payload", "remote service returned a non-JSON body")
		}
		return domain.OK(json.RawMessage(resp.Body))
	}

	var eb errorBody
	_ = json.Unmarshal(resp.Body, &eb)
	message := eb.Message
	if message == "" {
		message = eb.Error
	}
	if message == "" {
		message = fmt.Sprintf("remote service returned HTTP %d", resp.StatusCode)
	}

	if resp.StatusCode == http.StatusPaymentRequired || premiumCode(eb.Code) {
		feature := eb.Feature
		if feature == "" {
			feature = string(op)
		}
		return domain.PremiumRequired(feature, message)
	}

	code := eb.Code
	if code == "" {
		code = fmt.Sprintf("http_%d", resp.StatusCode)
	}
	return domain.RemoteError(code, message)
}

func normalizeError(op domain.Operation, err error) domain.InvocationResult {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.Timeout(fmt.Sprintf("%s exceeded its time budget", op))
	case errors.Is(err, context.Canceled):
		return domain.RemoteError("canceled", "invocation canceled by the caller")
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return domain.RemoteError("unauthorized",
			"remote service rejected the configured API key")
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		code := "network"
		if transient.StatusCode != 0 {
			code = fmt.Sprintf("http_%d", transient.StatusCode)
		}
		return domain.RemoteError(code, transient.Error())
	}

	return domain.RemoteError("internal", err.Error())
}

func premiumCode(code string) bool {
	switch code {
	case "premium_required", "feature_not_entitled", "upgrade_required":
		return true
	}
	return false
}
