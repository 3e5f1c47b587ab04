package remote

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"planbridge/internal/domain"
)

func TestNormalize_SuccessPassesPayloadThrough(t *testing.T) {
	body := `{"max_spend_monthly":4100.5,"detail":{"years":27}}`
	res := Normalize(domain.OpSustainableSpend, &Response{StatusCode: 200, Body: []byte(body)}, nil)
	if res.Status != domain.StatusOK {
		t.Fatalf("status: %q", res.Status)
	}
	if string(res.Payload) != body {
		t.Fatalf("payload mutated: %s", res.Payload)
	}
}

func TestNormalize_NonJSONSuccessBody(t *testing.T) {
	res := Normalize(domain.OpSustainableSpend, &Response{StatusCode: 200, Body: []byte("<html>")}, nil)
	if res.Status != domain.StatusRemoteError || res.Code != "bad_payload" {
		t.Fatalf("expected remote_error/bad_payload, got %q/%q", res.Status, res.Code)
	}
}

func TestNormalize_ServerDeclaredPremiumWins(t *testing.T) {
	// Even when the local gate passed the request, a server-side entitlement
	// rejection maps to premium-required.
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"402 payment required", http.StatusPaymentRequired, `{"message":"upgrade"}`, "sustainable-spend"},
		{"structured premium code", http.StatusBadRequest, `{"code":"premium_required","feature":"monte-carlo"}`, "monte-carlo"},
		{"entitlement code", 422, `{"code":"feature_not_entitled","feature":"income-events"}`, "income-events"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Normalize(domain.OpSustainableSpend, &Response{StatusCode: tt.status, Body: []byte(tt.body)}, nil)
			if res.Status != domain.StatusPremiumRequired {
				t.Fatalf("status: %q", res.Status)
			}
			if res.Feature != tt.want {
				t.Fatalf("feature: expected %q, got %q", tt.want, res.Feature)
			}
		})
	}
}

func TestNormalize_StructuredRemoteError(t *testing.T) {
	body := `{"code":"invalid_province","message":"unknown province XX"}`
	res := Normalize(domain.OpSustainableSpend, &Response{StatusCode: 400, Body: []byte(body)}, nil)
	if res.Status != domain.StatusRemoteError {
		t.Fatalf("status: %q", res.Status)
	}
	if res.Code != "invalid_province" || res.Message != "unknown province XX" {
		t.Fatalf("got %q/%q", res.Code, res.Message)
	}
}

func TestNormalize_LegacyFlatErrorShape(t *testing.T) {
	res := Normalize(domain.OpSustainableSpend, &Response{StatusCode: 400, Body: []byte(`{"error":"bad input"}`)}, nil)
	if res.Status != domain.StatusRemoteError || res.Code != "http_400" || res.Message != "bad input" {
		t.Fatalf("got %+v", res)
	}
}

func TestNormalize_UnstructuredErrorFallsBackToStatus(t *testing.T) {
	res := Normalize(domain.OpSustainableSpend, &Response{StatusCode: 503, Body: []byte("gateway")}, nil)
	if res.Status != domain.StatusRemoteError || res.Code != "http_503" {
		t.Fatalf("got %+v", res)
	}
}

func TestNormalize_TimeoutRegardlessOfAttempt(t *testing.T) {
	res := Normalize(domain.OpMonteCarlo, nil, context.DeadlineExceeded)
	if res.Status != domain.StatusTimeout {
		t.Fatalf("status: %q", res.Status)
	}

	wrapped := &TransientError{Attempts: 2, Last: context.DeadlineExceeded}
	res = Normalize(domain.OpSustainableSpend, nil, wrapped)
	if res.Status != domain.StatusTimeout {
		t.Fatalf("a deadline inside the retry loop must still normalize to timeout, got %q", res.Status)
	}
}

func TestNormalize_Cancellation(t *testing.T) {
	res := Normalize(domain.OpMonteCarlo, nil, context.Canceled)
	if res.Status != domain.StatusRemoteError || res.Code != "canceled" {
		t.Fatalf("got %+v", res)
	}
}

func TestNormalize_AuthError(t *testing.T) {
	res := Normalize(domain.OpSustainableSpend, nil, &AuthError{StatusCode: 403})
	if res.Status != domain.StatusRemoteError || res.Code != "unauthorized" {
		t.Fatalf("got %+v", res)
	}
}

func TestNormalize_TransientError(t *testing.T) {
	err := &TransientError{StatusCode: 502, Attempts: 3, Last: errors.New("bad gateway")}
	res := Normalize(domain.OpSustainableSpend, nil, err)
	if res.Status != domain.StatusRemoteError || res.Code != "http_502" {
		t.Fatalf("got %+v", res)
	}

	netErr := &TransientError{Attempts: 3, Last: errors.New("connection refused")}
	res = Normalize(domain.OpSustainableSpend, nil, netErr)
	if res.Code != "network" {
		t.Fatalf("transport-level failures should map to the network code, got %q", res.Code)
	}
}
