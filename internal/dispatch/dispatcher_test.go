package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"planbridge/internal/domain"
	"planbridge/internal/gate"
	"planbridge/internal/remote"
	"planbridge/internal/scenario"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeSender scripts remote responses and counts calls, so tests can assert
// the gate rejected a request before any network activity.
type fakeSender struct {
	calls     atomic.Int32
	responses []sendResult
}

type sendResult struct {
	resp *remote.Response
	err  error
}

func (f *fakeSender) Do(ctx context.Context, req *remote.Request) (*remote.Response, error) {
	n := int(f.calls.Add(1))
	if len(f.responses) == 0 {
		return &remote.Response{StatusCode: 200, Body: []byte(`{}`)}, nil
	}
	idx := n - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx].resp, f.responses[idx].err
}

func staticTier(tier domain.Tier) *gate.TierCache {
	return gate.NewTierCache(func(ctx context.Context) (domain.Tier, error) {
		return tier, nil
	}, testLogger())
}

func spendInput(age int, savings float64) scenario.Input {
	return scenario.Input{
		Operation: domain.OpSustainableSpend,
		Primary:   scenario.PersonInput{CurrentAge: age, TotalSavings: savings},
	}
}

func TestDispatch_HappyPathSustainableSpend(t *testing.T) {
	sender := &fakeSender{responses: []sendResult{
		{resp: &remote.Response{StatusCode: 200, Body: []byte(`{"max_spend_monthly":4125.0}`)}},
	}}
	d := New(staticTier(domain.TierDemo), sender, testLogger())

	res := d.Dispatch(context.Background(), spendInput(60, 800_000))
	if res.Status != domain.StatusOK {
		t.Fatalf("status: %+v", res)
	}
	if n := sender.calls.Load(); n != 1 {
		t.Fatalf("expected one remote call, got %d", n)
	}

	// Sustainable-spend payloads are rewritten into the narrative envelope.
	var payload struct {
		MaxMonthlySpend float64 `json:"max_monthly_spend"`
		Currency        string  `json:"currency"`
		Mode            string  `json:"mode"`
		Narrative       string  `json:"narrative"`
	}
	if err := json.Unmarshal(res.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.MaxMonthlySpend != 4125 || payload.Currency != "CAD" || payload.Mode != "Individual" {
		t.Fatalf("unexpected envelope: %+v", payload)
	}
	if !strings.Contains(payload.Narrative, "$4,125.00 per month") {
		t.Fatalf("narrative missing the spend figure: %s", payload.Narrative)
	}
	if !strings.Contains(payload.Narrative, "$800,000.00") {
		t.Fatalf("narrative missing household assets: %s", payload.Narrative)
	}
}

func TestDispatch_DemoMonteCarloRejectedWithoutRemoteCall(t *testing.T) {
	sender := &fakeSender{}
	d := New(staticTier(domain.TierDemo), sender, testLogger())

	in := scenario.Input{
		Operation:    domain.OpMonteCarlo,
		Primary:      scenario.PersonInput{CurrentAge: 65, TotalSavings: 850_000},
		MonthlySpend: 4_500,
	}
	res := d.Dispatch(context.Background(), in)
	if res.Status != domain.StatusPremiumRequired {
		t.Fatalf("status: %+v", res)
	}
	if res.Feature != gate.FeatureMonteCarlo {
		t.Fatalf("feature: %q", res.Feature)
	}
	if n := sender.calls.Load(); n != 0 {
		t.Fatalf("gate rejection must not reach the network: %d calls", n)
	}
}

func TestDispatch_ValidationStopsBeforeTierProbe(t *testing.T) {
	var probes atomic.Int32
	tiers := gate.NewTierCache(func(ctx context.Context) (domain.Tier, error) {
		probes.Add(1)
		return domain.TierDemo, nil
	}, testLogger())
	sender := &fakeSender{}
	d := New(tiers, sender, testLogger())

	res := d.Dispatch(context.Background(), spendInput(12, 100_000))
	if res.Status != domain.StatusValidationError || res.Field != "current_age" {
		t.Fatalf("got %+v", res)
	}
	if probes.Load() != 0 || sender.calls.Load() != 0 {
		t.Fatal("invalid input must not trigger any remote activity")
	}
}

func TestDispatch_InvalidTierSurfacesWithoutRemoteCall(t *testing.T) {
	sender := &fakeSender{}
	d := New(staticTier(domain.TierInvalid), sender, testLogger())

	res := d.Dispatch(context.Background(), spendInput(60, 500_000))
	if res.Status != domain.StatusRemoteError || res.Code != "unauthorized" {
		t.Fatalf("got %+v", res)
	}
	if n := sender.calls.Load(); n != 0 {
		t.Fatalf("expected no remote calls, got %d", n)
	}
}

func TestDispatch_AuthFailureReprobesOnceAndRetries(t *testing.T) {
	var probes atomic.Int32
	tiers := gate.NewTierCache(func(ctx context.Context) (domain.Tier, error) {
		probes.Add(1)
		return domain.TierPremium, nil
	}, testLogger())

	sender := &fakeSender{responses: []sendResult{
		{err: &remote.AuthError{StatusCode: 401}},
		{resp: &remote.Response{StatusCode: 200, Body: []byte(`{"max_spend_monthly":3000}`)}},
	}}
	d := New(tiers, sender, testLogger())

	res := d.Dispatch(context.Background(), spendInput(60, 500_000))
	if res.Status != domain.StatusOK {
		t.Fatalf("expected recovery after reprobe, got %+v", res)
	}
	// One probe for the gate, one re-probe after the 401.
	if n := probes.Load(); n != 2 {
		t.Fatalf("expected 2 probes, got %d", n)
	}
	if n := sender.calls.Load(); n != 2 {
		t.Fatalf("expected the request repeated once, got %d calls", n)
	}
}

func TestDispatch_AuthFailureWithRotatedInvalidKey(t *testing.T) {
	var probes atomic.Int32
	tiers := gate.NewTierCache(func(ctx context.Context) (domain.Tier, error) {
		if probes.Add(1) == 1 {
			return domain.TierPremium, nil
		}
		return domain.TierInvalid, nil
	}, testLogger())

	sender := &fakeSender{responses: []sendResult{
		{err: &remote.AuthError{StatusCode: 401}},
	}}
	d := New(tiers, sender, testLogger())

	res := d.Dispatch(context.Background(), spendInput(60, 500_000))
	if res.Status != domain.StatusRemoteError || res.Code != "unauthorized" {
		t.Fatalf("got %+v", res)
	}
	if n := sender.calls.Load(); n != 1 {
		t.Fatalf("an invalid re-probed key must not repeat the request: %d calls", n)
	}
	if n := probes.Load(); n != 2 {
		t.Fatalf("expected exactly one re-probe, got %d probes total", n)
	}
}

func TestDispatch_ServerDeclaredPremiumNormalized(t *testing.T) {
	// The gate passed (premium tier as cached), but the service disagrees.
	sender := &fakeSender{responses: []sendResult{
		{resp: &remote.Response{
			StatusCode: 402,
			Body:       []byte(`{"code":"premium_required","feature":"monte-carlo","message":"upgrade required"}`),
		}},
	}}
	d := New(staticTier(domain.TierPremium), sender, testLogger())

	in := scenario.Input{
		Operation:    domain.OpMonteCarlo,
		Primary:      scenario.PersonInput{CurrentAge: 60, TotalSavings: 500_000},
		MonthlySpend: 4_000,
	}
	res := d.Dispatch(context.Background(), in)
	if res.Status != domain.StatusPremiumRequired || res.Feature != "monte-carlo" {
		t.Fatalf("got %+v", res)
	}
}

func TestDispatch_TimeoutNormalized(t *testing.T) {
	sender := &fakeSender{responses: []sendResult{
		{err: context.DeadlineExceeded},
	}}
	d := New(staticTier(domain.TierPremium), sender, testLogger())

	in := scenario.Input{
		Operation:    domain.OpMonteCarlo,
		Primary:      scenario.PersonInput{CurrentAge: 60, TotalSavings: 500_000},
		MonthlySpend: 4_000,
	}
	res := d.Dispatch(context.Background(), in)
	if res.Status != domain.StatusTimeout {
		t.Fatalf("got %+v", res)
	}
}

func TestDispatch_CoupleScenario(t *testing.T) {
	sender := &fakeSender{responses: []sendResult{
		{resp: &remote.Response{StatusCode: 200, Body: []byte(`{"rows":[]}`)}},
	}}
	d := New(staticTier(domain.TierPremium), sender, testLogger())

	in := scenario.Input{
		Operation:    domain.OpDetailedProjection,
		Primary:      scenario.PersonInput{CurrentAge: 58, TotalSavings: 1_000_000},
		Spouse:       &scenario.PersonInput{CurrentAge: 60},
		MonthlySpend: 4_800,
	}
	res := d.Dispatch(context.Background(), in)
	if res.Status != domain.StatusOK {
		t.Fatalf("got %+v", res)
	}
	if n := sender.calls.Load(); n != 1 {
		t.Fatalf("expected one remote call, got %d", n)
	}
}
