// Package gate enforces feature-tier entitlement before any remote call.
// The remote service is still authoritative (the normalizer maps its
// entitlement errors too); rejecting here just saves a doomed round trip.
package gate

import (
	"fmt"

	"planbridge/internal/domain"
)

// Premium feature names surfaced in premium-required results.
const (
	FeatureMonteCarlo  = "monte-carlo"
	FeatureIncomeEvent = "income-events"
	FeatureMultiPhase  = "multi-phase-expenses"
)

// Check classifies a completed scenario against the resolved tier. It
// returns nil on pass-through or a premium-required result naming the first
// offending feature. Demo keys get sustainable-spend, detailed-projection
// and list-parameters with a single flat phase and no income events.
func Check(req *domain.ScenarioRequest, tier domain.Tier) *domain.InvocationResult {
	if tier == domain.TierPremium {
		return nil
	}

	if req.Operation == domain.OpMonteCarlo {
		return premium(FeatureMonteCarlo, "Monte Carlo simulation")
	}
	for _, p := range req.People() {
		if len(p.Events) > 0 {
			return premium(FeatureIncomeEvent, "additional income/expense events")
		}
	}
	if len(req.ExpensePhases) > 1 {
		return premium(FeatureMultiPhase, "multiple expense phases")
	}
	return nil
}

func premium(feature, label string) *domain.InvocationResult {
	res := domain.PremiumRequired(feature,
		fmt.Sprintf("%s requires a premium API key; the configured key is demo-tier", label))
	return &res
}
