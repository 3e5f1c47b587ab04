package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"

	"planbridge/internal/domain"
)

// spendPayload is the agent-facing shape for sustainable-spend results,
// wrapping the remote number with a human-readable narrative the agent can
// relay verbatim.
type spendPayload struct {
	MaxMonthlySpend float64       `json:"max_monthly_spend"`
	Currency        string        `json:"currency"`
	Mode            string        `json:"mode"`
	Analysis        spendAnalysis `json:"analysis"`
	Narrative       string        `json:"narrative"`
}

type spendAnalysis struct {
	PrimaryTotal float64 `json:"p1_total"`
	SpouseTotal  float64 `json:"p2_total"`
	MonthlySpend float64 `json:"monthly_spend"`
}

// decorateSpend rewrites a raw /calculate-max-spend payload into the
// narrative envelope. If the payload doesn't carry the expected field it is
// passed through untouched rather than dropped.
func decorateSpend(req *domain.ScenarioRequest, payload json.RawMessage) json.RawMessage {
	var raw struct {
		MaxSpendMonthly *float64 `json:"max_spend_monthly"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil || raw.MaxSpendMonthly == nil {
		return payload
	}
	monthly := *raw.MaxSpendMonthly

	primaryTotal := req.Primary.Accounts.Total()
	var spouseTotal float64
	if req.Spouse != nil {
		spouseTotal = req.Spouse.Accounts.Total()
	}

	mode := "Individual"
	who := fmt.Sprintf("(Individual: %s)", req.Primary.Name)
	if req.IsCouple() {
		mode = "Couple"
		who = fmt.Sprintf("(Couple: %s & %s)", req.Primary.Name, req.Spouse.Name)
	}

	var features []string
	for _, p := range req.People() {
		if p.DBEnabled {
			features = append(features, fmt.Sprintf("DB Pension ($%.0f/yr)", p.DBPensionIncome))
		}
		if p.Accounts.LIRA > 0 {
			features = append(features, "LIRA")
		}
	}
	featureStr := ""
	if len(features) > 0 {
		featureStr = fmt.Sprintf(" [Includes: %s]", strings.Join(features, ", "))
	}

	narrative := fmt.Sprintf(
		"Based on household assets of $%s %s%s, you can sustainably spend approximately "+
			"**$%s per month** (after-tax, inflation-adjusted, in today's dollars) until age %d.",
		formatAmount(primaryTotal+spouseTotal), who, featureStr,
		formatAmount(monthly), req.Primary.DeathAge)

	out, err := json.Marshal(spendPayload{
		MaxMonthlySpend: monthly,
		Currency:        "CAD",
		Mode:            mode,
		Analysis: spendAnalysis{
			PrimaryTotal: primaryTotal,
			SpouseTotal:  spouseTotal,
			MonthlySpend: monthly,
		},
		Narrative: narrative,
	})
	if err != nil {
		return payload
	}
	return out
}

// formatAmount renders a dollar amount with thousands separators and two
// decimals, e.g. 1234567.8 -> "1,234,567.80".
func formatAmount(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	dot := strings.IndexByte(s, '.')
	intPart, frac := s[:dot], s[dot:]

	neg := strings.HasPrefix(intPart, "-")
	if neg {
		intPart = intPart[1:]
	}
	var sb strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	out := sb.String() + frac
	if neg {
		return "-" + out
	}
	return out
}
