package remote

import (
	"fmt"
	"net/http"

	"planbridge/internal/domain"
)

// Remote-owned economic defaults, echoed in the payload the way the
// computation service expects them. The service may override these for
// premium keys; the bridge never does math with them.
const (
	defaultExpectedReturns = 5.0
	defaultCPI             = 2.0
	baseCPPAmount          = 17_196.0 // max annual CPP at 65, 2025
	baseOASAmount          = 8_876.0  // annual OAS at 65, 2025
	baseTFSAAmount         = 7_000.0  // annual new TFSA room
)

// Operation endpoints on the computation service.
const (
	pathMaxSpend   = "/calculate-max-spend"
	pathProjection = "/detailed-projection"
	pathMonteCarlo = "/monte-carlo"
	pathParameters = "/parameters"
	pathKeyInfo    = "/key-info"
)

// Request is a built, operation-specific remote request. Body is nil for
// GET-style operations.
type Request struct {
	Operation domain.Operation
	Method    string
	Path      string
	Body      any
}

// Build serializes a gated scenario into the remote API's request shape.
// It is a pure mapping with no I/O; an error here means a programmer
// invariant was violated upstream, not bad user input.
func Build(req *domain.ScenarioRequest) (*Request, error) {
	if req == nil {
		return nil, fmt.Errorf("remote: nil scenario request")
	}

	switch req.Operation {
	case domain.OpListParameters:
		return &Request{Operation: req.Operation, Method: http.MethodGet, Path: pathParameters}, nil
	case domain.OpSustainableSpend:
		return &Request{Operation: req.Operation, Method: http.MethodPost, Path: pathMaxSpend, Body: computationPayload(req)}, nil
	case domain.OpDetailedProjection:
		return &Request{Operation: req.Operation, Method: http.MethodPost, Path: pathProjection, Body: computationPayload(req)}, nil
	case domain.OpMonteCarlo:
		return &Request{Operation: req.Operation, Method: http.MethodPost, Path: pathMonteCarlo, Body: computationPayload(req)}, nil
	}
	return nil, fmt.Errorf("remote: unknown operation %q", req.Operation)
}

type computationRequest struct {
	Person1            personPayload      `json:"person1_ui"`
	Person2            personPayload      `json:"person2_ui"`
	Inputs             inputsPayload      `json:"inputs"`
	WithdrawalStrategy withdrawalStrategy `json:"withdrawal_strategy"`
}

type personPayload struct {
	Name             string         `json:"name"`
	CurrentAge       int            `json:"current_age"`
	RetirementAge    int            `json:"retirement_age"`
	DeathAge         int            `json:"death_age"`
	RRSP             float64        `json:"rrsp"`
	TFSA             float64        `json:"tfsa"`
	NonRegistered    float64        `json:"non_registered"`
	LIRA             float64        `json:"lira"`
	CostBasis        float64        `json:"cost_basis"`
	CPPStartAge      int            `json:"cpp_start_age"`
	OASStartAge      int            `json:"oas_start_age"`
	BaseCPPAmount    float64        `json:"base_cpp_amount"`
	BaseOASAmount    float64        `json:"base_oas_amount"`
	DBEnabled        bool           `json:"db_enabled"`
	DBPensionIncome  float64        `json:"db_pension_income"`
	DBStartAge       int            `json:"db_start_age"`
	AdditionalEvents []eventPayload `json:"additional_events,omitempty"`
}

type eventPayload struct {
	Year         int     `json:"year"` // age at which the event triggers
	Type         string  `json:"type"`
	Amount       float64 `json:"amount"`
	Recurring    bool    `json:"recurring"`
	CPIIndexed   bool    `json:"is_cpi_indexed"`
	TaxTreatment string  `json:"tax_treatment"`
}

type inputsPayload struct {
	ExpectedReturns    float64        `json:"expected_returns"`
	CPI                float64        `json:"cpi"`
	Province           string         `json:"province"`
	Individual         bool           `json:"individual"`
	IncomeSplit        bool           `json:"income_split"`
	RRIFMinWithdrawal  bool           `json:"rrif_min_withdrawal"`
	Allocation         float64        `json:"allocation"`
	BaseTFSAAmount     float64        `json:"base_tfsa_amount"`
	SurvivorExpensePct float64        `json:"survivor_expense_percent"`
	SurvivorBenefit    bool           `json:"survivor_benefit"`
	MonthlySpend       float64        `json:"monthly_spend,omitempty"`
	ExpensePhases      []phasePayload `json:"expense_phases,omitempty"`
}

type phasePayload struct {
	StartOffset   int     `json:"start_offset"`
	DurationYears int     `json:"duration_years"`
	ChangePct     float64 `json:"expense_change_pct"`
	Label         string  `json:"label,omitempty"`
}

type withdrawalStrategy struct {
	Person1 strategyWeights `json:"person1"`
	Person2 strategyWeights `json:"person2"`
}

type strategyWeights struct {
	Weights []strategyWeight `json:"weights"`
}

type strategyWeight struct {
	Type  string   `json:"type"`
	Order []string `json:"order"`
}

func computationPayload(req *domain.ScenarioRequest) computationRequest {
	p1 := buildPerson(&req.Primary)

	// The computation service requires both person blocks; for an individual
	// scenario person2 mirrors the primary's timeline with zero balances and
	// zero benefits.
	var p2 personPayload
	if req.Spouse != nil {
		p2 = buildPerson(req.Spouse)
	} else {
		p2 = personPayload{
			Name:          "Spouse",
			CurrentAge:    req.Primary.CurrentAge,
			RetirementAge: req.Primary.RetirementAge,
			DeathAge:      req.Primary.DeathAge,
			CPPStartAge:   req.Primary.CPPStartAge,
			OASStartAge:   req.Primary.OASStartAge,
			DBStartAge:    req.Primary.DBStartAge,
		}
	}

	inputs := inputsPayload{
		ExpectedReturns:    defaultExpectedReturns,
		CPI:                defaultCPI,
		Province:           req.Province,
		Individual:         !req.IsCouple(),
		IncomeSplit:        req.IncomeSplit,
		RRIFMinWithdrawal:  false,
		Allocation:         req.AllocationPct,
		BaseTFSAAmount:     baseTFSAAmount,
		SurvivorExpensePct: req.SurvivorExpensePct,
		SurvivorBenefit:    req.SurvivorBenefit,
		MonthlySpend:       req.MonthlySpend,
	}
	for _, ph := range req.ExpensePhases {
		inputs.ExpensePhases = append(inputs.ExpensePhases, phasePayload(ph))
	}

	fallback := strategyWeights{Weights: []strategyWeight{
		{Type: "fallback", Order: []string{"rrsp", "non_registered", "tfsa"}},
	}}

	return computationRequest{
		Person1:            p1,
		Person2:            p2,
		Inputs:             inputs,
		WithdrawalStrategy: withdrawalStrategy{Person1: fallback, Person2: fallback},
	}
}

func buildPerson(p *domain.Person) personPayload {
	out := personPayload{
		Name:            p.Name,
		CurrentAge:      p.CurrentAge,
		RetirementAge:   p.RetirementAge,
		DeathAge:        p.DeathAge,
		RRSP:            p.Accounts.RRSP,
		TFSA:            p.Accounts.TFSA,
		NonRegistered:   p.Accounts.NonRegistered,
		LIRA:            p.Accounts.LIRA,
		CostBasis:       costBasis(p),
		CPPStartAge:     p.CPPStartAge,
		OASStartAge:     p.OASStartAge,
		DBEnabled:       p.DBEnabled,
		DBPensionIncome: p.DBPensionIncome,
		DBStartAge:      p.DBStartAge,
		BaseCPPAmount:   baseCPPAmount,
		BaseOASAmount:   baseOASAmount,
	}
	for _, ev := range p.Events {
		out.AdditionalEvents = append(out.AdditionalEvents, eventPayload{
			Year:         ev.AtAge,
			Type:         string(ev.Kind),
			Amount:       ev.Amount,
			Recurring:    ev.Recurring,
			CPIIndexed:   ev.CPIIndexed,
			TaxTreatment: ev.TaxTreatment,
		})
	}
	return out
}

// costBasis falls back to 90% of the non-registered balance when no adjusted
// cost base was supplied, assuming modest unrealized gains.
func costBasis(p *domain.Person) float64 {
	if p.NonRegACB != nil {
		return *p.NonRegACB
	}
	if p.Accounts.NonRegistered > 0 {
		return p.Accounts.NonRegistered * 0.9
	}
	return 0
}
