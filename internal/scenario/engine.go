// Package scenario expands minimal, conversationally-derived input into a
// complete ScenarioRequest that satisfies the remote API's strict schema.
// Completion is pure and deterministic: the same input always yields a
// bit-identical request, and explicitly supplied fields are never mutated.
package scenario

import (
	"fmt"
	"math"

	"planbridge/internal/domain"
)

// Policy constants for the minimal path. These are fixed, not user-tunable:
// smart defaults exist so an agent can say "age 60, $800k" and get a valid
// scenario, not so it can re-model contribution room.
const (
	MinCurrentAge        = 18
	MaxCurrentAge        = 110
	DefaultRetirementAge = 65
	DefaultDeathAge      = 92
	DefaultCPPStartAge   = 65
	DefaultOASStartAge   = 65
	DefaultProvince      = "ON"

	// TFSALifetimeRoom is the cumulative TFSA contribution room since the
	// program started (2009 through 2025).
	TFSALifetimeRoom = 102_000

	// RRSPAnnualRoom is the 2025 annual RRSP deduction limit, used to index
	// the RRSP ceiling by working years.
	RRSPAnnualRoom  = 32_490
	workingAgeFloor = 18

	// CentTolerance bounds rounding drift when checking that an explicit
	// allocation sums to the declared total savings.
	CentTolerance = 0.01

	DefaultSurvivorExpensePct = 100
	DefaultAllocationPct      = 50
)

// PersonInput is the partial, per-person slice of a tool call's arguments.
// Zero values mean "not supplied" for every field except booleans, which are
// tri-state via pointers where the default is not false.
type PersonInput struct {
	Name            string
	CurrentAge      int
	RetirementAge   int
	DeathAge        int
	TotalSavings    float64
	RRSP            float64
	TFSA            float64
	NonRegistered   float64
	LIRA            float64
	NonRegACB       *float64
	CPPStartAge     int
	OASStartAge     int
	DBEnabled       bool
	DBPensionIncome float64
	DBStartAge      int
	Events          []domain.IncomeEvent
}

// Input is the partial scenario as parsed from tool arguments. At minimum
// the primary person's CurrentAge and TotalSavings (or explicit account
// balances) must be present.
type Input struct {
	Operation domain.Operation
	Province  string

	Primary PersonInput
	Spouse  *PersonInput

	IncomeSplit        *bool
	SurvivorBenefit    *bool
	SurvivorExpensePct float64
	AllocationPct      float64

	MonthlySpend  float64
	ExpensePhases []domain.ExpensePhase
}

// Complete expands in into a fully specified ScenarioRequest. On bad input it
// returns a validation-error result naming the first offending field; the
// request is nil in that case. Completion never contacts the network.
func Complete(in Input) (*domain.ScenarioRequest, *domain.InvocationResult) {
	if res := validateOperation(in.Operation); res != nil {
		return nil, res
	}

	// Parameter discovery needs no scenario at all.
	if in.Operation == domain.OpListParameters {
		return &domain.ScenarioRequest{
			Operation: in.Operation,
			Province:  defaultString(in.Province, DefaultProvince),
		}, nil
	}

	req := &domain.ScenarioRequest{
		Operation:          in.Operation,
		Province:           defaultString(in.Province, DefaultProvince),
		IncomeSplit:        in.Spouse != nil,
		SurvivorBenefit:    in.Spouse != nil,
		SurvivorExpensePct: defaultFloat(in.SurvivorExpensePct, DefaultSurvivorExpensePct),
		AllocationPct:      defaultFloat(in.AllocationPct, DefaultAllocationPct),
		MonthlySpend:       in.MonthlySpend,
	}
	if in.IncomeSplit != nil {
		req.IncomeSplit = *in.IncomeSplit
	}
	if in.SurvivorBenefit != nil {
		req.SurvivorBenefit = *in.SurvivorBenefit
	}

	primaryIn, spouseIn := splitHousehold(in)

	primary, res := completePerson(primaryIn, "")
	if res != nil {
		return nil, res
	}
	req.Primary = *primary

	if spouseIn != nil {
		spouse, res := completePerson(*spouseIn, "spouse_")
		if res != nil {
			return nil, res
		}
		req.Spouse = spouse
	}

	if req.MonthlySpend < 0 {
		return nil, reject("monthly_spend", "must not be negative")
	}
	if in.Operation.RequiresPhases() && req.MonthlySpend <= 0 {
		return nil, reject("monthly_spend", "must be a positive target spending level")
	}

	phases, res := completePhases(in.Operation, in.ExpensePhases)
	if res != nil {
		return nil, res
	}
	req.ExpensePhases = phases

	return req, nil
}

// splitHousehold applies the couple default: when two ages are supplied but
// the spouse has no money of their own and the primary has no explicit
// accounts, the declared total savings is split evenly between them.
func splitHousehold(in Input) (PersonInput, *PersonInput) {
	primary := in.Primary
	if in.Spouse == nil {
		return primary, nil
	}

	spouse := *in.Spouse
	if spouse.Name == "" {
		spouse.Name = "Spouse"
	}
	if spouse.RetirementAge == 0 {
		spouse.RetirementAge = primary.RetirementAge
	}

	explicitPrimary := primary.RRSP != 0 || primary.TFSA != 0 || primary.NonRegistered != 0
	explicitSpouse := spouse.TotalSavings != 0 || spouse.RRSP != 0 || spouse.TFSA != 0 || spouse.NonRegistered != 0
	if !explicitPrimary && !explicitSpouse && primary.TotalSavings > 0 {
		half := roundCents(primary.TotalSavings / 2)
		spouse.TotalSavings = primary.TotalSavings - half
		primary.TotalSavings = half
	}

	return primary, &spouse
}

func completePerson(in PersonInput, prefix string) (*domain.Person, *domain.InvocationResult) {
	if in.CurrentAge < MinCurrentAge || in.CurrentAge > MaxCurrentAge {
		return nil, reject(prefix+"current_age",
			fmt.Sprintf("must be between %d and %d", MinCurrentAge, MaxCurrentAge))
	}
	if in.TotalSavings < 0 {
		return nil, reject(prefix+"total_savings", "must not be negative")
	}
	for _, field := range []struct {
		name string
		val  float64
	}{
		{"savings_rrsp", in.RRSP},
		{"savings_tfsa", in.TFSA},
		{"savings_non_reg", in.NonRegistered},
		{"lira", in.LIRA},
	} {
		if field.val < 0 {
			return nil, reject(prefix+field.name, "must not be negative")
		}
	}

	p := &domain.Person{
		Name:            defaultString(in.Name, "User"),
		CurrentAge:      in.CurrentAge,
		RetirementAge:   in.RetirementAge,
		DeathAge:        defaultInt(in.DeathAge, DefaultDeathAge),
		CPPStartAge:     defaultInt(in.CPPStartAge, DefaultCPPStartAge),
		OASStartAge:     defaultInt(in.OASStartAge, DefaultOASStartAge),
		DBEnabled:       in.DBEnabled,
		DBPensionIncome: in.DBPensionIncome,
		DBStartAge:      defaultInt(in.DBStartAge, DefaultRetirementAge),
		NonRegACB:       in.NonRegACB,
		Events:          in.Events,
	}

	if p.RetirementAge == 0 {
		p.RetirementAge = maxInt(in.CurrentAge, DefaultRetirementAge)
	}
	if p.RetirementAge < in.CurrentAge {
		return nil, reject(prefix+"retirement_age", "must not be before current age")
	}
	if p.DeathAge < p.RetirementAge {
		return nil, reject(prefix+"death_age", "must not be before retirement age")
	}

	accounts, totalSavings, res := completeAccounts(in, prefix)
	if res != nil {
		return nil, res
	}
	p.Accounts = accounts
	p.TotalSavings = totalSavings

	for i, ev := range p.Events {
		if ev.AtAge < p.CurrentAge {
			return nil, reject(fmt.Sprintf("%sevents[%d].at_age", prefix, i),
				"must not be before current age")
		}
		switch ev.Kind {
		case domain.EventIncome, domain.EventExpense:
		default:
			return nil, reject(fmt.Sprintf("%sevents[%d].kind", prefix, i),
				`must be "income" or "expense"`)
		}
	}

	return p, nil
}

// completeAccounts resolves the account split. Explicit balances win and must
// reconcile with any declared total; otherwise the ordered policy applies:
// TFSA up to its lifetime room, RRSP up to an age-indexed ceiling, remainder
// non-registered. An exact ceiling match simply continues to the next bucket.
func completeAccounts(in PersonInput, prefix string) (domain.AccountAllocation, float64, *domain.InvocationResult) {
	explicit := domain.AccountAllocation{
		RRSP:          in.RRSP,
		TFSA:          in.TFSA,
		NonRegistered: in.NonRegistered,
		LIRA:          in.LIRA,
	}

	if !explicit.IsZero() {
		if in.TotalSavings > 0 && math.Abs(explicit.Sum()-in.TotalSavings) > CentTolerance {
			return domain.AccountAllocation{}, 0, reject(prefix+"total_savings",
				fmt.Sprintf("explicit account balances sum to %.2f, not the declared %.2f",
					explicit.Sum(), in.TotalSavings))
		}
		return explicit, explicit.Sum(), nil
	}

	alloc := SplitSavings(in.TotalSavings, in.CurrentAge)
	alloc.LIRA = in.LIRA
	return alloc, in.TotalSavings, nil
}

// SplitSavings applies the ordered allocation policy to a lump sum.
func SplitSavings(total float64, age int) domain.AccountAllocation {
	tfsa := roundCents(math.Min(total, TFSALifetimeRoom))
	remainder := total - tfsa

	rrspCeiling := float64(RRSPAnnualRoom * maxInt(0, age-workingAgeFloor))
	rrsp := roundCents(math.Min(remainder, rrspCeiling))

	return domain.AccountAllocation{
		TFSA:          tfsa,
		RRSP:          rrsp,
		NonRegistered: roundCents(total - tfsa - rrsp),
	}
}

// completePhases validates supplied phases or synthesizes the default one.
// Phases must be contiguous: each start offset equals the previous phase's
// start plus its duration. A zero duration marks the open-ended final phase.
func completePhases(op domain.Operation, phases []domain.ExpensePhase) ([]domain.ExpensePhase, *domain.InvocationResult) {
	if len(phases) == 0 {
		if !op.RequiresPhases() {
			return nil, nil
		}
		return []domain.ExpensePhase{{StartOffset: 0, DurationYears: 0, ChangePct: 0, Label: "stable"}}, nil
	}

	out := make([]domain.ExpensePhase, len(phases))
	offset := 0
	for i, ph := range phases {
		field := fmt.Sprintf("expense_phases[%d]", i)
		if ph.DurationYears < 0 {
			return nil, reject(field+".duration_years", "must not be negative")
		}
		if ph.DurationYears == 0 && i != len(phases)-1 {
			return nil, reject(field+".duration_years", "only the final phase may be open-ended")
		}
		if ph.StartOffset != 0 && ph.StartOffset != offset {
			return nil, reject(field+".start_offset",
				fmt.Sprintf("phases must be contiguous: expected offset %d, got %d", offset, ph.StartOffset))
		}
		out[i] = ph
		out[i].StartOffset = offset
		offset += ph.DurationYears
	}
	return out, nil
}

func validateOperation(op domain.Operation) *domain.InvocationResult {
	switch op {
	case domain.OpSustainableSpend, domain.OpDetailedProjection, domain.OpMonteCarlo, domain.OpListParameters:
		return nil
	}
	return reject("operation", fmt.Sprintf("unknown operation %q", op))
}

func reject(field, reason string) *domain.InvocationResult {
	res := domain.ValidationError(field, reason)
	return &res
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func defaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func defaultFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
