package domain

// Operation identifies which remote computation a tool invocation maps to.
type Operation string

const (
	OpSustainableSpend   Operation = "sustainable-spend"
	OpDetailedProjection Operation = "detailed-projection"
	OpMonteCarlo         Operation = "monte-carlo"
	OpListParameters     Operation = "list-parameters"
)

// ReadStyle reports whether the operation is cheap and idempotent on the
// remote side, which makes it safe to retry on transient failures.
func (op Operation) ReadStyle() bool {
	switch op {
	case OpSustainableSpend, OpDetailedProjection, OpListParameters:
		return true
	}
	return false
}

// RequiresPhases reports whether the remote computation needs at least one
// expense phase. Sustainable-spend lets the remote service solve for the
// spending level, so it carries no explicit phase.
func (op Operation) RequiresPhases() bool {
	return op == OpDetailedProjection || op == OpMonteCarlo
}

// AccountAllocation holds per-account balances for one person. Balances are
// in today's dollars; the RRSP/TFSA/NonRegistered trio must sum to the
// person's declared total savings within one cent when both are supplied.
type AccountAllocation struct {
	RRSP          float64 `json:"rrsp"`
	TFSA          float64 `json:"tfsa"`
	NonRegistered float64 `json:"non_registered"`
	LIRA          float64 `json:"lira"`
}

// Sum returns the splittable portion of the allocation (RRSP + TFSA +
// non-registered). LIRA is locked-in and declared separately, so it does not
// count against total savings.
func (a AccountAllocation) Sum() float64 {
	return a.RRSP + a.TFSA + a.NonRegistered
}

// Total returns every balance the person holds, including locked-in funds.
func (a AccountAllocation) Total() float64 {
	return a.Sum() + a.LIRA
}

// IsZero reports whether no explicit balance was supplied.
func (a AccountAllocation) IsZero() bool {
	return a.RRSP == 0 && a.TFSA == 0 && a.NonRegistered == 0
}

// EventKind classifies an additional cash-flow event.
type EventKind string

const (
	EventIncome  EventKind = "income"
	EventExpense EventKind = "expense"
)

// IncomeEvent is a one-time or recurring cash flow that starts at a given
// age (e.g. an inheritance, rental income, a planned renovation).
type IncomeEvent struct {
	AtAge        int       `json:"at_age"`
	Amount       float64   `json:"amount"`
	Kind         EventKind `json:"kind"`
	Recurring    bool      `json:"recurring"`
	TaxTreatment string    `json:"tax_treatment"` // non_taxable | employment | self_employment
	CPIIndexed   bool      `json:"is_cpi_indexed"`
}

// ExpensePhase is a time-bounded spending segment. ChangePct is applied
// annually and compounds over the duration, relative to the previous year's
// level. DurationYears == 0 marks the final open-ended phase, which extends
// to life expectancy; it is only valid in last position.
type ExpensePhase struct {
	StartOffset   int     `json:"start_offset"` // years from retirement
	DurationYears int     `json:"duration_years"`
	ChangePct     float64 `json:"expense_change_pct"`
	Label         string  `json:"label,omitempty"` // active | slowing | stable
}

// Person holds one individual's facts. All age fields are in whole years.
type Person struct {
	Name            string            `json:"name"`
	CurrentAge      int               `json:"current_age"`
	RetirementAge   int               `json:"retirement_age"`
	DeathAge        int               `json:"death_age"`
	TotalSavings    float64           `json:"total_savings"`
	Accounts        AccountAllocation `json:"accounts"`
	NonRegACB       *float64          `json:"non_reg_acb,omitempty"`
	CPPStartAge     int               `json:"cpp_start_age"`
	OASStartAge     int               `json:"oas_start_age"`
	DBEnabled       bool              `json:"db_enabled"`
	DBPensionIncome float64           `json:"db_pension_income"`
	DBStartAge      int               `json:"db_start_age"`
	Events          []IncomeEvent     `json:"events,omitempty"`
}

// ScenarioRequest is the complete set of facts for one remote computation.
// It is assembled fresh per tool call and immutable once handed to the
// request builder.
type ScenarioRequest struct {
	Operation Operation `json:"operation"`
	Province  string    `json:"province"`

	Primary Person  `json:"primary"`
	Spouse  *Person `json:"spouse,omitempty"`

	// Couple-only knobs; meaningful only when Spouse is set.
	IncomeSplit        bool    `json:"income_split"`
	SurvivorBenefit    bool    `json:"survivor_benefit"`
	SurvivorExpensePct float64 `json:"survivor_expense_percent"`
	AllocationPct      float64 `json:"allocation"` // % of expenses covered by primary

	// MonthlySpend is the target spending level for projection and
	// Monte Carlo operations. Sustainable-spend solves for it instead.
	MonthlySpend float64 `json:"monthly_spend,omitempty"`

	ExpensePhases []ExpensePhase `json:"expense_phases,omitempty"`
}

// IsCouple reports whether the scenario covers two people.
func (s *ScenarioRequest) IsCouple() bool {
	return s.Spouse != nil
}

// People returns the primary and, when present, the spouse.
func (s *ScenarioRequest) People() []*Person {
	if s.Spouse != nil {
		return []*Person{&s.Primary, s.Spouse}
	}
	return []*Person{&s.Primary}
}
