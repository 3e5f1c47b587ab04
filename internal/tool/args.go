package tool

import (
	"encoding/json"
	"math"

	"planbridge/internal/domain"
)

// Argument coercion over the raw map the MCP transport delivers. JSON
// numbers arrive as float64; agents occasionally send numerics as strings,
// so the helpers tolerate both.

func argString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func argFloat(args map[string]any, key string) float64 {
	if args == nil {
		return 0
	}
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	}
	return 0
}

func argInt(args map[string]any, key string) int {
	return int(math.Round(argFloat(args, key)))
}

func argBool(args map[string]any, key string) bool {
	if args == nil {
		return false
	}
	v, _ := args[key].(bool)
	return v
}

// argBoolPtr distinguishes "not supplied" from an explicit false, which
// matters for couple defaults like income splitting.
func argBoolPtr(args map[string]any, key string) *bool {
	if args == nil {
		return nil
	}
	if v, ok := args[key].(bool); ok {
		return &v
	}
	return nil
}

func argFloatPtr(args map[string]any, key string) *float64 {
	if args == nil {
		return nil
	}
	if _, ok := args[key]; !ok {
		return nil
	}
	f := argFloat(args, key)
	return &f
}

func has(args map[string]any, key string) bool {
	_, ok := args[key]
	return ok
}

// argPhases parses an expense_phases array of
// {duration_years, expense_change_pct, label} objects.
func argPhases(args map[string]any, key string) []domain.ExpensePhase {
	items, ok := args[key].([]any)
	if !ok {
		return nil
	}
	phases := make([]domain.ExpensePhase, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		phases = append(phases, domain.ExpensePhase{
			StartOffset:   argInt(m, "start_offset"),
			DurationYears: argInt(m, "duration_years"),
			ChangePct:     argFloat(m, "expense_change_pct"),
			Label:         argString(m, "label"),
		})
	}
	return phases
}

// argEvents parses an income/expense event array of
// {at_age, amount, kind, recurring, tax_treatment, is_cpi_indexed} objects.
func argEvents(args map[string]any, key string) []domain.IncomeEvent {
	items, ok := args[key].([]any)
	if !ok {
		return nil
	}
	events := make([]domain.IncomeEvent, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		kind := domain.EventKind(argString(m, "kind"))
		if kind == "" {
			kind = domain.EventIncome
		}
		treatment := argString(m, "tax_treatment")
		if treatment == "" {
			treatment = "non_taxable"
		}
		events = append(events, domain.IncomeEvent{
			AtAge:        argInt(m, "at_age"),
			Amount:       argFloat(m, "amount"),
			Kind:         kind,
			Recurring:    argBool(m, "recurring"),
			TaxTreatment: treatment,
			CPIIndexed:   argBool(m, "is_cpi_indexed"),
		})
	}
	return events
}
