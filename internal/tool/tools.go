// Package tool defines the four MCP tools the bridge exposes and translates
// their raw arguments into partial scenarios for the dispatcher. Every tool
// returns the same JSON result envelope; failures are structured results,
// never protocol errors, so a bad argument can't take the transport down.
package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"planbridge/internal/dispatch"
	"planbridge/internal/domain"
	"planbridge/internal/scenario"
)

// Register adds all bridge tools to the MCP server.
func Register(s *server.MCPServer, d *dispatch.Dispatcher, logger *slog.Logger) {
	s.AddTool(sustainableSpendTool(), handler(d, logger, domain.OpSustainableSpend))
	s.AddTool(detailedCashflowTool(), handler(d, logger, domain.OpDetailedProjection))
	s.AddTool(monteCarloRiskTool(), handler(d, logger, domain.OpMonteCarlo))
	s.AddTool(listParametersTool(), handler(d, logger, domain.OpListParameters))
}

func sustainableSpendTool() mcp.Tool {
	return mcp.NewTool("sustainable_spend",
		append([]mcp.ToolOption{
			mcp.WithDescription("Calculate the maximum monthly amount a person (and optional spouse) " +
				"can sustainably spend in retirement, after tax and inflation-adjusted in today's dollars. " +
				"Minimal input: current_age and total_savings; everything else is defaulted sensibly."),
		}, scenarioOptions()...)...,
	)
}

func detailedCashflowTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Produce a detailed year-by-year retirement cash-flow projection for a " +
			"target monthly spending level: account balances, withdrawals, taxes, and government benefits."),
		mcp.WithNumber("monthly_spend",
			mcp.Required(),
			mcp.Description("Target monthly spending in retirement, in today's dollars.")),
	}, scenarioOptions()...)
	return mcp.NewTool("detailed_cashflow", opts...)
}

func monteCarloRiskTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Run a Monte Carlo simulation of the retirement plan and report the " +
			"probability the money lasts to life expectancy. Premium keys only; the simulation takes " +
			"5-15 seconds on the computation service."),
		mcp.WithNumber("monthly_spend",
			mcp.Required(),
			mcp.Description("Target monthly spending in retirement, in today's dollars.")),
	}, scenarioOptions()...)
	return mcp.NewTool("monte_carlo_risk", opts...)
}

func listParametersTool() mcp.Tool {
	return mcp.NewTool("list_parameters",
		mcp.WithDescription("List the scenario parameters, account types, provinces, and model "+
			"assumptions the retirement computation service supports."),
	)
}

// scenarioOptions is the shared argument schema for every computation tool.
func scenarioOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithNumber("current_age",
			mcp.Required(),
			mcp.Description("Age today, in whole years (18-110).")),
		mcp.WithNumber("total_savings",
			mcp.Description("Lump sum of retirement savings. Split across accounts automatically "+
				"unless explicit per-account balances are provided.")),
		mcp.WithNumber("retirement_age",
			mcp.Description("Desired retirement age. Defaults to 65, or current_age if older.")),
		mcp.WithNumber("death_age",
			mcp.Description("Life-expectancy age for planning. Defaults to 92.")),
		mcp.WithString("name",
			mcp.Description("Name of the primary person, used in the result narrative.")),
		mcp.WithString("province",
			mcp.Description("Canadian province or territory code for tax purposes, e.g. 'ON', 'BC'. Defaults to 'ON'.")),
		mcp.WithNumber("savings_rrsp",
			mcp.Description("Explicit RRSP balance. Overrides the automatic split.")),
		mcp.WithNumber("savings_tfsa",
			mcp.Description("Explicit TFSA balance. Overrides the automatic split.")),
		mcp.WithNumber("savings_non_reg",
			mcp.Description("Explicit non-registered balance. Overrides the automatic split.")),
		mcp.WithNumber("lira",
			mcp.Description("Locked-in retirement account balance, declared separately from total_savings.")),
		mcp.WithNumber("non_reg_acb",
			mcp.Description("Adjusted cost base of the non-registered account, for capital-gains tax. "+
				"Defaults to 90% of the balance.")),
		mcp.WithNumber("cpp_start_age",
			mcp.Description("Age to start CPP (60-70). Defaults to 65.")),
		mcp.WithNumber("oas_start_age",
			mcp.Description("Age to start OAS (65-70). Defaults to 65.")),
		mcp.WithBoolean("db_enabled",
			mcp.Description("Primary person has a defined-benefit pension.")),
		mcp.WithNumber("db_pension_income",
			mcp.Description("Annual defined-benefit pension income at its start age.")),
		mcp.WithNumber("db_start_age",
			mcp.Description("Age the defined-benefit pension starts. Defaults to 65.")),
		mcp.WithArray("income_events",
			mcp.Description("Additional income/expense events for the primary person. Premium keys only."),
			mcp.Items(eventItemSchema())),
		mcp.WithArray("expense_phases",
			mcp.Description("Spending phases, e.g. [{\"duration_years\":10,\"expense_change_pct\":-2}]. "+
				"The change compounds annually within each phase; a zero duration marks the final "+
				"open-ended phase. More than one phase requires a premium key."),
			mcp.Items(phaseItemSchema())),
		mcp.WithNumber("spouse_age",
			mcp.Description("Provide this to model a couple.")),
		mcp.WithString("spouse_name",
			mcp.Description("Name of the spouse.")),
		mcp.WithNumber("spouse_retirement_age",
			mcp.Description("Spouse's retirement age. Defaults to the primary's.")),
		mcp.WithNumber("spouse_death_age",
			mcp.Description("Spouse's life-expectancy age. Defaults to 92.")),
		mcp.WithNumber("spouse_total_savings",
			mcp.Description("Spouse's lump-sum savings. When omitted for a couple, total_savings is split evenly.")),
		mcp.WithNumber("spouse_savings_rrsp", mcp.Description("Spouse's explicit RRSP balance.")),
		mcp.WithNumber("spouse_savings_tfsa", mcp.Description("Spouse's explicit TFSA balance.")),
		mcp.WithNumber("spouse_savings_non_reg", mcp.Description("Spouse's explicit non-registered balance.")),
		mcp.WithNumber("spouse_lira", mcp.Description("Spouse's locked-in account balance.")),
		mcp.WithArray("spouse_income_events",
			mcp.Description("Additional income/expense events for the spouse. Premium keys only."),
			mcp.Items(eventItemSchema())),
		mcp.WithBoolean("income_split",
			mcp.Description("Enable pension income splitting. Defaults to true for couples.")),
		mcp.WithBoolean("survivor_benefit",
			mcp.Description("Continue survivor benefits when one spouse passes. Defaults to true for couples.")),
		mcp.WithNumber("survivor_expense_percent",
			mcp.Description("Percent of household expenses remaining after one spouse passes. Defaults to 100.")),
		mcp.WithNumber("allocation",
			mcp.Description("For couples: percent of household expenses covered by the primary person. Defaults to 50.")),
	}
}

func eventItemSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"at_age":         map[string]any{"type": "number", "description": "Age at which the event triggers."},
			"amount":         map[string]any{"type": "number", "description": "Annual amount in today's dollars."},
			"kind":           map[string]any{"type": "string", "enum": []string{"income", "expense"}},
			"recurring":      map[string]any{"type": "boolean", "description": "Repeats every year from at_age."},
			"tax_treatment":  map[string]any{"type": "string", "enum": []string{"non_taxable", "employment", "self_employment"}},
			"is_cpi_indexed": map[string]any{"type": "boolean"},
		},
		"required": []string{"at_age", "amount"},
	}
}

func phaseItemSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration_years":     map[string]any{"type": "number", "description": "Phase length; 0 = to life expectancy (final phase only)."},
			"expense_change_pct": map[string]any{"type": "number", "description": "Annual spending change within the phase, compounding."},
			"label":              map[string]any{"type": "string", "description": "e.g. active, slowing, stable."},
		},
		"required": []string{"duration_years"},
	}
}

// handler adapts one operation to the MCP call signature. The envelope is
// always valid JSON; only a marshalling failure (programmer error) surfaces
// as a protocol-level tool error.
func handler(d *dispatch.Dispatcher, logger *slog.Logger, op domain.Operation) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		in := parseScenario(request.GetArguments(), op)
		result := d.Dispatch(ctx, in)

		body, err := json.Marshal(result)
		if err != nil {
			logger.Error("cannot marshal invocation result", "operation", op, "err", err)
			return mcp.NewToolResultError("internal: cannot marshal result"), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

// parseScenario maps raw tool arguments onto the engine's partial input.
// Unknown keys are ignored; type coercion is lenient by design.
func parseScenario(args map[string]any, op domain.Operation) scenario.Input {
	in := scenario.Input{
		Operation: op,
		Province:  argString(args, "province"),
		Primary: scenario.PersonInput{
			Name:            argString(args, "name"),
			CurrentAge:      argInt(args, "current_age"),
			RetirementAge:   argInt(args, "retirement_age"),
			DeathAge:        argInt(args, "death_age"),
			TotalSavings:    argFloat(args, "total_savings"),
			RRSP:            argFloat(args, "savings_rrsp"),
			TFSA:            argFloat(args, "savings_tfsa"),
			NonRegistered:   argFloat(args, "savings_non_reg"),
			LIRA:            argFloat(args, "lira"),
			NonRegACB:       argFloatPtr(args, "non_reg_acb"),
			CPPStartAge:     argInt(args, "cpp_start_age"),
			OASStartAge:     argInt(args, "oas_start_age"),
			DBEnabled:       argBool(args, "db_enabled"),
			DBPensionIncome: argFloat(args, "db_pension_income"),
			DBStartAge:      argInt(args, "db_start_age"),
			Events:          argEvents(args, "income_events"),
		},
		IncomeSplit:        argBoolPtr(args, "income_split"),
		SurvivorBenefit:    argBoolPtr(args, "survivor_benefit"),
		SurvivorExpensePct: argFloat(args, "survivor_expense_percent"),
		AllocationPct:      argFloat(args, "allocation"),
		MonthlySpend:       argFloat(args, "monthly_spend"),
		ExpensePhases:      argPhases(args, "expense_phases"),
	}

	if has(args, "spouse_age") {
		in.Spouse = &scenario.PersonInput{
			Name:          argString(args, "spouse_name"),
			CurrentAge:    argInt(args, "spouse_age"),
			RetirementAge: argInt(args, "spouse_retirement_age"),
			DeathAge:      argInt(args, "spouse_death_age"),
			TotalSavings:  argFloat(args, "spouse_total_savings"),
			RRSP:          argFloat(args, "spouse_savings_rrsp"),
			TFSA:          argFloat(args, "spouse_savings_tfsa"),
			NonRegistered: argFloat(args, "spouse_savings_non_reg"),
			LIRA:          argFloat(args, "spouse_lira"),
			Events:        argEvents(args, "spouse_income_events"),
		}
	}
	return in
}
