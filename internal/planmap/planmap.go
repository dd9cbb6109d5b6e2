// Package planmap derives a billing plan from a contact's tag set. The
// mapping is one ordered table evaluated top to bottom: the first rule whose
// tag appears in the set wins, and anything unmatched falls through to the
// default plan. Determinism matters more than cleverness here; re-running an
// import over the same tags must always pick the same plan.
package planmap

import (
	"strings"

	"github.com/creetelo/bmsync/internal/domain"
)

// Rule binds one tag to a plan. Tags are compared case-insensitively after
// trimming.
type Rule struct {
	Tag  string
	Plan domain.Plan
}

// Table is an ordered list of rules plus a default fallback plan.
type Table struct {
	rules    []Rule
	fallback domain.Plan
}

// New builds a table. Rule order IS precedence order.
func New(rules []Rule, fallback domain.Plan) *Table {
	return &Table{rules: rules, fallback: fallback}
}

// Plans the Créetelo membership sells. The annual rule sits above the
// monthly one so a contact carrying both tags resolves to the annual plan.
var (
	AnnualPlan = domain.Plan{
		OID:      "creetelo_anual",
		Name:     "Créetelo Anual",
		Interval: domain.IntervalYear,
		Amount:   39000,
		Currency: "USD",
	}
	MonthlyPlan = domain.Plan{
		OID:      "creetelo_mensual",
		Name:     "Créetelo Mensual",
		Interval: domain.IntervalMonth,
		Amount:   3900,
		Currency: "USD",
	}
)

// Default returns the production mapping table.
func Default() *Table {
	return New([]Rule{
		{Tag: "creetelo_anual", Plan: AnnualPlan},
		{Tag: "créetelo_anual", Plan: AnnualPlan},
		{Tag: "creetelo_mensual", Plan: MonthlyPlan},
		{Tag: "créetelo_mensual", Plan: MonthlyPlan},
	}, MonthlyPlan)
}

// Derive resolves the plan for a tag set. Pure and total: unknown or empty
// tag sets get the fallback plan, never an error.
func (t *Table) Derive(tags []string) domain.Plan {
	normalized := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		normalized[strings.ToLower(strings.TrimSpace(tag))] = struct{}{}
	}
	for _, rule := range t.rules {
		if _, ok := normalized[strings.ToLower(rule.Tag)]; ok {
			return rule.Plan
		}
	}
	return t.fallback
}

// Plans returns every distinct plan the table can produce, fallback
// included. The plans command uses this to ensure they all exist remotely.
func (t *Table) Plans() []domain.Plan {
	seen := make(map[string]struct{})
	var plans []domain.Plan
	for _, rule := range t.rules {
		if _, dup := seen[rule.Plan.OID]; dup {
			continue
		}
		seen[rule.Plan.OID] = struct{}{}
		plans = append(plans, rule.Plan)
	}
	if _, dup := seen[t.fallback.OID]; !dup {
		plans = append(plans, t.fallback)
	}
	return plans
}
