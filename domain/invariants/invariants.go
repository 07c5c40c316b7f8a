// Package invariants compares a committed formal stage against a later
// candidate and reports contradictions. Checks work by value comparison, not
// by forbidding edits: an unchanged field trivially passes, a changed one
// fails with a precise, user-facing diff.
package invariants

import (
	"fmt"
	"strings"

	"gopivot/models"
)

// CheckResult carries the outcome of one or more invariant checks. It is a
// value, never an error: violations are expected and user-facing.
type CheckResult struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors,omitempty"`
}

// Pass is the all-clear result.
func Pass() CheckResult {
	return CheckResult{OK: true}
}

// Fail builds a failing result from violation messages.
func Fail(errors ...string) CheckResult {
	return CheckResult{OK: false, Errors: errors}
}

// CheckFrozenFields verifies that a candidate R1 does not contradict the
// committed base R1. Only fields meaningfully set in the base are compared;
// absence of either side means there is nothing to check yet.
func CheckFrozenFields(base, next *models.R1Formal) CheckResult {
	if base == nil || next == nil {
		return Pass()
	}

	var errors []string

	if base.HorizonYears != nil && next.HorizonYears != nil && *base.HorizonYears != *next.HorizonYears {
		errors = append(errors, fmt.Sprintf("horizon changed: %d → %d (frozen after R1 validation)", *base.HorizonYears, *next.HorizonYears))
	}

	errors = appendNameDiff(errors, "stock name", base.StockName, next.StockName)
	errors = appendNameDiff(errors, "stock unit", base.StockUnit, next.StockUnit)
	errors = appendNameDiff(errors, "initial stock name", base.StockInitialName, next.StockInitialName)
	errors = appendNameDiff(errors, "inflow name", base.InflowName, next.InflowName)
	errors = appendNameDiff(errors, "outflow name", base.OutflowName, next.OutflowName)

	// Initial value is frozen when R1 declared mode "fixed" (the default);
	// "variable" permits changing it.
	mode := base.StockInitialMode
	if mode == "" {
		mode = "fixed"
	}
	if mode == "fixed" && base.StockInitialValue != nil && next.StockInitialValue != nil &&
		*base.StockInitialValue != *next.StockInitialValue {
		errors = append(errors, fmt.Sprintf("initial stock value changed while mode=fixed: %v → %v (frozen)", *base.StockInitialValue, *next.StockInitialValue))
	}

	if len(errors) > 0 {
		return Fail(errors...)
	}
	return Pass()
}

// CheckCapitalConstraint enforces a capital ceiling declared at the problem
// stage: the R1 initial stock may not exceed it. Historical problem payloads
// spelled the field several ways; the first match wins. No declared capital
// means no ceiling.
func CheckCapitalConstraint(problemFormal map[string]any, r1 *models.R1Formal) CheckResult {
	if r1 == nil || r1.StockInitialValue == nil {
		return Pass()
	}

	capital, ok := capitalFrom(problemFormal)
	if !ok {
		return Pass()
	}

	if *r1.StockInitialValue > capital {
		return Fail(fmt.Sprintf("initial stock (%v) exceeds the declared capital (%v)", *r1.StockInitialValue, capital))
	}
	return Pass()
}

// Merge concatenates the violation lists of several results; OK iff every
// input was OK.
func Merge(checks ...CheckResult) CheckResult {
	var errors []string
	for _, c := range checks {
		if !c.OK {
			errors = append(errors, c.Errors...)
		}
	}
	if len(errors) > 0 {
		return Fail(errors...)
	}
	return Pass()
}

func appendNameDiff(errors []string, field, base, next string) []string {
	b := strings.TrimSpace(base)
	n := strings.TrimSpace(next)
	if b != "" && n != "" && b != n {
		errors = append(errors, fmt.Sprintf("%s changed: %q → %q (frozen after R1 validation)", field, b, n))
	}
	return errors
}

// capitalFrom probes the historically-used capital field names.
func capitalFrom(formal map[string]any) (float64, bool) {
	if formal == nil {
		return 0, false
	}
	if v, ok := numberAt(formal, "initialCapital"); ok {
		return v, true
	}
	if v, ok := numberAt(formal, "capital_initial"); ok {
		return v, true
	}
	if nested, ok := formal["initial"].(map[string]any); ok {
		if v, ok := numberAt(nested, "capital"); ok {
			return v, true
		}
	}
	return 0, false
}

func numberAt(m map[string]any, key string) (float64, bool) {
	v, ok := m[key].(float64)
	return v, ok
}
