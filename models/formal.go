package models

// R1Formal is the canonical strict schema extracted at refinement stage R1.
// Optional numerics are pointers: nil means "not yet determined", never a
// fabricated default.
type R1Formal struct {
	StockName         string   `json:"stockName"`
	StockUnit         string   `json:"stockUnit"`
	StockInitialName  string   `json:"stockInitialName"`
	StockInitialValue *float64 `json:"stockInitialValue"`
	// StockInitialMode is "fixed" or "variable"; fixed freezes the initial
	// value for all later stages.
	StockInitialMode string   `json:"stockInitialMode"`
	InflowName       string   `json:"inflowName"`
	OutflowName      string   `json:"outflowName"`
	HorizonYears     *int     `json:"horizonYears"`
	Notes            []string `json:"notes"`
}

// RefinementAdditions classifies the new information a refinement text
// brings, as short advisory sentences.
type RefinementAdditions struct {
	FlowDefinitions []string `json:"flowDefinitions"`
	Assumptions     []string `json:"assumptions"`
	Constraints     []string `json:"constraints"`
	ObjectiveHints  []string `json:"objectiveHints"`
}

// Sentences flattens all addition lists in declaration order.
func (a RefinementAdditions) Sentences() []string {
	out := make([]string, 0, len(a.FlowDefinitions)+len(a.Assumptions)+len(a.Constraints)+len(a.ObjectiveHints))
	out = append(out, a.FlowDefinitions...)
	out = append(out, a.Assumptions...)
	out = append(out, a.Constraints...)
	out = append(out, a.ObjectiveHints...)
	return out
}
