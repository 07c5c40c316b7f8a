// Package pivot defines the structured decision model built up from
// refinement stage R1 onward. The model is the single structured source used
// to (a) simulate when values allow it, (b) give short context to the
// analyzer, and (c) display the state of the formalization.
//
// Problem and Vision stay free text and live outside the pivot. Rejected
// refinement attempts are never stored: only what the user explicitly
// accepted survives in the validated-refinement log.
package pivot

import (
	"gopivot/domain/core"
)

// TimeUnit is the period unit of the simulation horizon.
type TimeUnit string

const (
	UnitDay   TimeUnit = "day"
	UnitWeek  TimeUnit = "week"
	UnitMonth TimeUnit = "month"
	UnitYear  TimeUnit = "year"
)

// InitialMode governs whether later stages may change the initial stock value.
type InitialMode string

const (
	InitialFixed    InitialMode = "fixed"
	InitialVariable InitialMode = "variable"
)

// Stock is the single quantity being tracked.
type Stock struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
	// Initial is nil while the value is not yet determined.
	Initial     *float64    `json:"initial"`
	InitialMode InitialMode `json:"initialMode"`
}

// Flow is a constant rate applied uniformly over the horizon. Value is nil
// while not yet determined.
type Flow struct {
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
}

// Time is the simulation horizon: a positive period count and its unit.
type Time struct {
	Horizon int      `json:"horizon"`
	Unit    TimeUnit `json:"unit"`
}

// Model is the accumulated formal model, created when R1 is committed and
// mutated only through ApplyDelta driven by confirmed refinement records.
type Model struct {
	Version string `json:"version"`
	// VisionID ties the model to its owning vision.
	VisionID core.VisionID `json:"visionId,omitempty"`

	Stock Stock `json:"stock"`
	Time  Time  `json:"time"`

	Inflows  []Flow `json:"inflows"`
	Outflows []Flow `json:"outflows"`

	// Equations are advisory free text, never executed.
	Equations []string `json:"equations"`

	// ValidatedRefinements is the ordered, append-only log of accepted
	// refinements.
	ValidatedRefinements []RefinementRecord `json:"validatedRefinements"`
}

// FlowSide selects which flow list a value update targets.
type FlowSide string

const (
	SideIn  FlowSide = "in"
	SideOut FlowSide = "out"
)

// FlowAdd names a flow to add, with an optional constant value.
type FlowAdd struct {
	Name  string   `json:"name"`
	Value *float64 `json:"value,omitempty"`
}

// FlowValueUpdate sets the value of an existing flow by name.
type FlowValueUpdate struct {
	Side  FlowSide `json:"side"`
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
}

// Delta is a partial, all-optional update a refinement may apply. Absent
// fields mean "no change".
type Delta struct {
	// SetStockInitial updates the initial stock value when non-nil.
	// ClearStockInitial returns the value to "not yet determined".
	SetStockInitial   *float64 `json:"setStockInitial,omitempty"`
	ClearStockInitial bool     `json:"clearStockInitial,omitempty"`

	AddInflows  []FlowAdd `json:"addInflows,omitempty"`
	AddOutflows []FlowAdd `json:"addOutflows,omitempty"`

	SetFlowValues []FlowValueUpdate `json:"setFlowValues,omitempty"`

	// Horizon and time unit are in principle fixed at R1, but a later
	// refinement may still adjust them if the user decides to.
	SetHorizon  *int      `json:"setHorizon,omitempty"`
	SetTimeUnit *TimeUnit `json:"setTimeUnit,omitempty"`

	AddEquations []string `json:"addEquations,omitempty"`
}

// IsEmpty reports whether the delta changes nothing.
func (d Delta) IsEmpty() bool {
	return d.SetStockInitial == nil &&
		!d.ClearStockInitial &&
		len(d.AddInflows) == 0 &&
		len(d.AddOutflows) == 0 &&
		len(d.SetFlowValues) == 0 &&
		d.SetHorizon == nil &&
		d.SetTimeUnit == nil &&
		len(d.AddEquations) == 0
}

// RefinementRecord is one accepted refinement: the literal validated text and
// the delta that was applied. Once appended it is never edited or removed
// except by deleting the owning vision.
type RefinementRecord struct {
	ID        core.RefinementID `json:"id"`
	Text      string            `json:"text"`
	Delta     Delta             `json:"delta"`
	CreatedAt core.Timestamp    `json:"createdAt"`
}

// R1Input carries the fields needed to create a model at R1. Values are
// optional; structure is not.
type R1Input struct {
	VisionID core.VisionID

	StockName string
	StockUnit string

	InflowNames  []string
	OutflowNames []string

	Horizon  int
	TimeUnit TimeUnit

	StockInitial     *float64
	StockInitialMode InitialMode
	InflowValues     map[string]*float64
	OutflowValues    map[string]*float64
}
