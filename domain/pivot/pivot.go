package pivot

import (
	"math"
	"strings"

	"gopivot/domain/core"
)

// CurrentVersion tags models created by this package.
const CurrentVersion = "v1"

// MaxHorizon caps absurd horizons to keep simulation bounded.
const MaxHorizon = 10000

// NewFromR1 builds the initial model from R1 input. Flow names are trimmed
// and empty-named entries are dropped rather than stored with a placeholder.
func NewFromR1(input R1Input) Model {
	mode := input.StockInitialMode
	if mode == "" {
		mode = InitialFixed
	}

	return Model{
		Version:  CurrentVersion,
		VisionID: input.VisionID,
		Stock: Stock{
			Name:        strings.TrimSpace(input.StockName),
			Unit:        strings.TrimSpace(input.StockUnit),
			Initial:     copyValue(input.StockInitial),
			InitialMode: mode,
		},
		Time: Time{
			Horizon: SanitizeHorizon(input.Horizon),
			Unit:    input.TimeUnit,
		},
		Inflows:              buildFlows(input.InflowNames, input.InflowValues),
		Outflows:             buildFlows(input.OutflowNames, input.OutflowValues),
		Equations:            []string{},
		ValidatedRefinements: []RefinementRecord{},
	}
}

// ApplyDelta returns a new model with the delta applied. The input model is
// never mutated. Order of application: stock initial, horizon, time unit,
// added inflows, added outflows, flow value updates, appended equations.
// Adding a flow whose name already exists is a no-op (name is the dedup key),
// as is setting a value for a name that does not exist.
func ApplyDelta(m Model, d Delta) Model {
	next := clone(m)

	if d.SetStockInitial != nil {
		next.Stock.Initial = copyValue(d.SetStockInitial)
	} else if d.ClearStockInitial {
		next.Stock.Initial = nil
	}

	if d.SetHorizon != nil {
		next.Time.Horizon = SanitizeHorizon(*d.SetHorizon)
	}
	if d.SetTimeUnit != nil {
		next.Time.Unit = *d.SetTimeUnit
	}

	next.Inflows = addFlows(next.Inflows, d.AddInflows)
	next.Outflows = addFlows(next.Outflows, d.AddOutflows)

	for _, upd := range d.SetFlowValues {
		name := strings.TrimSpace(upd.Name)
		if name == "" {
			continue
		}
		list := next.Inflows
		if upd.Side == SideOut {
			list = next.Outflows
		}
		for i := range list {
			if list[i].Name == name {
				list[i].Value = copyValue(upd.Value)
				break
			}
		}
		// Unknown name: ignored. Value updates never create flows.
	}

	for _, eq := range d.AddEquations {
		if s := strings.TrimSpace(eq); s != "" {
			next.Equations = append(next.Equations, s)
		}
	}

	return next
}

// ValidateRefinement stamps the record with the current time, applies its
// delta, and appends it to the validated-refinement log. This is the only
// path by which a refinement record enters the model.
func ValidateRefinement(m Model, id core.RefinementID, text string, d Delta) Model {
	rec := RefinementRecord{
		ID:        id,
		Text:      text,
		Delta:     d,
		CreatedAt: core.Now(),
	}
	applied := ApplyDelta(m, rec.Delta)
	applied.ValidatedRefinements = append(applied.ValidatedRefinements, rec)
	return applied
}

// CanSimulateConstants is the single readiness predicate gating simulation:
// positive horizon, initial stock set, and every flow valued.
func CanSimulateConstants(m Model) bool {
	if m.Time.Horizon <= 0 {
		return false
	}
	if m.Stock.Initial == nil {
		return false
	}
	for _, f := range m.Inflows {
		if f.Value == nil {
			return false
		}
	}
	for _, f := range m.Outflows {
		if f.Value == nil {
			return false
		}
	}
	return true
}

// SanitizeHorizon clamps non-finite or non-positive horizons to 1 and caps
// absurd inputs at MaxHorizon.
func SanitizeHorizon(h int) int {
	if h < 1 {
		return 1
	}
	if h > MaxHorizon {
		return MaxHorizon
	}
	return h
}

// SanitizeHorizonFloat handles horizons arriving from loose JSON payloads.
func SanitizeHorizonFloat(h float64) int {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return 1
	}
	return SanitizeHorizon(int(math.Floor(h)))
}

// ---------------- helpers ----------------

func buildFlows(names []string, values map[string]*float64) []Flow {
	flows := make([]Flow, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		var value *float64
		if values != nil {
			value = copyValue(values[name])
		}
		if containsFlow(flows, name) {
			continue
		}
		flows = append(flows, Flow{Name: name, Value: value})
	}
	return flows
}

func addFlows(existing []Flow, adds []FlowAdd) []Flow {
	for _, f := range adds {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			continue
		}
		if containsFlow(existing, name) {
			continue
		}
		existing = append(existing, Flow{Name: name, Value: copyValue(f.Value)})
	}
	return existing
}

func containsFlow(flows []Flow, name string) bool {
	for _, f := range flows {
		if f.Name == name {
			return true
		}
	}
	return false
}

// clone deep-copies the model so ApplyDelta stays observably pure. Empty
// slices stay empty (not nil) so they serialize as [] rather than null.
func clone(m Model) Model {
	next := m
	next.Stock.Initial = copyValue(m.Stock.Initial)
	next.Inflows = cloneFlows(m.Inflows)
	next.Outflows = cloneFlows(m.Outflows)
	next.Equations = append(make([]string, 0, len(m.Equations)), m.Equations...)
	next.ValidatedRefinements = append(make([]RefinementRecord, 0, len(m.ValidatedRefinements)), m.ValidatedRefinements...)
	return next
}

func cloneFlows(flows []Flow) []Flow {
	out := make([]Flow, len(flows))
	for i, f := range flows {
		out[i] = Flow{Name: f.Name, Value: copyValue(f.Value)}
	}
	return out
}

func copyValue(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
