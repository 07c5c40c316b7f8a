// Package simulation projects the stock trajectory for the one supported
// model shape: a single stock with piecewise-constant net flow over a fixed
// integer horizon.
package simulation

import (
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"

	"gopivot/domain/pivot"
)

// Point is one sample of the projected trajectory.
type Point struct {
	T     int     `json:"t"`
	Stock float64 `json:"stock"`
}

// Summary aggregates a trajectory for display surfaces.
type Summary struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Final float64 `json:"final"`
}

// SimulateConstants returns the stock trajectory for t = 0..horizon
// (horizon+1 points). When the model is not ready the result is empty; "not
// ready" is an expected state during editing, not an error.
func SimulateConstants(m pivot.Model) []Point {
	if !pivot.CanSimulateConstants(m) {
		return nil
	}

	net := floats.Sum(flowValues(m.Inflows)) - floats.Sum(flowValues(m.Outflows))

	horizon := m.Time.Horizon
	traj := make([]Point, 0, horizon+1)
	s := *m.Stock.Initial
	traj = append(traj, Point{T: 0, Stock: s})
	for t := 1; t <= horizon; t++ {
		s += net
		traj = append(traj, Point{T: t, Stock: s})
	}
	return traj
}

// FinalStock returns the last trajectory point's stock, or nil when the model
// is not ready.
func FinalStock(m pivot.Model) *float64 {
	traj := SimulateConstants(m)
	if len(traj) == 0 {
		return nil
	}
	final := traj[len(traj)-1].Stock
	return &final
}

// Summarize computes min/max/mean/final over a trajectory. Returns nil for an
// empty trajectory.
func Summarize(traj []Point) *Summary {
	if len(traj) == 0 {
		return nil
	}
	values := make([]float64, len(traj))
	for i, p := range traj {
		values[i] = p.Stock
	}

	min, _ := stats.Min(values)
	max, _ := stats.Max(values)
	mean, _ := stats.Mean(values)

	return &Summary{
		Min:   min,
		Max:   max,
		Mean:  mean,
		Final: values[len(values)-1],
	}
}

func flowValues(flows []pivot.Flow) []float64 {
	values := make([]float64, 0, len(flows))
	for _, f := range flows {
		if f.Value != nil {
			values = append(values, *f.Value)
		}
	}
	return values
}
