package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"gopivot/domain/core"
	"gopivot/domain/pivot"
	"gopivot/domain/simulation"
	"gopivot/ports"
)

// SimulationService projects committed pivots and exports trajectories.
type SimulationService struct {
	pivots ports.PivotRepository
}

// NewSimulationService creates a simulation service.
func NewSimulationService(pivots ports.PivotRepository) *SimulationService {
	return &SimulationService{pivots: pivots}
}

// ProjectionResult carries a trajectory and its readiness flag. Ready=false
// with an empty trajectory is an expected state during editing.
type ProjectionResult struct {
	Ready      bool                `json:"ready"`
	Trajectory []simulation.Point  `json:"trajectory,omitempty"`
	Summary    *simulation.Summary `json:"summary,omitempty"`
	FinalStock *float64            `json:"finalStock,omitempty"`
	Model      *pivot.Model        `json:"model,omitempty"`
}

// Project computes the constant-flow trajectory for a vision's pivot.
func (s *SimulationService) Project(ctx context.Context, visionID core.VisionID) (*ProjectionResult, error) {
	model, err := s.pivots.GetPivot(ctx, visionID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return &ProjectionResult{Ready: false}, nil
		}
		return nil, err
	}

	traj := simulation.SimulateConstants(*model)
	return &ProjectionResult{
		Ready:      len(traj) > 0,
		Trajectory: traj,
		Summary:    simulation.Summarize(traj),
		FinalStock: simulation.FinalStock(*model),
		Model:      model,
	}, nil
}

// WriteTrajectoryXLSX writes the trajectory as an Excel workbook: one header
// row, then one row per period.
func (s *SimulationService) WriteTrajectoryXLSX(ctx context.Context, visionID core.VisionID, w io.Writer) error {
	result, err := s.Project(ctx, visionID)
	if err != nil {
		return err
	}
	if !result.Ready {
		return fmt.Errorf("pivot for vision %s is not ready for simulation", visionID)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Sheet1"
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx == -1 {
		idx, err := f.NewSheet(sheet)
		if err != nil {
			return err
		}
		f.SetActiveSheet(idx)
	}

	unit := result.Model.Time.Unit
	stockHeader := result.Model.Stock.Name
	if result.Model.Stock.Unit != "" {
		stockHeader = fmt.Sprintf("%s (%s)", stockHeader, result.Model.Stock.Unit)
	}
	headers := []string{fmt.Sprintf("t (%s)", unit), stockHeader}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	for r, p := range result.Trajectory {
		rowIdx := r + 2
		tCell, _ := excelize.CoordinatesToCellName(1, rowIdx)
		if err := f.SetCellValue(sheet, tCell, p.T); err != nil {
			return err
		}
		sCell, _ := excelize.CoordinatesToCellName(2, rowIdx)
		if err := f.SetCellValue(sheet, sCell, p.Stock); err != nil {
			return err
		}
	}

	return f.Write(w)
}
