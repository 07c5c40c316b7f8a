package ports

import (
	"context"

	"gopivot/models"
)

// ReformulationRequest carries the inputs for a free-text stage analysis.
type ReformulationRequest struct {
	Stage     models.StageKind // problem or vision
	DraftText string
	// ProblemContext is the validated problem text, supplied for vision
	// analyses so the analyzer can flag figure drift between stages.
	ProblemContext string
	// RetryNudge is appended to the system instructions on the single bounded
	// retry after a weak reformulation.
	RetryNudge string
}

// R1Request carries the inputs for the R1 formalization.
type R1Request struct {
	DraftText     string // empty means "generate from context"
	ProblemText   string
	ProblemFormal map[string]any
	VisionText    string
}

// RefinementRequest carries the inputs for an R2+ refinement analysis.
type RefinementRequest struct {
	Stage       models.StageKind
	DraftText   string
	ProblemText string
	VisionText  string
	R1Formal    *models.R1Formal
}

// StageAnalyzer is the external text-completion collaborator, treated as an
// untrusted proposer. Any response failing to parse as the stage schema is a
// hard failure of that attempt, never a partial success.
type StageAnalyzer interface {
	AnalyzeReformulation(ctx context.Context, req ReformulationRequest) (*models.ReformulationOutput, error)
	FormalizeR1(ctx context.Context, req R1Request) (*models.R1Output, error)
	AnalyzeRefinement(ctx context.Context, req RefinementRequest) (*models.RefinementOutput, error)
}
