package ports

import (
	"context"

	"gopivot/domain/core"
	"gopivot/domain/pivot"
	"gopivot/models"
)

// ProblemRepository persists the root free-text stage.
type ProblemRepository interface {
	CreateProblem(ctx context.Context, draftText string) (*models.Problem, error)
	GetProblem(ctx context.Context, id core.ProblemID) (*models.Problem, error)
	// CommitProblem stores the validated text and loose formal; all-or-nothing.
	CommitProblem(ctx context.Context, id core.ProblemID, validatedText string, formal []byte) error
	DeleteProblem(ctx context.Context, id core.ProblemID) error
}

// VisionRepository persists visions; deleting a vision cascades to its stage
// records and pivot.
type VisionRepository interface {
	CreateVision(ctx context.Context, problemID core.ProblemID, title, draftText string) (*models.Vision, error)
	GetVision(ctx context.Context, id core.VisionID) (*models.Vision, error)
	ListVisions(ctx context.Context, problemID core.ProblemID) ([]*models.Vision, error)
	CommitVision(ctx context.Context, id core.VisionID, validatedText string) error
	DeleteVision(ctx context.Context, id core.VisionID) error
}

// StageRepository stores committed stage records keyed by
// (problem id, vision id, stage). Load of a missing record returns
// core.ErrStageNotFound.
type StageRepository interface {
	GetStageRecord(ctx context.Context, problemID core.ProblemID, visionID core.VisionID, stage models.StageKind) (*models.StageRecord, error)
	// SaveStageRecord appends or replaces the committed record for the key,
	// synchronously and all-or-nothing.
	SaveStageRecord(ctx context.Context, record *models.StageRecord) error
}

// PivotRepository stores the one pivot a vision owns.
type PivotRepository interface {
	GetPivot(ctx context.Context, visionID core.VisionID) (*pivot.Model, error)
	SavePivot(ctx context.Context, visionID core.VisionID, model pivot.Model) error
}
