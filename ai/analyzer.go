package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gopivot/internal/errors"
	"gopivot/models"
	"gopivot/ports"
)

// Analyzer implements ports.StageAnalyzer on top of typed structured clients,
// one per stage schema.
type Analyzer struct {
	reformClient     *StructuredClient[models.ReformulationOutput]
	r1Client         *StructuredClient[models.R1Output]
	refinementClient *StructuredClient[models.RefinementOutput]
}

// NewAnalyzer creates the stage analyzer from AI configuration.
func NewAnalyzer(config *models.AIConfig) *Analyzer {
	return &Analyzer{
		reformClient:     NewStructuredClient[models.ReformulationOutput](config),
		r1Client:         NewStructuredClient[models.R1Output](config),
		refinementClient: NewStructuredClient[models.RefinementOutput](config),
	}
}

// AnalyzeReformulation requests a gated reformulation of a problem or vision
// draft.
func (a *Analyzer) AnalyzeReformulation(ctx context.Context, req ports.ReformulationRequest) (*models.ReformulationOutput, error) {
	system := reformulationSystemPrompt
	if req.RetryNudge != "" {
		system = system + "\n\n" + req.RetryNudge
	}

	var parts []string
	if req.Stage == models.StageProblem {
		parts = append(parts, "STAGE: PROBLEM")
	} else {
		parts = append(parts, "STAGE: VISION")
	}
	parts = append(parts, "", "SUBMITTED TEXT:", req.DraftText, "")
	if req.Stage == models.StageVision && req.ProblemContext != "" {
		parts = append(parts, "CONTEXT (VALIDATED PROBLEM):", req.ProblemContext, "")
	}

	out, err := a.reformClient.GetJsonResponse(ctx, system, strings.Join(parts, "\n"))
	if err != nil {
		return nil, errors.ExternalServiceError("reformulation analysis", err)
	}
	return out, nil
}

// FormalizeR1 requests the strict R1 extraction, in analyze mode when a draft
// is supplied and generate mode otherwise.
func (a *Analyzer) FormalizeR1(ctx context.Context, req ports.R1Request) (*models.R1Output, error) {
	parts := []string{"PROBLEM (validated):", req.ProblemText, ""}
	if req.VisionText != "" {
		parts = append(parts, "VISION (validated):", req.VisionText, "")
	}
	if req.DraftText != "" {
		parts = append(parts, "R1 — SUBMITTED TEXT (to analyze/reformulate):", req.DraftText, "")
	} else {
		parts = append(parts, "R1 — MODE: direct generation (no submitted text).", "")
	}
	if req.ProblemFormal != nil {
		if raw, err := json.Marshal(req.ProblemFormal); err == nil {
			parts = append(parts, fmt.Sprintf("PROBLEM (formal JSON, debug):\n%s", raw))
		}
	}

	out, err := a.r1Client.GetJsonResponse(ctx, r1SystemPrompt, strings.Join(parts, "\n"))
	if err != nil {
		return nil, errors.ExternalServiceError("R1 formalization", err)
	}
	return out, nil
}

// AnalyzeRefinement requests the delta extraction for an R2+ stage.
func (a *Analyzer) AnalyzeRefinement(ctx context.Context, req ports.RefinementRequest) (*models.RefinementOutput, error) {
	parts := []string{"PROBLEM (validated):", req.ProblemText, ""}
	if req.VisionText != "" {
		parts = append(parts, "VISION (validated):", req.VisionText, "")
	}
	parts = append(parts, fmt.Sprintf("%s — SUBMITTED TEXT:", strings.ToUpper(string(req.Stage))), req.DraftText, "")
	if req.R1Formal != nil {
		if raw, err := json.Marshal(req.R1Formal); err == nil {
			parts = append(parts, fmt.Sprintf("R1 (formal JSON, debug):\n%s", raw))
		}
	}

	out, err := a.refinementClient.GetJsonResponse(ctx, refinementSystemPrompt, strings.Join(parts, "\n"))
	if err != nil {
		return nil, errors.ExternalServiceError("refinement analysis", err)
	}
	return out, nil
}
