package ui

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gopivot/app"
	"gopivot/domain/core"
	"gopivot/domain/pivot"
	"gopivot/models"
)

// writeJSON renders a JSON response
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps domain errors onto HTTP statuses
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case core.IsNotFoundError(err):
		status = http.StatusNotFound
	case core.IsStageLifecycleError(err):
		status = http.StatusConflict
	case errors.Is(err, core.ErrSchemaViolation), errors.Is(err, core.ErrEmptyCompletion):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]any{"ok": false, "error": err.Error()})
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// visionContext resolves a vision and its owning problem id from the URL.
func (a *App) visionContext(r *http.Request) (*models.Vision, error) {
	visionID, err := core.ParseVisionID(chi.URLParam(r, "visionID"))
	if err != nil {
		return nil, err
	}
	return a.visions.GetVision(r.Context(), visionID)
}

// ---------------- problems ----------------

func (a *App) handleCreateProblem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DraftText string `json:"draftText"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	problem, err := a.problems.CreateProblem(r.Context(), body.DraftText)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "problem": problem})
}

func (a *App) handleGetProblem(w http.ResponseWriter, r *http.Request) {
	problemID, err := core.ParseProblemID(chi.URLParam(r, "problemID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	problem, err := a.problems.GetProblem(r.Context(), problemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "problem": problem})
}

func (a *App) handleAnalyzeProblem(w http.ResponseWriter, r *http.Request) {
	problemID, err := core.ParseProblemID(chi.URLParam(r, "problemID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	var body struct {
		DraftText string `json:"draftText"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	result, err := a.refinements.AnalyzeText(r.Context(), app.AnalyzeTextRequest{
		Stage:     models.StageProblem,
		ProblemID: problemID,
		DraftText: body.DraftText,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if !result.OK {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, result)
}

func (a *App) handleCommitProblem(w http.ResponseWriter, r *http.Request) {
	problemID, err := core.ParseProblemID(chi.URLParam(r, "problemID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	var body struct {
		ValidatedText string         `json:"validatedText"`
		Formal        map[string]any `json:"formal"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	record, err := a.refinements.CommitTextStage(r.Context(), app.AnalyzeTextRequest{
		Stage:     models.StageProblem,
		ProblemID: problemID,
	}, body.ValidatedText, body.Formal)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "record": record})
}

// ---------------- visions ----------------

func (a *App) handleCreateVision(w http.ResponseWriter, r *http.Request) {
	problemID, err := core.ParseProblemID(chi.URLParam(r, "problemID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	var body struct {
		Title     string `json:"title"`
		DraftText string `json:"draftText"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	vision, err := a.visions.CreateVision(r.Context(), problemID, body.Title, body.DraftText)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "vision": vision})
}

func (a *App) handleListVisions(w http.ResponseWriter, r *http.Request) {
	problemID, err := core.ParseProblemID(chi.URLParam(r, "problemID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	visions, err := a.visions.ListVisions(r.Context(), problemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "visions": visions})
}

func (a *App) handleAnalyzeVision(w http.ResponseWriter, r *http.Request) {
	vision, err := a.visionContext(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		DraftText string `json:"draftText"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	result, err := a.refinements.AnalyzeText(r.Context(), app.AnalyzeTextRequest{
		Stage:     models.StageVision,
		ProblemID: vision.ProblemID,
		VisionID:  vision.ID,
		DraftText: body.DraftText,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if !result.OK {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, result)
}

func (a *App) handleCommitVision(w http.ResponseWriter, r *http.Request) {
	vision, err := a.visionContext(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		ValidatedText string         `json:"validatedText"`
		Formal        map[string]any `json:"formal"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	record, err := a.refinements.CommitTextStage(r.Context(), app.AnalyzeTextRequest{
		Stage:     models.StageVision,
		ProblemID: vision.ProblemID,
		VisionID:  vision.ID,
	}, body.ValidatedText, body.Formal)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "record": record})
}

func (a *App) handleDeleteVision(w http.ResponseWriter, r *http.Request) {
	vision, err := a.visionContext(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.refinements.DeleteVision(r.Context(), vision.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *App) handleStageLocks(w http.ResponseWriter, r *http.Request) {
	vision, err := a.visionContext(r)
	if err != nil {
		writeError(w, err)
		return
	}
	locks, err := a.refinements.StageLocks(r.Context(), vision.ProblemID, vision.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "locks": locks})
}

// ---------------- formalization stages ----------------

func (a *App) handleAnalyzeR1(w http.ResponseWriter, r *http.Request) {
	vision, err := a.visionContext(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		DraftText string `json:"draftText"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	proposal, err := a.refinements.FormalizeR1(r.Context(), app.FormalizeR1Request{
		ProblemID: vision.ProblemID,
		VisionID:  vision.ID,
		DraftText: body.DraftText,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if !proposal.OK {
		status = http.StatusConflict
	}
	writeJSON(w, status, proposal)
}

func (a *App) handleCommitR1(w http.ResponseWriter, r *http.Request) {
	vision, err := a.visionContext(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		ValidatedText string          `json:"validatedText"`
		Formal        models.R1Formal `json:"formal"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	proposal, err := a.refinements.CommitR1(r.Context(), app.FormalizeR1Request{
		ProblemID: vision.ProblemID,
		VisionID:  vision.ID,
	}, body.ValidatedText, body.Formal)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if !proposal.OK {
		status = http.StatusConflict
	}
	writeJSON(w, status, proposal)
}

func (a *App) handleAnalyzeRefinement(w http.ResponseWriter, r *http.Request) {
	vision, err := a.visionContext(r)
	if err != nil {
		writeError(w, err)
		return
	}
	stage, err := models.ParseStageKind(chi.URLParam(r, "stage"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	var body struct {
		DraftText string `json:"draftText"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	proposal, err := a.refinements.AnalyzeRefinement(r.Context(), app.RefineStageRequest{
		ProblemID: vision.ProblemID,
		VisionID:  vision.ID,
		Stage:     stage,
		DraftText: body.DraftText,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if !proposal.OK {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, proposal)
}

func (a *App) handleCommitRefinement(w http.ResponseWriter, r *http.Request) {
	vision, err := a.visionContext(r)
	if err != nil {
		writeError(w, err)
		return
	}
	stage, err := models.ParseStageKind(chi.URLParam(r, "stage"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	var body struct {
		ValidatedText string                     `json:"validatedText"`
		Delta         pivot.Delta                `json:"delta"`
		Additions     models.RefinementAdditions `json:"additions"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	proposal, err := a.refinements.CommitRefinement(r.Context(), app.RefineStageRequest{
		ProblemID: vision.ProblemID,
		VisionID:  vision.ID,
		Stage:     stage,
	}, body.ValidatedText, body.Delta, body.Additions)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if !proposal.OK {
		status = http.StatusConflict
	}
	writeJSON(w, status, proposal)
}

// ---------------- pivot & simulation ----------------

func (a *App) handleGetPivot(w http.ResponseWriter, r *http.Request) {
	vision, err := a.visionContext(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := a.simulations.Project(r.Context(), vision.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "pivot": result.Model, "ready": result.Ready})
}

func (a *App) handleSimulation(w http.ResponseWriter, r *http.Request) {
	vision, err := a.visionContext(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := a.simulations.Project(r.Context(), vision.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *App) handleSimulationExport(w http.ResponseWriter, r *http.Request) {
	vision, err := a.visionContext(r)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=trajectory-%s.xlsx", vision.ID))
	if err := a.simulations.WriteTrajectoryXLSX(r.Context(), vision.ID, w); err != nil {
		writeError(w, err)
		return
	}
}
