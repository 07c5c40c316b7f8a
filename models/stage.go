package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopivot/domain/core"
)

// StageKind names one step of the Problem → Vision → R1 → R2 → … sequence.
type StageKind string

const (
	StageProblem StageKind = "problem"
	StageVision  StageKind = "vision"
	StageR1      StageKind = "r1"
	StageR2      StageKind = "r2"
	StageR3      StageKind = "r3"
)

// ParseStageKind validates a stage name ("problem", "vision", or "rN").
func ParseStageKind(s string) (StageKind, error) {
	k := StageKind(strings.ToLower(strings.TrimSpace(s)))
	if k == StageProblem || k == StageVision {
		return k, nil
	}
	if n, ok := refinementOrdinal(k); ok && n >= 1 {
		return k, nil
	}
	return "", fmt.Errorf("invalid stage kind %q", s)
}

// IsFormal reports whether the stage carries a structured extraction (R1+).
func (k StageKind) IsFormal() bool {
	_, ok := refinementOrdinal(k)
	return ok
}

// IsRefinement reports whether the stage applies a delta to an existing
// pivot (R2+).
func (k StageKind) IsRefinement() bool {
	n, ok := refinementOrdinal(k)
	return ok && n >= 2
}

// Ordinal returns the refinement number of an rN stage (r1 → 1); ok is false
// for problem and vision.
func (k StageKind) Ordinal() (int, bool) {
	return refinementOrdinal(k)
}

func refinementOrdinal(k StageKind) (int, bool) {
	s := string(k)
	if len(s) < 2 || s[0] != 'r' {
		return 0, false
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// StageState is the per-stage life cycle. Committed is terminal; the only way
// out is deleting the owning vision.
type StageState string

const (
	StateDraft     StageState = "draft"
	StatePending   StageState = "pending_analysis"
	StateReview    StageState = "review"
	StateCommitted StageState = "committed"
)

// StageRecord is one committed stage: the literal validated text plus the
// formal payload for formalization stages. Committed records are immutable.
type StageRecord struct {
	ID            core.ID         `json:"id" db:"id"`
	ProblemID     core.ProblemID  `json:"problemId" db:"problem_id"`
	VisionID      core.VisionID   `json:"visionId,omitempty" db:"vision_id"`
	Stage         StageKind       `json:"stage" db:"stage"`
	ValidatedText string          `json:"validatedText" db:"validated_text"`
	Remarks       []string        `json:"remarks,omitempty" db:"-"`
	Formal        json.RawMessage `json:"formal,omitempty" db:"formal"`
	CommittedAt   core.Timestamp  `json:"committedAt" db:"committed_at"`
}

// Problem is the root free-text stage. Formal stays loose JSON: historical
// problem payloads used several field spellings and are treated as untrusted.
type Problem struct {
	ID            core.ProblemID  `json:"id" db:"id"`
	DraftText     string          `json:"draftText" db:"draft_text"`
	ValidatedText string          `json:"validatedText" db:"validated_text"`
	Formal        json.RawMessage `json:"formal,omitempty" db:"formal"`
	CreatedAt     core.Timestamp  `json:"createdAt" db:"created_at"`
	UpdatedAt     core.Timestamp  `json:"updatedAt" db:"updated_at"`
}

// FormalMap decodes the loose problem formal into a map, nil when absent or
// unparsable.
func (p Problem) FormalMap() map[string]any {
	if len(p.Formal) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(p.Formal, &m); err != nil {
		return nil
	}
	return m
}

// Vision is one candidate future for a problem; it owns at most one pivot.
type Vision struct {
	ID            core.VisionID  `json:"id" db:"id"`
	ProblemID     core.ProblemID `json:"problemId" db:"problem_id"`
	Title         string         `json:"title" db:"title"`
	DraftText     string         `json:"draftText" db:"draft_text"`
	ValidatedText string         `json:"validatedText" db:"validated_text"`
	CreatedAt     core.Timestamp `json:"createdAt" db:"created_at"`
}
