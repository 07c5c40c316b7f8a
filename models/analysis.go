package models

import (
	"gopivot/domain/pivot"
)

// ReformulationOutput is the analyzer payload for free-text stages
// (problem, vision).
type ReformulationOutput struct {
	Remarks       []string       `json:"remarks"`
	Reformulation string         `json:"reformulation"`
	Formal        map[string]any `json:"formal"`
}

// R1Output is the analyzer payload for the R1 formalization stage.
type R1Output struct {
	Remarks       []string `json:"remarks"`
	Reformulation string   `json:"reformulation"`
	Formal        R1Formal `json:"formal"`
}

// RefinementOutput is the analyzer payload for R2+ refinement stages. The
// delta is the only part that touches the pivot; additions are advisory.
type RefinementOutput struct {
	Remarks              []string            `json:"remarks"`
	Reformulation        string              `json:"reformulation"`
	HasEnoughInformation bool                `json:"hasEnoughInformation"`
	Delta                pivot.Delta         `json:"delta"`
	Additions            RefinementAdditions `json:"additions"`
}

// AIConfig holds AI/LLM related settings
type AIConfig struct {
	OpenAIKey     string
	OpenAIModel   string
	SystemContext string
	MaxTokens     int
	Temperature   float64
}
