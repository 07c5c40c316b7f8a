package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	// Use UUID v7 for time-ordered, sortable IDs
	// Falls back to v4 if v7 is not available (for compatibility)
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	ProblemID    ID
	VisionID     ID
	RefinementID ID
)

// String conversions for domain IDs
func (id ProblemID) String() string    { return ID(id).String() }
func (id VisionID) String() string     { return ID(id).String() }
func (id RefinementID) String() string { return ID(id).String() }

// ParseProblemID parses a string into ProblemID
func ParseProblemID(s string) (ProblemID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("problem ID cannot be empty")
	}
	return ProblemID(s), nil
}

// ParseVisionID parses a string into VisionID
func ParseVisionID(s string) (VisionID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("vision ID cannot be empty")
	}
	return VisionID(s), nil
}
