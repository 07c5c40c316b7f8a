package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"gopivot/domain/core"
	"gopivot/domain/pivot"
	"gopivot/ports"
)

// PivotRepositoryImpl implements PivotRepository for PostgreSQL
type PivotRepositoryImpl struct {
	db *sqlx.DB
}

// NewPivotRepository creates a new PostgreSQL pivot repository
func NewPivotRepository(db *sqlx.DB) ports.PivotRepository {
	return &PivotRepositoryImpl{db: db}
}

// GetPivot loads the pivot a vision owns
func (r *PivotRepositoryImpl) GetPivot(ctx context.Context, visionID core.VisionID) (*pivot.Model, error) {
	var raw string
	err := r.db.GetContext(ctx, &raw, `
		SELECT model FROM pivots WHERE vision_id = $1
	`, visionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrPivotNotFound
	}
	if err != nil {
		return nil, err
	}

	var model pivot.Model
	if err := json.Unmarshal([]byte(raw), &model); err != nil {
		return nil, fmt.Errorf("corrupted pivot for vision %s: %w", visionID, err)
	}
	return &model, nil
}

// SavePivot stores (or replaces) the pivot for a vision
func (r *PivotRepositoryImpl) SavePivot(ctx context.Context, visionID core.VisionID, model pivot.Model) error {
	raw, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("failed to encode pivot: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO pivots (vision_id, model, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (vision_id)
		DO UPDATE SET model = EXCLUDED.model, updated_at = NOW()
	`, visionID, string(raw))
	return err
}
