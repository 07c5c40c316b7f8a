package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"gopivot/domain/core"
	"gopivot/models"
	"gopivot/ports"
)

// StageRepositoryImpl implements StageRepository for PostgreSQL
type StageRepositoryImpl struct {
	db *sqlx.DB
}

// NewStageRepository creates a new PostgreSQL stage repository
func NewStageRepository(db *sqlx.DB) ports.StageRepository {
	return &StageRepositoryImpl{db: db}
}

// GetStageRecord loads the committed record for (problem, vision, stage)
func (r *StageRepositoryImpl) GetStageRecord(ctx context.Context, problemID core.ProblemID, visionID core.VisionID, stage models.StageKind) (*models.StageRecord, error) {
	var row struct {
		ID            string         `db:"id"`
		ProblemID     string         `db:"problem_id"`
		VisionID      sql.NullString `db:"vision_id"`
		Stage         string         `db:"stage"`
		ValidatedText string         `db:"validated_text"`
		Formal        sql.NullString `db:"formal"`
		CommittedAt   time.Time      `db:"committed_at"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT id, problem_id, vision_id, stage, validated_text, formal, committed_at
		FROM stage_records
		WHERE problem_id = $1 AND COALESCE(vision_id, '') = $2 AND stage = $3
	`, problemID, string(visionID), stage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrStageNotFound
	}
	if err != nil {
		return nil, err
	}

	record := &models.StageRecord{
		ID:            core.ID(row.ID),
		ProblemID:     core.ProblemID(row.ProblemID),
		Stage:         models.StageKind(row.Stage),
		ValidatedText: row.ValidatedText,
		CommittedAt:   core.NewTimestamp(row.CommittedAt),
	}
	if row.VisionID.Valid {
		record.VisionID = core.VisionID(row.VisionID.String)
	}
	if row.Formal.Valid {
		record.Formal = []byte(row.Formal.String)
	}
	return record, nil
}

// SaveStageRecord appends or replaces the committed record for the key,
// all-or-nothing
func (r *StageRepositoryImpl) SaveStageRecord(ctx context.Context, record *models.StageRecord) error {
	var visionArg interface{}
	if record.VisionID != "" {
		visionArg = string(record.VisionID)
	}
	var formalArg interface{}
	if len(record.Formal) > 0 {
		formalArg = string(record.Formal)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stage_records (id, problem_id, vision_id, stage, validated_text, formal, committed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (problem_id, (COALESCE(vision_id, '')), stage)
		DO UPDATE SET validated_text = EXCLUDED.validated_text,
		              formal = EXCLUDED.formal,
		              committed_at = EXCLUDED.committed_at
	`, record.ID, record.ProblemID, visionArg, record.Stage, record.ValidatedText, formalArg, record.CommittedAt.Time())
	return err
}
