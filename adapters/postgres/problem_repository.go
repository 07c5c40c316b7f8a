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

// ProblemRepositoryImpl implements ProblemRepository for PostgreSQL
type ProblemRepositoryImpl struct {
	db *sqlx.DB
}

// NewProblemRepository creates a new PostgreSQL problem repository
func NewProblemRepository(db *sqlx.DB) ports.ProblemRepository {
	return &ProblemRepositoryImpl{db: db}
}

// CreateProblem stores a new problem with its draft text
func (r *ProblemRepositoryImpl) CreateProblem(ctx context.Context, draftText string) (*models.Problem, error) {
	now := time.Now()
	problem := &models.Problem{
		ID:        core.ProblemID(core.NewID()),
		DraftText: draftText,
		CreatedAt: core.NewTimestamp(now),
		UpdatedAt: core.NewTimestamp(now),
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO problems (id, draft_text, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`, problem.ID, problem.DraftText, now, now)
	if err != nil {
		return nil, err
	}
	return problem, nil
}

// GetProblem retrieves a problem by id
func (r *ProblemRepositoryImpl) GetProblem(ctx context.Context, id core.ProblemID) (*models.Problem, error) {
	var row struct {
		ID            string         `db:"id"`
		DraftText     string         `db:"draft_text"`
		ValidatedText string         `db:"validated_text"`
		Formal        sql.NullString `db:"formal"`
		CreatedAt     time.Time      `db:"created_at"`
		UpdatedAt     time.Time      `db:"updated_at"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT id, draft_text, validated_text, formal, created_at, updated_at
		FROM problems
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrProblemNotFound
	}
	if err != nil {
		return nil, err
	}

	problem := &models.Problem{
		ID:            core.ProblemID(row.ID),
		DraftText:     row.DraftText,
		ValidatedText: row.ValidatedText,
		CreatedAt:     core.NewTimestamp(row.CreatedAt),
		UpdatedAt:     core.NewTimestamp(row.UpdatedAt),
	}
	if row.Formal.Valid {
		problem.Formal = []byte(row.Formal.String)
	}
	return problem, nil
}

// CommitProblem stores the validated text and loose formal payload
func (r *ProblemRepositoryImpl) CommitProblem(ctx context.Context, id core.ProblemID, validatedText string, formal []byte) error {
	var formalArg interface{}
	if len(formal) > 0 {
		formalArg = string(formal)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE problems
		SET validated_text = $2, formal = $3, updated_at = NOW()
		WHERE id = $1
	`, id, validatedText, formalArg)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrProblemNotFound
	}
	return nil
}

// DeleteProblem removes a problem; visions, stage records and pivots cascade
func (r *ProblemRepositoryImpl) DeleteProblem(ctx context.Context, id core.ProblemID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM problems WHERE id = $1`, id)
	return err
}
