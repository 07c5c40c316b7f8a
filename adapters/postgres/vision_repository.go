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

// VisionRepositoryImpl implements VisionRepository for PostgreSQL
type VisionRepositoryImpl struct {
	db *sqlx.DB
}

// NewVisionRepository creates a new PostgreSQL vision repository
func NewVisionRepository(db *sqlx.DB) ports.VisionRepository {
	return &VisionRepositoryImpl{db: db}
}

// CreateVision stores a new vision under a problem
func (r *VisionRepositoryImpl) CreateVision(ctx context.Context, problemID core.ProblemID, title, draftText string) (*models.Vision, error) {
	now := time.Now()
	vision := &models.Vision{
		ID:        core.VisionID(core.NewID()),
		ProblemID: problemID,
		Title:     title,
		DraftText: draftText,
		CreatedAt: core.NewTimestamp(now),
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO visions (id, problem_id, title, draft_text, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, vision.ID, vision.ProblemID, vision.Title, vision.DraftText, now)
	if err != nil {
		return nil, err
	}
	return vision, nil
}

// GetVision retrieves a vision by id
func (r *VisionRepositoryImpl) GetVision(ctx context.Context, id core.VisionID) (*models.Vision, error) {
	var row struct {
		ID            string    `db:"id"`
		ProblemID     string    `db:"problem_id"`
		Title         string    `db:"title"`
		DraftText     string    `db:"draft_text"`
		ValidatedText string    `db:"validated_text"`
		CreatedAt     time.Time `db:"created_at"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT id, problem_id, title, draft_text, validated_text, created_at
		FROM visions
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrVisionNotFound
	}
	if err != nil {
		return nil, err
	}

	return &models.Vision{
		ID:            core.VisionID(row.ID),
		ProblemID:     core.ProblemID(row.ProblemID),
		Title:         row.Title,
		DraftText:     row.DraftText,
		ValidatedText: row.ValidatedText,
		CreatedAt:     core.NewTimestamp(row.CreatedAt),
	}, nil
}

// ListVisions returns the visions of a problem, newest first
func (r *VisionRepositoryImpl) ListVisions(ctx context.Context, problemID core.ProblemID) ([]*models.Vision, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, problem_id, title, draft_text, validated_text, created_at
		FROM visions
		WHERE problem_id = $1
		ORDER BY created_at DESC
	`, problemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var visions []*models.Vision
	for rows.Next() {
		var (
			vision    models.Vision
			createdAt time.Time
		)
		if err := rows.Scan(&vision.ID, &vision.ProblemID, &vision.Title, &vision.DraftText, &vision.ValidatedText, &createdAt); err != nil {
			return nil, err
		}
		vision.CreatedAt = core.NewTimestamp(createdAt)
		visions = append(visions, &vision)
	}
	return visions, rows.Err()
}

// CommitVision stores the validated text for a vision
func (r *VisionRepositoryImpl) CommitVision(ctx context.Context, id core.VisionID, validatedText string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE visions SET validated_text = $2 WHERE id = $1
	`, id, validatedText)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrVisionNotFound
	}
	return nil
}

// DeleteVision removes a vision; its stage records and pivot cascade
func (r *VisionRepositoryImpl) DeleteVision(ctx context.Context, id core.VisionID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM visions WHERE id = $1`, id)
	return err
}
