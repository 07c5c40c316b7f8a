package postgres

import (
	"github.com/jmoiron/sqlx"

	"gopivot/internal/errors"
)

// Migrate creates the schema. Vision deletion cascades to stage records and
// pivots; problem deletion cascades to visions.
func Migrate(db *sqlx.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS problems (
			id TEXT PRIMARY KEY,
			draft_text TEXT NOT NULL DEFAULT '',
			validated_text TEXT NOT NULL DEFAULT '',
			formal JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS visions (
			id TEXT PRIMARY KEY,
			problem_id TEXT NOT NULL REFERENCES problems(id) ON DELETE CASCADE,
			title TEXT NOT NULL DEFAULT '',
			draft_text TEXT NOT NULL DEFAULT '',
			validated_text TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS stage_records (
			id TEXT PRIMARY KEY,
			problem_id TEXT NOT NULL REFERENCES problems(id) ON DELETE CASCADE,
			vision_id TEXT REFERENCES visions(id) ON DELETE CASCADE,
			stage TEXT NOT NULL,
			validated_text TEXT NOT NULL DEFAULT '',
			formal JSONB,
			committed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS stage_records_key
			ON stage_records (problem_id, (COALESCE(vision_id, '')), stage)`,
		`CREATE TABLE IF NOT EXISTS pivots (
			vision_id TEXT PRIMARY KEY REFERENCES visions(id) ON DELETE CASCADE,
			model JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for i, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return errors.Wrapf(err, "migration statement %d failed", i+1)
		}
	}
	return nil
}
