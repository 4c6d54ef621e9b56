package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

type migrationStep struct {
	Name string
	SQL  string
}

// sentinelTable is checked before migrating; its presence means the schema exists.
const sentinelTable = "public.files"

var steps = []migrationStep{
	{
		Name: "create_table_files",
		SQL: `CREATE TABLE IF NOT EXISTS files (
  id                  BIGSERIAL   PRIMARY KEY,
  original_name       TEXT        NOT NULL,
  stored_location     TEXT        NOT NULL,
  declared_media_type TEXT        NOT NULL DEFAULT '',
  status              TEXT        NOT NULL CHECK (status IN ('uploaded', 'processing', 'processed', 'failed')),
  extracted_data      JSONB,
  owner_id            BIGINT      NOT NULL CHECK (owner_id > 0),
  uploaded_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT files_extracted_data_processed CHECK ((status = 'processed') = (extracted_data IS NOT NULL))
);`,
	},
	{
		Name: "create_table_jobs",
		SQL: `CREATE TABLE IF NOT EXISTS jobs (
  id            BIGSERIAL   PRIMARY KEY,
  token         TEXT        NOT NULL UNIQUE,
  file_id       BIGINT      NOT NULL REFERENCES files (id) ON DELETE CASCADE,
  status        TEXT        NOT NULL CHECK (status IN ('queued', 'processing', 'completed', 'failed')),
  error_message TEXT,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  started_at    TIMESTAMPTZ,
  completed_at  TIMESTAMPTZ,
  CONSTRAINT jobs_error_iff_failed CHECK ((status = 'failed') = (error_message IS NOT NULL)),
  CONSTRAINT jobs_completed_iff_terminal CHECK ((status IN ('completed', 'failed')) = (completed_at IS NOT NULL)),
  CONSTRAINT jobs_started_when_running CHECK (status NOT IN ('processing', 'completed') OR started_at IS NOT NULL)
);`,
	},
	{
		Name: "create_index_files_owner_uploaded_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_files_owner_uploaded_at ON files (owner_id, uploaded_at DESC, id DESC);`,
	},
	{
		Name: "create_index_files_status",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_files_status ON files (status);`,
	},
	{
		Name: "create_index_jobs_file_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_jobs_file_id ON jobs (file_id, id DESC);`,
	},
	{
		Name: "create_index_jobs_open",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_jobs_open ON jobs (status, started_at, created_at) WHERE status IN ('queued', 'processing');`,
	},
}

// EnsureMigrated creates the files and jobs schema unless the sentinel table
// already exists. All steps run in one transaction.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *slog.Logger, dbHost string) error {
	start := time.Now()
	log = log.With("component", "database", "db_host", dbHost)

	log.Info("db_migration_check", "status", "starting")

	var exists bool
	err := db.QueryRowContext(ctx, "SELECT to_regclass($1) IS NOT NULL", sentinelTable).Scan(&exists)
	if err != nil {
		log.Error("db_migration_failed",
			"status", "error",
			"error_message", fmt.Sprintf("failed to check sentinel table: %v", err),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info("db_migration_skip",
			"status", "success",
			"detail", "schema already exists, skipping migration",
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}

	log.Info("db_migration_start", "status", "in_progress")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := tx.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed",
				"status", "error",
				"migration_step", step.Name,
				"error_message", err.Error(),
				"duration_ms", time.Since(start).Milliseconds(),
				"step_duration_ms", time.Since(stepStart).Milliseconds(),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Info("db_migration_step",
			"status", "success",
			"migration_step", step.Name,
			"step_duration_ms", time.Since(stepStart).Milliseconds(),
		)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}

	log.Info("db_migration_success",
		"status", "success",
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
