package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reelpipe/infrastructure/logger"
)

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL DEFAULT '',
		theme TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_login_at TIMESTAMPTZ NULL,
		posts_count INTEGER NOT NULL DEFAULT 0,
		proxy_host TEXT NULL,
		proxy_port INTEGER NULL,
		proxy_username TEXT NULL,
		proxy_password TEXT NULL,
		proxy_type TEXT NULL,
		proxy_active BOOLEAN NOT NULL DEFAULT FALSE,
		proxy_status TEXT NULL,
		proxy_last_check TIMESTAMPTZ NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS videos (
		id BIGSERIAL PRIMARY KEY,
		link TEXT NOT NULL,
		theme TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT uq_videos_link_theme UNIQUE (link, theme)
	)`,
	`CREATE TABLE IF NOT EXISTS publication_history (
		id BIGSERIAL PRIMARY KEY,
		account_username TEXT NOT NULL,
		video_link TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT uq_publication_account_link UNIQUE (account_username, video_link)
	)`,
	`CREATE TABLE IF NOT EXISTS task_logs (
		id TEXT PRIMARY KEY,
		task_type TEXT NOT NULL,
		status TEXT NOT NULL,
		account_username TEXT NULL,
		message TEXT NOT NULL DEFAULT '',
		progress INTEGER NOT NULL DEFAULT 0,
		total_items INTEGER NOT NULL DEFAULT 0,
		current_item TEXT NULL,
		next_action_at TIMESTAMPTZ NULL,
		cooldown_seconds INTEGER NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

var schemaIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_task_logs_status_created ON task_logs (status, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_videos_theme_status ON videos (theme, status)`,
	`CREATE INDEX IF NOT EXISTS idx_publication_created ON publication_history (created_at)`,
}

// EnsureSchema creates the tables and backfills columns added after the
// first release. Safe to call at every startup.
func EnsureSchema(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, ddl := range schemaDDL {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	checks := []struct {
		table  string
		column string
		ddl    string
	}{
		{"accounts", "proxy_failure_count", "ALTER TABLE accounts ADD COLUMN proxy_failure_count INTEGER NOT NULL DEFAULT 0"},
	}
	for _, c := range checks {
		exists, err := columnExists(ctx, db, c.table, c.column)
		if err != nil {
			return err
		}
		if !exists {
			if _, err := db.ExecContext(ctx, c.ddl); err != nil {
				return fmt.Errorf("adding column %s.%s failed: %w", c.table, c.column, err)
			}
		}
	}

	for _, idx := range schemaIndexes {
		if _, err := db.ExecContext(ctx, idx); err != nil {
			logger.GetLogger().WithError(err).Warn("failed creating index")
		}
	}
	return nil
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	row := db.QueryRowContext(ctx, `SELECT 1 FROM information_schema.columns WHERE table_name=$1 AND column_name=$2`, table, column)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
