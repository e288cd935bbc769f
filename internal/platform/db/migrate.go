// Package db owns the relational schema and the idempotent migration runner
package db

import (
	"context"
	"fmt"

	"cacdarchive/internal/platform/logger"
	"cacdarchive/internal/platform/store"
)

// statements is the schema in dependency order. Every statement is
// idempotent so migrate can run on every boot
var statements = []string{
	`CREATE TABLE IF NOT EXISTS account_statuses (
		id SMALLINT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,

	`INSERT INTO account_statuses (id, name) VALUES
		(1, 'pending'), (2, 'active'), (3, 'deactivated')
	ON CONFLICT (id) DO NOTHING`,

	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT,
		password_hash TEXT NOT NULL,
		status_id SMALLINT NOT NULL REFERENCES account_statuses(id),
		email_notifications_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS roles (
		id SMALLINT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,

	`CREATE TABLE IF NOT EXISTS capabilities (
		id SMALLINT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,

	`CREATE TABLE IF NOT EXISTS role_capabilities (
		role_id SMALLINT NOT NULL REFERENCES roles(id),
		capability_id SMALLINT NOT NULL REFERENCES capabilities(id),
		PRIMARY KEY (role_id, capability_id)
	)`,

	`CREATE TABLE IF NOT EXISTS user_roles (
		user_id UUID NOT NULL REFERENCES users(id),
		role_id SMALLINT NOT NULL REFERENCES roles(id),
		PRIMARY KEY (user_id, role_id)
	)`,

	`CREATE TABLE IF NOT EXISTS user_status_history (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		from_status_id SMALLINT NOT NULL REFERENCES account_statuses(id),
		to_status_id SMALLINT NOT NULL REFERENCES account_statuses(id),
		notes TEXT,
		changed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS password_reset_tokens (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		token_hash TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		used_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS hearings (
		id UUID PRIMARY KEY,
		list_date DATE NOT NULL,
		case_number TEXT NOT NULL,
		time TEXT NOT NULL,
		hearing_datetime TIMESTAMPTZ NOT NULL,
		venue TEXT,
		judge TEXT,
		case_details TEXT,
		hearing_type TEXT,
		additional_information TEXT,
		division TEXT NOT NULL,
		source_url TEXT NOT NULL,
		scraped_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_hearings_identity
	ON hearings (list_date, case_number, time)`,

	`CREATE INDEX IF NOT EXISTS idx_hearings_list_date ON hearings (list_date)`,

	`CREATE INDEX IF NOT EXISTS idx_hearings_datetime ON hearings (hearing_datetime)`,

	`CREATE INDEX IF NOT EXISTS idx_hearings_fts ON hearings USING GIN (
		to_tsvector('english',
			coalesce(case_details, '') || ' ' || coalesce(hearing_type, '') || ' ' ||
			coalesce(additional_information, '') || ' ' || coalesce(judge, '') || ' ' ||
			coalesce(venue, '')
		)
	)`,

	`CREATE TABLE IF NOT EXISTS scrape_runs (
		id UUID PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		summary_url TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		duration_ms BIGINT,
		links_discovered INT,
		links_processed INT,
		records_added INT,
		records_updated INT,
		records_deleted INT,
		summary_page_status INT,
		error_message TEXT,
		error_details TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_scrape_runs_started ON scrape_runs (started_at DESC)`,

	`CREATE TABLE IF NOT EXISTS saved_searches (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		search_text TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_saved_searches_user ON saved_searches (user_id)`,

	`CREATE TABLE IF NOT EXISTS search_notifications (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		sent_at TIMESTAMPTZ NOT NULL,
		match_count INT NOT NULL,
		searches_matched INT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_search_notifications_user_sent
	ON search_notifications (user_id, sent_at DESC)`,
}

// Migrate applies the schema statements in order
func Migrate(ctx context.Context, q store.RowQuerier) error {
	log := logger.Named("db")
	log.Info().Int("statements", len(statements)).Msg("running migrations")

	for i, stmt := range statements {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Info().Msg("migrations complete")
	return nil
}
