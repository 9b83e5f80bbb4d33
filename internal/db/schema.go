// internal/db/schema.go
package db

import "database/sql"

// schemaStatements creates the tables the engine needs. Statements are
// idempotent so the server can run them on every boot.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS recipients (
		id SERIAL PRIMARY KEY,
		phone VARCHAR(32) NOT NULL UNIQUE,
		first_name VARCHAR(100) NOT NULL DEFAULT '',
		last_name VARCHAR(100) NOT NULL DEFAULT '',
		location VARCHAR(100) NOT NULL DEFAULT '',
		preferred_product VARCHAR(100) NOT NULL DEFAULT '',
		opted_out BOOLEAN NOT NULL DEFAULT FALSE,
		opted_out_at TIMESTAMPTZ,
		do_not_contact BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS templates (
		id SERIAL PRIMARY KEY,
		name VARCHAR(200) NOT NULL UNIQUE,
		body TEXT NOT NULL,
		param_fields TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS campaigns (
		id SERIAL PRIMARY KEY,
		name VARCHAR(200) NOT NULL,
		channel VARCHAR(20) NOT NULL DEFAULT 'sms',
		status VARCHAR(20) NOT NULL DEFAULT 'draft',
		template_id INTEGER NOT NULL REFERENCES templates(id),
		target_spec JSONB NOT NULL DEFAULT '{"kind":"all"}',
		pacing_profile VARCHAR(30) NOT NULL DEFAULT 'normal',
		skip_duplicate_template BOOLEAN NOT NULL DEFAULT TRUE,
		sent_count INTEGER NOT NULL DEFAULT 0,
		failed_count INTEGER NOT NULL DEFAULT 0,
		delivered_count INTEGER NOT NULL DEFAULT 0,
		read_count INTEGER NOT NULL DEFAULT 0,
		created_by VARCHAR(100) NOT NULL DEFAULT '',
		scheduled_at TIMESTAMPTZ,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		id SERIAL PRIMARY KEY,
		campaign_id INTEGER NOT NULL REFERENCES campaigns(id),
		recipient_id INTEGER NOT NULL REFERENCES recipients(id),
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (campaign_id, recipient_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id SERIAL PRIMARY KEY,
		recipient_id INTEGER NOT NULL REFERENCES recipients(id),
		campaign_id INTEGER REFERENCES campaigns(id),
		template_id INTEGER REFERENCES templates(id),
		direction VARCHAR(10) NOT NULL DEFAULT 'outbound',
		provider_message_id VARCHAR(100),
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		payload TEXT NOT NULL DEFAULT '',
		last_error TEXT NOT NULL DEFAULT '',
		sent_at TIMESTAMPTZ,
		delivered_at TIMESTAMPTZ,
		read_at TIMESTAMPTZ,
		failed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_provider_message_id
		ON ledger_entries (provider_message_id) WHERE provider_message_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_recipient_template
		ON ledger_entries (recipient_id, template_id)`,
	`CREATE INDEX IF NOT EXISTS idx_enrollments_campaign_status
		ON enrollments (campaign_id, status)`,
}

// EnsureSchema applies the idempotent schema statements.
func EnsureSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
