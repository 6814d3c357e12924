package store

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		full_name     TEXT NOT NULL,
		role          TEXT NOT NULL CHECK (role IN ('student', 'admin')),
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_profiles_role ON profiles (role, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS meal_scans (
		id        TEXT PRIMARY KEY,
		user_id   TEXT NOT NULL REFERENCES profiles (id),
		meal      TEXT NOT NULL CHECK (meal IN ('breakfast', 'lunch', 'dinner')),
		scan_date DATE NOT NULL,
		scan_time TIMESTAMPTZ NOT NULL,
		CONSTRAINT meal_scans_user_day_meal UNIQUE (user_id, scan_date, meal)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_meal_scans_date ON meal_scans (scan_date, scan_time DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_meal_scans_user ON meal_scans (user_id, scan_time DESC)`,
	`CREATE TABLE IF NOT EXISTS menu_items (
		id         TEXT PRIMARY KEY,
		menu_date  DATE NOT NULL,
		meal       TEXT NOT NULL CHECK (meal IN ('breakfast', 'lunch', 'dinner')),
		position   INTEGER NOT NULL DEFAULT 0,
		item_name  TEXT NOT NULL,
		is_special BOOLEAN NOT NULL DEFAULT FALSE,
		allergens  TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_menu_items_date ON menu_items (menu_date, meal, position)`,
	`CREATE TABLE IF NOT EXISTS meal_opt (
		user_id    TEXT NOT NULL REFERENCES profiles (id),
		opt_date   DATE NOT NULL,
		meal       TEXT NOT NULL CHECK (meal IN ('breakfast', 'lunch', 'dinner')),
		is_opted   BOOLEAN NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, opt_date, meal)
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		jti        TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES profiles (id),
		expires_at TIMESTAMPTZ NOT NULL,
		revoked    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens (user_id)`,
}

// SQLite keeps dates as YYYY-MM-DD text so they compare and scan as strings.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		full_name     TEXT NOT NULL,
		role          TEXT NOT NULL CHECK (role IN ('student', 'admin')),
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_profiles_role ON profiles (role, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS meal_scans (
		id        TEXT PRIMARY KEY,
		user_id   TEXT NOT NULL REFERENCES profiles (id),
		meal      TEXT NOT NULL CHECK (meal IN ('breakfast', 'lunch', 'dinner')),
		scan_date TEXT NOT NULL,
		scan_time TIMESTAMP NOT NULL,
		CONSTRAINT meal_scans_user_day_meal UNIQUE (user_id, scan_date, meal)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_meal_scans_date ON meal_scans (scan_date, scan_time DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_meal_scans_user ON meal_scans (user_id, scan_time DESC)`,
	`CREATE TABLE IF NOT EXISTS menu_items (
		id         TEXT PRIMARY KEY,
		menu_date  TEXT NOT NULL,
		meal       TEXT NOT NULL CHECK (meal IN ('breakfast', 'lunch', 'dinner')),
		position   INTEGER NOT NULL DEFAULT 0,
		item_name  TEXT NOT NULL,
		is_special BOOLEAN NOT NULL DEFAULT 0,
		allergens  TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_menu_items_date ON menu_items (menu_date, meal, position)`,
	`CREATE TABLE IF NOT EXISTS meal_opt (
		user_id    TEXT NOT NULL REFERENCES profiles (id),
		opt_date   TEXT NOT NULL,
		meal       TEXT NOT NULL CHECK (meal IN ('breakfast', 'lunch', 'dinner')),
		is_opted   BOOLEAN NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, opt_date, meal)
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		jti        TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES profiles (id),
		expires_at TIMESTAMP NOT NULL,
		revoked    BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens (user_id)`,
}

// Migrate creates any missing tables and indexes. It is safe to run repeatedly.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if d.Dialect == SQLite {
		stmts = sqliteSchema
	}
	for i, stmt := range stmts {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
