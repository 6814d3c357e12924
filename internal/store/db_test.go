package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *DB {
	t.Helper()
	db, err := NewSQLite(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestRebind(t *testing.T) {
	pg := &DB{Dialect: Postgres}
	lite := &DB{Dialect: SQLite}

	q := `SELECT * FROM meal_scans WHERE user_id = $1 AND scan_date = $2 LIMIT $10`
	assert.Equal(t, q, pg.Rebind(q))
	assert.Equal(t, `SELECT * FROM meal_scans WHERE user_id = ?1 AND scan_date = ?2 LIMIT ?10`, lite.Rebind(q))
}

func TestDateText(t *testing.T) {
	assert.Equal(t, "scan_date::text", (&DB{Dialect: Postgres}).DateText("scan_date"))
	assert.Equal(t, "scan_date", (&DB{Dialect: SQLite}).DateText("scan_date"))
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestSQLite(t)
	require.NoError(t, db.Migrate(context.Background()))
	assert.True(t, db.Healthy(context.Background()))
}

func TestIsUniqueViolationSQLite(t *testing.T) {
	db := newTestSQLite(t)
	ctx := context.Background()

	insert := db.Rebind(`INSERT INTO profiles (id, email, full_name, role, password_hash) VALUES ($1, $2, $3, $4, $5)`)
	_, err := db.Client.ExecContext(ctx, insert, "p1", "a@example.edu", "A", "student", "x")
	require.NoError(t, err)

	_, err = db.Client.ExecContext(ctx, insert, "p2", "a@example.edu", "B", "student", "x")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsForeignKeyViolation(err))
}

func TestIsForeignKeyViolationSQLite(t *testing.T) {
	db := newTestSQLite(t)

	_, err := db.Client.ExecContext(context.Background(),
		db.Rebind(`INSERT INTO meal_scans (id, user_id, meal, scan_date, scan_time) VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)`),
		"s1", "nobody", "lunch", "2026-10-18")
	require.Error(t, err)
	assert.True(t, IsForeignKeyViolation(err))
	assert.False(t, IsUniqueViolation(err))
}

func TestIsUniqueViolationPostgres(t *testing.T) {
	err := fmt.Errorf("insert scan: %w", &pgconn.PgError{Code: "23505"})
	assert.True(t, IsUniqueViolation(err))

	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("connection reset")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestOpen(t *testing.T) {
	db, err := Open("sqlite", "", filepath.Join(t.TempDir(), "nested", "open.db"))
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, SQLite, db.Dialect)

	_, err = Open("mysql", "", "")
	assert.ErrorContains(t, err, "unknown store backend")
}
