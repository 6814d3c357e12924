package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"foodforge/internal/meal"
	"foodforge/internal/store"
)

// SQLLedger persists attendance records in Postgres or SQLite.
type SQLLedger struct {
	db *store.DB
}

// NewSQLLedger creates a ledger over db. The schema must already be migrated.
func NewSQLLedger(db *store.DB) *SQLLedger {
	return &SQLLedger{db: db}
}

// Insert writes a new record, relying on the meal_scans_user_day_meal constraint
// to reject a second admission for the same user, day and meal.
func (r *SQLLedger) Insert(ctx context.Context, userID string, m meal.Meal, scanDate string, scanTime time.Time) (Record, error) {
	if userID == "" {
		return Record{}, errors.New("attendance: user id required")
	}
	if !m.Valid() {
		return Record{}, meal.ErrUnknownMeal
	}
	rec := Record{
		ID:       uuid.NewString(),
		UserID:   userID,
		Meal:     m,
		ScanDate: scanDate,
		ScanTime: scanTime.UTC(),
	}
	_, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO meal_scans (id, user_id, meal, scan_date, scan_time)
		VALUES ($1, $2, $3, $4, $5)
	`), rec.ID, rec.UserID, string(rec.Meal), rec.ScanDate, rec.ScanTime)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return Record{}, &DuplicateError{UserID: userID, ScanDate: scanDate, Meal: m}
		}
		return Record{}, fmt.Errorf("attendance: insert scan: %w", err)
	}
	return rec, nil
}

func (r *SQLLedger) entryColumns() string {
	return `s.id, s.user_id, s.meal, ` + r.db.DateText("s.scan_date") + `, s.scan_time, p.full_name`
}

func scanEntry(row interface{ Scan(...any) error }) (Entry, error) {
	var (
		e        Entry
		mealName string
	)
	if err := row.Scan(&e.ID, &e.UserID, &mealName, &e.ScanDate, &e.ScanTime, &e.FullName); err != nil {
		return Entry{}, err
	}
	e.Meal = mealOf(mealName)
	return e, nil
}

// ListByDate returns the day's records joined with profile names, newest first.
func (r *SQLLedger) ListByDate(ctx context.Context, date string) ([]Entry, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(`
		SELECT `+r.entryColumns()+`
		FROM meal_scans s
		JOIN profiles p ON p.id = s.user_id
		WHERE s.scan_date = $1
		ORDER BY s.scan_time DESC
	`), date)
	if err != nil {
		return nil, fmt.Errorf("attendance: list by date: %w", err)
	}
	defer rows.Close()

	res := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// ListByUser returns the user's most recent records.
func (r *SQLLedger) ListByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(`
		SELECT id, user_id, meal, `+r.db.DateText("scan_date")+`, scan_time
		FROM meal_scans
		WHERE user_id = $1
		ORDER BY scan_time DESC
		LIMIT $2
	`), userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("attendance: list by user: %w", err)
	}
	defer rows.Close()

	res := []Record{}
	for rows.Next() {
		var (
			rec      Record
			mealName string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &mealName, &rec.ScanDate, &rec.ScanTime); err != nil {
			return nil, err
		}
		rec.Meal = mealOf(mealName)
		res = append(res, rec)
	}
	return res, rows.Err()
}

// Get returns a single record by id.
func (r *SQLLedger) Get(ctx context.Context, id string) (Entry, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`
		SELECT `+r.entryColumns()+`
		FROM meal_scans s
		JOIN profiles p ON p.id = s.user_id
		WHERE s.id = $1
	`), id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

// CountByMeal returns per-meal admission counts for date.
func (r *SQLLedger) CountByMeal(ctx context.Context, date string) (map[meal.Meal]int, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(`
		SELECT meal, COUNT(*) FROM meal_scans WHERE scan_date = $1 GROUP BY meal
	`), date)
	if err != nil {
		return nil, fmt.Errorf("attendance: count by meal: %w", err)
	}
	defer rows.Close()

	counts := make(map[meal.Meal]int, 3)
	for rows.Next() {
		var (
			m string
			n int
		)
		if err := rows.Scan(&m, &n); err != nil {
			return nil, err
		}
		counts[mealOf(m)] = n
	}
	return counts, rows.Err()
}

func mealOf(s string) meal.Meal { return meal.Meal(s) }
