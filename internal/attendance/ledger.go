package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"foodforge/internal/meal"
)

// DateLayout is the calendar-date format used for scan dates.
const DateLayout = "2006-01-02"

const (
	defaultHistoryLimit = 30
	maxHistoryLimit     = 500
)

var (
	// ErrDuplicate matches any *DuplicateError via errors.Is.
	ErrDuplicate = errors.New("attendance: already recorded")
	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = errors.New("attendance: record not found")
)

// DuplicateError reports that the user already has a record for the meal on that day.
type DuplicateError struct {
	UserID   string
	ScanDate string
	Meal     meal.Meal
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("attendance: %s already marked for %s on %s", e.UserID, e.Meal, e.ScanDate)
}

// Is makes errors.Is(err, ErrDuplicate) succeed.
func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// Record is one confirmed meal admission.
type Record struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	Meal     meal.Meal `json:"meal"`
	ScanDate string    `json:"scan_date"`
	ScanTime time.Time `json:"scan_time"`
}

// Entry is a record joined with the student's name.
type Entry struct {
	Record
	FullName string `json:"full_name"`
}

// Ledger is the uniqueness-constrained store of attendance records.
type Ledger interface {
	// Insert stores a record. The store itself enforces that (userID, scanDate, meal)
	// is unique; a violation returns a *DuplicateError.
	Insert(ctx context.Context, userID string, m meal.Meal, scanDate string, scanTime time.Time) (Record, error)
	// ListByDate returns the day's records, newest scan first.
	ListByDate(ctx context.Context, date string) ([]Entry, error)
	// ListByUser returns up to limit of the user's records, newest scan first.
	ListByUser(ctx context.Context, userID string, limit int) ([]Record, error)
	// Get returns a single record by id.
	Get(ctx context.Context, id string) (Entry, error)
	// CountByMeal returns how many admissions each meal had on date.
	CountByMeal(ctx context.Context, date string) (map[meal.Meal]int, error)
}

// NameResolver looks up an identity's display name.
type NameResolver interface {
	FullName(ctx context.Context, userID string) (string, error)
}

// DateOf formats t's calendar date in t's location.
func DateOf(t time.Time) string {
	return t.Format(DateLayout)
}

// ValidDate reports whether s is a YYYY-MM-DD date.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
