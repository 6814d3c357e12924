package attendance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"foodforge/internal/meal"
)

type slotKey struct {
	userID   string
	scanDate string
	meal     meal.Meal
}

// MemoryLedger is a mutex-guarded ledger for tests and single-process dev runs.
type MemoryLedger struct {
	mu    sync.Mutex
	slots map[slotKey]string
	byID  map[string]Record
	names NameResolver
}

// NewMemoryLedger creates an empty ledger. names may be nil, in which case
// entries carry no full name.
func NewMemoryLedger(names NameResolver) *MemoryLedger {
	return &MemoryLedger{
		slots: make(map[slotKey]string),
		byID:  make(map[string]Record),
		names: names,
	}
}

// Insert stores a record unless the (user, date, meal) slot is taken.
func (l *MemoryLedger) Insert(ctx context.Context, userID string, m meal.Meal, scanDate string, scanTime time.Time) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if userID == "" {
		return Record{}, errors.New("attendance: user id required")
	}
	if !m.Valid() {
		return Record{}, meal.ErrUnknownMeal
	}

	key := slotKey{userID: userID, scanDate: scanDate, meal: m}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.slots[key]; taken {
		return Record{}, &DuplicateError{UserID: userID, ScanDate: scanDate, Meal: m}
	}
	rec := Record{
		ID:       uuid.NewString(),
		UserID:   userID,
		Meal:     m,
		ScanDate: scanDate,
		ScanTime: scanTime.UTC(),
	}
	l.slots[key] = rec.ID
	l.byID[rec.ID] = rec
	return rec, nil
}

func (l *MemoryLedger) snapshot(keep func(Record) bool) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Record
	for _, rec := range l.byID {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScanTime.After(out[j].ScanTime) })
	return out
}

func (l *MemoryLedger) entry(ctx context.Context, rec Record) Entry {
	e := Entry{Record: rec}
	if l.names != nil {
		e.FullName, _ = l.names.FullName(ctx, rec.UserID)
	}
	return e
}

// ListByDate returns the day's records, newest first.
func (l *MemoryLedger) ListByDate(ctx context.Context, date string) ([]Entry, error) {
	recs := l.snapshot(func(r Record) bool { return r.ScanDate == date })
	out := make([]Entry, 0, len(recs))
	for _, rec := range recs {
		out = append(out, l.entry(ctx, rec))
	}
	return out, ctx.Err()
}

// ListByUser returns up to limit of the user's records, newest first.
func (l *MemoryLedger) ListByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	recs := l.snapshot(func(r Record) bool { return r.UserID == userID })
	if n := clampLimit(limit); len(recs) > n {
		recs = recs[:n]
	}
	if recs == nil {
		recs = []Record{}
	}
	return recs, ctx.Err()
}

// Get returns a single record by id.
func (l *MemoryLedger) Get(ctx context.Context, id string) (Entry, error) {
	l.mu.Lock()
	rec, ok := l.byID[id]
	l.mu.Unlock()
	if !ok {
		return Entry{}, ErrNotFound
	}
	return l.entry(ctx, rec), nil
}

// CountByMeal returns per-meal admission counts for date.
func (l *MemoryLedger) CountByMeal(ctx context.Context, date string) (map[meal.Meal]int, error) {
	counts := make(map[meal.Meal]int, 3)
	for _, rec := range l.snapshot(func(r Record) bool { return r.ScanDate == date }) {
		counts[rec.Meal]++
	}
	return counts, ctx.Err()
}

// Len returns the number of stored records.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byID)
}
