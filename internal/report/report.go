// Package report summarises a day's meal attendance against opt-ins.
package report

import (
	"context"
	"fmt"
	"time"

	"foodforge/internal/meal"
)

// Counter returns per-meal counts for a date.
type Counter interface {
	Count(ctx context.Context, date string) (map[meal.Meal]int, error)
}

// CounterFunc adapts a method value such as ledger.CountByMeal to a Counter.
type CounterFunc func(ctx context.Context, date string) (map[meal.Meal]int, error)

func (f CounterFunc) Count(ctx context.Context, date string) (map[meal.Meal]int, error) {
	return f(ctx, date)
}

// MealLine is one meal's row in the daily report.
type MealLine struct {
	Meal    meal.Meal `json:"meal"`
	Opted   int       `json:"opted"`
	Served  int       `json:"served"`
	NoShows int       `json:"no_shows"`
	WalkIns int       `json:"walk_ins"`
}

// DailyReport compares intended and actual attendance for one date.
type DailyReport struct {
	Date        string         `json:"date"`
	Meals       []MealLine     `json:"meals"`
	TotalOpted  int            `json:"total_opted"`
	TotalServed int            `json:"total_served"`
	GeneratedAt time.Time      `json:"generated_at"`
	Location    *time.Location `json:"-"`
}

// Builder assembles daily reports.
type Builder struct {
	served Counter
	opted  Counter
	loc    *time.Location
	now    func() time.Time
}

// NewBuilder creates a builder. opted may be nil when opt-ins are not tracked.
func NewBuilder(served, opted Counter, loc *time.Location) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{served: served, opted: opted, loc: loc, now: time.Now}
}

// Daily builds the report for date.
func (b *Builder) Daily(ctx context.Context, date string) (DailyReport, error) {
	served, err := b.served.Count(ctx, date)
	if err != nil {
		return DailyReport{}, fmt.Errorf("report: served counts: %w", err)
	}
	opted := map[meal.Meal]int{}
	if b.opted != nil {
		if opted, err = b.opted.Count(ctx, date); err != nil {
			return DailyReport{}, fmt.Errorf("report: opted counts: %w", err)
		}
	}

	rep := DailyReport{
		Date:        date,
		Meals:       make([]MealLine, 0, 3),
		GeneratedAt: b.now().In(b.loc),
		Location:    b.loc,
	}
	for _, m := range meal.All() {
		line := MealLine{Meal: m, Opted: opted[m], Served: served[m]}
		if line.Opted > line.Served {
			line.NoShows = line.Opted - line.Served
		} else {
			line.WalkIns = line.Served - line.Opted
		}
		rep.Meals = append(rep.Meals, line)
		rep.TotalOpted += line.Opted
		rep.TotalServed += line.Served
	}
	return rep, nil
}
