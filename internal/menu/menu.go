// Package menu stores the daily mess menu and students' per-meal opt-ins.
package menu

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"foodforge/internal/meal"
	"foodforge/internal/store"
)

var ErrInvalidItem = errors.New("menu: invalid item")

// Item is one dish served at a meal.
type Item struct {
	ID        string    `json:"id"`
	MenuDate  string    `json:"menu_date"`
	Meal      meal.Meal `json:"meal"`
	Position  int       `json:"position"`
	ItemName  string    `json:"item_name"`
	IsSpecial bool      `json:"is_special"`
	Allergens []string  `json:"allergens"`
}

// Store keeps menus and opt-ins in the shared database.
type Store struct {
	db  *store.DB
	now func() time.Time
}

func NewStore(db *store.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Day returns the menu for date ordered by meal, then position.
func (s *Store) Day(ctx context.Context, date string) ([]Item, error) {
	rows, err := s.db.Client.QueryContext(ctx, s.db.Rebind(`
		SELECT id, `+s.db.DateText("menu_date")+`, meal, position, item_name, is_special, allergens
		FROM menu_items
		WHERE menu_date = $1
	`), date)
	if err != nil {
		return nil, fmt.Errorf("menu: day: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var (
			it        Item
			mealName  string
			allergens string
		)
		if err := rows.Scan(&it.ID, &it.MenuDate, &mealName, &it.Position, &it.ItemName, &it.IsSpecial, &allergens); err != nil {
			return nil, err
		}
		it.Meal = meal.Meal(mealName)
		it.Allergens = splitAllergens(allergens)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Meal != items[j].Meal {
			return mealIndex(items[i].Meal) < mealIndex(items[j].Meal)
		}
		return items[i].Position < items[j].Position
	})
	return items, nil
}

// ReplaceDay swaps the whole menu for date in one transaction. Positions are
// assigned per meal in the order given.
func (s *Store) ReplaceDay(ctx context.Context, date string, items []Item) ([]Item, error) {
	for _, it := range items {
		if !it.Meal.Valid() || strings.TrimSpace(it.ItemName) == "" {
			return nil, fmt.Errorf("%w: %q for %q", ErrInvalidItem, it.ItemName, it.Meal)
		}
	}

	tx, err := s.db.Client.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("menu: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM menu_items WHERE menu_date = $1`), date); err != nil {
		return nil, fmt.Errorf("menu: clear day: %w", err)
	}

	insert := s.db.Rebind(`
		INSERT INTO menu_items (id, menu_date, meal, position, item_name, is_special, allergens)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	positions := make(map[meal.Meal]int, 3)
	saved := make([]Item, 0, len(items))
	for _, it := range items {
		it.ID = uuid.NewString()
		it.MenuDate = date
		it.ItemName = strings.TrimSpace(it.ItemName)
		it.Position = positions[it.Meal]
		positions[it.Meal]++
		it.Allergens = splitAllergens(strings.Join(it.Allergens, ","))
		if _, err := tx.ExecContext(ctx, insert, it.ID, date, string(it.Meal), it.Position, it.ItemName, it.IsSpecial, strings.Join(it.Allergens, ",")); err != nil {
			return nil, fmt.Errorf("menu: insert item: %w", err)
		}
		saved = append(saved, it)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("menu: commit: %w", err)
	}
	return saved, nil
}

// SetOptIn records whether the user intends to eat the meal on date.
func (s *Store) SetOptIn(ctx context.Context, userID, date string, m meal.Meal, opted bool) error {
	if !m.Valid() {
		return meal.ErrUnknownMeal
	}
	_, err := s.db.Client.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO meal_opt (user_id, opt_date, meal, is_opted, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, opt_date, meal)
		DO UPDATE SET is_opted = excluded.is_opted, updated_at = excluded.updated_at
	`), userID, date, string(m), opted, s.now().UTC())
	if err != nil {
		return fmt.Errorf("menu: set opt-in: %w", err)
	}
	return nil
}

// OptIns returns the user's choices for date. Meals never chosen are absent.
func (s *Store) OptIns(ctx context.Context, userID, date string) (map[meal.Meal]bool, error) {
	rows, err := s.db.Client.QueryContext(ctx, s.db.Rebind(`
		SELECT meal, is_opted FROM meal_opt WHERE user_id = $1 AND opt_date = $2
	`), userID, date)
	if err != nil {
		return nil, fmt.Errorf("menu: opt-ins: %w", err)
	}
	defer rows.Close()

	res := make(map[meal.Meal]bool, 3)
	for rows.Next() {
		var (
			m     string
			opted bool
		)
		if err := rows.Scan(&m, &opted); err != nil {
			return nil, err
		}
		res[meal.Meal(m)] = opted
	}
	return res, rows.Err()
}

// OptedCounts returns how many students opted in to each meal on date.
func (s *Store) OptedCounts(ctx context.Context, date string) (map[meal.Meal]int, error) {
	rows, err := s.db.Client.QueryContext(ctx, s.db.Rebind(`
		SELECT meal, COUNT(*) FROM meal_opt WHERE opt_date = $1 AND is_opted GROUP BY meal
	`), date)
	if err != nil {
		return nil, fmt.Errorf("menu: opted counts: %w", err)
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
		counts[meal.Meal(m)] = n
	}
	return counts, rows.Err()
}

func mealIndex(m meal.Meal) int {
	for i, candidate := range meal.All() {
		if candidate == m {
			return i
		}
	}
	return len(meal.All())
}

func splitAllergens(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
