package menu

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodforge/internal/meal"
	"foodforge/internal/store"
)

func newTestStore(t *testing.T) (*Store, *store.DB) {
	t.Helper()
	db, err := store.NewSQLite(filepath.Join(t.TempDir(), "menu.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	for _, id := range []string{"u1", "u2", "u3"} {
		_, err := db.Client.Exec(db.Rebind(`INSERT INTO profiles (id, email, full_name, role, password_hash) VALUES ($1, $2, $1, 'student', 'x')`), id, id+"@example.edu")
		require.NoError(t, err)
	}
	return NewStore(db), db
}

func TestReplaceDayAndDay(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	saved, err := s.ReplaceDay(ctx, "2026-10-18", []Item{
		{Meal: meal.Dinner, ItemName: "Paneer butter masala", IsSpecial: true, Allergens: []string{"Dairy", " nuts "}},
		{Meal: meal.Breakfast, ItemName: "Poha"},
		{Meal: meal.Breakfast, ItemName: "Masala chai", Allergens: []string{"dairy"}},
	})
	require.NoError(t, err)
	require.Len(t, saved, 3)
	assert.Equal(t, 1, saved[2].Position)

	day, err := s.Day(ctx, "2026-10-18")
	require.NoError(t, err)
	require.Len(t, day, 3)
	assert.Equal(t, "Poha", day[0].ItemName)
	assert.Equal(t, "Masala chai", day[1].ItemName)
	assert.Equal(t, meal.Dinner, day[2].Meal)
	assert.True(t, day[2].IsSpecial)
	assert.Equal(t, []string{"dairy", "nuts"}, day[2].Allergens)
	assert.Equal(t, "2026-10-18", day[2].MenuDate)
	assert.Empty(t, day[0].Allergens)

	// Replacing drops the previous items.
	_, err = s.ReplaceDay(ctx, "2026-10-18", []Item{{Meal: meal.Lunch, ItemName: "Rajma chawal"}})
	require.NoError(t, err)
	day, err = s.Day(ctx, "2026-10-18")
	require.NoError(t, err)
	require.Len(t, day, 1)
	assert.Equal(t, meal.Lunch, day[0].Meal)

	other, err := s.Day(ctx, "2026-10-19")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestReplaceDayRejectsInvalidItems(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.ReplaceDay(ctx, "2026-10-18", []Item{{Meal: meal.Lunch, ItemName: "Dal"}})
	require.NoError(t, err)

	_, err = s.ReplaceDay(ctx, "2026-10-18", []Item{{Meal: meal.Lunch, ItemName: "Rice"}, {Meal: "supper", ItemName: "Soup"}})
	assert.ErrorIs(t, err, ErrInvalidItem)
	_, err = s.ReplaceDay(ctx, "2026-10-18", []Item{{Meal: meal.Lunch, ItemName: " "}})
	assert.ErrorIs(t, err, ErrInvalidItem)

	day, err := s.Day(ctx, "2026-10-18")
	require.NoError(t, err)
	require.Len(t, day, 1)
	assert.Equal(t, "Dal", day[0].ItemName)
}

func TestOptIns(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	date := "2026-10-18"

	require.NoError(t, s.SetOptIn(ctx, "u1", date, meal.Lunch, true))
	require.NoError(t, s.SetOptIn(ctx, "u2", date, meal.Lunch, true))
	require.NoError(t, s.SetOptIn(ctx, "u3", date, meal.Lunch, true))
	require.NoError(t, s.SetOptIn(ctx, "u3", date, meal.Lunch, false))
	require.NoError(t, s.SetOptIn(ctx, "u1", date, meal.Dinner, true))
	require.NoError(t, s.SetOptIn(ctx, "u1", "2026-10-19", meal.Dinner, true))

	assert.ErrorIs(t, s.SetOptIn(ctx, "u1", date, "tea", true), meal.ErrUnknownMeal)

	counts, err := s.OptedCounts(ctx, date)
	require.NoError(t, err)
	assert.Equal(t, map[meal.Meal]int{meal.Lunch: 2, meal.Dinner: 1}, counts)

	mine, err := s.OptIns(ctx, "u3", date)
	require.NoError(t, err)
	assert.Equal(t, map[meal.Meal]bool{meal.Lunch: false}, mine)
}
