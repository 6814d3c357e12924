package meal

import (
	"errors"
	"strings"
	"time"
)

// Meal is one of the three daily servings.
type Meal string

const (
	Breakfast Meal = "breakfast"
	Lunch     Meal = "lunch"
	Dinner    Meal = "dinner"
)

// ErrUnknownMeal is returned by Parse for anything other than the three servings.
var ErrUnknownMeal = errors.New("unknown meal")

// All returns the meals in serving order.
func All() []Meal {
	return []Meal{Breakfast, Lunch, Dinner}
}

// Classify maps a wall-clock hour to the meal being served.
// Breakfast is [6,10), lunch is [11,15); every other hour counts as dinner,
// including 10 and the afternoon gap.
func Classify(hour int) Meal {
	switch {
	case hour >= 6 && hour < 10:
		return Breakfast
	case hour >= 11 && hour < 15:
		return Lunch
	default:
		return Dinner
	}
}

// At classifies t by its hour in t's own location.
func At(t time.Time) Meal {
	return Classify(t.Hour())
}

// Parse accepts a meal name case-insensitively.
func Parse(s string) (Meal, error) {
	m := Meal(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", ErrUnknownMeal
	}
	return m, nil
}

// Valid reports whether m is a known meal.
func (m Meal) Valid() bool {
	switch m {
	case Breakfast, Lunch, Dinner:
		return true
	}
	return false
}

// Title returns the capitalised meal name, e.g. "Breakfast".
func (m Meal) Title() string {
	if m == "" {
		return ""
	}
	return strings.ToUpper(string(m[:1])) + string(m[1:])
}

func (m Meal) String() string { return string(m) }
