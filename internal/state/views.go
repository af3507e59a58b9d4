package state

import (
	"strings"

	"kakeibo/internal/core"
)

// Views are recomputed from a snapshot on every call; they never touch the
// store's own slices.

func (s *Store) Calendar() []core.CalendarDay {
	snap := s.Snapshot()
	return core.CalendarMonth(snap.Expenses, core.NewCategoryIndex(snap.Categories), snap.Month)
}

// Day returns the expenses of day in display order and their total.
func (s *Store) Day(day core.Date) ([]core.Expense, core.Money) {
	snap := s.Snapshot()
	return core.DayExpenses(snap.Expenses, day), core.DailyTotals(snap.Expenses, day)
}

// Budgets returns one status per category for the current month.
func (s *Store) Budgets() []core.BudgetStatus {
	snap := s.Snapshot()
	return core.BudgetStatuses(core.NewCategoryIndex(snap.Categories), snap.Budgets, snap.Expenses, snap.Month)
}

func (s *Store) Pie(sortBy core.PieSort) []core.PieSlice {
	snap := s.Snapshot()
	return core.PieBreakdown(snap.Expenses, core.NewCategoryIndex(snap.Categories), core.InMonth(snap.Month), sortBy)
}

func (s *Store) Summary() core.MonthOverview {
	snap := s.Snapshot()
	return core.MonthSummary(snap.Expenses, core.NewCategoryIndex(snap.Categories), snap.Month)
}

// CategoryByName resolves a category the way a user types it.
func (s *Store) CategoryByName(name string) (core.Category, bool) {
	snap := s.Snapshot()
	return core.NewCategoryIndex(snap.Categories).ByName(strings.TrimSpace(name))
}
