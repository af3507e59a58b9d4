package core

import (
	"cmp"
	"slices"
)

func (c *Category) SetPosition(i int) { c.SortOrder = i }

func (e *Expense) SetPosition(i int) { e.SortOrder = i }

func (b *Budget) SetPosition(i int) { b.SortOrder = i }

// Reorder moves the item at from to position to and renumbers every item's
// sort order to its index. Moving an item onto itself returns an unchanged copy.
func Reorder[T any, PT interface {
	*T
	SetPosition(int)
}](list []T, from, to int) ([]T, error) {
	if from < 0 || from >= len(list) || to < 0 || to >= len(list) {
		return nil, ErrIndexOutOfRange
	}
	out := slices.Clone(list)
	if from == to {
		return out, nil
	}
	item := out[from]
	out = slices.Delete(out, from, from+1)
	out = slices.Insert(out, to, item)
	for i := range out {
		PT(&out[i]).SetPosition(i)
	}
	return out, nil
}

// SortCategories orders categories by sort order, keeping input order on ties.
func SortCategories(categories []Category) []Category {
	out := slices.Clone(categories)
	slices.SortStableFunc(out, func(a, b Category) int { return cmp.Compare(a.SortOrder, b.SortOrder) })
	return out
}

// SortExpenses orders expenses by day, then by sort order within the day.
func SortExpenses(expenses []Expense) []Expense {
	out := slices.Clone(expenses)
	slices.SortStableFunc(out, func(a, b Expense) int {
		if c := cmp.Compare(a.Date.Key(), b.Date.Key()); c != 0 {
			return c
		}
		return cmp.Compare(a.SortOrder, b.SortOrder)
	})
	return out
}

func SortBudgets(budgets []Budget) []Budget {
	out := slices.Clone(budgets)
	slices.SortStableFunc(out, func(a, b Budget) int { return cmp.Compare(a.SortOrder, b.SortOrder) })
	return out
}

// DayExpenses returns the expenses of one day in display order.
func DayExpenses(expenses []Expense, day Date) []Expense {
	return SortExpenses(filterExpenses(expenses, OnDay(day)))
}

// MoveDay returns the expenses of from re-dated to to. They are placed after
// whatever to already holds, keeping their relative order.
func MoveDay(expenses []Expense, from, to Date) []Expense {
	if from.SameDay(to) {
		return nil
	}
	next := 0
	for _, e := range expenses {
		if e.Date.SameDay(to) && e.SortOrder >= next {
			next = e.SortOrder + 1
		}
	}
	moved := DayExpenses(expenses, from)
	for i := range moved {
		moved[i].Date = to
		moved[i].SortOrder = next + i
	}
	return moved
}
