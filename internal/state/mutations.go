package state

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"

	"kakeibo/internal/client"
	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/storage"
)

const tempPrefix = "tmp-"

func newTempID() string { return tempPrefix + uuid.NewString() }

// IsPending reports whether id is a local placeholder the server has not
// confirmed yet.
func IsPending(id string) bool { return strings.HasPrefix(id, tempPrefix) }

func categoryID(c core.Category) string { return c.ID }
func expenseID(e core.Expense) string   { return e.ID }
func budgetID(b core.Budget) string     { return b.ID }

func indexByID[T any](list []T, id string, key func(T) string) int {
	return slices.IndexFunc(list, func(v T) bool { return key(v) == id })
}

// replaceOrInsert puts v where the record with id sits, or at pos when it is
// gone.
func replaceOrInsert[T any](list []T, id string, v T, pos int, key func(T) string) []T {
	if i := indexByID(list, id, key); i >= 0 {
		list[i] = v
		return list
	}
	pos = min(max(pos, 0), len(list))
	return slices.Insert(list, pos, v)
}

func removeByID[T any](list []T, id string, key func(T) string) []T {
	if i := indexByID(list, id, key); i >= 0 {
		return slices.Delete(list, i, i+1)
	}
	return list
}

// nextDayOrder is the sort order that appends to day.
func nextDayOrder(expenses []core.Expense, day core.Date) int {
	next := 0
	for _, e := range expenses {
		if e.Date.SameDay(day) && e.SortOrder >= next {
			next = e.SortOrder + 1
		}
	}
	return next
}

func (snap *Snapshot) holds(d core.Date) bool {
	return snap.Month.IsZero() || snap.Month.Contains(d)
}

// putExpense reconciles a server record into the month, dropping it when it
// now belongs to another month.
func (snap *Snapshot) putExpense(localID string, e core.Expense, pos int) {
	if !snap.holds(e.Date) {
		snap.Expenses = removeByID(snap.Expenses, localID, expenseID)
		return
	}
	snap.Expenses = replaceOrInsert(snap.Expenses, localID, e, pos, expenseID)
}

// restoreExpenses puts back the saved versions of the given records.
func (snap *Snapshot) restoreExpenses(saved map[string]core.Expense) {
	for i, e := range snap.Expenses {
		if old, ok := saved[e.ID]; ok {
			snap.Expenses[i] = old
		}
	}
}

func (s *Store) CreateExpense(ctx context.Context, in client.ExpenseInput) (core.Expense, error) {
	in.Date = core.NormalizeDate(in.Date.Time)
	local := core.Expense{
		ID:         newTempID(),
		Amount:     in.Amount,
		Memo:       in.Memo,
		CategoryID: in.CategoryID,
		Date:       in.Date,
	}
	if err := local.Validate(); err != nil {
		return core.Expense{}, err
	}
	return mutate(ctx, s, log.OpCreate, []Resource{Expenses},
		func(snap *Snapshot) (undoFunc, error) {
			if !snap.holds(local.Date) {
				return nil, nil
			}
			local.SortOrder = nextDayOrder(snap.Expenses, local.Date)
			snap.Expenses = append(snap.Expenses, local)
			return func(snap *Snapshot) {
				snap.Expenses = removeByID(snap.Expenses, local.ID, expenseID)
			}, nil
		},
		func(ctx context.Context) (core.Expense, error) { return s.remote.CreateExpense(ctx, in) },
		func(snap *Snapshot, e core.Expense) { snap.putExpense(local.ID, e, len(snap.Expenses)) },
	)
}

func (s *Store) UpdateExpense(ctx context.Context, id string, p client.ExpensePatch) (core.Expense, error) {
	if p.Date != nil {
		d := core.NormalizeDate(p.Date.Time)
		p.Date = &d
	}
	var pos int
	return mutate(ctx, s, log.OpUpdate, []Resource{Expenses},
		func(snap *Snapshot) (undoFunc, error) {
			pos = indexByID(snap.Expenses, id, expenseID)
			if pos < 0 {
				return nil, ErrUnknownRecord
			}
			old := snap.Expenses[pos]
			next := old
			if p.Amount != nil {
				next.Amount = *p.Amount
			}
			if p.Memo != nil {
				next.Memo = *p.Memo
			}
			if p.CategoryID != nil {
				next.CategoryID = *p.CategoryID
			}
			if p.Date != nil && !p.Date.SameDay(old.Date) {
				next.Date = *p.Date
				next.SortOrder = nextDayOrder(snap.Expenses, next.Date)
			}
			if p.SortOrder != nil {
				next.SortOrder = *p.SortOrder
			}
			if err := next.Validate(); err != nil {
				return nil, err
			}
			snap.putExpense(id, next, pos)
			return func(snap *Snapshot) {
				snap.Expenses = replaceOrInsert(snap.Expenses, id, old, pos, expenseID)
			}, nil
		},
		func(ctx context.Context) (core.Expense, error) { return s.remote.UpdateExpense(ctx, id, p) },
		func(snap *Snapshot, e core.Expense) { snap.putExpense(id, e, pos) },
	)
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	_, err := mutate(ctx, s, log.OpDelete, []Resource{Expenses},
		func(snap *Snapshot) (undoFunc, error) {
			pos := indexByID(snap.Expenses, id, expenseID)
			if pos < 0 {
				return nil, ErrUnknownRecord
			}
			old := snap.Expenses[pos]
			snap.Expenses = slices.Delete(snap.Expenses, pos, pos+1)
			return func(snap *Snapshot) {
				snap.Expenses = replaceOrInsert(snap.Expenses, id, old, pos, expenseID)
			}, nil
		},
		func(ctx context.Context) (struct{}, error) { return struct{}{}, s.remote.DeleteExpense(ctx, id) },
		nil,
	)
	return err
}

// replaceExpenses swaps in new versions of existing records and returns the
// undo for it.
func (snap *Snapshot) replaceExpenses(changed []core.Expense) undoFunc {
	saved := make(map[string]core.Expense, len(changed))
	byID := make(map[string]core.Expense, len(changed))
	for _, e := range changed {
		byID[e.ID] = e
	}
	for i, e := range snap.Expenses {
		if next, ok := byID[e.ID]; ok {
			saved[e.ID] = e
			snap.Expenses[i] = next
		}
	}
	return func(snap *Snapshot) { snap.restoreExpenses(saved) }
}

func (snap *Snapshot) reconcileExpenses(server []core.Expense) {
	for _, e := range server {
		snap.putExpense(e.ID, e, len(snap.Expenses))
	}
}

// ReorderExpenses moves the day's expense at from to position to.
func (s *Store) ReorderExpenses(ctx context.Context, day core.Date, from, to int) ([]core.Expense, error) {
	day = core.NormalizeDate(day.Time)
	return mutate(ctx, s, log.OpReorder, []Resource{Expenses},
		func(snap *Snapshot) (undoFunc, error) {
			reordered, err := core.Reorder(core.DayExpenses(snap.Expenses, day), from, to)
			if err != nil {
				return nil, core.NewValidationError("from", err)
			}
			return snap.replaceExpenses(reordered), nil
		},
		func(ctx context.Context) ([]core.Expense, error) { return s.remote.ReorderExpenses(ctx, day, from, to) },
		(*Snapshot).reconcileExpenses,
	)
}

// MoveDay re-dates every expense of from to to.
func (s *Store) MoveDay(ctx context.Context, from, to core.Date) ([]core.Expense, error) {
	from, to = core.NormalizeDate(from.Time), core.NormalizeDate(to.Time)
	return mutate(ctx, s, log.OpMove, []Resource{Expenses},
		func(snap *Snapshot) (undoFunc, error) {
			moved := core.MoveDay(snap.Expenses, from, to)
			if len(moved) == 0 {
				return nil, nil
			}
			undo := snap.replaceExpenses(moved)
			if !snap.holds(to) {
				saved := slices.Clone(snap.Expenses)
				snap.Expenses = slices.DeleteFunc(snap.Expenses, func(e core.Expense) bool { return e.Date.SameDay(to) })
				return func(snap *Snapshot) {
					for i, e := range saved {
						if e.Date.SameDay(to) {
							snap.Expenses = replaceOrInsert(snap.Expenses, e.ID, e, i, expenseID)
						}
					}
					undo(snap)
				}, nil
			}
			return undo, nil
		},
		func(ctx context.Context) ([]core.Expense, error) { return s.remote.MoveDay(ctx, from, to) },
		(*Snapshot).reconcileExpenses,
	)
}

func (s *Store) CreateCategory(ctx context.Context, in client.CategoryInput) (core.Category, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Color = core.NormalizeColor(in.Color)
	local := core.Category{ID: newTempID(), Name: in.Name, Color: in.Color}
	if err := local.Validate(); err != nil {
		return core.Category{}, err
	}
	return mutate(ctx, s, log.OpCreate, []Resource{Categories},
		func(snap *Snapshot) (undoFunc, error) {
			if err := core.CheckNameAvailable(snap.Categories, local.Name, ""); err != nil {
				return nil, err
			}
			local.SortOrder = len(snap.Categories)
			if in.SortOrder != nil {
				local.SortOrder = *in.SortOrder
			}
			if local.Color == "" {
				local.Color = core.PaletteColor(len(snap.Categories))
			}
			snap.Categories = append(snap.Categories, local)
			return func(snap *Snapshot) {
				snap.Categories = removeByID(snap.Categories, local.ID, categoryID)
			}, nil
		},
		func(ctx context.Context) (core.Category, error) { return s.remote.CreateCategory(ctx, in) },
		func(snap *Snapshot, c core.Category) {
			snap.Categories = core.SortCategories(replaceOrInsert(snap.Categories, local.ID, c, len(snap.Categories), categoryID))
		},
	)
}

// UpdateCategory renames or recolors a category. Expenses and budgets refer
// to it by ID, so they follow without being touched.
func (s *Store) UpdateCategory(ctx context.Context, id string, p client.CategoryPatch) (core.Category, error) {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		p.Name = &name
	}
	if p.Color != nil {
		color := core.NormalizeColor(*p.Color)
		p.Color = &color
	}
	var pos int
	return mutate(ctx, s, log.OpUpdate, []Resource{Categories},
		func(snap *Snapshot) (undoFunc, error) {
			pos = indexByID(snap.Categories, id, categoryID)
			if pos < 0 {
				return nil, ErrUnknownRecord
			}
			old := snap.Categories[pos]
			next := old
			if p.Name != nil {
				if err := core.CheckNameAvailable(snap.Categories, *p.Name, id); err != nil {
					return nil, err
				}
				next.Name = *p.Name
			}
			if p.Color != nil {
				next.Color = *p.Color
			}
			if p.SortOrder != nil {
				next.SortOrder = *p.SortOrder
			}
			if err := next.Validate(); err != nil {
				return nil, err
			}
			snap.Categories[pos] = next
			return func(snap *Snapshot) {
				snap.Categories = replaceOrInsert(snap.Categories, id, old, pos, categoryID)
			}, nil
		},
		func(ctx context.Context) (core.Category, error) { return s.remote.UpdateCategory(ctx, id, p) },
		func(snap *Snapshot, c core.Category) {
			snap.Categories = core.SortCategories(replaceOrInsert(snap.Categories, id, c, pos, categoryID))
		},
	)
}

// ReorderCategories moves the category at display position from to position
// to. Positions come out dense even when the stored ones have gaps.
func (s *Store) ReorderCategories(ctx context.Context, from, to int) ([]core.Category, error) {
	return mutate(ctx, s, log.OpReorder, []Resource{Categories},
		func(snap *Snapshot) (undoFunc, error) {
			saved := core.SortCategories(snap.Categories)
			reordered, err := core.Reorder(saved, from, to)
			if err != nil {
				return nil, core.NewValidationError("from", err)
			}
			snap.Categories = reordered
			return func(snap *Snapshot) { snap.restoreCategoryOrder(saved) }, nil
		},
		func(ctx context.Context) ([]core.Category, error) { return s.remote.ReorderCategories(ctx, from, to) },
		func(snap *Snapshot, server []core.Category) {
			for _, c := range server {
				snap.Categories = replaceOrInsert(snap.Categories, c.ID, c, len(snap.Categories), categoryID)
			}
			snap.Categories = core.SortCategories(snap.Categories)
		},
	)
}

// restoreCategoryOrder puts back the positions and order of saved. Categories
// added since then keep their place after the saved ones.
func (snap *Snapshot) restoreCategoryOrder(saved []core.Category) {
	rank := make(map[string]int, len(saved))
	for i, c := range saved {
		rank[c.ID] = i
	}
	for i, c := range snap.Categories {
		if r, ok := rank[c.ID]; ok {
			snap.Categories[i].SortOrder = saved[r].SortOrder
		}
	}
	slices.SortStableFunc(snap.Categories, func(a, b core.Category) int {
		ra, okA := rank[a.ID]
		rb, okB := rank[b.ID]
		switch {
		case okA && okB:
			return cmp.Compare(ra, rb)
		case okA:
			return -1
		case okB:
			return 1
		}
		return 0
	})
}

// DeleteCategory removes the category, clears it from its expenses and drops
// its budgets, mirroring what the server does in one transaction.
func (s *Store) DeleteCategory(ctx context.Context, id string) (storage.DeleteResult, error) {
	return mutate(ctx, s, log.OpDelete, []Resource{Categories, Expenses, Budgets},
		func(snap *Snapshot) (undoFunc, error) {
			pos := indexByID(snap.Categories, id, categoryID)
			if pos < 0 {
				return nil, ErrUnknownRecord
			}
			old := snap.Categories[pos]
			snap.Categories = slices.Delete(snap.Categories, pos, pos+1)

			saved := make(map[string]core.Expense)
			for i, e := range snap.Expenses {
				if e.CategoryID == id {
					saved[e.ID] = e
					snap.Expenses[i].CategoryID = ""
				}
			}

			type placed struct {
				pos int
				b   core.Budget
			}
			var dropped []placed
			for i, b := range snap.Budgets {
				if b.CategoryID == id {
					dropped = append(dropped, placed{i, b})
				}
			}
			snap.Budgets = slices.DeleteFunc(snap.Budgets, func(b core.Budget) bool { return b.CategoryID == id })

			return func(snap *Snapshot) {
				snap.Categories = replaceOrInsert(snap.Categories, id, old, pos, categoryID)
				snap.restoreExpenses(saved)
				for _, d := range dropped {
					snap.Budgets = replaceOrInsert(snap.Budgets, d.b.ID, d.b, d.pos, budgetID)
				}
			}, nil
		},
		func(ctx context.Context) (storage.DeleteResult, error) { return s.remote.DeleteCategory(ctx, id) },
		nil,
	)
}

// SetBudget creates or replaces the budget of (category, month).
func (s *Store) SetBudget(ctx context.Context, in client.BudgetInput) (core.Budget, error) {
	local := core.Budget{ID: newTempID(), CategoryID: in.CategoryID, Month: in.Month, Amount: in.Amount}
	if err := local.Validate(); err != nil {
		return core.Budget{}, err
	}
	localID := local.ID
	var pos int
	return mutate(ctx, s, log.OpUpdate, []Resource{Budgets},
		func(snap *Snapshot) (undoFunc, error) {
			if !snap.Month.IsZero() && snap.Month != in.Month {
				return nil, nil
			}
			pos = slices.IndexFunc(snap.Budgets, func(b core.Budget) bool {
				return b.CategoryID == in.CategoryID && b.Month == in.Month
			})
			if pos >= 0 {
				old := snap.Budgets[pos]
				localID = old.ID
				snap.Budgets[pos].Amount = in.Amount
				return func(snap *Snapshot) {
					snap.Budgets = replaceOrInsert(snap.Budgets, old.ID, old, pos, budgetID)
				}, nil
			}
			pos = len(snap.Budgets)
			local.SortOrder = pos
			snap.Budgets = append(snap.Budgets, local)
			return func(snap *Snapshot) {
				snap.Budgets = removeByID(snap.Budgets, local.ID, budgetID)
			}, nil
		},
		func(ctx context.Context) (core.Budget, error) { return s.remote.SetBudget(ctx, in) },
		func(snap *Snapshot, b core.Budget) {
			if !snap.Month.IsZero() && snap.Month != b.Month {
				return
			}
			snap.Budgets = replaceOrInsert(snap.Budgets, localID, b, pos, budgetID)
		},
	)
}

func (s *Store) DeleteBudget(ctx context.Context, id string) error {
	_, err := mutate(ctx, s, log.OpDelete, []Resource{Budgets},
		func(snap *Snapshot) (undoFunc, error) {
			pos := indexByID(snap.Budgets, id, budgetID)
			if pos < 0 {
				return nil, ErrUnknownRecord
			}
			old := snap.Budgets[pos]
			snap.Budgets = slices.Delete(snap.Budgets, pos, pos+1)
			return func(snap *Snapshot) {
				snap.Budgets = replaceOrInsert(snap.Budgets, id, old, pos, budgetID)
			}, nil
		},
		func(ctx context.Context) (struct{}, error) { return struct{}{}, s.remote.DeleteBudget(ctx, id) },
		nil,
	)
	return err
}
