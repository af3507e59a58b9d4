package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kakeibo/internal/client"
	"kakeibo/internal/core"
	"kakeibo/internal/storage"
)

var (
	june    = core.YearMonth{Year: 2024, Month: time.June}
	day5    = core.NewDate(2024, 6, 5)
	day6    = core.NewDate(2024, 6, 6)
	errDown = errors.New("server unavailable")
)

// fakeRemote serves fixed collections and fails every write when fail is set.
type fakeRemote struct {
	categories []core.Category
	expenses   []core.Expense
	budgets    []core.Budget
	fail       error
	calls      int
	onCall     func()
}

func (f *fakeRemote) write() error {
	f.calls++
	if f.onCall != nil {
		f.onCall()
	}
	return f.fail
}

func (f *fakeRemote) ListCategories(context.Context) ([]core.Category, error) {
	return append([]core.Category(nil), f.categories...), nil
}

func (f *fakeRemote) ListExpenses(context.Context, core.YearMonth) ([]core.Expense, error) {
	return append([]core.Expense(nil), f.expenses...), nil
}

func (f *fakeRemote) ListBudgets(context.Context, core.YearMonth) ([]core.Budget, error) {
	return append([]core.Budget(nil), f.budgets...), nil
}

func (f *fakeRemote) CreateExpense(_ context.Context, in client.ExpenseInput) (core.Expense, error) {
	if err := f.write(); err != nil {
		return core.Expense{}, err
	}
	return core.Expense{ID: "srv-e", Amount: in.Amount, Memo: in.Memo, CategoryID: in.CategoryID, Date: in.Date, SortOrder: 9}, nil
}

func (f *fakeRemote) UpdateExpense(_ context.Context, id string, p client.ExpensePatch) (core.Expense, error) {
	if err := f.write(); err != nil {
		return core.Expense{}, err
	}
	for _, e := range f.expenses {
		if e.ID == id {
			if p.Amount != nil {
				e.Amount = *p.Amount
			}
			if p.Date != nil {
				e.Date = *p.Date
			}
			return e, nil
		}
	}
	return core.Expense{}, &client.APIError{Status: 404, Message: "not found"}
}

func (f *fakeRemote) DeleteExpense(context.Context, string) error { return f.write() }

func (f *fakeRemote) ReorderExpenses(_ context.Context, day core.Date, from, to int) ([]core.Expense, error) {
	if err := f.write(); err != nil {
		return nil, err
	}
	return core.Reorder(core.DayExpenses(f.expenses, day), from, to)
}

func (f *fakeRemote) MoveDay(_ context.Context, from, to core.Date) ([]core.Expense, error) {
	if err := f.write(); err != nil {
		return nil, err
	}
	return core.MoveDay(f.expenses, from, to), nil
}

func (f *fakeRemote) CreateCategory(_ context.Context, in client.CategoryInput) (core.Category, error) {
	if err := f.write(); err != nil {
		return core.Category{}, err
	}
	return core.Category{ID: "srv-c", Name: in.Name, Color: "#123456", SortOrder: len(f.categories)}, nil
}

func (f *fakeRemote) UpdateCategory(_ context.Context, id string, p client.CategoryPatch) (core.Category, error) {
	if err := f.write(); err != nil {
		return core.Category{}, err
	}
	for _, c := range f.categories {
		if c.ID == id {
			if p.Name != nil {
				c.Name = *p.Name
			}
			return c, nil
		}
	}
	return core.Category{}, &client.APIError{Status: 404, Message: "not found"}
}

func (f *fakeRemote) DeleteCategory(context.Context, string) (storage.DeleteResult, error) {
	if err := f.write(); err != nil {
		return storage.DeleteResult{}, err
	}
	return storage.DeleteResult{ExpensesUncategorized: 2, BudgetsDeleted: 1}, nil
}

func (f *fakeRemote) ReorderCategories(_ context.Context, from, to int) ([]core.Category, error) {
	if err := f.write(); err != nil {
		return nil, err
	}
	return core.Reorder(core.SortCategories(f.categories), from, to)
}

func (f *fakeRemote) SetBudget(_ context.Context, in client.BudgetInput) (core.Budget, error) {
	if err := f.write(); err != nil {
		return core.Budget{}, err
	}
	return core.Budget{ID: "b-" + in.CategoryID, CategoryID: in.CategoryID, Month: in.Month, Amount: in.Amount}, nil
}

func (f *fakeRemote) DeleteBudget(context.Context, string) error { return f.write() }

func seededRemote() *fakeRemote {
	return &fakeRemote{
		categories: []core.Category{
			{ID: "food", Name: "Food", Color: "#ff0000", SortOrder: 0},
			{ID: "rent", Name: "Rent", Color: "#00ff00", SortOrder: 1},
		},
		expenses: []core.Expense{
			{ID: "e1", Amount: core.FromUnits(1000), CategoryID: "food", Date: day5, SortOrder: 0},
			{ID: "e2", Amount: core.FromUnits(500), CategoryID: "food", Date: day5, SortOrder: 1},
			{ID: "e3", Amount: core.FromUnits(80000), CategoryID: "rent", Date: day6, SortOrder: 0},
		},
		budgets: []core.Budget{
			{ID: "b1", CategoryID: "food", Month: june, Amount: core.FromUnits(5000)},
		},
	}
}

func loadedStore(t *testing.T) (*Store, *fakeRemote) {
	t.Helper()
	remote := seededRemote()
	s := New(remote, june, nil)
	require.NoError(t, s.Refresh(context.Background()))
	return s, remote
}

func TestRefresh(t *testing.T) {
	s, _ := loadedStore(t)
	snap := s.Snapshot()

	assert.Len(t, snap.Categories, 2)
	assert.Len(t, snap.Expenses, 3)
	assert.Len(t, snap.Budgets, 1)
	assert.Equal(t, june, snap.Month)
}

func TestSnapshotIsACopy(t *testing.T) {
	s, _ := loadedStore(t)
	snap := s.Snapshot()
	snap.Expenses[0].Amount = core.FromUnits(1)
	snap.Categories = nil

	again := s.Snapshot()
	assert.Equal(t, core.FromUnits(1000), again.Expenses[0].Amount)
	assert.Len(t, again.Categories, 2)
}

func TestStaleFetchIsDropped(t *testing.T) {
	s, _ := loadedStore(t)

	older := s.BeginFetch(Expenses)
	newer := s.BeginFetch(Expenses)

	fresh := []core.Expense{{ID: "fresh", Amount: core.FromUnits(1), Date: day5}}
	stale := []core.Expense{{ID: "stale", Amount: core.FromUnits(2), Date: day5}}

	assert.True(t, s.applyFetch(Expenses, newer, june, fresh))
	assert.False(t, s.applyFetch(Expenses, older, june, stale), "an older response arriving last must not win")

	snap := s.Snapshot()
	require.Len(t, snap.Expenses, 1)
	assert.Equal(t, "fresh", snap.Expenses[0].ID)
}

func TestFetchForPreviousMonthIsDropped(t *testing.T) {
	s, _ := loadedStore(t)
	gen := s.BeginFetch(Expenses)

	require.NoError(t, s.SetMonth(context.Background(), june.Next()))
	assert.False(t, s.applyFetch(Expenses, gen, june, nil))
	assert.Equal(t, june.Next(), s.Month())
}

func TestMutationInvalidatesInFlightFetch(t *testing.T) {
	s, remote := loadedStore(t)
	gen := s.BeginFetch(Expenses)
	beforeDelete := append([]core.Expense(nil), remote.expenses...)

	require.NoError(t, s.DeleteExpense(context.Background(), "e1"))

	assert.False(t, s.applyFetch(Expenses, gen, june, beforeDelete))
	assert.Len(t, s.Snapshot().Expenses, 2)
}

func TestCreateExpenseReconcilesServerRecord(t *testing.T) {
	s, remote := loadedStore(t)
	var during Snapshot
	remote.onCall = func() { during = s.Snapshot() }

	created, err := s.CreateExpense(context.Background(), client.ExpenseInput{
		Amount: core.FromUnits(300), CategoryID: "food", Date: day5, Memo: "coffee",
	})
	require.NoError(t, err)
	assert.Equal(t, "srv-e", created.ID)

	require.Len(t, during.Expenses, 4)
	pending := during.Expenses[3]
	assert.True(t, IsPending(pending.ID), "optimistic record should carry a temporary id")
	assert.Equal(t, 2, pending.SortOrder)

	snap := s.Snapshot()
	require.Len(t, snap.Expenses, 4)
	for _, e := range snap.Expenses {
		assert.False(t, IsPending(e.ID))
	}
	assert.Equal(t, 9, snap.Expenses[3].SortOrder, "server fields replace the optimistic ones")
}

func TestCreateExpenseRejectsInvalidInputLocally(t *testing.T) {
	s, remote := loadedStore(t)
	_, err := s.CreateExpense(context.Background(), client.ExpenseInput{Amount: core.FromUnits(1)})
	assert.True(t, core.IsValidationError(err))
	assert.Zero(t, remote.calls)
}

func TestFailedMutationsRestoreState(t *testing.T) {
	ctx := context.Background()
	amount := core.FromUnits(42)
	name := "Groceries"

	tests := []struct {
		name   string
		mutate func(s *Store) error
	}{
		{"create expense", func(s *Store) error {
			_, err := s.CreateExpense(ctx, client.ExpenseInput{Amount: amount, Date: day5})
			return err
		}},
		{"update expense", func(s *Store) error {
			_, err := s.UpdateExpense(ctx, "e1", client.ExpensePatch{Amount: &amount})
			return err
		}},
		{"move expense to another month", func(s *Store) error {
			d := core.NewDate(2024, 7, 1)
			_, err := s.UpdateExpense(ctx, "e2", client.ExpensePatch{Date: &d})
			return err
		}},
		{"delete expense", func(s *Store) error { return s.DeleteExpense(ctx, "e2") }},
		{"reorder expenses", func(s *Store) error {
			_, err := s.ReorderExpenses(ctx, day5, 0, 1)
			return err
		}},
		{"move day", func(s *Store) error {
			_, err := s.MoveDay(ctx, day5, day6)
			return err
		}},
		{"create category", func(s *Store) error {
			_, err := s.CreateCategory(ctx, client.CategoryInput{Name: "Travel"})
			return err
		}},
		{"rename category", func(s *Store) error {
			_, err := s.UpdateCategory(ctx, "food", client.CategoryPatch{Name: &name})
			return err
		}},
		{"reorder categories", func(s *Store) error {
			_, err := s.ReorderCategories(ctx, 0, 1)
			return err
		}},
		{"delete category", func(s *Store) error {
			_, err := s.DeleteCategory(ctx, "food")
			return err
		}},
		{"set existing budget", func(s *Store) error {
			_, err := s.SetBudget(ctx, client.BudgetInput{CategoryID: "food", Month: june, Amount: amount})
			return err
		}},
		{"set new budget", func(s *Store) error {
			_, err := s.SetBudget(ctx, client.BudgetInput{CategoryID: "rent", Month: june, Amount: amount})
			return err
		}},
		{"delete budget", func(s *Store) error { return s.DeleteBudget(ctx, "b1") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, remote := loadedStore(t)
			remote.fail = errDown
			before := s.Snapshot()

			var during Snapshot
			remote.onCall = func() { during = s.Snapshot() }

			err := tt.mutate(s)
			require.ErrorIs(t, err, errDown)
			assert.Equal(t, 1, remote.calls)
			assert.NotEqual(t, before, during, "change should be visible before the server answers")
			assert.Equal(t, before, s.Snapshot())
		})
	}
}

func TestDeleteCategoryCascadesLocally(t *testing.T) {
	s, _ := loadedStore(t)

	res, err := s.DeleteCategory(context.Background(), "food")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.ExpensesUncategorized)

	snap := s.Snapshot()
	assert.Len(t, snap.Categories, 1)
	assert.Empty(t, snap.Budgets)
	for _, e := range snap.Expenses {
		assert.NotEqual(t, "food", e.CategoryID)
	}

	statuses := s.Budgets()
	require.Len(t, statuses, 1)
	assert.Equal(t, "rent", statuses[0].CategoryID)
}

func TestCategoryNameIsCheckedLocally(t *testing.T) {
	s, remote := loadedStore(t)

	_, err := s.CreateCategory(context.Background(), client.CategoryInput{Name: " Food "})
	assert.ErrorIs(t, err, core.ErrDuplicateCategory)

	rent := "Rent"
	_, err = s.UpdateCategory(context.Background(), "food", client.CategoryPatch{Name: &rent})
	assert.ErrorIs(t, err, core.ErrDuplicateCategory)
	assert.Zero(t, remote.calls)
}

func TestRenameKeepsExpensesAttached(t *testing.T) {
	s, _ := loadedStore(t)
	name := "Groceries"

	_, err := s.UpdateCategory(context.Background(), "food", client.CategoryPatch{Name: &name})
	require.NoError(t, err)

	pie := s.Pie(core.SortByCategory)
	require.Len(t, pie, 2)
	assert.Equal(t, "Groceries", pie[0].Name)
	assert.Equal(t, core.FromUnits(1500), pie[0].Amount)
}

func TestReorderAndMoveDay(t *testing.T) {
	s, _ := loadedStore(t)
	ctx := context.Background()

	_, err := s.ReorderExpenses(ctx, day5, 1, 0)
	require.NoError(t, err)
	es, total := s.Day(day5)
	require.Len(t, es, 2)
	assert.Equal(t, "e2", es[0].ID)
	assert.Equal(t, core.FromUnits(1500), total)

	_, err = s.ReorderExpenses(ctx, day5, 0, 5)
	assert.ErrorIs(t, err, core.ErrIndexOutOfRange)

	_, err = s.MoveDay(ctx, day5, day6)
	require.NoError(t, err)
	es, _ = s.Day(day6)
	assert.Len(t, es, 3)
	es, _ = s.Day(day5)
	assert.Empty(t, es)
}

func TestReorderCategories(t *testing.T) {
	remote := seededRemote()
	remote.categories = append(remote.categories, core.Category{ID: "fun", Name: "Fun", Color: "#0000ff", SortOrder: 7})
	remote.categories[1].SortOrder = 4
	s := New(remote, june, nil)
	ctx := context.Background()
	require.NoError(t, s.Refresh(ctx))

	var during []string
	remote.onCall = func() {
		for _, c := range s.Snapshot().Categories {
			during = append(during, c.ID)
		}
	}
	out, err := s.ReorderCategories(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []string{"fun", "food", "rent"}, during)

	cats := s.Snapshot().Categories
	for i, c := range cats {
		assert.Equal(t, i, c.SortOrder)
	}
	assert.Equal(t, "fun", cats[0].ID)
	assert.Equal(t, "Fun", s.Budgets()[0].CategoryName)

	_, err = s.ReorderCategories(ctx, 0, 3)
	assert.ErrorIs(t, err, core.ErrIndexOutOfRange)
	assert.Equal(t, cats, s.Snapshot().Categories)
}

func TestSetBudgetUpsertsAndDerivesStatus(t *testing.T) {
	s, _ := loadedStore(t)
	ctx := context.Background()

	b, err := s.SetBudget(ctx, client.BudgetInput{CategoryID: "rent", Month: june, Amount: core.FromUnits(100000)})
	require.NoError(t, err)
	assert.Equal(t, "b-rent", b.ID)

	statuses := s.Budgets()
	require.Len(t, statuses, 2)
	assert.Equal(t, int64(30), statuses[0].UsagePercentage)
	assert.Equal(t, int64(80), statuses[1].UsagePercentage)

	_, err = s.SetBudget(ctx, client.BudgetInput{CategoryID: "food", Month: june, Amount: core.FromUnits(1500)})
	require.NoError(t, err)
	assert.Len(t, s.Snapshot().Budgets, 2)
	assert.Equal(t, int64(100), s.Budgets()[0].UsagePercentage)
}

func TestSubscribe(t *testing.T) {
	s, _ := loadedStore(t)
	var seen []int
	unsubscribe := s.Subscribe(func(snap Snapshot) { seen = append(seen, len(snap.Expenses)) })

	require.NoError(t, s.DeleteExpense(context.Background(), "e3"))
	assert.Equal(t, []int{2, 2}, seen, "one notification for the optimistic change, one after reconcile")

	unsubscribe()
	require.NoError(t, s.DeleteExpense(context.Background(), "e2"))
	assert.Len(t, seen, 2)
}

func TestUnknownRecord(t *testing.T) {
	s, remote := loadedStore(t)
	assert.ErrorIs(t, s.DeleteExpense(context.Background(), "nope"), ErrUnknownRecord)
	assert.ErrorIs(t, s.DeleteBudget(context.Background(), "nope"), ErrUnknownRecord)
	_, err := s.DeleteCategory(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownRecord)
	assert.Zero(t, remote.calls)
}

func TestCalendarView(t *testing.T) {
	s, _ := loadedStore(t)
	days := s.Calendar()
	require.Len(t, days, 2)
	assert.Equal(t, "2024-06-05", days[0].Date.Key())
	assert.Equal(t, core.FromUnits(1500), days[0].Total)

	ov := s.Summary()
	assert.Equal(t, 3, ov.Count)
	assert.Equal(t, core.FromUnits(81500), ov.Total)
}
