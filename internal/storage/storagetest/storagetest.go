// Package storagetest holds behavior every storage.Store must share. Backends
// call Run from their own tests.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kakeibo/internal/core"
	"kakeibo/internal/storage"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) storage.Store

func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"users", testUsers},
		{"categories", testCategories},
		{"category delete cascade", testDeleteCategory},
		{"expenses", testExpenses},
		{"expense ordering", testExpenseOrdering},
		{"budgets", testBudgets},
		{"user scoping", testScoping},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func mustUser(t *testing.T, s storage.Store, email string) core.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), core.User{
		Name:         "Hanako",
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return u
}

func mustCategory(t *testing.T, s storage.Store, userID, name string, order int) core.Category {
	t.Helper()
	c, err := s.CreateCategory(context.Background(), core.Category{
		UserID: userID, Name: name, Color: core.PaletteColor(order), SortOrder: order,
	})
	require.NoError(t, err)
	return c
}

func mustExpense(t *testing.T, s storage.Store, userID, categoryID string, day core.Date, cents int64, order int) core.Expense {
	t.Helper()
	e, err := s.CreateExpense(context.Background(), core.Expense{
		UserID: userID, CategoryID: categoryID, Date: day,
		Amount: core.Money{Cents: cents}, Memo: "memo", SortOrder: order,
	})
	require.NoError(t, err)
	return e
}

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = id(it)
	}
	return out
}

func expenseID(e core.Expense) string   { return e.ID }
func categoryID(c core.Category) string { return c.ID }

func testUsers(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "hanako@example.com")
	assert.NotEmpty(t, u.ID)

	got, err := s.GetUserByEmail(ctx, "HANAKO@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	got, err = s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash", got.PasswordHash)

	_, err = s.CreateUser(ctx, core.User{Name: "x", Email: "Hanako@Example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, storage.ErrConflict)

	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testCategories(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "a@example.com")

	n, err := s.CountCategories(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	seeded, err := s.CreateCategories(ctx, u.ID, core.DefaultCategories())
	require.NoError(t, err)
	require.Len(t, seeded, 3)

	_, err = s.CreateCategory(ctx, core.Category{UserID: u.ID, Name: "食費"})
	assert.ErrorIs(t, err, storage.ErrConflict)

	list, err := s.ListCategories(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"食費", "交通費", "日用品"}, []string{list[0].Name, list[1].Name, list[2].Name})

	renamed := list[0]
	renamed.Name = "外食"
	_, err = s.UpdateCategory(ctx, renamed)
	require.NoError(t, err)
	got, err := s.GetCategory(ctx, u.ID, renamed.ID)
	require.NoError(t, err)
	assert.Equal(t, "外食", got.Name)

	clash := list[1]
	clash.Name = "日用品"
	_, err = s.UpdateCategory(ctx, clash)
	assert.ErrorIs(t, err, storage.ErrConflict)

	reversed := []string{list[2].ID, list[1].ID, list[0].ID}
	require.NoError(t, s.SetCategoryOrder(ctx, u.ID, reversed))
	list, err = s.ListCategories(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, reversed, ids(list, categoryID))
	assert.Equal(t, 2, list[2].SortOrder)

	assert.ErrorIs(t, s.SetCategoryOrder(ctx, u.ID, []string{"missing"}), storage.ErrNotFound)

	// a failing batch leaves nothing behind
	_, err = s.CreateCategories(ctx, u.ID, []core.Category{{Name: "新規"}, {Name: "外食"}})
	assert.ErrorIs(t, err, storage.ErrConflict)
	n, err = s.CountCategories(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func testDeleteCategory(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "a@example.com")
	food := mustCategory(t, s, u.ID, "食費", 0)
	transit := mustCategory(t, s, u.ID, "交通費", 1)
	day := core.NewDate(2025, 3, 10)
	march := day.YearMonth()

	e1 := mustExpense(t, s, u.ID, food.ID, day, 1200, 0)
	e2 := mustExpense(t, s, u.ID, transit.ID, day, 300, 1)
	_, err := s.UpsertBudget(ctx, core.Budget{UserID: u.ID, CategoryID: food.ID, Month: march, Amount: core.FromUnits(30000)})
	require.NoError(t, err)
	_, err = s.UpsertBudget(ctx, core.Budget{UserID: u.ID, CategoryID: food.ID, Month: march.Next(), Amount: core.FromUnits(30000)})
	require.NoError(t, err)
	keep, err := s.UpsertBudget(ctx, core.Budget{UserID: u.ID, CategoryID: transit.ID, Month: march, Amount: core.FromUnits(5000)})
	require.NoError(t, err)

	res, err := s.DeleteCategory(ctx, u.ID, food.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.DeleteResult{ExpensesUncategorized: 1, BudgetsDeleted: 2}, res)

	_, err = s.GetCategory(ctx, u.ID, food.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := s.GetExpense(ctx, u.ID, e1.ID)
	require.NoError(t, err)
	assert.Empty(t, got.CategoryID)
	got, err = s.GetExpense(ctx, u.ID, e2.ID)
	require.NoError(t, err)
	assert.Equal(t, transit.ID, got.CategoryID)

	budgets, err := s.ListBudgets(ctx, u.ID, core.YearMonth{})
	require.NoError(t, err)
	require.Len(t, budgets, 1)
	assert.Equal(t, keep.ID, budgets[0].ID)

	_, err = s.DeleteCategory(ctx, u.ID, food.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testExpenses(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "a@example.com")
	food := mustCategory(t, s, u.ID, "食費", 0)

	feb := mustExpense(t, s, u.ID, food.ID, core.NewDate(2025, 2, 28), 500, 0)
	mar := mustExpense(t, s, u.ID, "", core.NewDate(2025, 3, 1), 800, 0)

	all, err := s.ListExpenses(ctx, u.ID, storage.ExpenseQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{feb.ID, mar.ID}, ids(all, expenseID))

	march, err := s.ListExpenses(ctx, u.ID, storage.ExpenseQuery{Month: core.NewDate(2025, 3, 1).YearMonth()})
	require.NoError(t, err)
	require.Len(t, march, 1)
	assert.Equal(t, mar.ID, march[0].ID)
	assert.Empty(t, march[0].CategoryID)
	assert.Equal(t, "2025-03-01", march[0].Date.Key())
	assert.Equal(t, int64(800), march[0].Amount.Cents)

	mar.CategoryID = food.ID
	mar.Amount = core.Money{Cents: 900}
	_, err = s.UpdateExpense(ctx, mar)
	require.NoError(t, err)
	got, err := s.GetExpense(ctx, u.ID, mar.ID)
	require.NoError(t, err)
	assert.Equal(t, food.ID, got.CategoryID)
	assert.Equal(t, int64(900), got.Amount.Cents)

	require.NoError(t, s.DeleteExpense(ctx, u.ID, feb.ID))
	assert.ErrorIs(t, s.DeleteExpense(ctx, u.ID, feb.ID), storage.ErrNotFound)

	missing := mar
	missing.ID = "missing"
	_, err = s.UpdateExpense(ctx, missing)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testExpenseOrdering(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "a@example.com")
	day := core.NewDate(2025, 3, 10)
	other := core.NewDate(2025, 3, 11)

	a := mustExpense(t, s, u.ID, "", day, 100, 0)
	b := mustExpense(t, s, u.ID, "", day, 200, 1)
	c := mustExpense(t, s, u.ID, "", day, 300, 2)
	d := mustExpense(t, s, u.ID, "", other, 400, 0)

	require.NoError(t, s.SetExpenseOrder(ctx, u.ID, []string{c.ID, a.ID, b.ID}))
	all, err := s.ListExpenses(ctx, u.ID, storage.ExpenseQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID, a.ID, b.ID, d.ID}, ids(all, expenseID))

	moved := core.MoveDay(all, day, other)
	require.Len(t, moved, 3)
	require.NoError(t, s.MoveExpenses(ctx, u.ID, moved))

	all, err = s.ListExpenses(ctx, u.ID, storage.ExpenseQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{d.ID, c.ID, a.ID, b.ID}, ids(all, expenseID))
	for _, e := range all {
		assert.Equal(t, other.Key(), e.Date.Key())
	}
}

func testBudgets(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "a@example.com")
	food := mustCategory(t, s, u.ID, "食費", 0)
	march := core.NewDate(2025, 3, 1).YearMonth()

	b, err := s.CreateBudget(ctx, core.Budget{UserID: u.ID, CategoryID: food.ID, Month: march, Amount: core.FromUnits(1000)})
	require.NoError(t, err)

	_, err = s.CreateBudget(ctx, core.Budget{UserID: u.ID, CategoryID: food.ID, Month: march, Amount: core.FromUnits(5)})
	assert.ErrorIs(t, err, storage.ErrConflict)

	up, err := s.UpsertBudget(ctx, core.Budget{UserID: u.ID, CategoryID: food.ID, Month: march, Amount: core.FromUnits(2000)})
	require.NoError(t, err)
	assert.Equal(t, b.ID, up.ID)
	assert.Equal(t, core.FromUnits(2000), up.Amount)

	list, err := s.ListBudgets(ctx, u.ID, march)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, march, list[0].Month)

	list, err = s.ListBudgets(ctx, u.ID, march.Next())
	require.NoError(t, err)
	assert.Empty(t, list)

	up.Amount = core.FromUnits(0)
	_, err = s.UpdateBudget(ctx, up)
	require.NoError(t, err)
	got, err := s.GetBudget(ctx, u.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.IsZero())

	require.NoError(t, s.DeleteBudget(ctx, u.ID, b.ID))
	_, err = s.GetBudget(ctx, u.ID, b.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testScoping(t *testing.T, s storage.Store) {
	ctx := context.Background()
	owner := mustUser(t, s, "owner@example.com")
	intruder := mustUser(t, s, "intruder@example.com")
	c := mustCategory(t, s, owner.ID, "食費", 0)
	e := mustExpense(t, s, owner.ID, c.ID, core.NewDate(2025, 3, 1), 100, 0)

	_, err := s.GetCategory(ctx, intruder.ID, c.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetExpense(ctx, intruder.ID, e.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteExpense(ctx, intruder.ID, e.ID), storage.ErrNotFound)
	_, err = s.DeleteCategory(ctx, intruder.ID, c.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	list, err := s.ListExpenses(ctx, intruder.ID, storage.ExpenseQuery{})
	require.NoError(t, err)
	assert.Empty(t, list)

	// same name is fine across users
	_, err = s.CreateCategory(ctx, core.Category{UserID: intruder.ID, Name: "食費"})
	assert.NoError(t, err)
}
