// Package storage defines the repository ports shared by the SQLite and
// in-memory backends. Every read and write is scoped to one user.
package storage

import (
	"context"
	"errors"

	"kakeibo/internal/core"
)

var (
	// ErrNotFound is returned for missing rows and for rows owned by another user.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

// ExpenseQuery narrows ListExpenses. A zero Month lists everything.
type ExpenseQuery struct {
	Month core.YearMonth
}

// DeleteResult reports what a category delete touched.
type DeleteResult struct {
	ExpensesUncategorized int64 `json:"expensesUncategorized"`
	BudgetsDeleted        int64 `json:"budgetsDeleted"`
}

type (
	UserRepository interface {
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
		GetUserByID(ctx context.Context, id string) (core.User, error)
	}

	CategoryRepository interface {
		ListCategories(ctx context.Context, userID string) ([]core.Category, error)
		GetCategory(ctx context.Context, userID, id string) (core.Category, error)
		CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
		// CreateCategories inserts all or none.
		CreateCategories(ctx context.Context, userID string, cs []core.Category) ([]core.Category, error)
		UpdateCategory(ctx context.Context, c core.Category) (core.Category, error)
		// DeleteCategory uncategorizes the category's expenses, drops its
		// budgets and removes it in one transaction.
		DeleteCategory(ctx context.Context, userID, id string) (DeleteResult, error)
		// SetCategoryOrder sets each listed category's sort order to its index.
		SetCategoryOrder(ctx context.Context, userID string, ids []string) error
		CountCategories(ctx context.Context, userID string) (int, error)
	}

	ExpenseRepository interface {
		ListExpenses(ctx context.Context, userID string, q ExpenseQuery) ([]core.Expense, error)
		GetExpense(ctx context.Context, userID, id string) (core.Expense, error)
		CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		DeleteExpense(ctx context.Context, userID, id string) error
		// SetExpenseOrder sets each listed expense's sort order to its index.
		SetExpenseOrder(ctx context.Context, userID string, ids []string) error
		// MoveExpenses writes the date and sort order of every expense given.
		MoveExpenses(ctx context.Context, userID string, moved []core.Expense) error
	}

	BudgetRepository interface {
		ListBudgets(ctx context.Context, userID string, month core.YearMonth) ([]core.Budget, error)
		GetBudget(ctx context.Context, userID, id string) (core.Budget, error)
		CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error)
		UpdateBudget(ctx context.Context, b core.Budget) (core.Budget, error)
		// UpsertBudget creates or replaces the amount for (user, category, month).
		UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error)
		DeleteBudget(ctx context.Context, userID, id string) error
	}

	// Store is everything a backend provides.
	Store interface {
		UserRepository
		CategoryRepository
		ExpenseRepository
		BudgetRepository
		Ping(ctx context.Context) error
		Close() error
	}
)
