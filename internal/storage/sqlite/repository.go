// Package sqlite stores users, categories, expenses and budgets in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/storage"
)

var _ storage.Store = (*Repository)(nil)

type Repository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
	now     func() time.Time
}

// DSN enables foreign keys and a busy timeout on every pooled connection.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Open creates the database directory if needed, migrates and returns the repository.
func Open(ctx context.Context, dbPath string, logger *log.Logger) (*Repository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentStorage)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("SQLite database ready", "path", dbPath, log.FieldOperation, log.OpMigrate)

	return &Repository{
		db:      db,
		queries: New(db),
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// inTx runs fn in one transaction, rolling back on any error.
func (r *Repository) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(r.queries.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// mapErr translates driver errors into storage errors.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return storage.ErrNotFound
	case strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", storage.ErrConflict, err)
	case strings.Contains(err.Error(), "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %v", storage.ErrNotFound, err)
	default:
		return err
	}
}

func affected(n int64, err error) error {
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func ensureID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// Users

func (r *Repository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	u.ID = ensureID(u.ID)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now().UTC()
	}
	if err := r.queries.CreateUser(ctx, u); err != nil {
		return core.User{}, fmt.Errorf("create user: %w", mapErr(err))
	}
	r.logger.InfoContext(ctx, "User saved to SQLite", log.FieldUserID, u.ID)
	return u, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	u, err := r.queries.GetUserByEmail(ctx, email)
	if err != nil {
		return core.User{}, mapErr(err)
	}
	return u, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (core.User, error) {
	u, err := r.queries.GetUserByID(ctx, id)
	if err != nil {
		return core.User{}, mapErr(err)
	}
	return u, nil
}

// Categories

func (r *Repository) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	items, err := r.queries.ListCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return items, nil
}

func (r *Repository) GetCategory(ctx context.Context, userID, id string) (core.Category, error) {
	c, err := r.queries.GetCategory(ctx, userID, id)
	if err != nil {
		return core.Category{}, mapErr(err)
	}
	return c, nil
}

func (r *Repository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.ID = ensureID(c.ID)
	if err := r.queries.CreateCategory(ctx, c, r.now()); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", mapErr(err))
	}
	r.logger.InfoContext(ctx, "Category saved to SQLite",
		log.FieldUserID, c.UserID, log.FieldCategoryID, c.ID, "name", c.Name)
	return c, nil
}

func (r *Repository) CreateCategories(ctx context.Context, userID string, cs []core.Category) ([]core.Category, error) {
	out := make([]core.Category, len(cs))
	now := r.now()
	err := r.inTx(ctx, func(q *Queries) error {
		for i, c := range cs {
			c.ID = ensureID(c.ID)
			c.UserID = userID
			if err := q.CreateCategory(ctx, c, now); err != nil {
				return fmt.Errorf("create category %q: %w", c.Name, mapErr(err))
			}
			out[i] = c
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := affected(r.queries.UpdateCategory(ctx, c, r.now())); err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}
	return c, nil
}

// DeleteCategory detaches expenses, drops budgets and removes the category
// atomically.
func (r *Repository) DeleteCategory(ctx context.Context, userID, id string) (storage.DeleteResult, error) {
	var res storage.DeleteResult
	err := r.inTx(ctx, func(q *Queries) error {
		if _, err := q.GetCategory(ctx, userID, id); err != nil {
			return mapErr(err)
		}
		n, err := q.UncategorizeExpenses(ctx, userID, id, r.now())
		if err != nil {
			return fmt.Errorf("uncategorize expenses: %w", err)
		}
		res.ExpensesUncategorized = n
		if n, err = q.DeleteBudgetsForCategory(ctx, userID, id); err != nil {
			return fmt.Errorf("delete budgets: %w", err)
		}
		res.BudgetsDeleted = n
		return affected(q.DeleteCategory(ctx, userID, id))
	})
	if err != nil {
		return storage.DeleteResult{}, err
	}
	r.logger.InfoContext(ctx, "Category deleted",
		log.FieldUserID, userID, log.FieldCategoryID, id,
		"expenses_uncategorized", res.ExpensesUncategorized,
		"budgets_deleted", res.BudgetsDeleted)
	return res, nil
}

func (r *Repository) SetCategoryOrder(ctx context.Context, userID string, ids []string) error {
	now := r.now()
	return r.inTx(ctx, func(q *Queries) error {
		for i, id := range ids {
			if err := affected(q.SetCategorySortOrder(ctx, userID, id, i, now)); err != nil {
				return fmt.Errorf("reorder category %s: %w", id, err)
			}
		}
		return nil
	})
}

func (r *Repository) CountCategories(ctx context.Context, userID string) (int, error) {
	return r.queries.CountCategories(ctx, userID)
}

// Expenses

func (r *Repository) ListExpenses(ctx context.Context, userID string, q storage.ExpenseQuery) ([]core.Expense, error) {
	var (
		items []core.Expense
		err   error
	)
	if q.Month.IsZero() {
		items, err = r.queries.ListExpenses(ctx, userID)
	} else {
		items, err = r.queries.ListExpensesBetween(ctx, userID, q.Month.First(), q.Month.Next().First())
	}
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return items, nil
}

func (r *Repository) GetExpense(ctx context.Context, userID, id string) (core.Expense, error) {
	e, err := r.queries.GetExpense(ctx, userID, id)
	if err != nil {
		return core.Expense{}, mapErr(err)
	}
	return e, nil
}

func (r *Repository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e.ID = ensureID(e.ID)
	if err := r.queries.CreateExpense(ctx, e, r.now()); err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", mapErr(err))
	}
	r.logger.InfoContext(ctx, "Expense saved to SQLite",
		log.NewFields().
			WithUser(e.UserID).
			WithExpense(e.ID, e.CategoryID, e.Date.Key(), e.Amount.Cents).
			ToSlice()...)
	return e, nil
}

func (r *Repository) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := affected(r.queries.UpdateExpense(ctx, e, r.now())); err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	return e, nil
}

func (r *Repository) DeleteExpense(ctx context.Context, userID, id string) error {
	if err := affected(r.queries.DeleteExpense(ctx, userID, id)); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}

func (r *Repository) SetExpenseOrder(ctx context.Context, userID string, ids []string) error {
	now := r.now()
	return r.inTx(ctx, func(q *Queries) error {
		for i, id := range ids {
			if err := affected(q.SetExpenseSortOrder(ctx, userID, id, i, now)); err != nil {
				return fmt.Errorf("reorder expense %s: %w", id, err)
			}
		}
		return nil
	})
}

func (r *Repository) MoveExpenses(ctx context.Context, userID string, moved []core.Expense) error {
	now := r.now()
	return r.inTx(ctx, func(q *Queries) error {
		for _, e := range moved {
			if err := affected(q.SetExpensePlacement(ctx, userID, e.ID, e.Date, e.SortOrder, now)); err != nil {
				return fmt.Errorf("move expense %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

// Budgets

func (r *Repository) ListBudgets(ctx context.Context, userID string, month core.YearMonth) ([]core.Budget, error) {
	var (
		items []core.Budget
		err   error
	)
	if month.IsZero() {
		items, err = r.queries.ListBudgets(ctx, userID)
	} else {
		items, err = r.queries.ListBudgetsForMonth(ctx, userID, month)
	}
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return items, nil
}

func (r *Repository) GetBudget(ctx context.Context, userID, id string) (core.Budget, error) {
	b, err := r.queries.GetBudget(ctx, userID, id)
	if err != nil {
		return core.Budget{}, mapErr(err)
	}
	return b, nil
}

func (r *Repository) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	b.ID = ensureID(b.ID)
	if err := r.queries.CreateBudget(ctx, b, r.now()); err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", mapErr(err))
	}
	return b, nil
}

func (r *Repository) UpdateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if err := affected(r.queries.UpdateBudget(ctx, b, r.now())); err != nil {
		return core.Budget{}, fmt.Errorf("update budget: %w", err)
	}
	return b, nil
}

func (r *Repository) UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	b.ID = ensureID(b.ID)
	saved, err := r.queries.UpsertBudget(ctx, b, r.now())
	if err != nil {
		return core.Budget{}, fmt.Errorf("upsert budget: %w", mapErr(err))
	}
	r.logger.InfoContext(ctx, "Budget saved to SQLite",
		log.FieldUserID, saved.UserID, log.FieldCategoryID, saved.CategoryID,
		log.FieldMonth, saved.Month.String(), log.FieldAmountCents, saved.Amount.Cents)
	return saved, nil
}

func (r *Repository) DeleteBudget(ctx context.Context, userID, id string) error {
	if err := affected(r.queries.DeleteBudget(ctx, userID, id)); err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	return nil
}
