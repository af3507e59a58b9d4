package sqlite

import (
	"context"
	"database/sql"
	"time"

	"kakeibo/internal/core"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a copy of q bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const timeLayout = time.RFC3339Nano

func stamp(t time.Time) string { return t.UTC().Format(timeLayout) }

type scanner interface {
	Scan(dest ...interface{}) error
}

// --- users ---

const createUser = `INSERT INTO users (id, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`

func (q *Queries) CreateUser(ctx context.Context, u core.User) error {
	_, err := q.db.ExecContext(ctx, createUser, u.ID, u.Name, u.Email, u.PasswordHash, stamp(u.CreatedAt))
	return err
}

const userColumns = `id, name, email, password_hash, created_at`

func scanUser(row scanner) (core.User, error) {
	var (
		u       core.User
		created string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &created); err != nil {
		return core.User{}, err
	}
	u.CreatedAt, _ = time.Parse(timeLayout, created)
	return u, nil
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return scanUser(q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (q *Queries) GetUserByID(ctx context.Context, id string) (core.User, error) {
	return scanUser(q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// --- categories ---

const categoryColumns = `id, user_id, name, color, sort_order`

func scanCategory(row scanner) (core.Category, error) {
	var c core.Category
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Color, &c.SortOrder)
	return c, err
}

const listCategories = `SELECT ` + categoryColumns + ` FROM categories WHERE user_id = ? ORDER BY sort_order, rowid`

func (q *Queries) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (q *Queries) GetCategory(ctx context.Context, userID, id string) (core.Category, error) {
	return scanCategory(q.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE user_id = ? AND id = ?`, userID, id))
}

const createCategory = `INSERT INTO categories (id, user_id, name, color, sort_order, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateCategory(ctx context.Context, c core.Category, now time.Time) error {
	ts := stamp(now)
	_, err := q.db.ExecContext(ctx, createCategory, c.ID, c.UserID, c.Name, c.Color, c.SortOrder, ts, ts)
	return err
}

const updateCategory = `UPDATE categories SET name = ?, color = ?, sort_order = ?, updated_at = ?
WHERE user_id = ? AND id = ?`

func (q *Queries) UpdateCategory(ctx context.Context, c core.Category, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateCategory, c.Name, c.Color, c.SortOrder, stamp(now), c.UserID, c.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) SetCategorySortOrder(ctx context.Context, userID, id string, order int, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE categories SET sort_order = ?, updated_at = ? WHERE user_id = ? AND id = ?`,
		order, stamp(now), userID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) UncategorizeExpenses(ctx context.Context, userID, categoryID string, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE expenses SET category_id = NULL, updated_at = ? WHERE user_id = ? AND category_id = ?`,
		stamp(now), userID, categoryID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteBudgetsForCategory(ctx context.Context, userID, categoryID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM budgets WHERE user_id = ? AND category_id = ?`, userID, categoryID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteCategory(ctx context.Context, userID, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM categories WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) CountCategories(ctx context.Context, userID string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

// --- expenses ---

const expenseColumns = `id, user_id, category_id, amount_cents, memo, day, sort_order`

func scanExpense(row scanner) (core.Expense, error) {
	var (
		e          core.Expense
		categoryID sql.NullString
		day        string
	)
	if err := row.Scan(&e.ID, &e.UserID, &categoryID, &e.Amount.Cents, &e.Memo, &day, &e.SortOrder); err != nil {
		return core.Expense{}, err
	}
	d, err := core.ParseDate(day)
	if err != nil {
		return core.Expense{}, err
	}
	e.Date = d
	e.CategoryID = categoryID.String
	return e, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (q *Queries) listExpenses(ctx context.Context, query string, args ...interface{}) ([]core.Expense, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (q *Queries) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	return q.listExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = ? ORDER BY day, sort_order, rowid`, userID)
}

// ListExpensesBetween lists expenses with from <= day < to.
func (q *Queries) ListExpensesBetween(ctx context.Context, userID string, from, to core.Date) ([]core.Expense, error) {
	return q.listExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = ? AND day >= ? AND day < ?
ORDER BY day, sort_order, rowid`, userID, from.Key(), to.Key())
}

func (q *Queries) GetExpense(ctx context.Context, userID, id string) (core.Expense, error) {
	return scanExpense(q.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = ? AND id = ?`, userID, id))
}

const createExpense = `INSERT INTO expenses (id, user_id, category_id, amount_cents, memo, day, sort_order, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateExpense(ctx context.Context, e core.Expense, now time.Time) error {
	ts := stamp(now)
	_, err := q.db.ExecContext(ctx, createExpense,
		e.ID, e.UserID, nullable(e.CategoryID), e.Amount.Cents, e.Memo, e.Date.Key(), e.SortOrder, ts, ts)
	return err
}

const updateExpense = `UPDATE expenses SET category_id = ?, amount_cents = ?, memo = ?, day = ?, sort_order = ?, updated_at = ?
WHERE user_id = ? AND id = ?`

func (q *Queries) UpdateExpense(ctx context.Context, e core.Expense, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateExpense,
		nullable(e.CategoryID), e.Amount.Cents, e.Memo, e.Date.Key(), e.SortOrder, stamp(now), e.UserID, e.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) SetExpensePlacement(ctx context.Context, userID, id string, day core.Date, order int, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE expenses SET day = ?, sort_order = ?, updated_at = ? WHERE user_id = ? AND id = ?`,
		day.Key(), order, stamp(now), userID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) SetExpenseSortOrder(ctx context.Context, userID, id string, order int, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE expenses SET sort_order = ?, updated_at = ? WHERE user_id = ? AND id = ?`,
		order, stamp(now), userID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteExpense(ctx context.Context, userID, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM expenses WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- budgets ---

const budgetColumns = `id, user_id, category_id, month, amount_cents, sort_order`

func scanBudget(row scanner) (core.Budget, error) {
	var (
		b     core.Budget
		month string
	)
	if err := row.Scan(&b.ID, &b.UserID, &b.CategoryID, &month, &b.Amount.Cents, &b.SortOrder); err != nil {
		return core.Budget{}, err
	}
	ym, err := core.ParseYearMonth(month)
	if err != nil {
		return core.Budget{}, err
	}
	b.Month = ym
	return b, nil
}

func (q *Queries) listBudgets(ctx context.Context, query string, args ...interface{}) ([]core.Budget, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

func (q *Queries) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	return q.listBudgets(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = ? ORDER BY month, sort_order, rowid`, userID)
}

func (q *Queries) ListBudgetsForMonth(ctx context.Context, userID string, month core.YearMonth) ([]core.Budget, error) {
	return q.listBudgets(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = ? AND month = ? ORDER BY sort_order, rowid`,
		userID, month.String())
}

func (q *Queries) GetBudget(ctx context.Context, userID, id string) (core.Budget, error) {
	return scanBudget(q.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = ? AND id = ?`, userID, id))
}

const createBudget = `INSERT INTO budgets (id, user_id, category_id, month, amount_cents, sort_order, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateBudget(ctx context.Context, b core.Budget, now time.Time) error {
	ts := stamp(now)
	_, err := q.db.ExecContext(ctx, createBudget,
		b.ID, b.UserID, b.CategoryID, b.Month.String(), b.Amount.Cents, b.SortOrder, ts, ts)
	return err
}

const updateBudget = `UPDATE budgets SET category_id = ?, month = ?, amount_cents = ?, sort_order = ?, updated_at = ?
WHERE user_id = ? AND id = ?`

func (q *Queries) UpdateBudget(ctx context.Context, b core.Budget, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateBudget,
		b.CategoryID, b.Month.String(), b.Amount.Cents, b.SortOrder, stamp(now), b.UserID, b.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const upsertBudget = `INSERT INTO budgets (id, user_id, category_id, month, amount_cents, sort_order, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, category_id, month) DO UPDATE SET amount_cents = excluded.amount_cents, updated_at = excluded.updated_at
RETURNING ` + budgetColumns

func (q *Queries) UpsertBudget(ctx context.Context, b core.Budget, now time.Time) (core.Budget, error) {
	ts := stamp(now)
	return scanBudget(q.db.QueryRowContext(ctx, upsertBudget,
		b.ID, b.UserID, b.CategoryID, b.Month.String(), b.Amount.Cents, b.SortOrder, ts, ts))
}

func (q *Queries) DeleteBudget(ctx context.Context, userID, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM budgets WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
