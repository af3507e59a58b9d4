package client

import (
	"context"
	"net/http"
	"net/url"

	"kakeibo/internal/core"
	"kakeibo/internal/services"
	"kakeibo/internal/storage"
)

type CategoryInput struct {
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	SortOrder *int   `json:"sortOrder,omitempty"`
}

type CategoryPatch struct {
	Name      *string `json:"name,omitempty"`
	Color     *string `json:"color,omitempty"`
	SortOrder *int    `json:"sortOrder,omitempty"`
}

type ExpenseInput struct {
	Amount     core.Money `json:"amount"`
	Memo       string     `json:"memo,omitempty"`
	CategoryID string     `json:"categoryId,omitempty"`
	Date       core.Date  `json:"date"`
}

// ExpensePatch sends only the fields that are set. A CategoryID pointing at
// "" uncategorizes the expense.
type ExpensePatch struct {
	Amount     *core.Money `json:"amount,omitempty"`
	Memo       *string     `json:"memo,omitempty"`
	CategoryID *string     `json:"categoryId,omitempty"`
	Date       *core.Date  `json:"date,omitempty"`
	SortOrder  *int        `json:"sortOrder,omitempty"`
}

type BudgetInput struct {
	CategoryID string         `json:"categoryId"`
	Month      core.YearMonth `json:"month"`
	Amount     core.Money     `json:"amount"`
}

type BudgetPatch struct {
	CategoryID *string         `json:"categoryId,omitempty"`
	Month      *core.YearMonth `json:"month,omitempty"`
	Amount     *core.Money     `json:"amount,omitempty"`
	SortOrder  *int            `json:"sortOrder,omitempty"`
}

// Calendar is the month grid feed.
type Calendar struct {
	Month core.YearMonth     `json:"month"`
	Days  []core.CalendarDay `json:"days"`
}

type loginResponse struct {
	User  core.User `json:"user"`
	Token string    `json:"token"`
}

func (c *Client) Register(ctx context.Context, name, email, password string) (core.User, error) {
	var u core.User
	err := c.do(ctx, http.MethodPost, "/api/auth/register", nil,
		map[string]string{"name": name, "email": email, "password": password}, &u)
	return u, err
}

// Login starts a session; later calls are authenticated with it.
func (c *Client) Login(ctx context.Context, email, password string) (core.User, error) {
	var out loginResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", nil,
		map[string]string{"email": email, "password": password}, &out); err != nil {
		return core.User{}, err
	}
	c.setToken(out.Token)
	return out.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, nil)
	c.setToken("")
	return err
}

func (c *Client) Me(ctx context.Context) (core.User, error) {
	var u core.User
	err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, nil, &u)
	return u, err
}

func (c *Client) ListCategories(ctx context.Context) ([]core.Category, error) {
	var out []core.Category
	err := c.do(ctx, http.MethodGet, "/api/categories", nil, nil, &out)
	return out, err
}

func (c *Client) CreateCategory(ctx context.Context, in CategoryInput) (core.Category, error) {
	var out core.Category
	err := c.do(ctx, http.MethodPost, "/api/categories", nil, in, &out)
	return out, err
}

func (c *Client) UpdateCategory(ctx context.Context, id string, p CategoryPatch) (core.Category, error) {
	var out core.Category
	err := c.do(ctx, http.MethodPut, "/api/categories/"+escape(id), nil, p, &out)
	return out, err
}

// DeleteCategory removes the category, uncategorizing its expenses and
// dropping its budgets on the server.
func (c *Client) DeleteCategory(ctx context.Context, id string) (storage.DeleteResult, error) {
	var out storage.DeleteResult
	err := c.do(ctx, http.MethodDelete, "/api/categories/"+escape(id), nil, nil, &out)
	return out, err
}

func (c *Client) ReorderCategories(ctx context.Context, from, to int) ([]core.Category, error) {
	var out []core.Category
	err := c.do(ctx, http.MethodPost, "/api/categories/reorder", nil, map[string]int{"from": from, "to": to}, &out)
	return out, err
}

// RenameCategory is the bulk rename keyed by category name.
func (c *Client) RenameCategory(ctx context.Context, oldName, newName string) (services.RenameResult, error) {
	var out services.RenameResult
	err := c.do(ctx, http.MethodPatch, "/api/expenses", nil,
		map[string]string{"oldCategoryName": oldName, "newCategoryName": newName}, &out)
	return out, err
}

// ListExpenses lists month, or every expense when month is zero.
func (c *Client) ListExpenses(ctx context.Context, month core.YearMonth) ([]core.Expense, error) {
	var out []core.Expense
	err := c.do(ctx, http.MethodGet, "/api/expenses", monthQuery(month), nil, &out)
	return out, err
}

func (c *Client) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	var out core.Expense
	err := c.do(ctx, http.MethodGet, "/api/expenses/"+escape(id), nil, nil, &out)
	return out, err
}

func (c *Client) CreateExpense(ctx context.Context, in ExpenseInput) (core.Expense, error) {
	var out core.Expense
	err := c.do(ctx, http.MethodPost, "/api/expenses", nil, in, &out)
	return out, err
}

func (c *Client) UpdateExpense(ctx context.Context, id string, p ExpensePatch) (core.Expense, error) {
	var out core.Expense
	err := c.do(ctx, http.MethodPut, "/api/expenses/"+escape(id), nil, p, &out)
	return out, err
}

func (c *Client) DeleteExpense(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/expenses/"+escape(id), nil, nil, nil)
}

func (c *Client) ReorderExpenses(ctx context.Context, day core.Date, from, to int) ([]core.Expense, error) {
	var out []core.Expense
	err := c.do(ctx, http.MethodPost, "/api/expenses/reorder", nil,
		map[string]any{"date": day, "from": from, "to": to}, &out)
	return out, err
}

func (c *Client) MoveDay(ctx context.Context, from, to core.Date) ([]core.Expense, error) {
	var out []core.Expense
	err := c.do(ctx, http.MethodPost, "/api/expenses/move", nil, map[string]core.Date{"from": from, "to": to}, &out)
	return out, err
}

func (c *Client) ListBudgets(ctx context.Context, month core.YearMonth) ([]core.Budget, error) {
	var out []core.Budget
	err := c.do(ctx, http.MethodGet, "/api/budgets", monthQuery(month), nil, &out)
	return out, err
}

func (c *Client) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	var out core.Budget
	err := c.do(ctx, http.MethodGet, "/api/budgets/"+escape(id), nil, nil, &out)
	return out, err
}

func (c *Client) CreateBudget(ctx context.Context, in BudgetInput) (core.Budget, error) {
	var out core.Budget
	err := c.do(ctx, http.MethodPost, "/api/budgets", nil, in, &out)
	return out, err
}

// SetBudget creates or replaces the budget for (category, month).
func (c *Client) SetBudget(ctx context.Context, in BudgetInput) (core.Budget, error) {
	var out core.Budget
	err := c.do(ctx, http.MethodPut, "/api/budgets/set", nil, in, &out)
	return out, err
}

func (c *Client) UpdateBudget(ctx context.Context, id string, p BudgetPatch) (core.Budget, error) {
	var out core.Budget
	err := c.do(ctx, http.MethodPut, "/api/budgets/"+escape(id), nil, p, &out)
	return out, err
}

func (c *Client) DeleteBudget(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/budgets/"+escape(id), nil, nil, nil)
}

func (c *Client) Calendar(ctx context.Context, month core.YearMonth) (Calendar, error) {
	var out Calendar
	err := c.do(ctx, http.MethodGet, "/api/dashboard/calendar", monthQuery(month), nil, &out)
	return out, err
}

func (c *Client) Day(ctx context.Context, day core.Date) (services.DayView, error) {
	var out services.DayView
	err := c.do(ctx, http.MethodGet, "/api/dashboard/day", url.Values{"date": {day.Key()}}, nil, &out)
	return out, err
}

func (c *Client) BudgetStatuses(ctx context.Context, month core.YearMonth) ([]core.BudgetStatus, error) {
	var out []core.BudgetStatus
	err := c.do(ctx, http.MethodGet, "/api/dashboard/budgets", monthQuery(month), nil, &out)
	return out, err
}

func pieValues(q services.PieQuery) url.Values {
	v := url.Values{}
	if q.Sort != "" {
		v.Set("sort", string(q.Sort))
	}
	switch {
	case q.Date != nil:
		v.Set("date", q.Date.Key())
	case q.Month != nil:
		v.Set("month", q.Month.String())
	}
	return v
}

func (c *Client) Pie(ctx context.Context, q services.PieQuery) ([]core.PieSlice, error) {
	var out []core.PieSlice
	err := c.do(ctx, http.MethodGet, "/api/dashboard/pie", pieValues(q), nil, &out)
	return out, err
}

func (c *Client) Summary(ctx context.Context, month core.YearMonth) (core.MonthOverview, error) {
	var out core.MonthOverview
	err := c.do(ctx, http.MethodGet, "/api/dashboard/summary", monthQuery(month), nil, &out)
	return out, err
}

// PieChart returns the rendered PNG.
func (c *Client) PieChart(ctx context.Context, q services.PieQuery) ([]byte, error) {
	raw, err := c.send(ctx, http.MethodGet, "/api/charts/pie.png", pieValues(q), nil)
	return raw, err
}

func (c *Client) BudgetChart(ctx context.Context, month core.YearMonth) ([]byte, error) {
	raw, err := c.send(ctx, http.MethodGet, "/api/charts/budgets.png", monthQuery(month), nil)
	return raw, err
}
