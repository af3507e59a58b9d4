package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"kakeibo/internal/amqp"
	"kakeibo/internal/auth"
	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/storage"
	"kakeibo/internal/storage/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.ChangeEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev *amqp.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.RoutingKey()
	}
	return out
}

type fixture struct {
	store      *memory.Store
	cache      *MonthCache
	events     *recordingPublisher
	sessions   *auth.SessionManager
	auth       *AuthService
	categories *CategoryService
	expenses   *ExpenseService
	budgets    *BudgetService
	dashboard  *DashboardService
	userID     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New(),
		cache:    NewMonthCache(16, time.Minute),
		events:   &recordingPublisher{},
		sessions: auth.NewSessionManager(time.Hour),
	}
	f.auth = NewAuthService(f.store, f.sessions, f.cache, AuthOptions{BcryptCost: bcrypt.MinCost}, nil)
	f.categories = NewCategoryService(f.store, f.cache, f.events, nil)
	f.expenses = NewExpenseService(f.store, f.cache, f.events, nil)
	f.budgets = NewBudgetService(f.store, f.cache, f.events, nil)
	f.dashboard = NewDashboardService(f.store, f.cache, nil)

	ctx := context.Background()
	u, err := f.auth.Register(ctx, "Hana", "hana@example.com", "correct horse")
	require.NoError(t, err)
	_, _, err = f.auth.Login(ctx, "hana@example.com", "correct horse")
	require.NoError(t, err)
	f.userID = u.ID
	return f
}

func (f *fixture) category(t *testing.T, name string) core.Category {
	t.Helper()
	cs, err := f.categories.List(context.Background(), f.userID)
	require.NoError(t, err)
	for _, c := range cs {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no category %q", name)
	return core.Category{}
}

func (f *fixture) expense(t *testing.T, categoryID string, units int64, day core.Date) core.Expense {
	t.Helper()
	e, err := f.expenses.Create(context.Background(), f.userID, ExpenseInput{
		Amount:     core.FromUnits(units),
		CategoryID: categoryID,
		Date:       day,
	})
	require.NoError(t, err)
	return e
}

func TestAuthRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.auth.Register(ctx, "Other", "HANA@example.com ", "another pass")
	assert.ErrorIs(t, err, auth.ErrEmailTaken)

	_, err = f.auth.Register(ctx, "Bad", "not-an-email", "long enough")
	assert.True(t, core.IsValidationError(err))

	_, err = f.auth.Register(ctx, "", "", "")
	assert.ErrorIs(t, err, core.ErrMissingCredentials)

	_, err = f.auth.Register(ctx, "Short", "short@example.com", "abc")
	assert.ErrorIs(t, err, auth.ErrWeakPassword)

	_, _, err = f.auth.Login(ctx, "hana@example.com", "wrong password")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, _, err = f.auth.Login(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	u, token, err := f.auth.Login(ctx, "Hana@Example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, f.userID, u.ID)

	userID, err := f.sessions.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, f.userID, userID)

	me, err := f.auth.Me(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "hana@example.com", me.Email)

	f.auth.Logout(ctx, token)
	_, err = f.sessions.Verify(token)
	assert.Error(t, err)
}

func TestLoginSeedsCategoriesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cs, err := f.categories.List(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, cs, len(core.DefaultCategories()))
	for i, c := range cs {
		assert.Equal(t, core.DefaultCategories()[i].Name, c.Name)
	}

	_, _, err = f.auth.Login(ctx, "hana@example.com", "correct horse")
	require.NoError(t, err)
	n, err := f.store.CountCategories(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, len(cs), n)
}

func TestCategoryCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	c, err := f.categories.Create(ctx, f.userID, CategoryInput{Name: "  趣味  "})
	require.NoError(t, err)
	assert.Equal(t, "趣味", c.Name)
	assert.Equal(t, core.PaletteColor(3), c.Color)
	assert.Equal(t, 3, c.SortOrder)

	c, err = f.categories.Create(ctx, f.userID, CategoryInput{Name: "医療", Color: "#ABC"})
	require.NoError(t, err)
	assert.Equal(t, "#aabbcc", c.Color)

	_, err = f.categories.Create(ctx, f.userID, CategoryInput{Name: "食費"})
	assert.ErrorIs(t, err, core.ErrDuplicateCategory)

	_, err = f.categories.Create(ctx, f.userID, CategoryInput{Name: "x", Color: "red"})
	assert.ErrorIs(t, err, core.ErrInvalidColor)

	assert.Contains(t, f.events.keys(), "category.created")
}

func TestCategoryUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	food := f.category(t, "食費")

	color := "#000000"
	c, err := f.categories.Update(ctx, f.userID, food.ID, CategoryPatch{Color: &color})
	require.NoError(t, err)
	assert.Equal(t, "食費", c.Name)
	assert.Equal(t, color, c.Color)

	taken := "交通費"
	_, err = f.categories.Update(ctx, f.userID, food.ID, CategoryPatch{Name: &taken})
	assert.ErrorIs(t, err, core.ErrDuplicateCategory)

	_, err = f.categories.Update(ctx, f.userID, "missing", CategoryPatch{Color: &color})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCategoryRenameCarriesReferences(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	food := f.category(t, "食費")
	day := core.NewDate(2025, 3, 14)
	f.expense(t, food.ID, 1200, day)
	f.expense(t, food.ID, 300, day)
	_, err := f.budgets.Set(ctx, f.userID, BudgetInput{CategoryID: food.ID, Month: day.YearMonth(), Amount: core.FromUnits(30000)})
	require.NoError(t, err)

	// warm the cache so the rename has something to invalidate
	_, err = f.dashboard.Day(ctx, f.userID, day)
	require.NoError(t, err)

	res, err := f.categories.Rename(ctx, f.userID, "食費", "外食")
	require.NoError(t, err)
	assert.Equal(t, food.ID, res.Category.ID)
	assert.Equal(t, "外食", res.Category.Name)
	assert.Equal(t, 2, res.ExpensesAffected)
	assert.Equal(t, 1, res.BudgetsAffected)

	view, err := f.dashboard.Day(ctx, f.userID, day)
	require.NoError(t, err)
	require.Len(t, view.Categories, 1)
	assert.Equal(t, "外食", view.Categories[0].Name)
	assert.Equal(t, core.FromUnits(1500), view.Categories[0].Amount)

	_, err = f.categories.Rename(ctx, f.userID, "食費", "x")
	assert.ErrorIs(t, err, core.ErrCategoryNotFound)
	_, err = f.categories.Rename(ctx, f.userID, "外食", "交通費")
	assert.ErrorIs(t, err, core.ErrDuplicateCategory)
}

func TestCategoryDeleteUncategorizes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	food := f.category(t, "食費")
	day := core.NewDate(2025, 3, 14)
	e := f.expense(t, food.ID, 1200, day)
	_, err := f.budgets.Set(ctx, f.userID, BudgetInput{CategoryID: food.ID, Month: day.YearMonth(), Amount: core.FromUnits(30000)})
	require.NoError(t, err)

	res, err := f.categories.Delete(ctx, f.userID, food.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.ExpensesUncategorized)
	assert.Equal(t, int64(1), res.BudgetsDeleted)

	got, err := f.expenses.Get(ctx, f.userID, e.ID)
	require.NoError(t, err)
	assert.Empty(t, got.CategoryID)

	bs, err := f.budgets.List(ctx, f.userID, day.YearMonth())
	require.NoError(t, err)
	assert.Empty(t, bs)

	var deleted *amqp.ChangeEvent
	for _, ev := range f.events.events {
		if ev.RoutingKey() == "category.deleted" {
			deleted = ev
		}
	}
	require.NotNil(t, deleted)
	assert.Contains(t, string(deleted.Before), "食費")

	_, err = f.categories.Delete(ctx, f.userID, food.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCategoryReorder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	out, err := f.categories.Reorder(ctx, f.userID, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"交通費", "日用品", "食費"}, names(out))

	cs, err := f.categories.List(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"交通費", "日用品", "食費"}, names(cs))
	for i, c := range cs {
		assert.Equal(t, i, c.SortOrder)
	}

	_, err = f.categories.Reorder(ctx, f.userID, 0, 9)
	assert.ErrorIs(t, err, core.ErrIndexOutOfRange)
}

func names(cs []core.Category) []string {
	return ids(cs, func(c core.Category) string { return c.Name })
}

func TestExpenseCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	food := f.category(t, "食費")
	day := core.NewDate(2025, 3, 14)

	a := f.expense(t, food.ID, 100, day)
	b := f.expense(t, "", 200, day)
	assert.Equal(t, 0, a.SortOrder)
	assert.Equal(t, 1, b.SortOrder)
	assert.Equal(t, 0, f.expense(t, food.ID, 1, day.AddDays(1)).SortOrder)

	_, err := f.expenses.Create(ctx, f.userID, ExpenseInput{Amount: core.FromUnits(1), CategoryID: "nope", Date: day})
	assert.ErrorIs(t, err, core.ErrCategoryNotFound)

	_, err = f.expenses.Create(ctx, f.userID, ExpenseInput{Amount: core.FromUnits(1)})
	assert.ErrorIs(t, err, core.ErrInvalidDate)

	_, err = f.expenses.Create(ctx, f.userID, ExpenseInput{Amount: core.Money{Cents: -1}, Date: day})
	assert.True(t, core.IsValidationError(err))

	// a timestamp late in the evening stays on its written day
	tokyo := time.FixedZone("JST", 9*3600)
	e, err := f.expenses.Create(ctx, f.userID, ExpenseInput{
		Amount: core.FromUnits(5),
		Date:   core.Date{Time: time.Date(2025, 3, 14, 23, 30, 0, 0, tokyo)},
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-14", e.Date.Key())
	assert.Equal(t, 2, e.SortOrder)
}

func TestExpenseUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	food := f.category(t, "食費")
	day := core.NewDate(2025, 3, 14)
	next := day.AddDays(1)
	f.expense(t, food.ID, 1, next)
	e := f.expense(t, food.ID, 100, day)

	memo := "ランチ"
	amount := core.FromUnits(850)
	got, err := f.expenses.Update(ctx, f.userID, e.ID, ExpensePatch{Memo: &memo, Amount: &amount, Date: &next})
	require.NoError(t, err)
	assert.Equal(t, memo, got.Memo)
	assert.Equal(t, amount, got.Amount)
	assert.Equal(t, next.Key(), got.Date.Key())
	assert.Equal(t, 1, got.SortOrder)

	none := ""
	got, err = f.expenses.Update(ctx, f.userID, e.ID, ExpensePatch{CategoryID: &none})
	require.NoError(t, err)
	assert.Empty(t, got.CategoryID)

	bad := "nope"
	_, err = f.expenses.Update(ctx, f.userID, e.ID, ExpensePatch{CategoryID: &bad})
	assert.ErrorIs(t, err, core.ErrCategoryNotFound)

	require.NoError(t, f.expenses.Delete(ctx, f.userID, e.ID))
	_, err = f.expenses.Get(ctx, f.userID, e.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, f.expenses.Delete(ctx, f.userID, e.ID), storage.ErrNotFound)
}

func TestExpenseReorderAndMoveDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	day := core.NewDate(2025, 3, 31)
	a := f.expense(t, "", 1, day)
	b := f.expense(t, "", 2, day)
	c := f.expense(t, "", 3, day)

	out, err := f.expenses.Reorder(ctx, f.userID, day, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID, a.ID, b.ID}, expenseIDs(out))

	_, err = f.expenses.Reorder(ctx, f.userID, day, 0, 3)
	assert.ErrorIs(t, err, core.ErrIndexOutOfRange)

	target := core.NewDate(2025, 4, 1)
	existing := f.expense(t, "", 9, target)
	moved, err := f.expenses.MoveDay(ctx, f.userID, day, target)
	require.NoError(t, err)
	require.Len(t, moved, 3)

	view, err := f.dashboard.Day(ctx, f.userID, target)
	require.NoError(t, err)
	assert.Equal(t, []string{existing.ID, c.ID, a.ID, b.ID}, expenseIDs(view.Expenses))
	assert.Equal(t, core.FromUnits(15), view.Total)

	empty, err := f.dashboard.Day(ctx, f.userID, day)
	require.NoError(t, err)
	assert.Empty(t, empty.Expenses)

	moved, err = f.expenses.MoveDay(ctx, f.userID, day, target)
	require.NoError(t, err)
	assert.Empty(t, moved)
}

func expenseIDs(es []core.Expense) []string {
	return ids(es, func(e core.Expense) string { return e.ID })
}

func TestBudgetSetUpserts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	food := f.category(t, "食費")
	march := core.YearMonth{Year: 2025, Month: time.March}

	first, err := f.budgets.Create(ctx, f.userID, BudgetInput{CategoryID: food.ID, Month: march, Amount: core.FromUnits(30000)})
	require.NoError(t, err)
	second, err := f.budgets.Set(ctx, f.userID, BudgetInput{CategoryID: food.ID, Month: march, Amount: core.FromUnits(25000)})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	bs, err := f.budgets.List(ctx, f.userID, march)
	require.NoError(t, err)
	require.Len(t, bs, 1)
	assert.Equal(t, core.FromUnits(25000), bs[0].Amount)

	assert.Equal(t, []string{"budget.created", "budget.updated"}, f.events.keys())

	_, err = f.budgets.Set(ctx, f.userID, BudgetInput{CategoryID: "nope", Month: march, Amount: core.FromUnits(1)})
	assert.ErrorIs(t, err, core.ErrCategoryNotFound)

	amount := core.FromUnits(100)
	got, err := f.budgets.Update(ctx, f.userID, first.ID, BudgetPatch{Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, amount, got.Amount)

	require.NoError(t, f.budgets.Delete(ctx, f.userID, first.ID))
	_, err = f.budgets.Get(ctx, f.userID, first.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDashboardReflectsWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	food := f.category(t, "食費")
	march := core.YearMonth{Year: 2025, Month: time.March}
	day := core.NewDate(2025, 3, 14)

	before, err := f.dashboard.Summary(ctx, f.userID, march)
	require.NoError(t, err)
	assert.Equal(t, 0, before.Count)

	f.expense(t, food.ID, 1200, day)
	_, err = f.budgets.Set(ctx, f.userID, BudgetInput{CategoryID: food.ID, Month: march, Amount: core.FromUnits(1000)})
	require.NoError(t, err)

	after, err := f.dashboard.Summary(ctx, f.userID, march)
	require.NoError(t, err)
	assert.Equal(t, 1, after.Count)
	assert.Equal(t, core.FromUnits(1200), after.Total)

	statuses, err := f.dashboard.Budgets(ctx, f.userID, march)
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	assert.True(t, statuses[0].IsOverBudget)
	assert.Equal(t, int64(120), statuses[0].UsagePercentage)
	assert.Equal(t, int64(100), statuses[0].UsagePercentageForGraph)
	assert.False(t, statuses[1].HasBudget)

	cal, err := f.dashboard.Calendar(ctx, f.userID, march)
	require.NoError(t, err)
	require.Len(t, cal, 1)
	assert.Equal(t, day.Key(), cal[0].Date.Key())
	assert.Equal(t, core.FromUnits(1200), cal[0].Total)

	_, err = f.dashboard.Calendar(ctx, f.userID, core.YearMonth{})
	assert.True(t, core.IsValidationError(err))

	hobby, err := f.categories.Create(ctx, f.userID, CategoryInput{Name: "趣味"})
	require.NoError(t, err)
	statuses, err = f.dashboard.Budgets(ctx, f.userID, march)
	require.NoError(t, err)
	require.Len(t, statuses, 4)
	assert.Equal(t, hobby.ID, statuses[3].CategoryID)
}

func TestLoginReseedRefreshesDashboard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	march := core.YearMonth{Year: 2025, Month: time.March}

	cs, err := f.categories.List(ctx, f.userID)
	require.NoError(t, err)
	for _, c := range cs {
		_, err := f.categories.Delete(ctx, f.userID, c.ID)
		require.NoError(t, err)
	}
	statuses, err := f.dashboard.Budgets(ctx, f.userID, march)
	require.NoError(t, err)
	require.Empty(t, statuses)

	_, _, err = f.auth.Login(ctx, "hana@example.com", "correct horse")
	require.NoError(t, err)

	statuses, err = f.dashboard.Budgets(ctx, f.userID, march)
	require.NoError(t, err)
	assert.Len(t, statuses, len(core.DefaultCategories()))
}

func TestLoginUnknownEmailPaysHashCost(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assert.Empty(t, f.auth.dummy)

	_, _, err := f.auth.Login(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	require.NotEmpty(t, f.auth.dummy)
	cost, err := bcrypt.Cost([]byte(f.auth.dummy))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}

type failingListStore struct {
	*memory.Store
}

func (failingListStore) ListExpenses(context.Context, string, storage.ExpenseQuery) ([]core.Expense, error) {
	return nil, errors.New("disk I/O error")
}

func TestCategoryRenameLogsCountFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	food := f.category(t, "食費")

	var buf bytes.Buffer
	logger := log.New(log.Config{Level: slog.LevelDebug, Output: &buf})
	svc := NewCategoryService(failingListStore{f.store}, f.cache, nil, logger)

	res, err := svc.Rename(ctx, f.userID, "食費", "Food")
	require.NoError(t, err)
	assert.Equal(t, food.ID, res.Category.ID)
	assert.Equal(t, "Food", res.Category.Name)
	assert.Zero(t, res.ExpensesAffected)
	assert.Contains(t, buf.String(), "Counting renamed expenses failed")
	assert.Contains(t, buf.String(), "disk I/O error")
}

func TestDashboardPie(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	food := f.category(t, "食費")
	transit := f.category(t, "交通費")
	day := core.NewDate(2025, 3, 14)
	f.expense(t, food.ID, 100, day)
	f.expense(t, transit.ID, 500, day)
	f.expense(t, food.ID, 50, day.AddDays(1))
	f.expense(t, transit.ID, 7, core.NewDate(2025, 5, 1))

	pie, err := f.dashboard.Pie(ctx, f.userID, PieQuery{Date: &day})
	require.NoError(t, err)
	require.Len(t, pie, 2)
	assert.Equal(t, "食費", pie[0].Name)

	pie, err = f.dashboard.Pie(ctx, f.userID, PieQuery{Date: &day, Sort: core.SortByAmount})
	require.NoError(t, err)
	assert.Equal(t, "交通費", pie[0].Name)

	march := day.YearMonth()
	pie, err = f.dashboard.Pie(ctx, f.userID, PieQuery{Month: &march})
	require.NoError(t, err)
	assert.Equal(t, core.FromUnits(150), pie[0].Amount)

	pie, err = f.dashboard.Pie(ctx, f.userID, PieQuery{})
	require.NoError(t, err)
	assert.Equal(t, core.FromUnits(507), pie[1].Amount)
}

func TestPublishFailureDoesNotFailWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.events.err = errors.New("broker down")

	e := f.expense(t, "", 100, core.NewDate(2025, 3, 14))
	got, err := f.expenses.Get(ctx, f.userID, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
}

func TestMonthCacheInvalidateUser(t *testing.T) {
	c := NewMonthCache(8, time.Minute)
	march := core.YearMonth{Year: 2025, Month: time.March}
	c.set("u1", march, monthSnapshot{})
	c.set("u1", march.Next(), monthSnapshot{})
	c.set("u2", march, monthSnapshot{})

	assert.Equal(t, 2, c.InvalidateUser("u1"))
	_, ok := c.get("u2", march)
	assert.True(t, ok)

	var nilCache *MonthCache
	assert.Equal(t, 0, nilCache.InvalidateUser("u1"))
}
