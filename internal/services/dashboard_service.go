package services

import (
	"context"

	"golang.org/x/sync/errgroup"

	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/storage"
)

// DayView is the day panel: the day's expenses in order plus per-category
// totals.
type DayView struct {
	Date       core.Date            `json:"date"`
	Total      core.Money           `json:"total"`
	Expenses   []core.Expense       `json:"expenses"`
	Categories []core.CategoryTotal `json:"categories"`
}

// PieQuery picks the expenses a pie chart covers. Date wins over Month; with
// neither the pie covers everything.
type PieQuery struct {
	Date  *core.Date
	Month *core.YearMonth
	Sort  core.PieSort
}

// DashboardService answers the read-only views. Month reads are served from a
// per-user snapshot cache that every write invalidates.
type DashboardService struct {
	store  storage.Store
	cache  *MonthCache
	logger *log.Logger
}

func NewDashboardService(store storage.Store, cache *MonthCache, logger *log.Logger) *DashboardService {
	if logger == nil {
		logger = log.Discard()
	}
	return &DashboardService{store: store, cache: cache, logger: logger.WithComponent(log.ComponentDashboard)}
}

func (s *DashboardService) snapshot(ctx context.Context, userID string, ym core.YearMonth) (monthSnapshot, error) {
	if snap, ok := s.cache.get(userID, ym); ok {
		return snap, nil
	}

	var snap monthSnapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cs, err := s.store.ListCategories(gctx, userID)
		snap.Categories = cs
		return err
	})
	g.Go(func() error {
		es, err := s.store.ListExpenses(gctx, userID, storage.ExpenseQuery{Month: ym})
		snap.Expenses = es
		return err
	})
	g.Go(func() error {
		bs, err := s.store.ListBudgets(gctx, userID, ym)
		snap.Budgets = bs
		return err
	})
	if err := g.Wait(); err != nil {
		return monthSnapshot{}, err
	}

	s.cache.set(userID, ym, snap)
	s.logger.DebugContext(ctx, "Loaded month snapshot",
		log.FieldUserID, userID, log.FieldMonth, ym.String(), log.FieldCount, len(snap.Expenses))
	return snap, nil
}

// Calendar returns an entry for each day of ym that has expenses.
func (s *DashboardService) Calendar(ctx context.Context, userID string, ym core.YearMonth) ([]core.CalendarDay, error) {
	if err := ym.Validate(); err != nil {
		return nil, core.NewValidationError("month", err)
	}
	snap, err := s.snapshot(ctx, userID, ym)
	if err != nil {
		return nil, err
	}
	return core.CalendarMonth(snap.Expenses, core.NewCategoryIndex(snap.Categories), ym), nil
}

func (s *DashboardService) Day(ctx context.Context, userID string, day core.Date) (DayView, error) {
	if err := day.Validate(); err != nil {
		return DayView{}, core.NewValidationError("date", err)
	}
	snap, err := s.snapshot(ctx, userID, day.YearMonth())
	if err != nil {
		return DayView{}, err
	}
	idx := core.NewCategoryIndex(snap.Categories)
	v := DayView{
		Date:       day,
		Total:      core.DailyTotals(snap.Expenses, day),
		Expenses:   core.DayExpenses(snap.Expenses, day),
		Categories: core.DailyCategoryTotals(snap.Expenses, idx, day),
	}
	if v.Expenses == nil {
		v.Expenses = []core.Expense{}
	}
	if v.Categories == nil {
		v.Categories = []core.CategoryTotal{}
	}
	return v, nil
}

// Budgets returns a status row per category for ym, budgeted or not.
func (s *DashboardService) Budgets(ctx context.Context, userID string, ym core.YearMonth) ([]core.BudgetStatus, error) {
	if err := ym.Validate(); err != nil {
		return nil, core.NewValidationError("month", err)
	}
	snap, err := s.snapshot(ctx, userID, ym)
	if err != nil {
		return nil, err
	}
	return core.BudgetStatuses(core.NewCategoryIndex(snap.Categories), snap.Budgets, snap.Expenses, ym), nil
}

func (s *DashboardService) Pie(ctx context.Context, userID string, q PieQuery) ([]core.PieSlice, error) {
	var (
		expenses   []core.Expense
		categories []core.Category
		filter     core.ExpenseFilter = core.AllExpenses
	)
	switch {
	case q.Date != nil:
		if err := q.Date.Validate(); err != nil {
			return nil, core.NewValidationError("date", err)
		}
		snap, err := s.snapshot(ctx, userID, q.Date.YearMonth())
		if err != nil {
			return nil, err
		}
		expenses, categories, filter = snap.Expenses, snap.Categories, core.OnDay(*q.Date)
	case q.Month != nil:
		if err := q.Month.Validate(); err != nil {
			return nil, core.NewValidationError("month", err)
		}
		snap, err := s.snapshot(ctx, userID, *q.Month)
		if err != nil {
			return nil, err
		}
		expenses, categories, filter = snap.Expenses, snap.Categories, core.InMonth(*q.Month)
	default:
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			categories, err = s.store.ListCategories(gctx, userID)
			return err
		})
		g.Go(func() error {
			var err error
			expenses, err = s.store.ListExpenses(gctx, userID, storage.ExpenseQuery{})
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	pie := core.PieBreakdown(expenses, core.NewCategoryIndex(categories), filter, q.Sort)
	if pie == nil {
		pie = []core.PieSlice{}
	}
	return pie, nil
}

func (s *DashboardService) Summary(ctx context.Context, userID string, ym core.YearMonth) (core.MonthOverview, error) {
	if err := ym.Validate(); err != nil {
		return core.MonthOverview{}, core.NewValidationError("month", err)
	}
	snap, err := s.snapshot(ctx, userID, ym)
	if err != nil {
		return core.MonthOverview{}, err
	}
	ov := core.MonthSummary(snap.Expenses, core.NewCategoryIndex(snap.Categories), ym)
	if ov.ByCategory == nil {
		ov.ByCategory = []core.CategoryAmount{}
	}
	return ov, nil
}
