package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kakeibo/internal/amqp"
	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/storage"
)

type ExpenseInput struct {
	Amount     core.Money
	Memo       string
	CategoryID string
	Date       core.Date
}

// ExpensePatch changes only the fields that are set. An empty CategoryID
// uncategorizes the expense.
type ExpensePatch struct {
	Amount     *core.Money
	Memo       *string
	CategoryID *string
	Date       *core.Date
	SortOrder  *int
}

// ExpenseService orchestrates expense writes across storage, the dashboard
// cache and the event bus.
type ExpenseService struct {
	store  storage.Store
	cache  *MonthCache
	notify *notifier
	logger *log.Logger
}

func NewExpenseService(store storage.Store, cache *MonthCache, events EventPublisher, logger *log.Logger) *ExpenseService {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentExpense)
	return &ExpenseService{store: store, cache: cache, notify: newNotifier(events, logger), logger: logger}
}

// List returns the expenses of month in display order, or all of them when
// month is zero.
func (s *ExpenseService) List(ctx context.Context, userID string, month core.YearMonth) ([]core.Expense, error) {
	es, err := s.store.ListExpenses(ctx, userID, storage.ExpenseQuery{Month: month})
	if err != nil {
		return nil, err
	}
	return core.SortExpenses(es), nil
}

func (s *ExpenseService) Get(ctx context.Context, userID, id string) (core.Expense, error) {
	return s.store.GetExpense(ctx, userID, id)
}

// resolveCategory rejects a category ID the user does not own.
func (s *ExpenseService) resolveCategory(ctx context.Context, userID, id string) error {
	if id == "" {
		return nil
	}
	_, err := s.store.GetCategory(ctx, userID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return core.NewValidationError("categoryId", core.ErrCategoryNotFound)
	}
	return err
}

// nextSortOrder places a new expense after the ones already on day.
func (s *ExpenseService) nextSortOrder(ctx context.Context, userID string, day core.Date) (int, error) {
	es, err := s.store.ListExpenses(ctx, userID, storage.ExpenseQuery{Month: day.YearMonth()})
	if err != nil {
		return 0, err
	}
	next := 0
	for _, e := range es {
		if e.Date.SameDay(day) && e.SortOrder >= next {
			next = e.SortOrder + 1
		}
	}
	return next, nil
}

func (s *ExpenseService) Create(ctx context.Context, userID string, in ExpenseInput) (core.Expense, error) {
	e := core.Expense{
		UserID:     userID,
		Amount:     in.Amount,
		Memo:       strings.TrimSpace(in.Memo),
		CategoryID: strings.TrimSpace(in.CategoryID),
		Date:       core.NormalizeDate(in.Date.Time),
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if err := s.resolveCategory(ctx, userID, e.CategoryID); err != nil {
		return core.Expense{}, err
	}
	next, err := s.nextSortOrder(ctx, userID, e.Date)
	if err != nil {
		return core.Expense{}, err
	}
	e.SortOrder = next

	created, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	s.cache.InvalidateUser(userID)
	s.logger.InfoContext(ctx, "Expense created", log.NewFields().
		WithOperation(log.OpCreate).
		WithUser(userID).
		WithExpense(created.ID, created.CategoryID, created.Date.Key(), created.Amount.Cents).
		ToSlice()...)
	s.notify.publish(ctx, amqp.KindExpense, amqp.ActionCreated, created.ID, userID, nil)
	return created, nil
}

func (s *ExpenseService) Update(ctx context.Context, userID, id string, p ExpensePatch) (core.Expense, error) {
	e, err := s.store.GetExpense(ctx, userID, id)
	if err != nil {
		return core.Expense{}, err
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Memo != nil {
		e.Memo = strings.TrimSpace(*p.Memo)
	}
	if p.CategoryID != nil {
		e.CategoryID = strings.TrimSpace(*p.CategoryID)
		if err := s.resolveCategory(ctx, userID, e.CategoryID); err != nil {
			return core.Expense{}, err
		}
	}
	if p.Date != nil && !p.Date.SameDay(e.Date) {
		e.Date = core.NormalizeDate(p.Date.Time)
		if err := e.Date.Validate(); err != nil {
			return core.Expense{}, core.NewValidationError("date", err)
		}
		next, err := s.nextSortOrder(ctx, userID, e.Date)
		if err != nil {
			return core.Expense{}, err
		}
		e.SortOrder = next
	}
	if p.SortOrder != nil {
		e.SortOrder = *p.SortOrder
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	updated, err := s.store.UpdateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	s.cache.InvalidateUser(userID)
	s.logger.InfoContext(ctx, "Expense updated", log.NewFields().
		WithOperation(log.OpUpdate).
		WithUser(userID).
		WithExpense(updated.ID, updated.CategoryID, updated.Date.Key(), updated.Amount.Cents).
		ToSlice()...)
	s.notify.publish(ctx, amqp.KindExpense, amqp.ActionUpdated, updated.ID, userID, nil)
	return updated, nil
}

func (s *ExpenseService) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteExpense(ctx, userID, id); err != nil {
		return err
	}
	s.cache.InvalidateUser(userID)
	s.logger.InfoContext(ctx, "Expense deleted",
		log.FieldOperation, log.OpDelete, log.FieldUserID, userID, log.FieldResourceID, id)
	s.notify.publish(ctx, amqp.KindExpense, amqp.ActionDeleted, id, userID, nil)
	return nil
}

// Reorder moves the expense at position from to position to within day and
// returns the day's expenses in their new order.
func (s *ExpenseService) Reorder(ctx context.Context, userID string, day core.Date, from, to int) ([]core.Expense, error) {
	es, err := s.store.ListExpenses(ctx, userID, storage.ExpenseQuery{Month: day.YearMonth()})
	if err != nil {
		return nil, err
	}
	out, err := core.Reorder(core.DayExpenses(es, day), from, to)
	if err != nil {
		return nil, core.NewValidationError("index", err)
	}
	if from == to {
		return out, nil
	}
	if err := s.store.SetExpenseOrder(ctx, userID, ids(out, func(e core.Expense) string { return e.ID })); err != nil {
		return nil, err
	}
	s.cache.InvalidateUser(userID)
	s.logger.DebugContext(ctx, "Expenses reordered",
		log.FieldOperation, log.OpReorder, log.FieldUserID, userID, log.FieldDate, day.Key())
	for _, e := range out {
		s.notify.publish(ctx, amqp.KindExpense, amqp.ActionUpdated, e.ID, userID, nil)
	}
	return out, nil
}

// MoveDay re-dates every expense of from to to, after whatever to already
// holds. It returns the moved expenses.
func (s *ExpenseService) MoveDay(ctx context.Context, userID string, from, to core.Date) ([]core.Expense, error) {
	if err := from.Validate(); err != nil {
		return nil, core.NewValidationError("fromDate", err)
	}
	if err := to.Validate(); err != nil {
		return nil, core.NewValidationError("toDate", err)
	}
	es, err := s.store.ListExpenses(ctx, userID, storage.ExpenseQuery{Month: from.YearMonth()})
	if err != nil {
		return nil, err
	}
	if to.YearMonth() != from.YearMonth() {
		more, err := s.store.ListExpenses(ctx, userID, storage.ExpenseQuery{Month: to.YearMonth()})
		if err != nil {
			return nil, err
		}
		es = append(es, more...)
	}

	moved := core.MoveDay(es, from, to)
	if len(moved) == 0 {
		return []core.Expense{}, nil
	}
	if err := s.store.MoveExpenses(ctx, userID, moved); err != nil {
		return nil, fmt.Errorf("move expenses: %w", err)
	}
	s.cache.InvalidateUser(userID)
	s.logger.InfoContext(ctx, "Expenses moved",
		log.FieldOperation, log.OpMove,
		log.FieldUserID, userID,
		"from", from.Key(),
		"to", to.Key(),
		log.FieldCount, len(moved))
	for _, e := range moved {
		s.notify.publish(ctx, amqp.KindExpense, amqp.ActionUpdated, e.ID, userID, nil)
	}
	return moved, nil
}
