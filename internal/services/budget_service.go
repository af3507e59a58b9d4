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

type BudgetInput struct {
	CategoryID string
	Month      core.YearMonth
	Amount     core.Money
}

type BudgetPatch struct {
	CategoryID *string
	Month      *core.YearMonth
	Amount     *core.Money
	SortOrder  *int
}

type BudgetService struct {
	store  storage.Store
	cache  *MonthCache
	notify *notifier
	logger *log.Logger
}

func NewBudgetService(store storage.Store, cache *MonthCache, events EventPublisher, logger *log.Logger) *BudgetService {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentBudget)
	return &BudgetService{store: store, cache: cache, notify: newNotifier(events, logger), logger: logger}
}

// List returns the budgets of month, or every budget when month is zero.
func (s *BudgetService) List(ctx context.Context, userID string, month core.YearMonth) ([]core.Budget, error) {
	bs, err := s.store.ListBudgets(ctx, userID, month)
	if err != nil {
		return nil, err
	}
	if month.IsZero() {
		return bs, nil
	}
	return core.SortBudgets(bs), nil
}

func (s *BudgetService) Get(ctx context.Context, userID, id string) (core.Budget, error) {
	return s.store.GetBudget(ctx, userID, id)
}

func (s *BudgetService) checkCategory(ctx context.Context, userID, id string) error {
	_, err := s.store.GetCategory(ctx, userID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return core.NewValidationError("categoryId", core.ErrCategoryNotFound)
	}
	return err
}

// Set creates the budget for (category, month) or replaces its amount.
func (s *BudgetService) Set(ctx context.Context, userID string, in BudgetInput) (core.Budget, error) {
	b := core.Budget{
		UserID:     userID,
		CategoryID: strings.TrimSpace(in.CategoryID),
		Month:      in.Month,
		Amount:     in.Amount,
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if err := s.checkCategory(ctx, userID, b.CategoryID); err != nil {
		return core.Budget{}, err
	}
	existing, err := s.store.ListBudgets(ctx, userID, b.Month)
	if err != nil {
		return core.Budget{}, err
	}
	action := amqp.ActionCreated
	b.SortOrder = len(existing)
	for _, e := range existing {
		if e.CategoryID == b.CategoryID {
			b.SortOrder = e.SortOrder
			action = amqp.ActionUpdated
		}
	}

	saved, err := s.store.UpsertBudget(ctx, b)
	if err != nil {
		return core.Budget{}, fmt.Errorf("save budget: %w", err)
	}
	s.cache.InvalidateUser(userID)
	s.logger.InfoContext(ctx, "Budget set",
		log.FieldOperation, log.OpCreate,
		log.FieldUserID, userID,
		log.FieldResourceID, saved.ID,
		log.FieldCategoryID, saved.CategoryID,
		log.FieldMonth, saved.Month.String(),
		log.FieldAmountCents, saved.Amount.Cents)
	s.notify.publish(ctx, amqp.KindBudget, action, saved.ID, userID, nil)
	return saved, nil
}

// Create is Set: a second budget for the same category and month replaces
// the first.
func (s *BudgetService) Create(ctx context.Context, userID string, in BudgetInput) (core.Budget, error) {
	return s.Set(ctx, userID, in)
}

func (s *BudgetService) Update(ctx context.Context, userID, id string, p BudgetPatch) (core.Budget, error) {
	b, err := s.store.GetBudget(ctx, userID, id)
	if err != nil {
		return core.Budget{}, err
	}
	if p.CategoryID != nil {
		b.CategoryID = strings.TrimSpace(*p.CategoryID)
	}
	if p.Month != nil {
		b.Month = *p.Month
	}
	if p.Amount != nil {
		b.Amount = *p.Amount
	}
	if p.SortOrder != nil {
		b.SortOrder = *p.SortOrder
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if p.CategoryID != nil {
		if err := s.checkCategory(ctx, userID, b.CategoryID); err != nil {
			return core.Budget{}, err
		}
	}

	updated, err := s.store.UpdateBudget(ctx, b)
	if err != nil {
		return core.Budget{}, err
	}
	s.cache.InvalidateUser(userID)
	s.logger.InfoContext(ctx, "Budget updated",
		log.FieldOperation, log.OpUpdate,
		log.FieldUserID, userID,
		log.FieldResourceID, updated.ID,
		log.FieldAmountCents, updated.Amount.Cents)
	s.notify.publish(ctx, amqp.KindBudget, amqp.ActionUpdated, updated.ID, userID, nil)
	return updated, nil
}

func (s *BudgetService) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteBudget(ctx, userID, id); err != nil {
		return err
	}
	s.cache.InvalidateUser(userID)
	s.logger.InfoContext(ctx, "Budget deleted",
		log.FieldOperation, log.OpDelete, log.FieldUserID, userID, log.FieldResourceID, id)
	s.notify.publish(ctx, amqp.KindBudget, amqp.ActionDeleted, id, userID, nil)
	return nil
}
