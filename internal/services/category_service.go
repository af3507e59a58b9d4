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

type CategoryInput struct {
	Name  string
	Color string
	// SortOrder defaults to the end of the list.
	SortOrder *int
}

// CategoryPatch changes only the fields that are set.
type CategoryPatch struct {
	Name      *string
	Color     *string
	SortOrder *int
}

// RenameResult is the renamed category and how many expenses now show the
// new name.
type RenameResult struct {
	Category         core.Category `json:"category"`
	ExpensesAffected int           `json:"expensesAffected"`
	BudgetsAffected  int           `json:"budgetsAffected"`
}

type CategoryService struct {
	store  storage.Store
	cache  *MonthCache
	notify *notifier
	logger *log.Logger
}

func NewCategoryService(store storage.Store, cache *MonthCache, events EventPublisher, logger *log.Logger) *CategoryService {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentCategory)
	return &CategoryService{store: store, cache: cache, notify: newNotifier(events, logger), logger: logger}
}

// List returns the user's categories in display order.
func (s *CategoryService) List(ctx context.Context, userID string) ([]core.Category, error) {
	cs, err := s.store.ListCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	return core.SortCategories(cs), nil
}

func (s *CategoryService) Get(ctx context.Context, userID, id string) (core.Category, error) {
	return s.store.GetCategory(ctx, userID, id)
}

func (s *CategoryService) Create(ctx context.Context, userID string, in CategoryInput) (core.Category, error) {
	existing, err := s.store.ListCategories(ctx, userID)
	if err != nil {
		return core.Category{}, err
	}
	c := core.Category{
		UserID:    userID,
		Name:      strings.TrimSpace(in.Name),
		Color:     core.NormalizeColor(in.Color),
		SortOrder: len(existing),
	}
	if c.Color == "" {
		c.Color = core.PaletteColor(len(existing))
	}
	if in.SortOrder != nil {
		c.SortOrder = *in.SortOrder
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if err := core.CheckNameAvailable(existing, c.Name, ""); err != nil {
		return core.Category{}, err
	}

	created, err := s.store.CreateCategory(ctx, c)
	if errors.Is(err, storage.ErrConflict) {
		return core.Category{}, core.NewValidationError("name", core.ErrDuplicateCategory)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}

	s.cache.InvalidateUser(userID)
	s.logger.InfoContext(ctx, "Category created",
		log.FieldOperation, log.OpCreate, log.FieldUserID, userID, log.FieldResourceID, created.ID)
	s.notify.publish(ctx, amqp.KindCategory, amqp.ActionCreated, created.ID, userID, nil)
	return created, nil
}

func (s *CategoryService) Update(ctx context.Context, userID, id string, p CategoryPatch) (core.Category, error) {
	c, err := s.store.GetCategory(ctx, userID, id)
	if err != nil {
		return core.Category{}, err
	}
	if p.Name != nil {
		c.Name = strings.TrimSpace(*p.Name)
	}
	if p.Color != nil {
		c.Color = core.NormalizeColor(*p.Color)
	}
	if p.SortOrder != nil {
		c.SortOrder = *p.SortOrder
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if p.Name != nil {
		all, err := s.store.ListCategories(ctx, userID)
		if err != nil {
			return core.Category{}, err
		}
		if err := core.CheckNameAvailable(all, c.Name, c.ID); err != nil {
			return core.Category{}, err
		}
	}
	return s.save(ctx, c, log.OpUpdate)
}

func (s *CategoryService) save(ctx context.Context, c core.Category, op string) (core.Category, error) {
	updated, err := s.store.UpdateCategory(ctx, c)
	if errors.Is(err, storage.ErrConflict) {
		return core.Category{}, core.NewValidationError("name", core.ErrDuplicateCategory)
	}
	if err != nil {
		return core.Category{}, err
	}
	s.cache.InvalidateUser(c.UserID)
	s.logger.InfoContext(ctx, "Category updated",
		log.FieldOperation, op, log.FieldUserID, c.UserID, log.FieldResourceID, c.ID)
	s.notify.publish(ctx, amqp.KindCategory, amqp.ActionUpdated, c.ID, c.UserID, nil)
	return updated, nil
}

// Rename gives the category called oldName a new name. Expenses and budgets
// hold the category ID, so the single update carries over to all of them.
func (s *CategoryService) Rename(ctx context.Context, userID, oldName, newName string) (RenameResult, error) {
	all, err := s.store.ListCategories(ctx, userID)
	if err != nil {
		return RenameResult{}, err
	}
	_, renamed, err := core.RenameCategory(all, oldName, newName)
	if err != nil {
		return RenameResult{}, err
	}
	renamed.UserID = userID
	updated, err := s.save(ctx, renamed, log.OpRename)
	if err != nil {
		return RenameResult{}, err
	}

	// The rename is committed; a failed count only leaves the totals at zero.
	res := RenameResult{Category: updated}
	expenses, err := s.store.ListExpenses(ctx, userID, storage.ExpenseQuery{})
	if err != nil {
		s.logger.WarnContext(ctx, "Counting renamed expenses failed",
			log.FieldOperation, log.OpRename, log.FieldUserID, userID, log.FieldError, err)
		return res, nil
	}
	budgets, err := s.store.ListBudgets(ctx, userID, core.YearMonth{})
	if err != nil {
		s.logger.WarnContext(ctx, "Counting renamed budgets failed",
			log.FieldOperation, log.OpRename, log.FieldUserID, userID, log.FieldError, err)
		return res, nil
	}
	res.ExpensesAffected, res.BudgetsAffected = core.ReferencesTo(updated.ID, expenses, budgets)
	return res, nil
}

// Delete removes a category. Its expenses become uncategorized and its
// budgets are dropped, all or nothing.
func (s *CategoryService) Delete(ctx context.Context, userID, id string) (storage.DeleteResult, error) {
	before, err := s.store.GetCategory(ctx, userID, id)
	if err != nil {
		return storage.DeleteResult{}, err
	}
	res, err := s.store.DeleteCategory(ctx, userID, id)
	if err != nil {
		return storage.DeleteResult{}, err
	}
	s.cache.InvalidateUser(userID)
	s.logger.InfoContext(ctx, "Category deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldUserID, userID,
		log.FieldResourceID, id,
		"expenses_uncategorized", res.ExpensesUncategorized,
		"budgets_deleted", res.BudgetsDeleted)
	s.notify.publish(ctx, amqp.KindCategory, amqp.ActionDeleted, id, userID, before)
	return res, nil
}

// Reorder moves the category at position from to position to.
func (s *CategoryService) Reorder(ctx context.Context, userID string, from, to int) ([]core.Category, error) {
	list, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	out, err := core.Reorder(list, from, to)
	if err != nil {
		return nil, core.NewValidationError("index", err)
	}
	if from == to {
		return out, nil
	}
	if err := s.store.SetCategoryOrder(ctx, userID, ids(out, func(c core.Category) string { return c.ID })); err != nil {
		return nil, err
	}
	s.cache.InvalidateUser(userID)
	s.logger.DebugContext(ctx, "Categories reordered",
		log.FieldOperation, log.OpReorder, log.FieldUserID, userID, "from", from, "to", to)
	return out, nil
}

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = id(it)
	}
	return out
}
