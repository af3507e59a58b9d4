// Package memory implements the storage ports in process memory. Data does
// not survive a restart.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"kakeibo/internal/core"
	"kakeibo/internal/storage"
)

var _ storage.Store = (*Store)(nil)

type row[T any] struct {
	seq  int
	item T
}

type Store struct {
	mu         sync.Mutex
	seq        int
	users      map[string]row[core.User]
	categories map[string]row[core.Category]
	expenses   map[string]row[core.Expense]
	budgets    map[string]row[core.Budget]
}

func New() *Store {
	return &Store{
		users:      make(map[string]row[core.User]),
		categories: make(map[string]row[core.Category]),
		expenses:   make(map[string]row[core.Expense]),
		budgets:    make(map[string]row[core.Budget]),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) next() int {
	s.seq++
	return s.seq
}

func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// sorted returns the items of m accepted by keep, in insertion order, then
// stably sorted by less.
func sorted[T any](m map[string]row[T], keep func(T) bool, less func(a, b T) int) []T {
	rows := make([]row[T], 0, len(m))
	for _, r := range m {
		if keep(r.item) {
			rows = append(rows, r)
		}
	}
	slices.SortFunc(rows, func(a, b row[T]) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]T, len(rows))
	for i, r := range rows {
		out[i] = r.item
	}
	slices.SortStableFunc(out, less)
	return out
}

// Users

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.users {
		if strings.EqualFold(r.item.Email, u.Email) {
			return core.User{}, fmt.Errorf("create user: %w", storage.ErrConflict)
		}
	}
	u.ID = newID(u.ID)
	s.users[u.ID] = row[core.User]{seq: s.next(), item: u}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.users {
		if strings.EqualFold(r.item.Email, email) {
			return r.item, nil
		}
	}
	return core.User{}, storage.ErrNotFound
}

func (s *Store) GetUserByID(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.users[id]
	if !ok {
		return core.User{}, storage.ErrNotFound
	}
	return r.item, nil
}

// Categories

func (s *Store) ListCategories(_ context.Context, userID string) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sorted(s.categories,
		func(c core.Category) bool { return c.UserID == userID },
		func(a, b core.Category) int { return cmp.Compare(a.SortOrder, b.SortOrder) }), nil
}

func (s *Store) GetCategory(_ context.Context, userID, id string) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.categories[id]
	if !ok || r.item.UserID != userID {
		return core.Category{}, storage.ErrNotFound
	}
	return r.item, nil
}

func (s *Store) nameTaken(userID, name, exceptID string) bool {
	for id, r := range s.categories {
		if id != exceptID && r.item.UserID == userID && r.item.Name == name {
			return true
		}
	}
	return false
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nameTaken(c.UserID, c.Name, "") {
		return core.Category{}, fmt.Errorf("create category: %w", storage.ErrConflict)
	}
	c.ID = newID(c.ID)
	s.categories[c.ID] = row[core.Category]{seq: s.next(), item: c}
	return c, nil
}

func (s *Store) CreateCategories(_ context.Context, userID string, cs []core.Category) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool, len(cs))
	for _, c := range cs {
		if seen[c.Name] || s.nameTaken(userID, c.Name, "") {
			return nil, fmt.Errorf("create category %q: %w", c.Name, storage.ErrConflict)
		}
		seen[c.Name] = true
	}
	out := make([]core.Category, len(cs))
	for i, c := range cs {
		c.ID = newID(c.ID)
		c.UserID = userID
		s.categories[c.ID] = row[core.Category]{seq: s.next(), item: c}
		out[i] = c
	}
	return out, nil
}

func (s *Store) UpdateCategory(_ context.Context, c core.Category) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.categories[c.ID]
	if !ok || r.item.UserID != c.UserID {
		return core.Category{}, fmt.Errorf("update category: %w", storage.ErrNotFound)
	}
	if s.nameTaken(c.UserID, c.Name, c.ID) {
		return core.Category{}, fmt.Errorf("update category: %w", storage.ErrConflict)
	}
	r.item = c
	s.categories[c.ID] = r
	return c, nil
}

// DeleteCategory holds the lock for the whole cascade, so no reader sees a
// half-applied delete.
func (s *Store) DeleteCategory(_ context.Context, userID, id string) (storage.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.categories[id]
	if !ok || r.item.UserID != userID {
		return storage.DeleteResult{}, storage.ErrNotFound
	}
	var res storage.DeleteResult
	for eid, er := range s.expenses {
		if er.item.UserID == userID && er.item.CategoryID == id {
			er.item.CategoryID = ""
			s.expenses[eid] = er
			res.ExpensesUncategorized++
		}
	}
	for bid, br := range s.budgets {
		if br.item.UserID == userID && br.item.CategoryID == id {
			delete(s.budgets, bid)
			res.BudgetsDeleted++
		}
	}
	delete(s.categories, id)
	return res, nil
}

func (s *Store) SetCategoryOrder(_ context.Context, userID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if r, ok := s.categories[id]; !ok || r.item.UserID != userID {
			return fmt.Errorf("reorder category %s: %w", id, storage.ErrNotFound)
		}
	}
	for i, id := range ids {
		r := s.categories[id]
		r.item.SortOrder = i
		s.categories[id] = r
	}
	return nil
}

func (s *Store) CountCategories(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.categories {
		if r.item.UserID == userID {
			n++
		}
	}
	return n, nil
}

// Expenses

func (s *Store) ListExpenses(_ context.Context, userID string, q storage.ExpenseQuery) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := sorted(s.expenses,
		func(e core.Expense) bool {
			return e.UserID == userID && (q.Month.IsZero() || q.Month.Contains(e.Date))
		},
		func(a, b core.Expense) int { return 0 })
	return core.SortExpenses(items), nil
}

func (s *Store) GetExpense(_ context.Context, userID, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.expenses[id]
	if !ok || r.item.UserID != userID {
		return core.Expense{}, storage.ErrNotFound
	}
	return r.item, nil
}

func (s *Store) categoryResolves(userID, id string) bool {
	if id == "" {
		return true
	}
	r, ok := s.categories[id]
	return ok && r.item.UserID == userID
}

func (s *Store) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.categoryResolves(e.UserID, e.CategoryID) {
		return core.Expense{}, fmt.Errorf("create expense: category: %w", storage.ErrNotFound)
	}
	e.ID = newID(e.ID)
	s.expenses[e.ID] = row[core.Expense]{seq: s.next(), item: e}
	return e, nil
}

func (s *Store) UpdateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.expenses[e.ID]
	if !ok || r.item.UserID != e.UserID {
		return core.Expense{}, fmt.Errorf("update expense: %w", storage.ErrNotFound)
	}
	if !s.categoryResolves(e.UserID, e.CategoryID) {
		return core.Expense{}, fmt.Errorf("update expense: category: %w", storage.ErrNotFound)
	}
	r.item = e
	s.expenses[e.ID] = r
	return e, nil
}

func (s *Store) DeleteExpense(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.expenses[id]
	if !ok || r.item.UserID != userID {
		return fmt.Errorf("delete expense: %w", storage.ErrNotFound)
	}
	delete(s.expenses, id)
	return nil
}

func (s *Store) SetExpenseOrder(_ context.Context, userID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if r, ok := s.expenses[id]; !ok || r.item.UserID != userID {
			return fmt.Errorf("reorder expense %s: %w", id, storage.ErrNotFound)
		}
	}
	for i, id := range ids {
		r := s.expenses[id]
		r.item.SortOrder = i
		s.expenses[id] = r
	}
	return nil
}

func (s *Store) MoveExpenses(_ context.Context, userID string, moved []core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range moved {
		if r, ok := s.expenses[e.ID]; !ok || r.item.UserID != userID {
			return fmt.Errorf("move expense %s: %w", e.ID, storage.ErrNotFound)
		}
	}
	for _, e := range moved {
		r := s.expenses[e.ID]
		r.item.Date = e.Date
		r.item.SortOrder = e.SortOrder
		s.expenses[e.ID] = r
	}
	return nil
}

// Budgets

func (s *Store) ListBudgets(_ context.Context, userID string, month core.YearMonth) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sorted(s.budgets,
		func(b core.Budget) bool {
			return b.UserID == userID && (month.IsZero() || b.Month == month)
		},
		func(a, b core.Budget) int {
			if c := cmp.Compare(a.Month.String(), b.Month.String()); c != 0 {
				return c
			}
			return cmp.Compare(a.SortOrder, b.SortOrder)
		}), nil
}

func (s *Store) GetBudget(_ context.Context, userID, id string) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.budgets[id]
	if !ok || r.item.UserID != userID {
		return core.Budget{}, storage.ErrNotFound
	}
	return r.item, nil
}

func (s *Store) budgetFor(b core.Budget, exceptID string) (string, bool) {
	for id, r := range s.budgets {
		if id != exceptID && r.item.UserID == b.UserID && r.item.CategoryID == b.CategoryID && r.item.Month == b.Month {
			return id, true
		}
	}
	return "", false
}

func (s *Store) CreateBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.categoryResolves(b.UserID, b.CategoryID) {
		return core.Budget{}, fmt.Errorf("create budget: category: %w", storage.ErrNotFound)
	}
	if _, dup := s.budgetFor(b, ""); dup {
		return core.Budget{}, fmt.Errorf("create budget: %w", storage.ErrConflict)
	}
	b.ID = newID(b.ID)
	s.budgets[b.ID] = row[core.Budget]{seq: s.next(), item: b}
	return b, nil
}

func (s *Store) UpdateBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.budgets[b.ID]
	if !ok || r.item.UserID != b.UserID {
		return core.Budget{}, fmt.Errorf("update budget: %w", storage.ErrNotFound)
	}
	if !s.categoryResolves(b.UserID, b.CategoryID) {
		return core.Budget{}, fmt.Errorf("update budget: category: %w", storage.ErrNotFound)
	}
	if _, dup := s.budgetFor(b, b.ID); dup {
		return core.Budget{}, fmt.Errorf("update budget: %w", storage.ErrConflict)
	}
	r.item = b
	s.budgets[b.ID] = r
	return b, nil
}

func (s *Store) UpsertBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.categoryResolves(b.UserID, b.CategoryID) {
		return core.Budget{}, fmt.Errorf("upsert budget: category: %w", storage.ErrNotFound)
	}
	if id, ok := s.budgetFor(b, ""); ok {
		r := s.budgets[id]
		r.item.Amount = b.Amount
		s.budgets[id] = r
		return r.item, nil
	}
	b.ID = newID(b.ID)
	s.budgets[b.ID] = row[core.Budget]{seq: s.next(), item: b}
	return b, nil
}

func (s *Store) DeleteBudget(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.budgets[id]
	if !ok || r.item.UserID != userID {
		return fmt.Errorf("delete budget: %w", storage.ErrNotFound)
	}
	delete(s.budgets, id)
	return nil
}
