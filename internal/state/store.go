// Package state holds the client's single copy of a user's categories,
// expenses and budgets. Views read snapshots; every write goes through the
// store so local state and the server are reconciled in one place.
package state

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"kakeibo/internal/client"
	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/storage"
)

// Resource names one collection held by the store.
type Resource int

const (
	Categories Resource = iota
	Expenses
	Budgets
	numResources
)

func (r Resource) String() string {
	switch r {
	case Categories:
		return "categories"
	case Expenses:
		return "expenses"
	case Budgets:
		return "budgets"
	}
	return fmt.Sprintf("resource(%d)", int(r))
}

// ErrUnknownRecord is returned when a mutation names a record the store does
// not hold.
var ErrUnknownRecord = errors.New("record not in local state")

// Remote is the subset of the API the store talks to. *client.Client
// satisfies it.
type Remote interface {
	ListCategories(ctx context.Context) ([]core.Category, error)
	ListExpenses(ctx context.Context, month core.YearMonth) ([]core.Expense, error)
	ListBudgets(ctx context.Context, month core.YearMonth) ([]core.Budget, error)

	CreateExpense(ctx context.Context, in client.ExpenseInput) (core.Expense, error)
	UpdateExpense(ctx context.Context, id string, p client.ExpensePatch) (core.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
	ReorderExpenses(ctx context.Context, day core.Date, from, to int) ([]core.Expense, error)
	MoveDay(ctx context.Context, from, to core.Date) ([]core.Expense, error)

	CreateCategory(ctx context.Context, in client.CategoryInput) (core.Category, error)
	UpdateCategory(ctx context.Context, id string, p client.CategoryPatch) (core.Category, error)
	DeleteCategory(ctx context.Context, id string) (storage.DeleteResult, error)
	ReorderCategories(ctx context.Context, from, to int) ([]core.Category, error)

	SetBudget(ctx context.Context, in client.BudgetInput) (core.Budget, error)
	DeleteBudget(ctx context.Context, id string) error
}

var _ Remote = (*client.Client)(nil)

// Snapshot is a read-only copy of the store. Expenses and budgets belong to
// Month.
type Snapshot struct {
	Month      core.YearMonth
	Categories []core.Category
	Expenses   []core.Expense
	Budgets    []core.Budget
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{
		Month:      s.Month,
		Categories: slices.Clone(s.Categories),
		Expenses:   slices.Clone(s.Expenses),
		Budgets:    slices.Clone(s.Budgets),
	}
}

type Store struct {
	remote Remote
	logger *log.Logger

	mu     sync.Mutex
	data   Snapshot
	gens   [numResources]uint64
	subs   map[int]func(Snapshot)
	nextID int
}

// New returns an empty store positioned at month.
func New(remote Remote, month core.YearMonth, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Discard()
	}
	return &Store{
		remote: remote,
		logger: logger.WithComponent(log.ComponentState),
		data:   Snapshot{Month: month},
		subs:   make(map[int]func(Snapshot)),
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.clone()
}

func (s *Store) Month() core.YearMonth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Month
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned func removes it.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	snap := s.data.clone()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// BeginFetch issues a new generation for r. Data fetched under an older
// generation is dropped by applyFetch.
func (s *Store) BeginFetch(r Resource) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[r]++
	return s.gens[r]
}

// applyFetch installs data for r if gen is still the latest generation. It
// reports whether the data was applied.
func (s *Store) applyFetch(r Resource, gen uint64, month core.YearMonth, data any) bool {
	s.mu.Lock()
	if gen != s.gens[r] || (r != Categories && month != s.data.Month) {
		s.mu.Unlock()
		s.logger.Debug("Dropped stale fetch", log.FieldResource, r.String(), log.FieldVersion, gen)
		return false
	}
	switch r {
	case Categories:
		s.data.Categories = core.SortCategories(data.([]core.Category))
	case Expenses:
		s.data.Expenses = core.SortExpenses(data.([]core.Expense))
	case Budgets:
		s.data.Budgets = core.SortBudgets(data.([]core.Budget))
	}
	s.mu.Unlock()
	s.notify()
	return true
}

// Refresh reloads every collection for the current month concurrently.
func (s *Store) Refresh(ctx context.Context) error {
	month := s.Month()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		gen := s.BeginFetch(Categories)
		cats, err := s.remote.ListCategories(gctx)
		if err != nil {
			return fmt.Errorf("fetch categories: %w", err)
		}
		s.applyFetch(Categories, gen, month, cats)
		return nil
	})
	g.Go(func() error { return s.fetchExpenses(gctx, month) })
	g.Go(func() error { return s.fetchBudgets(gctx, month) })
	return g.Wait()
}

// SetMonth moves the cursor and reloads the month's expenses and budgets.
// A fetch for a month navigated away from is ignored.
func (s *Store) SetMonth(ctx context.Context, month core.YearMonth) error {
	s.mu.Lock()
	changed := s.data.Month != month
	if changed {
		s.data.Month = month
		s.data.Expenses = nil
		s.data.Budgets = nil
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.fetchExpenses(gctx, month) })
	g.Go(func() error { return s.fetchBudgets(gctx, month) })
	return g.Wait()
}

func (s *Store) fetchExpenses(ctx context.Context, month core.YearMonth) error {
	gen := s.BeginFetch(Expenses)
	es, err := s.remote.ListExpenses(ctx, month)
	if err != nil {
		return fmt.Errorf("fetch expenses: %w", err)
	}
	s.applyFetch(Expenses, gen, month, es)
	return nil
}

func (s *Store) fetchBudgets(ctx context.Context, month core.YearMonth) error {
	gen := s.BeginFetch(Budgets)
	bs, err := s.remote.ListBudgets(ctx, month)
	if err != nil {
		return fmt.Errorf("fetch budgets: %w", err)
	}
	s.applyFetch(Budgets, gen, month, bs)
	return nil
}

// undoFunc reverts one optimistic change against whatever the state is at
// rollback time, so a concurrent mutation's records are left alone.
type undoFunc func(*Snapshot)

// mutate applies a change locally, calls the server and then either
// reconciles the server's answer into the state or undoes the change.
// touched resources get a new generation so an earlier in-flight fetch
// cannot overwrite the optimistic state.
func mutate[T any](
	ctx context.Context,
	s *Store,
	op string,
	touched []Resource,
	apply func(*Snapshot) (undoFunc, error),
	call func(context.Context) (T, error),
	reconcile func(*Snapshot, T),
) (T, error) {
	var zero T

	s.mu.Lock()
	undo, err := apply(&s.data)
	if err != nil {
		s.mu.Unlock()
		return zero, err
	}
	for _, r := range touched {
		s.gens[r]++
	}
	s.mu.Unlock()
	s.notify()

	out, err := call(ctx)

	s.mu.Lock()
	if err != nil {
		if undo != nil {
			undo(&s.data)
		}
	} else if reconcile != nil {
		reconcile(&s.data, out)
	}
	s.mu.Unlock()
	s.notify()

	if err != nil {
		s.logger.WarnContext(ctx, "Rolled back optimistic change",
			log.FieldOperation, op,
			log.FieldError, err)
		return zero, err
	}
	return out, nil
}
