// Package worker consumes change events and keeps the spreadsheet mirror in
// step with the store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"kakeibo/internal/amqp"
	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/sheets"
	"kakeibo/internal/storage"
)

// Store is the read side of storage the mirror needs.
type Store interface {
	GetExpense(ctx context.Context, userID, id string) (core.Expense, error)
	ListExpenses(ctx context.Context, userID string, q storage.ExpenseQuery) ([]core.Expense, error)
	ListCategories(ctx context.Context, userID string) ([]core.Category, error)
}

// Consumer delivers change events to a handler until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, handler amqp.Handler) error
}

// MirrorWorker writes every expense change to the mirror. Events carry no
// payload, so each one re-reads the current record; a replayed or reordered
// event therefore converges on the stored state.
type MirrorWorker struct {
	store  Store
	mirror sheets.ExpenseMirror
	logger *log.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

func NewMirrorWorker(store Store, mirror sheets.ExpenseMirror, logger *log.Logger) *MirrorWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &MirrorWorker{store: store, mirror: mirror, logger: logger.WithComponent(log.ComponentWorker)}
}

// Handle applies one event. Budget events are ignored.
func (w *MirrorWorker) Handle(ctx context.Context, ev *amqp.ChangeEvent) error {
	switch ev.Kind {
	case amqp.KindExpense:
		if ev.Action == amqp.ActionDeleted {
			return w.deleteExpense(ctx, ev.ID)
		}
		return w.syncExpense(ctx, ev.UserID, ev.ID)
	case amqp.KindCategory:
		switch ev.Action {
		case amqp.ActionUpdated:
			return w.syncCategory(ctx, ev.UserID, ev.ID)
		case amqp.ActionDeleted:
			// its expenses are uncategorized now
			return w.syncCategory(ctx, ev.UserID, "")
		}
	}
	return nil
}

func (w *MirrorWorker) syncExpense(ctx context.Context, userID, id string) error {
	e, err := w.store.GetExpense(ctx, userID, id)
	if errors.Is(err, storage.ErrNotFound) {
		// deleted after the event was published
		return w.deleteExpense(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("get expense %s: %w", id, err)
	}
	cs, err := w.store.ListCategories(ctx, userID)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	return w.upsert(ctx, core.NewCategoryIndex(cs), e)
}

func (w *MirrorWorker) upsert(ctx context.Context, idx core.CategoryIndex, e core.Expense) error {
	row := sheets.Row{
		ID:       e.ID,
		Date:     e.Date,
		Category: idx.NameOf(e.CategoryID),
		Amount:   e.Amount,
		Memo:     e.Memo,
	}
	if err := w.mirror.UpsertExpense(ctx, row); err != nil {
		return fmt.Errorf("mirror expense %s: %w", e.ID, err)
	}
	w.logger.InfoContext(ctx, "Mirrored expense", log.NewFields().
		WithOperation(log.OpMirror).
		WithExpense(e.ID, e.CategoryID, e.Date.Key(), e.Amount.Cents).
		ToSlice()...)
	return nil
}

func (w *MirrorWorker) deleteExpense(ctx context.Context, id string) error {
	if err := w.mirror.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("remove mirrored expense %s: %w", id, err)
	}
	w.logger.InfoContext(ctx, "Removed mirrored expense", log.FieldOperation, log.OpDelete, log.FieldResourceID, id)
	return nil
}

// syncCategory rewrites every expense filed under categoryID, or every
// uncategorized expense when categoryID is empty.
func (w *MirrorWorker) syncCategory(ctx context.Context, userID, categoryID string) error {
	cs, err := w.store.ListCategories(ctx, userID)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	es, err := w.store.ListExpenses(ctx, userID, storage.ExpenseQuery{})
	if err != nil {
		return fmt.Errorf("list expenses: %w", err)
	}
	idx := core.NewCategoryIndex(cs)
	n := 0
	for _, e := range es {
		if e.CategoryID != categoryID {
			if _, ok := idx.Lookup(e.CategoryID); ok || categoryID != "" {
				continue
			}
		}
		if err := w.upsert(ctx, idx, e); err != nil {
			return err
		}
		n++
	}
	w.logger.InfoContext(ctx, "Re-mirrored category",
		log.FieldUserID, userID, log.FieldCategoryID, categoryID, log.FieldCount, n)
	return nil
}

// Resync writes every expense of userID to the mirror. It recovers from
// events lost while the worker was down.
func (w *MirrorWorker) Resync(ctx context.Context, userID string) (int, error) {
	cs, err := w.store.ListCategories(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list categories: %w", err)
	}
	es, err := w.store.ListExpenses(ctx, userID, storage.ExpenseQuery{})
	if err != nil {
		return 0, fmt.Errorf("list expenses: %w", err)
	}
	idx := core.NewCategoryIndex(cs)
	for i, e := range core.SortExpenses(es) {
		if err := w.upsert(ctx, idx, e); err != nil {
			return i, err
		}
	}
	return len(es), nil
}

// Start consumes events in the background. It returns an error if the worker
// is already running.
func (w *MirrorWorker) Start(ctx context.Context, consumer Consumer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("mirror worker is already running")
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.doneCh = make(chan struct{})
	w.running = true

	go func(done chan struct{}) {
		defer close(done)
		if err := consumer.Consume(ctx, w.Handle); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "Event consumption stopped", log.FieldError, err)
		}
	}(w.doneCh)

	w.logger.InfoContext(ctx, "Mirror worker started", log.FieldOperation, log.OpStartup)
	return nil
}

// Stop cancels consumption and waits for the in-flight event, or for ctx.
func (w *MirrorWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel, done := w.cancel, w.doneCh
	w.running = false
	w.mu.Unlock()

	cancel()
	select {
	case <-done:
		w.logger.InfoContext(ctx, "Mirror worker stopped", log.FieldOperation, log.OpShutdown)
		return nil
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Mirror worker stop timed out")
		return ctx.Err()
	}
}

func (w *MirrorWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
