package memory

import (
	"context"
	"sync"
	"testing"

	"kakeibo/internal/core"
	"kakeibo/internal/storage"
	"kakeibo/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return New() })
}

func TestConcurrentWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	u, err := s.CreateUser(ctx, core.User{Email: "a@example.com"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CreateExpense(ctx, core.Expense{
				UserID: u.ID, Date: core.NewDate(2025, 3, 1+i%28), Amount: core.FromUnits(int64(i)),
			})
			if err != nil {
				t.Errorf("create expense: %v", err)
			}
		}(i)
	}
	wg.Wait()

	all, err := s.ListExpenses(ctx, u.ID, storage.ExpenseQuery{})
	if err != nil || len(all) != 50 {
		t.Fatalf("unexpected list: n=%d err=%v", len(all), err)
	}
}

func TestCreateExpenseRejectsForeignCategory(t *testing.T) {
	s := New()
	ctx := context.Background()
	owner, _ := s.CreateUser(ctx, core.User{Email: "owner@example.com"})
	other, _ := s.CreateUser(ctx, core.User{Email: "other@example.com"})
	c, err := s.CreateCategory(ctx, core.Category{UserID: owner.ID, Name: "食費"})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	_, err = s.CreateExpense(ctx, core.Expense{UserID: other.ID, CategoryID: c.ID, Date: core.NewDate(2025, 3, 1)})
	if err == nil {
		t.Fatalf("expected error for another user's category")
	}
}
