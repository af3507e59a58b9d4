package core

import (
	"errors"
	"testing"
)

func TestRenameCategory(t *testing.T) {
	cats := fixtureCategories()
	expenses := []Expense{
		exp("a", "food", 10, NewDate(2025, 3, 1), 0),
		exp("b", "food", 20, NewDate(2025, 3, 2), 0),
		exp("c", "transit", 30, NewDate(2025, 3, 2), 1),
	}
	budgets := []Budget{{ID: "b1", CategoryID: "food", Month: march, Amount: FromUnits(100)}}

	renamed, target, err := RenameCategory(cats, "Food", "Groceries")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if target.ID != "food" || target.Name != "Groceries" {
		t.Fatalf("unexpected target %+v", target)
	}
	if cats[0].Name != "Food" {
		t.Fatalf("input was modified")
	}

	idx := NewCategoryIndex(renamed)
	if _, ok := idx.ByName("Food"); ok {
		t.Fatalf("old name still resolves")
	}
	// Every former reference now resolves under the new name.
	for _, e := range expenses[:2] {
		if got := idx.NameOf(e.CategoryID); got != "Groceries" {
			t.Fatalf("%s resolves to %q", e.ID, got)
		}
	}
	if n, nb := ReferencesTo("food", expenses, budgets); n != 2 || nb != 1 {
		t.Fatalf("references changed: %d %d", n, nb)
	}
	if BudgetStatusFor(target, budgets, expenses, march).TotalExpense != FromUnits(30) {
		t.Fatalf("budget lost its expenses after rename")
	}
}

func TestRenameCategoryErrors(t *testing.T) {
	cats := fixtureCategories()
	if _, _, err := RenameCategory(cats, "", "x"); !IsValidationError(err) {
		t.Fatalf("missing old name: got %v", err)
	}
	if _, _, err := RenameCategory(cats, "Food", " "); !IsValidationError(err) {
		t.Fatalf("missing new name: got %v", err)
	}
	if _, _, err := RenameCategory(cats, "Nope", "x"); !errors.Is(err, ErrCategoryNotFound) {
		t.Fatalf("unknown: got %v", err)
	}
	if _, _, err := RenameCategory(cats, "Food", "Transit"); !errors.Is(err, ErrDuplicateCategory) {
		t.Fatalf("duplicate: got %v", err)
	}
	if _, _, err := RenameCategory(cats, "Food", "Food"); err != nil {
		t.Fatalf("same name should be allowed: %v", err)
	}
}
