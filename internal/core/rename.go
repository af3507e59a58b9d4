package core

import "strings"

// RenameCategory renames the category called oldName. Expenses and budgets
// point at the category ID, so they follow the rename without being touched.
func RenameCategory(categories []Category, oldName, newName string) ([]Category, Category, error) {
	oldName = strings.TrimSpace(oldName)
	newName = strings.TrimSpace(newName)
	if oldName == "" {
		return nil, Category{}, NewValidationError("oldCategoryName", ErrEmptyName)
	}
	if newName == "" {
		return nil, Category{}, NewValidationError("newCategoryName", ErrEmptyName)
	}

	idx := NewCategoryIndex(categories)
	target, ok := idx.ByName(oldName)
	if !ok {
		return nil, Category{}, ErrCategoryNotFound
	}
	if err := CheckNameAvailable(categories, newName, target.ID); err != nil {
		return nil, Category{}, err
	}

	out := make([]Category, len(categories))
	copy(out, categories)
	for i := range out {
		if out[i].ID == target.ID {
			out[i].Name = newName
			target = out[i]
		}
	}
	if err := target.Validate(); err != nil {
		return nil, Category{}, err
	}
	return out, target, nil
}

// CheckNameAvailable rejects name if another category already uses it.
func CheckNameAvailable(categories []Category, name, exceptID string) error {
	name = strings.TrimSpace(name)
	for _, c := range categories {
		if c.ID != exceptID && c.Name == name {
			return NewValidationError("name", ErrDuplicateCategory)
		}
	}
	return nil
}

// ReferencesTo counts the expenses and budgets pointing at a category.
func ReferencesTo(categoryID string, expenses []Expense, budgets []Budget) (nExpenses, nBudgets int) {
	for _, e := range expenses {
		if e.CategoryID == categoryID {
			nExpenses++
		}
	}
	for _, b := range budgets {
		if b.CategoryID == categoryID {
			nBudgets++
		}
	}
	return nExpenses, nBudgets
}
