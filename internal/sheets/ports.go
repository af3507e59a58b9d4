// Package sheets defines the outbound port for mirroring expenses into a
// spreadsheet.
package sheets

import (
	"context"

	"kakeibo/internal/core"
)

// Row is one mirrored expense. The category is written by name so the sheet
// stays readable on its own.
type Row struct {
	ID       string
	Date     core.Date
	Category string
	Amount   core.Money
	Memo     string
}

// Header is the first row of a mirror sheet.
var Header = []string{"ID", "Date", "Category", "Amount", "Memo"}

// Values renders the row in Header order.
func (r Row) Values() []any {
	return []any{r.ID, r.Date.Key(), r.Category, r.Amount.String(), r.Memo}
}

type ExpenseMirror interface {
	// UpsertExpense rewrites the row with the same ID or appends a new one.
	UpsertExpense(ctx context.Context, row Row) error
	// DeleteExpense removes the row with the given ID. A missing row is not an error.
	DeleteExpense(ctx context.Context, id string) error
}
