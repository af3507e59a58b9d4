package core

import (
	"slices"

	"github.com/shopspring/decimal"
)

type (
	// CategoryTotal is one category's share of a day or month.
	CategoryTotal struct {
		CategoryID string   `json:"categoryId"`
		Name       string   `json:"name"`
		Color      string   `json:"color"`
		Amount     Money    `json:"amount"`
		ExpenseIDs []string `json:"expenseIds"`
	}

	// CalendarDay feeds one cell of the month calendar.
	CalendarDay struct {
		Date       Date            `json:"date"`
		Total      Money           `json:"total"`
		Categories []CategoryTotal `json:"categories"`
	}

	BudgetStatus struct {
		CategoryID              string    `json:"categoryId"`
		CategoryName            string    `json:"categoryName"`
		Color                   string    `json:"color"`
		Month                   YearMonth `json:"month"`
		HasBudget               bool      `json:"hasBudget"`
		BudgetID                string    `json:"budgetId,omitempty"`
		BudgetAmount            Money     `json:"budgetAmount"`
		TotalExpense            Money     `json:"totalExpense"`
		UsagePercentage         int64     `json:"usagePercentage"`
		UsagePercentageForGraph int64     `json:"usagePercentageForGraph"`
		RemainingBudget         Money     `json:"remainingBudget"`
		OverExpense             Money     `json:"overExpense"`
		IsOverBudget            bool      `json:"isOverBudget"`
	}

	PieSlice struct {
		CategoryID string `json:"categoryId"`
		Name       string `json:"name"`
		Color      string `json:"color"`
		Amount     Money  `json:"amount"`
	}

	// CategoryAmount represents an amount aggregated by category name.
	CategoryAmount struct {
		CategoryID string `json:"categoryId"`
		Name       string `json:"name"`
		Amount     Money  `json:"amount"`
	}

	// MonthOverview is a compact summary for a specific year+month.
	MonthOverview struct {
		Month      YearMonth        `json:"month"`
		Total      Money            `json:"total"`
		Count      int              `json:"count"`
		ByCategory []CategoryAmount `json:"byCategory"`
	}

	// ExpenseFilter selects the expenses an aggregate runs over.
	ExpenseFilter func(Expense) bool

	PieSort string
)

const (
	SortByCategory PieSort = "category"
	SortByAmount   PieSort = "amount"
)

func ParsePieSort(s string) PieSort {
	if PieSort(s) == SortByAmount {
		return SortByAmount
	}
	return SortByCategory
}

func OnDay(d Date) ExpenseFilter {
	key := d.Key()
	return func(e Expense) bool { return e.Date.Key() == key }
}

func InMonth(ym YearMonth) ExpenseFilter {
	return func(e Expense) bool { return ym.Contains(e.Date) }
}

func AllExpenses(Expense) bool { return true }

// DailyTotals sums the amounts of every expense that falls on day.
func DailyTotals(expenses []Expense, day Date) Money {
	key := day.Key()
	var total Money
	for _, e := range expenses {
		if e.Date.Key() == key {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// DailyCategoryTotals groups the day's expenses by category in the order the
// categories first appear on that day. Unresolved references share one
// uncategorized entry whose color comes from the palette by position.
func DailyCategoryTotals(expenses []Expense, idx CategoryIndex, day Date) []CategoryTotal {
	return groupByCategory(filterExpenses(expenses, OnDay(day)), idx)
}

func groupByCategory(expenses []Expense, idx CategoryIndex) []CategoryTotal {
	var out []CategoryTotal
	pos := make(map[string]int)
	for _, e := range SortExpenses(expenses) {
		key := ""
		if c, ok := idx.Lookup(e.CategoryID); ok {
			key = c.ID
		}
		i, seen := pos[key]
		if !seen {
			entry := CategoryTotal{Name: UncategorizedName, Color: PaletteColor(len(out))}
			if c, ok := idx.Lookup(key); ok {
				entry.CategoryID = c.ID
				entry.Name = c.Name
				if c.Color != "" {
					entry.Color = c.Color
				}
			}
			out = append(out, entry)
			i = len(out) - 1
			pos[key] = i
		}
		out[i].Amount = out[i].Amount.Add(e.Amount)
		out[i].ExpenseIDs = append(out[i].ExpenseIDs, e.ID)
	}
	return out
}

// CalendarMonth returns one entry per day of ym that has expenses, in date order.
func CalendarMonth(expenses []Expense, idx CategoryIndex, ym YearMonth) []CalendarDay {
	byDay := make(map[string][]Expense)
	var keys []string
	for _, e := range expenses {
		if !ym.Contains(e.Date) {
			continue
		}
		k := e.Date.Key()
		if _, ok := byDay[k]; !ok {
			keys = append(keys, k)
		}
		byDay[k] = append(byDay[k], e)
	}
	slices.Sort(keys)

	days := make([]CalendarDay, 0, len(keys))
	for _, k := range keys {
		dayExpenses := byDay[k]
		day := dayExpenses[0].Date
		days = append(days, CalendarDay{
			Date:       day,
			Total:      DailyTotals(dayExpenses, day),
			Categories: groupByCategory(dayExpenses, idx),
		})
	}
	return days
}

// MonthlyCategoryTotal sums the category's expenses in ym.
func MonthlyCategoryTotal(expenses []Expense, categoryID string, ym YearMonth) Money {
	var total Money
	for _, e := range expenses {
		if e.CategoryID == categoryID && ym.Contains(e.Date) {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// BudgetStatusFor compares a category's spend in ym against its budget. A
// category without a budget yields HasBudget false and zero figures.
func BudgetStatusFor(category Category, budgets []Budget, expenses []Expense, ym YearMonth) BudgetStatus {
	status := BudgetStatus{
		CategoryID:   category.ID,
		CategoryName: category.Name,
		Color:        category.Color,
		Month:        ym,
		TotalExpense: MonthlyCategoryTotal(expenses, category.ID, ym),
	}

	var budget *Budget
	for _, b := range SortBudgets(budgets) {
		if b.CategoryID == category.ID && b.Month == ym {
			budget = &b
			break
		}
	}
	if budget == nil {
		return status
	}

	status.HasBudget = true
	status.BudgetID = budget.ID
	status.BudgetAmount = budget.Amount
	status.UsagePercentage = UsagePercentage(status.TotalExpense, budget.Amount)
	status.UsagePercentageForGraph = ClampPercentage(status.UsagePercentage)
	status.RemainingBudget = budget.Amount.Sub(status.TotalExpense)
	status.IsOverBudget = status.RemainingBudget.Cents < 0
	if status.IsOverBudget {
		status.OverExpense = Money{Cents: -status.RemainingBudget.Cents}
	}
	return status
}

// BudgetStatuses returns one status per category in declared order.
func BudgetStatuses(idx CategoryIndex, budgets []Budget, expenses []Expense, ym YearMonth) []BudgetStatus {
	cats := idx.Categories()
	out := make([]BudgetStatus, 0, len(cats))
	for _, c := range cats {
		out = append(out, BudgetStatusFor(c, budgets, expenses, ym))
	}
	return out
}

// UsagePercentage returns round(spent/ceiling*100), rounding halves up, and 0
// for a zero ceiling. The result is not clamped.
func UsagePercentage(spent, ceiling Money) int64 {
	if ceiling.Cents <= 0 {
		return 0
	}
	num := decimal.NewFromInt(spent.Cents).Mul(decimal.NewFromInt(100))
	den := decimal.NewFromInt(ceiling.Cents)
	q, r := num.QuoRem(den, 0)
	if r.Mul(decimal.NewFromInt(2)).GreaterThanOrEqual(den) {
		q = q.Add(decimal.NewFromInt(1))
	}
	return q.IntPart()
}

// ClampPercentage bounds a percentage to [0, 100] for bars and graphs.
func ClampPercentage(p int64) int64 {
	return min(max(p, 0), 100)
}

// PieBreakdown aggregates the filtered expenses per category.
func PieBreakdown(expenses []Expense, idx CategoryIndex, filter ExpenseFilter, sortBy PieSort) []PieSlice {
	if filter == nil {
		filter = AllExpenses
	}
	groups := groupByCategory(filterExpenses(expenses, filter), idx)
	pie := make([]PieSlice, len(groups))
	for i, g := range groups {
		pie[i] = PieSlice{CategoryID: g.CategoryID, Name: g.Name, Color: g.Color, Amount: g.Amount}
	}
	sortPie(pie, idx, sortBy)
	return pie
}

func sortPie(pie []PieSlice, idx CategoryIndex, sortBy PieSort) {
	switch sortBy {
	case SortByAmount:
		slices.SortStableFunc(pie, func(a, b PieSlice) int {
			switch {
			case a.Amount.Cents > b.Amount.Cents:
				return -1
			case a.Amount.Cents < b.Amount.Cents:
				return 1
			}
			return 0
		})
	default:
		rank := func(s PieSlice) int {
			if p, ok := idx.Position(s.CategoryID); ok && s.CategoryID != "" {
				return p
			}
			return idx.Len()
		}
		slices.SortStableFunc(pie, func(a, b PieSlice) int { return rank(a) - rank(b) })
	}
}

// MonthSummary totals ym and breaks it down by category in declared order.
func MonthSummary(expenses []Expense, idx CategoryIndex, ym YearMonth) MonthOverview {
	ov := MonthOverview{Month: ym}
	inMonth := filterExpenses(expenses, InMonth(ym))
	for _, e := range inMonth {
		ov.Total = ov.Total.Add(e.Amount)
	}
	ov.Count = len(inMonth)
	for _, s := range PieBreakdown(inMonth, idx, AllExpenses, SortByCategory) {
		ov.ByCategory = append(ov.ByCategory, CategoryAmount{CategoryID: s.CategoryID, Name: s.Name, Amount: s.Amount})
	}
	return ov
}

func filterExpenses(expenses []Expense, keep ExpenseFilter) []Expense {
	var out []Expense
	for _, e := range expenses {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
