package core

import (
	"testing"
	"time"
)

var march = YearMonth{Year: 2025, Month: time.March}

func fixtureCategories() []Category {
	return []Category{
		{ID: "food", Name: "Food", Color: "#ff0000", SortOrder: 0},
		{ID: "transit", Name: "Transit", Color: "#00ff00", SortOrder: 1},
		{ID: "daily", Name: "Daily", SortOrder: 2},
	}
}

func exp(id, cat string, units int64, d Date, order int) Expense {
	return Expense{ID: id, CategoryID: cat, Amount: FromUnits(units), Date: d, SortOrder: order}
}

func TestDailyTotals(t *testing.T) {
	day := NewDate(2025, 3, 10)
	expenses := []Expense{
		exp("a", "food", 300, day, 0),
		exp("b", "transit", 700, day, 1),
		exp("c", "food", 50, day.AddDays(1), 0),
	}
	if got := DailyTotals(expenses, day); got != FromUnits(1000) {
		t.Fatalf("expected 1000, got %s", got)
	}
	if got := DailyTotals(expenses, day.AddDays(2)); !got.IsZero() {
		t.Fatalf("expected zero for empty day, got %s", got)
	}
	// Aggregates are pure.
	if DailyTotals(expenses, day) != DailyTotals(expenses, day) {
		t.Fatalf("repeated calls disagree")
	}
}

func TestDailyTotalsBucketsByWrittenDay(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	late := NormalizeDate(time.Date(2025, 3, 10, 23, 50, 0, 0, tokyo))
	expenses := []Expense{exp("a", "food", 100, late, 0)}
	if got := DailyTotals(expenses, NewDate(2025, 3, 10)); got != FromUnits(100) {
		t.Fatalf("expense drifted off its day: %s", got)
	}
}

func TestDailyCategoryTotals(t *testing.T) {
	idx := NewCategoryIndex(fixtureCategories())
	day := NewDate(2025, 3, 10)
	expenses := []Expense{
		exp("a", "transit", 200, day, 0),
		exp("b", "food", 300, day, 1),
		exp("c", "transit", 100, day, 2),
		exp("d", "gone", 40, day, 3),
		exp("e", "", 10, day, 4),
	}
	got := DailyCategoryTotals(expenses, idx, day)
	if len(got) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(got))
	}
	if got[0].Name != "Transit" || got[0].Amount != FromUnits(300) || len(got[0].ExpenseIDs) != 2 {
		t.Fatalf("unexpected first group %+v", got[0])
	}
	if got[1].Name != "Food" || got[1].Color != "#ff0000" {
		t.Fatalf("unexpected second group %+v", got[1])
	}
	if got[2].Name != UncategorizedName || got[2].Amount != FromUnits(50) || got[2].Color != PaletteColor(2) {
		t.Fatalf("unexpected uncategorized group %+v", got[2])
	}
}

func TestCalendarMonth(t *testing.T) {
	idx := NewCategoryIndex(fixtureCategories())
	expenses := []Expense{
		exp("a", "food", 10, NewDate(2025, 3, 20), 0),
		exp("b", "food", 20, NewDate(2025, 3, 2), 0),
		exp("c", "food", 30, NewDate(2025, 4, 1), 0),
		exp("d", "transit", 5, NewDate(2025, 3, 2), 1),
	}
	days := CalendarMonth(expenses, idx, march)
	if len(days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(days))
	}
	if days[0].Date.Key() != "2025-03-02" || days[0].Total != FromUnits(25) {
		t.Fatalf("unexpected first day %+v", days[0])
	}
	if days[1].Date.Key() != "2025-03-20" {
		t.Fatalf("unexpected second day %s", days[1].Date.Key())
	}
}

func TestBudgetStatusFor(t *testing.T) {
	food := fixtureCategories()[0]
	budgets := []Budget{{ID: "b1", CategoryID: "food", Month: march, Amount: FromUnits(5000)}}

	cases := []struct {
		name      string
		spent     []int64
		usage     int64
		graph     int64
		remaining int64
		over      int64
	}{
		{"partial", []int64{1000}, 20, 20, 4000, 0},
		{"nothing spent", nil, 0, 0, 5000, 0},
		{"exact", []int64{2000, 3000}, 100, 100, 0, 0},
		{"over", []int64{6000}, 120, 100, -1000, 1000},
		{"rounds half up", []int64{25}, 1, 1, 4975, 0}, // 0.5%
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var expenses []Expense
			for i, units := range tc.spent {
				expenses = append(expenses, exp("e", "food", units, NewDate(2025, 3, 1+i), 0))
			}
			// Another month never counts.
			expenses = append(expenses, exp("x", "food", 9999, NewDate(2025, 2, 28), 0))

			s := BudgetStatusFor(food, budgets, expenses, march)
			if !s.HasBudget {
				t.Fatalf("expected budget")
			}
			if s.UsagePercentage != tc.usage || s.UsagePercentageForGraph != tc.graph {
				t.Fatalf("usage %d/%d, want %d/%d", s.UsagePercentage, s.UsagePercentageForGraph, tc.usage, tc.graph)
			}
			if s.RemainingBudget != FromUnits(tc.remaining) || s.OverExpense != FromUnits(tc.over) {
				t.Fatalf("remaining %s over %s", s.RemainingBudget, s.OverExpense)
			}
			if s.IsOverBudget != (tc.over > 0) {
				t.Fatalf("over-budget flag %v", s.IsOverBudget)
			}
		})
	}
}

func TestBudgetStatusWithoutBudget(t *testing.T) {
	transit := fixtureCategories()[1]
	s := BudgetStatusFor(transit, nil, []Expense{exp("a", "transit", 100, NewDate(2025, 3, 1), 0)}, march)
	if s.HasBudget || s.UsagePercentage != 0 || !s.RemainingBudget.IsZero() {
		t.Fatalf("unexpected status %+v", s)
	}
	if s.TotalExpense != FromUnits(100) {
		t.Fatalf("expected spend to be reported, got %s", s.TotalExpense)
	}
}

func TestUsagePercentage(t *testing.T) {
	if got := UsagePercentage(FromUnits(100), Money{}); got != 0 {
		t.Fatalf("zero ceiling: got %d", got)
	}
	// Non-decreasing in spend for a fixed ceiling.
	ceiling := FromUnits(300)
	prev := int64(-1)
	for spent := int64(0); spent <= 600; spent += 7 {
		got := UsagePercentage(FromUnits(spent), ceiling)
		if got < prev {
			t.Fatalf("usage decreased at %d: %d < %d", spent, got, prev)
		}
		if g := ClampPercentage(got); g < 0 || g > 100 {
			t.Fatalf("graph value out of range: %d", g)
		}
		prev = got
	}
}

func TestBudgetStatusesFollowCategoryOrder(t *testing.T) {
	cats := fixtureCategories()
	cats[0].SortOrder, cats[2].SortOrder = 2, 0
	got := BudgetStatuses(NewCategoryIndex(cats), nil, nil, march)
	if len(got) != 3 || got[0].CategoryID != "daily" || got[2].CategoryID != "food" {
		t.Fatalf("unexpected order %+v", got)
	}
}

func TestPieBreakdown(t *testing.T) {
	idx := NewCategoryIndex(fixtureCategories())
	expenses := []Expense{
		exp("a", "daily", 50, NewDate(2025, 3, 1), 0),
		exp("b", "food", 10, NewDate(2025, 3, 1), 1),
		exp("c", "transit", 30, NewDate(2025, 3, 2), 0),
		exp("d", "food", 5, NewDate(2025, 4, 2), 0),
	}

	byCategory := PieBreakdown(expenses, idx, InMonth(march), SortByCategory)
	if len(byCategory) != 3 {
		t.Fatalf("expected 3 slices, got %d", len(byCategory))
	}
	if byCategory[0].CategoryID != "food" || byCategory[2].CategoryID != "daily" {
		t.Fatalf("unexpected category order %+v", byCategory)
	}
	if byCategory[2].Color != PaletteColor(0) {
		t.Fatalf("expected palette fallback, got %s", byCategory[2].Color)
	}

	byAmount := PieBreakdown(expenses, idx, InMonth(march), SortByAmount)
	if byAmount[0].CategoryID != "daily" || byAmount[2].CategoryID != "food" {
		t.Fatalf("unexpected amount order %+v", byAmount)
	}

	day := PieBreakdown(expenses, idx, OnDay(NewDate(2025, 3, 2)), SortByCategory)
	if len(day) != 1 || day[0].Amount != FromUnits(30) {
		t.Fatalf("unexpected day pie %+v", day)
	}
}

func TestMonthSummary(t *testing.T) {
	idx := NewCategoryIndex(fixtureCategories())
	expenses := []Expense{
		exp("a", "food", 10, NewDate(2025, 3, 1), 0),
		exp("b", "transit", 20, NewDate(2025, 3, 5), 0),
		exp("c", "food", 30, NewDate(2025, 4, 1), 0),
	}
	ov := MonthSummary(expenses, idx, march)
	if ov.Total != FromUnits(30) || ov.Count != 2 || len(ov.ByCategory) != 2 {
		t.Fatalf("unexpected overview %+v", ov)
	}
}
