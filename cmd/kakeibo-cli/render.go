package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"kakeibo/internal/core"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB")).Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#D1D5DB")).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8"))
	todayStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
)

const (
	cellWidth = 12
	barWidth  = 20
)

func colored(color string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

func swatch(color string) string { return colored(color).Render("■") }

func padRight(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

func renderCategories(cats []core.Category) string {
	if len(cats) == 0 {
		return mutedStyle.Render("No categories yet.") + "\n"
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Categories") + "\n")
	for i, c := range cats {
		fmt.Fprintf(&b, "%s %s %s\n", labelStyle.Render(fmt.Sprintf("%2d.", i+1)), swatch(c.Color), colored(c.Color).Render(c.Name))
	}
	return b.String()
}

// renderCalendar draws a Monday-first month grid. Each day with spending
// shows its total in the color of its largest category.
func renderCalendar(ym core.YearMonth, days []core.CalendarDay, ov core.MonthOverview) string {
	byDay := make(map[int]core.CalendarDay, len(days))
	for _, d := range days {
		byDay[d.Date.Day()] = d
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s %d", ym.Month, ym.Year)) + "\n")
	for _, wd := range []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"} {
		b.WriteString(padRight(labelStyle.Render(wd), cellWidth))
	}
	b.WriteString("\n")

	offset := weekdayOffset(ym)
	b.WriteString(strings.Repeat(" ", offset*cellWidth))
	col := offset
	for day := 1; day <= ym.Days(); day++ {
		cell := mutedStyle.Render(fmt.Sprintf("%2d", day))
		if d, ok := byDay[day]; ok {
			cell = todayStyle.Render(fmt.Sprintf("%2d", day)) + " " + colored(dominantColor(d)).Render(d.Total.String())
		}
		b.WriteString(padRight(cell, cellWidth))
		col++
		if col == 7 {
			b.WriteString("\n")
			col = 0
		}
	}
	if col != 0 {
		b.WriteString("\n")
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s  %s %s\n",
		labelStyle.Render("Total"), valueStyle.Render(ov.Total.String()),
		labelStyle.Render("Expenses"), valueStyle.Render(fmt.Sprint(ov.Count)))
	for _, c := range ov.ByCategory {
		color := dayColor(days, c.CategoryID)
		fmt.Fprintf(&b, "  %s %s %s\n", swatch(color), padRight(colored(color).Render(c.Name), 16), c.Amount)
	}
	return b.String()
}

func dominantColor(d core.CalendarDay) string {
	var best core.CategoryTotal
	for _, c := range d.Categories {
		if c.Amount.Cents > best.Amount.Cents {
			best = c
		}
	}
	if best.Color == "" {
		return "#D1D5DB"
	}
	return best.Color
}

// dayColor finds the color the calendar used for a category.
func dayColor(days []core.CalendarDay, categoryID string) string {
	for _, d := range days {
		for _, c := range d.Categories {
			if c.CategoryID == categoryID {
				return c.Color
			}
		}
	}
	return "#D1D5DB"
}

func renderDay(day core.Date, expenses []core.Expense, total core.Money, idx core.CategoryIndex) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(day.Time.Format("Mon 2 Jan 2006")) + "\n")
	if len(expenses) == 0 {
		b.WriteString(mutedStyle.Render("No expenses.") + "\n")
		return b.String()
	}
	for i, e := range expenses {
		color := "#D1D5DB"
		if c, ok := idx.Lookup(e.CategoryID); ok {
			color = c.Color
		}
		fmt.Fprintf(&b, "%s %s %s %s %s\n",
			labelStyle.Render(fmt.Sprintf("%2d.", i)),
			swatch(color),
			padRight(colored(color).Render(idx.NameOf(e.CategoryID)), 16),
			padRight(valueStyle.Render(e.Amount.String()), 10),
			mutedStyle.Render(e.Memo))
	}
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Total"), valueStyle.Render(total.String()))
	return b.String()
}

func usageBar(pct int64, color string) string {
	filled := int(pct * barWidth / 100)
	return colored(color).Render(strings.Repeat("█", filled)) + mutedStyle.Render(strings.Repeat("░", barWidth-filled))
}

func renderBudgets(ym core.YearMonth, statuses []core.BudgetStatus) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Budgets "+ym.String()) + "\n")
	if len(statuses) == 0 {
		b.WriteString(mutedStyle.Render("No categories yet.") + "\n")
		return b.String()
	}
	for _, st := range statuses {
		name := padRight(colored(st.Color).Render(st.CategoryName), 16)
		if !st.HasBudget {
			fmt.Fprintf(&b, "%s %s %s\n", name, mutedStyle.Render("no budget"), labelStyle.Render("spent "+st.TotalExpense.String()))
			continue
		}
		barColor := st.Color
		remaining := labelStyle.Render("left " + st.RemainingBudget.String())
		if st.IsOverBudget {
			barColor = "#f38ba8"
			remaining = errorStyle.Render("over " + st.OverExpense.String())
		}
		fmt.Fprintf(&b, "%s %s %s %s / %s  %s\n",
			name,
			usageBar(st.UsagePercentageForGraph, barColor),
			padRight(valueStyle.Render(fmt.Sprintf("%d%%", st.UsagePercentage)), 5),
			st.TotalExpense, st.BudgetAmount,
			remaining)
	}
	return b.String()
}

// weekdayOffset is how many cells precede day 1 in a Monday-first week.
func weekdayOffset(ym core.YearMonth) int {
	return (int(ym.First().Weekday()) + 6) % 7
}
