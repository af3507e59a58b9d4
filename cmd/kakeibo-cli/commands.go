package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"kakeibo/internal/client"
	"kakeibo/internal/core"
	"kakeibo/internal/state"
)

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email")
	password := fs.String("password", "", "password")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	for _, f := range []struct{ name, value string }{{"name", *name}, {"email", *email}, {"password", *password}} {
		if err := required(f.name, f.value); err != nil {
			return err
		}
	}
	u, err := a.client.Register(ctx, *name, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, okStyle.Render("Registered "+u.Email+", now run login"))
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "email")
	password := fs.String("password", "", "password")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := required("email", *email); err != nil {
		return err
	}
	if err := required("password", *password); err != nil {
		return err
	}
	u, err := a.client.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	if err := a.saveSession(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, okStyle.Render("Logged in as "+u.Name))
	return nil
}

func (a *app) logout(ctx context.Context) error {
	err := a.client.Logout(ctx)
	if rmErr := os.Remove(a.session); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return rmErr
	}
	if err != nil && !client.IsUnauthorized(err) {
		return err
	}
	fmt.Fprintln(a.out, okStyle.Render("Logged out"))
	return nil
}

func (a *app) categories(ctx context.Context) error {
	cats, err := a.client.ListCategories(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, renderCategories(core.SortCategories(cats)))
	return nil
}

func (a *app) reorderCategory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reorder-category", flag.ContinueOnError)
	from := fs.Int("from", -1, "current position, starting at 1")
	to := fs.Int("to", -1, "new position, starting at 1")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	s, err := a.loadStore(ctx, core.CurrentYearMonth(a.now()))
	if err != nil {
		return err
	}
	if _, err := s.ReorderCategories(ctx, *from-1, *to-1); err != nil {
		return err
	}
	fmt.Fprint(a.out, renderCategories(s.Snapshot().Categories))
	return nil
}

func (a *app) renameCategory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rename-category", flag.ContinueOnError)
	oldName := fs.String("old", "", "current name")
	newName := fs.String("new", "", "new name")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := required("old", *oldName); err != nil {
		return err
	}
	if err := required("new", *newName); err != nil {
		return err
	}
	res, err := a.client.RenameCategory(ctx, *oldName, *newName)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, okStyle.Render(fmt.Sprintf("Renamed to %s (%d expenses, %d budgets)",
		res.Category.Name, res.ExpensesAffected, res.BudgetsAffected)))
	return nil
}

func (a *app) calendar(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("calendar", flag.ContinueOnError)
	month := a.monthFlag(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	ym, err := core.ParseYearMonth(*month)
	if err != nil {
		return fmt.Errorf("month: %w", err)
	}
	s, err := a.loadStore(ctx, ym)
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, renderCalendar(ym, s.Calendar(), s.Summary()))
	return nil
}

func (a *app) day(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("day", flag.ContinueOnError)
	date := fs.String("date", core.NormalizeDate(a.now()).Key(), "day as YYYY-MM-DD")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	d, err := core.ParseDate(*date)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	s, err := a.loadStore(ctx, d.YearMonth())
	if err != nil {
		return err
	}
	expenses, total := s.Day(d)
	fmt.Fprint(a.out, renderDay(d, expenses, total, core.NewCategoryIndex(s.Snapshot().Categories)))
	return nil
}

func (a *app) budgets(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("budgets", flag.ContinueOnError)
	month := a.monthFlag(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	ym, err := core.ParseYearMonth(*month)
	if err != nil {
		return fmt.Errorf("month: %w", err)
	}
	s, err := a.loadStore(ctx, ym)
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, renderBudgets(ym, s.Budgets()))
	return nil
}

// resolveCategory maps a typed name to an ID; an empty name is uncategorized.
func resolveCategory(s *state.Store, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	c, ok := s.CategoryByName(name)
	if !ok {
		return "", fmt.Errorf("unknown category %q", name)
	}
	return c.ID, nil
}

func (a *app) add(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	amount := fs.String("amount", "", "amount, e.g. 1200 or 12.50")
	category := fs.String("category", "", "category name")
	date := fs.String("date", core.NormalizeDate(a.now()).Key(), "day as YYYY-MM-DD")
	memo := fs.String("memo", "", "memo")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := required("amount", *amount); err != nil {
		return err
	}
	m, err := core.ParseMoney(*amount)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	d, err := core.ParseDate(*date)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	s, err := a.loadStore(ctx, d.YearMonth())
	if err != nil {
		return err
	}
	categoryID, err := resolveCategory(s, *category)
	if err != nil {
		return err
	}
	e, err := s.CreateExpense(ctx, client.ExpenseInput{Amount: m, CategoryID: categoryID, Date: d, Memo: *memo})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, okStyle.Render(fmt.Sprintf("Added %s on %s", e.Amount, e.Date)))
	return nil
}

func (a *app) move(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("move", flag.ContinueOnError)
	from := fs.String("from", "", "source day")
	to := fs.String("to", "", "target day")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	fromDate, err := core.ParseDate(*from)
	if err != nil {
		return fmt.Errorf("%w: -from: %v", errUsage, err)
	}
	toDate, err := core.ParseDate(*to)
	if err != nil {
		return fmt.Errorf("%w: -to: %v", errUsage, err)
	}
	s, err := a.loadStore(ctx, fromDate.YearMonth())
	if err != nil {
		return err
	}
	moved, err := s.MoveDay(ctx, fromDate, toDate)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, okStyle.Render(fmt.Sprintf("Moved %d expenses to %s", len(moved), toDate)))
	return nil
}

func (a *app) reorder(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reorder", flag.ContinueOnError)
	date := fs.String("date", "", "day as YYYY-MM-DD")
	from := fs.Int("from", -1, "current position, starting at 0")
	to := fs.Int("to", -1, "new position, starting at 0")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	d, err := core.ParseDate(*date)
	if err != nil {
		return fmt.Errorf("%w: -date: %v", errUsage, err)
	}
	s, err := a.loadStore(ctx, d.YearMonth())
	if err != nil {
		return err
	}
	if _, err := s.ReorderExpenses(ctx, d, *from, *to); err != nil {
		return err
	}
	expenses, total := s.Day(d)
	fmt.Fprint(a.out, renderDay(d, expenses, total, core.NewCategoryIndex(s.Snapshot().Categories)))
	return nil
}

func (a *app) setBudget(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("set-budget", flag.ContinueOnError)
	category := fs.String("category", "", "category name")
	month := a.monthFlag(fs)
	amount := fs.String("amount", "", "monthly ceiling")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := required("category", *category); err != nil {
		return err
	}
	if err := required("amount", *amount); err != nil {
		return err
	}
	ym, err := core.ParseYearMonth(*month)
	if err != nil {
		return fmt.Errorf("month: %w", err)
	}
	m, err := core.ParseMoney(*amount)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	s, err := a.loadStore(ctx, ym)
	if err != nil {
		return err
	}
	categoryID, err := resolveCategory(s, *category)
	if err != nil {
		return err
	}
	if _, err := s.SetBudget(ctx, client.BudgetInput{CategoryID: categoryID, Month: ym, Amount: m}); err != nil {
		return err
	}
	fmt.Fprint(a.out, renderBudgets(ym, s.Budgets()))
	return nil
}
