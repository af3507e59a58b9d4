package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"kakeibo/internal/auth"
	"kakeibo/internal/core"
	kakeibohttp "kakeibo/internal/http"
	"kakeibo/internal/log"
	"kakeibo/internal/services"
	"kakeibo/internal/storage/memory"
)

func newTestApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	store := memory.New()
	sessions := auth.NewSessionManager(time.Hour)
	mc := services.NewMonthCache(16, time.Minute)
	srv := kakeibohttp.NewServer(":0", kakeibohttp.Services{
		Auth:       services.NewAuthService(store, sessions, mc, services.AuthOptions{BcryptCost: bcrypt.MinCost}, nil),
		Categories: services.NewCategoryService(store, mc, nil, nil),
		Expenses:   services.NewExpenseService(store, mc, nil, nil),
		Budgets:    services.NewBudgetService(store, mc, nil, nil),
		Dashboard:  services.NewDashboardService(store, mc, nil),
	}, kakeibohttp.Options{Sessions: sessions, Store: store, MonthCache: mc})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	a, err := newApp(ts.URL, filepath.Join(t.TempDir(), "session"), log.Discard())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	var out bytes.Buffer
	a.out = &out
	a.now = func() time.Time { return time.Date(2024, time.June, 15, 9, 0, 0, 0, time.UTC) }
	return a, &out
}

func mustRun(t *testing.T, a *app, args ...string) {
	t.Helper()
	if err := a.run(context.Background(), args[0], args[1:]); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
}

func TestSessionIsPersisted(t *testing.T) {
	a, _ := newTestApp(t)
	mustRun(t, a, "register", "-name", "Ren", "-email", "ren@example.com", "-password", "correct horse")
	mustRun(t, a, "login", "-email", "ren@example.com", "-password", "correct horse")

	raw, err := os.ReadFile(a.session)
	if err != nil {
		t.Fatalf("session file: %v", err)
	}
	if strings.TrimSpace(string(raw)) != a.client.Token() {
		t.Fatalf("stored token %q does not match client token", raw)
	}

	restored, err := newApp("http://localhost:8081", a.session, log.Discard())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	if restored.client.Token() != a.client.Token() {
		t.Fatal("a new process should pick up the saved session")
	}

	mustRun(t, a, "logout")
	if _, err := os.Stat(a.session); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("session file should be removed, stat err = %v", err)
	}
}

func TestExpenseAndBudgetCommands(t *testing.T) {
	a, out := newTestApp(t)
	mustRun(t, a, "register", "-name", "Ren", "-email", "ren@example.com", "-password", "correct horse")
	mustRun(t, a, "login", "-email", "ren@example.com", "-password", "correct horse")

	mustRun(t, a, "categories")
	if !strings.Contains(out.String(), "食費") {
		t.Fatalf("seeded categories missing:\n%s", out)
	}

	mustRun(t, a, "add", "-amount", "1000", "-category", "食費", "-date", "2024-06-05", "-memo", "lunch")
	mustRun(t, a, "add", "-amount", "250", "-date", "2024-06-05")
	out.Reset()
	mustRun(t, a, "day", "-date", "2024-06-05")
	if !strings.Contains(out.String(), "lunch") || !strings.Contains(out.String(), "1250") {
		t.Fatalf("day view:\n%s", out)
	}

	out.Reset()
	mustRun(t, a, "set-budget", "-category", "食費", "-month", "2024-06", "-amount", "5000")
	if !strings.Contains(out.String(), "20%") {
		t.Fatalf("budget view should show 20%% usage:\n%s", out)
	}

	mustRun(t, a, "reorder", "-date", "2024-06-05", "-from", "1", "-to", "0")
	mustRun(t, a, "move", "-from", "2024-06-05", "-to", "2024-06-07")
	out.Reset()
	mustRun(t, a, "calendar")
	if !strings.Contains(out.String(), "June 2024") || !strings.Contains(out.String(), "1250") {
		t.Fatalf("calendar:\n%s", out)
	}
}

func TestReorderCategoryCommand(t *testing.T) {
	a, out := newTestApp(t)
	mustRun(t, a, "register", "-name", "Ren", "-email", "ren@example.com", "-password", "correct horse")
	mustRun(t, a, "login", "-email", "ren@example.com", "-password", "correct horse")

	mustRun(t, a, "reorder-category", "-from", "3", "-to", "1")
	out.Reset()
	mustRun(t, a, "categories")
	listed := out.String()
	first, last := strings.Index(listed, "日用品"), strings.Index(listed, "交通費")
	if first < 0 || last < 0 || first > last {
		t.Fatalf("日用品 should now be listed first:\n%s", listed)
	}

	if err := a.run(context.Background(), "reorder-category", []string{"-from", "1", "-to", "9"}); !errors.Is(err, core.ErrIndexOutOfRange) {
		t.Errorf("out of range reorder: %v", err)
	}
}

func TestCommandErrors(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	if err := a.run(ctx, "nope", nil); !errors.Is(err, errUsage) {
		t.Errorf("unknown command: %v", err)
	}
	if err := a.run(ctx, "add", []string{"-date", "2024-06-05"}); !errors.Is(err, errUsage) {
		t.Errorf("missing amount: %v", err)
	}
	if err := a.run(ctx, "calendar", nil); err == nil {
		t.Error("calendar without a session should fail")
	}
}
