// Command kakeibo-cli is a terminal client for the kakeibo API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kakeibo/internal/client"
	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/state"
)

const usage = `usage: kakeibo-cli [-server URL] <command> [flags]

commands:
  register         -name -email -password
  login            -email -password
  logout
  categories
  rename-category  -old -new
  reorder-category -from -to
  calendar         [-month YYYY-MM]
  day              [-date YYYY-MM-DD]
  budgets          [-month YYYY-MM]
  add              -amount -category -date -memo
  move             -from -to
  reorder          -date -from -to
  set-budget       -category -month -amount
`

var errUsage = errors.New("invalid usage")

type app struct {
	out     io.Writer
	client  *client.Client
	logger  *log.Logger
	session string
	now     func() time.Time
}

func main() {
	server := flag.String("server", envOr("KAKEIBO_URL", "http://localhost:8081"), "API base URL")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger := log.New(log.Config{
		Level:     log.ParseLevel(envOr("LOG_LEVEL", "warn")),
		Component: log.ComponentCLI,
		Output:    os.Stderr,
	})

	a, err := newApp(*server, sessionPath(), logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := a.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
			os.Exit(2)
		}
		if client.IsUnauthorized(err) {
			err = errors.New("not logged in, run: kakeibo-cli login")
		}
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// sessionPath is ~/.kakeibo/session.
func sessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".kakeibo", "session")
}

func newApp(server, session string, logger *log.Logger) (*app, error) {
	var opts []client.Option
	opts = append(opts, client.WithLogger(logger))
	if raw, err := os.ReadFile(session); err == nil {
		opts = append(opts, client.WithToken(strings.TrimSpace(string(raw))))
	}
	c, err := client.New(server, opts...)
	if err != nil {
		return nil, err
	}
	return &app{out: os.Stdout, client: c, logger: logger, session: session, now: time.Now}, nil
}

func (a *app) saveSession() error {
	if err := os.MkdirAll(filepath.Dir(a.session), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	return os.WriteFile(a.session, []byte(a.client.Token()+"\n"), 0o600)
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "register":
		return a.register(ctx, args)
	case "login":
		return a.login(ctx, args)
	case "logout":
		return a.logout(ctx)
	case "categories":
		return a.categories(ctx)
	case "rename-category":
		return a.renameCategory(ctx, args)
	case "reorder-category":
		return a.reorderCategory(ctx, args)
	case "calendar":
		return a.calendar(ctx, args)
	case "day":
		return a.day(ctx, args)
	case "budgets":
		return a.budgets(ctx, args)
	case "add":
		return a.add(ctx, args)
	case "move":
		return a.move(ctx, args)
	case "reorder":
		return a.reorder(ctx, args)
	case "set-budget":
		return a.setBudget(ctx, args)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

// loadStore fetches the month into a fresh state store.
func (a *app) loadStore(ctx context.Context, month core.YearMonth) (*state.Store, error) {
	s := state.New(a.client, month, a.logger)
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (a *app) monthFlag(fs *flag.FlagSet) *string {
	return fs.String("month", core.CurrentYearMonth(a.now()).String(), "month as YYYY-MM")
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: -%s is required", errUsage, name)
	}
	return nil
}
