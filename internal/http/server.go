package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"kakeibo/internal/auth"
	"kakeibo/internal/chart"
	"kakeibo/internal/log"
	"kakeibo/internal/middleware/ratelimit"
	"kakeibo/internal/middleware/security"
	"kakeibo/internal/middleware/trace"
	"kakeibo/internal/services"
)

// Services groups the application services the handlers call.
type Services struct {
	Auth       *services.AuthService
	Categories *services.CategoryService
	Expenses   *services.ExpenseService
	Budgets    *services.BudgetService
	Dashboard  *services.DashboardService
}

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EventsHealth is the slice of the AMQP client the readiness probe reads.
type EventsHealth interface {
	State() string
	Healthy() error
}

// Options configures NewServer. Zero values fall back to defaults.
type Options struct {
	Logger             *log.Logger
	Sessions           *auth.SessionManager
	Store              Pinger
	Events             EventsHealth
	MonthCache         *services.MonthCache
	Charts             *chart.Renderer
	SessionTTL         time.Duration
	CookieSecure       bool
	RateLimitPerMinute int
	// Now is the clock used for default months and dates.
	Now func() time.Time
}

type appMetrics struct {
	started time.Time
}

type Server struct {
	http.Server

	logger   *log.Logger
	svc      Services
	sessions *auth.SessionManager
	store    Pinger
	events   EventsHealth
	cache    *services.MonthCache
	charts   *chart.Renderer

	sessionTTL   time.Duration
	cookieSecure bool
	now          func() time.Time

	securityDetector *security.Detector
	headers          *security.HeadersMiddleware
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware
	appMetrics       appMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc Services, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 720 * time.Hour
	}
	if opts.Sessions == nil {
		opts.Sessions = auth.NewSessionManager(opts.SessionTTL)
	}
	if opts.Charts == nil {
		opts.Charts = chart.NewRenderer()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger := opts.Logger.WithComponent(log.ComponentHTTP)
	detector := security.NewDetector()

	s := &Server{
		logger:       logger,
		svc:          svc,
		sessions:     opts.Sessions,
		store:        opts.Store,
		events:       opts.Events,
		cache:        opts.MonthCache,
		charts:       opts.Charts,
		sessionTTL:   opts.SessionTTL,
		cookieSecure: opts.CookieSecure,
		now:          opts.Now,

		securityDetector: detector,
		headers:          security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
			Methods:           ratelimit.MutatingMethods,
		}),
		traceMiddleware: trace.NewMiddleware(logger, detector.ExtractClientIP),
		appMetrics:      appMetrics{started: time.Now()},
	}

	mux := http.NewServeMux()
	s.routes(mux)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// middleware wraps h in headers, tracing, detection and rate limiting, outermost
// first.
func (s *Server) middleware(h http.Handler) http.Handler {
	h = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.handleRateLimited)(h)
	h = s.securityDetector.Middleware(h)
	h = s.traceMiddleware.Middleware(h)
	return s.headers.Middleware(h)
}

func (s *Server) routes(mux *http.ServeMux) {
	authed := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(s.sessions)(h)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.Handle("POST /api/auth/logout", authed(s.handleLogout))
	mux.Handle("GET /api/auth/me", authed(s.handleMe))

	mux.Handle("GET /api/categories", authed(s.handleListCategories))
	mux.Handle("POST /api/categories", authed(s.handleCreateCategory))
	mux.Handle("POST /api/categories/reorder", authed(s.handleReorderCategories))
	mux.Handle("GET /api/categories/{id}", authed(s.handleGetCategory))
	mux.Handle("PUT /api/categories/{id}", authed(s.handleUpdateCategory))
	mux.Handle("DELETE /api/categories/{id}", authed(s.handleDeleteCategory))

	mux.Handle("GET /api/expenses", authed(s.handleListExpenses))
	mux.Handle("POST /api/expenses", authed(s.handleCreateExpense))
	mux.Handle("PATCH /api/expenses", authed(s.handleRenameCategory))
	mux.Handle("POST /api/expenses/reorder", authed(s.handleReorderExpenses))
	mux.Handle("POST /api/expenses/move", authed(s.handleMoveDay))
	mux.Handle("GET /api/expenses/{id}", authed(s.handleGetExpense))
	mux.Handle("PUT /api/expenses/{id}", authed(s.handleUpdateExpense))
	mux.Handle("DELETE /api/expenses/{id}", authed(s.handleDeleteExpense))

	mux.Handle("GET /api/budgets", authed(s.handleListBudgets))
	mux.Handle("POST /api/budgets", authed(s.handleCreateBudget))
	mux.Handle("PUT /api/budgets/set", authed(s.handleSetBudget))
	mux.Handle("GET /api/budgets/{id}", authed(s.handleGetBudget))
	mux.Handle("PUT /api/budgets/{id}", authed(s.handleUpdateBudget))
	mux.Handle("DELETE /api/budgets/{id}", authed(s.handleDeleteBudget))

	mux.Handle("GET /api/dashboard/calendar", authed(s.handleCalendar))
	mux.Handle("GET /api/dashboard/day", authed(s.handleDay))
	mux.Handle("GET /api/dashboard/budgets", authed(s.handleBudgetStatuses))
	mux.Handle("GET /api/dashboard/pie", authed(s.handlePie))
	mux.Handle("GET /api/dashboard/summary", authed(s.handleSummary))

	mux.Handle("GET /api/charts/pie.png", authed(s.handlePieChart))
	mux.Handle("GET /api/charts/budgets.png", authed(s.handleBudgetChart))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError().Write(w)
	})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
}

// userID returns the caller set by auth.Middleware.
func userID(r *http.Request) string {
	return auth.UserIDFromContext(r.Context())
}

// Shutdown stops the background limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
		s.logger.InfoContext(ctx, "HTTP server stopped", log.FieldOperation, log.OpShutdown)
	})
	return shutdownErr
}
