package http

import (
	"net/http"
	"net/url"
	"strings"

	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/services"
)

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	ym, err := ParseMonthParam(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	days, err := s.svc.Dashboard.Calendar(r.Context(), userID(r), ym)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if days == nil {
		days = []core.CalendarDay{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"month": ym, "days": days})
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	day, err := ParseDateParam(r.URL.Query(), "date", s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.Dashboard.Day(r.Context(), userID(r), day)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleBudgetStatuses(w http.ResponseWriter, r *http.Request) {
	ym, err := ParseMonthParam(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.svc.Dashboard.Budgets(r.Context(), userID(r), ym)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if st == nil {
		st = []core.BudgetStatus{}
	}
	writeJSON(w, http.StatusOK, st)
}

// pieQuery reads ?date= or ?month= (date wins) and ?sort=category|amount.
func pieQuery(query url.Values) (services.PieQuery, error) {
	q := services.PieQuery{Sort: core.ParsePieSort(query.Get("sort"))}
	if v := strings.TrimSpace(query.Get("date")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return q, core.NewValidationError("date", err)
		}
		q.Date = &d
		return q, nil
	}
	ym, err := ParseOptionalMonth(query)
	if err != nil {
		return q, err
	}
	if !ym.IsZero() {
		q.Month = &ym
	}
	return q, nil
}

func (s *Server) handlePie(w http.ResponseWriter, r *http.Request) {
	q, err := pieQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	pie, err := s.svc.Dashboard.Pie(r.Context(), userID(r), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pie)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ym, err := ParseMonthParam(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	ov, err := s.svc.Dashboard.Summary(r.Context(), userID(r), ym)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) handlePieChart(w http.ResponseWriter, r *http.Request) {
	q, err := pieQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	pie, err := s.svc.Dashboard.Pie(r.Context(), userID(r), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	title := "All expenses"
	switch {
	case q.Date != nil:
		title = q.Date.Key()
	case q.Month != nil:
		title = q.Month.String()
	}
	s.writePNG(w, r, func() ([]byte, error) { return s.charts.Pie(title, pie) })
}

func (s *Server) handleBudgetChart(w http.ResponseWriter, r *http.Request) {
	ym, err := ParseMonthParam(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.svc.Dashboard.Budgets(r.Context(), userID(r), ym)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writePNG(w, r, func() ([]byte, error) { return s.charts.Budgets(ym.String(), st) })
}

func (s *Server) writePNG(w http.ResponseWriter, r *http.Request, render func() ([]byte, error)) {
	png, err := render()
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).DebugContext(r.Context(), "Chart rendered",
		log.FieldOperation, log.OpRender, log.FieldPath, r.URL.Path, "bytes", len(png))
	NewResponse().
		Header("Cache-Control", "private, no-cache").
		Bytes("image/png", png).
		Write(w)
}
