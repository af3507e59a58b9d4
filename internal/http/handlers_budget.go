package http

import (
	"net/http"

	"kakeibo/internal/core"
	"kakeibo/internal/services"
)

type budgetRequest struct {
	CategoryID *string         `json:"categoryId"`
	Month      *core.YearMonth `json:"month"`
	Amount     *core.Money     `json:"amount"`
	SortOrder  *int            `json:"sortOrder"`
}

func (req budgetRequest) input() (services.BudgetInput, error) {
	if req.CategoryID == nil || *req.CategoryID == "" {
		return services.BudgetInput{}, core.NewValidationError("categoryId", core.ErrEmptyCategory)
	}
	if req.Month == nil || req.Month.IsZero() {
		return services.BudgetInput{}, core.NewValidationError("month", core.ErrInvalidMonth)
	}
	if req.Amount == nil {
		return services.BudgetInput{}, core.NewValidationError("amount", core.ErrInvalidAmount)
	}
	return services.BudgetInput{CategoryID: *req.CategoryID, Month: *req.Month, Amount: *req.Amount}, nil
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	month, err := ParseOptionalMonth(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	bs, err := s.svc.Budgets.List(r.Context(), userID(r), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if bs == nil {
		bs = []core.Budget{}
	}
	writeJSON(w, http.StatusOK, bs)
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	b, err := s.svc.Budgets.Get(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	s.writeBudget(w, r, http.StatusCreated)
}

// handleSetBudget is the budget-settings upsert; it answers 200 whether the
// budget was created or replaced.
func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	s.writeBudget(w, r, http.StatusOK)
}

func (s *Server) writeBudget(w http.ResponseWriter, r *http.Request, status int) {
	var req budgetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.svc.Budgets.Set(r.Context(), userID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, b)
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.svc.Budgets.Update(r.Context(), userID(r), r.PathValue("id"), services.BudgetPatch{
		CategoryID: req.CategoryID,
		Month:      req.Month,
		Amount:     req.Amount,
		SortOrder:  req.SortOrder,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Budgets.Delete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
