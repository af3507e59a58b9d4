package http

import (
	"net/http"

	"kakeibo/internal/core"
	"kakeibo/internal/services"
)

type expenseRequest struct {
	Amount     *core.Money `json:"amount"`
	Memo       *string     `json:"memo"`
	CategoryID *string     `json:"categoryId"`
	Date       *core.Date  `json:"date"`
	SortOrder  *int        `json:"sortOrder"`
}

type moveDayRequest struct {
	From core.Date `json:"from"`
	To   core.Date `json:"to"`
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	month, err := ParseOptionalMonth(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	es, err := s.svc.Expenses.List(r.Context(), userID(r), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if es == nil {
		es = []core.Expense{}
	}
	writeJSON(w, http.StatusOK, es)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := s.svc.Expenses.Get(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Amount == nil {
		writeError(w, r, core.NewValidationError("amount", core.ErrInvalidAmount))
		return
	}
	if req.Date == nil || req.Date.IsZero() {
		writeError(w, r, core.NewValidationError("date", core.ErrInvalidDate))
		return
	}
	in := services.ExpenseInput{Amount: *req.Amount, Date: *req.Date}
	if req.Memo != nil {
		in.Memo = sanitizeInput(*req.Memo)
	}
	if req.CategoryID != nil {
		in.CategoryID = *req.CategoryID
	}
	e, err := s.svc.Expenses.Create(r.Context(), userID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.svc.Expenses.Update(r.Context(), userID(r), r.PathValue("id"), services.ExpensePatch{
		Amount:     req.Amount,
		Memo:       sanitizePtr(req.Memo),
		CategoryID: req.CategoryID,
		Date:       req.Date,
		SortOrder:  req.SortOrder,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Expenses.Delete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReorderExpenses moves one expense within a day's list.
func (s *Server) handleReorderExpenses(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Date == nil || req.Date.IsZero() {
		writeError(w, r, core.NewValidationError("date", core.ErrInvalidDate))
		return
	}
	from, to, err := req.indexes()
	if err != nil {
		writeError(w, r, err)
		return
	}
	es, err := s.svc.Expenses.Reorder(r.Context(), userID(r), *req.Date, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, es)
}

// handleMoveDay re-dates every expense of one day to another.
func (s *Server) handleMoveDay(w http.ResponseWriter, r *http.Request) {
	var req moveDayRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	moved, err := s.svc.Expenses.MoveDay(r.Context(), userID(r), req.From, req.To)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, moved)
}
