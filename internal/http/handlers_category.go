package http

import (
	"net/http"

	"kakeibo/internal/core"
	"kakeibo/internal/services"
)

type categoryRequest struct {
	Name      *string `json:"name"`
	Color     *string `json:"color"`
	SortOrder *int    `json:"sortOrder"`
}

type reorderRequest struct {
	Date *core.Date `json:"date,omitempty"`
	From *int       `json:"from"`
	To   *int       `json:"to"`
}

func (req reorderRequest) indexes() (int, int, error) {
	if req.From == nil {
		return 0, 0, core.NewValidationError("from", core.ErrIndexOutOfRange)
	}
	if req.To == nil {
		return 0, 0, core.NewValidationError("to", core.ErrIndexOutOfRange)
	}
	return *req.From, *req.To, nil
}

type renameRequest struct {
	OldCategoryName string `json:"oldCategoryName"`
	NewCategoryName string `json:"newCategoryName"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cs, err := s.svc.Categories.List(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cs == nil {
		cs = []core.Category{}
	}
	writeJSON(w, http.StatusOK, cs)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Categories.Get(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in := services.CategoryInput{SortOrder: req.SortOrder}
	if req.Name != nil {
		in.Name = sanitizeInput(*req.Name)
	}
	if req.Color != nil {
		in.Color = *req.Color
	}
	c, err := s.svc.Categories.Create(r.Context(), userID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.svc.Categories.Update(r.Context(), userID(r), r.PathValue("id"), services.CategoryPatch{
		Name:      sanitizePtr(req.Name),
		Color:     req.Color,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleDeleteCategory uncategorizes the category's expenses and drops its
// budgets in the same call.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Categories.Delete(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReorderCategories(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	from, to, err := req.indexes()
	if err != nil {
		writeError(w, r, err)
		return
	}
	cs, err := s.svc.Categories.Reorder(r.Context(), userID(r), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

// handleRenameCategory serves the bulk rename on the expenses collection.
func (s *Server) handleRenameCategory(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	oldName, newName := sanitizeInput(req.OldCategoryName), sanitizeInput(req.NewCategoryName)
	if oldName == "" || newName == "" {
		BadRequestError("oldCategoryName and newCategoryName are required").Write(w)
		return
	}
	res, err := s.svc.Categories.Rename(r.Context(), userID(r), oldName, newName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
