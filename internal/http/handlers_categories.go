package http

import (
	"net/http"
	"strings"

	"carteira/internal/core"
)

// handleListCategories lists categories, optionally narrowed by ?type=.
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	var (
		categories []core.Category
		err        error
	)
	if v := strings.TrimSpace(r.URL.Query().Get("type")); v != "" {
		t, perr := core.ParseTransactionType(v)
		if perr != nil {
			DomainError(r, perr).Write(w)
			return
		}
		categories, err = s.store.Categories().FindByType(r.Context(), t)
	} else {
		categories, err = s.store.Categories().FindAll(r.Context())
	}
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	WriteList(w, categories)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in core.NewCategory
	if err := DecodeJSON(r, &in); err != nil {
		decodeError(w, r, err)
		return
	}
	WriteResult(w, r, s.ledger.CreateCategory(r.Context(), in), http.StatusCreated)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	id := idParam(r, "id")
	category, err := s.store.Categories().FindByID(r.Context(), id)
	v, err := found(category, err, core.CategoryNotFound, id)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	NewJSONResponse().Data(v).Write(w)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var upd core.CategoryUpdate
	if err := DecodeJSON(r, &upd); err != nil {
		decodeError(w, r, err)
		return
	}
	WriteResult(w, r, s.ledger.UpdateCategory(r.Context(), idParam(r, "id"), upd), http.StatusOK)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	WriteResult(w, r, s.ledger.DeleteCategory(r.Context(), idParam(r, "id")), http.StatusOK)
}
