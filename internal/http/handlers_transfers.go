package http

import (
	"fmt"
	"net/http"

	"carteira/internal/core"
)

// handleListTransfers lists transfers, optionally within ?from=&to= (inclusive days).
func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, err := parseDateParam(query, "from")
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	to, err := parseDateParam(query, "to")
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}

	repo := s.store.Transfers()
	var transfers []core.WalletTransfer
	switch {
	case from == nil && to == nil:
		transfers, err = repo.FindAll(r.Context())
	case from == nil || to == nil:
		err = &core.ValidationError{Field: "from", Err: fmt.Errorf("from and to must be given together")}
	case to.Before(*from):
		err = &core.ValidationError{Field: "to", Err: fmt.Errorf("must not be before from")}
	default:
		transfers, err = repo.FindByDateRange(r.Context(), *from, endOfDay(*to))
	}
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	WriteList(w, transfers)
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var in core.NewTransfer
	if err := DecodeJSON(r, &in); err != nil {
		decodeError(w, r, err)
		return
	}
	WriteResult(w, r, s.ledger.TransferBetweenWallets(r.Context(), in), http.StatusCreated)
}

func (s *Server) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	id := idParam(r, "id")
	transfer, err := s.store.Transfers().FindByID(r.Context(), id)
	v, err := found(transfer, err, core.TransferNotFound, id)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	NewJSONResponse().Data(v).Write(w)
}
