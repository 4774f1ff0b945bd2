package http

import (
	"net/http"

	"carteira/internal/core"
)

func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := s.store.Wallets().FindAll(r.Context())
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	WriteList(w, wallets)
}

func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	var in core.NewWallet
	if err := DecodeJSON(r, &in); err != nil {
		decodeError(w, r, err)
		return
	}
	WriteResult(w, r, s.ledger.CreateWallet(r.Context(), in), http.StatusCreated)
}

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	id := idParam(r, "id")
	wallet, err := s.store.Wallets().FindByID(r.Context(), id)
	v, err := found(wallet, err, core.WalletNotFound, id)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	NewJSONResponse().Data(v).Write(w)
}

func (s *Server) handleUpdateWallet(w http.ResponseWriter, r *http.Request) {
	var upd core.WalletUpdate
	if err := DecodeJSON(r, &upd); err != nil {
		decodeError(w, r, err)
		return
	}
	WriteResult(w, r, s.ledger.UpdateWallet(r.Context(), idParam(r, "id"), upd), http.StatusOK)
}

func (s *Server) handleDeleteWallet(w http.ResponseWriter, r *http.Request) {
	WriteResult(w, r, s.ledger.DeleteWallet(r.Context(), idParam(r, "id")), http.StatusOK)
}

// handleWalletTransfers lists transfers in and out of a wallet.
func (s *Server) handleWalletTransfers(w http.ResponseWriter, r *http.Request) {
	id := idParam(r, "id")
	wallet, err := s.store.Wallets().FindByID(r.Context(), id)
	if _, err := found(wallet, err, core.WalletNotFound, id); err != nil {
		DomainError(r, err).Write(w)
		return
	}
	transfers, err := s.store.Transfers().FindByWalletID(r.Context(), id)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	WriteList(w, transfers)
}
