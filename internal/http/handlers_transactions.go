package http

import (
	"net/http"

	"carteira/internal/core"
)

// transactionRequest is the POST body. Dates accept YYYY-MM-DD.
type transactionRequest struct {
	WalletID            string                 `json:"walletId"`
	CategoryID          string                 `json:"categoryId"`
	Type                core.TransactionType   `json:"type"`
	Amount              core.Money             `json:"amount"`
	Description         string                 `json:"description"`
	DueDate             Date                   `json:"dueDate"`
	IsExecuted          bool                   `json:"isExecuted"`
	IsRecurring         bool                   `json:"isRecurring"`
	RecurrencePattern   core.RecurrencePattern `json:"recurrencePattern"`
	RecurrenceInterval  int                    `json:"recurrenceInterval"`
	RecurrenceEndDate   *Date                  `json:"recurrenceEndDate"`
	ParentTransactionID *string                `json:"parentTransactionId"`
	GroupID             *string                `json:"groupId"`
	IsGroupParent       bool                   `json:"isGroupParent"`
}

func (req transactionRequest) toNew() core.NewTransaction {
	return core.NewTransaction{
		WalletID:            req.WalletID,
		CategoryID:          req.CategoryID,
		Type:                req.Type,
		Amount:              req.Amount,
		Description:         req.Description,
		DueDate:             req.DueDate.Time,
		IsExecuted:          req.IsExecuted,
		IsRecurring:         req.IsRecurring,
		RecurrencePattern:   req.RecurrencePattern,
		RecurrenceInterval:  req.RecurrenceInterval,
		RecurrenceEndDate:   req.RecurrenceEndDate.ptr(),
		ParentTransactionID: req.ParentTransactionID,
		GroupID:             req.GroupID,
		IsGroupParent:       req.IsGroupParent,
	}
}

// transactionPatch is the PATCH body; absent fields are left unchanged.
type transactionPatch struct {
	WalletID           *string                 `json:"walletId"`
	CategoryID         *string                 `json:"categoryId"`
	Type               *core.TransactionType   `json:"type"`
	Amount             *core.Money             `json:"amount"`
	Description        *string                 `json:"description"`
	DueDate            *Date                   `json:"dueDate"`
	IsRecurring        *bool                   `json:"isRecurring"`
	RecurrencePattern  *core.RecurrencePattern `json:"recurrencePattern"`
	RecurrenceInterval *int                    `json:"recurrenceInterval"`
	RecurrenceEndDate  *Date                   `json:"recurrenceEndDate"`
}

func (p transactionPatch) toUpdate() core.TransactionUpdate {
	return core.TransactionUpdate{
		WalletID:           p.WalletID,
		CategoryID:         p.CategoryID,
		Type:               p.Type,
		Amount:             p.Amount,
		Description:        p.Description,
		DueDate:            p.DueDate.ptr(),
		IsRecurring:        p.IsRecurring,
		RecurrencePattern:  p.RecurrencePattern,
		RecurrenceInterval: p.RecurrenceInterval,
		RecurrenceEndDate:  p.RecurrenceEndDate.ptr(),
	}
}

type executeRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	filters, err := ParseTransactionFilters(r.URL.Query())
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	txns, err := s.store.Transactions().FindMany(r.Context(), filters)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	WriteList(w, txns)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := DecodeJSON(r, &req); err != nil {
		decodeError(w, r, err)
		return
	}
	WriteResult(w, r, s.ledger.CreateTransaction(r.Context(), req.toNew()), http.StatusCreated)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id := idParam(r, "id")
	txn, err := s.store.Transactions().FindByID(r.Context(), id)
	v, err := found(txn, err, core.TransactionNotFound, id)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	NewJSONResponse().Data(v).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var patch transactionPatch
	if err := DecodeJSON(r, &patch); err != nil {
		decodeError(w, r, err)
		return
	}
	WriteResult(w, r, s.ledger.UpdateTransaction(r.Context(), idParam(r, "id"), patch.toUpdate()), http.StatusOK)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	WriteResult(w, r, s.ledger.DeleteTransaction(r.Context(), idParam(r, "id")), http.StatusOK)
}

// handleExecuteTransactions executes a batch: {"ids":[...]}.
func (s *Server) handleExecuteTransactions(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := DecodeJSON(r, &req); err != nil {
		decodeError(w, r, err)
		return
	}
	ids := make([]string, 0, len(req.IDs))
	for _, id := range req.IDs {
		if id = sanitizeInput(id); id != "" {
			ids = append(ids, id)
		}
	}
	WriteResult(w, r, s.ledger.ExecuteTransactions(r.Context(), ids), http.StatusOK)
}

func (s *Server) handlePendingRecurring(w http.ResponseWriter, r *http.Request) {
	txns, err := s.store.Transactions().FindPendingRecurring(r.Context(), s.now())
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	WriteList(w, txns)
}

func (s *Server) handleTransactionGroup(w http.ResponseWriter, r *http.Request) {
	txns, err := s.store.Transactions().FindByGroupID(r.Context(), idParam(r, "groupId"))
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	WriteList(w, txns)
}
