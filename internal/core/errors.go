package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrAlreadyExecuted = errors.New("already executed")

	ErrEmptyName          = errors.New("name cannot be empty")
	ErrNameTooLong        = errors.New("name too long (max 100 characters)")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrAmountOutOfRange   = errors.New("amount out of range")
	ErrInvalidType        = errors.New("type must be INCOME or EXPENSE")
	ErrInvalidCurrency    = errors.New("currency must be a three letter code")
	ErrInvalidRecurrence  = errors.New("invalid recurrence")
	ErrInvalidDate        = errors.New("invalid date")
	ErrSameWallet         = errors.New("cannot transfer to the same wallet")
	ErrInsufficientFunds  = errors.New("insufficient funds in origin wallet")
	ErrInUse              = errors.New("still referenced by ledger entries")
)

// NotFoundError reports a referenced entity that does not exist.
// Role distinguishes two references to the same entity kind, e.g. the
// origin and destination wallets of a transfer.
type NotFoundError struct {
	Entity string
	ID     string
	Role   string
}

func (e *NotFoundError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("%s %s not found", e.Role, strings.ToLower(e.Entity))
	}
	return e.Entity + " not found"
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError wraps a validation sentinel with the offending field.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// AlreadyExecutedError rejects a batch that contains executed transactions.
type AlreadyExecutedError struct {
	Count int
}

func (e *AlreadyExecutedError) Error() string {
	if e.Count == 1 {
		return "transaction is already executed"
	}
	return fmt.Sprintf("%d transactions are already executed", e.Count)
}

func (e *AlreadyExecutedError) Is(target error) bool { return target == ErrAlreadyExecuted }

// ErrorKind classifies err for transports.
type ErrorKind string

const (
	KindNotFound        ErrorKind = "not_found"
	KindValidation      ErrorKind = "validation"
	KindAlreadyExecuted ErrorKind = "already_executed"
	KindInternal        ErrorKind = "internal"
)

func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrAlreadyExecuted):
		return KindAlreadyExecuted
	default:
		return KindInternal
	}
}

func notFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// WalletNotFound, CategoryNotFound and TransactionNotFound are shorthands
// for the common lookups.
func WalletNotFound(id string) error      { return notFound("Wallet", id) }
func CategoryNotFound(id string) error    { return notFound("Category", id) }
func TransactionNotFound(id string) error { return notFound("Transaction", id) }
func TransferNotFound(id string) error    { return notFound("Transfer", id) }
