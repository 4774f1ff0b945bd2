package core

import (
	"strings"
	"time"
	"unicode"
)

const (
	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"
)

const (
	Weekly   RecurrencePattern = "WEEKLY"
	Biweekly RecurrencePattern = "BIWEEKLY"
	Monthly  RecurrencePattern = "MONTHLY"
	Yearly   RecurrencePattern = "YEARLY"
)

// DefaultCurrency is used when a wallet is created without a currency code.
const DefaultCurrency = "BRL"

type (
	TransactionType   string
	RecurrencePattern string

	Wallet struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		Currency  string    `json:"currency"`
		Balance   Money     `json:"balance"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	Category struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Type      TransactionType `json:"type"`
		Color     *string         `json:"color,omitempty"`
		Icon      *string         `json:"icon,omitempty"`
		CreatedAt time.Time       `json:"createdAt"`
	}

	Transaction struct {
		ID          string          `json:"id"`
		WalletID    string          `json:"walletId"`
		CategoryID  string          `json:"categoryId"`
		Type        TransactionType `json:"type"`
		Amount      Money           `json:"amount"`
		Description string          `json:"description"`
		DueDate     time.Time       `json:"dueDate"`
		IsExecuted  bool            `json:"isExecuted"`
		ExecutedAt  *time.Time      `json:"executedAt,omitempty"`

		IsRecurring         bool              `json:"isRecurring"`
		RecurrencePattern   RecurrencePattern `json:"recurrencePattern,omitempty"`
		RecurrenceInterval  int               `json:"recurrenceInterval"`
		RecurrenceEndDate   *time.Time        `json:"recurrenceEndDate,omitempty"`
		ParentTransactionID *string           `json:"parentTransactionId,omitempty"`

		// Installment and credit card groupings
		GroupID       *string `json:"groupId,omitempty"`
		IsGroupParent bool    `json:"isGroupParent"`

		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	WalletTransfer struct {
		ID           string    `json:"id"`
		FromWalletID string    `json:"fromWalletId"`
		ToWalletID   string    `json:"toWalletId"`
		Amount       Money     `json:"amount"`
		Description  string    `json:"description"`
		ExecutedAt   time.Time `json:"executedAt"`
		CreatedAt    time.Time `json:"createdAt"`
	}
)

// Inputs accepted by the ledger use cases.
type (
	NewWallet struct {
		Name     string `json:"name"`
		Currency string `json:"currency,omitempty"`
	}

	WalletUpdate struct {
		Name     *string `json:"name,omitempty"`
		Currency *string `json:"currency,omitempty"`
	}

	NewCategory struct {
		Name  string          `json:"name"`
		Type  TransactionType `json:"type"`
		Color *string         `json:"color,omitempty"`
		Icon  *string         `json:"icon,omitempty"`
	}

	// CategoryUpdate has no Type: a category keeps the type it was created with.
	CategoryUpdate struct {
		Name  *string `json:"name,omitempty"`
		Color *string `json:"color,omitempty"`
		Icon  *string `json:"icon,omitempty"`
	}

	NewTransaction struct {
		WalletID            string            `json:"walletId"`
		CategoryID          string            `json:"categoryId"`
		Type                TransactionType   `json:"type"`
		Amount              Money             `json:"amount"`
		Description         string            `json:"description"`
		DueDate             time.Time         `json:"dueDate"`
		IsExecuted          bool              `json:"isExecuted"`
		IsRecurring         bool              `json:"isRecurring"`
		RecurrencePattern   RecurrencePattern `json:"recurrencePattern,omitempty"`
		RecurrenceInterval  int               `json:"recurrenceInterval,omitempty"`
		RecurrenceEndDate   *time.Time        `json:"recurrenceEndDate,omitempty"`
		ParentTransactionID *string           `json:"parentTransactionId,omitempty"`
		GroupID             *string           `json:"groupId,omitempty"`
		IsGroupParent       bool              `json:"isGroupParent"`
	}

	TransactionUpdate struct {
		WalletID           *string            `json:"walletId,omitempty"`
		CategoryID         *string            `json:"categoryId,omitempty"`
		Type               *TransactionType   `json:"type,omitempty"`
		Amount             *Money             `json:"amount,omitempty"`
		Description        *string            `json:"description,omitempty"`
		DueDate            *time.Time         `json:"dueDate,omitempty"`
		IsRecurring        *bool              `json:"isRecurring,omitempty"`
		RecurrencePattern  *RecurrencePattern `json:"recurrencePattern,omitempty"`
		RecurrenceInterval *int               `json:"recurrenceInterval,omitempty"`
		RecurrenceEndDate  *time.Time         `json:"recurrenceEndDate,omitempty"`
	}

	NewTransfer struct {
		FromWalletID string `json:"fromWalletId"`
		ToWalletID   string `json:"toWalletId"`
		Amount       Money  `json:"amount"`
		Description  string `json:"description"`
	}
)

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// ParseTransactionType accepts any casing and surrounding whitespace.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", &ValidationError{Field: "type", Err: ErrInvalidType}
	}
	return t, nil
}

func (p RecurrencePattern) Valid() bool {
	switch p {
	case Weekly, Biweekly, Monthly, Yearly:
		return true
	}
	return false
}

func ParseRecurrencePattern(s string) (RecurrencePattern, error) {
	p := RecurrencePattern(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", &ValidationError{Field: "recurrencePattern", Err: ErrInvalidRecurrence}
	}
	return p, nil
}

// ApplyDelta returns a copy of the wallet with delta added to its balance.
func (w Wallet) ApplyDelta(delta Money, now time.Time) Wallet {
	w.Balance = w.Balance.Add(delta)
	w.UpdatedAt = now
	return w
}

func (w Wallet) HasInsufficientFunds(amount Money) bool {
	return w.Balance.LessThan(amount)
}

func (c Category) IsIncome() bool  { return c.Type == Income }
func (c Category) IsExpense() bool { return c.Type == Expense }

// SignedAmount is the effect the transaction has on its wallet once executed.
func (t Transaction) SignedAmount() Money {
	if t.Type == Income {
		return t.Amount
	}
	return t.Amount.Neg()
}

// IsOverdue reports whether a pending transaction is past its due date.
func (t Transaction) IsOverdue(now time.Time) bool {
	return !t.IsExecuted && t.DueDate.Before(now)
}

func (t Transaction) IsDueThisMonth(now time.Time) bool {
	return t.DueDate.Year() == now.Year() && t.DueDate.Month() == now.Month()
}

// Execute marks the transaction executed at now. Execution is terminal.
func (t Transaction) Execute(now time.Time) (Transaction, error) {
	if t.IsExecuted {
		return t, &AlreadyExecutedError{Count: 1}
	}
	t.IsExecuted = true
	at := now
	t.ExecutedAt = &at
	t.UpdatedAt = now
	return t, nil
}

func (tr WalletTransfer) IsValid() bool {
	return tr.FromWalletID != tr.ToWalletID && tr.Amount.IsPositive() && !tr.Amount.ExceedsMax()
}

// Normalize trims the name and applies the currency default.
func (n NewWallet) Normalize(defaultCurrency string) (NewWallet, error) {
	n.Name = strings.TrimSpace(n.Name)
	if n.Name == "" {
		return n, &ValidationError{Field: "name", Err: ErrEmptyName}
	}
	if len(n.Name) > 100 {
		return n, &ValidationError{Field: "name", Err: ErrNameTooLong}
	}
	if strings.TrimSpace(n.Currency) == "" {
		n.Currency = defaultCurrency
	}
	if n.Currency == "" {
		n.Currency = DefaultCurrency
	}
	cur, err := NormalizeCurrency(n.Currency)
	if err != nil {
		return n, err
	}
	n.Currency = cur
	return n, nil
}

// NormalizeCurrency upper-cases a three letter currency code.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", &ValidationError{Field: "currency", Err: ErrInvalidCurrency}
	}
	for _, r := range code {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			return "", &ValidationError{Field: "currency", Err: ErrInvalidCurrency}
		}
	}
	return code, nil
}

func (n NewCategory) Normalize() (NewCategory, error) {
	n.Name = strings.TrimSpace(n.Name)
	if n.Name == "" {
		return n, &ValidationError{Field: "name", Err: ErrEmptyName}
	}
	if len(n.Name) > 100 {
		return n, &ValidationError{Field: "name", Err: ErrNameTooLong}
	}
	t, err := ParseTransactionType(string(n.Type))
	if err != nil {
		return n, err
	}
	n.Type = t
	n.Color = trimOptional(n.Color)
	n.Icon = trimOptional(n.Icon)
	return n, nil
}

// Normalize validates the draft and fills defaults. Relationship checks
// (wallet and category existence) are left to the caller.
func (n NewTransaction) Normalize() (NewTransaction, error) {
	t, err := ParseTransactionType(string(n.Type))
	if err != nil {
		return n, err
	}
	n.Type = t
	if !n.Amount.IsPositive() || n.Amount.ExceedsMax() {
		return n, &ValidationError{Field: "amount", Err: ErrInvalidAmount}
	}
	n.Description = strings.TrimSpace(n.Description)
	if len(n.Description) > 200 {
		return n, &ValidationError{Field: "description", Err: ErrDescriptionTooLong}
	}
	if n.DueDate.IsZero() {
		return n, &ValidationError{Field: "dueDate", Err: ErrInvalidDate}
	}
	if n.RecurrenceInterval == 0 {
		n.RecurrenceInterval = 1
	}
	if n.RecurrenceInterval < 1 {
		return n, &ValidationError{Field: "recurrenceInterval", Err: ErrInvalidRecurrence}
	}
	if n.IsRecurring {
		p, err := ParseRecurrencePattern(string(n.RecurrencePattern))
		if err != nil {
			return n, err
		}
		n.RecurrencePattern = p
		if n.RecurrenceEndDate != nil && n.RecurrenceEndDate.Before(n.DueDate) {
			return n, &ValidationError{Field: "recurrenceEndDate", Err: ErrInvalidDate}
		}
	} else if n.RecurrencePattern != "" {
		return n, &ValidationError{Field: "recurrencePattern", Err: ErrInvalidRecurrence}
	}
	n.GroupID = trimOptional(n.GroupID)
	n.ParentTransactionID = trimOptional(n.ParentTransactionID)
	return n, nil
}

func (n NewTransfer) Normalize() NewTransfer {
	n.FromWalletID = strings.TrimSpace(n.FromWalletID)
	n.ToWalletID = strings.TrimSpace(n.ToWalletID)
	n.Description = strings.TrimSpace(n.Description)
	return n
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
