// Package sheets holds the ledger mirror ports. The google subpackage writes
// journal rows to a spreadsheet; memory keeps them in process for tests and
// local runs.
package sheets

import (
	"context"
	"errors"
	"time"

	"carteira/internal/core"
)

// JournalRow is one balance movement as mirrored to the spreadsheet. Amount
// is signed: income and incoming transfers are positive.
type JournalRow struct {
	Date        time.Time
	EventID     string
	EventType   string
	WalletID    string
	Reference   string
	Description string
	Amount      core.Money
}

// Key identifies a row across redeliveries of the same event.
func (r JournalRow) Key() string {
	return r.EventID + "/" + r.WalletID + "/" + r.Reference
}

func (r JournalRow) Validate() error {
	switch {
	case r.EventID == "":
		return errors.New("journal row: missing event id")
	case r.WalletID == "":
		return errors.New("journal row: missing wallet id")
	case r.Date.IsZero():
		return errors.New("journal row: missing date")
	}
	return nil
}

// JournalWriter appends rows to the mirror and returns an implementation
// specific reference to where they landed.
type JournalWriter interface {
	Append(ctx context.Context, rows ...JournalRow) (string, error)
}

// JournalReader lists the rows mirrored for a calendar year.
type JournalReader interface {
	ListJournal(ctx context.Context, year int) ([]JournalRow, error)
}

// Journal is both ends of the mirror.
type Journal interface {
	JournalWriter
	JournalReader
}
