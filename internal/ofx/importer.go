package ofx

import (
	"context"
	"fmt"
	"io"
	"regexp"

	"carteira/internal/core"
	"carteira/internal/log"
	"carteira/internal/repository"
)

const maxDescription = 200

// fitidRe finds the statement id suffix left on imported descriptions.
var fitidRe = regexp.MustCompile(`\[fitid:([^\]]+)\]$`)

// TransactionCreator is the ledger use case the importer submits drafts to.
type TransactionCreator interface {
	CreateTransaction(ctx context.Context, in core.NewTransaction) core.Result[core.Transaction]
}

type Options struct {
	WalletID          string
	IncomeCategoryID  string
	ExpenseCategoryID string
	// Execute books the imported lines against the wallet balance instead
	// of leaving them pending.
	Execute bool
}

type Report struct {
	Imported int
	Skipped  int
	Failed   int
	Errors   []error
}

type Importer struct {
	ledger       TransactionCreator
	transactions repository.TransactionRepository
	logger       *log.Logger
}

func NewImporter(ledger TransactionCreator, transactions repository.TransactionRepository, logger *log.Logger) *Importer {
	return &Importer{ledger: ledger, transactions: transactions, logger: logger}
}

// Import parses the statement and creates one transaction per line.
// Lines whose FITID already appears on the wallet are skipped, so the same
// file can be imported twice.
func (im *Importer) Import(ctx context.Context, r io.Reader, opts Options) (Report, error) {
	var report Report
	if opts.WalletID == "" || opts.IncomeCategoryID == "" || opts.ExpenseCategoryID == "" {
		return report, &core.ValidationError{Field: "options", Err: fmt.Errorf("wallet and both categories are required")}
	}
	lines, err := Parse(r)
	if err != nil {
		return report, err
	}
	seen, err := im.importedFITIDs(ctx, opts.WalletID)
	if err != nil {
		return report, err
	}

	for _, line := range lines {
		if _, ok := seen[line.FITID]; ok && line.FITID != "" {
			report.Skipped++
			continue
		}
		res := im.ledger.CreateTransaction(ctx, Draft(line, opts))
		if res.IsErr() {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Errorf("line %s: %w", line.FITID, res.Err()))
			im.logger.WarnContext(ctx, "Statement line rejected",
				"fitid", line.FITID,
				log.FieldError, res.Err())
			continue
		}
		seen[line.FITID] = struct{}{}
		report.Imported++
	}

	im.logger.InfoContext(ctx, "Statement imported",
		log.FieldWalletID, opts.WalletID,
		"imported", report.Imported,
		"skipped", report.Skipped,
		"failed", report.Failed)
	return report, nil
}

func (im *Importer) importedFITIDs(ctx context.Context, walletID string) (map[string]struct{}, error) {
	existing, err := im.transactions.FindMany(ctx, repository.TransactionFilters{WalletID: walletID})
	if err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	seen := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		if m := fitidRe.FindStringSubmatch(t.Description); m != nil {
			seen[m[1]] = struct{}{}
		}
	}
	return seen, nil
}

// Draft converts a statement line into a transaction draft. The FITID is
// appended to the description and the payee text trimmed to fit.
func Draft(line Line, opts Options) core.NewTransaction {
	category := opts.ExpenseCategoryID
	if line.Type == core.Income {
		category = opts.IncomeCategoryID
	}
	return core.NewTransaction{
		WalletID:    opts.WalletID,
		CategoryID:  category,
		Type:        line.Type,
		Amount:      line.Amount,
		Description: describeWithFITID(line.Description, line.FITID),
		DueDate:     line.Posted,
		IsExecuted:  opts.Execute,
	}
}

func describeWithFITID(desc, fitid string) string {
	if fitid == "" {
		return truncate(desc, maxDescription)
	}
	suffix := " [fitid:" + fitid + "]"
	return truncate(desc, maxDescription-len(suffix)) + suffix
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	for len(string(r)) > n {
		r = r[:len(r)-1]
	}
	return string(r)
}
