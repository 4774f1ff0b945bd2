package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"carteira/internal/log"
	"carteira/internal/ofx"
)

func importOFXCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-ofx [--file statement.ofx] [files...]",
		Short: "Import a bank statement into a wallet",
		Long: `Import OFX or QFX statements exported from a bank into one wallet.

Credits become income and debits expenses, filed under the given categories.
Lines already imported are skipped, so the same statement can be imported twice.

Examples:
  carteira-admin import-ofx --wallet wal_01H... --income-category cat_01H... \
    --expense-category cat_01H... ~/Downloads/statement_*.ofx`,
		RunE: runImportOFX,
	}
	cmd.Flags().StringSlice("file", nil, "statement file to import (repeatable)")
	cmd.Flags().String("wallet", "", "wallet id to import into")
	cmd.Flags().String("income-category", "", "category id for credits")
	cmd.Flags().String("expense-category", "", "category id for debits")
	cmd.Flags().Bool("execute", false, "book the lines against the wallet balance")
	_ = cmd.MarkFlagRequired("wallet")
	_ = cmd.MarkFlagRequired("income-category")
	_ = cmd.MarkFlagRequired("expense-category")
	return cmd
}

func runImportOFX(cmd *cobra.Command, args []string) error {
	opts := ofx.Options{}
	opts.WalletID, _ = cmd.Flags().GetString("wallet")
	opts.IncomeCategoryID, _ = cmd.Flags().GetString("income-category")
	opts.ExpenseCategoryID, _ = cmd.Flags().GetString("expense-category")
	opts.Execute, _ = cmd.Flags().GetBool("execute")

	patterns, _ := cmd.Flags().GetStringSlice("file")
	patterns = append(patterns, args...)
	if len(patterns) == 0 {
		return fmt.Errorf("no statement files given")
	}

	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			matches = []string{pattern}
		}
		files = append(files, matches...)
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	importer := ofx.NewImporter(s.ledger, s.store.Store.Transactions(), s.logger)
	out := cmd.OutOrStdout()
	var total ofx.Report
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		report, err := importer.Import(cmd.Context(), f, opts)
		f.Close()
		if err != nil {
			return fmt.Errorf("import %s: %w", filepath.Base(path), err)
		}
		for _, lineErr := range report.Errors {
			s.logger.Warn("Statement line rejected", "file", filepath.Base(path), log.FieldError, lineErr)
		}
		fmt.Fprintf(out, "%s: %d imported, %d skipped, %d failed\n",
			filepath.Base(path), report.Imported, report.Skipped, report.Failed)
		total.Imported += report.Imported
		total.Skipped += report.Skipped
		total.Failed += report.Failed
	}

	if len(files) > 1 {
		fmt.Fprintf(out, "Total: %d imported, %d skipped, %d failed\n", total.Imported, total.Skipped, total.Failed)
	}
	if total.Failed > 0 {
		return fmt.Errorf("%d statement lines failed to import", total.Failed)
	}
	return nil
}
