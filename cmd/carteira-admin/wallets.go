package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func walletsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wallets",
		Short: "List wallets and their balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			wallets, err := s.store.Store.Wallets().FindAll(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tBALANCE")
			for _, wal := range wallets {
				fmt.Fprintf(w, "%s\t%s\t%s\n", wal.ID, wal.Name, wal.Balance.Format(wal.Currency))
			}
			return w.Flush()
		},
	}
}

func outboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and recover the event outbox",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Count outbox events by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := s.store.Store.Outbox().Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pending %d, processing %d, completed %d, failed %d\n",
				st.Pending, st.Processing, st.Completed, st.Failed)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "retry",
		Short: "Return failed events to pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.store.Store.Outbox().RetryFailed(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d failed events queued for retry\n", n)
			return nil
		},
	})

	return cmd
}
