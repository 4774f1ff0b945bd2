package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"carteira/internal/cli"
	"carteira/internal/config"
	"carteira/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "carteira-admin",
	Short: "Operate a carteira ledger",
	Long: `carteira-admin runs maintenance tasks against the configured ledger store:
schema migrations, balance reconciliation, OFX statement import and outbox recovery.

Settings come from the same environment as the server. Flags and CARTEIRA_*
variables override them.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func init() {
	rootCmd.PersistentFlags().String("backend", "", "storage backend (memory, sqlite, postgres)")
	rootCmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")
	rootCmd.PersistentFlags().String("sqlite-path", "", "SQLite database file")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	for _, name := range []string{"backend", "database-url", "sqlite-path", "log-level"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(importOFXCmd())
	rootCmd.AddCommand(walletsCmd())
	rootCmd.AddCommand(outboxCmd())
}

func main() {
	cli.LoadEnvFile()

	ctx, stop := cli.ShutdownContext()
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	viper.SetEnvPrefix("CARTEIRA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	return nil
}

// settings loads the server configuration and applies the admin overrides.
func settings() (*config.Config, error) {
	cfg := config.Load()
	if v := viper.GetString("backend"); v != "" {
		cfg.DataBackend = v
	}
	if v := viper.GetString("database-url"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := viper.GetString("sqlite-path"); v != "" {
		cfg.SQLiteDBPath = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func adminLogger(cfg *config.Config) *log.Logger {
	return cli.SetupLogger(cfg, log.ComponentApp)
}
