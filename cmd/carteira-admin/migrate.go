package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"carteira/internal/config"
	"carteira/internal/storage"
	"carteira/internal/storage/postgres"
)

// migrator runs schema migrations for one SQL backend.
type migrator struct {
	up      func() error
	down    func(steps int) error
	version func() (uint, bool, error)
}

func newMigrator(cfg *config.Config) (*migrator, error) {
	switch cfg.DataBackend {
	case "sqlite":
		path := cfg.SQLiteDBPath
		return &migrator{
			up:      func() error { return storage.RunMigrations(path) },
			down:    func(steps int) error { return storage.RollbackMigrations(path, steps) },
			version: func() (uint, bool, error) { return storage.MigrationVersion(path) },
		}, nil
	case "postgres":
		pc, err := postgres.ParseURL(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &migrator{
			up:      func() error { return postgres.RunMigrations(pc) },
			down:    func(steps int) error { return postgres.RollbackMigrations(pc, steps) },
			version: func() (uint, bool, error) { return postgres.MigrationVersion(pc) },
		}, nil
	default:
		return nil, fmt.Errorf("backend %q has no schema to migrate", cfg.DataBackend)
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, m, err := loadMigrator()
			if err != nil {
				return err
			}
			if err := m.up(); err != nil {
				return err
			}
			return printVersion(cmd, cfg, m)
		},
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			cfg, m, err := loadMigrator()
			if err != nil {
				return err
			}
			if err := m.down(steps); err != nil {
				return err
			}
			return printVersion(cmd, cfg, m)
		},
	}
	down.Flags().Int("steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, m, err := loadMigrator()
			if err != nil {
				return err
			}
			return printVersion(cmd, cfg, m)
		},
	})

	return cmd
}

func loadMigrator() (*config.Config, *migrator, error) {
	cfg, err := settings()
	if err != nil {
		return nil, nil, err
	}
	m, err := newMigrator(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, m, nil
}

func printVersion(cmd *cobra.Command, cfg *config.Config, m *migrator) error {
	version, dirty, err := m.version()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s schema version %d", cfg.DataBackend, version)
	if dirty {
		fmt.Fprint(cmd.OutOrStdout(), " (dirty)")
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}
