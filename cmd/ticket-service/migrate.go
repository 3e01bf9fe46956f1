package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"ms-ticket-issuance/internal/database/migrations"
)

func newMigrateCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the ticket database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRunner(*configPath, func(r *migrations.Runner) error {
					return r.MigrateUp()
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRunner(*configPath, func(r *migrations.Runner) error {
					return r.MigrateDown()
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRunner(*configPath, func(r *migrations.Runner) error {
					v, dirty, err := r.Version()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "goto <version>",
			Short: "Migrate up or down to the given version",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return withRunner(*configPath, func(r *migrations.Runner) error {
					return r.MigrateTo(uint(v))
				})
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version and clear the dirty flag without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return withRunner(*configPath, func(r *migrations.Runner) error {
					return r.Force(v)
				})
			},
		},
	)
	return cmd
}

func withRunner(configPath string, fn func(*migrations.Runner) error) error {
	cfg, err := loadConfig(configPath, false)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	runner := migrations.NewRunner(cfg.Database.URL, log)
	if err := runner.Initialize(); err != nil {
		return err
	}
	defer runner.Close()

	return fn(runner)
}
