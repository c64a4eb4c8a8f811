package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-purifier/internal/auth"
	"github.com/nerrad567/gray-logic-purifier/internal/device"
	"github.com/nerrad567/gray-logic-purifier/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-purifier/internal/infrastructure/database"
)

// withDatabase loads the config and opens the database for a maintenance
// command. Migrations are not applied.
func withDatabase(ctx context.Context, fn func(*config.Config, *database.DB) error) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	return fn(cfg, db)
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd.Context(), func(_ *config.Config, db *database.DB) error {
				if err := db.Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("running migrations: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(cmd.Context(), func(_ *config.Config, db *database.DB) error {
					if err := db.MigrateDown(cmd.Context()); err != nil {
						return fmt.Errorf("rolling back migration: %w", err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), "last migration rolled back")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(cmd.Context(), func(_ *config.Config, db *database.DB) error {
					applied, pending, err := db.MigrationStatus(cmd.Context())
					if err != nil {
						return fmt.Errorf("reading migration status: %w", err)
					}
					return printMigrations(cmd.OutOrStdout(), applied, pending)
				})
			},
		},
	)
	return cmd
}

func printMigrations(out io.Writer, applied []database.MigrationRecord, pending []database.Migration) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT")
	for _, m := range applied {
		fmt.Fprintf(tw, "%s\tapplied\t%s\n", m.Version, m.AppliedAt.Format(time.RFC3339))
	}
	for _, m := range pending {
		fmt.Fprintf(tw, "%s\tpending\t-\n", m.Version)
	}
	return tw.Flush()
}

func newDevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Manage stored purifier entries",
	}

	var add device.Device
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Store a new entry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRegistry(cmd.Context(), func(r *device.Registry) error {
				dev := add
				if dev.Name == "" {
					dev.Name = dev.Host
				}
				if err := r.CreateDevice(cmd.Context(), &dev); err != nil {
					return fmt.Errorf("adding entry: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", dev.ID, dev.Host)
				return nil
			})
		},
	}
	addCmd.Flags().StringVar(&add.ID, "id", "", "entry ID (generated when empty)")
	addCmd.Flags().StringVar(&add.Name, "name", "", "display name (defaults to host)")
	addCmd.Flags().StringVar(&add.Host, "host", "", "device host")
	addCmd.Flags().StringVar(&add.Model, "model", "", "model identifier, e.g. AC2729/10")
	addCmd.Flags().StringVar(&add.MAC, "mac", "", "MAC address in colon notation")
	_ = addCmd.MarkFlagRequired("host")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List stored entries",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withRegistry(cmd.Context(), func(r *device.Registry) error {
					devices, err := r.ListDevices(cmd.Context())
					if err != nil {
						return fmt.Errorf("listing entries: %w", err)
					}
					return printDevices(cmd.OutOrStdout(), devices)
				})
			},
		},
		addCmd,
		&cobra.Command{
			Use:   "remove <id>",
			Short: "Delete a stored entry",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRegistry(cmd.Context(), func(r *device.Registry) error {
					if err := r.DeleteDevice(cmd.Context(), args[0]); err != nil {
						return fmt.Errorf("removing entry: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
					return nil
				})
			},
		},
	)
	return cmd
}

// withRegistry opens a migrated database and a loaded registry.
func withRegistry(ctx context.Context, fn func(*device.Registry) error) error {
	return withDatabase(ctx, func(_ *config.Config, db *database.DB) error {
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		r := device.NewRegistry(device.NewSQLiteRepository(db.DB))
		if err := r.RefreshCache(ctx); err != nil {
			return fmt.Errorf("loading entry registry: %w", err)
		}
		return fn(r)
	})
}

func printDevices(out io.Writer, devices []device.Device) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tHOST\tMODEL\tLAST STATUS")
	for _, d := range devices {
		last := "-"
		if d.StatusUpdatedAt != nil {
			last = d.StatusUpdatedAt.Format(time.RFC3339)
		}
		model := d.Model
		if model == "" {
			model = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Name, d.Host, model, last)
	}
	return tw.Flush()
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(getConfigPath())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if ttl <= 0 {
				ttl = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
			}
			tok, err := auth.IssueToken(subject, auth.Role(role), cfg.Security.JWT.Secret, ttl)
			if err != nil {
				return fmt.Errorf("issuing token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "purifierd-cli", "token subject")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleOperator), "role: viewer, operator or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to security.jwt.access_token_ttl)")
	return cmd
}
