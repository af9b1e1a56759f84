package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nfinity/nfindb/internal/config"
	"github.com/nfinity/nfindb/internal/events"
	"github.com/nfinity/nfindb/internal/store"
	"github.com/nfinity/nfindb/internal/store/postgres"
	"github.com/nfinity/nfindb/internal/ui"
)

var (
	databaseURL string
	tableName   string
	profileName string
	jsonOutput  bool

	cfg      *config.Config
	logger   = slog.Default()
	docStore store.Store
)

// openStore connects to PostgreSQL and, when a NATS URL is configured,
// wraps the store so that mutations publish change events.
var openStore = func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	s, err := postgres.New(ctx, cfg.DatabaseURL, cfg.Table)
	if err != nil {
		return nil, err
	}
	if cfg.NATSURL == "" {
		return s, nil
	}
	pub, err := events.NewNATSPublisher(cfg.NATSURL)
	if err != nil {
		s.Close()
		return nil, err
	}
	logger.Debug("events enabled", "nats_url", cfg.NATSURL)
	return events.NewStore(s, pub, logger), nil
}

// loadSettings merges configuration sources. Precedence: flags, then the
// selected profile, then the environment.
func loadSettings(cmd *cobra.Command) (*config.Config, error) {
	c, err := config.Load()
	if err != nil {
		return nil, err
	}

	p, ok, err := selectedProfile(profileName)
	if err != nil {
		return nil, err
	}
	if ok {
		if p.DatabaseURL != "" {
			c.DatabaseURL = p.DatabaseURL
		}
		if p.Table != "" {
			c.Table = p.Table
		}
		if p.NATSURL != "" {
			c.NATSURL = p.NATSURL
		}
	}

	flags := cmd.Flags()
	if flags.Changed("database-url") {
		c.DatabaseURL = databaseURL
	}
	if flags.Changed("table") {
		c.Table = tableName
	}
	return c, nil
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// setup prepares configuration and logging without touching the database.
func setup(cmd *cobra.Command) error {
	if !ui.ShouldUseColor() {
		ui.ForceNoColor()
	}
	c, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	cfg = c
	logger = newLogger(cfg.LogLevel)
	return nil
}

var rootCmd = &cobra.Command{
	Use:          "nfindb <command>",
	Short:        "Schemaless document store on PostgreSQL",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setup(cmd); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		s, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		docStore = s
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeStore()
	},
}

// closeStore releases the store opened for the current command, if any.
func closeStore() {
	if docStore == nil {
		return
	}
	if err := docStore.Close(); err != nil {
		logger.Warn("error closing store", "err", err)
	}
	docStore = nil
}

// localOnly overrides the root PersistentPreRunE for commands that never
// open the database.
func localOnly(cmd *cobra.Command, args []string) error {
	return setup(cmd)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL URL (default $NFINDB_DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&tableName, "table", config.DefaultTable, "backing table name")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "named profile to use (default: active profile)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "documents", Title: "Documents:"},
		&cobra.Group{ID: "keyspace", Title: "Key space:"},
		&cobra.Group{ID: "backup", Title: "Backup:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Documents
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listCmd)

	// Key space
	rootCmd.AddCommand(namespacesCmd)
	rootCmd.AddCommand(typesCmd)
	rootCmd.AddCommand(dropNamespaceCmd)
	rootCmd.AddCommand(dropTypeCmd)

	// Backup
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(backupCmd)

	// System
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(profileCmd)
}

// execute runs the root command with args. Cobra skips PersistentPostRun
// when a command fails, so the store is released here as well.
func execute(args []string) error {
	defer closeStore()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func main() {
	if err := execute(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
