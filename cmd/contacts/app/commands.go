// Package app wires the contacts service into cobra commands.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/contacts/internal/config"
	"github.com/JonMunkholm/contacts/internal/core"
	db "github.com/JonMunkholm/contacts/internal/database"
	"github.com/JonMunkholm/contacts/internal/logging"
	"github.com/JonMunkholm/contacts/internal/metrics"
)

// NewRootCmd builds the contacts command tree. Running it without a
// subcommand serves HTTP.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "contacts",
		Short:        "Contact book service with background archive export",
		SilenceUsage: true,
		RunE:         runServe,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newSeedCmd())
	return root
}

// deps is everything a command needs, built from the environment.
type deps struct {
	cfg     *config.Config
	db      db.DB
	metrics *metrics.Metrics
	service *core.Service
}

// bootstrap loads .env and configuration, sets up logging to logOut and
// opens the store. Callers must close the result.
func bootstrap(ctx context.Context, logOut io.Writer) (*deps, error) {
	// Overload lets .env win over variables already set in the shell
	if err := godotenv.Overload(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logging.Setup(logOut, cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded",
		"driver", cfg.Database.Driver,
		"port", cfg.Server.Port,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"archive_stages", cfg.Archive.Stages,
	)

	database, err := db.Open(ctx, db.Config{
		Driver:   cfg.Database.Driver,
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	slog.Info("connected to database", "driver", database.Driver())

	m := metrics.New()
	service, err := core.NewService(ctx, database, core.ArchiverConfig{
		Stages:        cfg.Archive.Stages,
		MaxStageDelay: cfg.Archive.MaxStageDelay,
		SettleDelay:   cfg.Archive.SettleDelay,
		RunTimeout:    cfg.Archive.RunTimeout,
	}, m)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("create service: %w", err)
	}

	return &deps{cfg: cfg, db: database, metrics: m, service: service}, nil
}

// seedIfEmpty inserts n fake contacts into an empty store. The seeder logs
// the insert.
func (rt *deps) seedIfEmpty(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	count, err := rt.service.Contacts.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		slog.Debug("store not empty, skipping seed", "count", count)
		return nil
	}

	_, err = rt.service.Contacts.Seed(ctx, n)
	return err
}

func (rt *deps) close() {
	if err := rt.db.Close(); err != nil {
		slog.Error("close database", "error", err)
	}
}
