package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/contacts/internal/web"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server.

Configuration comes from the environment (and a .env file if present).
An empty store is seeded with SEED_CONTACTS fake contacts. When
ARCHIVE_REFRESH_INTERVAL is set the archive is rebuilt on that interval.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.seedIfEmpty(ctx, rt.cfg.Seed.Contacts); err != nil {
		return err
	}

	server := web.NewServer(rt.service, rt.metrics, rt.cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		rt.service.StartArchiveScheduler(gctx, rt.cfg.Archive.RefreshInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		return nil
	})

	serveErr := g.Wait()

	// the scheduler has returned, so no new run can start
	shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := rt.service.Shutdown(shutdownCtx); err != nil {
		slog.Warn("archive run did not stop in time", "error", err)
	}

	if serveErr != nil {
		slog.Error("server stopped", "error", serveErr)
		return serveErr
	}
	slog.Info("server stopped")
	return nil
}
