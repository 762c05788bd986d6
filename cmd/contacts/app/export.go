package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/contacts/internal/core"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Run one archive and write it to a file",
		Long: `Run one archive of every contact through the same archiver the
HTTP server uses, wait for it to finish and write the JSON snapshot.
Use --out - to write to stdout.`,
		Args: cobra.NoArgs,
		RunE: runExport,
	}
	cmd.Flags().StringP("out", "o", core.ArchiveFilename, "Output file path, or - for stdout")
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}

	rt, err := bootstrap(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.seedIfEmpty(ctx, rt.cfg.Seed.Contacts); err != nil {
		return err
	}

	ar, err := rt.service.Export(ctx)
	if err != nil {
		return fmt.Errorf("export: %s: %w", core.FormatUserError(err), err)
	}

	if err := writeArchive(out, cmd.OutOrStdout(), ar); err != nil {
		return err
	}
	slog.Info("archive written", "run_id", ar.RunID, "contacts", ar.Count, "out", out)
	return nil
}

func writeArchive(path string, stdout io.Writer, ar *core.Archive) error {
	if path == "-" {
		_, err := ar.WriteTo(stdout)
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := ar.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
