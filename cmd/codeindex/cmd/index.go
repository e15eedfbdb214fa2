package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codeindex/internal/index"
	"github.com/Aman-CERP/codeindex/internal/ui"
)

type indexOptions struct {
	force bool
	prune bool
	noTUI bool
}

func newIndexCmd(root *rootOptions) *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a project for semantic search",
		Long: `Index a directory so its code elements can be searched.

Every supported file is parsed into functions, classes, imports, document
sections or text windows, embedded and upserted into the local store under
.codeindex/. Re-running is idempotent: unchanged elements are overwritten in
place.

Use --force to drop both collections and rebuild from scratch.
Use --prune to delete stored elements a file no longer produces.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			_, err := runIndex(ctx, cmd, root, path, opts)
			return err
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "Drop the existing index and rebuild from scratch")
	cmd.Flags().BoolVar(&opts.prune, "prune", false, "Delete stale elements of re-indexed files")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Disable the interactive progress display")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, root *rootOptions, path string, opts indexOptions) (*index.Report, error) {
	p, err := openProject(ctx, root, path, readWrite)
	if err != nil {
		return nil, err
	}
	defer func() { _ = p.Close() }()

	if opts.prune {
		p.config.Index.PruneStale = true
	}

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.noTUI),
		ui.WithProjectDir(p.root)))
	if err := renderer.Start(ctx); err != nil {
		slog.Debug("renderer_start_failed", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

	b, err := p.builder(renderer)
	if err != nil {
		return nil, err
	}

	if opts.force {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Dropping existing index in %s\n", p.config.IndexPath(p.root))
		return b.Rebuild(ctx, p.root)
	}
	return b.Index(ctx, p.root)
}
