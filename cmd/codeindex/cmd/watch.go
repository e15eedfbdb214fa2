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
	"github.com/Aman-CERP/codeindex/internal/watcher"
)

type watchOptions struct {
	skipInitial bool
	polling     bool
}

func newWatchCmd(root *rootOptions) *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Keep the index current as files change",
		Long: `Index the project, then watch it and re-index changed files after a
quiet period (watch.debounce, default 500ms). Deleted files are removed from
the index. A change to .gitignore or the project config re-scans the tree.

Uses native file notifications, falling back to polling where unavailable.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runWatch(ctx, cmd, root, path, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.skipInitial, "skip-initial", false, "Do not run a full index before watching")
	cmd.Flags().BoolVar(&opts.polling, "polling", false, "Poll for changes instead of using file notifications")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, root *rootOptions, path string, opts watchOptions) error {
	p, err := openProject(ctx, root, path, readWrite)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	out := cmd.OutOrStdout()
	b, err := p.builder(ui.NewPlainRenderer(ui.NewConfig(out)))
	if err != nil {
		return err
	}
	if !opts.skipInitial {
		if _, err := b.Index(ctx, p.root); err != nil {
			return err
		}
	}

	sc, err := p.scanner()
	if err != nil {
		return err
	}
	w, err := watcher.New(sc, watcher.Options{
		DebounceWindow: p.config.WatchDebounce(),
		ForcePolling:   opts.polling,
	})
	if err != nil {
		return err
	}

	// Incremental updates print their own line; the builder's renderer is only
	// used by full runs.
	runner := watcher.NewRunner(p.root, w, b,
		watcher.WithResync(func(ctx context.Context) error {
			_, _ = fmt.Fprintln(out, "Ignore rules changed, re-scanning")
			_, err := b.Index(ctx, p.root)
			return err
		}),
		watcher.WithOnUpdate(func(res *index.UpdateResult) {
			_, _ = fmt.Fprintln(out, formatUpdate(res))
			for _, line := range ui.ErrorLines(res.Errors, ui.MaxListedErrors) {
				_, _ = fmt.Fprintf(out, "  %s\n", line)
			}
		}),
	)

	_, _ = fmt.Fprintf(out, "Watching %s (%s, Ctrl+C to stop)\n", p.root, w.Mode())
	slog.Info("watch_started", slog.String("root", p.root), slog.String("mode", w.Mode()))
	err = runner.Run(ctx)
	slog.Info("watch_stopped", slog.Uint64("dropped_batches", w.DroppedBatches()))
	return err
}

func formatUpdate(res *index.UpdateResult) string {
	msg := fmt.Sprintf("Updated: %d files re-indexed, %d removed, %d elements", len(res.Indexed), len(res.Removed), res.Elements)
	if len(res.Errors) > 0 {
		msg += fmt.Sprintf(", %d errors", len(res.Errors))
	}
	return msg
}
