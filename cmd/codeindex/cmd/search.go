package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codeindex/internal/search"
)

// queryOptions are shared by the read-only query commands.
type queryOptions struct {
	path       string
	limit      int
	jsonOutput bool
}

func (o *queryOptions) register(cmd *cobra.Command, limitUsage string) {
	cmd.Flags().StringVarP(&o.path, "path", "p", ".", "Project directory")
	cmd.Flags().BoolVar(&o.jsonOutput, "json", false, "Output results as JSON")
	if limitUsage != "" {
		cmd.Flags().IntVarP(&o.limit, "limit", "n", 0, limitUsage)
	}
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	var (
		opts     queryOptions
		fileType string
		kind     string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search code elements by meaning",
		Long: `Embed the query and return the nearest code elements with their
similarity, location and content.

Examples:
  codeindex search "parse configuration file"
  codeindex search "retry with backoff" -n 10 --file-type go
  codeindex search "installation" --kind markdown_section --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			filter := search.Filter{FileType: fileType, Kind: kind}
			return runQuery(cmd, root, opts, "search", query,
				func(ctx context.Context, _ *project, e *search.Engine, limit int) (any, string, error) {
					r, err := e.SemanticSearch(ctx, query, limit, filter)
					return r, search.FormatResults(r), err
				})
		},
	}

	opts.register(cmd, "Maximum number of results (default from search.max_results)")
	cmd.Flags().StringVar(&fileType, "file-type", "", "Only return elements from files with this extension")
	cmd.Flags().StringVar(&kind, "kind", "", "Only return elements of this kind (function, class, import, markdown_section, text_chunk)")

	return cmd
}

func newFilesCmd(root *rootOptions) *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "files <query>",
		Short: "Find files whose content matches a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runQuery(cmd, root, opts, "files", query,
				func(ctx context.Context, _ *project, e *search.Engine, limit int) (any, string, error) {
					r, err := e.FindFilesByContent(ctx, query, limit)
					return r, search.FormatFiles(r), err
				})
		},
	}

	opts.register(cmd, "Maximum number of files (default from search.max_results)")
	return cmd
}

func newTypesCmd(root *rootOptions) *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "types <kind>",
		Short: "List indexed elements of one kind",
		Long: `List stored elements of an exact kind, in store order.

Kinds: function, class, import, markdown_section, text_chunk.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := args[0]
			if opts.limit <= 0 {
				opts.limit = search.DefaultTypeLimit
			}
			return runQuery(cmd, root, opts, "types", kind,
				func(ctx context.Context, _ *project, e *search.Engine, limit int) (any, string, error) {
					l, err := e.FindElementsByType(ctx, kind, limit)
					return l, search.FormatElements(l), err
				})
		},
	}

	opts.register(cmd, fmt.Sprintf("Maximum number of elements (default %d)", search.DefaultTypeLimit))
	return cmd
}

func newStructureCmd(root *rootOptions) *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "structure <file>",
		Short: "Show the indexed elements of a file grouped by kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			return runQuery(cmd, root, opts, "structure", file,
				func(ctx context.Context, p *project, e *search.Engine, _ int) (any, string, error) {
					s, err := e.GetFileStructure(ctx, relToRoot(p.root, file))
					return s, search.FormatStructure(s), err
				})
		},
	}

	opts.register(cmd, "")
	return cmd
}

// queryFunc runs one engine operation and returns its value and text form.
type queryFunc func(ctx context.Context, p *project, e *search.Engine, limit int) (any, string, error)

func runQuery(cmd *cobra.Command, root *rootOptions, opts queryOptions, op, subject string, run queryFunc) error {
	ctx := cmd.Context()
	p, err := openProject(ctx, root, opts.path, readOnly)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	engine, err := p.engine()
	if err != nil {
		return err
	}

	limit := opts.limit
	if limit <= 0 {
		limit = p.config.Search.MaxResults
	}

	start := time.Now()
	value, text, err := run(ctx, p, engine, limit)
	slog.Info("query_complete",
		slog.String("op", op),
		slog.String("subject", subject),
		slog.Duration("duration", time.Since(start)),
		slog.Bool("failed", err != nil))

	if err != nil {
		msg, ok := search.Sentinel(err, subject)
		if !ok || opts.jsonOutput {
			return err
		}
		text = msg
	}

	if opts.jsonOutput {
		return writeJSON(cmd.OutOrStdout(), value)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(text, "\n"))
	return err
}

// relToRoot turns an absolute path inside root into the stored relative form.
func relToRoot(root, file string) string {
	if !filepath.IsAbs(file) {
		return file
	}
	if rel, err := filepath.Rel(root, file); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return file
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
