package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codeindex/internal/index"
	"github.com/Aman-CERP/codeindex/internal/ui"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	var (
		path       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index contents and the last run",
		Long: `Display information about the project index:
  - Element and file counts
  - Store backend, metric and size on disk
  - Embedding model
  - The last indexing run and its first errors`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p, err := openProject(ctx, root, path, readOnly)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			info, err := index.Status(ctx, p.store, p.config, p.root)
			if err != nil {
				return err
			}
			info.Embedder = p.embedder.ModelName()

			renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()))
			if jsonOutput {
				return renderer.RenderJSON(*info)
			}
			return renderer.Render(*info)
		},
	}

	cmd.Flags().StringVarP(&path, "path", "p", ".", "Project directory")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
