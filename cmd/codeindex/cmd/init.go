package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codeindex/configs"
	"github.com/Aman-CERP/codeindex/internal/config"
)

func newInitCmd(root *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a commented .codeindex.yaml",
		Long: `Write the default project configuration to .codeindex.yaml.

With --config the template is written to that file instead. An existing file
is left alone unless --force is given, in which case it is first backed up to
<file>.bak.<timestamp>; the last 3 backups are kept.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			dir, err := resolveRoot(path)
			if err != nil {
				return err
			}
			return runInit(cmd, dir, root.configPath, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config after backing it up")

	return cmd
}

// runInit writes the template to explicit, or to .codeindex.yaml in dir when
// explicit is empty. An existing .codeindex.yml is overwritten in place.
func runInit(cmd *cobra.Command, dir, explicit string, force bool) error {
	out := cmd.OutOrStdout()
	target := filepath.Join(dir, config.ProjectConfigFile)
	existing := config.FindProjectConfig(dir)
	if explicit != "" {
		target, existing = explicit, ""
		if _, err := os.Stat(explicit); err == nil {
			existing = explicit
		}
	}

	if existing != "" {
		if !force {
			return fmt.Errorf("%s already exists; use --force to overwrite", existing)
		}
		backup, err := config.BackupFile(existing)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Backed up %s to %s\n", filepath.Base(existing), filepath.Base(backup))
		target = existing
	}

	if err := os.WriteFile(target, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	_, _ = fmt.Fprintf(out, "Wrote %s\n", target)
	_, _ = fmt.Fprintln(out, "Next: codeindex index")
	return nil
}
