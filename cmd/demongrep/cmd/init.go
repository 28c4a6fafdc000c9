package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yxanul/demongrep/configs"
	"github.com/yxanul/demongrep/internal/output"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a commented .demongrep.yml to the project root",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pathArg string
			if len(args) > 0 {
				pathArg = args[0]
			}
			root, err := findRoot(pathArg)
			if err != nil {
				return err
			}

			target := filepath.Join(root, ".demongrep.yml")
			if _, err := os.Stat(target); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", target)
			}

			if err := os.WriteFile(target, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			out := output.New(cmd.OutOrStdout())
			out.Success("wrote " + target)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config file")

	return cmd
}
