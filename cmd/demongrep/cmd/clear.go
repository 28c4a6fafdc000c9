package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yxanul/demongrep/internal/output"
)

func newClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard all indexed state",
		Long: `Discard every chunk, vector, posting, and file record for this
project by removing <root>/.demongrep.db/. The next 'demongrep index'
rebuilds from scratch.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := findRoot("")
			if err != nil {
				return err
			}
			dataDir := filepath.Join(root, DataDirName)

			if _, err := os.Stat(dataDir); os.IsNotExist(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "no index to clear")
				return nil
			}

			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "Clear the index at %s? [y/N] ", dataDir)
				var answer string
				_, _ = fmt.Fscanln(cmd.InOrStdin(), &answer)
				if answer != "y" && answer != "Y" && answer != "yes" {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}

			if err := os.RemoveAll(dataDir); err != nil {
				return fmt.Errorf("failed to clear index: %w", err)
			}

			out := output.New(cmd.OutOrStdout())
			out.Success("index cleared")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}
