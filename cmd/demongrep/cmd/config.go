package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yxanul/demongrep/internal/config"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration the commands will actually run with:
defaults, layered with .demongrep.yml if present, then environment
overrides.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := findRoot("")
			if err != nil {
				return err
			}

			cfg, err := config.Load(root)
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}
