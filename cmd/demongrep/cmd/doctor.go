package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yxanul/demongrep/internal/embed"
	"github.com/yxanul/demongrep/internal/lifecycle"
	"github.com/yxanul/demongrep/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run system checks and print a diagnostic report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := findRoot("")
			if err != nil {
				return err
			}

			checker := preflight.New(
				preflight.WithOffline(offline),
				preflight.WithVerbose(true),
				preflight.WithOutput(cmd.OutOrStdout()),
			)
			results := checker.RunAll(cmd.Context(), root)
			checker.PrintResults(results)

			if !offline {
				printOllamaStatus(cmd)
			}

			if checker.HasCriticalFailures(results) {
				return fmt.Errorf("system check failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip checks that need network access")

	return cmd
}

// printOllamaStatus reports the embedding backend's state: installed,
// running, and whether the default embedding model is pulled.
func printOllamaStatus(cmd *cobra.Command) {
	w := cmd.OutOrStdout()
	mgr := lifecycle.NewOllamaManager()

	status, err := mgr.Status(cmd.Context(), embed.DefaultOllamaModel)
	if err != nil {
		fmt.Fprintf(w, "\nOllama: status check failed: %v\n", err)
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Ollama installed: %v", status.Installed)
	if status.InstalledPath != "" {
		fmt.Fprintf(w, " (%s)", status.InstalledPath)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Ollama running:   %v\n", status.Running)
	if status.Running {
		fmt.Fprintf(w, "Model %q available: %v\n", status.TargetModel, status.HasModel)
	}
	if !status.Installed {
		fmt.Fprintln(w)
		fmt.Fprintln(w, lifecycle.InstallInstructions())
	}
}
