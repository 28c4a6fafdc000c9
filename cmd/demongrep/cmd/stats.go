package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// statsOutput is the JSON shape of `demongrep stats --json`.
type statsOutput struct {
	Root        string `json:"root"`
	TotalChunks int    `json:"total_chunks"`
	TotalFiles  int    `json:"total_files"`
	Dimensions  int    `json:"dimensions"`
	Indexed     bool   `json:"indexed"`
	DBSizeBytes int64  `json:"db_size_bytes"`
	Model       string `json:"model"`
	CacheHits   int64  `json:"cache_hits"`
	CacheMisses int64  `json:"cache_misses"`
}

func newStatsCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := findRoot("")
			if err != nil {
				return err
			}

			ws, err := openWorkspace(cmd.Context(), root, workspaceOptions{requireIndex: true})
			if err != nil {
				return err
			}
			defer func() { _ = ws.Close() }()

			stats, err := ws.Vectors.Stats()
			if err != nil {
				return err
			}
			dbSize, err := ws.Vectors.DBSize()
			if err != nil {
				dbSize = 0
			}
			fileCount, err := ws.Files.Count()
			if err != nil {
				return err
			}
			cache := ws.Service.CacheStats()

			out := statsOutput{
				Root:        root,
				TotalChunks: stats.ChunkCount,
				TotalFiles:  fileCount,
				Dimensions:  stats.Dimensions,
				Indexed:     stats.Indexed,
				DBSizeBytes: dbSize,
				Model:       ws.Service.ModelName(),
				CacheHits:   cache.Hits,
				CacheMisses: cache.Misses,
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Index:      %s/%s\n", out.Root, DataDirName)
			fmt.Fprintf(w, "Files:      %d\n", out.TotalFiles)
			fmt.Fprintf(w, "Chunks:     %d\n", out.TotalChunks)
			fmt.Fprintf(w, "Dimensions: %d\n", out.Dimensions)
			fmt.Fprintf(w, "Indexed:    %v\n", out.Indexed)
			fmt.Fprintf(w, "DB size:    %d bytes\n", out.DBSizeBytes)
			fmt.Fprintf(w, "Model:      %s\n", out.Model)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit stats as JSON")

	return cmd
}
