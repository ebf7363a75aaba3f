package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/askfs/askfs/internal/index"
)

// newIndexCmd creates the index command.
func newIndexCmd() *cobra.Command {
	var maxChars int
	var overlap int
	var workers int

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or incrementally update the index",
		Long: `Scan the project, diff file hashes against the manifest, and
re-chunk only what changed. Deleted files are pruned from both the
manifest and the inverted index. The result is persisted as a complete
atomic snapshot.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := resolveEnv(cmd)
			if err != nil {
				return err
			}

			if maxChars <= 0 {
				maxChars = env.cfg.Index.MaxChars
			}
			if overlap < 0 {
				overlap = env.cfg.Index.Overlap
			}
			if workers <= 0 {
				workers = env.cfg.Index.Workers
			}

			env.out.Statusf("•", "Indexing %s", env.root)

			store := index.NewStore(env.root, env.name, env.logger)
			builder := index.NewBuilder(store, env.logger)
			stats, err := builder.Build(cmd.Context(), index.BuildOptions{
				MaxChars:        maxChars,
				Overlap:         overlap,
				Workers:         workers,
				IncludePrefixes: env.cfg.Paths.Include,
				ExcludePrefixes: env.cfg.Paths.Exclude,
				Extensions:      env.cfg.Paths.Extensions,
				MaxFileSize:     int64(env.cfg.Index.MaxFileSizeKB) * 1024,
			})
			if err != nil {
				return err
			}

			env.out.Successf("Index ready: %s", store.PostingsPath())
			env.out.Dimf("files: %d (%d changed, %d unchanged, %d removed)",
				stats.TotalFiles, stats.FilesChanged, stats.FilesUnchanged, stats.FilesRemoved)
			env.out.Dimf("chunks: %d (+%d, -%d) in %s",
				stats.TotalChunks, stats.ChunksAdded, stats.ChunksRemoved,
				stats.Duration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().IntVar(&maxChars, "max-chars", 0, "Max characters per chunk (default from config)")
	cmd.Flags().IntVar(&overlap, "overlap", -1, "Chunk overlap in characters (default from config)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel per-file workers (default from config)")

	return cmd
}
