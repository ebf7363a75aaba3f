package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/askfs/askfs/internal/index"
	"github.com/askfs/askfs/internal/telemetry"
)

// newStatusCmd creates the status command.
func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index state and local query statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resolveEnv(cmd)
			if err != nil {
				return err
			}

			store := index.NewStore(env.root, env.name, env.logger)
			env.out.Header(fmt.Sprintf("askfs status — %s", env.name))
			env.out.Dimf("root:  %s", env.root)
			env.out.Dimf("index: %s", store.Dir())

			if !store.Exists() {
				env.out.Warning("not indexed")
				env.out.Dim("Run 'askfs index' to build the index.")
				return nil
			}

			manifest, err := store.LoadManifest()
			if err != nil {
				return err
			}
			postings, err := store.LoadPostings()
			if err != nil {
				return err
			}

			env.out.Successf("files:      %d", len(manifest.Files))
			env.out.Statusf("", "chunks:     %d", len(manifest.Chunks))
			env.out.Statusf("", "vocabulary: %d terms", len(postings))
			env.out.Statusf("", "created:    %s", manifest.CreatedAt.Format(time.RFC3339))
			env.out.Statusf("", "updated:    %s", manifest.UpdatedAt.Format(time.RFC3339))

			printTelemetry(env)
			return nil
		},
	}
	return cmd
}

// printTelemetry shows local query stats when the telemetry database
// exists; its absence is not an error.
func printTelemetry(env *appEnv) {
	store, err := telemetry.Open(env.root)
	if err != nil {
		return
	}
	defer func() { _ = store.Close() }()

	terms, err := store.TopTerms(5)
	if err != nil || len(terms) == 0 {
		return
	}
	env.out.Rule("Query terms")
	for _, tc := range terms {
		env.out.Dimf("%4d  %s", tc.Count, tc.Term)
	}

	zero, err := store.ZeroResultQueries(3)
	if err == nil && len(zero) > 0 {
		env.out.Rule("Recent zero-result queries")
		for _, q := range zero {
			env.out.Dimf("- %s", q)
		}
	}
}
