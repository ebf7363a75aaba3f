package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/askfs/askfs/configs"
	"github.com/askfs/askfs/internal/errors"
	"github.com/askfs/askfs/internal/index"
	"github.com/askfs/askfs/internal/output"
)

// newConnectCmd creates the connect command.
func newConnectCmd() *cobra.Command {
	var noConfig bool

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Initialize an index for the project",
		Long: `Create an empty, timestamped manifest for the project if none
exists, and drop a commented .askfs.yaml template unless one is already
there. Idempotent: an existing index is returned unchanged.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := resolveEnv(cmd)
			if err != nil {
				return err
			}

			store := index.NewStore(env.root, env.name, env.logger)
			m, err := store.Connect()
			if err != nil {
				return err
			}

			if !noConfig {
				if err := writeConfigTemplate(env.out, env.root); err != nil {
					return err
				}
			}

			env.out.Successf("Connected to index %q", env.name)
			env.out.Dimf("root:  %s", env.root)
			env.out.Dimf("files: %d, chunks: %d", len(m.Files), len(m.Chunks))
			if len(m.Files) == 0 {
				env.out.Dim("run `askfs index` to build the index")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noConfig, "no-config", false, "Skip writing the .askfs.yaml template")

	return cmd
}

// writeConfigTemplate drops the embedded .askfs.yaml template into the
// project root. Existing config files are never overwritten.
func writeConfigTemplate(out *output.Writer, root string) error {
	for _, name := range []string{".askfs.yaml", ".askfs.yml"} {
		if _, err := os.Stat(filepath.Join(root, name)); err == nil {
			out.Dimf("existing %s preserved", name)
			return nil
		}
	}
	path := filepath.Join(root, ".askfs.yaml")
	if err := os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return errors.New(errors.ErrCodeFileWrite, "failed to write .askfs.yaml template", err)
	}
	out.Dim("created .askfs.yaml (optional project configuration)")
	return nil
}
