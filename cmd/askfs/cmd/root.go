// Package cmd provides the CLI commands for askfs.
package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/askfs/askfs/internal/config"
	"github.com/askfs/askfs/internal/logging"
	"github.com/askfs/askfs/internal/output"
	"github.com/askfs/askfs/pkg/version"
)

var (
	flagRoot  string
	flagName  string
	debugMode bool
	plainMode bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the askfs CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "askfs",
		Short: "Ask questions against a directory of source and text files",
		Long: `askfs indexes a directory of source and text files into a local
inverted index and answers natural-language questions with ranked,
citable excerpts.

Everything runs locally: the index lives under <root>/.askfs/ and no
data leaves the machine.

Typical flow:
  askfs connect          initialize an index for the current project
  askfs index            build or incrementally update the index
  askfs ask "question"   retrieve cited context (and answer, if configured)
  askfs chat             interactive question loop`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("askfs version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flagRoot, "root", "", "Project root (default: walk up to the nearest marker)")
	cmd.PersistentFlags().StringVar(&flagName, "name", "", "Index name (default: project directory basename)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.askfs/logs/")
	cmd.PersistentFlags().BoolVar(&plainMode, "plain", false, "Disable styled terminal output")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newConnectCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the CLI.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		output.New(cmd.ErrOrStderr()).Error(err.Error())
		return err
	}
	return nil
}

func setupLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// Logging is best-effort; the CLI still works without a log file.
		return nil
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

// appEnv bundles what every subcommand needs: the effective config, the
// resolved project root and index name, and an output writer.
type appEnv struct {
	cfg    *config.Config
	root   string
	name   string
	out    *output.Writer
	logger *slog.Logger
}

// resolveEnv builds the appEnv from flags, config files, and environment.
func resolveEnv(cmd *cobra.Command) (*appEnv, error) {
	root := flagRoot
	if root == "" {
		found, err := config.FindProjectRoot(".")
		if err != nil {
			return nil, err
		}
		root = found
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	name := flagName
	if name == "" {
		name = defaultIndexName(root)
	}

	out := output.New(cmd.OutOrStdout())
	if plainMode {
		out = output.NewPlain(cmd.OutOrStdout())
	}

	return &appEnv{
		cfg:    cfg,
		root:   root,
		name:   name,
		out:    out,
		logger: slog.Default(),
	}, nil
}

// defaultIndexName derives a stable index name from the root basename, so
// repeat runs without --name hit the same index.
func defaultIndexName(root string) string {
	base := strings.ToLower(filepath.Base(root))
	var sb strings.Builder
	for _, r := range base {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			sb.WriteRune(r)
		} else {
			sb.WriteRune('-')
		}
	}
	name := strings.Trim(sb.String(), "-")
	if name == "" {
		name = "default"
	}
	return name
}
