package cmd

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/askfs/askfs/internal/index"
	"github.com/askfs/askfs/internal/session"
)

// newChatCmd creates the chat command, an interactive question loop with
// a durable session transcript.
func newChatCmd() *cobra.Command {
	var k int
	var algorithm string
	var strategy string
	var sessionName string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive question loop with a recorded session",
		Long: `Chat starts a read-eval loop over the index. Every exchange is recorded
under the index's sessions directory as JSONL messages plus a markdown
transcript.

Commands inside the loop:
  :help             show commands
  :k <n>            change the number of context windows
  :sources on|off   toggle the citation list
  :show session     print the session file paths
  :q                quit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resolveEnv(cmd)
			if err != nil {
				return err
			}
			if k <= 0 {
				k = env.cfg.Retrieval.K
			}

			store := index.NewStore(env.root, env.name, env.logger)
			slug := sessionName
			if slug == "" {
				slug = env.name
			}
			rec, err := session.NewRecorder(store.Dir(), env.name, env.root, slug, k, true, env.logger)
			if err != nil {
				return err
			}

			env.out.Header(fmt.Sprintf("askfs chat — %s", env.name))
			env.out.Dim("Type a question, :help for commands, :q to quit.")

			showSources := true
			scanner := bufio.NewScanner(cmd.InOrStdin())
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for {
				_, _ = fmt.Fprint(cmd.OutOrStdout(), "> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}

				if strings.HasPrefix(line, ":") {
					quit, err := runChatCommand(env, rec, line, &k, &showSources)
					if err != nil {
						env.out.Warningf("%v", err)
					}
					if quit {
						break
					}
					continue
				}

				if err := rec.Append(session.RoleUser, line, nil); err != nil {
					env.out.Warningf("session write failed: %v", err)
				}

				result, err := runQuery(cmd.Context(), env, line, queryOverrides{
					k:         k,
					algorithm: algorithm,
					strategy:  strategy,
				})
				if err != nil {
					env.out.Errorf("%v", err)
					continue
				}

				env.out.Plain(result.answerText)
				if showSources && len(result.citations) > 0 {
					env.out.Rule("Sources")
					for _, c := range result.citations {
						env.out.Dimf("- %s", c)
					}
				}

				if err := rec.Append(session.RoleAssistant, result.answerText, result.citations); err != nil {
					env.out.Warningf("session write failed: %v", err)
				}
			}
			if err := scanner.Err(); err != nil {
				return err
			}

			env.out.Dimf("Session saved: %s", rec.Dir())
			return nil
		},
	}

	cmd.Flags().IntVar(&k, "k", 0, "Number of context windows (default from config)")
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "Ranking algorithm: bm25 or jaccard")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Assembly strategy: diversified, deep, or wide")
	cmd.Flags().StringVar(&sessionName, "session", "", "Session name used in the transcript directory")

	return cmd
}

// runChatCommand handles one ":" command. Returns true when the loop
// should exit.
func runChatCommand(env *appEnv, rec *session.Recorder, line string, k *int, showSources *bool) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":q", ":quit", ":exit":
		return true, nil
	case ":help":
		env.out.Plain(":k <n>            change the number of context windows")
		env.out.Plain(":sources on|off   toggle the citation list")
		env.out.Plain(":show session     print the session file paths")
		env.out.Plain(":q                quit")
		return false, nil
	case ":k":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: :k <n>")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			return false, fmt.Errorf("k must be a positive integer")
		}
		*k = n
		if err := rec.SetK(n); err != nil {
			return false, err
		}
		env.out.Dimf("k set to %d", n)
		return false, nil
	case ":sources":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			return false, fmt.Errorf("usage: :sources on|off")
		}
		*showSources = fields[1] == "on"
		if err := rec.SetShowSources(*showSources); err != nil {
			return false, err
		}
		env.out.Dimf("sources %s", fields[1])
		return false, nil
	case ":show":
		if len(fields) == 2 && fields[1] == "session" {
			info := rec.Info()
			env.out.Dimf("directory:  %s", rec.Dir())
			env.out.Dimf("transcript: %s", info.Transcript)
			env.out.Dimf("messages:   %s", info.Messages)
			return false, nil
		}
		return false, fmt.Errorf("usage: :show session")
	default:
		return false, fmt.Errorf("unknown command %q, try :help", fields[0])
	}
}
