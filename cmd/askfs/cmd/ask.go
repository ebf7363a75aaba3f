package cmd

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/askfs/askfs/internal/answer"
	"github.com/askfs/askfs/internal/assemble"
	"github.com/askfs/askfs/internal/chunk"
	"github.com/askfs/askfs/internal/errors"
	"github.com/askfs/askfs/internal/index"
	"github.com/askfs/askfs/internal/retrieve"
	"github.com/askfs/askfs/internal/telemetry"
)

// newAskCmd creates the ask command.
func newAskCmd() *cobra.Command {
	var k int
	var algorithm string
	var strategy string
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask \"question\"",
		Short: "Ask one question against the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resolveEnv(cmd)
			if err != nil {
				return err
			}
			question := strings.Join(args, " ")

			result, err := runQuery(cmd.Context(), env, question, queryOverrides{
				k:         k,
				algorithm: algorithm,
				strategy:  strategy,
			})
			if err != nil {
				return err
			}

			env.out.Plain(result.answerText)
			if showSources && len(result.citations) > 0 {
				env.out.Rule("Sources")
				for _, c := range result.citations {
					env.out.Dimf("- %s", c)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&k, "k", 0, "Number of context windows (default from config)")
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "Ranking algorithm: bm25 or jaccard")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Assembly strategy: diversified, deep, or wide")
	cmd.Flags().BoolVar(&showSources, "show-sources", true, "Print the citation list")

	return cmd
}

// queryOverrides carries per-call flag overrides on top of the config.
type queryOverrides struct {
	k         int
	algorithm string
	strategy  string
}

// queryResult is one complete ask exchange.
type queryResult struct {
	answerText string
	windows    []assemble.Window
	citations  []string
}

// runQuery performs one retrieve → assemble → answer pass, recording
// telemetry on the way. Shared by ask and chat.
func runQuery(ctx context.Context, env *appEnv, question string, ov queryOverrides) (*queryResult, error) {
	k := ov.k
	if k <= 0 {
		k = env.cfg.Retrieval.K
	}
	algorithm := ov.algorithm
	if algorithm == "" {
		algorithm = env.cfg.Retrieval.Algorithm
	}
	strategy := ov.strategy
	if strategy == "" {
		strategy = env.cfg.Assemble.Strategy
	}

	store := index.NewStore(env.root, env.name, env.logger)
	retriever, err := retrieve.New(store, nil, retrieve.Config{
		Algorithm: algorithm,
		K:         k,
		K1:        env.cfg.Retrieval.K1,
		B:         env.cfg.Retrieval.B,
	}, env.logger)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	// Retrieve a deeper candidate list than k; the assembler needs slack
	// for diversification and the per-file strategies.
	candidates, err := retriever.Retrieve(ctx, question, k*8)
	latency := time.Since(start)
	if err != nil {
		return nil, err
	}

	recordTelemetry(env, question, algorithm, latency, len(candidates))

	if len(candidates) == 0 {
		return &queryResult{answerText: "No matches found in the index for this question."}, nil
	}

	assembler := assemble.New(store, env.logger)
	windows, citations, err := assembler.Assemble(ctx, candidates, assemble.Options{
		Strategy:            strategy,
		K:                   k,
		MinFiles:            env.cfg.Assemble.MinFiles,
		Diversify:           env.cfg.Assemble.Diversify,
		FileLimit:           env.cfg.Assemble.FileLimit,
		DeepWindowLines:     env.cfg.Assemble.DeepWindowLines,
		DeepCharBudget:      env.cfg.Assemble.DeepCharBudget,
		DeepOverlapFraction: env.cfg.Assemble.DeepOverlapFraction,
		WideWindowLines:     env.cfg.Assemble.WideWindowLines,
		Query:               question,
		DocFraction:         env.cfg.Assemble.DocFraction,
		MinHits:             env.cfg.Assemble.MinHits,
	})
	if err != nil {
		return nil, err
	}

	answerText, err := newAnswerer(env).Answer(ctx, question, windows)
	if err != nil {
		// The baseline fallback never fails, so this is unexpected.
		return nil, errors.New(errors.ErrCodeAnswerFailed, "answer synthesis failed", err)
	}

	return &queryResult{
		answerText: answerText,
		windows:    windows,
		citations:  citations,
	}, nil
}

// newAnswerer builds the configured answerer, always falling back to the
// baseline so retrieval output survives a dead model endpoint.
func newAnswerer(env *appEnv) answer.Answerer {
	baseline := &answer.Baseline{}
	if env.cfg.Answer.Provider != "ollama" {
		return baseline
	}
	ollama := answer.NewOllama(answer.OllamaConfig{
		Endpoint: env.cfg.Answer.Endpoint,
		Model:    env.cfg.Answer.Model,
		Timeout:  time.Duration(env.cfg.Answer.TimeoutSeconds) * time.Second,
	}, env.logger)
	return &answer.WithFallback{Primary: ollama, Fallback: baseline, Logger: env.logger}
}

// recordTelemetry persists local query metrics; failures only log.
func recordTelemetry(env *appEnv, question, algorithm string, latency time.Duration, results int) {
	store, err := telemetry.Open(env.root)
	if err != nil {
		env.logger.Warn("telemetry_unavailable", "error", err.Error())
		return
	}
	defer func() { _ = store.Close() }()

	if err := store.Record(telemetry.QueryRecord{
		Terms:      chunk.Tokenize(question),
		Algorithm:  algorithm,
		Latency:    latency,
		Results:    results,
		RawQuery:   question,
		ZeroResult: results == 0,
	}); err != nil {
		env.logger.Warn("telemetry_record_failed", "error", err.Error())
	}
}
