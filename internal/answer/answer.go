// Package answer synthesizes answers from assembled context windows.
// Retrieval output stays correct whether or not an answerer succeeds; the
// baseline answerer is always available as a non-LLM fallback.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/askfs/askfs/internal/assemble"
)

// Answerer turns a question plus context windows into answer text.
type Answerer interface {
	Answer(ctx context.Context, question string, contexts []assemble.Window) (string, error)
}

// Baseline is a non-LLM answerer: it renders the top findings with
// previews and citations. It never fails.
type Baseline struct {
	// PreviewLines caps the lines shown per window. Zero means 6.
	PreviewLines int
}

// Answer renders the question and a cited preview of each context window.
func (b *Baseline) Answer(_ context.Context, question string, contexts []assemble.Window) (string, error) {
	previewLines := b.PreviewLines
	if previewLines <= 0 {
		previewLines = 6
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Q: %s\n\n", question)
	sb.WriteString("Top findings (preview):\n")
	for _, w := range contexts {
		lines := strings.Split(strings.TrimSpace(w.Text), "\n")
		if len(lines) > previewLines {
			lines = lines[:previewLines]
		}
		fmt.Fprintf(&sb, "- %s\n  %s\n", w.Citation(), strings.Join(lines, "\n  "))
	}
	if len(contexts) == 0 {
		sb.WriteString("- no matching context found\n")
	}
	return sb.String(), nil
}

// buildPrompt formats the grounding prompt sent to an LLM answerer.
func buildPrompt(question string, contexts []assemble.Window) string {
	var sb strings.Builder
	sb.WriteString("You are an expert software assistant. Answer the user's question using ONLY the provided code excerpts.\n")
	sb.WriteString("Always cite the files and line ranges you used, like: file.go:10-35.\n\n")
	fmt.Fprintf(&sb, "Question:\n%s\n\nContext:\n", question)
	for _, w := range contexts {
		fmt.Fprintf(&sb, "### %s\n%s\n\n", w.Citation(), w.Text)
	}
	sb.WriteString("Return a concise answer (bullets okay) followed by a \"Sources:\" section listing the citations you used.\n")
	return sb.String()
}
