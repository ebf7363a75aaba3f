// Package assemble turns ranked chunk candidates into a bounded set of
// context windows with parallel file:start-end citations.
package assemble

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/askfs/askfs/internal/chunk"
	"github.com/askfs/askfs/internal/errors"
	"github.com/askfs/askfs/internal/index"
	"github.com/askfs/askfs/internal/retrieve"
	"github.com/askfs/askfs/internal/scanner"
)

// Assembly strategies.
const (
	StrategyDiversified = "diversified"
	StrategyDeep        = "deep"
	StrategyWide        = "wide"
)

// Default strategy tuning.
const (
	DefaultMinFiles            = 2
	DefaultDeepFileLimit       = 3
	DefaultDeepWindowLines     = 60
	DefaultDeepCharBudget      = 4000
	DefaultDeepOverlapFraction = 0.5
	DefaultWideFileLimit       = 8
	DefaultWideWindowLines     = 12
	DefaultDocFraction         = 0.5
	DefaultMinHits             = 1
)

// Window is one assembled context excerpt. Lines are 1-based inclusive.
type Window struct {
	File      string
	StartLine int
	EndLine   int
	Text      string
	Score     float64
}

// Citation returns the window's "file:start-end" citation string.
func (w Window) Citation() string {
	return fmt.Sprintf("%s:%d-%d", w.File, w.StartLine, w.EndLine)
}

// Options is the explicit tuning record for one Assemble call.
type Options struct {
	Strategy string
	// K bounds the diversified strategy's window count.
	K int
	// MinFiles is the diversified strategy's distinct-file floor.
	MinFiles int
	// Diversify toggles the one-window-per-file rule; on by default.
	Diversify bool

	// FileLimit caps files selected by the deep and wide strategies.
	FileLimit int

	DeepWindowLines     int
	DeepCharBudget      int
	DeepOverlapFraction float64

	WideWindowLines int

	// Query drives the literal-hit post-filter.
	Query string
	// DocFraction caps the share of documentation windows in the result.
	DocFraction float64
	// MinHits drops windows with fewer literal query-term occurrences,
	// never emptying a non-empty result.
	MinHits int
}

// DefaultOptions returns diversified assembly with standard tuning.
func DefaultOptions() Options {
	return Options{
		Strategy:            StrategyDiversified,
		K:                   retrieve.DefaultK,
		MinFiles:            DefaultMinFiles,
		Diversify:           true,
		FileLimit:           DefaultDeepFileLimit,
		DeepWindowLines:     DefaultDeepWindowLines,
		DeepCharBudget:      DefaultDeepCharBudget,
		DeepOverlapFraction: DefaultDeepOverlapFraction,
		WideWindowLines:     DefaultWideWindowLines,
		DocFraction:         DefaultDocFraction,
		MinHits:             DefaultMinHits,
	}
}

// Assembler converts ranked candidates into context windows for one index.
type Assembler struct {
	store  *index.Store
	logger *slog.Logger
}

// New creates an Assembler over store.
func New(store *index.Store, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{store: store, logger: logger}
}

// resolved pairs a candidate with its chunk metadata.
type resolved struct {
	chunk index.Chunk
	score float64
}

// Assemble maps candidates to context windows using the configured
// strategy, then post-filters by literal query-term hits and documentation
// demotion. Returns the windows and a parallel citation list.
func (a *Assembler) Assemble(ctx context.Context, candidates []retrieve.Candidate, opts Options) ([]Window, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	opts = withDefaults(opts)

	if !a.store.Exists() {
		return nil, nil, errors.NotIndexed(a.store.Name())
	}
	manifest, err := a.store.LoadManifest()
	if err != nil {
		return nil, nil, err
	}

	var res []resolved
	for _, c := range candidates {
		meta, ok := manifest.Chunks[c.ChunkID]
		if !ok {
			a.logger.Warn("stale_candidate_skipped", slog.String("chunk_id", c.ChunkID))
			continue
		}
		res = append(res, resolved{chunk: meta, score: c.Score})
	}
	if len(res) == 0 {
		return nil, nil, nil
	}

	lines := newLineCache(a.store.Root(), a.logger)

	var windows []Window
	switch opts.Strategy {
	case StrategyDeep:
		windows = a.assembleDeep(res, lines, opts)
	case StrategyWide:
		windows = a.assembleWide(res, lines, opts)
	default:
		windows = a.assembleDiversified(res, lines, opts)
	}

	windows = postFilter(windows, opts)

	citations := make([]string, len(windows))
	for i, w := range windows {
		citations[i] = w.Citation()
	}

	a.logger.Debug("assemble_completed",
		slog.String("strategy", opts.Strategy),
		slog.Int("candidates", len(candidates)),
		slog.Int("windows", len(windows)))
	return windows, citations, nil
}

func withDefaults(opts Options) Options {
	if opts.Strategy == "" {
		opts.Strategy = StrategyDiversified
	}
	if opts.K <= 0 {
		opts.K = retrieve.DefaultK
	}
	if opts.MinFiles <= 0 {
		opts.MinFiles = DefaultMinFiles
	}
	if opts.FileLimit <= 0 {
		if opts.Strategy == StrategyWide {
			opts.FileLimit = DefaultWideFileLimit
		} else {
			opts.FileLimit = DefaultDeepFileLimit
		}
	}
	if opts.DeepWindowLines <= 0 {
		opts.DeepWindowLines = DefaultDeepWindowLines
	}
	if opts.DeepCharBudget <= 0 {
		opts.DeepCharBudget = DefaultDeepCharBudget
	}
	if opts.DeepOverlapFraction <= 0 || opts.DeepOverlapFraction > 1 {
		opts.DeepOverlapFraction = DefaultDeepOverlapFraction
	}
	if opts.WideWindowLines <= 0 {
		opts.WideWindowLines = DefaultWideWindowLines
	}
	if opts.DocFraction <= 0 || opts.DocFraction > 1 {
		opts.DocFraction = DefaultDocFraction
	}
	if opts.MinHits < 0 {
		opts.MinHits = DefaultMinHits
	}
	return opts
}

// assembleDiversified walks candidates in score order, one window per file
// while diversification is on, until K windows and MinFiles distinct files
// are collected. Window text is the exact chunk span, no expansion. A
// second sweep admits additional files further down the list if the
// distinct-file floor was not reached.
func (a *Assembler) assembleDiversified(res []resolved, lines *lineCache, opts Options) []Window {
	var windows []Window
	usedFiles := make(map[string]bool)
	usedChunks := make(map[string]bool)

	for _, r := range res {
		if len(windows) >= opts.K && len(usedFiles) >= opts.MinFiles {
			break
		}
		if opts.Diversify && usedFiles[r.chunk.File] {
			continue
		}
		if len(windows) >= opts.K {
			break
		}
		w, ok := windowForSpan(r, lines, r.chunk.StartLine, r.chunk.EndLine)
		if !ok {
			continue
		}
		windows = append(windows, w)
		usedFiles[r.chunk.File] = true
		usedChunks[r.chunk.ID] = true
	}

	// Second sweep for the distinct-file floor.
	for _, r := range res {
		if len(usedFiles) >= opts.MinFiles {
			break
		}
		if usedChunks[r.chunk.ID] || usedFiles[r.chunk.File] {
			continue
		}
		w, ok := windowForSpan(r, lines, r.chunk.StartLine, r.chunk.EndLine)
		if !ok {
			continue
		}
		windows = append(windows, w)
		usedFiles[r.chunk.File] = true
		usedChunks[r.chunk.ID] = true
	}

	return windows
}

// assembleDeep ranks files by summed candidate score, keeps the top
// FileLimit, and expands line windows centered on each file's best chunks,
// capped by a per-file character budget. A window overlapping an earlier
// window in the same file beyond DeepOverlapFraction is skipped.
func (a *Assembler) assembleDeep(res []resolved, lines *lineCache, opts Options) []Window {
	files := rankFiles(res, opts.FileLimit)

	var windows []Window
	for _, f := range files {
		budget := opts.DeepCharBudget
		var chosen []Window

		for _, r := range f.candidates {
			if budget <= 0 {
				break
			}
			fileLines, ok := lines.get(r.chunk.File)
			if !ok {
				continue
			}
			start, end := centerWindow(r.chunk, opts.DeepWindowLines, len(fileLines))
			if overlapsBeyond(chosen, start, end, opts.DeepOverlapFraction) {
				continue
			}
			text := joinRange(fileLines, start, end)
			if len(text) > budget {
				continue
			}
			w := Window{File: r.chunk.File, StartLine: start, EndLine: end, Text: text, Score: r.score}
			chosen = append(chosen, w)
			budget -= len(text)
		}
		windows = append(windows, chosen...)
	}
	return windows
}

// assembleWide keeps the top FileLimit files by aggregate score and takes
// a single small window around each file's best chunk.
func (a *Assembler) assembleWide(res []resolved, lines *lineCache, opts Options) []Window {
	files := rankFiles(res, opts.FileLimit)

	var windows []Window
	for _, f := range files {
		best := f.candidates[0]
		fileLines, ok := lines.get(best.chunk.File)
		if !ok {
			continue
		}
		start, end := centerWindow(best.chunk, opts.WideWindowLines, len(fileLines))
		windows = append(windows, Window{
			File:      best.chunk.File,
			StartLine: start,
			EndLine:   end,
			Text:      joinRange(fileLines, start, end),
			Score:     best.score,
		})
	}
	return windows
}

// rankedFile groups one file's candidates, best first.
type rankedFile struct {
	file       string
	total      float64
	candidates []resolved
}

func rankFiles(res []resolved, limit int) []rankedFile {
	byFile := make(map[string]*rankedFile)
	var order []string
	for _, r := range res {
		f, ok := byFile[r.chunk.File]
		if !ok {
			f = &rankedFile{file: r.chunk.File}
			byFile[r.chunk.File] = f
			order = append(order, r.chunk.File)
		}
		f.total += r.score
		f.candidates = append(f.candidates, r)
	}

	files := make([]rankedFile, 0, len(order))
	for _, name := range order {
		f := byFile[name]
		sort.SliceStable(f.candidates, func(i, j int) bool {
			return f.candidates[i].score > f.candidates[j].score
		})
		files = append(files, *f)
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].total != files[j].total {
			return files[i].total > files[j].total
		}
		return files[i].file < files[j].file
	})
	if len(files) > limit {
		files = files[:limit]
	}
	return files
}

// centerWindow centers a window of size lines on the chunk's midpoint,
// clamped to the file bounds.
func centerWindow(c index.Chunk, size, fileLen int) (int, int) {
	if fileLen <= 0 {
		return c.StartLine, c.EndLine
	}
	mid := (c.StartLine + c.EndLine) / 2
	start := mid - size/2
	if start < 1 {
		start = 1
	}
	end := start + size - 1
	if end > fileLen {
		end = fileLen
		start = end - size + 1
		if start < 1 {
			start = 1
		}
	}
	return start, end
}

// overlapsBeyond reports whether [start,end] overlaps any chosen window by
// more than fraction of the smaller window's length.
func overlapsBeyond(chosen []Window, start, end int, fraction float64) bool {
	for _, w := range chosen {
		lo := max(start, w.StartLine)
		hi := min(end, w.EndLine)
		if hi < lo {
			continue
		}
		overlap := hi - lo + 1
		smaller := min(end-start+1, w.EndLine-w.StartLine+1)
		if float64(overlap) > fraction*float64(smaller) {
			return true
		}
	}
	return false
}

func windowForSpan(r resolved, lines *lineCache, start, end int) (Window, bool) {
	fileLines, ok := lines.get(r.chunk.File)
	if !ok {
		return Window{}, false
	}
	if end > len(fileLines) {
		end = len(fileLines)
	}
	if start < 1 || start > end {
		return Window{}, false
	}
	return Window{
		File:      r.chunk.File,
		StartLine: start,
		EndLine:   end,
		Text:      joinRange(fileLines, start, end),
		Score:     r.score,
	}, true
}

func joinRange(fileLines []string, start, end int) string {
	return strings.Join(fileLines[start-1:end], "\n")
}

// lineCache reads and caches split file contents under a root.
type lineCache struct {
	root   string
	cache  map[string][]string
	logger *slog.Logger
}

func newLineCache(root string, logger *slog.Logger) *lineCache {
	return &lineCache{root: root, cache: make(map[string][]string), logger: logger}
}

func (lc *lineCache) get(rel string) ([]string, bool) {
	if cached, ok := lc.cache[rel]; ok {
		return cached, cached != nil
	}
	text, err := scanner.ReadText(filepath.Join(lc.root, filepath.FromSlash(rel)))
	if err != nil {
		lc.logger.Warn("window_file_unreadable",
			slog.String("path", rel),
			slog.String("error", err.Error()))
		lc.cache[rel] = nil
		return nil, false
	}
	split := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	// Drop a trailing empty line from a final newline.
	if len(split) > 0 && split[len(split)-1] == "" {
		split = split[:len(split)-1]
	}
	lc.cache[rel] = split
	return split, true
}

// stopWords are short or common query terms excluded from literal hit
// counting.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "has": true,
	"how": true, "what": true, "where": true, "when": true, "why": true,
	"who": true, "does": true, "this": true, "that": true, "with": true,
	"from": true, "into": true, "its": true, "use": true, "used": true,
	"uses": true, "is": true, "in": true, "it": true, "of": true,
	"on": true, "to": true, "a": true, "an": true, "do": true,
	"be": true, "or": true, "as": true, "at": true, "by": true,
}

// meaningfulTerms extracts query tokens worth hit-counting.
func meaningfulTerms(query string) []string {
	var terms []string
	for _, tok := range chunk.Tokenize(query) {
		if len(tok) < 3 || stopWords[tok] {
			continue
		}
		terms = append(terms, tok)
	}
	return terms
}

// hitCount counts literal occurrences of the terms in the window text.
func hitCount(text string, terms []string) int {
	lower := strings.ToLower(text)
	hits := 0
	for _, term := range terms {
		hits += strings.Count(lower, term)
	}
	return hits
}

// isDocPath classifies documentation files by path and suffix.
func isDocPath(rel string) bool {
	lower := strings.ToLower(rel)
	switch filepath.Ext(lower) {
	case ".md", ".rst", ".txt":
		return true
	}
	base := filepath.Base(lower)
	if strings.HasPrefix(base, "readme") || strings.HasPrefix(base, "changelog") {
		return true
	}
	for _, part := range strings.Split(lower, "/") {
		if part == "docs" || part == "doc" {
			return true
		}
	}
	return false
}

// postFilter applies literal hit counting, the MinHits floor, and
// documentation demotion. Neither filter may empty a non-empty result.
func postFilter(windows []Window, opts Options) []Window {
	if len(windows) == 0 {
		return windows
	}
	terms := meaningfulTerms(opts.Query)

	if len(terms) > 0 && opts.MinHits > 0 {
		var kept []Window
		for _, w := range windows {
			if hitCount(w.Text, terms) >= opts.MinHits {
				kept = append(kept, w)
			}
		}
		if len(kept) > 0 {
			windows = kept
		}
	}

	// Demote documentation windows to the tail, and cap them at
	// DocFraction of the final set when code windows exist.
	var code, docs []Window
	for _, w := range windows {
		if isDocPath(w.File) {
			docs = append(docs, w)
		} else {
			code = append(code, w)
		}
	}
	if len(code) == 0 || len(docs) == 0 {
		return windows
	}
	allowed := int(opts.DocFraction * float64(len(windows)))
	if allowed < 1 {
		allowed = 1
	}
	if len(docs) > allowed {
		docs = docs[:allowed]
	}
	return append(code, docs...)
}
