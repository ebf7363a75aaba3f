package index

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/askfs/askfs/internal/chunk"
	"github.com/askfs/askfs/internal/errors"
	"github.com/askfs/askfs/internal/scanner"
)

// BuildOptions tunes one incremental build pass.
type BuildOptions struct {
	MaxChars int
	Overlap  int
	// Workers bounds the per-file fan-out. Zero means NumCPU.
	Workers int
	// Scan rules forwarded to the scanner. RootDir is taken from the Store.
	IncludePrefixes []string
	ExcludePrefixes []string
	Extensions      []string
	MaxFileSize     int64
}

// BuildStats summarizes what one pass did.
type BuildStats struct {
	FilesScanned   int
	FilesUnchanged int
	FilesChanged   int
	FilesRemoved   int
	FilesSkipped   int
	ChunksAdded    int
	ChunksRemoved  int
	TotalFiles     int
	TotalChunks    int
	Duration       time.Duration
}

// Builder runs incremental index builds against a Store.
type Builder struct {
	store   *Store
	scanner *scanner.Scanner
	logger  *slog.Logger
}

// NewBuilder creates a Builder for store.
func NewBuilder(store *Store, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		store:   store,
		scanner: scanner.New(),
		logger:  logger,
	}
}

// fileResult carries one file's work out of the worker pool. Workers only
// hash, read, chunk, and tokenize; all manifest and postings mutation
// happens serially after the pool drains.
type fileResult struct {
	path      string
	hash      string
	unchanged bool
	skipped   bool
	spans     []chunk.Span
	freqs     []map[string]int
}

// Build performs one full incremental pass: diff file hashes against the
// manifest, re-chunk and re-tokenize only what changed, prune chunks whose
// file disappeared or was superseded, and persist both structures as
// complete atomic snapshots. Only one build may run per index directory;
// a concurrent build fails fast with ErrCodeBuildLocked.
func (b *Builder) Build(ctx context.Context, opts BuildOptions) (*BuildStats, error) {
	start := time.Now()

	if opts.MaxChars <= 0 {
		opts.MaxChars = chunk.DefaultMaxChars
	}
	if opts.Overlap < 0 {
		opts.Overlap = chunk.DefaultOverlap
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	if err := os.MkdirAll(b.store.Dir(), 0o755); err != nil {
		return nil, errors.New(errors.ErrCodeFileWrite, "failed to create index directory", err)
	}

	lock := flock.New(b.store.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.New(errors.ErrCodeBuildLocked, "failed to acquire build lock", err)
	}
	if !locked {
		return nil, errors.New(errors.ErrCodeBuildLocked,
			"another build is running against this index", nil).
			WithSuggestion("Wait for the other build to finish and retry")
	}
	defer func() { _ = lock.Unlock() }()

	manifest, err := b.store.LoadManifest()
	if err != nil {
		return nil, err
	}
	postings, err := b.store.LoadPostings()
	if err != nil {
		return nil, err
	}

	files, err := b.scanner.Scan(ctx, &scanner.ScanOptions{
		RootDir:         b.store.Root(),
		IncludePrefixes: opts.IncludePrefixes,
		ExcludePrefixes: opts.ExcludePrefixes,
		Extensions:      opts.Extensions,
		MaxFileSize:     opts.MaxFileSize,
	})
	if err != nil {
		return nil, err
	}

	b.logger.Info("build_started",
		slog.String("root", b.store.Root()),
		slog.String("name", b.store.Name()),
		slog.Int("files", len(files)),
		slog.Int("workers", workers))

	// Snapshot prior hashes so workers can diff without touching the
	// manifest, which stays single-writer.
	priorHashes := make(map[string]string, len(manifest.Files))
	for path, h := range manifest.Files {
		priorHashes[path] = h
	}

	results := make(chan fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, f := range files {
		f := f
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			results <- b.processFile(f, priorHashes[f.Path], opts)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// Cancelled builds leave the prior on-disk state untouched.
		return nil, err
	}
	close(results)

	stats := b.aggregate(manifest, postings, results)
	stats.FilesScanned = len(files)

	manifest.UpdatedAt = time.Now().UTC()
	if err := b.store.SaveManifest(manifest); err != nil {
		return nil, err
	}
	if err := b.store.SavePostings(postings); err != nil {
		return nil, err
	}

	stats.TotalFiles = len(manifest.Files)
	stats.TotalChunks = len(manifest.Chunks)
	stats.Duration = time.Since(start)

	b.logger.Info("build_completed",
		slog.String("name", b.store.Name()),
		slog.Int("files_changed", stats.FilesChanged),
		slog.Int("files_unchanged", stats.FilesUnchanged),
		slog.Int("files_removed", stats.FilesRemoved),
		slog.Int("chunks_added", stats.ChunksAdded),
		slog.Int("chunks_removed", stats.ChunksRemoved),
		slog.Int("total_chunks", stats.TotalChunks),
		slog.Duration("duration", stats.Duration))

	return stats, nil
}

// processFile hashes one file and, if it changed, chunks and tokenizes it.
// Read errors are recovered locally: the file is skipped and its prior
// manifest entry, if any, stays untouched until a future successful read.
func (b *Builder) processFile(f scanner.FileInfo, priorHash string, opts BuildOptions) fileResult {
	hash, err := scanner.HashFile(f.AbsPath)
	if err != nil {
		b.logger.Warn("file_skipped",
			slog.String("path", f.Path),
			slog.String("error", err.Error()))
		return fileResult{path: f.Path, skipped: true}
	}

	if hash == priorHash {
		return fileResult{path: f.Path, hash: hash, unchanged: true}
	}

	text, err := scanner.ReadText(f.AbsPath)
	if err != nil {
		b.logger.Warn("file_skipped",
			slog.String("path", f.Path),
			slog.String("error", err.Error()))
		return fileResult{path: f.Path, skipped: true}
	}

	spans := chunk.Split(text, opts.MaxChars, opts.Overlap)
	freqs := make([]map[string]int, len(spans))
	for i, sp := range spans {
		freqs[i] = chunk.TermFreqs(sp.Text)
	}

	return fileResult{path: f.Path, hash: hash, spans: spans, freqs: freqs}
}

// aggregate applies all worker results to the manifest and postings in one
// serialized step, then prunes everything not marked still-valid this pass.
func (b *Builder) aggregate(manifest *Manifest, postings Postings, results <-chan fileResult) *BuildStats {
	stats := &BuildStats{}
	stillValid := make(map[string]bool)

	// File path -> chunk ids currently in the manifest, for unchanged-file
	// revalidation and changed-file supersession.
	byFile := make(map[string][]string)
	for cid, c := range manifest.Chunks {
		byFile[c.File] = append(byFile[c.File], cid)
	}

	seen := make(map[string]bool)
	for res := range results {
		seen[res.path] = true

		switch {
		case res.skipped:
			// Prior entry stays; its chunks stay valid.
			stats.FilesSkipped++
			for _, cid := range byFile[res.path] {
				stillValid[cid] = true
			}

		case res.unchanged:
			stats.FilesUnchanged++
			for _, cid := range byFile[res.path] {
				stillValid[cid] = true
			}

		default:
			stats.FilesChanged++
			manifest.Files[res.path] = res.hash
			for i, sp := range res.spans {
				cid := sp.ID(res.hash)
				manifest.Chunks[cid] = Chunk{
					ID:        cid,
					File:      res.path,
					StartLine: sp.StartLine,
					EndLine:   sp.EndLine,
					TextHash:  res.hash,
				}
				stillValid[cid] = true
				for token, freq := range res.freqs[i] {
					postings.Add(token, cid, freq)
				}
				stats.ChunksAdded++
			}
		}
	}

	// Files that vanished since the last pass.
	for path := range manifest.Files {
		if !seen[path] {
			delete(manifest.Files, path)
			stats.FilesRemoved++
		}
	}

	// Stale chunks: owning file deleted, or superseded by a re-chunk.
	for cid := range manifest.Chunks {
		if !stillValid[cid] {
			delete(manifest.Chunks, cid)
			stats.ChunksRemoved++
		}
	}
	postings.Prune(func(cid string) bool {
		_, ok := manifest.Chunks[cid]
		return ok
	})

	return stats
}
