// Package retrieve scores and ranks indexed chunks against a query.
package retrieve

import (
	"log/slog"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/askfs/askfs/internal/errors"
	"github.com/askfs/askfs/internal/index"
)

// Snapshot is an immutable in-memory view of one index, safe for unlimited
// concurrent queries.
type Snapshot struct {
	Manifest *index.Manifest
	Postings index.Postings

	// docLen is Σ term frequencies per chunk; N counts chunks with at
	// least one posting; avgdl is the mean docLen over those N.
	docLen map[string]int
	avgdl  float64
	n      int
}

func newSnapshot(m *index.Manifest, p index.Postings) *Snapshot {
	docLen := make(map[string]int)
	for _, posting := range p {
		for cid, freq := range posting {
			docLen[cid] += freq
		}
	}
	total := 0
	for _, dl := range docLen {
		total += dl
	}
	avgdl := 0.0
	if len(docLen) > 0 {
		avgdl = float64(total) / float64(len(docLen))
	}
	return &Snapshot{
		Manifest: m,
		Postings: p,
		docLen:   docLen,
		avgdl:    avgdl,
		n:        len(docLen),
	}
}

type cacheEntry struct {
	snap         *Snapshot
	manifestMod  time.Time
	postingsMod  time.Time
	manifestPath string
}

// SnapshotLoader loads index snapshots with a small LRU cache keyed by
// index directory, invalidated when either snapshot file changes on disk.
type SnapshotLoader struct {
	cache  *lru.Cache[string, cacheEntry]
	logger *slog.Logger
}

// NewSnapshotLoader creates a loader caching up to size index snapshots.
func NewSnapshotLoader(size int, logger *slog.Logger) (*SnapshotLoader, error) {
	if size <= 0 {
		size = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, errors.New(errors.ErrCodeInternal, "failed to create snapshot cache", err)
	}
	return &SnapshotLoader{cache: cache, logger: logger}, nil
}

// Load returns the snapshot for store, reusing the cached copy while the
// on-disk files are unchanged. An index with either file absent is a
// NotIndexed error; an empty but present index loads normally.
func (l *SnapshotLoader) Load(store *index.Store) (*Snapshot, error) {
	if !store.Exists() {
		return nil, errors.NotIndexed(store.Name())
	}

	mStat, err := os.Stat(store.ManifestPath())
	if err != nil {
		return nil, errors.NotIndexed(store.Name())
	}
	pStat, err := os.Stat(store.PostingsPath())
	if err != nil {
		return nil, errors.NotIndexed(store.Name())
	}

	key := store.Dir()
	if entry, ok := l.cache.Get(key); ok {
		if entry.manifestMod.Equal(mStat.ModTime()) && entry.postingsMod.Equal(pStat.ModTime()) {
			return entry.snap, nil
		}
	}

	m, err := store.LoadManifest()
	if err != nil {
		return nil, err
	}
	p, err := store.LoadPostings()
	if err != nil {
		return nil, err
	}

	snap := newSnapshot(m, p)
	l.cache.Add(key, cacheEntry{
		snap:         snap,
		manifestMod:  mStat.ModTime(),
		postingsMod:  pStat.ModTime(),
		manifestPath: store.ManifestPath(),
	})
	l.logger.Debug("snapshot_loaded",
		slog.String("dir", key),
		slog.Int("chunks", len(m.Chunks)),
		slog.Int("vocabulary", len(p)))
	return snap, nil
}
