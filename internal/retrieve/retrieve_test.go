package retrieve

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	askerrors "github.com/askfs/askfs/internal/errors"
	"github.com/askfs/askfs/internal/index"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func buildIndex(t *testing.T, root string, opts index.BuildOptions) *index.Store {
	t.Helper()
	store := index.NewStore(root, "proj", discardLogger())
	b := index.NewBuilder(store, discardLogger())
	_, err := b.Build(context.Background(), opts)
	require.NoError(t, err)
	return store
}

func newRetriever(t *testing.T, store *index.Store, cfg Config) *Retriever {
	t.Helper()
	r, err := New(store, nil, cfg, discardLogger())
	require.NoError(t, err)
	return r
}

func TestRetrieveNotIndexed(t *testing.T) {
	root := t.TempDir()
	store := index.NewStore(root, "proj", discardLogger())
	r := newRetriever(t, store, DefaultConfig())

	_, err := r.Retrieve(context.Background(), "anything", 5)
	require.Error(t, err)
	assert.True(t, askerrors.IsNotIndexed(err))
}

func TestRetrieveEmptyIndexIsEmptyNotError(t *testing.T) {
	root := t.TempDir()
	store := buildIndex(t, root, index.BuildOptions{})
	r := newRetriever(t, store, DefaultConfig())

	got, err := r.Retrieve(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieveFooScenario(t *testing.T) {
	root := t.TempDir()

	var a strings.Builder
	for i := 1; i <= 40; i++ {
		if i%7 == 0 {
			fmt.Fprintf(&a, "line %d mentions foo here\n", i)
		} else {
			fmt.Fprintf(&a, "line %d plain filler content\n", i)
		}
	}
	writeFile(t, root, "a.txt", a.String())
	writeFile(t, root, "b.txt", "one\ntwo\nthree\nfour\nfive\n")

	store := buildIndex(t, root, index.BuildOptions{MaxChars: 200, Overlap: 0})

	m, err := store.LoadManifest()
	require.NoError(t, err)

	for _, algorithm := range []string{AlgorithmBM25, AlgorithmJaccard} {
		t.Run(algorithm, func(t *testing.T) {
			r := newRetriever(t, store, Config{Algorithm: algorithm})
			got, err := r.Retrieve(context.Background(), "foo", 6)
			require.NoError(t, err)
			require.NotEmpty(t, got)
			for _, c := range got {
				assert.Equal(t, "a.txt", m.Chunks[c.ChunkID].File)
			}
		})
	}
}

func TestRetrieveRankingSanity(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "hit.txt",
		"parser grammar parser grammar\nparser handles grammar rules\n")
	writeFile(t, root, "miss.txt",
		"unrelated words entirely\nnothing shared at all\n")

	store := buildIndex(t, root, index.BuildOptions{})
	m, err := store.LoadManifest()
	require.NoError(t, err)

	r := newRetriever(t, store, DefaultConfig())
	got, err := r.Retrieve(context.Background(), "parser grammar", 6)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "hit.txt", m.Chunks[got[0].ChunkID].File)
	for _, c := range got {
		assert.NotEqual(t, "miss.txt", m.Chunks[c.ChunkID].File,
			"chunks matching zero query tokens are never returned")
	}
}

func TestBM25TermFrequencyMonotonic(t *testing.T) {
	// Holding idf and doc length fixed, a higher tf for the query term
	// never lowers the score.
	const k1, b = DefaultK1, DefaultB
	const n, nt, avgdl = 100.0, 10.0, 50.0
	idf := math.Log(1 + (n-nt+0.5)/(nt+0.5))

	contribution := func(tf, dl float64) float64 {
		return idf * tf * (k1 + 1) / (tf + k1*(1-b+b*dl/avgdl))
	}

	prev := 0.0
	for tf := 1.0; tf <= 50; tf++ {
		cur := contribution(tf, 50.0)
		assert.GreaterOrEqual(t, cur, prev, "tf=%v", tf)
		prev = cur
	}
}

func TestBM25PrefersHigherTermFrequency(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dense.txt", "needle needle needle filler words here\n")
	writeFile(t, root, "sparse.txt", "needle filler words here extra pad\n")

	store := buildIndex(t, root, index.BuildOptions{})
	m, err := store.LoadManifest()
	require.NoError(t, err)

	r := newRetriever(t, store, DefaultConfig())
	got, err := r.Retrieve(context.Background(), "needle", 6)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "dense.txt", m.Chunks[got[0].ChunkID].File)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestRetrieveRespectsK(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 10; i++ {
		writeFile(t, root, fmt.Sprintf("f%d.txt", i), fmt.Sprintf("common token file %d\n", i))
	}
	store := buildIndex(t, root, index.BuildOptions{})
	r := newRetriever(t, store, DefaultConfig())

	got, err := r.Retrieve(context.Background(), "common", 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestJaccardScoresBounded(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x.txt", "alpha beta gamma\n")
	store := buildIndex(t, root, index.BuildOptions{})

	r := newRetriever(t, store, Config{Algorithm: AlgorithmJaccard})
	got, err := r.Retrieve(context.Background(), "alpha beta gamma", 6)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
}

func TestSnapshotCacheInvalidationOnRebuild(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "f.txt", "before\n")
	store := buildIndex(t, root, index.BuildOptions{})

	loader, err := NewSnapshotLoader(4, discardLogger())
	require.NoError(t, err)
	r, err := New(store, loader, DefaultConfig(), discardLogger())
	require.NoError(t, err)

	got, err := r.Retrieve(context.Background(), "before", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)

	writeFile(t, root, "f.txt", "after\n")
	buildIndex(t, root, index.BuildOptions{})

	got, err = r.Retrieve(context.Background(), "after", 3)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	got, err = r.Retrieve(context.Background(), "before", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIsIdentifierLike(t *testing.T) {
	assert.True(t, isIdentifierLike("parse_config"))
	assert.True(t, isIdentifierLike("extraordinarily"))
	assert.True(t, isIdentifierLike("myHTTPServer"))
	assert.False(t, isIdentifierLike("foo"))
	assert.False(t, isIdentifierLike("the"))
}
