package assemble

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	askerrors "github.com/askfs/askfs/internal/errors"
	"github.com/askfs/askfs/internal/index"
	"github.com/askfs/askfs/internal/retrieve"
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

// fixture builds an index over root and retrieves candidates for query.
func fixture(t *testing.T, root, query string, buildOpts index.BuildOptions) (*index.Store, []retrieve.Candidate) {
	t.Helper()
	store := index.NewStore(root, "proj", discardLogger())
	b := index.NewBuilder(store, discardLogger())
	_, err := b.Build(context.Background(), buildOpts)
	require.NoError(t, err)

	r, err := retrieve.New(store, nil, retrieve.DefaultConfig(), discardLogger())
	require.NoError(t, err)
	candidates, err := r.Retrieve(context.Background(), query, 50)
	require.NoError(t, err)
	return store, candidates
}

func numberedFile(n int, marker string, markerEvery int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		if markerEvery > 0 && i%markerEvery == 0 {
			fmt.Fprintf(&b, "line %d carries %s content\n", i, marker)
		} else {
			fmt.Fprintf(&b, "line %d ordinary filler text\n", i)
		}
	}
	return b.String()
}

func TestAssembleNotIndexed(t *testing.T) {
	root := t.TempDir()
	store := index.NewStore(root, "proj", discardLogger())
	a := New(store, discardLogger())

	_, _, err := a.Assemble(context.Background(), []retrieve.Candidate{{ChunkID: "x:1:2"}}, DefaultOptions())
	require.Error(t, err)
	assert.True(t, askerrors.IsNotIndexed(err))
}

func TestAssembleEmptyCandidates(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hello world\n")
	store, _ := fixture(t, root, "hello", index.BuildOptions{})

	a := New(store, discardLogger())
	windows, citations, err := a.Assemble(context.Background(), nil, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, windows)
	assert.Empty(t, citations)
}

func TestAssembleDefaultFooScenario(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", numberedFile(40, "foo", 7))
	writeFile(t, root, "b.txt", "one\ntwo\nthree\nfour\nfive\n")

	store, candidates := fixture(t, root, "foo", index.BuildOptions{MaxChars: 200, Overlap: 0})
	require.NotEmpty(t, candidates)

	opts := DefaultOptions()
	opts.K = 1
	opts.Query = "foo"

	a := New(store, discardLogger())
	windows, citations, err := a.Assemble(context.Background(), candidates, opts)
	require.NoError(t, err)

	require.Len(t, windows, 1)
	require.Len(t, citations, 1)
	assert.Equal(t, "a.txt", windows[0].File)
	assert.Contains(t, windows[0].Text, "foo")
	assert.Equal(t, fmt.Sprintf("a.txt:%d-%d", windows[0].StartLine, windows[0].EndLine), citations[0])
}

func TestAssembleDiversifiedOneWindowPerFile(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 4; i++ {
		content := numberedFile(30, "signal", 3) + fmt.Sprintf("distinct trailer %d\n", i)
		writeFile(t, root, fmt.Sprintf("f%d.txt", i), content)
	}

	store, candidates := fixture(t, root, "signal", index.BuildOptions{MaxChars: 200, Overlap: 0})
	require.NotEmpty(t, candidates)

	opts := DefaultOptions()
	opts.K = 4
	opts.MinFiles = 2
	opts.Query = "signal"

	a := New(store, discardLogger())
	windows, _, err := a.Assemble(context.Background(), candidates, opts)
	require.NoError(t, err)
	require.Len(t, windows, 4)

	seen := map[string]bool{}
	for _, w := range windows {
		assert.False(t, seen[w.File], "file %s contributed twice", w.File)
		seen[w.File] = true
	}
}

func TestAssembleDiversifiedExactChunkSpan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", numberedFile(40, "needle", 5))
	store, candidates := fixture(t, root, "needle", index.BuildOptions{MaxChars: 200, Overlap: 0})
	require.NotEmpty(t, candidates)

	m, err := store.LoadManifest()
	require.NoError(t, err)
	best := m.Chunks[candidates[0].ChunkID]

	opts := DefaultOptions()
	opts.K = 1
	opts.MinFiles = 1
	opts.Query = "needle"

	a := New(store, discardLogger())
	windows, _, err := a.Assemble(context.Background(), candidates, opts)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, best.StartLine, windows[0].StartLine)
	assert.Equal(t, best.EndLine, windows[0].EndLine)
}

func TestAssembleWideBounds(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 6; i++ {
		content := numberedFile(50, "beacon", 4) + fmt.Sprintf("distinct trailer %d\n", i)
		writeFile(t, root, fmt.Sprintf("w%d.txt", i), content)
	}

	store, candidates := fixture(t, root, "beacon", index.BuildOptions{MaxChars: 150, Overlap: 0})
	require.NotEmpty(t, candidates)

	opts := DefaultOptions()
	opts.Strategy = StrategyWide
	opts.FileLimit = 3
	opts.WideWindowLines = 10
	opts.Query = "beacon"

	a := New(store, discardLogger())
	windows, _, err := a.Assemble(context.Background(), candidates, opts)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(windows), 3)
	files := map[string]int{}
	for _, w := range windows {
		files[w.File]++
		assert.LessOrEqual(t, w.EndLine-w.StartLine+1, 10)
	}
	assert.LessOrEqual(t, len(files), 3)
	for f, n := range files {
		assert.Equal(t, 1, n, "wide must take one window per file, got %d for %s", n, f)
	}
}

func TestAssembleDeepSingleFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "deep.txt", numberedFile(200, "quarry", 6))
	writeFile(t, root, "other.txt", numberedFile(200, "quarry", 40))

	store, candidates := fixture(t, root, "quarry", index.BuildOptions{MaxChars: 150, Overlap: 0})
	require.NotEmpty(t, candidates)

	opts := DefaultOptions()
	opts.Strategy = StrategyDeep
	opts.FileLimit = 1
	opts.Query = "quarry"

	a := New(store, discardLogger())
	windows, _, err := a.Assemble(context.Background(), candidates, opts)
	require.NoError(t, err)
	require.NotEmpty(t, windows)

	for _, w := range windows {
		assert.Equal(t, "deep.txt", w.File, "deep with FileLimit=1 draws from one file only")
	}
}

func TestAssembleDeepRespectsCharBudget(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "big.txt", numberedFile(300, "lodestone", 5))

	store, candidates := fixture(t, root, "lodestone", index.BuildOptions{MaxChars: 150, Overlap: 0})
	require.NotEmpty(t, candidates)

	opts := DefaultOptions()
	opts.Strategy = StrategyDeep
	opts.FileLimit = 1
	opts.DeepWindowLines = 20
	opts.DeepCharBudget = 1500
	opts.Query = "lodestone"

	a := New(store, discardLogger())
	windows, _, err := a.Assemble(context.Background(), candidates, opts)
	require.NoError(t, err)

	total := 0
	for _, w := range windows {
		total += len(w.Text)
	}
	assert.LessOrEqual(t, total, 1500)
}

func TestAssembleDeepOverlapDedup(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "ov.txt", numberedFile(100, "gimbal", 2))

	store, candidates := fixture(t, root, "gimbal", index.BuildOptions{MaxChars: 150, Overlap: 0})
	require.NotEmpty(t, candidates)

	opts := DefaultOptions()
	opts.Strategy = StrategyDeep
	opts.FileLimit = 1
	opts.DeepWindowLines = 40
	opts.DeepOverlapFraction = 0.5
	opts.Query = "gimbal"

	a := New(store, discardLogger())
	windows, _, err := a.Assemble(context.Background(), candidates, opts)
	require.NoError(t, err)

	for i := range windows {
		for j := i + 1; j < len(windows); j++ {
			if windows[i].File != windows[j].File {
				continue
			}
			lo := max(windows[i].StartLine, windows[j].StartLine)
			hi := min(windows[i].EndLine, windows[j].EndLine)
			if hi < lo {
				continue
			}
			overlap := hi - lo + 1
			li := windows[i].EndLine - windows[i].StartLine + 1
			lj := windows[j].EndLine - windows[j].StartLine + 1
			assert.LessOrEqual(t, float64(overlap), 0.5*float64(min(li, lj)))
		}
	}
}

func TestPostFilterMinHitsNeverEmpties(t *testing.T) {
	windows := []Window{
		{File: "a.go", StartLine: 1, EndLine: 2, Text: "nothing relevant here"},
	}
	opts := withDefaults(Options{Query: "zyzzyva", MinHits: 1})
	got := postFilter(windows, opts)
	assert.Len(t, got, 1, "hit filter must not empty a non-empty result")
}

func TestPostFilterDropsLowHitWindows(t *testing.T) {
	windows := []Window{
		{File: "a.go", StartLine: 1, EndLine: 2, Text: "the conduit fires twice: conduit"},
		{File: "b.go", StartLine: 1, EndLine: 2, Text: "nothing to see"},
	}
	opts := withDefaults(Options{Query: "conduit", MinHits: 1})
	got := postFilter(windows, opts)
	require.Len(t, got, 1)
	assert.Equal(t, "a.go", got[0].File)
}

func TestPostFilterDemotesDocs(t *testing.T) {
	windows := []Window{
		{File: "README.md", StartLine: 1, EndLine: 2, Text: "anchor docs anchor"},
		{File: "docs/guide.md", StartLine: 1, EndLine: 2, Text: "anchor guide anchor"},
		{File: "core.go", StartLine: 1, EndLine: 2, Text: "anchor code anchor"},
	}
	opts := withDefaults(Options{Query: "anchor", MinHits: 1, DocFraction: 0.34})
	got := postFilter(windows, opts)

	require.NotEmpty(t, got)
	assert.Equal(t, "core.go", got[0].File, "code windows come first")
	docCount := 0
	for _, w := range got {
		if isDocPath(w.File) {
			docCount++
		}
	}
	assert.Equal(t, 1, docCount, "docs capped at DocFraction of the set")
}

func TestIsDocPath(t *testing.T) {
	assert.True(t, isDocPath("README.md"))
	assert.True(t, isDocPath("docs/internals.rst"))
	assert.True(t, isDocPath("notes.txt"))
	assert.True(t, isDocPath("pkg/docs/overview.go"))
	assert.True(t, isDocPath("doc/overview.go"))
	assert.False(t, isDocPath("internal/store/store.go"))
}
