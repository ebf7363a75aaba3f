package retrieve

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/askfs/askfs/internal/chunk"
	"github.com/askfs/askfs/internal/errors"
	"github.com/askfs/askfs/internal/index"
)

// Ranking algorithms.
const (
	AlgorithmBM25    = "bm25"
	AlgorithmJaccard = "jaccard"
)

// Default ranking constants.
const (
	DefaultK  = 6
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// Candidate is one ranked chunk.
type Candidate struct {
	ChunkID string
	Score   float64
}

// Config is the explicit tuning record for a Retriever. No ambient lookups
// happen inside ranking.
type Config struct {
	Algorithm string
	K         int
	K1        float64
	B         float64
}

// DefaultConfig returns the standard BM25 configuration.
func DefaultConfig() Config {
	return Config{Algorithm: AlgorithmBM25, K: DefaultK, K1: DefaultK1, B: DefaultB}
}

// Retriever ranks chunks of one index against queries.
type Retriever struct {
	store  *index.Store
	loader *SnapshotLoader
	cfg    Config
	logger *slog.Logger
}

// New creates a Retriever over store with the given config and snapshot
// loader. A nil loader gets a private single-entry cache.
func New(store *index.Store, loader *SnapshotLoader, cfg Config, logger *slog.Logger) (*Retriever, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if loader == nil {
		var err error
		loader, err = NewSnapshotLoader(1, logger)
		if err != nil {
			return nil, err
		}
	}
	if cfg.K <= 0 {
		cfg.K = DefaultK
	}
	if cfg.K1 <= 0 {
		cfg.K1 = DefaultK1
	}
	if cfg.B < 0 || cfg.B > 1 {
		cfg.B = DefaultB
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmBM25
	}
	return &Retriever{store: store, loader: loader, cfg: cfg, logger: logger}, nil
}

// Retrieve returns the top-k candidates for query, highest score first.
// A missing index is ErrCodeNotIndexed; an empty or non-matching query
// against a present index returns an empty list, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = r.cfg.K
	}

	snap, err := r.loader.Load(r.store)
	if err != nil {
		return nil, err
	}

	qtokens := chunk.Tokenize(query)
	if len(qtokens) == 0 {
		return nil, nil
	}

	var ranked []Candidate
	switch r.cfg.Algorithm {
	case AlgorithmJaccard:
		ranked = scoreJaccard(snap, qtokens)
	case AlgorithmBM25:
		ranked = scoreBM25(snap, qtokens, r.cfg.K1, r.cfg.B)
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput,
			"unknown ranking algorithm: "+r.cfg.Algorithm, nil)
	}

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	ranked = r.applyGuardRail(snap, qtokens, ranked)

	r.logger.Debug("retrieve_completed",
		slog.String("algorithm", r.cfg.Algorithm),
		slog.Int("query_tokens", len(qtokens)),
		slog.Int("results", len(ranked)))
	return ranked, nil
}

// scoreBM25 ranks via Okapi BM25 over the sparse candidate set: only
// chunks appearing in at least one query token's postings are scored.
func scoreBM25(snap *Snapshot, qtokens []string, k1, b float64) []Candidate {
	if snap.n == 0 {
		return nil
	}

	// Distinct query tokens, dropping repeats.
	seen := make(map[string]bool, len(qtokens))
	scores := make(map[string]float64)
	for _, qt := range qtokens {
		if seen[qt] {
			continue
		}
		seen[qt] = true

		posting := snap.Postings[qt]
		if len(posting) == 0 {
			continue
		}
		nt := float64(len(posting))
		idf := math.Log(1 + (float64(snap.n)-nt+0.5)/(nt+0.5))

		for cid, tf := range posting {
			dl := float64(snap.docLen[cid])
			tfF := float64(tf)
			norm := tfF + k1*(1-b+b*dl/snap.avgdl)
			scores[cid] += idf * tfF * (k1 + 1) / norm
		}
	}

	return sortCandidates(scores)
}

// scoreJaccard ranks by Jaccard similarity between the query token set and
// each candidate's token set. Candidate token sets are reconstructed by
// scanning the whole vocabulary, O(vocabulary) per candidate. That cost is
// acceptable at single-repository scale and is part of the algorithm's
// observable behavior, so it is not optimized away here.
func scoreJaccard(snap *Snapshot, qtokens []string) []Candidate {
	qset := make(map[string]bool, len(qtokens))
	for _, qt := range qtokens {
		qset[qt] = true
	}

	candidates := make(map[string]bool)
	for qt := range qset {
		for cid := range snap.Postings[qt] {
			candidates[cid] = true
		}
	}

	scores := make(map[string]float64, len(candidates))
	for cid := range candidates {
		intersect := 0
		ctokens := 0
		for token, posting := range snap.Postings {
			if _, ok := posting[cid]; !ok {
				continue
			}
			ctokens++
			if qset[token] {
				intersect++
			}
		}
		union := len(qset) + ctokens - intersect
		if union > 0 {
			scores[cid] = float64(intersect) / float64(union)
		}
	}

	return sortCandidates(scores)
}

// applyGuardRail re-ranks when the top-k set has zero lexical relevance:
// if no returned chunk's postings contain any query token, candidates are
// re-ranked by raw term-frequency sum restricted to identifier-like query
// tokens.
func (r *Retriever) applyGuardRail(snap *Snapshot, qtokens []string, ranked []Candidate) []Candidate {
	if len(ranked) == 0 {
		return ranked
	}

	for _, c := range ranked {
		for _, qt := range qtokens {
			if _, ok := snap.Postings[qt][c.ChunkID]; ok {
				return ranked
			}
		}
	}

	idents := make([]string, 0, len(qtokens))
	for _, qt := range qtokens {
		if isIdentifierLike(qt) {
			idents = append(idents, qt)
		}
	}
	if len(idents) == 0 {
		return ranked
	}

	scores := make(map[string]float64)
	for _, qt := range idents {
		for cid, tf := range snap.Postings[qt] {
			scores[cid] += float64(tf)
		}
	}
	reranked := sortCandidates(scores)
	if len(reranked) == 0 {
		return ranked
	}
	if len(reranked) > len(ranked) {
		reranked = reranked[:len(ranked)]
	}
	r.logger.Debug("guard_rail_reranked", slog.Int("identifier_tokens", len(idents)))
	return reranked
}

// isIdentifierLike reports whether a token looks like a code identifier:
// it contains an underscore, an interior capital letter, or is at least 12
// characters long.
func isIdentifierLike(token string) bool {
	if len(token) >= 12 {
		return true
	}
	if strings.Contains(token, "_") {
		return true
	}
	for i, r := range token {
		if i > 0 && unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

// sortCandidates orders scores descending with chunk id as a deterministic
// tiebreaker.
func sortCandidates(scores map[string]float64) []Candidate {
	out := make([]Candidate, 0, len(scores))
	for cid, s := range scores {
		out = append(out, Candidate{ChunkID: cid, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}
