// Package index owns the durable manifest and inverted index for a named
// index, and the incremental build pass that keeps them consistent with the
// files on disk.
package index

import "time"

// Format versions for the persisted snapshot files. A snapshot with an
// unknown version is treated as corrupt and rebuilt from source.
const (
	ManifestVersion = 1
	PostingsVersion = 1
)

// MetadataDirName is the reserved directory under the project root that
// holds all index state. The scanner skips it.
const MetadataDirName = ".askfs"

// Chunk is the metadata for one indexed span of a file.
type Chunk struct {
	ID        string `json:"id"`
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	TextHash  string `json:"text_hash"`
}

// Manifest records every indexed file (by content hash) and every chunk.
// It is persisted as a complete JSON snapshot.
type Manifest struct {
	Version   int               `json:"version"`
	Root      string            `json:"root"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Files     map[string]string `json:"files"`
	Chunks    map[string]Chunk  `json:"chunks"`
}

// NewManifest creates an empty, timestamped manifest for root.
func NewManifest(root string) *Manifest {
	now := time.Now().UTC()
	return &Manifest{
		Version:   ManifestVersion,
		Root:      root,
		CreatedAt: now,
		UpdatedAt: now,
		Files:     make(map[string]string),
		Chunks:    make(map[string]Chunk),
	}
}

// Postings maps token -> chunk id -> term frequency.
type Postings map[string]map[string]int

// Add increments the frequency of token in chunkID by freq.
func (p Postings) Add(token, chunkID string, freq int) {
	m, ok := p[token]
	if !ok {
		m = make(map[string]int)
		p[token] = m
	}
	m[chunkID] += freq
}

// Prune removes every posting whose chunk id is not in keep, dropping
// tokens whose posting lists become empty.
func (p Postings) Prune(keep func(chunkID string) bool) {
	for token, posting := range p {
		for cid := range posting {
			if !keep(cid) {
				delete(posting, cid)
			}
		}
		if len(posting) == 0 {
			delete(p, token)
		}
	}
}

// postingsEnvelope is the on-disk wrapper for Postings.
type postingsEnvelope struct {
	Version  int      `json:"version"`
	Postings Postings `json:"postings"`
}
