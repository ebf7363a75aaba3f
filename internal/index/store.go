package index

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/askfs/askfs/internal/errors"
)

const (
	manifestFile = "manifest.json"
	postingsFile = "inverted_index.json"
	lockFile     = ".build.lock"
)

// Store owns the on-disk paths for one named index and its load/save logic.
// Persisted state is a derived cache: missing or unparsable snapshots load
// as empty rather than failing, since a rebuild reconstructs everything
// from source files.
type Store struct {
	root   string
	name   string
	logger *slog.Logger
}

// NewStore creates a Store for the index called name under root.
func NewStore(root, name string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, name: name, logger: logger}
}

// Root returns the project root directory.
func (s *Store) Root() string { return s.root }

// Name returns the index name.
func (s *Store) Name() string { return s.name }

// Dir returns the directory holding this index's snapshot files.
func (s *Store) Dir() string {
	return filepath.Join(s.root, MetadataDirName, s.name)
}

// ManifestPath returns the manifest snapshot path.
func (s *Store) ManifestPath() string {
	return filepath.Join(s.Dir(), manifestFile)
}

// PostingsPath returns the inverted index snapshot path.
func (s *Store) PostingsPath() string {
	return filepath.Join(s.Dir(), postingsFile)
}

// LockPath returns the build lock file path.
func (s *Store) LockPath() string {
	return filepath.Join(s.Dir(), lockFile)
}

// Exists reports whether both snapshot files are present on disk.
// Retrieval against an index where either is absent is a NotIndexed error.
func (s *Store) Exists() bool {
	if _, err := os.Stat(s.ManifestPath()); err != nil {
		return false
	}
	if _, err := os.Stat(s.PostingsPath()); err != nil {
		return false
	}
	return true
}

// Connect returns the existing manifest, or creates and persists an empty
// timestamped one if none exists. Idempotent.
func (s *Store) Connect() (*Manifest, error) {
	if _, err := os.Stat(s.ManifestPath()); err == nil {
		return s.LoadManifest()
	}
	m := NewManifest(s.root)
	if err := s.SaveManifest(m); err != nil {
		return nil, err
	}
	s.logger.Info("index_connected",
		slog.String("root", s.root),
		slog.String("name", s.name))
	return m, nil
}

// LoadManifest loads the manifest snapshot. A missing file loads as a fresh
// empty manifest; an unparsable or wrong-version file is logged and also
// loads as empty.
func (s *Store) LoadManifest() (*Manifest, error) {
	data, err := os.ReadFile(s.ManifestPath())
	if err != nil {
		if os.IsNotExist(err) {
			return NewManifest(s.root), nil
		}
		return nil, errors.New(errors.ErrCodeFileRead, "failed to read manifest", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		s.logCorrupt(s.ManifestPath(), err)
		return NewManifest(s.root), nil
	}
	if m.Version != ManifestVersion {
		s.logCorrupt(s.ManifestPath(), fmt.Errorf("unsupported manifest version %d", m.Version))
		return NewManifest(s.root), nil
	}
	if m.Files == nil {
		m.Files = make(map[string]string)
	}
	if m.Chunks == nil {
		m.Chunks = make(map[string]Chunk)
	}
	return &m, nil
}

// LoadPostings loads the inverted index snapshot, with the same recovery
// rules as LoadManifest.
func (s *Store) LoadPostings() (Postings, error) {
	data, err := os.ReadFile(s.PostingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(Postings), nil
		}
		return nil, errors.New(errors.ErrCodeFileRead, "failed to read inverted index", err)
	}

	var env postingsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logCorrupt(s.PostingsPath(), err)
		return make(Postings), nil
	}
	if env.Version != PostingsVersion {
		s.logCorrupt(s.PostingsPath(), fmt.Errorf("unsupported postings version %d", env.Version))
		return make(Postings), nil
	}
	if env.Postings == nil {
		env.Postings = make(Postings)
	}
	return env.Postings, nil
}

// SaveManifest atomically replaces the manifest snapshot.
func (s *Store) SaveManifest(m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.New(errors.ErrCodeInternal, "failed to marshal manifest", err)
	}
	return s.atomicWrite(s.ManifestPath(), data)
}

// SavePostings atomically replaces the inverted index snapshot.
func (s *Store) SavePostings(p Postings) error {
	data, err := json.MarshalIndent(postingsEnvelope{Version: PostingsVersion, Postings: p}, "", "  ")
	if err != nil {
		return errors.New(errors.ErrCodeInternal, "failed to marshal inverted index", err)
	}
	return s.atomicWrite(s.PostingsPath(), data)
}

// atomicWrite writes data to a temp file in the target directory and
// renames it into place, so readers never observe a partial snapshot.
func (s *Store) atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(errors.ErrCodeFileWrite, "failed to create index directory", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.New(errors.ErrCodeFileWrite, "failed to write snapshot", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.New(errors.ErrCodeFileWrite, "failed to replace snapshot", err)
	}
	return nil
}

func (s *Store) logCorrupt(path string, cause error) {
	s.logger.Warn("corrupt_index_state",
		slog.String("path", path),
		slog.String("error", cause.Error()),
		slog.String("code", errors.ErrCodeCorruptIndexState))
}
