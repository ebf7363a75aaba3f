// Package telemetry records local, privacy-preserving query metrics in a
// SQLite database under the metadata directory. Nothing leaves the machine.
package telemetry

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/askfs/askfs/internal/index"
)

const dbFile = "telemetry.db"

// Latency histogram buckets.
var latencyBuckets = []struct {
	name string
	max  time.Duration
}{
	{"<10ms", 10 * time.Millisecond},
	{"10-50ms", 50 * time.Millisecond},
	{"50-100ms", 100 * time.Millisecond},
	{"100-500ms", 500 * time.Millisecond},
	{">500ms", 1<<63 - 1},
}

const maxZeroResultQueries = 100

// QueryRecord is one retrieval's telemetry.
type QueryRecord struct {
	Terms      []string
	Algorithm  string
	Latency    time.Duration
	Results    int
	RawQuery   string
	ZeroResult bool
}

// Store persists query metrics.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the telemetry database under root's metadata
// directory.
func Open(root string) (*Store, error) {
	path := filepath.Join(root, index.MetadataDirName, dbFile)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_terms (
		term TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 1,
		last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);

	CREATE TABLE IF NOT EXISTS query_latency_stats (
		date TEXT NOT NULL,
		algorithm TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, algorithm, bucket)
	);

	CREATE TABLE IF NOT EXISTS zero_result_queries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

// Record persists one query's metrics in a single transaction.
func (s *Store) Record(rec QueryRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	termStmt, err := tx.Prepare(`
		INSERT INTO query_terms (term, count, last_seen)
		VALUES (?, 1, CURRENT_TIMESTAMP)
		ON CONFLICT(term) DO UPDATE SET
			count = count + 1,
			last_seen = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("prepare term statement: %w", err)
	}
	defer termStmt.Close()

	for _, term := range rec.Terms {
		if _, err := termStmt.Exec(term); err != nil {
			return fmt.Errorf("upsert term: %w", err)
		}
	}

	date := time.Now().Format("2006-01-02")
	if _, err := tx.Exec(`
		INSERT INTO query_latency_stats (date, algorithm, bucket, count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(date, algorithm, bucket) DO UPDATE SET count = count + 1
	`, date, rec.Algorithm, bucketFor(rec.Latency)); err != nil {
		return fmt.Errorf("upsert latency bucket: %w", err)
	}

	if rec.ZeroResult {
		if _, err := tx.Exec(`INSERT INTO zero_result_queries (query) VALUES (?)`, rec.RawQuery); err != nil {
			return fmt.Errorf("insert zero-result query: %w", err)
		}
		// Circular buffer: keep only the newest entries.
		if _, err := tx.Exec(`
			DELETE FROM zero_result_queries
			WHERE id NOT IN (
				SELECT id FROM zero_result_queries ORDER BY id DESC LIMIT ?
			)
		`, maxZeroResultQueries); err != nil {
			return fmt.Errorf("trim zero-result queries: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// TermCount is one entry of the top-terms report.
type TermCount struct {
	Term  string
	Count int64
}

// TopTerms returns the most frequent query terms, highest count first.
func (s *Store) TopTerms(limit int) ([]TermCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT term, count FROM query_terms
		ORDER BY count DESC, term ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	defer rows.Close()

	var out []TermCount
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan term row: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// LatencyCounts returns bucket counts for one day, keyed by bucket name.
func (s *Store) LatencyCounts(date string) (map[string]int64, error) {
	rows, err := s.db.Query(`
		SELECT bucket, SUM(count) FROM query_latency_stats
		WHERE date = ? GROUP BY bucket
	`, date)
	if err != nil {
		return nil, fmt.Errorf("query latency counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var bucket string
		var count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("scan latency row: %w", err)
		}
		counts[bucket] = count
	}
	return counts, rows.Err()
}

// ZeroResultQueries returns the most recent zero-result queries.
func (s *Store) ZeroResultQueries(limit int) ([]string, error) {
	if limit <= 0 {
		limit = maxZeroResultQueries
	}
	rows, err := s.db.Query(`
		SELECT query FROM zero_result_queries ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result queries: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan zero-result row: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func bucketFor(d time.Duration) string {
	for _, b := range latencyBuckets {
		if d < b.max {
			return b.name
		}
	}
	return latencyBuckets[len(latencyBuckets)-1].name
}
