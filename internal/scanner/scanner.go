// Package scanner discovers indexable files under a root directory and
// computes their content hashes.
package scanner

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/askfs/askfs/internal/errors"
)

// Scanner discovers indexable files in a project directory.
type Scanner struct{}

// New creates a new Scanner instance.
func New() *Scanner {
	return &Scanner{}
}

// Scan walks the root directory and returns every indexable file.
// Order is the WalkDir order: stable within a single process run.
// Dot-prefixed path segments and the reserved metadata directory are
// always skipped.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions) ([]FileInfo, error) {
	if opts == nil {
		opts = &ScanOptions{}
	}

	rootDir := opts.RootDir
	if rootDir == "" {
		rootDir = "."
	}

	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", absRoot)
	}

	maxFileSize := opts.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	var files []FileInfo
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // Skip entries we can't access
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		if relPath == "." {
			return nil
		}
		rel := filepath.ToSlash(relPath)

		if d.IsDir() {
			if s.shouldExcludeDir(rel, d.Name(), opts) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinked files are never followed
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if s.shouldExcludeFile(rel, opts) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}
		if fi.Size() > maxFileSize {
			return nil
		}

		if isBinaryFile(path) {
			return nil
		}

		files = append(files, FileInfo{
			Path:    rel,
			AbsPath: path,
			Size:    fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

// shouldExcludeDir checks if a directory should be skipped entirely.
func (s *Scanner) shouldExcludeDir(rel, base string, opts *ScanOptions) bool {
	// Dot-prefixed segments and the reserved metadata directory
	if strings.HasPrefix(base, ".") {
		return true
	}
	if base == MetadataDirName {
		return true
	}

	for _, ex := range opts.ExcludePrefixes {
		ex = strings.TrimSuffix(ex, "/")
		if ex == "" {
			continue
		}
		if base == ex || rel == ex || strings.HasPrefix(rel, ex+"/") {
			return true
		}
	}

	return false
}

// shouldExcludeFile checks include/exclude prefix rules and the extension
// allowlist.
func (s *Scanner) shouldExcludeFile(rel string, opts *ScanOptions) bool {
	// A dot-prefixed segment anywhere in the path excludes the file
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}

	for _, ex := range opts.ExcludePrefixes {
		ex = strings.TrimSuffix(ex, "/")
		if ex == "" {
			continue
		}
		if rel == ex || strings.HasPrefix(rel, ex+"/") {
			return true
		}
	}

	if len(opts.IncludePrefixes) > 0 {
		ok := false
		for _, in := range opts.IncludePrefixes {
			in = strings.TrimSuffix(in, "/")
			if in == "" || rel == in || strings.HasPrefix(rel, in+"/") {
				ok = true
				break
			}
		}
		if !ok {
			return true
		}
	}

	if len(opts.Extensions) > 0 {
		ext := strings.ToLower(filepath.Ext(rel))
		ok := false
		for _, allowed := range opts.Extensions {
			if ext == strings.ToLower(allowed) {
				ok = true
				break
			}
		}
		if !ok {
			return true
		}
	}

	return false
}

// isBinaryFile checks if a file is binary by looking for null bytes.
func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return false
	}

	return bytes.Contains(buf[:n], []byte{0})
}

// HashFile returns the SHA-256 hex digest of the file's bytes.
// Unreadable files return an ErrCodeUnreadableFile error; callers skip the
// file and log rather than aborting a build.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Unreadable(path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Unreadable(path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ReadText reads a file as UTF-8 text, replacing invalid bytes.
// Unreadable files return an ErrCodeUnreadableFile error.
func ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Unreadable(path, err)
	}
	return string(bytes.ToValidUTF8(data, []byte("�"))), nil
}
