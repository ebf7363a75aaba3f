package scanner

// DefaultMaxFileSize is the default maximum file size to scan (2MB).
// Files larger than this are skipped to keep chunking and tokenization cheap.
const DefaultMaxFileSize int64 = 2 * 1024 * 1024

// MetadataDirName is the reserved index directory skipped during scanning.
const MetadataDirName = ".askfs"

// FileInfo describes a scannable file discovered under the root.
type FileInfo struct {
	// Path is the POSIX-style path relative to the scan root.
	Path string

	// AbsPath is the absolute filesystem path.
	AbsPath string

	// Size is the file size in bytes.
	Size int64
}

// ScanOptions controls a scan pass.
type ScanOptions struct {
	// RootDir is the directory to scan. Defaults to ".".
	RootDir string

	// IncludePrefixes restricts results to these relative path prefixes
	// when non-empty.
	IncludePrefixes []string

	// ExcludePrefixes skips relative paths under these prefixes, and
	// directories whose base name matches an entry.
	ExcludePrefixes []string

	// Extensions is the file extension allowlist (with leading dot,
	// lower-case). Empty means every extension is accepted.
	Extensions []string

	// MaxFileSize is the per-file size cap in bytes.
	// Defaults to DefaultMaxFileSize.
	MaxFileSize int64
}
