// Package errors provides structured error handling for askfs.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and index errors (file, disk, persisted state)
//   - 3XX: Network errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, disk, and index I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO and index errors (200-299)
	ErrCodeFileNotFound = "ERR_201_FILE_NOT_FOUND"
	ErrCodeDiskFull     = "ERR_203_DISK_FULL"
	ErrCodeFileRead     = "ERR_204_FILE_READ"
	ErrCodeFileWrite    = "ERR_205_FILE_WRITE"

	// ErrCodeNotIndexed means the manifest or inverted index is missing
	// entirely. The only hard, user-facing retrieval error: an explicit
	// index build is required, and it must stay distinguishable from an
	// empty result.
	ErrCodeNotIndexed = "ERR_210_NOT_INDEXED"

	// ErrCodeUnreadableFile means a single file failed to read or decode
	// during scanning. Recovered locally: skip and log, never abort a build.
	ErrCodeUnreadableFile = "ERR_211_UNREADABLE_FILE"

	// ErrCodeCorruptIndexState means persisted manifest or inverted index
	// failed to parse. Recovered by treating state as empty and rebuilding;
	// the index is a derived cache, always reconstructible from source.
	ErrCodeCorruptIndexState = "ERR_212_CORRUPT_INDEX_STATE"

	// ErrCodeBuildLocked means another build holds the single-writer lock.
	ErrCodeBuildLocked = "ERR_213_BUILD_LOCKED"

	// Network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeAnswerFailed       = "ERR_303_ANSWER_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty   = "ERR_404_QUERY_EMPTY"
	ErrCodeInvalidPath  = "ERR_406_INVALID_PATH"

	// Internal errors (500-599)
	ErrCodeInternal       = "ERR_501_INTERNAL"
	ErrCodeSearchFailed   = "ERR_503_SEARCH_FAILED"
	ErrCodeChunkingFailed = "ERR_504_CHUNKING_FAILED"
	ErrCodeIndexFailed    = "ERR_505_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "210" from "ERR_210_NOT_INDEXED")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeNotIndexed, ErrCodeDiskFull:
		return SeverityFatal
	case ErrCodeUnreadableFile, ErrCodeCorruptIndexState:
		// Recovered locally: skip-and-log conditions, not failures.
		return SeverityWarning
	}
	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable, ErrCodeAnswerFailed:
		return true
	default:
		return false
	}
}
