package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		category Category
		severity Severity
	}{
		{"not indexed is fatal IO", ErrCodeNotIndexed, CategoryIO, SeverityFatal},
		{"unreadable file is IO warning", ErrCodeUnreadableFile, CategoryIO, SeverityWarning},
		{"corrupt state is IO warning", ErrCodeCorruptIndexState, CategoryIO, SeverityWarning},
		{"config invalid", ErrCodeConfigInvalid, CategoryConfig, SeverityError},
		{"network timeout is retryable warning", ErrCodeNetworkTimeout, CategoryNetwork, SeverityWarning},
		{"invalid input", ErrCodeInvalidInput, CategoryValidation, SeverityError},
		{"internal", ErrCodeInternal, CategoryInternal, SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
		})
	}
}

func TestError_ErrorFormat(t *testing.T) {
	err := New(ErrCodeNotIndexed, "no index for test", nil)
	assert.Equal(t, "[ERR_210_NOT_INDEXED] no index for test", err.Error())
}

func TestError_IsMatchesByCode(t *testing.T) {
	err := NotIndexed("demo")
	target := New(ErrCodeNotIndexed, "anything", nil)

	assert.True(t, stderrors.Is(err, target))
	assert.False(t, stderrors.Is(err, New(ErrCodeInternal, "anything", nil)))
}

func TestError_UnwrapPreservesChain(t *testing.T) {
	cause := stderrors.New("permission denied")
	err := Unreadable("src/main.go", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, cause, err.Unwrap())
}

func TestIsNotIndexed_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("loading snapshot: %w", NotIndexed("demo"))
	assert.True(t, IsNotIndexed(err))
	assert.False(t, IsNotIndexed(stderrors.New("plain")))
	assert.False(t, IsNotIndexed(nil))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeAnswerFailed, "llm down", nil)))
	assert.False(t, IsRetryable(NotIndexed("demo")))
}

func TestWithDetailAndSuggestion(t *testing.T) {
	err := New(ErrCodeInvalidPath, "bad path", nil).
		WithDetail("path", "../escape").
		WithSuggestion("use a path inside the root")

	assert.Equal(t, "../escape", err.Details["path"])
	assert.Equal(t, "use a path inside the root", err.Suggestion)
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeQueryEmpty, GetCode(New(ErrCodeQueryEmpty, "", nil)))
	assert.Equal(t, "", GetCode(stderrors.New("plain")))
}
