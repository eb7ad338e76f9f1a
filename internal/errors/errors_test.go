package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCascadeError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("original error")

	// When: wrapping with CascadeError
	cascadeErr := New(ErrCodeSectionNotFound, "section not found: s1", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, cascadeErr)
	assert.Equal(t, originalErr, errors.Unwrap(cascadeErr))
	assert.True(t, errors.Is(cascadeErr, originalErr))
}

func TestCascadeError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "invalid query",
			code:     ErrCodeInvalidQuery,
			message:  "query cannot be empty",
			expected: "[ERR_401_INVALID_QUERY] query cannot be empty",
		},
		{
			name:     "document not found",
			code:     ErrCodeDocumentNotFound,
			message:  "document 'foo' not found",
			expected: "[ERR_405_DOCUMENT_NOT_FOUND] document 'foo' not found",
		},
		{
			name:     "cascade timeout",
			code:     ErrCodeCascadeTimeout,
			message:  "search deadline exceeded",
			expected: "[ERR_408_CASCADE_TIMEOUT] search deadline exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestCascadeError_Is_MatchesByCode(t *testing.T) {
	err1 := New(ErrCodeSectionNotFound, "section A not found", nil)
	err2 := New(ErrCodeSectionNotFound, "section B not found", nil)

	assert.True(t, errors.Is(err1, err2))
}

func TestCascadeError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	err1 := New(ErrCodeSectionNotFound, "section not found", nil)
	err2 := New(ErrCodeDocumentNotFound, "document not found", nil)

	assert.False(t, errors.Is(err1, err2))
}

func TestCascadeError_WithDetails_AddsContext(t *testing.T) {
	err := New(ErrCodeSectionNotFound, "section not found", nil)

	err = err.WithDetail("section_id", "guide#intro")
	err = err.WithDetail("doc_name", "guide")

	assert.Equal(t, "guide#intro", err.Details["section_id"])
	assert.Equal(t, "guide", err.Details["doc_name"])
}

func TestCascadeError_WithSuggestion_AddsSuggestion(t *testing.T) {
	err := New(ErrCodeCascadeTimeout, "deadline exceeded", nil)

	err = err.WithSuggestion("increase the search context deadline")

	assert.Equal(t, "increase the search context deadline", err.Suggestion)
}

func TestCascadeError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
	}{
		{ErrCodeInvalidQuery, CategoryInvalidInput},
		{ErrCodeUnknownDocument, CategoryInvalidInput},
		{ErrCodeSectionNotFound, CategoryNotFound},
		{ErrCodeDocumentNotFound, CategoryNotFound},
		{ErrCodeCascadeTimeout, CategoryTimeout},
		{ErrCodeEmbedderUnavailable, CategoryEmbedderUnavailable},
		{ErrCodeStoreIO, CategoryStoreError},
		{ErrCodeIngestRollback, CategoryIngestError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
		})
	}
}

func TestCascadeError_SeverityFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantSeverity Severity
	}{
		{ErrCodeStoreCorrupt, SeverityFatal},
		{ErrCodeSectionNotFound, SeverityError},
		{ErrCodeCascadeTimeout, SeverityError},
		{ErrCodeEmbedderUnavailable, SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantSeverity, err.Severity)
		})
	}
}

func TestCascadeError_RetryableFromCode(t *testing.T) {
	tests := []struct {
		code          string
		wantRetryable bool
	}{
		{ErrCodeCascadeTimeout, true},
		{ErrCodeEmbedderUnavailable, true},
		{ErrCodeSectionNotFound, false},
		{ErrCodeStoreCorrupt, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantRetryable, err.Retryable)
		})
	}
}

func TestWrap_CreatesCascadeErrorFromError(t *testing.T) {
	originalErr := errors.New("something went wrong")

	cascadeErr := Wrap(ErrCodeStoreIO, originalErr)

	require.NotNil(t, cascadeErr)
	assert.Equal(t, ErrCodeStoreIO, cascadeErr.Code)
	assert.Equal(t, "something went wrong", cascadeErr.Message)
	assert.Equal(t, originalErr, cascadeErr.Cause)
}

func TestInvalidInput_CreatesInvalidInputCategoryError(t *testing.T) {
	err := InvalidInput("query exceeds maximum length", nil)

	assert.Equal(t, CategoryInvalidInput, err.Category)
}

func TestNotFound_CreatesNotFoundCategoryError(t *testing.T) {
	err := NotFound("section not found", nil)

	assert.Equal(t, CategoryNotFound, err.Category)
}

func TestTimeout_CreatesRetryableError(t *testing.T) {
	err := Timeout("cascade deadline exceeded", nil)

	assert.Equal(t, CategoryTimeout, err.Category)
	assert.True(t, err.Retryable)
}

func TestIsRetryable_ChecksRetryableFlag(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "retryable CascadeError",
			err:      New(ErrCodeCascadeTimeout, "timeout", nil),
			expected: true,
		},
		{
			name:     "non-retryable CascadeError",
			err:      New(ErrCodeSectionNotFound, "not found", nil),
			expected: false,
		},
		{
			name:     "wrapped retryable error",
			err:      Wrap(ErrCodeCascadeTimeout, errors.New("wrapped")),
			expected: true,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal_ChecksFatalSeverity(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "fatal error",
			err:      New(ErrCodeStoreCorrupt, "store corrupt", nil),
			expected: true,
		},
		{
			name:     "non-fatal error",
			err:      New(ErrCodeSectionNotFound, "not found", nil),
			expected: false,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsFatal(tt.err))
		})
	}
}
