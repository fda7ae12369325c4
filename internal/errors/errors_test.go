package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndRetryable(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, false},
		{ErrCodeEmptyQuery, CategoryValidation, false},
		{ErrCodeSearchFailed, CategoryEngine, true},
		{ErrCodeDocNotFound, CategoryNotFound, false},
		{ErrCodeInternal, CategoryInternal, false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestError_FormatIncludesCodeAndCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := New(ErrCodeUpsertFailed, "write rejected", cause)

	assert.Contains(t, err.Error(), ErrCodeUpsertFailed)
	assert.Contains(t, err.Error(), "write rejected")
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeSearchFailed, nil))

	inner := New(ErrCodeDocNotFound, "gone", nil)
	wrapped := Wrap(ErrCodeDeleteFailed, inner)

	require.NotNil(t, wrapped)
	assert.Equal(t, ErrCodeDeleteFailed, wrapped.Code)
	// The original code stays reachable through the chain.
	assert.True(t, errors.Is(wrapped, inner))
}

func TestClassifiers(t *testing.T) {
	notFound := New(ErrCodeDocNotFound, "gone", nil)
	validation := New(ErrCodeEmptyUID, "no uid", nil)
	engine := New(ErrCodeEngineUnavailable, "down", nil)
	plain := fmt.Errorf("plain")

	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsNotFound(validation))

	assert.True(t, IsValidation(validation))
	assert.False(t, IsValidation(engine))

	assert.True(t, IsRetryable(engine))
	assert.False(t, IsRetryable(plain))

	assert.Equal(t, ErrCodeDocNotFound, GetCode(notFound))
	assert.Empty(t, GetCode(plain))
	assert.Equal(t, CategoryInternal, CategoryOf(plain))
}

func TestClassifiers_SeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("handler: %w", New(ErrCodeDocNotFound, "gone", nil))

	assert.True(t, IsNotFound(err))
	assert.Equal(t, ErrCodeDocNotFound, GetCode(err))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrCodeBootstrapFailed, "2 indices failed", nil).
		WithDetail("indices", "resources, notes")

	assert.Equal(t, "resources, notes", err.Details["indices"])
}
