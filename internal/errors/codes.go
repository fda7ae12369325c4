// Package errors provides structured error handling for the document
// index gateway.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Validation errors (bad input from callers)
//   - 3XX: Engine errors (the underlying search engine failed)
//   - 4XX: Not-found conditions
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryEngine indicates search-engine failures.
	CategoryEngine Category = "ENGINE"
	// CategoryNotFound indicates a missing document or index.
	CategoryNotFound Category = "NOT_FOUND"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid = "ERR_101_CONFIG_INVALID"
	ErrCodeDataDirLocked = "ERR_102_DATA_DIR_LOCKED"

	// Validation errors (200-299)
	ErrCodeUnknownEntityType = "ERR_201_UNKNOWN_ENTITY_TYPE"
	ErrCodeInvalidDocument   = "ERR_202_INVALID_DOCUMENT"
	ErrCodeEmptyDocID        = "ERR_203_EMPTY_DOC_ID"
	ErrCodeEmptyUID          = "ERR_204_EMPTY_UID"
	ErrCodeEmptyQuery        = "ERR_205_EMPTY_QUERY"
	ErrCodeInvalidLimit      = "ERR_206_INVALID_LIMIT"

	// Engine errors (300-399)
	ErrCodeEngineUnavailable = "ERR_301_ENGINE_UNAVAILABLE"
	ErrCodeUpsertFailed      = "ERR_302_UPSERT_FAILED"
	ErrCodeDeleteFailed      = "ERR_303_DELETE_FAILED"
	ErrCodeSearchFailed      = "ERR_304_SEARCH_FAILED"
	ErrCodeBootstrapFailed   = "ERR_305_BOOTSTRAP_FAILED"
	ErrCodeMappingMismatch   = "ERR_306_MAPPING_MISMATCH"

	// Not-found conditions (400-499)
	ErrCodeDocNotFound   = "ERR_401_DOC_NOT_FOUND"
	ErrCodeIndexNotFound = "ERR_402_INDEX_NOT_FOUND"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// categoryFromCode extracts the category from an error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryValidation
	case '3':
		return CategoryEngine
	case '4':
		return CategoryNotFound
	default:
		return CategoryInternal
	}
}

// retryableCodes are errors where retrying the same call may succeed.
var retryableCodes = map[string]bool{
	ErrCodeEngineUnavailable: true,
	ErrCodeUpsertFailed:      true,
	ErrCodeDeleteFailed:      true,
	ErrCodeSearchFailed:      true,
}

// isRetryableCode reports whether the code is marked retryable.
func isRetryableCode(code string) bool {
	return retryableCodes[code]
}
