package index

import (
	"context"
	"fmt"
)

// Backend selects the embedded search-engine implementation.
type Backend string

const (
	// BackendBleve uses Bleve v2 (default). One index directory per
	// entity type; single-process due to the BoltDB lock.
	BackendBleve Backend = "bleve"

	// BackendSQLite uses SQLite FTS5 with WAL mode. One virtual table
	// per entity type in a single database file.
	BackendSQLite Backend = "sqlite"
)

// IndexStatus is the outcome of an ensure-index call.
type IndexStatus string

const (
	// IndexCreated means the index did not exist and was created with
	// the registry's mapping.
	IndexCreated IndexStatus = "created"
	// IndexOpened means an existing index was opened and its mapping
	// matches the registry.
	IndexOpened IndexStatus = "opened"
	// IndexMismatch means an existing index was opened but its live
	// mapping differs from the registry's schema.
	IndexMismatch IndexStatus = "mismatch"
	// IndexFailed means the index could not be opened or created.
	IndexFailed IndexStatus = "failed"
)

// Query is the engine-level search input, already validated by the
// gateway. DocIDs, when non-empty, is the entity filter.
type Query struct {
	UID    string
	Text   string
	Limit  int
	DocIDs []string
}

// Engine is the injected search-engine client. Implementations own all
// persistence; the gateway holds no state beyond the registry. Close
// must be called on process teardown.
type Engine interface {
	// EnsureIndex opens the index for schema, creating it with the
	// schema's mapping if absent, and validates an existing mapping
	// against the schema.
	EnsureIndex(ctx context.Context, schema IndexSchema) (IndexStatus, error)

	// Upsert writes the full document body under id, replacing any
	// previous body (idempotent by id).
	Upsert(ctx context.Context, schema IndexSchema, id string, fields map[string]any) error

	// Delete removes the document. Deleting an unknown id returns a
	// not-found error.
	Delete(ctx context.Context, schema IndexSchema, id string) error

	// Search runs a uid-scoped weighted full-text query and returns
	// scored hits with highlight fragments.
	Search(ctx context.Context, schema IndexSchema, q Query) ([]Hit, error)

	// DocCount returns the number of documents in the index.
	DocCount(ctx context.Context, schema IndexSchema) (uint64, error)

	// Close releases all engine resources.
	Close() error
}

// EngineConfig configures the engine factory.
type EngineConfig struct {
	// Backend selects the implementation ("bleve" or "sqlite").
	// Empty defaults to bleve.
	Backend string
	// DataDir is where indices live. Empty means in-memory (tests).
	DataDir string
}

// NewEngine constructs the configured engine backend.
func NewEngine(cfg EngineConfig) (Engine, error) {
	switch Backend(cfg.Backend) {
	case BackendBleve, "":
		return newBleveEngine(cfg.DataDir)
	case BackendSQLite:
		return newSQLiteEngine(cfg.DataDir)
	default:
		return nil, fmt.Errorf("unknown engine backend: %s (valid options: bleve, sqlite)", cfg.Backend)
	}
}
