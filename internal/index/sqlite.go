package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/inkwell-ai/docgate/internal/errors"
)

// Highlight markers, matching the Bleve HTML fragment formatter so both
// backends return the same snippet shape.
const (
	highlightOpen   = "<mark>"
	highlightClose  = "</mark>"
	snippetEllipsis = "…"
	snippetTokens   = 32
)

// sqliteEngine implements Engine on SQLite FTS5, one virtual table per
// entity type in a single database. WAL mode allows concurrent access
// without a directory lock.
type sqliteEngine struct {
	mu      sync.Mutex
	db      *sql.DB
	ensured map[EntityType]bool
	closed  bool
}

var _ Engine = (*sqliteEngine)(nil)

// newSQLiteEngine opens (or creates) the gateway database. An empty
// data directory yields an in-memory database for testing.
func newSQLiteEngine(dataDir string) (*sqliteEngine, error) {
	dsn := ":memory:"
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
		}
		dsn = filepath.Join(dataDir, "docgate.db") + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer prevents lock contention; modernc.org/sqlite needs
	// WAL set via PRAGMA, DSN params may be ignored.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	return &sqliteEngine{
		db:      db,
		ensured: make(map[EntityType]bool),
	}, nil
}

func (e *sqliteEngine) EnsureIndex(ctx context.Context, schema IndexSchema) (IndexStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return IndexFailed, errors.New(errors.ErrCodeEngineUnavailable, "engine is closed", nil)
	}

	var count int
	err := e.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, schema.Name).Scan(&count)
	if err != nil {
		return IndexFailed, fmt.Errorf("failed to query schema for %s: %w", schema.Name, err)
	}

	if count == 0 {
		ddl := createTableDDL(schema)
		if _, err := e.db.ExecContext(ctx, ddl); err != nil {
			return IndexFailed, fmt.Errorf("failed to create index %s: %w", schema.Name, err)
		}
		e.ensured[schema.Type] = true
		return IndexCreated, nil
	}

	e.ensured[schema.Type] = true
	ok, err := e.columnsMatch(ctx, schema)
	if err != nil {
		return IndexFailed, err
	}
	if !ok {
		return IndexMismatch, nil
	}
	return IndexOpened, nil
}

func (e *sqliteEngine) Upsert(ctx context.Context, schema IndexSchema, id string, fields map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(schema.Type); err != nil {
		return err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// FTS5 virtual tables do not support REPLACE, so delete first.
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, schema.Name), id); err != nil {
		return fmt.Errorf("failed to replace document %s: %w", id, err)
	}

	cols := make([]string, 0, len(schema.Fields))
	placeholders := make([]string, 0, len(schema.Fields))
	args := make([]any, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		cols = append(cols, fmt.Sprintf("%q", f.Name))
		placeholders = append(placeholders, "?")
		args = append(args, stringField(fields, f.Name))
	}

	insert := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`,
		schema.Name, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
		return fmt.Errorf("failed to index document %s: %w", id, err)
	}

	return tx.Commit()
}

func (e *sqliteEngine) Delete(ctx context.Context, schema IndexSchema, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(schema.Type); err != nil {
		return err
	}

	var exists int
	err := e.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %q WHERE id = ?`, schema.Name), id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to look up document %s: %w", id, err)
	}
	if exists == 0 {
		return errors.New(errors.ErrCodeDocNotFound,
			fmt.Sprintf("document %s not found in index %s", id, schema.Name), nil)
	}

	if _, err := e.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, schema.Name), id); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

func (e *sqliteEngine) Search(ctx context.Context, schema IndexSchema, q Query) ([]Hit, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(schema.Type); err != nil {
		return nil, err
	}

	matchExpr := fts5MatchExpr(q.Text)
	if matchExpr == "" {
		return []Hit{}, nil
	}

	query, args := searchSQL(schema, q, matchExpr)
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		// FTS5 rejects some match expressions outright; treat as no hits.
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []Hit{}, nil
		}
		return nil, fmt.Errorf("search failed on index %s: %w", schema.Name, err)
	}
	defer rows.Close()

	textFields := schema.TextFields()
	var hits []Hit
	for rows.Next() {
		values := make([]string, len(schema.Fields))
		snippets := make([]string, len(textFields))
		var score float64

		dest := make([]any, 0, len(values)+1+len(snippets))
		for i := range values {
			dest = append(dest, &values[i])
		}
		dest = append(dest, &score)
		for i := range snippets {
			dest = append(dest, &snippets[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}

		source := make(map[string]any, len(schema.Fields))
		var id string
		for i, f := range schema.Fields {
			if f.Name == "id" {
				id = values[i]
			}
			if values[i] != "" {
				source[f.Name] = values[i]
			}
		}

		hit := Hit{
			ID: id,
			// FTS5 bm25() is negative where lower is better; negate so
			// higher means more relevant, consistent with Bleve.
			Score:  -score,
			Source: source,
		}
		for i, name := range textFields {
			if strings.Contains(snippets[i], highlightOpen) {
				if hit.Highlight == nil {
					hit.Highlight = make(map[string][]string)
				}
				hit.Highlight[name] = []string{snippets[i]}
			}
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []Hit{}
	}
	return hits, nil
}

func (e *sqliteEngine) DocCount(ctx context.Context, schema IndexSchema) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(schema.Type); err != nil {
		return 0, err
	}

	var count uint64
	err := e.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %q`, schema.Name)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents in %s: %w", schema.Name, err)
	}
	return count, nil
}

func (e *sqliteEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	if e.db != nil {
		_, _ = e.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return e.db.Close()
	}
	return nil
}

// ready checks that the engine is open and the index was ensured.
func (e *sqliteEngine) ready(t EntityType) error {
	if e.closed {
		return errors.New(errors.ErrCodeEngineUnavailable, "engine is closed", nil)
	}
	if !e.ensured[t] {
		return errors.New(errors.ErrCodeIndexNotFound,
			fmt.Sprintf("index for entity type %q is not open (bootstrap not run?)", t), nil)
	}
	return nil
}

// columnsMatch validates the live table columns against the schema.
func (e *sqliteEngine) columnsMatch(ctx context.Context, schema IndexSchema) (bool, error) {
	rows, err := e.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, schema.Name))
	if err != nil {
		return false, fmt.Errorf("failed to inspect index %s: %w", schema.Name, err)
	}
	defer rows.Close()

	var live []string
	for rows.Next() {
		var (
			cid           int
			name, colType string
			notNull, pk   int
			defaultVal    sql.NullString
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, fmt.Errorf("failed to scan column info: %w", err)
		}
		live = append(live, name)
	}
	if err := rows.Err(); err != nil {
		return false, err
	}

	if len(live) != len(schema.Fields) {
		return false, nil
	}
	for i, f := range schema.Fields {
		if live[i] != f.Name {
			return false, nil
		}
	}
	return true, nil
}

// createTableDDL builds the FTS5 virtual table for a schema. Text
// fields are indexed; keyword and date fields are stored UNINDEXED and
// filtered with plain SQL predicates.
func createTableDDL(schema IndexSchema) string {
	cols := make([]string, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		if f.Kind == FieldText {
			cols = append(cols, fmt.Sprintf("%q", f.Name))
		} else {
			cols = append(cols, fmt.Sprintf("%q UNINDEXED", f.Name))
		}
	}
	return fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %q USING fts5(%s, tokenize='unicode61')`,
		schema.Name, strings.Join(cols, ", "))
}

// searchSQL composes the weighted search statement for a schema.
func searchSQL(schema IndexSchema, q Query, matchExpr string) (string, []any) {
	selects := make([]string, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		selects = append(selects, fmt.Sprintf("%q", f.Name))
	}

	// bm25() takes one weight per column in table order; non-search
	// columns get zero so only the weighted fields contribute.
	weights := make([]string, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		w := 0.0
		for _, wf := range schema.SearchFields {
			if wf.Name == f.Name {
				w = wf.Weight
				break
			}
		}
		weights = append(weights, fmt.Sprintf("%g", w))
	}
	selects = append(selects, fmt.Sprintf("bm25(%q, %s) AS score", schema.Name, strings.Join(weights, ", ")))

	for i, f := range schema.Fields {
		if f.Kind != FieldText {
			continue
		}
		selects = append(selects, fmt.Sprintf("snippet(%q, %d, '%s', '%s', '%s', %d)",
			schema.Name, i, highlightOpen, highlightClose, snippetEllipsis, snippetTokens))
	}

	var sb strings.Builder
	args := make([]any, 0, 3+len(q.DocIDs))
	fmt.Fprintf(&sb, `SELECT %s FROM %q WHERE %q MATCH ? AND uid = ?`,
		strings.Join(selects, ", "), schema.Name, schema.Name)
	args = append(args, matchExpr, q.UID)

	if len(q.DocIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(q.DocIDs)), ",")
		fmt.Fprintf(&sb, ` AND id IN (%s)`, placeholders)
		for _, id := range q.DocIDs {
			args = append(args, id)
		}
	}

	sb.WriteString(` ORDER BY score LIMIT ?`)
	args = append(args, q.Limit)

	return sb.String(), args
}

// stringField extracts a stored field value as text ("" when absent).
func stringField(fields map[string]any, name string) string {
	v, ok := fields[name]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// fts5MatchExpr quotes each query token so user input never hits the
// FTS5 query syntax. Tokens are combined with implicit AND.
func fts5MatchExpr(text string) string {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		quoted = append(quoted, `"`+strings.ReplaceAll(tok, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}
