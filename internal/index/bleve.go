package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	hhtml "github.com/blevesearch/bleve/v2/search/highlight/highlighter/html"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/inkwell-ai/docgate/internal/errors"
)

// bleveEngine implements Engine on Bleve v2, one index per entity type.
type bleveEngine struct {
	mu      sync.RWMutex
	dataDir string // empty = in-memory indices for testing
	lock    *DirLock
	indices map[EntityType]bleve.Index
	closed  bool
}

var _ Engine = (*bleveEngine)(nil)

// newBleveEngine constructs the Bleve backend. For a disk-backed engine
// the data directory is locked for the process lifetime.
func newBleveEngine(dataDir string) (*bleveEngine, error) {
	e := &bleveEngine{
		dataDir: dataDir,
		indices: make(map[EntityType]bleve.Index),
	}
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
		}
		e.lock = NewDirLock(dataDir)
		if err := e.lock.Acquire(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *bleveEngine) EnsureIndex(ctx context.Context, schema IndexSchema) (IndexStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return IndexFailed, errors.New(errors.ErrCodeEngineUnavailable, "engine is closed", nil)
	}
	if _, ok := e.indices[schema.Type]; ok {
		return IndexOpened, nil
	}

	im, err := buildIndexMapping(schema)
	if err != nil {
		return IndexFailed, err
	}

	if e.dataDir == "" {
		idx, err := bleve.NewMemOnly(im)
		if err != nil {
			return IndexFailed, fmt.Errorf("failed to create in-memory index %s: %w", schema.Name, err)
		}
		e.indices[schema.Type] = idx
		return IndexCreated, nil
	}

	path := filepath.Join(e.dataDir, schema.Name+".bleve")
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, im)
		if err != nil {
			return IndexFailed, fmt.Errorf("failed to create index %s: %w", schema.Name, err)
		}
		e.indices[schema.Type] = idx
		return IndexCreated, nil
	}
	if err != nil {
		return IndexFailed, fmt.Errorf("failed to open index %s: %w", schema.Name, err)
	}

	e.indices[schema.Type] = idx
	if !mappingsEqual(idx.Mapping(), im) {
		return IndexMismatch, nil
	}
	return IndexOpened, nil
}

func (e *bleveEngine) Upsert(ctx context.Context, schema IndexSchema, id string, fields map[string]any) error {
	idx, err := e.index(schema.Type)
	if err != nil {
		return err
	}
	if err := idx.Index(id, fields); err != nil {
		return fmt.Errorf("failed to index document %s: %w", id, err)
	}
	return nil
}

func (e *bleveEngine) Delete(ctx context.Context, schema IndexSchema, id string) error {
	idx, err := e.index(schema.Type)
	if err != nil {
		return err
	}

	doc, err := idx.Document(id)
	if err != nil {
		return fmt.Errorf("failed to look up document %s: %w", id, err)
	}
	if doc == nil {
		return errors.New(errors.ErrCodeDocNotFound,
			fmt.Sprintf("document %s not found in index %s", id, schema.Name), nil)
	}

	if err := idx.Delete(id); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

func (e *bleveEngine) Search(ctx context.Context, schema IndexSchema, q Query) ([]Hit, error) {
	idx, err := e.index(schema.Type)
	if err != nil {
		return nil, err
	}

	uidQuery := bleve.NewTermQuery(q.UID)
	uidQuery.SetField("uid")

	fieldQueries := make([]query.Query, 0, len(schema.SearchFields))
	for _, wf := range schema.SearchFields {
		mq := bleve.NewMatchQuery(q.Text)
		mq.SetField(wf.Name)
		mq.SetBoost(wf.Weight)
		fieldQueries = append(fieldQueries, mq)
	}
	// Disjunction over the weighted fields sums scores from every
	// matching field (most-fields semantics).
	textQuery := bleve.NewDisjunctionQuery(fieldQueries...)

	boolQuery := bleve.NewBooleanQuery()
	boolQuery.AddMust(uidQuery, textQuery)
	if len(q.DocIDs) > 0 {
		boolQuery.AddMust(bleve.NewDocIDQuery(q.DocIDs))
	}

	req := bleve.NewSearchRequestOptions(boolQuery, q.Limit, 0, false)
	req.Fields = []string{"*"}
	req.Highlight = bleve.NewHighlightWithStyle(hhtml.Name)
	for _, wf := range schema.SearchFields {
		req.Highlight.AddField(wf.Name)
	}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed on index %s: %w", schema.Name, err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{
			ID:     h.ID,
			Score:  h.Score,
			Source: h.Fields,
		}
		if len(h.Fragments) > 0 {
			hit.Highlight = h.Fragments
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (e *bleveEngine) DocCount(ctx context.Context, schema IndexSchema) (uint64, error) {
	idx, err := e.index(schema.Type)
	if err != nil {
		return 0, err
	}
	return idx.DocCount()
}

func (e *bleveEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	for t, idx := range e.indices {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close index for %s: %w", t, err)
		}
	}
	if e.lock != nil {
		if err := e.lock.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// index returns the open index for t, failing if bootstrap has not run.
func (e *bleveEngine) index(t EntityType) (bleve.Index, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, errors.New(errors.ErrCodeEngineUnavailable, "engine is closed", nil)
	}
	idx, ok := e.indices[t]
	if !ok {
		return nil, errors.New(errors.ErrCodeIndexNotFound,
			fmt.Sprintf("index for entity type %q is not open (bootstrap not run?)", t), nil)
	}
	return idx, nil
}

// buildIndexMapping translates a registry schema to a Bleve mapping.
// Each index holds a single document type, so the schema becomes the
// default document mapping.
func buildIndexMapping(schema IndexSchema) (*mapping.IndexMappingImpl, error) {
	docMapping := bleve.NewDocumentMapping()
	docMapping.Dynamic = false

	for _, f := range schema.Fields {
		var fm *mapping.FieldMapping
		switch f.Kind {
		case FieldText:
			fm = bleve.NewTextFieldMapping()
		case FieldKeyword:
			fm = bleve.NewKeywordFieldMapping()
		case FieldDate:
			fm = bleve.NewDateTimeFieldMapping()
		default:
			return nil, fmt.Errorf("schema %s: unsupported field kind %q", schema.Name, f.Kind)
		}
		docMapping.AddFieldMappingsAt(f.Name, fm)
	}

	im := bleve.NewIndexMapping()
	im.DefaultMapping = docMapping
	return im, nil
}

// mappingsEqual compares a live index mapping against the registry's by
// JSON fingerprint. Both sides are IndexMappingImpl values produced by
// buildIndexMapping, so a byte comparison is stable.
func mappingsEqual(live mapping.IndexMapping, want *mapping.IndexMappingImpl) bool {
	liveJSON, err := json.Marshal(live)
	if err != nil {
		return false
	}
	wantJSON, err := json.Marshal(want)
	if err != nil {
		return false
	}
	return bytes.Equal(liveJSON, wantJSON)
}
