package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/inkwell-ai/docgate/internal/errors"
)

// DefaultMaxLimit caps search result sizes when no limit cap is configured.
const DefaultMaxLimit = 100

// Gateway is the stateless façade over the search engine: five typed
// upsert/delete pairs and five typed searches, all delegating to one
// generic parameterized path. The engine is the sole source of truth.
type Gateway struct {
	registry *Registry
	engine   Engine
	log      *slog.Logger
	maxLimit int
}

// Options configures a Gateway.
type Options struct {
	// Engine is the injected search-engine client (required).
	Engine Engine
	// Registry is the schema table; nil uses DefaultRegistry.
	Registry *Registry
	// Logger is the structured logger; nil uses slog.Default.
	Logger *slog.Logger
	// MaxLimit caps requested search limits; <= 0 uses DefaultMaxLimit.
	MaxLimit int
}

// New constructs a Gateway. Call Bootstrap before serving traffic and
// Close on teardown.
func New(opts Options) (*Gateway, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("gateway: engine is required")
	}
	reg := opts.Registry
	if reg == nil {
		reg = DefaultRegistry()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	maxLimit := opts.MaxLimit
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	return &Gateway{
		registry: reg,
		engine:   opts.Engine,
		log:      log,
		maxLimit: maxLimit,
	}, nil
}

// Registry exposes the schema table (read-only).
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Close releases the underlying engine.
func (g *Gateway) Close() error {
	return g.engine.Close()
}

// DocCount returns the number of documents indexed for t.
func (g *Gateway) DocCount(ctx context.Context, t EntityType) (uint64, error) {
	schema, err := g.registry.ForType(t)
	if err != nil {
		return 0, errors.New(errors.ErrCodeUnknownEntityType, err.Error(), nil)
	}
	return g.engine.DocCount(ctx, schema)
}

// Upsert writes the full document into t's index, keyed by its id.
// Re-upserting the same id replaces the stored body in place.
func (g *Gateway) Upsert(ctx context.Context, t EntityType, doc Document) error {
	schema, err := g.registry.ForType(t)
	if err != nil {
		return errors.New(errors.ErrCodeUnknownEntityType, err.Error(), nil)
	}
	if strings.TrimSpace(doc.DocID()) == "" {
		return errors.New(errors.ErrCodeEmptyDocID,
			fmt.Sprintf("%s document has no id", t), nil)
	}
	if strings.TrimSpace(doc.OwnerUID()) == "" {
		return errors.New(errors.ErrCodeEmptyUID,
			fmt.Sprintf("%s document %s has no uid", t, doc.DocID()), nil)
	}

	if err := g.engine.Upsert(ctx, schema, doc.DocID(), doc.Fields()); err != nil {
		g.log.Error("upsert failed",
			slog.String("type", string(t)),
			slog.String("id", doc.DocID()),
			slog.String("error", err.Error()))
		return errors.Wrap(errors.ErrCodeUpsertFailed, err)
	}

	g.log.Debug("document upserted",
		slog.String("type", string(t)),
		slog.String("index", schema.Name),
		slog.String("id", doc.DocID()))
	return nil
}

// Delete removes the document with id from t's index. Deletion is
// best-effort: an unknown id returns the engine's not-found error and
// callers decide whether that matters.
func (g *Gateway) Delete(ctx context.Context, t EntityType, id string) error {
	schema, err := g.registry.ForType(t)
	if err != nil {
		return errors.New(errors.ErrCodeUnknownEntityType, err.Error(), nil)
	}
	if strings.TrimSpace(id) == "" {
		return errors.New(errors.ErrCodeEmptyDocID, "delete requires a document id", nil)
	}

	if err := g.engine.Delete(ctx, schema, id); err != nil {
		g.log.Error("delete failed",
			slog.String("type", string(t)),
			slog.String("id", id),
			slog.String("error", err.Error()))
		if errors.IsNotFound(err) {
			return err
		}
		return errors.Wrap(errors.ErrCodeDeleteFailed, err)
	}

	g.log.Debug("document deleted",
		slog.String("type", string(t)),
		slog.String("index", schema.Name),
		slog.String("id", id))
	return nil
}

// Search runs a uid-scoped weighted full-text search over t's index.
// The entity filter, when present, restricts hits to that id set for
// every entity type. Results never exceed the requested limit.
func (g *Gateway) Search(ctx context.Context, t EntityType, user User, req SearchRequest) ([]Hit, error) {
	schema, err := g.registry.ForType(t)
	if err != nil {
		return nil, errors.New(errors.ErrCodeUnknownEntityType, err.Error(), nil)
	}
	if strings.TrimSpace(user.UID) == "" {
		return nil, errors.New(errors.ErrCodeEmptyUID, "search requires a user uid", nil)
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.New(errors.ErrCodeEmptyQuery, "search query must not be empty", nil)
	}
	if req.Limit < 0 {
		return nil, errors.New(errors.ErrCodeInvalidLimit,
			fmt.Sprintf("limit must be non-negative, got %d", req.Limit), nil)
	}

	limit := req.Limit
	if limit == 0 || limit > g.maxLimit {
		limit = g.maxLimit
	}

	hits, err := g.engine.Search(ctx, schema, Query{
		UID:    user.UID,
		Text:   req.Query,
		Limit:  limit,
		DocIDs: req.Entities,
	})
	if err != nil {
		g.log.Error("search failed",
			slog.String("type", string(t)),
			slog.String("uid", user.UID),
			slog.String("error", err.Error()))
		return nil, errors.Wrap(errors.ErrCodeSearchFailed, err)
	}
	return hits, nil
}

// Typed write entry points, one pair per entity type. The owning
// services call upsert on create/update and delete on removal.

func (g *Gateway) UpsertResource(ctx context.Context, doc ResourceDocument) error {
	return g.Upsert(ctx, TypeResource, doc)
}

func (g *Gateway) DeleteResource(ctx context.Context, id string) error {
	return g.Delete(ctx, TypeResource, id)
}

func (g *Gateway) UpsertNote(ctx context.Context, doc NoteDocument) error {
	return g.Upsert(ctx, TypeNote, doc)
}

func (g *Gateway) DeleteNote(ctx context.Context, id string) error {
	return g.Delete(ctx, TypeNote, id)
}

func (g *Gateway) UpsertCollection(ctx context.Context, doc CollectionDocument) error {
	return g.Upsert(ctx, TypeCollection, doc)
}

func (g *Gateway) DeleteCollection(ctx context.Context, id string) error {
	return g.Delete(ctx, TypeCollection, id)
}

func (g *Gateway) UpsertConversationMessage(ctx context.Context, doc ConversationMessageDocument) error {
	return g.Upsert(ctx, TypeConversationMessage, doc)
}

func (g *Gateway) DeleteConversationMessage(ctx context.Context, id string) error {
	return g.Delete(ctx, TypeConversationMessage, id)
}

func (g *Gateway) UpsertSkill(ctx context.Context, doc SkillDocument) error {
	return g.Upsert(ctx, TypeSkill, doc)
}

func (g *Gateway) DeleteSkill(ctx context.Context, id string) error {
	return g.Delete(ctx, TypeSkill, id)
}

// Typed search entry points.

func (g *Gateway) SearchResources(ctx context.Context, user User, req SearchRequest) ([]Hit, error) {
	return g.Search(ctx, TypeResource, user, req)
}

func (g *Gateway) SearchNotes(ctx context.Context, user User, req SearchRequest) ([]Hit, error) {
	return g.Search(ctx, TypeNote, user, req)
}

func (g *Gateway) SearchCollections(ctx context.Context, user User, req SearchRequest) ([]Hit, error) {
	return g.Search(ctx, TypeCollection, user, req)
}

func (g *Gateway) SearchConversationMessages(ctx context.Context, user User, req SearchRequest) ([]Hit, error) {
	return g.Search(ctx, TypeConversationMessage, user, req)
}

func (g *Gateway) SearchSkills(ctx context.Context, user User, req SearchRequest) ([]Hit, error) {
	return g.Search(ctx, TypeSkill, user, req)
}
