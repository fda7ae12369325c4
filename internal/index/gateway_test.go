package index

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/docgate/internal/errors"
)

// newTestGateway builds an in-memory gateway on the given backend and
// runs bootstrap.
func newTestGateway(t *testing.T, backend string) *Gateway {
	t.Helper()

	engine, err := NewEngine(EngineConfig{Backend: backend})
	require.NoError(t, err)

	gw, err := New(Options{
		Engine: engine,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })

	report := gw.Bootstrap(context.Background())
	require.True(t, report.Healthy(), "bootstrap must succeed: %+v", report)
	return gw
}

// forEachBackend runs fn against both engine backends.
func forEachBackend(t *testing.T, fn func(t *testing.T, gw *Gateway)) {
	for _, backend := range []string{"bleve", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			fn(t, newTestGateway(t, backend))
		})
	}
}

func TestGateway_Upsert_IdempotentByID(t *testing.T) {
	forEachBackend(t, func(t *testing.T, gw *Gateway) {
		ctx := context.Background()

		// Given: the same id upserted twice with different field values
		require.NoError(t, gw.UpsertResource(ctx, ResourceDocument{
			ID: "r1", Title: "first draft", Content: "old body", UID: "u1",
		}))
		require.NoError(t, gw.UpsertResource(ctx, ResourceDocument{
			ID: "r1", Title: "final draft", Content: "new body", UID: "u1",
		}))

		// Then: exactly one document exists at that id
		count, err := gw.DocCount(ctx, TypeResource)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), count)

		// And: searching finds the latest field values
		hits, err := gw.SearchResources(ctx, User{UID: "u1"}, SearchRequest{Query: "final", Limit: 10})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "r1", hits[0].ID)

		hits, err = gw.SearchResources(ctx, User{UID: "u1"}, SearchRequest{Query: "first", Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestGateway_Search_ScopedToUID(t *testing.T) {
	forEachBackend(t, func(t *testing.T, gw *Gateway) {
		ctx := context.Background()

		// Given: two users with documents matching the same term
		require.NoError(t, gw.UpsertNote(ctx, NoteDocument{
			ID: "n1", Title: "meeting notes", Content: "budget review", UID: "u1",
		}))
		require.NoError(t, gw.UpsertNote(ctx, NoteDocument{
			ID: "n2", Title: "meeting notes", Content: "budget review", UID: "u2",
		}))

		// When: each user searches
		hitsU1, err := gw.SearchNotes(ctx, User{UID: "u1"}, SearchRequest{Query: "budget", Limit: 10})
		require.NoError(t, err)
		hitsU2, err := gw.SearchNotes(ctx, User{UID: "u2"}, SearchRequest{Query: "budget", Limit: 10})
		require.NoError(t, err)

		// Then: neither user sees the other's documents
		require.Len(t, hitsU1, 1)
		assert.Equal(t, "n1", hitsU1[0].ID)
		require.Len(t, hitsU2, 1)
		assert.Equal(t, "n2", hitsU2[0].ID)
	})
}

func TestGateway_Search_TitleWeightedOverBody(t *testing.T) {
	forEachBackend(t, func(t *testing.T, gw *Gateway) {
		ctx := context.Background()

		// Given: two documents differing only in which field holds the term
		require.NoError(t, gw.UpsertNote(ctx, NoteDocument{
			ID: "title-hit", Title: "quantum physics", Content: "general science notes", UID: "u1",
		}))
		require.NoError(t, gw.UpsertNote(ctx, NoteDocument{
			ID: "body-hit", Title: "general science notes", Content: "quantum physics", UID: "u1",
		}))

		// When: searching the shared term
		hits, err := gw.SearchNotes(ctx, User{UID: "u1"}, SearchRequest{Query: "quantum", Limit: 10})
		require.NoError(t, err)
		require.Len(t, hits, 2)

		// Then: the title match ranks at or above the body match
		assert.Equal(t, "title-hit", hits[0].ID)
		assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
	})
}

func TestGateway_Search_EntityFilterRestrictsResults(t *testing.T) {
	forEachBackend(t, func(t *testing.T, gw *Gateway) {
		ctx := context.Background()

		// Given: three matching resources
		for _, id := range []string{"r1", "r2", "r3"} {
			require.NoError(t, gw.UpsertResource(ctx, ResourceDocument{
				ID: id, Title: "golang tutorial", UID: "u1",
			}))
		}

		// When: searching within an explicit entity subset
		hits, err := gw.SearchResources(ctx, User{UID: "u1"}, SearchRequest{
			Query:    "golang",
			Limit:    10,
			Entities: []string{"r1", "r3"},
		})
		require.NoError(t, err)

		// Then: results are a subset of the supplied ids
		require.Len(t, hits, 2)
		for _, h := range hits {
			assert.Contains(t, []string{"r1", "r3"}, h.ID)
		}
	})
}

func TestGateway_Search_EntityFilterAppliesToAllTypes(t *testing.T) {
	forEachBackend(t, func(t *testing.T, gw *Gateway) {
		ctx := context.Background()

		// Conversation messages and skills honor the entity filter too.
		for _, id := range []string{"m1", "m2"} {
			require.NoError(t, gw.UpsertConversationMessage(ctx, ConversationMessageDocument{
				ID: id, Content: "deployment checklist", Type: MessageKindAI, UID: "u1",
			}))
		}
		for _, id := range []string{"s1", "s2"} {
			require.NoError(t, gw.UpsertSkill(ctx, SkillDocument{
				ID: id, DisplayName: "summarize article", UID: "u1",
			}))
		}

		hits, err := gw.SearchConversationMessages(ctx, User{UID: "u1"}, SearchRequest{
			Query: "deployment", Limit: 10, Entities: []string{"m2"},
		})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "m2", hits[0].ID)

		hits, err = gw.SearchSkills(ctx, User{UID: "u1"}, SearchRequest{
			Query: "summarize", Limit: 10, Entities: []string{"s1"},
		})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "s1", hits[0].ID)
	})
}

func TestGateway_Search_LimitCapsResults(t *testing.T) {
	forEachBackend(t, func(t *testing.T, gw *Gateway) {
		ctx := context.Background()

		for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
			require.NoError(t, gw.UpsertCollection(ctx, CollectionDocument{
				ID: id, Title: "research papers", UID: "u1",
			}))
		}

		hits, err := gw.SearchCollections(ctx, User{UID: "u1"}, SearchRequest{Query: "research", Limit: 2})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(hits), 2)
	})
}

// End-to-end scenario: upsert, scoped search with highlight, delete.
func TestGateway_QuantumScenario(t *testing.T) {
	forEachBackend(t, func(t *testing.T, gw *Gateway) {
		ctx := context.Background()

		require.NoError(t, gw.UpsertResource(ctx, ResourceDocument{
			ID:        "r1",
			Title:     "Quantum Computing",
			Content:   "intro to qubits",
			UID:       "u1",
			CreatedAt: time.Now(),
		}))

		// Owner finds the document with a highlighted title snippet
		hits, err := gw.SearchResources(ctx, User{UID: "u1"}, SearchRequest{Query: "quantum", Limit: 5})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "r1", hits[0].ID)
		require.Contains(t, hits[0].Highlight, "title")
		assert.True(t, strings.Contains(hits[0].Highlight["title"][0], "<mark>"),
			"title fragment should carry highlight markers: %q", hits[0].Highlight["title"])

		// Another user sees nothing
		hits, err = gw.SearchResources(ctx, User{UID: "u2"}, SearchRequest{Query: "quantum", Limit: 5})
		require.NoError(t, err)
		assert.Empty(t, hits)

		// After delete the document is gone
		require.NoError(t, gw.DeleteResource(ctx, "r1"))
		hits, err = gw.SearchResources(ctx, User{UID: "u1"}, SearchRequest{Query: "quantum", Limit: 5})
		require.NoError(t, err)
		assert.Empty(t, hits)

		// Deleting again surfaces not-found
		err = gw.DeleteResource(ctx, "r1")
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestGateway_Validation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, gw *Gateway) {
		ctx := context.Background()

		// Empty query
		_, err := gw.SearchNotes(ctx, User{UID: "u1"}, SearchRequest{Query: "   ", Limit: 5})
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeEmptyQuery, errors.GetCode(err))

		// Negative limit
		_, err = gw.SearchNotes(ctx, User{UID: "u1"}, SearchRequest{Query: "x", Limit: -1})
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeInvalidLimit, errors.GetCode(err))

		// Missing uid
		_, err = gw.SearchNotes(ctx, User{}, SearchRequest{Query: "x", Limit: 5})
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeEmptyUID, errors.GetCode(err))

		// Upsert without id
		err = gw.UpsertNote(ctx, NoteDocument{Title: "no id", UID: "u1"})
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeEmptyDocID, errors.GetCode(err))

		// Upsert without uid
		err = gw.UpsertNote(ctx, NoteDocument{ID: "n1", Title: "no owner"})
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeEmptyUID, errors.GetCode(err))

		// Delete without id
		err = gw.DeleteNote(ctx, "")
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeEmptyDocID, errors.GetCode(err))
	})
}

func TestGateway_Search_ZeroLimitUsesCap(t *testing.T) {
	forEachBackend(t, func(t *testing.T, gw *Gateway) {
		ctx := context.Background()

		require.NoError(t, gw.UpsertNote(ctx, NoteDocument{
			ID: "n1", Title: "daily standup", UID: "u1",
		}))

		hits, err := gw.SearchNotes(ctx, User{UID: "u1"}, SearchRequest{Query: "standup"})
		require.NoError(t, err)
		assert.Len(t, hits, 1)
	})
}

func TestGateway_Search_BeforeBootstrapFails(t *testing.T) {
	for _, backend := range []string{"bleve", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			engine, err := NewEngine(EngineConfig{Backend: backend})
			require.NoError(t, err)
			t.Cleanup(func() { _ = engine.Close() })

			gw, err := New(Options{
				Engine: engine,
				Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
			})
			require.NoError(t, err)

			_, err = gw.SearchNotes(context.Background(), User{UID: "u1"},
				SearchRequest{Query: "anything", Limit: 5})
			require.Error(t, err)
		})
	}
}

func TestGateway_Search_SpecialCharacterQueryIsSafe(t *testing.T) {
	forEachBackend(t, func(t *testing.T, gw *Gateway) {
		ctx := context.Background()

		require.NoError(t, gw.UpsertNote(ctx, NoteDocument{
			ID: "n1", Title: "plain note", UID: "u1",
		}))

		// Query syntax characters must not break the engine.
		for _, q := range []string{`"unbalanced`, `a AND (b OR`, `c++ --flag`} {
			_, err := gw.SearchNotes(ctx, User{UID: "u1"}, SearchRequest{Query: q, Limit: 5})
			require.NoError(t, err, "query %q should not error", q)
		}
	})
}
