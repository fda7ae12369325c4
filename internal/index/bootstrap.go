package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/inkwell-ai/docgate/internal/errors"
)

// IndexHealth is the bootstrap outcome for one index.
type IndexHealth struct {
	Type   EntityType  `json:"type"`
	Index  string      `json:"index"`
	Status IndexStatus `json:"status"`
	Error  string      `json:"error,omitempty"`
}

// Report summarizes a bootstrap run across all registered indices.
type Report struct {
	Indices []IndexHealth `json:"indices"`
}

// Healthy reports whether every index is usable (created or opened;
// a mapping mismatch is degraded but still serves traffic).
func (r Report) Healthy() bool {
	for _, h := range r.Indices {
		if h.Status == IndexFailed {
			return false
		}
	}
	return true
}

// Err aggregates per-index failures into a single error, or nil.
func (r Report) Err() error {
	var failed []string
	for _, h := range r.Indices {
		if h.Status == IndexFailed {
			failed = append(failed, fmt.Sprintf("%s: %s", h.Index, h.Error))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return errors.New(errors.ErrCodeBootstrapFailed,
		fmt.Sprintf("%d of %d indices failed to bootstrap", len(failed), len(r.Indices)), nil).
		WithDetail("failures", fmt.Sprint(failed))
}

// Bootstrap ensures every registered index exists, creating missing
// ones with their registry mapping. All indices are checked
// concurrently and a failure on one never aborts the others; the
// caller decides from the report whether to start serving. Running
// bootstrap against an already-initialized engine is a no-op.
func (g *Gateway) Bootstrap(ctx context.Context) Report {
	schemas := g.registry.All()
	healths := make([]IndexHealth, len(schemas))

	var mu sync.Mutex
	grp, ctx := errgroup.WithContext(ctx)
	for i, schema := range schemas {
		grp.Go(func() error {
			status, err := g.engine.EnsureIndex(ctx, schema)
			h := IndexHealth{Type: schema.Type, Index: schema.Name, Status: status}
			if err != nil {
				h.Status = IndexFailed
				h.Error = err.Error()
			}
			mu.Lock()
			healths[i] = h
			mu.Unlock()
			// Failures are isolated per index; never cancel the group.
			return nil
		})
	}
	_ = grp.Wait()

	report := Report{Indices: healths}
	for _, h := range report.Indices {
		switch h.Status {
		case IndexFailed:
			g.log.Error("index bootstrap failed",
				slog.String("index", h.Index),
				slog.String("error", h.Error))
		case IndexMismatch:
			g.log.Warn("index mapping differs from registry schema",
				slog.String("index", h.Index))
		default:
			g.log.Debug("index ready",
				slog.String("index", h.Index),
				slog.String("status", string(h.Status)))
		}
	}
	g.log.Info("bootstrap complete",
		slog.Int("indices", len(report.Indices)),
		slog.Bool("healthy", report.Healthy()))
	return report
}
