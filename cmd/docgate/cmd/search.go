package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inkwell-ai/docgate/internal/index"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	entityType string
	uid        string
	limit      int
	entities   []string
	format     string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search an index directly, without the HTTP server",
		Long: `Search one entity type's index against the local data directory.

Examples:
  docgate search "quantum computing" --type resource --uid u1
  docgate search "meeting notes" --type note --uid u1 --limit 5
  docgate search "summarizer" --type skill --uid u1 --entity s1 --entity s2
  docgate search "qubits" --type resource --uid u1 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd.OutOrStdout(), query, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.entityType, "type", "t", "resource", "Entity type: resource, note, collection, conversationMessage, skill")
	cmd.Flags().StringVarP(&opts.uid, "uid", "u", "", "User id to scope the search to (required)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringSliceVarP(&opts.entities, "entity", "e", nil, "Restrict to specific document ids (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	_ = cmd.MarkFlagRequired("uid")

	return cmd
}

func runSearch(ctx context.Context, out io.Writer, query string, opts searchOptions) error {
	entityType, err := index.ParseEntityType(opts.entityType)
	if err != nil {
		return err
	}

	gw, err := openGateway()
	if err != nil {
		return err
	}
	defer func() { _ = gw.Close() }()

	report := gw.Bootstrap(ctx)
	if err := report.Err(); err != nil {
		return err
	}

	hits, err := gw.Search(ctx, entityType, index.User{UID: opts.uid}, index.SearchRequest{
		Query:    query,
		Limit:    opts.limit,
		Entities: opts.entities,
	})
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}

	if len(hits) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	for i, hit := range hits {
		fmt.Fprintf(out, "%d. %s (score %.3f)\n", i+1, hit.ID, hit.Score)
		for field, fragments := range hit.Highlight {
			for _, frag := range fragments {
				fmt.Fprintf(out, "   %s: %s\n", field, frag)
			}
		}
	}
	return nil
}

// openGateway builds a gateway against the configured local engine.
func openGateway() (*index.Gateway, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	engine, err := index.NewEngine(index.EngineConfig{
		Backend: cfg.Engine.Backend,
		DataDir: cfg.Engine.DataDir,
	})
	if err != nil {
		return nil, err
	}

	return index.New(index.Options{
		Engine:   engine,
		Logger:   slog.Default(),
		MaxLimit: cfg.Search.MaxLimit,
	})
}
