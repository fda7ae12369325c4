package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/inkwell-ai/docgate/internal/index"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and document counts",
		Long: `Open the configured data directory, check every index against its
registered schema, and report per-index status and document counts.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")
	return cmd
}

type indexStatus struct {
	Index    string `json:"index"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	DocCount uint64 `json:"doc_count"`
	Error    string `json:"error,omitempty"`
}

func runStatus(ctx context.Context, out io.Writer, jsonOutput bool) error {
	gw, err := openGateway()
	if err != nil {
		return err
	}
	defer func() { _ = gw.Close() }()

	report := gw.Bootstrap(ctx)

	statuses := make([]indexStatus, 0, len(report.Indices))
	for _, h := range report.Indices {
		st := indexStatus{
			Index:  h.Index,
			Type:   string(h.Type),
			Status: string(h.Status),
			Error:  h.Error,
		}
		if h.Status != index.IndexFailed {
			if n, err := gw.DocCount(ctx, h.Type); err == nil {
				st.DocCount = n
			}
		}
		statuses = append(statuses, st)
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"healthy": report.Healthy(),
			"indices": statuses,
		})
	}

	for _, st := range statuses {
		line := fmt.Sprintf("%-22s %-10s %d docs", st.Index, st.Status, st.DocCount)
		if st.Error != "" {
			line += "  (" + st.Error + ")"
		}
		fmt.Fprintln(out, line)
	}
	if !report.Healthy() {
		fmt.Fprintln(out, "status: degraded")
	} else {
		fmt.Fprintln(out, "status: healthy")
	}
	return nil
}
