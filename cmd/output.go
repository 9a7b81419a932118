package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/basarometer/sourcectl/internal/discovery"
	"github.com/basarometer/sourcectl/internal/model"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatSummary writes a one-line batch summary followed by its failures.
func formatSummary(w io.Writer, label string, s model.Summary) {
	fmt.Fprintf(w, "%s: %d total, %d succeeded, %d skipped, %d failed\n",
		label, s.Total, s.Succeeded, s.Skipped, s.Failed)
	for _, f := range s.Failures {
		fmt.Fprintf(w, "  %s: %s\n", f.ID, f.Error)
	}
}

func formatSources(w io.Writer, sources []model.Source) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSCORE\tNAME\tURL")
	for _, s := range sources {
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\t%s\n", s.ID, s.Status, s.ReliabilityScore, s.Name, s.URL)
	}
	_ = tw.Flush()
}

func formatStatusCounts(w io.Writer, counts []discovery.StatusCount) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tCOUNT\tAVG SCORE")
	for _, c := range counts {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\n", c.Status, c.Count, c.AvgScore)
	}
	_ = tw.Flush()
}

func formatConflicts(w io.Writer, cs []model.PriceConflict) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tITEM\tSOURCE A\tPRICE A\tSOURCE B\tPRICE B\tDIFF\tSTATE")
	for i := range cs {
		c := &cs[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%.2f\t%.1f%%\t%s\n",
			c.ID, c.CatalogItemID, c.SourceAID, c.PriceA, c.SourceBID, c.PriceB, c.RelativeDiff*100, c.State())
	}
	_ = tw.Flush()
}

func formatSessions(w io.Writer, sessions []discovery.Session) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMETHOD\tSTATUS\tCANDIDATES\tVALID\tINSERTED\tSTARTED")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			s.ID, s.Method, s.Status, s.Total, s.Valid, s.Inserted, s.StartedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}
