// Package report renders conflict and pattern summaries as XLSX workbooks.
package report

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/basarometer/sourcectl/internal/conflicts"
	"github.com/basarometer/sourcectl/internal/learning"
	"github.com/basarometer/sourcectl/internal/model"
)

var conflictHeader = []string{
	"id", "catalog_item_id", "source_a_id", "price_a", "source_b_id", "price_b",
	"relative_diff", "state", "resolution_method", "resolved_price", "confidence",
	"resolved_by", "admin_notes", "detected_at", "resolved_at",
}

// WriteConflictsXLSX writes a workbook with a "conflicts" sheet, one row per
// conflict, and a "summary" sheet of the resolution stats.
func WriteConflictsXLSX(w io.Writer, cs []model.PriceConflict, stats *conflicts.Stats) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("conflicts")
	if err != nil {
		return eris.Wrap(err, "report: add conflicts sheet")
	}
	addStrings(sheet.AddRow(), conflictHeader...)
	for _, c := range cs {
		row := sheet.AddRow()
		addStrings(row, c.ID, c.CatalogItemID, c.SourceAID)
		row.AddCell().SetFloat(c.PriceA)
		addStrings(row, c.SourceBID)
		row.AddCell().SetFloat(c.PriceB)
		row.AddCell().SetFloat(c.RelativeDiff)
		addStrings(row, string(c.State()), string(c.ResolutionMethod))
		addOptionalFloat(row, c.ResolvedPrice)
		addOptionalFloat(row, c.Confidence)
		addStrings(row, c.ResolvedBy, c.AdminNotes, formatTime(&c.DetectedAt), formatTime(c.ResolvedAt))
	}

	if stats != nil {
		summary, err := f.AddSheet("summary")
		if err != nil {
			return eris.Wrap(err, "report: add summary sheet")
		}
		addStrings(summary.AddRow(), "metric", "value")
		for _, kv := range []struct {
			name string
			v    float64
		}{
			{"total", float64(stats.Total)},
			{"auto_resolved", float64(stats.AutoResolved)},
			{"manual_resolved", float64(stats.ManualResolved)},
			{"pending", float64(stats.Pending)},
			{"resolution_rate", stats.ResolutionRate},
			{"avg_resolution_hours", stats.AvgResolutionHours},
		} {
			row := summary.AddRow()
			addStrings(row, kv.name)
			row.AddCell().SetFloat(kv.v)
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write workbook")
	}
	return nil
}

// WritePatternPerformanceXLSX writes one row per pattern type.
func WritePatternPerformanceXLSX(w io.Writer, perf []learning.TypePerformance) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("patterns")
	if err != nil {
		return eris.Wrap(err, "report: add patterns sheet")
	}

	addStrings(sheet.AddRow(), "pattern_type", "total", "active", "total_uses", "total_successes", "success_rate", "avg_confidence")
	for _, p := range perf {
		row := sheet.AddRow()
		addStrings(row, string(p.Type))
		row.AddCell().SetInt64(p.Total)
		row.AddCell().SetInt64(p.Active)
		row.AddCell().SetInt64(p.TotalUses)
		row.AddCell().SetInt64(p.TotalSuccesses)
		row.AddCell().SetFloat(p.SuccessRate)
		row.AddCell().SetFloat(p.AvgConfidence)
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write workbook")
	}
	return nil
}

func addStrings(row *xlsx.Row, vals ...string) {
	for _, v := range vals {
		row.AddCell().SetString(v)
	}
}

func addOptionalFloat(row *xlsx.Row, v *float64) {
	if v == nil {
		row.AddCell().SetString("")
		return
	}
	row.AddCell().SetFloat(*v)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
