package intake

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/basarometer/sourcectl/internal/discovery"
	"github.com/basarometer/sourcectl/internal/model"
)

// Format names an input encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", eris.Wrapf(model.ErrInvalidInput, "unsupported file type %q", filepath.Ext(path))
	}
}

// candidateColumns maps accepted header names to Candidate fields.
var candidateColumns = map[string]func(*discovery.Candidate, string){
	"url":           func(c *discovery.Candidate, v string) { c.URL = v },
	"name":          func(c *discovery.Candidate, v string) { c.Name = v },
	"location":      func(c *discovery.Candidate, v string) { c.Location = v },
	"business_type": func(c *discovery.Candidate, v string) { c.BusinessType = v },
	"description":   func(c *discovery.Candidate, v string) { c.Description = v },
	"has_contact": func(c *discovery.Candidate, v string) {
		c.HasContact = v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	},
}

// ReadCandidatesFile reads a candidate list, choosing the format from the
// file extension.
func ReadCandidatesFile(ctx context.Context, path string) ([]discovery.Candidate, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	if format == FormatXLSX {
		rows, err := readXLSXRows(path)
		if err != nil {
			return nil, err
		}
		return candidatesFromRows(rows)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "intake: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	return ReadCandidates(ctx, f, format)
}

// ReadCandidates reads candidates from CSV with a header row, or from a JSON
// array. XLSX needs a file and goes through ReadCandidatesFile.
func ReadCandidates(ctx context.Context, r io.Reader, format Format) ([]discovery.Candidate, error) {
	switch format {
	case FormatJSON:
		out, err := collect(DecodeJSONArray[discovery.Candidate](ctx, r))
		if err != nil {
			return nil, err
		}
		for i := range out {
			if strings.TrimSpace(out[i].URL) == "" {
				return nil, eris.Wrapf(model.ErrInvalidInput, "candidate %d: url is required", i)
			}
		}
		return out, nil
	case FormatCSV:
		rows, err := collect(StreamCSV(ctx, r, ','))
		if err != nil {
			return nil, err
		}
		return candidatesFromRows(rows)
	default:
		return nil, eris.Wrapf(model.ErrInvalidInput, "unsupported candidate format %q", format)
	}
}

// candidatesFromRows maps tabular rows with a header to candidates. Unknown
// columns are ignored and blank rows skipped.
func candidatesFromRows(rows [][]string) ([]discovery.Candidate, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	setters := make([]func(*discovery.Candidate, string), len(rows[0]))
	hasURL := false
	for i, h := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		setters[i] = candidateColumns[key]
		if key == "url" {
			hasURL = true
		}
	}
	if !hasURL {
		return nil, eris.Wrap(model.ErrInvalidInput, "candidate header has no url column")
	}

	var out []discovery.Candidate
	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		var c discovery.Candidate
		for i, v := range row {
			if i < len(setters) && setters[i] != nil {
				setters[i](&c, strings.TrimSpace(v))
			}
		}
		if c.URL == "" {
			return nil, eris.Wrapf(model.ErrInvalidInput, "row %d: url is required", n+2)
		}
		out = append(out, c)
	}
	return out, nil
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// readXLSXRows returns the cells of the first sheet.
func readXLSXRows(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "intake: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Wrap(model.ErrInvalidInput, "intake: workbook has no sheets")
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
