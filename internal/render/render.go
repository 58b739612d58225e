// Package render writes command output as a table, TSV, JSON, NDJSON or
// YAML.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"
)

// Format represents an output format
type Format string

const (
	FormatTable  Format = "table"
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
	FormatYAML   Format = "yaml"
	FormatTSV    Format = "tsv"
)

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatNDJSON, FormatYAML, FormatTSV:
		return f, nil
	case "":
		return FormatTable, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, tsv, json, ndjson or yaml)", s)
}

// Options for rendering
type Options struct {
	Format    Format
	Porcelain bool
}

// Renderer handles output rendering
type Renderer struct {
	writer io.Writer
	opts   Options
}

// NewRenderer creates a new renderer
func NewRenderer(writer io.Writer, opts Options) *Renderer {
	return &Renderer{
		writer: writer,
		opts:   opts,
	}
}

// Tabular is implemented by values that have a row-oriented view.
type Tabular interface {
	Headers() []string
	Rows() [][]string
}

// Render writes data in the configured format. Table and TSV output need
// data to implement Tabular; structured formats encode data directly.
func (r *Renderer) Render(data any) error {
	switch r.opts.Format {
	case FormatJSON:
		return r.RenderJSON(data)
	case FormatYAML:
		return r.RenderYAML(data)
	case FormatNDJSON:
		if t, ok := data.(interface{ Items() []any }); ok {
			return r.RenderNDJSON(t.Items())
		}
		return r.RenderNDJSON([]any{data})
	}

	t, ok := data.(Tabular)
	if !ok {
		return fmt.Errorf("%T has no %s view", data, r.opts.Format)
	}
	if r.opts.Format == FormatTSV {
		return r.RenderTSV(t.Headers(), t.Rows())
	}
	return r.RenderTable(t.Headers(), t.Rows())
}

// RenderJSON renders data as JSON
func (r *Renderer) RenderJSON(data any) error {
	encoder := json.NewEncoder(r.writer)
	encoder.SetEscapeHTML(false)
	if !r.opts.Porcelain {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// RenderNDJSON renders data as newline-delimited JSON
func (r *Renderer) RenderNDJSON(items []any) error {
	encoder := json.NewEncoder(r.writer)
	encoder.SetEscapeHTML(false)
	for _, item := range items {
		if err := encoder.Encode(item); err != nil {
			return err
		}
	}
	return nil
}

// RenderYAML renders data as YAML
func (r *Renderer) RenderYAML(data any) error {
	encoder := yaml.NewEncoder(r.writer)
	defer encoder.Close()
	return encoder.Encode(data)
}

// RenderTSV renders data as tab-separated values
func (r *Renderer) RenderTSV(headers []string, rows [][]string) error {
	if _, err := fmt.Fprintln(r.writer, strings.Join(headers, "\t")); err != nil {
		return err
	}

	for _, row := range rows {
		if _, err := fmt.Fprintln(r.writer, strings.Join(tsvCells(row), "\t")); err != nil {
			return err
		}
	}

	return nil
}

// tsvCells keeps embedded tabs and newlines from breaking rows.
func tsvCells(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.NewReplacer("\t", " ", "\n", " ").Replace(c)
	}
	return out
}

// RenderTable renders data as a formatted table
func (r *Renderer) RenderTable(headers []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	if !r.opts.Porcelain {
		r.renderTableRow(headers, widths)
		r.renderTableSeparator(widths)
	} else {
		// Porcelain mode: just tab-separated
		fmt.Fprintln(r.writer, strings.Join(headers, "\t"))
	}

	for _, row := range rows {
		if r.opts.Porcelain {
			fmt.Fprintln(r.writer, strings.Join(tsvCells(row), "\t"))
		} else {
			r.renderTableRow(row, widths)
		}
	}

	return nil
}

func (r *Renderer) renderTableRow(cells []string, widths []int) {
	for i, cell := range cells {
		if i < len(widths) {
			if i == len(cells)-1 {
				fmt.Fprint(r.writer, cell)
				continue
			}
			fmt.Fprintf(r.writer, "%-*s  ", widths[i], cell)
		}
	}
	fmt.Fprintln(r.writer)
}

func (r *Renderer) renderTableSeparator(widths []int) {
	for i, width := range widths {
		fmt.Fprint(r.writer, strings.Repeat("-", width))
		if i < len(widths)-1 {
			fmt.Fprint(r.writer, "  ")
		}
	}
	fmt.Fprintln(r.writer)
}

// UnifiedDiff returns a unified diff between two documents, or "" when
// they are equal.
func UnifiedDiff(a, b, fromFile, toFile string, context int) (string, error) {
	if a == b {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  context,
	})
}
