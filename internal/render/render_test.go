package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listing struct {
	Names []string `json:"names" yaml:"names"`
}

func (l listing) Headers() []string { return []string{"NAME", "LEN"} }

func (l listing) Rows() [][]string {
	var rows [][]string
	for _, n := range l.Names {
		rows = append(rows, []string{n, strings.Repeat("x", len(n))})
	}
	return rows
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatTable, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, Options{Format: FormatTable})
	require.NoError(t, r.Render(listing{Names: []string{"rna_seq", "broad"}}))

	want := "NAME     LEN\n" +
		"-------  -------\n" +
		"rna_seq  xxxxxxx\n" +
		"broad    xxxxx\n"
	assert.Equal(t, want, buf.String())
}

func TestRenderTSVEscapesCells(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, Options{Format: FormatTSV})
	require.NoError(t, r.RenderTSV([]string{"A", "B"}, [][]string{{"x\ty", "1\n2"}}))
	assert.Equal(t, "A\tB\nx y\t1 2\n", buf.String())
}

func TestRenderStructured(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, Options{Format: FormatJSON, Porcelain: true}).Render(listing{Names: []string{"a&b"}}))
	assert.Equal(t, "{\"names\":[\"a&b\"]}\n", buf.String())

	buf.Reset()
	require.NoError(t, NewRenderer(&buf, Options{Format: FormatYAML}).Render(listing{Names: []string{"a"}}))
	assert.Equal(t, "names:\n    - a\n", buf.String())
}

func TestRenderNonTabular(t *testing.T) {
	var buf bytes.Buffer
	err := NewRenderer(&buf, Options{Format: FormatTable}).Render(struct{}{})
	assert.Error(t, err)
}

func TestUnifiedDiff(t *testing.T) {
	d, err := UnifiedDiff("a\nb\n", "a\nb\n", "x", "y", 3)
	require.NoError(t, err)
	assert.Empty(t, d)

	d, err = UnifiedDiff("a\nb\n", "a\nc\n", "primary", "merged", 3)
	require.NoError(t, err)
	assert.Contains(t, d, "--- primary")
	assert.Contains(t, d, "+++ merged")
	assert.Contains(t, d, "-b")
	assert.Contains(t, d, "+c")
}
