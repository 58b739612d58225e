// Package donorlist reads the tab-separated donor list that drives merge
// runs and locates each donor's records in the download tree.
package donorlist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/lherron/gnosmerge/internal/id"
)

// ErrNoDonorList is returned when the donor list file does not exist.
var ErrNoDonorList = errors.New("donor list not found")

// SourceRef names one record to merge: label:repo:analysis_id.
type SourceRef struct {
	Label      string `json:"label" yaml:"label"`
	Repo       string `json:"repo" yaml:"repo"`
	AnalysisID string `json:"analysis_id" yaml:"analysis_id"`
}

func (s SourceRef) String() string {
	return s.Label + ":" + s.Repo + ":" + s.AnalysisID
}

// Row is one merge. Sources keep row order; the first one is the
// primary. A donor may have several rows, one per merge.
type Row struct {
	Donor    string      `json:"donor" yaml:"donor"`
	Workflow string      `json:"workflow" yaml:"workflow"`
	Sources  []SourceRef `json:"sources" yaml:"sources"`
	Line     int         `json:"line" yaml:"line"`
}

// Primary returns the row's primary source.
func (r Row) Primary() SourceRef {
	if len(r.Sources) == 0 {
		return SourceRef{}
	}
	return r.Sources[0]
}

// Key identifies the row within the donor list: donor, workflow and
// primary analysis id.
func (r Row) Key() string {
	return r.Donor + "/" + r.Workflow + "/" + r.Primary().AnalysisID
}

// Load reads the donor list at path.
func Load(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoDonorList, path)
		}
		return nil, fmt.Errorf("failed to open donor list: %w", err)
	}
	defer f.Close()

	rows, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// Parse reads donor list rows. Blank lines and lines starting with '#'
// are skipped. Two rows may not share donor, workflow and primary since
// they would share an override directory.
func Parse(r io.Reader) ([]Row, error) {
	var rows []Row
	seen := make(map[string]int)

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" || strings.HasPrefix(strings.TrimSpace(text), "#") {
			continue
		}

		row, err := parseRow(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row.Line = line
		if prev, dup := seen[row.Key()]; dup {
			return nil, fmt.Errorf("line %d: donor %s already has a %s merge with primary %s on line %d",
				line, row.Donor, row.Workflow, row.Primary().AnalysisID, prev)
		}
		seen[row.Key()] = line
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read donor list: %w", err)
	}
	return rows, nil
}

func parseRow(text string) (Row, error) {
	fields := strings.Split(text, "\t")
	if len(fields) != 3 {
		return Row{}, fmt.Errorf("expected 3 tab-separated fields, got %d", len(fields))
	}

	row := Row{
		Donor:    strings.TrimSpace(fields[0]),
		Workflow: strings.TrimSpace(fields[1]),
	}
	if err := id.ValidateDonor(row.Donor); err != nil {
		return Row{}, err
	}
	if row.Workflow == "" {
		return Row{}, fmt.Errorf("donor %s: missing workflow", row.Donor)
	}
	if row.Workflow == "." || row.Workflow == ".." || strings.ContainsAny(row.Workflow, `/\`) {
		return Row{}, fmt.Errorf("donor %s: invalid workflow %q", row.Donor, row.Workflow)
	}

	seen := make(map[string]bool)
	for _, part := range strings.Split(fields[2], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ref, err := ParseSourceRef(part)
		if err != nil {
			return Row{}, fmt.Errorf("donor %s: %w", row.Donor, err)
		}
		if seen[ref.AnalysisID] {
			return Row{}, fmt.Errorf("donor %s: analysis %s listed twice", row.Donor, ref.AnalysisID)
		}
		seen[ref.AnalysisID] = true
		row.Sources = append(row.Sources, ref)
	}
	if len(row.Sources) == 0 {
		return Row{}, fmt.Errorf("donor %s: no sources", row.Donor)
	}
	return row, nil
}

// ParseSourceRef parses label:repo:analysis_id.
func ParseSourceRef(s string) (SourceRef, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return SourceRef{}, fmt.Errorf("invalid source %q: want label:repo:analysis_id", s)
	}
	ref := SourceRef{
		Label:      strings.TrimSpace(parts[0]),
		Repo:       strings.TrimSpace(parts[1]),
		AnalysisID: id.Normalize(parts[2]),
	}
	if ref.Label == "" || ref.Repo == "" {
		return SourceRef{}, fmt.Errorf("invalid source %q: empty label or repo", s)
	}
	if ref.Label == OverrideDirName || strings.ContainsAny(ref.Label, `/\`) {
		return SourceRef{}, fmt.Errorf("invalid source label %q", ref.Label)
	}
	if err := id.Validate(ref.AnalysisID); err != nil {
		return SourceRef{}, err
	}
	return ref, nil
}

// Select returns every row of each donor, donors in the order given and
// each donor's rows in list order. An empty donors list selects every
// row.
func Select(rows []Row, donors []string) ([]Row, error) {
	if len(donors) == 0 {
		return rows, nil
	}
	byDonor := make(map[string][]Row, len(rows))
	for _, r := range rows {
		byDonor[r.Donor] = append(byDonor[r.Donor], r)
	}
	var out []Row
	picked := make(map[string]bool, len(donors))
	for _, d := range donors {
		if picked[d] {
			continue
		}
		picked[d] = true
		rs, ok := byDonor[d]
		if !ok {
			return nil, fmt.Errorf("donor %s is not in the donor list", d)
		}
		out = append(out, rs...)
	}
	return out, nil
}
