package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// FileSpec describes one FILE entry of a fixture analysis.
type FileSpec struct {
	Name     string
	Type     string
	Checksum string
}

// AnalysisSpec describes a fixture analysis record.
type AnalysisSpec struct {
	ID          string
	Center      string
	Kind        string // defaults to SEQUENCE_VARIATION
	Description string
	ReadGroups  []string
	Sample      string
	Pipeline    [][3]string // section name, program, version
	Files       []FileSpec
	Attributes  [][2]string
}

// AnalysisXML renders spec as a bare ANALYSIS_SET document.
func AnalysisXML(spec AnalysisSpec) string {
	kind := spec.Kind
	if kind == "" {
		kind = "SEQUENCE_VARIATION"
	}
	center := spec.Center
	if center == "" {
		center = "DKFZ"
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<ANALYSIS_SET xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">` + "\n")
	fmt.Fprintf(&b, `<ANALYSIS center_name=%q analysis_center=%q analysis_date="2015-08-01T00:00:00">`+"\n", center, center)
	fmt.Fprintf(&b, "<TITLE>%s analysis</TITLE>\n", center)
	b.WriteString(`<STUDY_REF refcenter="OICR" refname="icgc_pancancer_vcf"/>` + "\n")
	fmt.Fprintf(&b, "<DESCRIPTION>%s</DESCRIPTION>\n", spec.Description)
	fmt.Fprintf(&b, "<ANALYSIS_TYPE><%s>\n", kind)
	b.WriteString(`<ASSEMBLY><STANDARD short_name="GRCh37"/></ASSEMBLY>` + "\n")
	if len(spec.ReadGroups) > 0 {
		b.WriteString("<RUN_LABELS>\n")
		for _, rg := range spec.ReadGroups {
			fmt.Fprintf(&b, `<RUN data_block_name=%q read_group_label=%q refname=%q refcenter=%q/>`+"\n", spec.ID, rg, rg, center)
		}
		b.WriteString("</RUN_LABELS>\n")
	}
	b.WriteString(`<SEQ_LABELS><SEQUENCE data_block_name="GRCh37" accession="NC_000001.10" seq_label="1"/></SEQ_LABELS>` + "\n")
	if len(spec.Pipeline) > 0 {
		b.WriteString("<PROCESSING><PIPELINE>\n")
		for i, p := range spec.Pipeline {
			prev := "NIL"
			if i > 0 {
				prev = fmt.Sprint(i - 1)
			}
			fmt.Fprintf(&b, `<PIPE_SECTION section_name=%q><STEP_INDEX>%d</STEP_INDEX><PREV_STEP_INDEX>%s</PREV_STEP_INDEX><PROGRAM>%s</PROGRAM><VERSION>%s</VERSION><NOTES></NOTES></PIPE_SECTION>`+"\n", p[0], i, prev, p[1], p[2])
		}
		b.WriteString("</PIPELINE><DIRECTIVES/></PROCESSING>\n")
	}
	fmt.Fprintf(&b, "</%s></ANALYSIS_TYPE>\n", kind)
	if spec.Sample != "" {
		fmt.Fprintf(&b, `<TARGETS><TARGET sra_object_type="SAMPLE" refcenter="OICR" refname=%q/></TARGETS>`+"\n", spec.Sample)
	}
	fmt.Fprintf(&b, "<DATA_BLOCK name=%q><FILES>\n", spec.ID)
	for _, f := range spec.Files {
		fmt.Fprintf(&b, `<FILE filename=%q filetype=%q checksum_method="MD5" checksum=%q/>`+"\n", f.Name, f.Type, f.Checksum)
	}
	b.WriteString("</FILES></DATA_BLOCK>\n")
	b.WriteString("<ANALYSIS_ATTRIBUTES>\n")
	for _, a := range spec.Attributes {
		fmt.Fprintf(&b, "<ANALYSIS_ATTRIBUTE><TAG>%s</TAG><VALUE>%s</VALUE></ANALYSIS_ATTRIBUTE>\n", a[0], xmlEscape(a[1]))
	}
	b.WriteString("</ANALYSIS_ATTRIBUTES>\n")
	b.WriteString("</ANALYSIS>\n</ANALYSIS_SET>\n")
	return b.String()
}

// ResultSetXML wraps an ANALYSIS_SET document in the repository's
// ResultSet envelope.
func ResultSetXML(analysisID, analysisSet string) string {
	body := strings.TrimPrefix(analysisSet, `<?xml version="1.0" encoding="UTF-8"?>`+"\n")
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<ResultSet date="2015-08-01 00:00:00">
<Result id="1">
<analysis_id>%s</analysis_id>
<state>live</state>
<analysis_xml>%s</analysis_xml>
<experiment_xml><EXPERIMENT_SET><EXPERIMENT alias="exp-%s"/></EXPERIMENT_SET></experiment_xml>
<run_xml><RUN_SET><RUN alias="run-%s"/></RUN_SET></run_xml>
</Result>
</ResultSet>
`, analysisID, body, analysisID, analysisID)
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

// WriteFile writes content to a file in dir, creating dir if needed.
func WriteFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create directory %s: %v", dir, err)
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

// ReadFile reads content from a file
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(data)
}

// MkdirAll creates a directory tree under a test temp root.
func MkdirAll(t *testing.T, parts ...string) string {
	t.Helper()
	dir := filepath.Join(parts...)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create directory %s: %v", dir, err)
	}
	return dir
}
