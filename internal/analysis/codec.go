package analysis

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	xsiNamespace      = "http://www.w3.org/2001/XMLSchema-instance"
	analysisSchemaURL = "http://www.ncbi.nlm.nih.gov/viewvc/v1/trunk/sra/doc/SRA_1-5/SRA.analysis.xsd?view=co"
)

// ErrNoAnalysis is returned when a document holds no analysis record.
var ErrNoAnalysis = errors.New("no analysis record in document")

// Document is one downloaded analysis: the record plus the run and
// experiment documents the archive serves alongside it.
type Document struct {
	Record        *Record
	RunXML        string
	ExperimentXML string
}

type resultSet struct {
	XMLName xml.Name `xml:"ResultSet"`
	Results []result `xml:"Result"`
}

type result struct {
	AnalysisID  string `xml:"analysis_id"`
	AnalysisXML struct {
		Set Set `xml:"ANALYSIS_SET"`
	} `xml:"analysis_xml"`
	RunXML        innerXML `xml:"run_xml"`
	ExperimentXML innerXML `xml:"experiment_xml"`
}

type innerXML struct {
	Inner string `xml:",innerxml"`
}

// Parse decodes a metadata document. It accepts the repository's
// ResultSet envelope, a bare ANALYSIS_SET, or a single ANALYSIS element.
// analysisID selects the result within a ResultSet and becomes the
// record ID; when empty the envelope's own id is used.
func Parse(data []byte, analysisID string) (*Document, error) {
	root, err := rootElement(data)
	if err != nil {
		return nil, err
	}

	var doc *Document
	switch root {
	case "ResultSet":
		doc, err = parseResultSet(data, analysisID)
	case "ANALYSIS_SET":
		var set Set
		if err := xml.Unmarshal(data, &set); err != nil {
			return nil, fmt.Errorf("invalid ANALYSIS_SET: %w", err)
		}
		if len(set.Analyses) == 0 {
			return nil, ErrNoAnalysis
		}
		doc = &Document{Record: &set.Analyses[0]}
	case "ANALYSIS":
		var rec Record
		if err := xml.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("invalid ANALYSIS: %w", err)
		}
		doc = &Document{Record: &rec}
	default:
		return nil, fmt.Errorf("unsupported document root <%s>", root)
	}
	if err != nil {
		return nil, err
	}

	if analysisID != "" {
		doc.Record.ID = analysisID
	}
	normalize(doc.Record)
	return doc, nil
}

func parseResultSet(data []byte, analysisID string) (*Document, error) {
	var rs resultSet
	if err := xml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("invalid ResultSet: %w", err)
	}

	var picked *result
	switch {
	case analysisID != "":
		for i := range rs.Results {
			if strings.TrimSpace(rs.Results[i].AnalysisID) == analysisID {
				picked = &rs.Results[i]
				break
			}
		}
		if picked == nil {
			return nil, fmt.Errorf("analysis %s not found in ResultSet: %w", analysisID, ErrNoAnalysis)
		}
	case len(rs.Results) == 1:
		picked = &rs.Results[0]
	case len(rs.Results) == 0:
		return nil, ErrNoAnalysis
	default:
		return nil, fmt.Errorf("ResultSet holds %d results; an analysis id is required", len(rs.Results))
	}

	if len(picked.AnalysisXML.Set.Analyses) == 0 {
		return nil, ErrNoAnalysis
	}
	rec := picked.AnalysisXML.Set.Analyses[0]
	rec.ID = strings.TrimSpace(picked.AnalysisID)
	return &Document{
		Record:        &rec,
		RunXML:        strings.TrimSpace(picked.RunXML.Inner),
		ExperimentXML: strings.TrimSpace(picked.ExperimentXML.Inner),
	}, nil
}

func rootElement(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", fmt.Errorf("empty document")
		}
		if err != nil {
			return "", fmt.Errorf("invalid XML: %w", err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}

// normalize rewrites namespaced attributes so re-encoding produces the
// same prefixes the archive uses, and drops namespace declarations the
// encoder would otherwise mangle.
func normalize(r *Record) {
	r.Attrs = normalizeAttrs(r.Attrs)
	r.Type.Kind.Attrs = normalizeAttrs(r.Type.Kind.Attrs)
	if r.StudyRef != nil {
		r.StudyRef.Attrs = normalizeAttrs(r.StudyRef.Attrs)
	}
	for i := range r.Extra {
		r.Extra[i].Attrs = normalizeAttrs(r.Extra[i].Attrs)
	}
}

func normalizeAttrs(attrs []xml.Attr) []xml.Attr {
	if attrs == nil {
		return nil
	}
	out := attrs[:0]
	for _, a := range attrs {
		switch {
		case a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns"):
			continue
		case a.Name.Space == xsiNamespace:
			a.Name = xml.Name{Local: "xsi:" + a.Name.Local}
		case a.Name.Space != "":
			a.Name = xml.Name{Local: a.Name.Local}
		}
		out = append(out, a)
	}
	return out
}

// Marshal renders the record as an analysis.xml document.
func Marshal(r *Record) ([]byte, error) {
	if r == nil {
		return nil, ErrNoAnalysis
	}
	set := struct {
		XMLName  xml.Name   `xml:"ANALYSIS_SET"`
		Attrs    []xml.Attr `xml:",any,attr"`
		Analyses []*Record  `xml:"ANALYSIS"`
	}{
		Attrs: []xml.Attr{
			{Name: xml.Name{Local: "xmlns:xsi"}, Value: xsiNamespace},
			{Name: xml.Name{Local: "xsi:noNamespaceSchemaLocation"}, Value: analysisSchemaURL},
		},
		Analyses: []*Record{r},
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		return nil, fmt.Errorf("failed to encode analysis %s: %w", r.ID, err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// MarshalCompanion renders a run or experiment document body kept from a
// ResultSet as a standalone XML file.
func MarshalCompanion(inner string) []byte {
	return []byte(xml.Header + strings.TrimSpace(inner) + "\n")
}
