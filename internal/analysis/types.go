// Package analysis models archive analysis records as typed XML sections.
//
// A Record mirrors one ANALYSIS element. Sections the merge engine
// transforms (attributes, files, run/sequence labels, targets, pipeline)
// are typed; every other element and attribute is carried verbatim so a
// parse/marshal round trip does not drop fields.
package analysis

import (
	"encoding/xml"
)

// Filetype is the archive's enumerated data file type.
type Filetype string

const (
	FiletypeBAM Filetype = "bam"
	FiletypeBAI Filetype = "bai"
	FiletypeVCF Filetype = "vcf"
	FiletypeIDX Filetype = "idx"
	FiletypeTAR Filetype = "tar"
)

// ChecksumMethodMD5 is the only checksum method the archive accepts.
const ChecksumMethodMD5 = "MD5"

// Set is the ANALYSIS_SET envelope of analysis.xml.
type Set struct {
	XMLName  xml.Name `xml:"ANALYSIS_SET"`
	Analyses []Record `xml:"ANALYSIS"`
}

// Record is one analysis record, the unit of merge.
type Record struct {
	XMLName xml.Name   `xml:"ANALYSIS"`
	Attrs   []xml.Attr `xml:",any,attr"`

	// ID is the archive-assigned analysis id. It is not part of the
	// ANALYSIS element; the parser fills it from the envelope or caller.
	ID string `xml:"-"`

	Title       string       `xml:"TITLE,omitempty"`
	StudyRef    *Element     `xml:"STUDY_REF"`
	Description string       `xml:"DESCRIPTION"`
	Type        AnalysisType `xml:"ANALYSIS_TYPE"`
	Targets     []Target     `xml:"TARGETS>TARGET"`
	DataBlock   DataBlock    `xml:"DATA_BLOCK"`
	Attributes  []Attribute  `xml:"ANALYSIS_ATTRIBUTES>ANALYSIS_ATTRIBUTE"`
	Extra       []Element    `xml:",any"`
}

// AnalysisType wraps the single analysis kind element, e.g.
// REFERENCE_ALIGNMENT or SEQUENCE_VARIATION.
type AnalysisType struct {
	Kind Kind `xml:",any"`
}

// Kind is the body of the analysis kind element.
type Kind struct {
	XMLName    xml.Name
	Attrs      []xml.Attr  `xml:",any,attr"`
	Assembly   *Element    `xml:"ASSEMBLY"`
	RunLabels  []RunLabel  `xml:"RUN_LABELS>RUN"`
	SeqLabels  []SeqLabel  `xml:"SEQ_LABELS>SEQUENCE"`
	Processing *Processing `xml:"PROCESSING"`
	Extra      []Element   `xml:",any"`
}

// RunLabel ties a read group in the data block to a sequencing run.
type RunLabel struct {
	DataBlockName  string `xml:"data_block_name,attr,omitempty"`
	ReadGroupLabel string `xml:"read_group_label,attr,omitempty"`
	RefName        string `xml:"refname,attr,omitempty"`
	RefCenter      string `xml:"refcenter,attr,omitempty"`
}

// SeqLabel names one reference sequence used by the analysis.
type SeqLabel struct {
	DataBlockName string `xml:"data_block_name,attr,omitempty"`
	Accession     string `xml:"accession,attr,omitempty"`
	SeqLabel      string `xml:"seq_label,attr,omitempty"`
}

// Target references the sample (or other object) the analysis describes.
type Target struct {
	SRAObjectType string `xml:"sra_object_type,attr,omitempty"`
	RefCenter     string `xml:"refcenter,attr,omitempty"`
	RefName       string `xml:"refname,attr,omitempty"`
}

// Processing holds the pipeline provenance of the analysis.
type Processing struct {
	Pipeline   []PipeSection `xml:"PIPELINE>PIPE_SECTION"`
	Directives *Element      `xml:"DIRECTIVES"`
	Extra      []Element     `xml:",any"`
}

// PipeSection is one stage of a processing pipeline.
type PipeSection struct {
	SectionName   string `xml:"section_name,attr,omitempty"`
	StepIndex     string `xml:"STEP_INDEX"`
	PrevStepIndex string `xml:"PREV_STEP_INDEX"`
	Program       string `xml:"PROGRAM"`
	Version       string `xml:"VERSION"`
	Notes         string `xml:"NOTES,omitempty"`
}

// DataBlock is the file block of a record.
type DataBlock struct {
	Name  string      `xml:"name,attr,omitempty"`
	Files []FileEntry `xml:"FILES>FILE"`
}

// FileEntry describes one data file.
type FileEntry struct {
	Filename       string   `xml:"filename,attr"`
	Filetype       Filetype `xml:"filetype,attr"`
	ChecksumMethod string   `xml:"checksum_method,attr"`
	Checksum       string   `xml:"checksum,attr"`

	// Path is where Filename resolves on disk at merge time.
	Path string `xml:"-"`
}

// Attribute is one TAG/VALUE pair. Values are frequently JSON documents.
type Attribute struct {
	Tag   string `xml:"TAG"`
	Value string `xml:"VALUE"`
}

// Element is an untyped element kept verbatim.
type Element struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   string     `xml:",innerxml"`
}
