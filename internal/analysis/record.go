package analysis

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// suffixTypes maps filename suffixes to file types. Longer suffixes are
// listed first so ".vcf.gz.tbi" is an index, not a VCF.
var suffixTypes = []struct {
	suffix   string
	filetype Filetype
}{
	{".vcf.gz.tbi", FiletypeIDX},
	{".vcf.gz.idx", FiletypeIDX},
	{".vcf.gz", FiletypeVCF},
	{".vcf", FiletypeVCF},
	{".tar.gz", FiletypeTAR},
	{".tgz", FiletypeTAR},
	{".tar", FiletypeTAR},
	{".bam.bai", FiletypeBAI},
	{".bai", FiletypeBAI},
	{".bam", FiletypeBAM},
	{".tbi", FiletypeIDX},
	{".idx", FiletypeIDX},
}

// FiletypeFor returns the file type implied by a filename suffix.
func FiletypeFor(filename string) (Filetype, bool) {
	lower := strings.ToLower(filename)
	for _, st := range suffixTypes {
		if strings.HasSuffix(lower, st.suffix) {
			return st.filetype, true
		}
	}
	return "", false
}

// ValidFiletype reports whether t is one of the enumerated file types.
func ValidFiletype(t Filetype) bool {
	switch t {
	case FiletypeBAM, FiletypeBAI, FiletypeVCF, FiletypeIDX, FiletypeTAR:
		return true
	}
	return false
}

// Attribute returns the first value recorded for tag.
func (r *Record) Attribute(tag string) (string, bool) {
	for _, a := range r.Attributes {
		if a.Tag == tag {
			return a.Value, true
		}
	}
	return "", false
}

// XMLAttr returns an attribute of the ANALYSIS element, e.g. center_name.
func (r *Record) XMLAttr(name string) string {
	return attrValue(r.Attrs, name)
}

// Filenames returns the filenames of the file block in order.
func (r *Record) Filenames() []string {
	names := make([]string, len(r.DataBlock.Files))
	for i, f := range r.DataBlock.Files {
		names[i] = f.Filename
	}
	return names
}

// Clone returns a deep copy of the record. The copy shares no slices or
// pointers with r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Attrs = cloneAttrs(r.Attrs)
	c.StudyRef = r.StudyRef.clone()
	c.Type.Kind = r.Type.Kind.clone()
	c.Targets = append([]Target(nil), r.Targets...)
	c.DataBlock.Files = append([]FileEntry(nil), r.DataBlock.Files...)
	c.Attributes = append([]Attribute(nil), r.Attributes...)
	c.Extra = cloneElements(r.Extra)
	return &c
}

func (k Kind) clone() Kind {
	c := k
	c.Attrs = cloneAttrs(k.Attrs)
	c.Assembly = k.Assembly.clone()
	c.RunLabels = append([]RunLabel(nil), k.RunLabels...)
	c.SeqLabels = append([]SeqLabel(nil), k.SeqLabels...)
	if k.Processing != nil {
		p := *k.Processing
		p.Pipeline = append([]PipeSection(nil), k.Processing.Pipeline...)
		p.Directives = k.Processing.Directives.clone()
		p.Extra = cloneElements(k.Processing.Extra)
		c.Processing = &p
	}
	c.Extra = cloneElements(k.Extra)
	return c
}

func (e *Element) clone() *Element {
	if e == nil {
		return nil
	}
	c := *e
	c.Attrs = cloneAttrs(e.Attrs)
	return &c
}

func cloneElements(in []Element) []Element {
	if in == nil {
		return nil
	}
	out := make([]Element, len(in))
	for i := range in {
		out[i] = *in[i].clone()
	}
	return out
}

func cloneAttrs(in []xml.Attr) []xml.Attr {
	if in == nil {
		return nil
	}
	return append([]xml.Attr(nil), in...)
}

func attrValue(attrs []xml.Attr, name string) string {
	for _, a := range attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// Validate checks the internal consistency a merged record must keep:
// an analysis kind, unique filenames, enumerated file types, MD5
// checksums and unique attribute tags.
func (r *Record) Validate() error {
	if r.Type.Kind.XMLName.Local == "" {
		return fmt.Errorf("analysis %s: missing ANALYSIS_TYPE kind", r.ID)
	}

	seenFiles := make(map[string]bool, len(r.DataBlock.Files))
	for _, f := range r.DataBlock.Files {
		if f.Filename == "" {
			return fmt.Errorf("analysis %s: file entry without filename", r.ID)
		}
		if seenFiles[f.Filename] {
			return fmt.Errorf("analysis %s: duplicate filename %s", r.ID, f.Filename)
		}
		seenFiles[f.Filename] = true
		if !ValidFiletype(f.Filetype) {
			return fmt.Errorf("analysis %s: file %s has invalid filetype %q", r.ID, f.Filename, f.Filetype)
		}
		if f.ChecksumMethod != ChecksumMethodMD5 {
			return fmt.Errorf("analysis %s: file %s has checksum method %q, want %s", r.ID, f.Filename, f.ChecksumMethod, ChecksumMethodMD5)
		}
		if f.Checksum == "" {
			return fmt.Errorf("analysis %s: file %s has no checksum", r.ID, f.Filename)
		}
	}

	seenTags := make(map[string]bool, len(r.Attributes))
	for _, a := range r.Attributes {
		if seenTags[a.Tag] {
			return fmt.Errorf("analysis %s: duplicate attribute tag %s", r.ID, a.Tag)
		}
		seenTags[a.Tag] = true
	}

	return nil
}
