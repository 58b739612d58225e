// Package policy holds the declarative per-workflow merge tables: which
// attribute merge policy applies to each tag, and which output files a
// workflow is expected to produce.
package policy

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed workflows.yaml
var defaultWorkflows []byte

// Kind names an attribute merge policy.
type Kind string

const (
	Passthrough      Kind = "passthrough-from-primary"
	EqualOrLabel     Kind = "equal-or-label"
	NumericMax       Kind = "numeric-max"
	JSONSubmerge     Kind = "json-submerge"
	Forced           Kind = "forced-value"
	AppendProvenance Kind = "append-provenance"
	// Unspecified applies to tags with no rule: the primary's value is
	// kept and the others are discarded. It is reported, never implicit.
	Unspecified Kind = "unspecified"
)

// DefaultDelimiter joins append-provenance accumulators.
const DefaultDelimiter = ","

// Valid reports whether k is a known policy usable in a rule.
func (k Kind) Valid() bool {
	switch k {
	case Passthrough, EqualOrLabel, NumericMax, JSONSubmerge, Forced, AppendProvenance:
		return true
	}
	return false
}

// Rule assigns a policy to one tag or to every tag matching a pattern.
type Rule struct {
	Tag     string `yaml:"tag,omitempty" json:"tag,omitempty"`
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Policy  Kind   `yaml:"policy" json:"policy"`

	// Value is the constant substituted by forced-value.
	Value string `yaml:"value,omitempty" json:"value,omitempty"`
	// SubKey names the JSON array json-submerge unions.
	SubKey string `yaml:"sub_key,omitempty" json:"sub_key,omitempty"`
	// DedupKey is the element field json-submerge deduplicates on.
	DedupKey string `yaml:"dedup_key,omitempty" json:"dedup_key,omitempty"`
	// Delimiter joins append-provenance accumulators.
	Delimiter string `yaml:"delimiter,omitempty" json:"delimiter,omitempty"`

	re *regexp.Regexp
}

// Name returns the tag or pattern the rule is keyed by.
func (r Rule) Name() string {
	if r.Tag != "" {
		return r.Tag
	}
	return r.Pattern
}

// Separator returns the append-provenance delimiter.
func (r Rule) Separator() string {
	if r.Delimiter == "" {
		return DefaultDelimiter
	}
	return r.Delimiter
}

// FilePattern is one expected output file class of a workflow.
type FilePattern struct {
	Class string `yaml:"class" json:"class"`
	Regex string `yaml:"regex" json:"regex"`
	// Optional downgrades a missing match from fatal to a warning.
	Optional bool `yaml:"optional,omitempty" json:"optional,omitempty"`

	re *regexp.Regexp
}

// Match reports whether filename belongs to the pattern's class. An
// uncompiled pattern is compiled on first use; an invalid regex matches
// nothing.
func (p *FilePattern) Match(filename string) bool {
	if p.re == nil {
		if err := p.Compile(); err != nil {
			return false
		}
	}
	return p.re.MatchString(filename)
}

// Compile prepares the pattern's regex.
func (p *FilePattern) Compile() error {
	re, err := regexp.Compile(p.Regex)
	if err != nil {
		return fmt.Errorf("file class %s: invalid regex: %w", p.Class, err)
	}
	p.re = re
	return nil
}

// Workflow is the merge table of one workflow.
type Workflow struct {
	Name        string        `yaml:"name" json:"name"`
	Description string        `yaml:"description,omitempty" json:"description,omitempty"`
	Attributes  []Rule        `yaml:"attributes" json:"attributes"`
	Files       []FilePattern `yaml:"files" json:"files"`
}

// Table is a set of workflows keyed by name.
type Table struct {
	Workflows []Workflow `yaml:"workflows" json:"workflows"`

	byName map[string]*Workflow
}

// Parse decodes and validates a YAML policy table.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("invalid policy table: %w", err)
	}
	if err := t.compile(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadFile reads a policy table from path.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy table: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in policy table.
func Default() (*Table, error) {
	return Parse(defaultWorkflows)
}

// Load returns the table at path, or the built-in table when path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}

func (t *Table) compile() error {
	t.byName = make(map[string]*Workflow, len(t.Workflows))
	for i := range t.Workflows {
		wf := &t.Workflows[i]
		if wf.Name == "" {
			return fmt.Errorf("workflow %d has no name", i)
		}
		if _, dup := t.byName[wf.Name]; dup {
			return fmt.Errorf("duplicate workflow %s", wf.Name)
		}
		if err := wf.compile(); err != nil {
			return fmt.Errorf("workflow %s: %w", wf.Name, err)
		}
		t.byName[wf.Name] = wf
	}
	return nil
}

func (w *Workflow) compile() error {
	tags := make(map[string]bool)
	for i := range w.Attributes {
		r := &w.Attributes[i]
		if (r.Tag == "") == (r.Pattern == "") {
			return fmt.Errorf("attribute rule %d must set exactly one of tag or pattern", i)
		}
		if !r.Policy.Valid() {
			return fmt.Errorf("attribute rule %s: unknown policy %q", r.Name(), r.Policy)
		}
		if r.Tag != "" {
			if tags[r.Tag] {
				return fmt.Errorf("attribute rule %s declared twice", r.Tag)
			}
			tags[r.Tag] = true
		}
		if r.Pattern != "" {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				return fmt.Errorf("attribute rule %s: invalid pattern: %w", r.Pattern, err)
			}
			r.re = re
			if r.Policy == Forced || r.Policy == AppendProvenance {
				return fmt.Errorf("attribute rule %s: %s requires an exact tag", r.Pattern, r.Policy)
			}
		}
	}

	classes := make(map[string]bool)
	for i := range w.Files {
		p := &w.Files[i]
		if p.Class == "" {
			return fmt.Errorf("file pattern %d has no class", i)
		}
		if classes[p.Class] {
			return fmt.Errorf("file class %s declared twice", p.Class)
		}
		classes[p.Class] = true
		if err := p.Compile(); err != nil {
			return err
		}
	}
	return nil
}

// Workflow returns the named workflow.
func (t *Table) Workflow(name string) (*Workflow, error) {
	wf, ok := t.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown workflow %q (known: %v)", name, t.Names())
	}
	return wf, nil
}

// Names returns the workflow names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RuleFor returns the rule governing tag: an exact tag rule first, then
// the first matching pattern rule, else an explicit Unspecified rule.
func (w *Workflow) RuleFor(tag string) Rule {
	for _, r := range w.Attributes {
		if r.Tag == tag {
			return r
		}
	}
	for _, r := range w.Attributes {
		if r.re != nil && r.re.MatchString(tag) {
			return r
		}
	}
	return Rule{Tag: tag, Policy: Unspecified}
}

// SyntheticTags returns tags whose rules produce a value even when no
// source carries the tag (forced-value and append-provenance).
func (w *Workflow) SyntheticTags() []string {
	var tags []string
	for _, r := range w.Attributes {
		if r.Tag != "" && (r.Policy == Forced || r.Policy == AppendProvenance) {
			tags = append(tags, r.Tag)
		}
	}
	return tags
}

// MandatoryFiles returns the classes that must be matched.
func (w *Workflow) MandatoryFiles() []string {
	var out []string
	for _, p := range w.Files {
		if !p.Optional {
			out = append(out, p.Class)
		}
	}
	return out
}
