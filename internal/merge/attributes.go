package merge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/lherron/gnosmerge/internal/analysis"
	"github.com/lherron/gnosmerge/internal/policy"
)

// Source is one record taking part in a merge, plus where it came from.
// Sources are ordered; the first one is the primary.
type Source struct {
	Label      string
	Repo       string
	AnalysisID string
	Record     *analysis.Record
	// Dir is the download directory holding the source's data files.
	Dir           string
	RunXML        string
	ExperimentXML string
}

// Outcome is the result of evaluating one tag's policy.
type Outcome struct {
	Tag      string      `json:"tag"`
	Policy   policy.Kind `json:"policy"`
	Value    string      `json:"value"`
	Conflict bool        `json:"conflict,omitempty"`
	// Discarded lists source values that did not make it into Value.
	Discarded []string `json:"discarded,omitempty"`
	// Sources lists the labels of sources that carried the tag.
	Sources []string `json:"sources,omitempty"`
}

// sourceValue is one source's value for a tag.
type sourceValue struct {
	label string
	id    string
	value string
}

// MergeAttributes merges the attribute lists of sources under the
// workflow's rules. Tags appear in first-seen order across sources,
// primary first; tags only produced by forced-value or append-provenance
// rules follow. The result never aliases source data.
func MergeAttributes(sources []Source, wf *policy.Workflow) ([]analysis.Attribute, []Outcome) {
	var order []string
	values := make(map[string][]sourceValue)

	for _, src := range sources {
		seen := make(map[string]bool)
		for _, attr := range src.Record.Attributes {
			// The first entry of a repeated tag wins within one source.
			if seen[attr.Tag] {
				continue
			}
			seen[attr.Tag] = true
			if _, ok := values[attr.Tag]; !ok {
				order = append(order, attr.Tag)
			}
			values[attr.Tag] = append(values[attr.Tag], sourceValue{
				label: src.Label,
				id:    src.AnalysisID,
				value: attr.Value,
			})
		}
	}
	for _, tag := range wf.SyntheticTags() {
		if _, ok := values[tag]; !ok {
			order = append(order, tag)
			values[tag] = nil
		}
	}

	attrs := make([]analysis.Attribute, 0, len(order))
	outcomes := make([]Outcome, 0, len(order))
	for _, tag := range order {
		o := evaluate(wf.RuleFor(tag), sources, values[tag])
		o.Tag = tag
		attrs = append(attrs, analysis.Attribute{Tag: tag, Value: o.Value})
		outcomes = append(outcomes, o)
	}
	return attrs, outcomes
}

// evaluate applies rule to the values present for one tag. present holds
// only sources carrying the tag, in source order.
func evaluate(rule policy.Rule, sources []Source, present []sourceValue) Outcome {
	o := Outcome{Policy: rule.Policy}
	for _, v := range present {
		o.Sources = append(o.Sources, v.label)
	}

	switch rule.Policy {
	case policy.Passthrough:
		passthrough(&o, sources, present)
	case policy.EqualOrLabel:
		equalOrLabel(&o, present)
	case policy.NumericMax:
		numericMax(&o, present)
	case policy.JSONSubmerge:
		jsonSubmerge(&o, rule, present)
	case policy.Forced:
		o.Value = rule.Value
		for _, v := range present {
			if v.value != rule.Value {
				o.Discarded = append(o.Discarded, v.value)
			}
		}
	case policy.AppendProvenance:
		appendProvenance(&o, rule.Separator(), sources, present)
	default:
		o.Policy = policy.Unspecified
		unspecified(&o, present)
	}
	return o
}

// passthrough keeps the primary's value. When the primary lacks the tag
// the first source carrying it supplies the value.
func passthrough(o *Outcome, sources []Source, present []sourceValue) {
	if len(present) == 0 {
		return
	}
	keep := 0
	if len(sources) > 0 {
		for i, v := range present {
			if v.label == sources[0].Label && v.id == sources[0].AnalysisID {
				keep = i
				break
			}
		}
	}
	o.Value = present[keep].value
	for i, v := range present {
		if i != keep && v.value != o.Value {
			o.Conflict = true
			o.Discarded = append(o.Discarded, v.value)
		}
	}
}

func equalOrLabel(o *Outcome, present []sourceValue) {
	if len(present) == 0 {
		return
	}
	agree := true
	for _, v := range present[1:] {
		if v.value != present[0].value {
			agree = false
			break
		}
	}
	if agree {
		o.Value = present[0].value
		return
	}

	parts := make([]string, 0, len(present))
	for _, v := range present {
		parts = append(parts, fmt.Sprintf("%s: %s", v.label, v.value))
	}
	o.Value = strings.Join(parts, " ")
	o.Conflict = true
}

// numericMax keeps the original text of the largest parsable value. Ties
// keep the first. NaN and infinities count as unparsable. Nothing
// parsable yields an empty value.
func numericMax(o *Outcome, present []sourceValue) {
	best := -1
	var bestNum float64
	parsed := make([]bool, len(present))
	distinct := make(map[float64]bool)

	for i, v := range present {
		n, err := strconv.ParseFloat(strings.TrimSpace(v.value), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			continue
		}
		parsed[i] = true
		distinct[n] = true
		if best < 0 || n > bestNum {
			best, bestNum = i, n
		}
	}

	if best >= 0 {
		o.Value = present[best].value
	}
	o.Conflict = len(distinct) > 1
	for i, v := range present {
		if i != best && (!parsed[i] || v.value != o.Value) {
			o.Discarded = append(o.Discarded, v.value)
		}
	}
}

// jsonSubmerge unions the array stored under rule.SubKey across sources,
// deduplicating elements by rule.DedupKey. The first parsed document is
// the base; sources whose whole document equals an earlier one add
// nothing. Other top-level keys of a source carrying the array are
// unioned into the base. A source without the array contributes its whole
// document as one element. Without a SubKey, top-level keys are unioned
// instead.
func jsonSubmerge(o *Outcome, rule policy.Rule, present []sourceValue) {
	var docs []map[string]any
	first := ""
	for _, v := range present {
		doc, err := decodeObject(v.value)
		if err != nil {
			o.Conflict = true
			o.Discarded = append(o.Discarded, v.value)
			continue
		}
		dup := false
		for _, prev := range docs {
			if reflect.DeepEqual(prev, doc) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		if len(docs) == 0 {
			first = v.value
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return
	}
	if len(docs) == 1 {
		o.Value = first
		return
	}

	base := docs[0]
	if rule.SubKey == "" {
		for _, doc := range docs[1:] {
			unionKeys(o, base, doc, "")
		}
		o.Value = encodeOrEmpty(base)
		return
	}

	var elems []any
	if arr, ok := base[rule.SubKey].([]any); ok {
		elems = arr
	}
	for _, doc := range docs[1:] {
		incoming, ok := doc[rule.SubKey].([]any)
		if ok {
			unionKeys(o, base, doc, rule.SubKey)
		} else {
			incoming = []any{doc}
		}
		for _, el := range incoming {
			var conflict bool
			elems, conflict = appendElement(elems, el, rule.DedupKey)
			if conflict {
				o.Conflict = true
				o.Discarded = append(o.Discarded, encodeOrEmpty(el))
			}
		}
	}
	base[rule.SubKey] = elems
	o.Value = encodeOrEmpty(base)
}

// unionKeys copies the top-level keys of doc missing from base, skipping
// skip. A key both carry with different values is a conflict; base keeps
// its value.
func unionKeys(o *Outcome, base, doc map[string]any, skip string) {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		if skip != "" && k == skip {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := doc[k]
		prev, ok := base[k]
		if !ok {
			base[k] = v
			continue
		}
		if !reflect.DeepEqual(prev, v) {
			o.Conflict = true
			o.Discarded = append(o.Discarded, encodeOrEmpty(map[string]any{k: v}))
		}
	}
}

// appendElement adds el to elems unless an element with the same dedup
// key value already exists. A different element under an existing key is
// a conflict and the existing one is kept.
func appendElement(elems []any, el any, dedupKey string) ([]any, bool) {
	key, hasKey := dedupValue(el, dedupKey)
	for _, existing := range elems {
		if hasKey {
			if k, ok := dedupValue(existing, dedupKey); ok && reflect.DeepEqual(k, key) {
				return elems, !reflect.DeepEqual(existing, el)
			}
			continue
		}
		if reflect.DeepEqual(existing, el) {
			return elems, false
		}
	}
	return append(elems, el), false
}

func dedupValue(el any, key string) (any, bool) {
	if key == "" {
		return nil, false
	}
	obj, ok := el.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := obj[key]
	return v, ok
}

func decodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("not a JSON object")
	}
	return doc, nil
}

func encodeOrEmpty(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// appendProvenance extends the delimiter-joined accumulator with the
// analysis id of every source, keeping first-seen order.
func appendProvenance(o *Outcome, sep string, sources []Source, present []sourceValue) {
	var ids []string
	seen := make(map[string]bool)
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}

	for _, v := range present {
		for _, id := range strings.Split(v.value, sep) {
			add(id)
		}
	}
	for _, src := range sources {
		add(src.AnalysisID)
	}
	o.Value = strings.Join(ids, sep)
}

// unspecified keeps the first value present, which is the primary's when
// it carries the tag. Other values are discarded.
func unspecified(o *Outcome, present []sourceValue) {
	if len(present) == 0 {
		return
	}
	o.Value = present[0].value
	for _, v := range present[1:] {
		if v.value != o.Value {
			o.Discarded = append(o.Discarded, v.value)
		}
	}
}
