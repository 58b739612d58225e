package merge

import (
	"strconv"

	"github.com/lherron/gnosmerge/internal/analysis"
)

// firstStep is the PREV_STEP_INDEX of the first pipeline section.
const firstStep = "NIL"

// Assemble builds the structural skeleton of the merged record: a copy of
// the primary with run labels, sequence labels, targets, files and
// pipeline sections combined from every source. Lists are deduplicated by
// natural key with the first-seen entry keeping its position. Attributes
// are left as the primary's; MergeAttributes replaces them.
func Assemble(sources []Source) *analysis.Record {
	if len(sources) == 0 {
		return nil
	}
	merged := sources[0].Record.Clone()
	kind := &merged.Type.Kind

	runs := newKeyed[analysis.RunLabel](runLabelKey)
	seqs := newKeyed[analysis.SeqLabel](seqLabelKey)
	targets := newKeyed[analysis.Target](func(t analysis.Target) string { return t.RefName })
	files := newKeyed[analysis.FileEntry](func(f analysis.FileEntry) string { return f.Filename })
	pipes := newKeyed[analysis.PipeSection](pipeKey)

	for _, src := range sources {
		rec := src.Record
		runs.add(rec.Type.Kind.RunLabels...)
		seqs.add(rec.Type.Kind.SeqLabels...)
		targets.add(rec.Targets...)
		files.add(rec.DataBlock.Files...)
		if rec.Type.Kind.Processing != nil {
			pipes.add(rec.Type.Kind.Processing.Pipeline...)
		}
	}

	kind.RunLabels = runs.items
	kind.SeqLabels = seqs.items
	merged.Targets = targets.items
	merged.DataBlock.Files = files.items

	if len(pipes.items) > 0 {
		if kind.Processing == nil {
			kind.Processing = &analysis.Processing{}
		}
		kind.Processing.Pipeline = renumber(pipes.items)
	}
	return merged
}

func runLabelKey(r analysis.RunLabel) string {
	if r.ReadGroupLabel != "" {
		return r.ReadGroupLabel
	}
	return r.DataBlockName + "|" + r.RefName
}

func seqLabelKey(s analysis.SeqLabel) string {
	return s.DataBlockName + "|" + s.Accession
}

func pipeKey(p analysis.PipeSection) string {
	return p.SectionName + "|" + p.Program + "|" + p.Version
}

// renumber rewrites step indexes to follow merge order.
func renumber(sections []analysis.PipeSection) []analysis.PipeSection {
	for i := range sections {
		sections[i].StepIndex = strconv.Itoa(i)
		if i == 0 {
			sections[i].PrevStepIndex = firstStep
		} else {
			sections[i].PrevStepIndex = strconv.Itoa(i - 1)
		}
	}
	return sections
}

// keyed is an ordered list that drops entries whose key was already seen.
type keyed[T any] struct {
	key   func(T) string
	seen  map[string]bool
	items []T
}

func newKeyed[T any](key func(T) string) *keyed[T] {
	return &keyed[T]{key: key, seen: make(map[string]bool)}
}

func (k *keyed[T]) add(items ...T) {
	for _, it := range items {
		key := k.key(it)
		if k.seen[key] {
			continue
		}
		k.seen[key] = true
		k.items = append(k.items, it)
	}
}
