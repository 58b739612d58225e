// Package merge combines several analysis records describing the same
// sample into one new record.
//
// A run is synchronous: the structural sections are assembled, the
// attributes merged under the workflow's policy table, the file block
// rebuilt from disk and the result written to a fresh upload directory.
// Runs share no state, so a driver may run donors concurrently.
package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/lherron/gnosmerge/internal/analysis"
	"github.com/lherron/gnosmerge/internal/filepatch"
	"github.com/lherron/gnosmerge/internal/id"
	"github.com/lherron/gnosmerge/internal/logging"
	"github.com/lherron/gnosmerge/internal/policy"
	"github.com/lherron/gnosmerge/internal/report"
	"github.com/lherron/gnosmerge/internal/upload"
)

// ErrNoSources is returned for a job without source records.
var ErrNoSources = errors.New("no source records to merge")

// Engine runs donor-level merges.
type Engine struct {
	Policies *policy.Table
	Writer   *upload.Writer
	// NewID generates the merged record's analysis id. Defaults to id.New.
	NewID func() string
}

// Job is one donor-level merge.
type Job struct {
	Donor    string
	Workflow string
	// Sources are ordered; the first is the primary.
	Sources         []Source
	OverrideDir     string
	VerifyChecksums bool
	// DryRun stops before anything is written.
	DryRun bool
}

// Result is the outcome of a merge run.
type Result struct {
	Donor      string           `json:"donor"`
	Workflow   string           `json:"workflow"`
	AnalysisID string           `json:"analysis_id"`
	OutputDir  string           `json:"output_dir,omitempty"`
	Record     *analysis.Record `json:"-"`
	Outcomes   []Outcome        `json:"outcomes"`
	Patched    []string         `json:"patched,omitempty"`
	Report     *report.Report   `json:"report"`
}

// Conflicts returns the outcomes that reconciled disagreeing values.
func (r *Result) Conflicts() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Conflict {
			out = append(out, o)
		}
	}
	return out
}

// Run performs one merge. Fatal problems are returned as errors and leave
// no output behind; recoverable ones are collected in Result.Report. Once
// the job is accepted, a failed run still returns its Result so the
// entries gathered before the failure are not lost. AnalysisID and
// OutputDir are only set on success.
func (e *Engine) Run(ctx context.Context, job Job) (*Result, error) {
	log := logging.FromContext(ctx)

	wf, err := e.Policies.Workflow(job.Workflow)
	if err != nil {
		return nil, err
	}
	if len(job.Sources) == 0 {
		return nil, fmt.Errorf("donor %s: %w", job.Donor, ErrNoSources)
	}
	for i, src := range job.Sources {
		if src.Record == nil {
			return nil, fmt.Errorf("donor %s: source %d (%s) has no record", job.Donor, i, src.AnalysisID)
		}
	}

	rep := report.New(job.Donor, log)
	res := &Result{Donor: job.Donor, Workflow: job.Workflow, Report: rep}
	fail := func(err error) (*Result, error) {
		return res, fmt.Errorf("donor %s: %w", job.Donor, err)
	}

	primary := job.Sources[0]
	log.Info().
		Str("primary", primary.AnalysisID).
		Int("sources", len(job.Sources)).
		Msg("merging")

	merged := Assemble(job.Sources)

	attrs, outcomes := MergeAttributes(job.Sources, wf)
	merged.Attributes = attrs
	res.Outcomes = outcomes
	recordOutcomes(rep, outcomes)

	dirs := make([]string, 0, len(job.Sources))
	for _, src := range job.Sources {
		if src.Dir != "" {
			dirs = append(dirs, src.Dir)
		}
	}
	patched, err := filepatch.Patch(ctx, filepatch.Input{
		Owner:           primary.AnalysisID,
		Patterns:        wf.Files,
		OverrideDir:     job.OverrideDir,
		OriginalDirs:    dirs,
		Existing:        merged.DataBlock.Files,
		VerifyChecksums: job.VerifyChecksums,
	}, rep)
	if err != nil {
		return fail(err)
	}
	merged.DataBlock.Files = patched.Files
	res.Patched = patched.Patched

	newID := id.New
	if e.NewID != nil {
		newID = e.NewID
	}
	merged.ID = newID()

	if len(merged.DataBlock.Files) == 0 {
		return fail(errors.New("merged record has no files"))
	}
	if err := merged.Validate(); err != nil {
		return fail(err)
	}

	if job.DryRun {
		res.AnalysisID = merged.ID
		res.Record = merged
		log.Info().Str("analysis_id", merged.ID).Msg("dry run, nothing written")
		return res, nil
	}
	if e.Writer == nil {
		return fail(errors.New("no upload writer configured"))
	}

	out, err := e.Writer.Write(ctx, merged, upload.Options{
		AnalysisID:    merged.ID,
		RunXML:        primary.RunXML,
		ExperimentXML: primary.ExperimentXML,
	})
	if err != nil {
		return fail(err)
	}
	res.AnalysisID = merged.ID
	res.Record = merged
	res.OutputDir = out.Dir

	log.Info().
		Str("analysis_id", merged.ID).
		Int("files", len(merged.DataBlock.Files)).
		Int("conflicts", len(res.Conflicts())).
		Int("warnings", len(rep.Entries)).
		Msg("merge complete")
	return res, nil
}

func recordOutcomes(rep *report.Report, outcomes []Outcome) {
	for _, o := range outcomes {
		switch {
		case o.Conflict:
			rep.Add(report.KindAttributeConflict, o.Tag,
				"%s reconciled differing values from %v into %q", o.Policy, o.Sources, o.Value)
		case o.Policy == policy.Unspecified && len(o.Discarded) > 0:
			rep.Add(report.KindUnspecified, o.Tag,
				"no merge rule; kept %q and discarded %q", o.Value, o.Discarded)
		}
	}
}
