package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lherron/gnosmerge/internal/analysis"
	"github.com/lherron/gnosmerge/internal/bulk"
	"github.com/lherron/gnosmerge/internal/cli/appctx"
	"github.com/lherron/gnosmerge/internal/donorlist"
	"github.com/lherron/gnosmerge/internal/logging"
	"github.com/lherron/gnosmerge/internal/merge"
	"github.com/lherron/gnosmerge/internal/render"
	"github.com/lherron/gnosmerge/internal/report"
	"github.com/lherron/gnosmerge/internal/repos"
	"github.com/lherron/gnosmerge/internal/store"
	"github.com/lherron/gnosmerge/internal/upload"
)

var mergeCmd = &cobra.Command{
	Use:   "merge [donor...]",
	Short: "Merge the source records of each donor-list row into one new analysis",
	Long: `Merge reads the donor list and, for each row of the selected donors,
combines the row's source records into one new analysis written to the
upload directory. A donor may have several rows, e.g. one per workflow.

The first source of a donor-list row is the primary: its values win
wherever a workflow's policy keeps a single value. Files in
<work-dir>/<donor>/fixed_files/<workflow>/<primary_analysis_id>/ replace
originally downloaded files of the same class.

Each row is independent. A failing merge does not stop the others; the
command exits non-zero if any merge failed. Every run is recorded in the
ledger, including dry runs and the warnings of failed runs.

Examples:
  gnosmerge merge                       # every donor in donors.tsv
  gnosmerge merge DO1234 DO5678 -j 4    # two donors, concurrently
  gnosmerge merge DO1234 --dry-run --diff
`,
	RunE: appctx.WithApp(appctx.Options{NeedsLedger: true}, runMerge),
}

var (
	mergeDonorList       string
	mergeJobs            int
	mergeDryRun          bool
	mergeDiff            bool
	mergeVerifyChecksums bool
	mergeFetchMissing    bool
)

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringVar(&mergeDonorList, "donors", "", "Donor list file (default <work-dir>/donors.tsv)")
	mergeCmd.Flags().IntVarP(&mergeJobs, "jobs", "j", 1, "Number of merges run concurrently")
	mergeCmd.Flags().BoolVar(&mergeDryRun, "dry-run", false, "Merge in memory without writing an upload directory")
	mergeCmd.Flags().BoolVar(&mergeDiff, "diff", false, "Print a unified diff of the primary record against the merged record")
	mergeCmd.Flags().BoolVar(&mergeVerifyChecksums, "verify-checksums", false, "Re-hash original files and report recorded checksums that differ")
	mergeCmd.Flags().BoolVar(&mergeFetchMissing, "fetch-missing", false, "Fetch metadata of sources missing from the download tree")
}

// donorRun is the outcome of one donor-list row.
type donorRun struct {
	Donor      string          `json:"donor" yaml:"donor"`
	Workflow   string          `json:"workflow" yaml:"workflow"`
	PrimaryID  string          `json:"primary_id" yaml:"primary_id"`
	Status     string          `json:"status" yaml:"status"`
	AnalysisID string          `json:"analysis_id,omitempty" yaml:"analysis_id,omitempty"`
	OutputDir  string          `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	RunUUID    string          `json:"run_uuid,omitempty" yaml:"run_uuid,omitempty"`
	Outcomes   []merge.Outcome `json:"outcomes,omitempty" yaml:"outcomes,omitempty"`
	Patched    []string        `json:"patched,omitempty" yaml:"patched,omitempty"`
	Warnings   []report.Entry  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Diff       string          `json:"diff,omitempty" yaml:"diff,omitempty"`
	Error      string          `json:"error,omitempty" yaml:"error,omitempty"`
}

func (r donorRun) failed() bool {
	return r.Error != ""
}

func (r donorRun) conflicts() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Conflict {
			n++
		}
	}
	return n
}

type mergeSummary []donorRun

func (s mergeSummary) Headers() []string {
	return []string{"DONOR", "WORKFLOW", "PRIMARY", "STATUS", "ANALYSIS_ID", "CONFLICTS", "WARNINGS", "ERROR"}
}

func (s mergeSummary) Rows() [][]string {
	rows := make([][]string, 0, len(s))
	for _, r := range s {
		rows = append(rows, []string{
			r.Donor,
			r.Workflow,
			r.PrimaryID,
			r.Status,
			orDash(r.AnalysisID),
			fmt.Sprint(r.conflicts()),
			fmt.Sprint(len(r.Warnings)),
			orDash(r.Error),
		})
	}
	return rows
}

func (s mergeSummary) Items() []any {
	items := make([]any, len(s))
	for i, r := range s {
		items[i] = r
	}
	return items
}

// mergeOptions are the per-invocation settings shared by every donor.
type mergeOptions struct {
	engine          *merge.Engine
	tree            donorlist.Tree
	fetcher         repos.Fetcher
	ledger          *store.Store
	verifyChecksums bool
	dryRun          bool
	diff            bool
}

func runMerge(app *appctx.App, cmd *cobra.Command, args []string) error {
	if mergeJobs < 1 {
		return fmt.Errorf("--jobs must be at least 1")
	}

	listPath := mergeDonorList
	if listPath == "" {
		listPath = app.Config.DonorList()
	}
	rows, err := donorlist.Load(listPath)
	if err != nil {
		return err
	}
	rows, err = donorlist.Select(rows, args)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%s lists no donors", listPath)
	}

	if !mergeDryRun {
		if err := os.MkdirAll(app.Config.UploadRoot(), 0755); err != nil {
			return fmt.Errorf("failed to create upload directory: %w", err)
		}
	}

	opts := mergeOptions{
		engine: &merge.Engine{
			Policies: app.Policies,
			Writer:   &upload.Writer{Root: app.Config.UploadRoot()},
		},
		tree:            donorlist.Tree{Root: app.Config.WorkDir},
		ledger:          app.Store,
		verifyChecksums: mergeVerifyChecksums || app.Config.VerifyChecksums,
		dryRun:          mergeDryRun,
		diff:            mergeDiff,
	}
	if mergeFetchMissing {
		opts.fetcher = repos.NewClient(app.Repos, app.Config.FetchTimeout)
	}

	keys := make([]string, len(rows))
	for i, row := range rows {
		keys[i] = row.Key()
	}
	results := make(mergeSummary, len(rows))

	op := &bulk.Operation{
		Jobs:            mergeJobs,
		ContinueOnError: true,
		Progress:        cmd.ErrOrStderr(),
		Label:           "Merging",
	}
	outcome := op.Execute(cmd.Context(), keys, func(ctx context.Context, i int, _ string) error {
		results[i] = mergeDonor(ctx, app, opts, rows[i])
		if results[i].failed() {
			return errors.New(results[i].Error)
		}
		return nil
	})

	if err := printMergeSummary(app, cmd.OutOrStdout(), results); err != nil {
		return err
	}
	if outcome.Failed > 0 {
		return fmt.Errorf("%d of %s failed", outcome.Failed, pluralize(len(results), "merge"))
	}
	return nil
}

// mergeDonor runs one donor-list row end to end and records it in the
// ledger.
func mergeDonor(ctx context.Context, app *appctx.App, opts mergeOptions, row donorlist.Row) donorRun {
	log := logging.ForRun(app.Log, row.Donor, row.Workflow)
	ctx = logging.WithLogger(ctx, log)
	started := time.Now()

	out := donorRun{Donor: row.Donor, Workflow: row.Workflow, PrimaryID: row.Primary().AnalysisID}

	sources, err := merge.LoadSources(ctx, opts.tree, row, opts.fetcher)
	var res *merge.Result
	if err == nil {
		res, err = opts.engine.Run(ctx, merge.Job{
			Donor:           row.Donor,
			Workflow:        row.Workflow,
			Sources:         sources,
			OverrideDir:     opts.tree.OverrideDir(row),
			VerifyChecksums: opts.verifyChecksums,
			DryRun:          opts.dryRun,
		})
	}

	status := store.StatusSucceeded
	switch {
	case err != nil:
		status = store.StatusFailed
		out.Error = err.Error()
		log.Error().Err(err).Msg("merge failed")
	case opts.dryRun:
		status = store.StatusDryRun
	}
	out.Status = status

	// A failed run still carries the report gathered before the failure.
	var rep *report.Report
	if res != nil {
		out.AnalysisID = res.AnalysisID
		out.OutputDir = res.OutputDir
		out.Outcomes = res.Outcomes
		out.Patched = res.Patched
		out.Warnings = res.Report.Entries
		rep = res.Report

		if opts.diff && err == nil {
			d, derr := diffRecords(sources[0].Record, res.Record)
			if derr != nil {
				log.Warn().Err(derr).Msg("failed to diff records")
			}
			out.Diff = d
		}
	}

	sourceIDs := make([]string, 0, len(row.Sources))
	for _, ref := range row.Sources {
		sourceIDs = append(sourceIDs, ref.AnalysisID)
	}
	runUUID, lerr := opts.ledger.Runs.Record(store.RecordParams{
		Donor:      row.Donor,
		Workflow:   row.Workflow,
		AnalysisID: out.AnalysisID,
		SourceIDs:  sourceIDs,
		Status:     status,
		OutputDir:  out.OutputDir,
		Err:        err,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Report:     rep,
	})
	if lerr != nil {
		log.Error().Err(lerr).Msg("failed to record run in ledger")
		if out.Error == "" {
			out.Error = lerr.Error()
		}
		return out
	}
	out.RunUUID = runUUID
	return out
}

// diffRecords renders both records and diffs the primary against the
// merged result.
func diffRecords(primary, merged *analysis.Record) (string, error) {
	a, err := analysis.Marshal(primary)
	if err != nil {
		return "", err
	}
	b, err := analysis.Marshal(merged)
	if err != nil {
		return "", err
	}
	return render.UnifiedDiff(string(a), string(b), "primary/"+primary.ID, "merged/"+merged.ID, 3)
}

func printMergeSummary(app *appctx.App, w io.Writer, results mergeSummary) error {
	r := app.Renderer(w)
	if err := r.Render(results); err != nil {
		return err
	}
	if app.Format != render.FormatTable {
		return nil
	}

	var warnings [][]string
	for _, res := range results {
		for _, e := range res.Warnings {
			warnings = append(warnings, []string{res.Donor, res.Workflow, string(e.Kind), e.Subject, e.Message})
		}
	}
	if len(warnings) > 0 {
		fmt.Fprintln(w)
		if err := r.RenderTable([]string{"DONOR", "WORKFLOW", "KIND", "SUBJECT", "MESSAGE"}, warnings); err != nil {
			return err
		}
	}

	for _, res := range results {
		if res.Diff != "" {
			fmt.Fprintln(w)
			fmt.Fprint(w, res.Diff)
		}
	}
	return nil
}
