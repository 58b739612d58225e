package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lherron/gnosmerge/internal/cli/appctx"
	"github.com/lherron/gnosmerge/internal/donorlist"
	"github.com/lherron/gnosmerge/internal/filepatch"
	"github.com/lherron/gnosmerge/internal/id"
	"github.com/lherron/gnosmerge/internal/logging"
	"github.com/lherron/gnosmerge/internal/merge"
	"github.com/lherron/gnosmerge/internal/render"
	"github.com/lherron/gnosmerge/internal/report"
)

var filesCmd = &cobra.Command{
	Use:   "files <donor>",
	Short: "Preview the file block a merge would produce",
	Long: `Files matches the files of one donor-list row against the workflow's
expected file classes and shows which file fills each class, whether it
comes from fixed_files, and the checksum that would be recorded. Nothing
is written.

When the donor has several rows, pick one with --workflow and, if that is
not enough, --primary.`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.Options{}, runFiles),
}

var (
	filesDonorList       string
	filesWorkflow        string
	filesPrimary         string
	filesVerifyChecksums bool
)

func init() {
	rootCmd.AddCommand(filesCmd)

	filesCmd.Flags().StringVar(&filesDonorList, "donors", "", "Donor list file (default <work-dir>/donors.tsv)")
	filesCmd.Flags().StringVar(&filesWorkflow, "workflow", "", "Workflow of the row to preview")
	filesCmd.Flags().StringVar(&filesPrimary, "primary", "", "Primary analysis id of the row to preview")
	filesCmd.Flags().BoolVar(&filesVerifyChecksums, "verify-checksums", false, "Re-hash original files and report recorded checksums that differ")
}

type filePreview struct {
	Donor    string         `json:"donor" yaml:"donor"`
	Workflow string         `json:"workflow" yaml:"workflow"`
	Files    []fileRow      `json:"files" yaml:"files"`
	Missing  []string       `json:"missing,omitempty" yaml:"missing,omitempty"`
	Warnings []report.Entry `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

type fileRow struct {
	Class    string `json:"class" yaml:"class"`
	Filename string `json:"filename" yaml:"filename"`
	Filetype string `json:"filetype" yaml:"filetype"`
	Checksum string `json:"checksum" yaml:"checksum"`
	Fixed    bool   `json:"fixed" yaml:"fixed"`
	Path     string `json:"path" yaml:"path"`
}

func (p filePreview) Headers() []string {
	return []string{"CLASS", "FILENAME", "TYPE", "FIXED", "CHECKSUM"}
}

func (p filePreview) Rows() [][]string {
	rows := make([][]string, 0, len(p.Files))
	for _, f := range p.Files {
		rows = append(rows, []string{f.Class, f.Filename, f.Filetype, yesNo(f.Fixed), f.Checksum})
	}
	return rows
}

func (p filePreview) Items() []any {
	items := make([]any, len(p.Files))
	for i, f := range p.Files {
		items[i] = f
	}
	return items
}

func runFiles(app *appctx.App, cmd *cobra.Command, args []string) error {
	listPath := filesDonorList
	if listPath == "" {
		listPath = app.Config.DonorList()
	}
	rows, err := donorlist.Load(listPath)
	if err != nil {
		return err
	}
	selected, err := donorlist.Select(rows, args)
	if err != nil {
		return err
	}
	row, err := pickRow(selected, filesWorkflow, filesPrimary)
	if err != nil {
		return err
	}

	workflow := row.Workflow
	wf, err := app.Policies.Workflow(workflow)
	if err != nil {
		return err
	}

	log := logging.ForRun(app.Log, row.Donor, workflow)
	ctx := logging.WithLogger(cmd.Context(), log)
	tree := donorlist.Tree{Root: app.Config.WorkDir}

	sources, err := merge.LoadSources(ctx, tree, row, nil)
	if err != nil {
		return err
	}
	assembled := merge.Assemble(sources)

	dirs := make([]string, 0, len(sources))
	for _, src := range sources {
		dirs = append(dirs, src.Dir)
	}

	rep := report.New(row.Donor, nil)
	preview := filePreview{Donor: row.Donor, Workflow: workflow}

	res, err := filepatch.Patch(ctx, filepatch.Input{
		Owner:           sources[0].AnalysisID,
		Patterns:        wf.Files,
		OverrideDir:     tree.OverrideDir(row),
		OriginalDirs:    dirs,
		Existing:        assembled.DataBlock.Files,
		VerifyChecksums: filesVerifyChecksums || app.Config.VerifyChecksums,
	}, rep)
	var unmatched *filepatch.UnmatchedError
	switch {
	case errors.As(err, &unmatched):
		preview.Missing = unmatched.Classes
	case err != nil:
		return err
	default:
		classOf := make(map[string]filepatch.Candidate, len(res.Candidates))
		for _, c := range res.Candidates {
			classOf[c.Name] = c
		}
		for _, f := range res.Files {
			c := classOf[f.Filename]
			preview.Files = append(preview.Files, fileRow{
				Class:    c.Class,
				Filename: f.Filename,
				Filetype: string(f.Filetype),
				Checksum: f.Checksum,
				Fixed:    c.Override,
				Path:     f.Path,
			})
		}
	}
	preview.Warnings = rep.Entries

	w := cmd.OutOrStdout()
	if err := app.Renderer(w).Render(preview); err != nil {
		return err
	}
	if app.Format == render.FormatTable && !rep.Empty() {
		fmt.Fprintln(w)
		fmt.Fprint(w, rep.Format())
	}
	if unmatched != nil {
		return unmatched
	}
	return nil
}

// pickRow narrows a donor's rows to exactly one.
func pickRow(rows []donorlist.Row, workflow, primary string) (donorlist.Row, error) {
	var matched []donorlist.Row
	for _, r := range rows {
		if workflow != "" && r.Workflow != workflow {
			continue
		}
		if primary != "" && r.Primary().AnalysisID != id.Normalize(primary) {
			continue
		}
		matched = append(matched, r)
	}
	switch len(matched) {
	case 1:
		return matched[0], nil
	case 0:
		return donorlist.Row{}, fmt.Errorf("donor %s has no row matching --workflow %q --primary %q", rows[0].Donor, workflow, primary)
	}
	keys := make([]string, len(matched))
	for i, r := range matched {
		keys[i] = r.Key()
	}
	return donorlist.Row{}, fmt.Errorf("donor %s has %d matching rows (%s); narrow with --workflow or --primary",
		rows[0].Donor, len(matched), strings.Join(keys, ", "))
}
