package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lherron/gnosmerge/internal/cli/appctx"
	"github.com/lherron/gnosmerge/internal/render"
	"github.com/lherron/gnosmerge/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run ledger",
}

var runsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recorded merge runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.Options{NeedsLedger: true}, runRunsLs),
}

var runsShowCmd = &cobra.Command{
	Use:   "show <analysis_id|run_uuid>",
	Short: "Show one run with its warnings and conflicts",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.Options{NeedsLedger: true}, runRunsShow),
}

var (
	runsDonor  string
	runsStatus string
	runsLimit  int
	runsCursor string
)

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsLsCmd)
	runsCmd.AddCommand(runsShowCmd)

	runsLsCmd.Flags().StringVar(&runsDonor, "donor", "", "Only runs of this donor")
	runsLsCmd.Flags().StringVar(&runsStatus, "status", "", "Only runs with this status (succeeded, failed, dry_run)")
	runsLsCmd.Flags().IntVar(&runsLimit, "limit", 50, "Maximum number of runs per page (0 for all)")
	runsLsCmd.Flags().StringVar(&runsCursor, "cursor", "", "Continue from the cursor printed by a previous page")
}

type runList []store.Run

func (l runList) Headers() []string {
	return []string{"STARTED", "DONOR", "WORKFLOW", "STATUS", "ANALYSIS_ID", "PRIMARY", "RUN"}
}

func (l runList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		rows = append(rows, []string{
			formatTime(r.StartedAt),
			r.Donor,
			r.Workflow,
			r.Status,
			orDash(r.AnalysisID),
			r.PrimaryID,
			r.UUID,
		})
	}
	return rows
}

func (l runList) Items() []any {
	items := make([]any, len(l))
	for i, r := range l {
		items[i] = r
	}
	return items
}

func runRunsLs(app *appctx.App, cmd *cobra.Command, args []string) error {
	runs, next, err := app.Store.Runs.List(store.ListFilter{
		Donor:  runsDonor,
		Status: runsStatus,
		Limit:  runsLimit,
		Cursor: runsCursor,
	})
	if err != nil {
		return err
	}
	if err := app.Renderer(cmd.OutOrStdout()).Render(runList(runs)); err != nil {
		return err
	}
	if next != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "next page: --cursor %s\n", next)
	}
	return nil
}

func runRunsShow(app *appctx.App, cmd *cobra.Command, args []string) error {
	run, err := app.Store.Runs.Get(args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if app.Format != render.FormatTable {
		if app.Format == render.FormatTSV {
			return app.Renderer(w).Render(runList{*run})
		}
		return app.Renderer(w).Render(run)
	}

	fmt.Fprintf(w, "Run:         %s\n", run.UUID)
	fmt.Fprintf(w, "Donor:       %s\n", run.Donor)
	fmt.Fprintf(w, "Workflow:    %s\n", run.Workflow)
	fmt.Fprintf(w, "Status:      %s\n", run.Status)
	fmt.Fprintf(w, "Analysis:    %s\n", orDash(run.AnalysisID))
	fmt.Fprintf(w, "Sources:     %s\n", strings.Join(run.SourceIDs, ", "))
	fmt.Fprintf(w, "Output:      %s\n", orDash(run.OutputDir))
	fmt.Fprintf(w, "Started:     %s\n", formatTime(run.StartedAt))
	fmt.Fprintf(w, "Duration:    %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	if run.Error != "" {
		fmt.Fprintf(w, "Error:       %s\n", run.Error)
	}

	if len(run.Events) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	rows := make([][]string, 0, len(run.Events))
	for _, e := range run.Events {
		rows = append(rows, []string{string(e.Kind), e.Subject, e.Message})
	}
	return app.Renderer(w).RenderTable([]string{"KIND", "SUBJECT", "MESSAGE"}, rows)
}
