package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lherron/gnosmerge/internal/cli/appctx"
	"github.com/lherron/gnosmerge/internal/policy"
	"github.com/lherron/gnosmerge/internal/render"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect workflow merge tables",
}

var policyLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List workflows",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.Options{}, runPolicyLs),
}

var policyShowCmd = &cobra.Command{
	Use:   "show <workflow>",
	Short: "Show a workflow's attribute rules and file classes",
	Long: `Show prints the rules of one workflow. Tags matched by no rule are
merged with the unspecified policy: the primary's value is kept and every
discarded value is reported.`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.Options{}, runPolicyShow),
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyLsCmd)
	policyCmd.AddCommand(policyShowCmd)
}

type workflowList []policy.Workflow

func (l workflowList) Headers() []string {
	return []string{"WORKFLOW", "RULES", "FILES", "MANDATORY", "DESCRIPTION"}
}

func (l workflowList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, wf := range l {
		rows = append(rows, []string{
			wf.Name,
			fmt.Sprint(len(wf.Attributes)),
			fmt.Sprint(len(wf.Files)),
			fmt.Sprint(len(wf.MandatoryFiles())),
			wf.Description,
		})
	}
	return rows
}

func (l workflowList) Items() []any {
	items := make([]any, len(l))
	for i, wf := range l {
		items[i] = wf
	}
	return items
}

func runPolicyLs(app *appctx.App, cmd *cobra.Command, args []string) error {
	var list workflowList
	for _, name := range app.Policies.Names() {
		wf, err := app.Policies.Workflow(name)
		if err != nil {
			return err
		}
		list = append(list, *wf)
	}
	return app.Renderer(cmd.OutOrStdout()).Render(list)
}

func runPolicyShow(app *appctx.App, cmd *cobra.Command, args []string) error {
	wf, err := app.Policies.Workflow(args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	r := app.Renderer(w)
	if app.Format != render.FormatTable && app.Format != render.FormatTSV {
		return r.Render(wf)
	}

	rules := make([][]string, 0, len(wf.Attributes))
	for _, rule := range wf.Attributes {
		rules = append(rules, []string{rule.Name(), string(rule.Policy), ruleOptions(rule)})
	}
	files := make([][]string, 0, len(wf.Files))
	for _, p := range wf.Files {
		files = append(files, []string{p.Class, yesNo(p.Optional), p.Regex})
	}

	if app.Format == render.FormatTSV {
		if err := r.RenderTSV([]string{"TAG", "POLICY", "OPTIONS"}, rules); err != nil {
			return err
		}
		return r.RenderTSV([]string{"CLASS", "OPTIONAL", "REGEX"}, files)
	}

	fmt.Fprintf(w, "%s: %s\n\n", wf.Name, wf.Description)
	if err := r.RenderTable([]string{"TAG", "POLICY", "OPTIONS"}, rules); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return r.RenderTable([]string{"CLASS", "OPTIONAL", "REGEX"}, files)
}

func ruleOptions(r policy.Rule) string {
	var opts []string
	if r.Value != "" {
		opts = append(opts, "value="+r.Value)
	}
	if r.SubKey != "" {
		opts = append(opts, "sub_key="+r.SubKey)
	}
	if r.DedupKey != "" {
		opts = append(opts, "dedup_key="+r.DedupKey)
	}
	if r.Policy == policy.AppendProvenance {
		opts = append(opts, fmt.Sprintf("delimiter=%q", r.Separator()))
	}
	return strings.Join(opts, " ")
}
