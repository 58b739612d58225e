package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/gnosmerge/internal/cli/appctx"
	"github.com/lherron/gnosmerge/internal/render"
	"github.com/lherron/gnosmerge/internal/repos"
)

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Inspect the repository table",
}

var reposLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List known repositories",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.Options{}, runReposLs),
}

var reposResolveCmd = &cobra.Command{
	Use:   "resolve <name-or-url>",
	Short: "Translate a repository name to its URL or a URL to its name",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.Options{}, runReposResolve),
}

func init() {
	rootCmd.AddCommand(reposCmd)
	reposCmd.AddCommand(reposLsCmd)
	reposCmd.AddCommand(reposResolveCmd)
}

type repoList []repos.Repo

func (l repoList) Headers() []string { return []string{"NAME", "URL"} }

func (l repoList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		rows = append(rows, []string{r.Name, r.URL})
	}
	return rows
}

func (l repoList) Items() []any {
	items := make([]any, len(l))
	for i, r := range l {
		items[i] = r
	}
	return items
}

func runReposLs(app *appctx.App, cmd *cobra.Command, args []string) error {
	var list repoList
	for _, name := range app.Repos.Names() {
		r, err := app.Repos.Resolve(name)
		if err != nil {
			return err
		}
		list = append(list, r)
	}
	return app.Renderer(cmd.OutOrStdout()).Render(list)
}

func runReposResolve(app *appctx.App, cmd *cobra.Command, args []string) error {
	r, err := app.Repos.Resolve(args[0])
	if err != nil {
		return err
	}
	if app.Format == render.FormatTable {
		// Print the other half of the pair.
		if r.Name == args[0] {
			fmt.Fprintln(cmd.OutOrStdout(), r.URL)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), r.Name)
		}
		return nil
	}
	return app.Renderer(cmd.OutOrStdout()).Render(repoList{r})
}
