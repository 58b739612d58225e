package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/gnosmerge/internal/cli/appctx"
	"github.com/lherron/gnosmerge/internal/donorlist"
	"github.com/lherron/gnosmerge/internal/id"
	"github.com/lherron/gnosmerge/internal/logging"
	"github.com/lherron/gnosmerge/internal/merge"
	"github.com/lherron/gnosmerge/internal/repos"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <repo> <analysis_id>",
	Short: "Download an analysis metadata document into the download tree",
	Long: `Fetch retrieves the metadata document of one analysis from a repository
and saves it as <work-dir>/<donor>/<label>/<analysis_id>/<analysis_id>.xml.

The repository may be given by name (see 'gnosmerge repos ls') or by URL.
Requests time out after --fetch-timeout and are not retried.`,
	Args: cobra.ExactArgs(2),
	RunE: appctx.WithApp(appctx.Options{}, runFetch),
}

var (
	fetchDonor string
	fetchLabel string
)

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&fetchDonor, "donor", "", "Donor the analysis belongs to (required)")
	fetchCmd.Flags().StringVar(&fetchLabel, "label", "", "Source label to store the analysis under (required)")
	_ = fetchCmd.MarkFlagRequired("donor")
	_ = fetchCmd.MarkFlagRequired("label")
}

func runFetch(app *appctx.App, cmd *cobra.Command, args []string) error {
	if err := id.ValidateDonor(fetchDonor); err != nil {
		return err
	}
	repo, err := app.Repos.Resolve(args[0])
	if err != nil {
		return err
	}
	ref, err := donorlist.ParseSourceRef(fmt.Sprintf("%s:%s:%s", fetchLabel, repo.Name, args[1]))
	if err != nil {
		return err
	}

	ctx := logging.WithLogger(cmd.Context(), app.Log)
	client := repos.NewClient(app.Repos, app.Config.FetchTimeout)
	tree := donorlist.Tree{Root: app.Config.WorkDir}
	_, path, err := merge.FetchSource(ctx, tree, fetchDonor, ref, client)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
