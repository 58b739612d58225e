package cli

import (
	"github.com/spf13/cobra"

	"github.com/lherron/gnosmerge/internal/repos"
)

var rootCmd = &cobra.Command{
	Use:   "gnosmerge",
	Short: "Merge genomics analysis metadata records",
	Long: `gnosmerge combines several analysis metadata records describing the
same sample into one new record, rebuilds its file block from the files
on disk and writes it to a fresh upload directory.

Donors to merge are read from a tab-separated donor list
(donor, workflow, label:repo:analysis_id[,...]) in the work directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	f := rootCmd.PersistentFlags()
	f.String("work-dir", "", "Download tree and donor list directory (overrides GNOSMERGE_WORK_DIR)")
	f.String("upload-dir", "", "Directory merged records are written under (default <work-dir>/upload)")
	f.String("ledger", "", "Path to the run ledger (overrides GNOSMERGE_LEDGER_PATH)")
	f.String("policy-file", "", "Policy table replacing the built-in workflows")
	f.String("repos-file", "", "Repository table replacing the built-in one")
	f.Duration("fetch-timeout", repos.DefaultTimeout, "Metadata fetch timeout")
	f.String("log-level", "", "Log level: debug, info, warn, error")
	f.String("log-format", "", "Log format: auto, console, json")
	f.StringP("output", "o", "", "Output format: table, tsv, json, ndjson, yaml")
}
