package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/gnosmerge/internal/bulk"
	"github.com/lherron/gnosmerge/internal/checksum"
	"github.com/lherron/gnosmerge/internal/cli/appctx"
	"github.com/lherron/gnosmerge/internal/render"
)

var checksumCmd = &cobra.Command{
	Use:   "checksum <file>...",
	Short: "Compute the MD5 checksums recorded for data files",
	Long: `Checksum prints the digest a merge would record for each file. Table
output matches md5sum's "digest  path" layout.`,
	Args: cobra.MinimumNArgs(1),
	RunE: appctx.WithApp(appctx.Options{}, runChecksum),
}

var checksumJobs int

func init() {
	rootCmd.AddCommand(checksumCmd)

	checksumCmd.Flags().IntVarP(&checksumJobs, "jobs", "j", 4, "Number of files hashed concurrently")
}

type fileChecksum struct {
	File     string `json:"file" yaml:"file"`
	Method   string `json:"method" yaml:"method"`
	Checksum string `json:"checksum" yaml:"checksum"`
}

type checksumList []fileChecksum

func (l checksumList) Headers() []string { return []string{"CHECKSUM", "FILE"} }

func (l checksumList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, c := range l {
		rows = append(rows, []string{c.Checksum, c.File})
	}
	return rows
}

func (l checksumList) Items() []any {
	items := make([]any, len(l))
	for i, c := range l {
		items[i] = c
	}
	return items
}

func runChecksum(app *appctx.App, cmd *cobra.Command, args []string) error {
	if checksumJobs < 1 {
		return fmt.Errorf("--jobs must be at least 1")
	}

	sums := make(checksumList, len(args))
	op := &bulk.Operation{Jobs: checksumJobs, Progress: cmd.ErrOrStderr(), Label: "Hashing"}
	res := op.Execute(cmd.Context(), args, func(_ context.Context, i int, path string) error {
		sum, err := checksum.File(path)
		if err != nil {
			return err
		}
		sums[i] = fileChecksum{File: path, Method: checksum.Method, Checksum: sum}
		return nil
	})
	if err := res.Err("file"); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if app.Format == render.FormatTable {
		for _, s := range sums {
			fmt.Fprintf(w, "%s  %s\n", s.Checksum, s.File)
		}
		return nil
	}
	return app.Renderer(w).Render(sums)
}
