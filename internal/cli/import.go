package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/AkatukiSora/powerlog-replay/internal/application"
)

var importCmd = &cobra.Command{
	Use:   "import [file...]",
	Short: "Import logs into the database",
	Long: `Import Power.log files into the match database.

With file arguments each file is imported once, resuming where a previous
import of the same file stopped. Without arguments every log found in the
configured log directories is imported, oldest first.`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := openService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		active, err := svc.BootstrapImportAllLogsWithProgress(ctx, func(p application.BootstrapProgress) {
			fmt.Fprintf(out, "[%d/%d] %s\n", p.Current, p.Total, p.Path)
		})
		if err != nil {
			return err
		}
		totals := svc.SessionTotals()
		fmt.Fprintf(out, "imported %s matches; latest log %s\n", humanize.Comma(int64(totals.Matches)), active)
		return nil
	}

	for _, path := range args {
		res, err := svc.ImportFile(ctx, path)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		fmt.Fprintf(out, "%s: %s matches (%s new, %s updated, %s warnings)\n",
			path,
			humanize.Comma(int64(res.Matches)),
			humanize.Comma(int64(res.Inserted)),
			humanize.Comma(int64(res.Updated)),
			humanize.Comma(res.Warnings))
	}
	return nil
}
