package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/AkatukiSora/powerlog-replay/internal/persistence"
)

var showFlags struct {
	summary bool
}

var showCmd = &cobra.Command{
	Use:   "show <uid>",
	Short: "Print the replay document of a stored match",
	Long: `Print the stored XML replay document of one match. The uid may be
abbreviated to the prefix shown by "list".`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().BoolVar(&showFlags.summary, "summary", false, "print the match summary instead of the document")
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := openService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	rec, err := svc.GetMatchByUID(ctx, args[0])
	if err != nil {
		return err
	}
	if rec == nil {
		rec, err = findByPrefix(cmd, svc, args[0])
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if showFlags.summary {
		fmt.Fprintf(out, "uid:      %s\n", rec.UID())
		fmt.Fprintf(out, "source:   %s (bytes %d-%d, lines %d-%d)\n",
			rec.Source.SourcePath, rec.Source.StartByte, rec.Source.EndByte, rec.Source.StartLine, rec.Source.EndLine)
		fmt.Fprintf(out, "started:  %s\n", rec.StartTimestamp)
		fmt.Fprintf(out, "turns:    %d\n", rec.Turns)
		fmt.Fprintf(out, "players:  %s\n", playerNames(rec.Players))
		fmt.Fprintf(out, "warnings: %d\n", rec.Warnings)
		fmt.Fprintf(out, "document: %s\n", humanize.Bytes(uint64(len(rec.Document))))
		fmt.Fprintf(out, "imported: %s\n", humanize.Time(rec.ImportedAt))
		return nil
	}
	if _, err := out.Write(rec.Document); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out)
	return err
}

type matchLister interface {
	ListMatches(ctx context.Context, f persistence.MatchFilter) ([]persistence.MatchRecord, int, error)
	GetMatchByUID(ctx context.Context, uid string) (*persistence.MatchRecord, error)
}

// findByPrefix resolves an abbreviated uid. It fails unless exactly one
// stored match starts with prefix.
func findByPrefix(cmd *cobra.Command, svc matchLister, prefix string) (*persistence.MatchRecord, error) {
	recs, _, err := svc.ListMatches(cmd.Context(), persistence.MatchFilter{})
	if err != nil {
		return nil, err
	}
	var found []string
	for _, r := range recs {
		if strings.HasPrefix(r.UID(), prefix) {
			found = append(found, r.UID())
		}
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("match %q not found", prefix)
	case 1:
		return svc.GetMatchByUID(cmd.Context(), found[0])
	default:
		return nil, fmt.Errorf("uid prefix %q is ambiguous (%d matches)", prefix, len(found))
	}
}
