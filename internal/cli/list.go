package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/AkatukiSora/powerlog-replay/internal/persistence"
)

var listFlags struct {
	player   string
	source   string
	resolved bool
	limit    int
	offset   int
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List imported matches",
	Long: `List stored matches in log order.

Examples:
  # Matches in which a player named "Alice" took part
  powerlog-replay list --player Alice

  # Second page of 20
  powerlog-replay list --limit 20 --offset 20`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listFlags.player, "player", "", "only matches with this resolved player name")
	listCmd.Flags().StringVar(&listFlags.source, "source", "", "only matches from this log file")
	listCmd.Flags().BoolVar(&listFlags.resolved, "resolved", false, "only matches where every player name is known")
	listCmd.Flags().IntVar(&listFlags.limit, "limit", 50, "maximum rows (0 for all)")
	listCmd.Flags().IntVar(&listFlags.offset, "offset", 0, "rows to skip")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := openService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	filter := persistence.MatchFilter{
		SourcePath:   listFlags.source,
		PlayerName:   listFlags.player,
		OnlyResolved: listFlags.resolved,
		Limit:        listFlags.limit,
		Offset:       listFlags.offset,
	}
	recs, total, err := svc.ListMatches(ctx, filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "UID\tSOURCE\t#\tSTARTED\tTURNS\tPLAYERS\tIMPORTED")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\t%s\n",
			shortUID(r.UID()),
			filepath.Base(filepath.Dir(r.Source.SourcePath))+"/"+filepath.Base(r.Source.SourcePath),
			r.Ordinal,
			r.StartTimestamp,
			r.Turns,
			playerNames(r.Players),
			humanize.Time(r.ImportedAt),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s of %s matches\n", humanize.Comma(int64(len(recs))), humanize.Comma(int64(total)))
	return nil
}

func shortUID(uid string) string {
	if len(uid) > 12 {
		return uid[:12]
	}
	return uid
}

func playerNames(players []persistence.MatchPlayer) string {
	names := make([]string, 0, len(players))
	for _, p := range players {
		if p.Resolved {
			names = append(names, p.Name)
		} else {
			names = append(names, "?")
		}
	}
	return strings.Join(names, ", ")
}
