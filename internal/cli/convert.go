package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/AkatukiSora/powerlog-replay/internal/parser"
	"github.com/AkatukiSora/powerlog-replay/internal/replay"
)

var convertFlags struct {
	output   string
	format   string
	indent   string
	compact  bool
	warnings bool
}

var convertCmd = &cobra.Command{
	Use:   "convert [file]",
	Short: "Convert a Power.log into a replay document",
	Long: `Parse a Power.log and write every match it contains as one replay
document. With no file, or "-", the log is read from standard input.

Examples:
  # XML to stdout
  powerlog-replay convert Power.log

  # Compact JSON to a file
  powerlog-replay convert Power.log --format json --compact -o replay.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVarP(&convertFlags.output, "output", "o", "", "output file (default stdout)")
	convertCmd.Flags().StringVarP(&convertFlags.format, "format", "f", "", "output format: xml, json (default render.format)")
	convertCmd.Flags().StringVar(&convertFlags.indent, "indent", "", "indentation per level (default render.indent)")
	convertCmd.Flags().BoolVar(&convertFlags.compact, "compact", false, "no indentation or newlines")
	convertCmd.Flags().BoolVar(&convertFlags.warnings, "warnings", false, "print every parse warning to stderr")
}

func runConvert(cmd *cobra.Command, args []string) error {
	formatName := cfg.Render.Format
	if cmd.Flags().Changed("format") {
		formatName = convertFlags.format
	}
	format, err := replay.ParseFormat(formatName)
	if err != nil {
		return err
	}
	opts := replay.Options{Indent: cfg.Render.Indent, Compact: cfg.Render.Compact}
	if cmd.Flags().Changed("indent") {
		opts.Indent = convertFlags.indent
	}
	if cmd.Flags().Changed("compact") {
		opts.Compact = convertFlags.compact
	}

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	res, err := parser.ParseReader(in)
	if err != nil {
		return fmt.Errorf("parse log: %w", err)
	}

	out := cmd.OutOrStdout()
	var outFile *os.File
	if convertFlags.output != "" {
		outFile, err = os.Create(convertFlags.output)
		if err != nil {
			return err
		}
		defer outFile.Close()
		out = outFile
	}
	bw := bufio.NewWriter(out)
	if err := replay.Render(bw, format, res.Matches, opts); err != nil {
		return fmt.Errorf("render %s: %w", format, err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if outFile != nil {
		if err := outFile.Close(); err != nil {
			return err
		}
	}

	errOut := cmd.ErrOrStderr()
	if convertFlags.warnings {
		for _, w := range res.Warnings {
			fmt.Fprintln(errOut, w.String())
		}
	}
	fmt.Fprintf(errOut, "%s matches, %s lines, %s warnings (log format %s)\n",
		humanize.Comma(int64(len(res.Matches))),
		humanize.Comma(res.Stats.LinesSeen),
		humanize.Comma(res.Stats.Warnings),
		res.Format)
	return nil
}
