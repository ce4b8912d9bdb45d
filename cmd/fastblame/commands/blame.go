package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/fastblame/pkg/blame"
	"github.com/Sumatoshi-tech/fastblame/pkg/observability"
)

type blameFlags struct {
	commit    string
	lineRange string
	start     int
	lines     int
	repo      string
	backend   string
	strict    bool
	format    string
	noColor   bool
}

// NewBlameCommand creates the blame command.
func NewBlameCommand(opts *GlobalOptions) *cobra.Command {
	flags := &blameFlags{}

	cmd := &cobra.Command{
		Use:   "blame <path>",
		Short: "Blame one file and print its hunks",
		Long: `Run git blame on one file and print one row per hunk: the origin commit,
the line the hunk starts at in that commit, the lines it covers now, and when the
commit was authored and committed.

The range is either -L START,+COUNT (or START,END) or --start with --lines.
Without a range the whole file is blamed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlame(cmd, opts, flags, args[0])
		},
	}

	cmd.Flags().StringVar(&flags.commit, "commit", "", "commit to blame at (default: HEAD)")
	cmd.Flags().StringVarP(&flags.lineRange, "range", "L", "", "line range as START,+COUNT or START,END")
	cmd.Flags().IntVar(&flags.start, "start", 0, "first line of the range, 1-based")
	cmd.Flags().IntVar(&flags.lines, "lines", 0, "number of lines in the range")
	cmd.Flags().StringVar(&flags.repo, "repo", "", "repository directory (default: git.repository from config)")
	cmd.Flags().StringVar(&flags.backend, "backend", "", "blame backend: subprocess or libgit2")
	cmd.Flags().BoolVar(&flags.strict, "strict", false, "fail on malformed porcelain lines")
	cmd.Flags().StringVar(&flags.format, "format", FormatText, "output format: text, json or yaml")
	cmd.Flags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")

	cmd.MarkFlagsMutuallyExclusive("range", "start")
	cmd.MarkFlagsMutuallyExclusive("range", "lines")

	return cmd
}

func (f *blameFlags) request(path string) (blame.Request, error) {
	req := blame.Request{Path: path, Commit: f.commit, StartLine: f.start, NumLines: f.lines}

	if f.lineRange != "" {
		rng, err := blame.ParseLineRange(f.lineRange)
		if err != nil {
			return blame.Request{}, err
		}

		req.StartLine, req.NumLines = rng.Start, rng.Count
	}

	return req, req.Validate()
}

func runBlame(cmd *cobra.Command, opts *GlobalOptions, flags *blameFlags, path string) error {
	req, err := flags.request(path)
	if err != nil {
		return err
	}

	err = validateFormat(flags.format)
	if err != nil {
		return err
	}

	rt, err := startup(opts, observability.ModeCLI)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	if flags.repo != "" {
		rt.cfg.Git.Repository = flags.repo
	}

	if flags.backend != "" {
		rt.cfg.Blame.Backend = flags.backend
	}

	if flags.strict {
		rt.cfg.Blame.Strict = true
	}

	factory, err := newBlamerFactory(rt)
	if err != nil {
		return err
	}

	blamer, err := factory.For(rt.cfg.Git.Repository)
	if err != nil {
		return err
	}
	defer closeBlamer(rt, blamer)

	it, err := blamer.Blame(contextOf(cmd), req)
	if err != nil {
		return err
	}

	hunks, err := blame.Collect(it)
	if err != nil {
		return err
	}

	renderer := Renderer{Format: flags.format, NoColor: flags.noColor}

	return renderer.Render(cmd.OutOrStdout(), Report{Request: req, Hunks: hunks})
}
