package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/fastblame/pkg/mcp"
	"github.com/Sumatoshi-tech/fastblame/pkg/observability"
	"github.com/Sumatoshi-tech/fastblame/pkg/version"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The server exposes one tool:
  - git_blame: blame hunks for a file, optionally at a commit and for a line range`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := startup(opts, observability.ModeMCP)
			if err != nil {
				return err
			}
			defer rt.shutdown()

			factory, err := newBlamerFactory(rt)
			if err != nil {
				return err
			}

			blamer, err := factory.For(rt.cfg.Git.Repository)
			if err != nil {
				return err
			}
			defer closeBlamer(rt, blamer)

			srv := mcp.NewServer(mcp.ServerDeps{
				Blamer:    blamer,
				BlamerFor: factory.For,
				Logger:    rt.providers.Logger,
				Metrics:   factory.red,
				Tracer:    rt.providers.Tracer,
				Version:   version.Version,
			})

			return srv.Run(contextOf(cmd))
		},
	}
}
