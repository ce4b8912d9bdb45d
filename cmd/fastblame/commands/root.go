// Package commands implements the fastblame cobra commands.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/fastblame/pkg/blame"
	"github.com/Sumatoshi-tech/fastblame/pkg/config"
	"github.com/Sumatoshi-tech/fastblame/pkg/observability"
	"github.com/Sumatoshi-tech/fastblame/pkg/version"
)

// GlobalOptions are the persistent flags shared by every command.
type GlobalOptions struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
}

// NewRootCommand builds the fastblame root command with all subcommands.
func NewRootCommand() *cobra.Command {
	opts := &GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "fastblame",
		Short: "Fast git blame hunks for tools and agents",
		Long: `fastblame runs git blame and reports one hunk per contiguous run of lines
with the same origin commit, including the commit's author and committer times.

Commands:
  blame     Blame one file from the command line
  serve     Serve blame over HTTP
  mcp       Serve blame as an MCP tool on stdio`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default: ./fastblame.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&opts.Quiet, "quiet", "q", false, "suppress output")

	rootCmd.AddCommand(NewBlameCommand(opts))
	rootCmd.AddCommand(NewServeCommand(opts))
	rootCmd.AddCommand(NewMCPCommand(opts))
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fastblame %s\n", version.String())
		},
	}
}

// app bundles what a command needs after startup.
type app struct {
	cfg       *config.Config
	providers observability.Providers
}

func (rt *app) shutdown() {
	err := rt.providers.Shutdown(context.Background())
	if err != nil {
		rt.providers.Logger.Warn("observability shutdown failed", "error", err)
	}
}

func closeBlamer(rt *app, b blame.Blamer) {
	err := blame.CloseBlamer(b)
	if err != nil {
		rt.providers.Logger.Warn("close blamer failed", "error", err)
	}
}

// startup loads configuration and initializes observability for mode.
func startup(opts *GlobalOptions, mode observability.AppMode) (*app, error) {
	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	providers, err := observability.Init(observabilityConfig(cfg, opts, mode))
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	return &app{cfg: cfg, providers: providers}, nil
}

func observabilityConfig(cfg *config.Config, opts *GlobalOptions, mode observability.AppMode) observability.Config {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Telemetry.Environment
	obsCfg.Mode = mode
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Telemetry.OTLPHeaders)
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.SampleRatio = cfg.Telemetry.SampleRatio
	obsCfg.LogLevel = observability.ParseLogLevel(cfg.Logging.Level)
	obsCfg.LogJSON = cfg.Logging.Format == "json"

	switch {
	case opts.Verbose:
		obsCfg.LogLevel = slog.LevelDebug
	case opts.Quiet:
		obsCfg.LogLevel = slog.LevelError
	}

	// stdout carries the protocol; clients parse stderr more easily as JSON.
	if mode == observability.ModeMCP {
		obsCfg.LogJSON = true
	}

	obsCfg.Prometheus = mode == observability.ModeServe

	return obsCfg
}

// blamerFactory builds instrumented Blamers that share one set of metrics.
type blamerFactory struct {
	cfg       *config.Config
	providers observability.Providers
	red       *observability.REDMetrics
	hunks     *observability.BlameMetrics
}

func newBlamerFactory(rt *app) (*blamerFactory, error) {
	red, err := observability.NewREDMetrics(rt.providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("create request metrics: %w", err)
	}

	hunks, err := observability.NewBlameMetrics(rt.providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("create blame metrics: %w", err)
	}

	return &blamerFactory{cfg: rt.cfg, providers: rt.providers, red: red, hunks: hunks}, nil
}

// For builds a Blamer over repoDir using the configured backend.
func (f *blamerFactory) For(repoDir string) (blame.Blamer, error) {
	b, err := blame.NewBlamer(blame.Options{
		Backend:   f.cfg.Blame.Backend,
		GitBinary: f.cfg.Git.Binary,
		RepoDir:   repoDir,
		Strict:    f.cfg.Blame.Strict,
		Logger:    f.providers.Logger,
	})
	if err != nil {
		return nil, err
	}

	return blame.Instrument(b, blame.Instrumentation{
		Backend: f.cfg.Blame.Backend,
		Tracer:  f.providers.Tracer,
		RED:     f.red,
		Hunks:   f.hunks,
		Logger:  f.providers.Logger,
	}), nil
}
