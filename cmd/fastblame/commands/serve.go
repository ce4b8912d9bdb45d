package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/fastblame/pkg/observability"
	"github.com/Sumatoshi-tech/fastblame/pkg/server"
	"github.com/Sumatoshi-tech/fastblame/pkg/version"
)

// NewServeCommand creates the HTTP server command.
func NewServeCommand(opts *GlobalOptions) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve blame over HTTP",
		Long: `Start an HTTP server exposing:
  GET /api/v1/blame?path=&commit=&start=&lines=   blame hunks as JSON
  GET /healthz                                    liveness
  GET /metrics                                    Prometheus metrics

The server stops gracefully on SIGINT or SIGTERM.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := startup(opts, observability.ModeServe)
			if err != nil {
				return err
			}
			defer rt.shutdown()

			if cmd.Flags().Changed("host") {
				rt.cfg.Server.Host = host
			}

			if cmd.Flags().Changed("port") {
				rt.cfg.Server.Port = port
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

			srv := server.New(server.Options{
				Blamer:         blamer,
				Tracer:         rt.providers.Tracer,
				RED:            factory.red,
				Logger:         rt.providers.Logger,
				MetricsHandler: rt.providers.MetricsHandler,
				Version:        version.Version,
			})

			ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.ListenAndServe(ctx, rt.cfg.Server)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (default: server.host from config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default: server.port from config)")

	return cmd
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}
