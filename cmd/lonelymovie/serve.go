package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/lonelymovie/lonelymovie/internal/server"
	"github.com/lonelymovie/lonelymovie/internal/util"
	"github.com/lonelymovie/lonelymovie/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, headless(cmd))
		if err != nil {
			return err
		}
		defer a.Close()

		opts := []server.Option{
			server.WithTitles(a.titles),
			server.WithMetrics(a.metrics.Handler()),
			server.WithPoolStats(a.pool.Stats),
			server.WithRequestTimeout(settings.Extraction.RequestTimeout),
			server.WithRetryAfter(settings.Pool.AcquireTimeout),
		}
		if a.ledger != nil {
			opts = append(opts, server.WithHealth(a.ledger))
		}
		if settings.StaticDir != "" {
			opts = append(opts, server.WithStaticDir(settings.StaticDir))
		}

		util.Info("Starting LonelyMovie",
			"version", version.Version,
			"sources", len(a.registry.IDs()),
			"default", a.registry.Default(),
			"pool", settings.Pool.Size,
		)
		return server.New(a.engine, a.registry, opts...).ListenAndServe(ctx, settings.Addr)
	},
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "", "listen address (default :8000)")
	lo.Must0(v.BindPFlag("addr", serveCmd.Flags().Lookup("addr")))
	serveCmd.Flags().IntP("pool", "p", 0, "number of concurrent browser sessions")
	lo.Must0(v.BindPFlag("pool.size", serveCmd.Flags().Lookup("pool")))
	serveCmd.Flags().String("static", "", "serve a built web client from this directory")
	lo.Must0(v.BindPFlag("static_dir", serveCmd.Flags().Lookup("static")))
}
