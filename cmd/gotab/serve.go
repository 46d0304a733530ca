package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hfi/gotab/internal/server"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the /go resolver endpoint",
		Long: `Serve the management API under /api, the resolver under /go?q=<text>,
health probes and Prometheus metrics. Point a browser search engine at
http://<listen>/go?q=%s to use keywords from the address bar.

SIGHUP re-reads the config file and applies logging.audit.enabled and
logging.audit.level without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open("api")
			if err != nil {
				return err
			}
			if listen == "" {
				listen = a.cfg.Server.Listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)

			l, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", listen, err)
			}
			return serve(ctx, a, l, hup)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "address to listen on (overrides server.listen)")
	return cmd
}

// serve runs the HTTP server on l until ctx is done. Every value received
// on reload re-applies the audit settings from the config file.
func serve(ctx context.Context, a *app, l net.Listener, reload <-chan os.Signal) error {
	srvCfg := server.DefaultConfig()
	srvCfg.Addr = l.Addr().String()
	srvCfg.Version = Version
	srvCfg.MetricsPath = ""
	if a.cfg.Metrics.Enabled {
		srvCfg.MetricsPath = a.cfg.Metrics.Path
	}

	srv := server.New(srvCfg, server.Deps{
		Manager:  a.manager,
		Resolver: a.resolver,
		Logger:   a.logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info().Str("addr", srv.Addr()).Str("version", Version).Msg("gotab listening")
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-reload:
				if err := a.reloadAudit(); err != nil {
					a.logger.Warn().Err(err).Msg("reload failed, keeping current audit settings")
				}
			}
		}
	})
	return g.Wait()
}
