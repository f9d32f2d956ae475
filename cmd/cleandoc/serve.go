package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/api"
	"github.com/cleanidoc/cleandoc/pkg/security"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server, the scheduler and the health monitor",
	Long: `Run the export pipeline as a daemon.

The HTTP API, the daily export and weekly retention jobs and the
dependency health checks all run until SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		noScheduler, _ := cmd.Flags().GetBool("no-scheduler")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			tlsCfg, err := a.serverTLS()
			if err != nil {
				return err
			}

			a.events.Start()
			defer a.events.Stop()

			go a.monitor.Run(ctx)

			if a.cfg.Scheduler.Enabled && !noScheduler {
				a.scheduler.Start()
				for job, next := range a.scheduler.NextRuns() {
					a.logger.Info().Str("job", job).Time("next_run", next).Msg("Job scheduled")
				}
			} else {
				a.logger.Info().Msg("Scheduler disabled, jobs run only on demand")
			}

			deps := api.Deps{
				Exports:  a.store,
				Exporter: a.exporter,
				Audit:    a.audit,
				Jobs:     a.scheduler,
				Events:   a.events,
			}
			if a.downloads != nil {
				deps.Objects = a.objects
				deps.Downloads = a.downloads
			}
			server := api.NewServer(deps)

			errCh := make(chan error, 1)
			go func() {
				var err error
				if tlsCfg != nil {
					err = server.StartTLS(addr, tlsCfg)
				} else {
					err = server.Start(addr)
				}
				if err != nil {
					errCh <- fmt.Errorf("API server error: %w", err)
				}
			}()

			var runErr error
			select {
			case <-ctx.Done():
				a.logger.Info().Msg("Shutting down")
			case runErr = <-errCh:
				a.logger.Error().Err(runErr).Msg("API server stopped")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn().Err(err).Msg("API server did not shut down cleanly")
			}
			a.scheduler.Stop()

			a.logger.Info().Msg("Shutdown complete")
			return runErr
		})
	},
}

// serverTLS returns nil when TLS is disabled
func (a *app) serverTLS() (*tls.Config, error) {
	t := a.cfg.Server.TLS
	if !t.Enabled {
		return nil, nil
	}

	var (
		cert *tls.Certificate
		err  error
	)
	if t.CertFile != "" {
		cert, err = security.LoadCertFromFile(t.CertFile, t.KeyFile)
	} else {
		hosts := []string{"localhost", "127.0.0.1"}
		if u, perr := url.Parse(a.cfg.Server.PublicURL); perr == nil && u.Hostname() != "" {
			hosts = append(hosts, u.Hostname())
		}
		cert, err = security.LoadOrCreateServerCert(filepath.Join(a.cfg.Store.DataDir, "tls"), hosts)
	}
	if err != nil {
		return nil, err
	}

	if security.CertNeedsRotation(cert.Leaf) {
		a.logger.Warn().
			Dur("remaining", security.GetCertTimeRemaining(cert.Leaf)).
			Msg("API certificate expires soon")
	}
	return security.ServerTLSConfig(cert), nil
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (defaults to server.addr)")
	serveCmd.Flags().Bool("no-scheduler", false, "Do not start the cron jobs")
}
