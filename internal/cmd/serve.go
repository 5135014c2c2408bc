package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"admission-gateway/internal/observability"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			rt, err := buildRuntime(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer rt.Close()

			h, err := buildHandler(cfg, rt, log)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           h,
				ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
				ReadTimeout:       cfg.Server.ReadTimeout,
				WriteTimeout:      cfg.Server.WriteTimeout,
				IdleTimeout:       cfg.Server.IdleTimeout,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			log.Info("gateway listening",
				zap.String("addr", cfg.Server.Addr),
				zap.String("upstream", cfg.Upstream.URL),
				zap.String("mode", string(rt.limiter.Mode())),
				zap.String("remote_backend", cfg.RemoteBackend()),
				zap.Int("route_classes", len(cfg.Routes)),
				zap.Bool("burst", cfg.Burst.Enabled),
				zap.Int("concurrency_max", cfg.Concurrency.Max))
			if rt.burst != nil {
				log.Info("api burst guard enabled",
					zap.Float64("rps", rt.burst.RPS()),
					zap.Int("burst", rt.burst.Burst()))
			}
			if cfg.Server.AdminEnabled {
				log.Warn("admin stats endpoint enabled; serve it on an internal listener only",
					zap.String("path", "/admin/ratelimit/stats"))
			}
			if rt.limiter == nil {
				log.Warn("no remote counter store configured; auth rate limiting is disabled (fail open)")
			}

			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			log.Info("gateway stopped")
			return nil
		},
	}
}
