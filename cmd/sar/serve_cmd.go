package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iota-uz/sar/modules/registry/infrastructure/persistence"
	"github.com/iota-uz/sar/modules/registry/presentation/controllers"
	"github.com/iota-uz/sar/modules/registry/services"
	"github.com/iota-uz/sar/pkg/application"
	"github.com/iota-uz/sar/pkg/metrics"
	"github.com/iota-uz/sar/pkg/middleware"
	"github.com/iota-uz/sar/pkg/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		addr  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the registry over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conf := root.conf
			logger := conf.Logger()
			registry, err := root.openRegistry(ctx)
			if err != nil {
				return err
			}
			if _, err := registry.Compute(ctx); err != nil {
				logger.WithError(err).Warn("initial compute failed; serving anyway")
			}
			if watch || conf.Registry.Watch {
				go watchRegistry(ctx, conf.Registry.Path, logger, registry)
			}

			app := application.New()
			app.RegisterMiddleware(middleware.WithLogger(logger))
			app.RegisterControllers(controllers.NewRegistryController(registry, controllers.WithMaxIssues(conf.Registry.MaxIssues)))
			if conf.Prometheus.Enabled {
				app.RegisterMiddleware(metrics.Instrument())
				app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path, nil))
			}

			if addr == "" {
				addr = conf.SocketAddress
			}
			logger.WithField("addr", addr).Info("registry server listening")
			if err := server.NewHTTPServer(app).Start(ctx, addr); err != nil {
				return withCode(exitStorage, err)
			}
			logger.Info("registry server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from PORT and GO_APP_ENV)")
	cmd.Flags().BoolVar(&watch, "watch", false, "recompute after the registry changes on disk (SAR_WATCH)")
	return cmd
}

func watchRegistry(ctx context.Context, path string, logger *logrus.Logger, registry *services.RegistryService) {
	entry := logger.WithField("registry", path)
	err := persistence.Watch(ctx, path, entry, func(name string) {
		entry.WithField("file", name).Debug("registry changed on disk")
		registry.Invalidate()
	})
	if err != nil {
		entry.WithError(err).Warn("registry watcher stopped")
	}
}
