// Command server runs the securest authentication gateway.
//
// Configuration is read from a YAML file (-config, SECUREST_CONFIG,
// ./config.yaml or /etc/securest/config.yaml) and SECUREST_* environment
// variables. See pkg/config for the full option list.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rhuss/securest/pkg/config"
	"github.com/rhuss/securest/pkg/debug"
	"github.com/rhuss/securest/pkg/transport"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	debug.Init(debug.Options{
		Categories: cfg.Logging.Debug,
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	var srv *transport.Server
	handler := app.Handler(func() bool { return srv.Draining() })
	srv = transport.NewServer(handler,
		transport.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transport.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transport.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	)

	slog.Info("authentication configured",
		"enabled", cfg.Auth.Enabled,
		"providers", app.guard.Chain().Names(),
		"userstore", cfg.UserStore.Type,
		"redis_cache", cfg.UserStore.Cache.Redis.Addr != "",
	)

	return srv.Run(ctx)
}
