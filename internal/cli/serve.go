package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	coffeeapp "github.com/quincarter/coffee-app-sub000"
	"github.com/quincarter/coffee-app-sub000/internal/metrics"
)

// ServeCommand runs the web app until interrupted.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Override LISTEN_ADDR",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Override METRICS_ADDR; empty disables the metrics listener",
			},
		},
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	cfg, err := GetConfig(c)
	if err != nil {
		return err
	}
	log := GetLogger(c)
	if addr := c.String("addr"); addr != "" {
		cfg.ListenAddr = addr
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}

	m := metrics.New()
	app, err := coffeeapp.New(
		coffeeapp.WithConfig(cfg),
		coffeeapp.WithLogger(log),
		coffeeapp.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	defer app.Close()

	servers := []*http.Server{{
		Addr:              cfg.ListenAddr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", m.Handler())
		servers = append(servers, &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			log.Info("HTTP server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(srv)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case serveErr = <-errCh:
		log.Error("HTTP server error", "err", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown error", "addr", srv.Addr, "err", err)
		}
	}
	log.Info("server stopped gracefully")
	return serveErr
}
