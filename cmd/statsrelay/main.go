// Command statsrelay runs the adaptive-sampling StatsD relay daemon:
// urfave/cli/v2 for flag parsing, os/signal for graceful shutdown, and a
// Prometheus /metrics + /healthz HTTP surface alongside the UDP/TCP
// ingest listener.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/theatrus/statsrelay/internal/clock"
	"github.com/theatrus/statsrelay/internal/config"
	"github.com/theatrus/statsrelay/internal/forwarder"
	"github.com/theatrus/statsrelay/internal/relay"
	"github.com/theatrus/statsrelay/internal/rlog"
	"github.com/theatrus/statsrelay/internal/selfstat"
)

func main() {
	app := &cli.App{
		Name:  "statsrelay",
		Usage: "adaptive-sampling relay for the StatsD metric line protocol",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a TOML config file",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log := rlog.New(os.Stderr, level)

	registry := prometheus.NewRegistry()
	stats := selfstat.New(registry)

	fwd, err := forwarder.NewUDP(cfg.DownstreamAddress, cfg.DownstreamCompress, log)
	if err != nil {
		return err
	}
	defer fwd.Close()

	rl, err := relay.New(cfg, log, clock.New(), stats, fwd)
	if err != nil {
		return err
	}
	if err := rl.Start(); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: cfg.MetricsAddress, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("statsrelay: metrics server exited: %v", err)
		}
	}()

	log.Infof("statsrelay: listening on %s/%s, forwarding to %s, metrics on %s",
		cfg.ListenAddress, cfg.ListenProtocol, cfg.DownstreamAddress, cfg.MetricsAddress)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	log.Infof("statsrelay: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	rl.Stop()
	return nil
}
