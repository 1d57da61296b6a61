// File: cmd/lvserver/main.go
// Package main
// LV request/reply server: echo or badger-backed key/value processor,
// Prometheus metrics and graceful shutdown on SIGINT/SIGTERM.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/lvreactor/adapters"
	"github.com/momentics/lvreactor/api"
	"github.com/momentics/lvreactor/control"
	"github.com/momentics/lvreactor/examples/kvstore"
	"github.com/momentics/lvreactor/internal/logger"
	"github.com/momentics/lvreactor/pool"
	"github.com/momentics/lvreactor/server"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: "+control.DefaultConfigPath()+")")
	initPath := flag.String("init", "", "Write a default config file to this path and exit")
	flag.Parse()

	if *initPath != "" {
		if err := control.WriteDefault(*initPath); err != nil {
			log.Fatalf("write default config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *initPath)
		return
	}

	cfg, err := control.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	lg, closer, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer closer.Close()
	slog.SetDefault(lg)

	if err := run(cfg, lg); err != nil {
		lg.Error("server failed", "error", err)
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg *control.Config, lg *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	processors, closeProcessors, err := newProcessors(cfg.Processor)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeProcessors.Close(); err != nil {
			lg.Warn("close processor", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics control.Metrics = control.NoopMetrics{}
	if cfg.Metrics.Enabled {
		metrics = control.NewPrometheusMetrics(reg)
	}

	srv, err := server.NewServer(server.ConfigFrom(cfg.Server), adapters.Wrap(processors, adapters.Logging(lg)),
		server.WithLogger(lg),
		server.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	lg.Info("lvserver starting", "addr", srv.Addr().String(), "processor", cfg.Processor.Type)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		hs := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			lg.Info("metrics endpoint", "addr", cfg.Metrics.Listen)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	lg.Info("lvserver stopped")
	return err
}

// newProcessors builds the configured processor factory and whatever must be
// closed after the server stops.
func newProcessors(pc control.ProcessorConfig) (api.ProcessorFactory, io.Closer, error) {
	switch pc.Type {
	case "kvstore":
		opts, err := kvstore.OptionsFrom(pc.Options)
		if err != nil {
			return nil, nil, err
		}
		store, err := kvstore.Open(opts)
		if err != nil {
			return nil, nil, err
		}
		return pool.Shared(store), store, nil
	case "echo":
		echo := api.ProcessorFunc(func(cc *api.ClientContext) error {
			cc.SetReply(cc.Request())
			return nil
		})
		return pool.Shared(echo), io.NopCloser(nil), nil
	default:
		return nil, nil, fmt.Errorf("%w: processor %q", api.ErrNotSupported, pc.Type)
	}
}
