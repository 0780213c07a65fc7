// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command bantayd runs the sharing-detection and enforcement engine of
// a paid-WiFi gateway: TTL classification, per-device session caps,
// the violation ledger, and the nftables TTL enforcement layer, with
// the portal/operator HTTP surface in front.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/piso-net/bantay/internal/admission"
	"github.com/piso-net/bantay/internal/api"
	"github.com/piso-net/bantay/internal/classify"
	"github.com/piso-net/bantay/internal/clock"
	"github.com/piso-net/bantay/internal/config"
	"github.com/piso-net/bantay/internal/enforce"
	"github.com/piso-net/bantay/internal/fwrule"
	"github.com/piso-net/bantay/internal/ledger"
	"github.com/piso-net/bantay/internal/logging"
	"github.com/piso-net/bantay/internal/metrics"
	"github.com/piso-net/bantay/internal/store"
	"github.com/piso-net/bantay/internal/tracker"
)

func main() {
	configPath := flag.String("config", "", "Path to HCL config file")
	listenAddr := flag.String("listen", "", "Override the configured listen address")
	flag.Parse()

	if err := run(*configPath, *listenAddr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, listenOverride string) error {
	cfg := &config.Config{}
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg.ListenAddr = config.DefaultListenAddr
		cfg.StateDir = config.DefaultStateDir
		cfg.LogLevel = "info"
	}
	if listenOverride != "" {
		cfg.ListenAddr = listenOverride
	}

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Output: os.Stderr,
	})
	logging.SetRoot(logger)

	sec, err := cfg.Security.Resolve()
	if err != nil {
		return fmt.Errorf("resolving security config: %w", err)
	}
	provider := config.NewSecurityProvider(sec)

	if err := os.MkdirAll(cfg.StateDir, 0o750); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	st, err := store.Open(filepath.Join(cfg.StateDir, "bantay.db"))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	clk := clock.Real{}
	m := metrics.New()
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m.Register(registry)

	prober := &classify.PingProber{Privileged: true}
	classifier := classify.New(prober, enforce.NewTrafficRecorder(st, clk), logging.WithComponent("classify"))
	tr := tracker.New(st, clk, logging.WithComponent("tracker"))
	ld := ledger.New(st, clk, logging.WithComponent("ledger"))
	adm := admission.New(classifier, tr, ld, logging.WithComponent("admission"))

	var backend fwrule.Backend
	backend, err = fwrule.NewNFTBackend(logging.WithComponent("fwrule"))
	if err != nil {
		// Layer 1 still works without the kernel backend; record and
		// keep going rather than refuse to start.
		logger.Warn("nftables backend unavailable, layer-2 enforcement disabled", "err", err)
		backend = fwrule.UnavailableBackend{}
	}
	rules := fwrule.NewManager(st, backend, clk, logging.WithComponent("fwrule"))

	engine := enforce.New(provider, adm, tr, ld, rules, m, logging.WithComponent("enforce"))
	sweeper := enforce.NewSweeper(provider, tr, rules, st, clk, m, logging.WithComponent("sweep"))
	sweeper.Start()
	defer sweeper.Stop()

	server := api.NewServer(api.Options{
		Engine:   engine,
		Sweeper:  sweeper,
		Store:    st,
		Logger:   logging.WithComponent("api"),
		Registry: registry,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe(cfg.ListenAddr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
