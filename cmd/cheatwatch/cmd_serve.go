package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"cheatwatch/internal/api"
	"cheatwatch/internal/config"
	"cheatwatch/internal/core"
	"cheatwatch/internal/metrics"
	"cheatwatch/internal/platform"
	"cheatwatch/internal/publish"
	"cheatwatch/internal/stages"
)

func runServe(cmd *cobra.Command, args []string) error {
	env, err := setup(false)
	if err != nil {
		return err
	}
	defer env.log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	emitters, closePub, err := publisher(ctx, env)
	if err != nil {
		return err
	}
	defer closePub()

	orch := stages.NewFromConfig(env.cfg, stages.Setup{
		Env:      platform.CurrentEnv(),
		Logger:   env.logger,
		Metrics:  m,
		Emitters: emitters,
	})

	addr := serveAddr
	if addr == "" {
		addr = env.cfg.API.Addr
	}
	fmt.Printf("[*] Serving on http://%s (POST /scans to start a scan)\n", addr)
	srv := api.NewServer(ctx, orch, env.log.Recorder(), reg, env.logger)
	return srv.ListenAndServe(ctx, addr)
}

func runWatch(cmd *cobra.Command, args []string) error {
	env, err := setup(false)
	if err != nil {
		return err
	}
	defer env.log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	emitters, closePub, err := publisher(ctx, env)
	if err != nil {
		return err
	}
	defer closePub()

	cfg := env.cfg
	orch := stages.NewFromConfig(cfg, stages.Setup{
		Env:      platform.CurrentEnv(),
		Logger:   env.logger,
		Emitters: emitters,
	})

	// 1. Initial scan
	scanOnce(ctx, orch, env.logger)

	// 2. Rescan on change. Indicators and scanners are rebuilt from cfg on
	// every scan, so the reloaded values are swapped in between scans.
	files := []string{configPath, cfg.Hash.Database, cfg.Indicators.KeywordsFile,
		cfg.Indicators.SitesFile, cfg.Indicators.ChatFile}
	w, err := config.NewWatcher(files, 500*time.Millisecond, env.logger)
	if err != nil {
		return err
	}
	fmt.Println("[*] Watching for changes. Press Ctrl+C to stop.")

	return w.Run(ctx, func(changed []string) {
		env.logger.Info("configuration changed, rescanning", "files", changed)
		reloaded := config.Load(configPath, env.logger)
		reloaded.DataDir = cfg.DataDir
		reloaded.Logging = cfg.Logging
		*cfg = *reloaded
		scanOnce(ctx, orch, env.logger)
	})
}

func scanOnce(ctx context.Context, orch *stages.Orchestrator, logger *slog.Logger) {
	res, err := orch.Run(ctx)
	if err != nil {
		logger.Warn("scan not started", "error", err)
		return
	}
	switch res.State {
	case stages.StateCompleted:
		fmt.Printf("[+] Risk %d%% (%s), %d events\n", res.Summary.TotalPercent, res.Summary.Level, len(orch.Events()))
	case stages.StateFailed:
		fmt.Printf("[-] Scan failed: %v\n", res.Err)
	default:
		fmt.Printf("[!] Scan %s\n", res.State)
	}
}

// publisher connects to NATS when configured. The returned func closes the
// publisher and the connection.
func publisher(ctx context.Context, env *runtimeEnv) ([]core.Emitter, func(), error) {
	url := natsURL
	if url == "" {
		url = env.cfg.NATS.URL
	}
	if url == "" {
		return nil, func() {}, nil
	}

	nc, err := publish.Connect(url)
	if err != nil {
		return nil, nil, err
	}
	pub := publish.New(nc, env.cfg.NATS.Subject, env.logger)
	pub.Start(ctx)
	fmt.Printf("[*] Publishing evidence to %s (%s)\n", url, env.cfg.NATS.Subject)

	return []core.Emitter{pub}, func() {
		pub.Close()
		nc.Drain()
	}, nil
}
