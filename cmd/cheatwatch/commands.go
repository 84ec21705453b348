package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"cheatwatch/internal/config"
	"cheatwatch/internal/core"
	"cheatwatch/internal/logging"
	"cheatwatch/internal/stages"
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string
	dataDir    string

	concurrent bool
	timeout    string
	noCase     bool
	jsonOutput bool

	serveAddr string
	natsURL   string

	rootCmd = &cobra.Command{
		Use:           "cheatwatch",
		Short:         "Scan a host for artifacts of game cheat software",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// --- Scanning ---
	scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Run one scan and print the risk report",
		RunE:  runScan, // Defined in cmd_scan.go
	}
	reportCmd = &cobra.Command{
		Use:   "report [case-id]",
		Short: "Print a stored case report (latest when no id is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runReport, // Defined in cmd_scan.go
	}

	// --- Long running ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve live scan status, evidence and metrics over HTTP",
		RunE:  runServe, // Defined in cmd_serve.go
	}
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Rescan whenever the configuration or indicator files change",
		RunE:  runWatch, // Defined in cmd_serve.go
	}

	// --- Utilities ---
	indicatorsCmd = &cobra.Command{
		Use:   "indicators",
		Short: "Print the indicator set the current configuration builds",
		RunE:  runIndicators, // Defined in cmd_scan.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override the directory for cases and logs")

	scanCmd.Flags().BoolVar(&concurrent, "concurrent", false, "run the three scanners in parallel")
	scanCmd.Flags().StringVar(&timeout, "timeout", "", "cancel the scan after this duration (e.g. 10m)")
	scanCmd.Flags().BoolVar(&noCase, "no-case", false, "do not write a case file")
	scanCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the report as JSON")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().StringVar(&natsURL, "nats", "", "publish evidence to this NATS server")
	watchCmd.Flags().StringVar(&natsURL, "nats", "", "publish evidence to this NATS server")

	rootCmd.AddCommand(scanCmd, reportCmd, serveCmd, watchCmd, indicatorsCmd)
}

// runtimeEnv is what every command needs: the resolved config and a logger.
type runtimeEnv struct {
	cfg    *config.Config
	log    *logging.Logger
	logger *slog.Logger
	dirs   core.Dirs
}

// setup loads the configuration, applies flag overrides and opens logging.
// quiet keeps log lines off the terminal (they still reach the log file).
func setup(quiet bool) (*runtimeEnv, error) {
	boot := logging.New(logging.Config{Level: "warn"}).Logger
	cfg := config.Load(configPath, boot)

	if dataDir != "" {
		cfg.DataDir = config.ExpandPath(dataDir)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	dirs := stages.DataDirs(cfg)
	if err := dirs.Ensure(); err != nil {
		return nil, fmt.Errorf("prepare data dir: %w", err)
	}
	if cfg.Logging.LogDir == "" {
		cfg.Logging.LogDir = dirs.Logs
	}
	cfg.Logging.Service = "cheatwatch"
	cfg.Logging.Quiet = cfg.Logging.Quiet || quiet

	l := logging.New(cfg.Logging)
	return &runtimeEnv{cfg: cfg, log: l, logger: l.Logger, dirs: dirs}, nil
}
