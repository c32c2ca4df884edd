package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/solvin/controlplane/internal/config"
	"github.com/solvin/controlplane/internal/gateway"
	"github.com/solvin/controlplane/internal/monitor"
	"github.com/solvin/controlplane/internal/registry"
	"github.com/solvin/controlplane/internal/template"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
	// Commit is set via -ldflags at build time.
	Commit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		runCmd(os.Args[2:])
	case "version":
		fmt.Printf("controlplane %s (%s)\n", Version, Commit)
	default:
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `controlplane

Usage:
  controlplane run [flags]
  controlplane version

Commands:
  run       Run the control plane API server.
  version   Print build information.

`)
}

func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	listen := fs.String("listen", "", "Listen address (overrides config)")
	dbPath := fs.String("db", "", "SQLite database path (overrides config)")
	templatesDir := fs.String("templates-dir", "", "Templates directory (overrides config)")
	toolsDir := fs.String("tools-dir", "", "Tools directory (overrides config)")
	logFile := fs.String("log-file", "", "Log file tailed by /api/logs (overrides config)")
	logFormat := fs.String("log-format", "", "Log format: json|text (overrides config)")
	logLevel := fs.String("log-level", "", "Log level: debug|info|warn|error (overrides config)")
	_ = fs.Parse(args)

	cfg, err := config.Load(filepath.Clean(*cfgPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyFlag(&cfg.ListenAddr, *listen)
	applyFlag(&cfg.DBPath, *dbPath)
	applyFlag(&cfg.TemplatesDir, *templatesDir)
	applyFlag(&cfg.ToolsDir, *toolsDir)
	applyFlag(&cfg.LogFile, *logFile)
	applyFlag(&cfg.LogFormat, *logFormat)
	applyFlag(&cfg.LogLevel, *logLevel)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	store, err := registry.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open registry: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	templates, err := template.New(template.Options{
		Logger: logger,
		Store:  store,
		Dir:    cfg.TemplatesDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init template manager: %v\n", err)
		os.Exit(1)
	}

	srv, err := gateway.New(gateway.Options{
		Logger:     logger,
		ListenAddr: cfg.ListenAddr,
		Store:      store,
		Templates:  templates,
		ToolsDir:   cfg.ToolsDir,
		LogFile:    cfg.LogFile,
		APIVersion: cfg.APIVersion,
		Upstreams:  cfg.Upstreams,
		Monitor:    monitor.NewService(logger),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init server: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown on SIGINT/SIGTERM.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	if err := srv.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		os.Exit(1)
	}
	logger.Info("control plane started", "version", Version, "db", cfg.DBPath)

	<-ctx.Done()
	_ = srv.Close()
	logger.Info("control plane stopped")
}

func applyFlag(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}

// newLogger builds the process logger. When a log file is configured the
// logger writes there, which is also the file /api/logs tails.
func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	var out io.Writer = os.Stdout
	closeLog := func() {}
	if path := strings.TrimSpace(cfg.LogFile); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		out = f
		closeLog = func() { _ = f.Close() }
	}

	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(cfg.LogLevel)) {
	case "", "info":
		lvl = slog.LevelInfo
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("unknown log level: %s", cfg.LogLevel)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "", "text":
		h = slog.NewTextHandler(out, opts)
	case "json":
		h = slog.NewJSONHandler(out, opts)
	default:
		return nil, nil, fmt.Errorf("unknown log format: %s", cfg.LogFormat)
	}

	return slog.New(h), closeLog, nil
}
