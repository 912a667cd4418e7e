// Package main serves askweb as an MCP tool server over stdio.
//
// Stdout carries the protocol, so every diagnostic goes to the log file or
// stderr.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/entrhq/askweb/pkg/browser"
	"github.com/entrhq/askweb/pkg/config"
	"github.com/entrhq/askweb/pkg/history"
	"github.com/entrhq/askweb/pkg/logging"
	"github.com/entrhq/askweb/pkg/metrics"
	"github.com/entrhq/askweb/pkg/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile  string
	Headless    bool
	History     string
	NoHistory   bool
	MetricsAddr string
	Verbosity   string
	Install     bool
	ShowVersion bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("askweb-mcp v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "Shutting down...")
		cancel()
	}()

	if err := run(ctx, cli); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "askweb-mcp: %v\n", err)
		os.Exit(1)
	}
	cancel()
}

func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.BoolVar(&cli.Headless, "headless", true, "Run Chromium without a window")
	flag.StringVar(&cli.History, "history", "", "Path to the conversation history database (overrides config)")
	flag.BoolVar(&cli.NoHistory, "no-history", false, "Disable conversation history")
	flag.StringVar(&cli.MetricsAddr, "metrics-addr", "", "Listen address for Prometheus metrics, e.g. :9090")
	flag.StringVar(&cli.Verbosity, "verbosity", "", "Log verbosity: quiet, normal, verbose or debug")
	flag.BoolVar(&cli.Install, "install", false, "Download the Playwright driver and Chromium before the first launch")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "askweb-mcp - web search answers as an MCP tool\n\n")
		fmt.Fprintf(os.Stderr, "Usage: askweb-mcp [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Serve with defaults\n")
		fmt.Fprintf(os.Stderr, "  askweb-mcp\n\n")
		fmt.Fprintf(os.Stderr, "  # Visible browser and metrics\n")
		fmt.Fprintf(os.Stderr, "  askweb-mcp -headless=false -metrics-addr :9090\n\n")
	}

	flag.Parse()
	return cli
}

// loadConfig layers the file (if any) and then explicitly set flags over
// the defaults.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if cli.ConfigFile != "" {
		loaded, err := config.Load(cli.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "headless":
			cfg.Browser.Headless = cli.Headless
		case "install":
			cfg.Browser.Install = cli.Install
		case "history":
			cfg.History.Path = cli.History
		case "metrics-addr":
			cfg.Metrics.Addr = cli.MetricsAddr
		case "verbosity":
			cfg.Logging.Verbosity = cli.Verbosity
		}
	})
	if cli.NoHistory {
		cfg.History.Path = ""
	}

	return cfg, cfg.Validate()
}

func run(ctx context.Context, cli *CLIConfig) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Logging.Verbosity != "" {
		logging.SetVerbosity(cfg.Logging.Verbosity)
	}

	log := logging.MustLogger("askweb-mcp")
	defer log.Close()
	log.Infof("askweb-mcp v%s starting, target=%s headless=%t", version, cfg.Target.URL, cfg.Browser.Headless)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(reg)

	pipeline, err := browser.NewPipeline(cfg, collector, log)
	if err != nil {
		return err
	}

	var store server.HistoryStore
	if cfg.History.Path != "" {
		hs, openErr := history.Open(cfg.History.Path, log)
		if openErr != nil {
			_ = pipeline.Manager.Shutdown()
			return openErr
		}
		store = hs
		log.Infof("recording conversation history in %s", cfg.History.Path)
	}

	srv := server.New(pipeline.Searcher, pipeline.Manager, store, version, log)

	if cfg.Metrics.Addr != "" {
		go func() {
			if serveErr := metrics.Serve(ctx, cfg.Metrics.Addr, reg, log); serveErr != nil {
				log.Errorf("metrics listener stopped: %v", serveErr)
			}
		}()
	}

	serveErr := srv.ServeStdio(ctx, os.Stdin, os.Stdout)
	if errors.Is(serveErr, context.Canceled) {
		serveErr = nil
	}

	if shutdownErr := srv.Shutdown(); shutdownErr != nil {
		log.Errorf("shutdown: %v", shutdownErr)
	}
	log.Infof("askweb-mcp stopped")
	return serveErr
}
