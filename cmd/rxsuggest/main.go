// Copyright 2025 The RxSuggest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main implements the drug-name suggestion server and CLI [DBG] application.

RxSuggest completes partially typed medication names. Every keystroke gets an
instant answer from a bundled dictionary; once typing pauses, the openFDA label
endpoint is asked for brand names with the same prefix and the two lists are
merged. Remote answers are cached per query for the life of the process.

# Usage

Start the IPC server with default settings:

	rxsuggest

Use a custom dictionary and enable debug mode:

	rxsuggest -dict /path/to/names.txt -d

Run in CLI mode for interactive testing, simulating 80ms between keystrokes:

	rxsuggest -c -delay 80

Run without network access:

	rxsuggest -offline

# Configuration

Runtime configuration is read from config.toml in the user config directory,
created with defaults on first run, or from the file given with -config:

	[suggest]
	min_query_len = 2
	debounce_ms = 300
	local_limit = 5
	merged_limit = 10

	[remote]
	enabled = true
	base_url = "https://api.fda.gov/drug/label.json"
	field = "openfda.brand_name"
	rate_per_second = 4.0

	[cache]
	max_entries = 0

Flags override the file.

# IPC Protocol

The server speaks MessagePack over stdin/stdout; see package server for the message
shapes. Logs always go to stderr.

	{"id": "k1", "sid": "rx-form", "q": "met"}

# Command Line Flags

	-version     Show current version
	-d           Enable debug logging
	-c           Run the interactive CLI instead of the server
	-config      Path to a config.toml
	-dict        Dictionary file or directory (default: bundled list)
	-offline     Disable remote lookups
	-debounce    Quiet period in milliseconds before a remote lookup
	-cache       Maximum cached queries (0 keeps all)
	-delay       CLI only: milliseconds between simulated keystrokes
	-metrics     Address to serve Prometheus metrics on, e.g. :9464
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/rxsuggest/rxsuggest/internal/cli"
	"github.com/rxsuggest/rxsuggest/internal/logger"
	"github.com/rxsuggest/rxsuggest/internal/metrics"
	"github.com/rxsuggest/rxsuggest/internal/utils"
	"github.com/rxsuggest/rxsuggest/pkg/config"
	"github.com/rxsuggest/rxsuggest/pkg/dictionary"
	"github.com/rxsuggest/rxsuggest/pkg/openfda"
	"github.com/rxsuggest/rxsuggest/pkg/server"
	"github.com/rxsuggest/rxsuggest/pkg/suggest"
)

const (
	Version = "0.3.0"
	AppName = "rxsuggest"
	gh      = "https://github.com/rxsuggest/rxsuggest"
)

// sigHandler cancels the root context on SIGINT/SIGTERM and exits if shutdown stalls.
func sigHandler(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		cancel()
		time.Sleep(500 * time.Millisecond)
		os.Exit(0)
	}()
}

// main only manages the flow; the work lives in the packages it wires together.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigHandler(cancel)

	showVersion := flag.Bool("version", false, "Show current version")
	debugMode := flag.Bool("d", false, "Toggle debug mode")
	cliMode := flag.Bool("c", false, "Run CLI -- useful for testing and debugging")
	configPath := flag.String("config", "", "Path to a custom config.toml")
	dictPath := flag.String("dict", "", "Dictionary file or directory (default: bundled list)")
	offline := flag.Bool("offline", false, "Disable remote lookups")
	debounceMs := flag.Int("debounce", 0, "Quiet period in ms before a remote lookup (0: from config)")
	cacheSize := flag.Int("cache", -1, "Maximum cached queries, 0 keeps all (-1: from config)")
	typeDelayMs := flag.Int("delay", -1, "CLI: ms between simulated keystrokes (-1: from config)")
	metricsAddr := flag.String("metrics", "", "Serve Prometheus metrics on this address")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	logger.Setup(*debugMode)
	if !*debugMode {
		log.SetLevel(log.WarnLevel)
	}

	cfg, usedPath, err := config.LoadConfigWithPriority(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Debugf("Using config file: (%s)", config.GetActiveConfigPath(usedPath))

	applyFlags(cfg, *dictPath, *debounceMs, *cacheSize, *typeDelayMs, *metricsAddr)

	dictSource := utils.ResolveDataPath(cfg.Dict.Path)
	dict, err := dictionary.Load(dictSource)
	if err != nil {
		log.Fatalf("Failed to load dictionary: %v", err)
	}
	log.Debugf("Dictionary ready: %d names", dict.Len())

	var remote suggest.Lookup
	if *offline || !cfg.Remote.Enabled {
		log.Warn("Remote lookups disabled, serving dictionary matches only")
	} else {
		remote = openfda.New(cfg.OpenFDA())
	}

	opts := cfg.SuggestOptions()
	if cfg.Server.MetricsAddr != "" {
		m := metrics.NewMetrics()
		opts.Recorder = m
		go func() {
			if err := m.Serve(ctx, cfg.Server.MetricsAddr); err != nil {
				log.Errorf("Metrics server stopped: %v", err)
			}
		}()
	}

	suggester := suggest.NewSuggester(dict, remote, suggest.NewCache(cfg.Cache.MaxEntries), opts)

	// CLI is mainly for testing and dbg purposes.
	if *cliMode {
		delay := time.Duration(cfg.CLI.TypeDelayMs) * time.Millisecond
		inputHandler := cli.NewInputHandler(suggester, os.Stdin, os.Stdout, delay, cfg.CLI.ShowSource)
		if err := inputHandler.Start(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("CLI error: %v", err)
		}
		return
	}

	log.Debug("spawning IPC")
	srv := server.NewServer(suggester, os.Stdin, os.Stdout, server.Options{
		MaxSessions: cfg.Server.MaxSessions,
		MaxQueryLen: cfg.Server.MaxQueryLen,
	})

	showStartupInfo(dictSource, dict.Len(), remote != nil)

	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// applyFlags lets explicit flags win over the config file.
func applyFlags(cfg *config.Config, dictPath string, debounceMs, cacheSize, typeDelayMs int, metricsAddr string) {
	if dictPath != "" {
		cfg.Dict.Path = dictPath
	}
	if debounceMs > 0 {
		cfg.Suggest.DebounceMs = debounceMs
	}
	if cacheSize >= 0 {
		cfg.Cache.MaxEntries = cacheSize
	}
	if typeDelayMs >= 0 {
		cfg.CLI.TypeDelayMs = typeDelayMs
	}
	if metricsAddr != "" {
		cfg.Server.MetricsAddr = metricsAddr
	}
}

func printVersion() {
	banner := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    false,
		ReportTimestamp: false,
		Prefix:          "",
	})

	styles := log.DefaultStyles()
	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	banner.SetStyles(styles)

	banner.Print("")
	banner.Print("[ RxSuggest ] Drug-name suggestions, local first")
	banner.Print("", "version", Version)
	banner.Print("")
	banner.Print("use -h or --help to see available options")
	banner.Print("Github Repo", "gh", gh)
}

// showStartupInfo writes basic init info to stderr; stdout belongs to the IPC stream.
func showStartupInfo(dictSource string, names int, remote bool) {
	if dictSource == "" {
		dictSource = "bundled"
	}
	info := logger.New(AppName)
	info.SetLevel(log.InfoLevel)
	info.Infof("Version: %s", Version)
	info.Infof("Process ID: [ %d ]", os.Getpid())
	info.Infof("dictionary: ( %s, %d names )", dictSource, names)
	info.Infof("remote lookups: %t", remote)
	info.Info("status: ready")
}
