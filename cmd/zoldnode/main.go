// Package main runs zoldnode, a gossip node in the zold network: it serves
// wallet ledgers over HTTP, mines proof-of-work scores in the background,
// and periodically probes known remotes.
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

	"github.com/yegor256/zold/internal/front"
	"github.com/yegor256/zold/internal/key"
	"github.com/yegor256/zold/internal/metronome"
	"github.com/yegor256/zold/internal/nodectx"
	"github.com/yegor256/zold/internal/zconfig"
	"github.com/yegor256/zold/pkg/logging"
)

var version = "0.1.0-dev"

func main() {
	var (
		home                = flag.String("home", "~/.zold", "Persistent-state directory")
		invoice             = flag.String("invoice", "", "Score invoice (prefix@id), overrides config")
		bindAddr            = flag.String("bind", "", "HTTP bind address, overrides config bind_port")
		threads             = flag.Int("threads", -1, "Farm worker count, overrides config")
		strength            = flag.Int("strength", -1, "Required proof-of-work strength, overrides config")
		standalone          = flag.Bool("standalone", false, "Run without a remotes registry")
		ignoreScoreWeakness = flag.Bool("ignore-score-weakness", false, "Accept sub-strength peer scores")
		neverReboot         = flag.Bool("never-reboot", false, "Disable self-exit on newer peer version")
		logLevel            = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion         = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{
		Level:      *logLevel,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("zoldnode %s", version)
		os.Exit(0)
	}

	dataDir := expandPath(*home)
	cfg, err := zconfig.Load(dataDir)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	if *invoice != "" {
		cfg.Invoice = *invoice
	}
	if *threads >= 0 {
		cfg.Threads = *threads
	}
	if *strength > 0 {
		cfg.Strength = *strength
	}
	if *standalone {
		cfg.Standalone = true
	}
	if *ignoreScoreWeakness {
		cfg.IgnoreScoreWeakness = true
	}
	if *neverReboot {
		cfg.NeverReboot = true
	}
	cfg.Logging.Level = *logLevel

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", "error", err)
	}

	identity, err := loadOrCreateIdentity(cfg)
	if err != nil {
		log.Fatal("Failed to load node identity", "error", err)
	}

	node, err := nodectx.New(cfg, identity)
	if err != nil {
		log.Fatal("Failed to build node context", "error", err)
	}

	f := front.New(node)
	addr := *bindAddr
	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.ActualBindPort())
	}
	if err := f.Start(addr); err != nil {
		log.Fatal("Failed to start HTTP front", "error", err)
	}

	farmCtx, cancelFarm := context.WithCancel(context.Background())
	node.Farm.Start(farmCtx)
	m := metronome.New(node)
	m.Start()

	printBanner(log, cfg, addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down...")
	m.Stop()
	node.Farm.Stop()
	cancelFarm()
	if err := f.Stop(); err != nil {
		log.Error("Error stopping HTTP front", "error", err)
	}
	log.Info("Goodbye!")
}

// loadOrCreateIdentity loads the node's RSA identity from <home>/id_rsa,
// generating and persisting one on first run.
func loadOrCreateIdentity(cfg *zconfig.Config) (*key.Private, error) {
	path := filepath.Join(cfg.Home, "id_rsa")
	if _, err := os.Stat(path); err == nil {
		return key.LoadPrivateFile(path)
	}
	priv, err := key.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", cfg.Home, err)
	}
	if err := os.WriteFile(path, []byte(priv.PrivateText()), 0o600); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	return priv, nil
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

func printBanner(log *logging.Logger, cfg *zconfig.Config, addr string) {
	log.Info("=================================================")
	log.Infof("  zoldnode %s", version)
	log.Info("=================================================")
	log.Infof("  Network:  %s", cfg.Network)
	log.Infof("  Invoice:  %s", cfg.Invoice)
	log.Infof("  Threads:  %d", cfg.Threads)
	log.Infof("  Strength: %d", cfg.Strength)
	log.Infof("  HTTP:     %s", addr)
	log.Infof("  Home:     %s", cfg.Home)
	log.Info("=================================================")
}
