package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/COhsrt/creepMiner/internal/config"
	"github.com/COhsrt/creepMiner/internal/logs"
	"github.com/COhsrt/creepMiner/internal/mining"
	"github.com/COhsrt/creepMiner/internal/webserver"
	"github.com/COhsrt/creepMiner/pkg/events"
)

var (
	// Version is set at build time
	Version = "dev"

	configPath  string
	listenAddr  string
	showVersion bool
)

var rootCmd = &cobra.Command{
	Use:   "creepminer",
	Short: "Proof-of-capacity mining node with a web operator console",
	Long: `creepMiner scans plot files for proof-of-capacity deadlines and submits
nonces to a pool. The built-in web console serves live status over a
websocket feed and lets an operator change settings, manage plot
directories and shut the node down.

Basic Usage:
  creepminer                       # Run with ./creepminer.toml
  creepminer -c /etc/creepminer.toml
  creepminer --listen :9090        # Override the console listen address

Console endpoints:
  GET  /                           # Operator dashboard
  GET  /ws                         # Live log/config websocket feed
  GET  /burst?requestType=...      # Pool-style mining info / nonce submission
  POST /settings, /plotdir/*,      # Mutating operations, guarded by the
       /rescan, /shutdown          # configured secret`,
	Run: runApp,
}

func init() {
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Show version information")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "creepminer.toml", "Path to the configuration file")
	rootCmd.Flags().StringVar(&listenAddr, "listen", "", "Web console listen address (overrides config)")
}

func runApp(cmd *cobra.Command, args []string) {
	if showVersion {
		fmt.Printf("creepminer %s\n", Version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if listenAddr != "" {
		cfg.WebServer.Listen = listenAddr
	}

	bus := events.NewEventBus()
	defer bus.Shutdown()

	logStore := logs.NewStore(cfg.MaxLogLines())
	miner := mining.NewMiner(cfg, logStore, bus)

	server, err := webserver.NewServer(cfg, miner, logStore, bus, Version)
	if err != nil {
		log.Fatalf("Failed to create web server: %v", err)
	}

	if watcher, err := cfg.Watch(bus); err != nil {
		log.Printf("Config watcher disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start web server: %v", err)
	}

	done := make(chan struct{}, 1)
	server.OnShutdown(func() {
		done <- struct{}{}
	})

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		log.Printf("Received %v, shutting down", sig)
		miner.Shutdown()
		server.Stop()
	case <-done:
		log.Printf("Shutdown requested via web console")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
