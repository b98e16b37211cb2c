package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"fx_sentinel_go/config"
	"fx_sentinel_go/logs"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the config.yaml file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Println("Note: .env file not found, will continue using system environment variables.")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Fatal error: Unable to load config file '%s': %v\n", *configPath, err)
		os.Exit(1)
	}

	envCfg := config.LoadEnvConfig()

	for _, dir := range []string{cfg.Normal.LogDirectory, cfg.Normal.StateDirectory, cfg.Normal.JournalDirectory} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			fmt.Printf("Fatal error: Failed to create directory %s: %v\n", dir, err)
			os.Exit(1)
		}
	}

	logFile := filepath.Join(cfg.Normal.LogDirectory, "trading_bot.log")
	if err := logs.Init(cfg.Logs, logFile); err != nil {
		fmt.Printf("Fatal error: Failed to initialize logging system: %v\n", err)
		os.Exit(1)
	}
	defer logs.Close()

	logs.Infof("Configuration loaded successfully, logs will be written to: %s", logFile)

	stateFile := filepath.Join(cfg.Normal.StateDirectory, "state.json")
	journalFile := filepath.Join(cfg.Normal.JournalDirectory, "journal.db")

	orchestrator, err := NewOrchestrator(cfg, envCfg, stateFile, journalFile)
	if err != nil {
		logs.Fatalf("Failed to initialize Orchestrator: %v", err)
	}
	orchestrator.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	orchestrator.Stop()
}
