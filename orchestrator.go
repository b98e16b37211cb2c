// orchestrator.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"fx_sentinel_go/broker"
	"fx_sentinel_go/command"
	"fx_sentinel_go/config"
	"fx_sentinel_go/journal"
	"fx_sentinel_go/logs"
	"fx_sentinel_go/metrics"
	"fx_sentinel_go/monitor"
	"fx_sentinel_go/notify"
	"fx_sentinel_go/risk"
	"fx_sentinel_go/sentiment"
	"fx_sentinel_go/state"
	"fx_sentinel_go/trader"
)

// Orchestrator wires the collaborators together and owns the lifecycle of
// the three workers: the command listener, the command processor and the
// control loop.
type Orchestrator struct {
	client     broker.Client
	mock       *broker.MockClient
	store      *state.Store
	jrnl       journal.Journal
	channel    notify.Channel
	engine     *trader.Engine
	processor  *command.Processor
	loop       *monitor.Loop
	metricsSrv *http.Server

	cfg    *config.Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator builds the full object graph. It verifies gateway
// connectivity up front in live mode; everything else degrades gracefully.
func NewOrchestrator(cfg *config.Config, envCfg *config.EnvConfig, stateFile, journalFile string) (*Orchestrator, error) {
	o := &Orchestrator{cfg: cfg}

	if cfg.UseSimulation {
		o.mock = broker.NewMockClient(cfg.Trading.Instruments, cfg.Normal.StartingCapital)
		o.mock.Start()
		o.client = o.mock
		logs.Warnf("<<<<<<<<<< WARNING: Running in simulation mode >>>>>>>>>>")
	} else {
		if envCfg.OandaAPIKey == "" || envCfg.OandaAccountID == "" {
			return nil, fmt.Errorf("OANDA_API_KEY and OANDA_ACCOUNT_ID must be set for live mode")
		}
		client := broker.NewOandaClient(envCfg.OandaAPIKey, envCfg.OandaAccountID, envCfg.OandaBaseURL, cfg.Normal.HTTPTimeoutSeconds)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := client.Ping(ctx); err != nil {
			return nil, fmt.Errorf("gateway connectivity check failed: %w", err)
		}
		o.client = client
	}

	o.store = state.NewStore(stateFile, cfg.Normal.StartingCapital)
	logs.Infof("State manager initialized, state will be persisted to: %s", stateFile)

	jrnl, err := journal.NewSQLite(journalFile)
	if err != nil {
		// The journal is an audit trail, not the source of truth.
		logs.Errorf("Failed to open trade journal at %s: %v. Continuing without it.", journalFile, err)
	} else {
		o.jrnl = jrnl
	}

	switch {
	case envCfg.TelegramBotToken != "" && envCfg.TelegramChatID != "":
		o.channel = notify.NewTelegramChannel(envCfg.TelegramBotToken, envCfg.TelegramChatID)
	case cfg.UseSimulation:
		logs.Warnf("No Telegram credentials configured, using console channel.")
		o.channel = notify.NewConsoleChannel()
	default:
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set for live mode")
	}

	scraper := sentiment.NewScraper(
		cfg.Sentiment.Sources,
		cfg.Trading.Instruments,
		envCfg.SentimentToken,
		cfg.Sentiment.ThrottleSeconds,
		cfg.Sentiment.RequestsPerMinute,
		cfg.Sentiment.HTTPTimeoutSeconds,
	)

	o.engine = trader.NewEngine(o.client, o.store, o.jrnl, cfg.Trading, cfg.Risk)
	o.processor = command.NewProcessor(o.store, o.channel, o.engine, 64)

	limits := risk.Limits{
		MaxDailyLossPercent:   cfg.Risk.MaxDailyLossPercent,
		MaxCapitalLossPercent: cfg.Risk.MaxCapitalLossPercent,
	}
	o.loop = monitor.New(o.store, o.engine, scraper, o.channel, o.jrnl, limits, monitor.Config{
		ScanInterval:      time.Duration(cfg.Normal.ScanIntervalSeconds) * time.Second,
		IdlePoll:          time.Duration(cfg.Normal.IdlePollSeconds) * time.Second,
		ErrorBackoff:      time.Duration(cfg.Normal.ErrorBackoffSeconds) * time.Second,
		HeartbeatInterval: time.Duration(cfg.Normal.HeartbeatIntervalMinutes) * time.Minute,
	}, o.fatalExit)

	o.ctx, o.cancel = context.WithCancel(context.Background())
	return o, nil
}

// Start launches the workers: listener feeding the command queue, the
// single-consumer command processor, the control loop, and the metrics
// endpoint.
func (o *Orchestrator) Start() {
	o.metricsSrv = metrics.Serve(o.cfg.Normal.MetricsListenAddr)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.channel.Listen(o.ctx, o.processor.Queue())
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.processor.Run(o.ctx)
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.loop.Run(o.ctx)
	}()

	logs.Info("Orchestrator started, press Ctrl+C to exit.")
}

// Stop performs the signal-driven graceful shutdown: flip to STOPPED
// unless halted, persist, notify, then wind the workers down.
func (o *Orchestrator) Stop() {
	logs.Info("Shutdown signal received. Stopping bot.")

	if o.store.Mode() != state.Halted {
		if err := o.store.Update(func(s *state.BotState) {
			s.Mode = state.Stopped
		}); err != nil {
			logs.Errorf("Failed to persist shutdown state: %v", err)
		}
	}

	if err := o.channel.Send("Bot shutting down."); err != nil {
		logs.Errorf("Failed to send shutdown notice: %v", err)
	}

	o.cancel()
	o.wg.Wait()

	if o.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.metricsSrv.Shutdown(ctx)
	}
	if o.mock != nil {
		o.mock.Stop()
	}

	// The final persist may race a just-finished tick's save; saving is
	// idempotent so a double flush is harmless.
	if err := o.store.Save(); err != nil {
		logs.Errorf("Final state flush failed: %v", err)
	}
	if o.jrnl != nil {
		o.jrnl.Close()
	}
	logs.Info("All services stopped.")
}

// fatalExit is the capital-breach termination path. The loop has already
// halted and persisted the state and notified the operator.
func (o *Orchestrator) fatalExit(code int) {
	if o.jrnl != nil {
		o.jrnl.Close()
	}
	logs.Close()
	os.Exit(code)
}
