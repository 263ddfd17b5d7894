// QuantFleet pipeline server — runs the data/research/contest workflow on a
// schedule or on demand, and serves the ops API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/semaphore"

	"github.com/quantfleet/quantfleet/pkg/agent"
	"github.com/quantfleet/quantfleet/pkg/api"
	"github.com/quantfleet/quantfleet/pkg/artifact"
	"github.com/quantfleet/quantfleet/pkg/config"
	"github.com/quantfleet/quantfleet/pkg/contest"
	"github.com/quantfleet/quantfleet/pkg/datasource"
	"github.com/quantfleet/quantfleet/pkg/events"
	"github.com/quantfleet/quantfleet/pkg/llm"
	"github.com/quantfleet/quantfleet/pkg/market"
	"github.com/quantfleet/quantfleet/pkg/scheduler"
	"github.com/quantfleet/quantfleet/pkg/slack"
	"github.com/quantfleet/quantfleet/pkg/tools"
	"github.com/quantfleet/quantfleet/pkg/version"
	"github.com/quantfleet/quantfleet/pkg/workflow"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("QUANTFLEET_CONFIG", "./config/quantfleet.yaml"),
		"Path to the configuration file")
	trigger := flag.String("trigger", "",
		`Run the pipeline once for this trigger time ("2006-01-02 15:04:05") and exit`)
	trainDays := flag.Int("train-days", 0,
		"With -trigger: train the sharpe predictor over this many trading days before the trigger time, then exit")
	flag.Parse()

	// .env is optional; a deployed pod carries real environment variables.
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file, continuing with existing environment", "error", err)
	}

	// 1. Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.System.LogLevel)
	slog.Info("starting quantfleet",
		"version", version.Full(),
		"config", *configPath,
		"data_agents", len(cfg.DataAgents),
		"research_agents", len(cfg.Research.Agents))

	// 2. LLM clients, one per configured purpose, behind the shared retry
	// policy and (optionally) a process-wide inflight cap.
	var inflight *semaphore.Weighted
	if cfg.System.MaxInflightLLM > 0 {
		inflight = semaphore.NewWeighted(int64(cfg.System.MaxInflightLLM))
	}
	clients := make(map[string]llm.Client, len(cfg.LLMProviders))
	for purpose, pc := range cfg.LLMProviders {
		clients[purpose] = llm.NewRetryingClient(llm.NewOpenAIClient(llm.OpenAIOptions{
			Model:    pc.Model,
			APIKey:   pc.ResolveAPIKey(),
			BaseURL:  pc.BaseURL,
			Inflight: inflight,
		}), llm.DefaultRetryPolicy())
	}
	llmRegistry := llm.NewRegistry(clients)
	defer func() {
		if err := llmRegistry.Close(); err != nil {
			slog.Error("error closing LLM clients", "error", err)
		}
	}()

	// 3. Market provider
	provider := buildMarketProvider(cfg.Market)

	// 4. Data sources behind the sqlite cache
	var cache *datasource.Cache
	if cfg.System.CacheDB != "" {
		cache, err = datasource.OpenCache(cfg.System.CacheDB)
		if err != nil {
			slog.Error("failed to open source cache", "path", cfg.System.CacheDB, "error", err)
			os.Exit(1)
		}
		defer cache.Close()
	}
	sources := buildSources(cfg, cache)

	// 5. Artifact store and event bus
	store, err := artifact.NewStore(cfg.System.ArtifactDir)
	if err != nil {
		slog.Error("failed to init artifact store", "dir", cfg.System.ArtifactDir, "error", err)
		os.Exit(1)
	}
	bus := events.NewBus()
	defer bus.Close()

	// 6. Tool registry
	toolRegistry := tools.NewRegistry(
		tools.FinalReportTool{},
		tools.NewPriceInfoTool(provider, cfg.Market.Name),
		tools.NewSearchNewsTool(sources, sources.Keys()),
	)

	// 7. Runtime
	runtime := &agent.Runtime{
		Config:  cfg,
		LLM:     llmRegistry,
		Market:  provider,
		Sources: sources,
		Tools:   toolRegistry,
		Store:   store,
		Bus:     bus,
	}
	if err := runtime.Validate(); err != nil {
		slog.Error("runtime validation failed", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	if *trainDays > 0 {
		runTraining(ctx, cfg, runtime, *trigger, *trainDays)
		return
	}

	company := workflow.NewCompany(runtime)

	if *trigger != "" {
		runOnce(ctx, company, *trigger)
		return
	}

	// 8. Run manager, notifications, scheduler
	notifier := slack.NewService(slack.ServiceConfig{
		Token:   cfg.Slack.ResolveSlackToken(),
		Channel: cfg.Slack.Channel,
	})
	if notifier == nil {
		slog.Info("slack notifications disabled")
	}
	manager := workflow.NewManager(company).WithNotifier(notifier)

	sched, err := scheduler.New(manager, cfg.Schedule)
	if err != nil {
		slog.Error("failed to build scheduler", "error", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	// 9. Ops API (non-blocking)
	errCh := make(chan error, 1)
	var srv *api.Server
	if cfg.System.ListenAddr != "" {
		srv = api.NewServer(cfg, manager, store, bus)
		go func() {
			if err := srv.Start(); err != nil {
				errCh <- err
			}
		}()
	}

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("server error triggered shutdown", "error", err)
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("API server shutdown error", "error", err)
		}
	}
	slog.Info("shutdown complete")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func buildMarketProvider(mc config.MarketConfig) *market.MemoryProvider {
	p := market.NewMemoryProvider(mc.Name, mc.TargetSymbols)
	for _, date := range mc.Holidays {
		p.AddHoliday(date)
	}
	for name, code := range mc.CustomSymbols {
		p.AddSymbol(name, code)
	}
	return p
}

// buildSources registers one file-backed source per key referenced by the
// data-agent pool, each wrapped with the cache when configured.
func buildSources(cfg *config.Config, cache *datasource.Cache) *datasource.Registry {
	dir := cfg.System.SourceDataDir
	if dir == "" {
		dir = "./data"
	}
	registry := datasource.NewRegistry()
	seen := make(map[string]bool)
	for _, da := range cfg.DataAgents {
		for _, key := range da.DataSourceList {
			if seen[key] {
				continue
			}
			seen[key] = true
			registry.Register(datasource.WithCache(datasource.NewFileSource(key, dir), cache))
		}
	}
	return registry
}

// runOnce executes one pipeline run in the foreground and exits.
func runOnce(ctx context.Context, company *workflow.Company, triggerTime string) {
	result, err := company.Run(ctx, triggerTime)
	if err != nil {
		slog.Error("pipeline run failed", "trigger_time", triggerTime, "error", err)
		os.Exit(1)
	}
	if result.WeightResult != nil {
		for name, w := range result.WeightResult.Weights {
			slog.Info("allocated weight", "agent", name, "weight", w)
		}
	}
	slog.Info("pipeline run completed", "trigger_time", triggerTime)
}

// runTraining fits the sharpe predictor models over the trading days before
// the trigger time and writes them to the configured model directory.
func runTraining(ctx context.Context, cfg *config.Config, runtime *agent.Runtime, triggerTime string, days int) {
	if triggerTime == "" {
		slog.Error("-train-days requires -trigger")
		os.Exit(1)
	}
	if cfg.Contest.ModelDir == "" {
		slog.Error("contest.model_dir must be configured for training")
		os.Exit(1)
	}

	clock := "09:00:00"
	if _, c, ok := strings.Cut(triggerTime, " "); ok {
		clock = c
	}
	triggerTimes := make([]string, 0, days)
	cursor := triggerTime
	for i := 0; i < days; i++ {
		date, err := runtime.Market.PreviousTradingDate(cursor)
		if err != nil {
			slog.Warn("calendar walk stopped early", "at", cursor, "error", err)
			break
		}
		cursor = date + " " + clock
		triggerTimes = append([]string{cursor}, triggerTimes...)
	}

	agentNames := make([]string, 0, len(cfg.Research.Agents))
	for _, ra := range cfg.Research.Agents {
		agentNames = append(agentNames, ra.AgentName)
	}

	trainer := &contest.Trainer{
		Store:      runtime.Store,
		Provider:   runtime.Market,
		MarketName: cfg.Market.Name,
		WindowDays: cfg.Contest.WindowDays,
	}
	if _, err := trainer.Train(ctx, agentNames, triggerTimes, cfg.Contest.ModelDir); err != nil {
		slog.Error("training failed", "error", err)
		os.Exit(1)
	}
	slog.Info("predictor models written", "dir", cfg.Contest.ModelDir, "days", len(triggerTimes))
}
