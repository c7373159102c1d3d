package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"replygen/pkg/agent"
	"replygen/pkg/channels"
	_ "replygen/pkg/channels/autoload" // 自動註冊 Channels
	"replygen/pkg/config"
	"replygen/pkg/gateway"
	"replygen/pkg/handler"
	"replygen/pkg/llm"
	_ "replygen/pkg/llm/autoload" // 自動註冊 LLM Providers
	"replygen/pkg/monitor"
	"replygen/pkg/tools/system"
)

func main() {
	appPath := flag.String("config", "config.json", "application config file")
	sysPath := flag.String("system", "system.json", "system config file")
	flag.Parse()

	// --- 0. 讀取設定檔 ---
	cfg, sys, err := config.Load(*appPath, *sysPath)
	if err != nil {
		monitor.SetupSlog("info")
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	monitor.SetupSlog(sys.LogLevel)
	monitor.PrintBanner()

	// --- 1. LLM 設定 ---
	client, err := llm.NewFromConfig(cfg.LLM, sys)
	if err != nil {
		slog.Error("Failed to init LLM client", "error", err)
		os.Exit(1)
	}

	// --- 1a. 回應快取與歷史紀錄 ---
	cache := newCache(sys)
	sessions := llm.NewSessionManager(sys.HistoryDir)

	// --- 2. Agent ---
	name := cfg.AgentName
	if name == "" {
		name = "assistant"
	}
	a := agent.NewAgent(name, client)
	a.SetSystemMessage(cfg.SystemPrompt)
	a.SetStore(sessions)
	if cache != nil {
		a.SetCache(cache)
	}
	if sys.EnableTools {
		a.RegisterTool(system.NewTool())
	}

	// --- 3. Gateway 初始化（使用 Builder 模式）---
	gw, err := gateway.NewGatewayBuilder().
		WithSystemConfig(sys).
		WithMonitor(monitor.NewCLIMonitor()).
		WithChannel(channels.LoadFromConfig(cfg.Channels, sessions, sys)...).
		WithHandler(handler.NewChatHandler(a, sessions, sys)).
		Build()
	if err != nil {
		slog.Error("Failed to build gateway", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- 4. 設定熱更新 (僅 system prompt) ---
	go func() {
		appAbs, _ := filepath.Abs(*appPath)
		for changed := range config.WatchConfig(ctx, config.DefaultDebounce, *appPath) {
			if changed != appAbs {
				continue
			}
			updated, err := config.LoadAppConfig(*appPath)
			if err != nil {
				slog.Warn("Ignoring invalid config change", "error", err)
				continue
			}
			a.SetSystemMessage(updated.SystemPrompt)
			slog.Info("System prompt reloaded")
		}
	}()

	// 監聽系統信號
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	slog.Info("Received shutdown signal. Stopping services...")

	gw.StopAll()
	slog.Info("Bye!")
}

// newCache picks the response cache: none, on disk, or in memory.
func newCache(sys *config.SystemConfig) llm.Cache {
	if sys.DisableCache {
		return nil
	}
	if sys.CacheDir == "" {
		return llm.NewMemoryCache()
	}
	cache, err := llm.NewDiskCache(sys.CacheDir)
	if err != nil {
		slog.Warn("Falling back to in-memory cache", "dir", sys.CacheDir, "error", err)
		return llm.NewMemoryCache()
	}
	return cache
}
