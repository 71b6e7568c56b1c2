// Command welcome greets new group members over OneBot v11 and serves the
// chat commands and admin API that configure the greeting per group.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/welcome-agent/internal/command"
	"github.com/p-blackswan/welcome-agent/internal/config"
	"github.com/p-blackswan/welcome-agent/internal/event"
	"github.com/p-blackswan/welcome-agent/internal/health"
	"github.com/p-blackswan/welcome-agent/internal/metrics"
	"github.com/p-blackswan/welcome-agent/internal/mgmt"
	"github.com/p-blackswan/welcome-agent/internal/notice"
	"github.com/p-blackswan/welcome-agent/internal/onebot"
	"github.com/p-blackswan/welcome-agent/internal/publish"
	"github.com/p-blackswan/welcome-agent/internal/retry"
	"github.com/p-blackswan/welcome-agent/internal/runtime"
	"github.com/p-blackswan/welcome-agent/internal/settings"
	"github.com/p-blackswan/welcome-agent/internal/welcome"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.IsDevelopment() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Logger = logger

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	loc, _ := cfg.Location()
	policy, err := welcome.ParseSendPolicy(cfg.SendFailurePolicy)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("store", cfg.Store).
		Str("settings_path", cfg.SettingsPath()).
		Str("mgmt_addr", cfg.MgmtListenAddr).
		Bool("onebot_ws", cfg.OneBotWSEnabled()).
		Bool("webhook", cfg.WebhookEnabled()).
		Str("send_policy", string(policy)).
		Msg("starting welcome agent")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	checker := health.NewChecker(logger)
	m := metrics.New()

	// --- Settings document ---
	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open settings store")
	}
	defer store.Close()
	if pinger, ok := store.(interface{ Ping(context.Context) error }); ok {
		checker.Register("settings_store", health.PingCheck(pinger.Ping))
	}
	holder := settings.Open(ctx, store, logger)

	// --- Domain events ---
	var publisher publish.Publisher = publish.NoopPublisher{}
	if cfg.NATSEnabled() {
		np, err := publish.NewNATSPublisher(cfg.NATSURL, cfg.NATSTopicPrefix)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to connect to NATS (non-fatal), events not published")
		} else {
			publisher = np
			checker.Register("nats", health.OptionalConnectedCheck(np.Connected))
			logger.Info().Str("url", cfg.NATSURL).Msg("NATS publisher enabled")
		}
	}
	defer publisher.Close()

	// --- Runtime ---
	rtCfg := runtime.DefaultConfig()
	rtCfg.EventBufferSize = cfg.EventBufferSize
	rules := runtime.DefaultRules(welcome.HandlerID, command.HandlerID)
	if cfg.RoutingFile != "" {
		rc, err := runtime.LoadConfig(cfg.RoutingFile)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.RoutingFile).Msg("failed to load routing config")
		}
		rtCfg = rc.Apply(rtCfg)
		if len(rc.Routing) > 0 {
			rules = rc.Routing
		}
	}
	rt := runtime.New(rtCfg, logger)
	checker.Register("event_backlog", health.BacklogCheck(rt.Pending, rtCfg.EventBufferSize*3/4))

	// --- OneBot transport ---
	var caller onebot.Caller
	switch {
	case cfg.OneBotWSEnabled():
		wsCfg := onebot.DefaultWSConfig()
		wsCfg.URL = cfg.OneBotWSURL
		wsCfg.AccessToken = cfg.OneBotAccessToken
		wsCfg.ActionTimeout = cfg.OneBotTimeout
		wsCfg.MaxQueuedEvents = cfg.OneBotMaxQueued
		ws := onebot.NewWSClient(wsCfg, logger)
		rt.AddSource(ws)
		checker.Register("onebot_ws", health.ConnectedCheck(ws.IsConnected))
		checker.Register("onebot_queue", health.BacklogCheck(ws.Backlog, wsCfg.MaxQueuedEvents*3/4))
		caller = ws
	case cfg.OneBotHTTPEnabled():
		caller = onebot.NewHTTPClient(onebot.HTTPConfig{
			BaseURL:     cfg.OneBotHTTPURL,
			AccessToken: cfg.OneBotAccessToken,
			Timeout:     cfg.OneBotTimeout,
		})
	default:
		logger.Warn().Msg("no OneBot endpoint configured, greetings and replies will fail")
		caller = onebot.NewHTTPClient(onebot.HTTPConfig{BaseURL: "http://127.0.0.1:5700"})
	}
	api := onebot.NewAPI(caller)

	if cfg.WebhookEnabled() {
		rt.AddSource(event.NewWebhookSource(event.WebhookConfig{
			Addr:   cfg.WebhookAddr,
			Path:   cfg.WebhookPath,
			Secret: cfg.WebhookSecret,
		}, logger))
	}

	// --- Pipeline ---
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.SendRetryAttempts
	opts := welcome.Options{
		Location:  loc,
		Policy:    policy,
		Retry:     retryCfg,
		Publisher: publisher,
		Metrics:   m,
	}

	classifier := notice.NewClassifier(logger)
	welcomer := welcome.NewWelcomer(holder, api, opts, logger)
	commands := welcome.NewCommands(holder, opts, logger)

	noticeHandler := welcome.NewNoticeHandler(classifier, welcomer, m)
	commandHandler := command.NewHandler(command.Config{
		Prefix:     cfg.CommandPrefix,
		Name:       cfg.CommandName,
		RateLimit:  cfg.CommandRateLimit,
		RateWindow: cfg.CommandRateWindow,
	}, classifier, commands, api, m, logger)

	rt.AddHandler(noticeHandler)
	rt.AddHandler(commandHandler)
	rt.SetRouter(runtime.NewSmartRouter(rules, rt.Handlers(), logger))

	var wg sync.WaitGroup

	// --- Management API ---
	mgmtServer := mgmt.NewServer(ctx, mgmt.ServerConfig{
		ListenAddr: cfg.MgmtListenAddr,
		AuthConfig: mgmt.AuthConfig{
			Mode:      cfg.MgmtAuthMode,
			APIKey:    cfg.MgmtAPIKey,
			JWTSecret: cfg.MgmtJWTSecret,
		},
		RateLimit: mgmt.RateLimitConfig{
			RPS:   cfg.MgmtRateLimitRPS,
			Burst: cfg.MgmtRateLimitBurst,
		},
		CORSOrigins: cfg.MgmtCORSOrigins,
	}, mgmt.Deps{
		Settings: holder,
		Commands: commands,
		Checker:  checker,
		Metrics:  m,
	}, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mgmtServer.Start(); err != nil {
			logger.Error().Err(err).Msg("management API server error")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("runtime stopped")
			cancel()
		}
	}()

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := mgmtServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("management API server shutdown error")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("welcome agent stopped")
}

func openStore(cfg *config.Config, logger zerolog.Logger) (settings.Store, error) {
	if cfg.Store == config.StoreSQLite {
		return settings.NewSQLiteStore(cfg.SettingsPath(), logger)
	}
	return settings.NewFileStore(cfg.SettingsPath())
}
