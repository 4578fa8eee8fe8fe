// Binary server runs the TradingView → Telegram → Cornix relay.
package main

import (
	"context"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tvcornix-go/internal/config"
	"tvcornix-go/internal/metrics"
	"tvcornix-go/internal/route"
	"tvcornix-go/internal/server"
	"tvcornix-go/internal/store"
	"tvcornix-go/internal/telegram"
	"tvcornix-go/internal/util"
)

const defaultConfigPath = "config.yaml"

func main() {
	// Local development keeps secrets in .env; deployed environments set
	// real environment variables and the file is simply absent.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	bootLog := util.NewLogger("info")
	cfg, err := config.Load(configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Str("path", configPath).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		bootLog.Fatal().Err(err).Msg("incomplete config")
	}

	ring := util.NewRingBuffer(200)
	log := util.NewLoggerWithRing(cfg.App.LogLevel, ring)

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tg := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, log,
		telegram.WithBaseURL(cfg.Telegram.APIBaseURL),
		telegram.WithTimeout(time.Duration(cfg.Telegram.TimeoutMs)*time.Millisecond),
		telegram.WithRetry(cfg.Telegram.Attempts, time.Duration(cfg.Telegram.RetryBackoffMs)*time.Millisecond),
	)

	st := store.Open(cfg.Store.Path, log, store.WithLimits(cfg.Store.MaxSignals, cfg.Store.RetentionDays))
	stop := make(chan struct{})
	flushInterval := time.Duration(cfg.Store.FlushInterval) * time.Millisecond
	if flushInterval <= 0 {
		flushInterval = 5 * time.Minute
	}
	go st.FlushEvery(flushInterval, stop)

	router := route.NewRouter(tg, log)
	srv := server.New(cfg, log, ring, st, router, tg)

	// Probe the Bot API in the background so a slow platform network never
	// blocks the webhook listener from coming up.
	go func() {
		info, err := tg.Probe(ctx)
		if err != nil {
			log.Error().Err(err).Msg("telegram bot connection failed")
			srv.SetBotInfo(nil, false)
			return
		}
		log.Info().Str("bot", info.Username).Int64("id", info.ID).Msg("telegram bot connected")
		srv.SetBotInfo(info, true)
	}()

	httpServer := &http.Server{Addr: cfg.Server.Addr, Handler: srv.Engine()}
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("env", cfg.App.Env).Msg("server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	close(stop)
	st.Flush()
	log.Info().Msg("http server closed")
}
