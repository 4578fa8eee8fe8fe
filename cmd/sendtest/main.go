// Binary sendtest checks Telegram connectivity and optionally pushes a
// test message through the same client the relay uses, so deployment
// problems can be diagnosed without firing a real webhook.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"

	"tvcornix-go/internal/config"
	"tvcornix-go/internal/telegram"
	"tvcornix-go/internal/util"
)

func main() {
	send := flag.Bool("send", false, "send a test message after the connectivity check")
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()
	log := util.NewLogger("debug")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == "" {
		log.Fatal().Msg("telegram bot token and chat id are required")
	}

	tg := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, log,
		telegram.WithBaseURL(cfg.Telegram.APIBaseURL),
		telegram.WithTimeout(time.Duration(cfg.Telegram.TimeoutMs)*time.Millisecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	info, err := tg.GetMe(ctx)
	if err != nil {
		log.Error().Err(err).Msg("getMe failed")
		os.Exit(1)
	}
	log.Info().Str("username", info.Username).Int64("id", info.ID).Msg("bot reachable")

	if *send {
		msg, err := tg.SendMessage(ctx, "🧪 relay connectivity test "+time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			log.Error().Err(err).Msg("send failed")
			os.Exit(1)
		}
		log.Info().Int64("message_id", msg.MessageID).Msg("test message delivered")
	}
}
