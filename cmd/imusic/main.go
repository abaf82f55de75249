// Command imusic runs the Telegram music bot.
package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/joho/godotenv"
	"github.com/maya-florenko/imusic/internal/app"
	"github.com/maya-florenko/imusic/internal/config"
	"github.com/maya-florenko/imusic/internal/downloader"
	"github.com/maya-florenko/imusic/internal/language"
	"github.com/maya-florenko/imusic/internal/pipeline"
	"github.com/maya-florenko/imusic/internal/reminder"
	"github.com/maya-florenko/imusic/internal/server"
	"github.com/maya-florenko/imusic/internal/session"
	"github.com/maya-florenko/imusic/internal/songlink"
	"github.com/maya-florenko/imusic/internal/spotify"
	"github.com/maya-florenko/imusic/internal/telegram"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("load .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	setupLogging(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("imusic stopped")
	}
	log.Info().Msg("imusic stopped")
}

func setupLogging(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	langs, err := language.Load(cfg.LanguageFile)
	if err != nil {
		return err
	}
	log.Info().Int("users", langs.Len()).Str("file", cfg.LanguageFile).Msg("language preferences loaded")

	pipe, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}

	sessions := session.NewManager()

	var disp *app.Dispatcher
	handler := func(ctx context.Context, _ *bot.Bot, u *models.Update) {
		disp.Handle(ctx, u)
	}

	var botOpts []bot.Option
	if cfg.Webhook() {
		botOpts = append(botOpts, bot.WithWorkers(4))
	}
	tg, err := telegram.New(cfg.BotToken, cfg.WebhookSecret, handler, botOpts...)
	if err != nil {
		return err
	}

	disp = app.NewDispatcher(app.Config{
		Transport:       tg,
		Sessions:        sessions,
		Languages:       langs,
		Pipeline:        pipe,
		DownloadDir:     cfg.DownloadDir,
		PipelineTimeout: cfg.PipelineTimeout,
	})

	loop := reminder.New(reminder.Config{
		Interval:    cfg.ReminderInterval,
		TypingDelay: cfg.ReminderTypingDelay,
		Rate:        cfg.ReminderRate,
		Text:        app.TextReminder,
	}, tg, sessions)

	srvCfg := server.Config{Addr: net.JoinHostPort("", cfg.Port)}
	b := tg.Bot()
	if cfg.Webhook() {
		srvCfg.WebhookPath = cfg.WebhookPath()
		srvCfg.Webhook = b.WebhookHandler()

		if _, err := b.SetWebhook(ctx, &bot.SetWebhookParams{
			URL:         cfg.WebhookURL,
			SecretToken: cfg.WebhookSecret,
		}); err != nil {
			return err
		}
		log.Info().Str("url", cfg.WebhookURL).Msg("webhook registered")
	} else {
		if _, err := b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
			log.Warn().Err(err).Msg("delete webhook")
		}
		log.Info().Msg("long polling for updates")
	}
	srv := server.New(srvCfg)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		loop.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if cfg.Webhook() {
			b.StartWebhook(ctx)
		} else {
			b.Start(ctx)
		}
	}()

	err = srv.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

func newPipeline(ctx context.Context, cfg *config.Config) (*pipeline.Pipeline, error) {
	if _, err := os.Stat(cfg.CookiesFile); err != nil {
		// Requests fail with the maintenance notice until the file appears.
		log.Warn().Str("file", cfg.CookiesFile).Msg("yt-dlp cookies file missing")
	}

	var opts []pipeline.Option
	if cfg.SonglinkEnabled {
		opts = append(opts, pipeline.WithResolver(songlink.New("")))
	}
	if cfg.Spotify() {
		sp, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.SpotifyID,
			ClientSecret: cfg.SpotifySecret,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithAlbumFinder(sp))
		log.Info().Msg("spotify album lookup enabled")
	}

	dl := downloader.NewYTDLP(cfg.YTDLPPath, cfg.CookiesFile)
	return pipeline.New(dl, opts...), nil
}
