// Package app routes Telegram updates to the bot's handlers and keeps each
// chat down to a single screen of bot messages.
package app

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/maya-florenko/imusic/internal/metrics"
	"github.com/maya-florenko/imusic/internal/pipeline"
	"github.com/maya-florenko/imusic/internal/session"
	"github.com/maya-florenko/imusic/internal/telegram"
	"github.com/rs/zerolog/log"
)

// Transport is the outbound side of the chat platform.
type Transport interface {
	SendText(ctx context.Context, chatID int64, t telegram.Text) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, t telegram.Text) error
	Delete(ctx context.Context, chatID int64, messageID int) error
	Typing(ctx context.Context, chatID int64) error
	SendAudio(ctx context.Context, chatID int64, a telegram.Audio) (int, error)
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Pipeline downloads and tags a song for a query into dir.
type Pipeline interface {
	Run(ctx context.Context, query, dir string) (*pipeline.Result, error)
}

// Languages stores the language each user picked.
type Languages interface {
	Get(userID int64) (string, bool)
	Set(userID int64, tag string) error
}

// Config holds the dispatcher's collaborators and settings.
type Config struct {
	Transport       Transport
	Sessions        *session.Manager
	Languages       Languages
	Pipeline        Pipeline
	DownloadDir     string
	PipelineTimeout time.Duration
}

// Dispatcher handles updates.
type Dispatcher struct {
	tr       Transport
	sessions *session.Manager
	langs    Languages
	pipe     Pipeline
	dir      string
	timeout  time.Duration
}

// NewDispatcher creates a dispatcher from cfg.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.PipelineTimeout <= 0 {
		cfg.PipelineTimeout = 5 * time.Minute
	}
	return &Dispatcher{
		tr:       cfg.Transport,
		sessions: cfg.Sessions,
		langs:    cfg.Languages,
		pipe:     cfg.Pipeline,
		dir:      cfg.DownloadDir,
		timeout:  cfg.PipelineTimeout,
	}
}

// Handler adapts the dispatcher to go-telegram/bot.
func (d *Dispatcher) Handler() bot.HandlerFunc {
	return func(ctx context.Context, _ *bot.Bot, u *models.Update) {
		d.Handle(ctx, u)
	}
}

// Handle classifies and dispatches one update.
func (d *Dispatcher) Handle(ctx context.Context, u *models.Update) {
	ev := Classify(u)
	if ev == nil {
		metrics.Updates.WithLabelValues("ignored").Inc()
		return
	}
	d.Dispatch(ctx, ev)
}

// Dispatch runs the handler for ev. Updates of one chat are processed one at
// a time; a panic is logged and does not escape.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	metrics.Updates.WithLabelValues(ev.kind()).Inc()

	chatID := ev.Chat()
	release := d.sessions.Acquire(chatID)
	defer release()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Int64("chat_id", chatID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("handler panic")
		}
	}()

	switch e := ev.(type) {
	case CommandEvent:
		d.sessions.MarkActive(chatID)
		d.handleCommand(ctx, e)
	case QueryEvent:
		d.sessions.MarkActive(chatID)
		d.handleQuery(ctx, e)
	case LanguageEvent:
		d.handleLanguage(ctx, e)
	default:
		log.Warn().Int64("chat_id", chatID).Msgf("unhandled event %T", ev)
	}
}

func (d *Dispatcher) handleCommand(ctx context.Context, e CommandEvent) {
	switch e.Command {
	case CommandStart:
		d.handleStart(ctx, e)
	case CommandHelp:
		d.replace(ctx, e.ChatID, rich(textHelp))
	case CommandAbout:
		d.replace(ctx, e.ChatID, rich(textAbout))
	case CommandLanguage:
		d.sessions.SetState(e.ChatID, session.StateAwaitingLanguage)
		d.replace(ctx, e.ChatID, languagePrompt())
	default:
		log.Debug().Int64("chat_id", e.ChatID).Str("command", e.Command).Msg("unknown command")
	}
}

// replace clears the chat's tracked messages and sends t in their place.
func (d *Dispatcher) replace(ctx context.Context, chatID int64, t telegram.Text) {
	d.sessions.ClearExcept(ctx, chatID, d.tr)
	d.send(ctx, chatID, t)
}

// send sends t and records it in the ledger. Failures are logged only.
func (d *Dispatcher) send(ctx context.Context, chatID int64, t telegram.Text) (int, bool) {
	id, err := d.tr.SendText(ctx, chatID, t)
	if err != nil {
		log.Debug().Err(err).Int64("chat_id", chatID).Msg("send message")
		return 0, false
	}
	d.sessions.RecordSent(chatID, id)
	return id, true
}
