// Package reminder nudges active chats on a fixed interval.
package reminder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maya-florenko/imusic/internal/metrics"
	"github.com/maya-florenko/imusic/internal/telegram"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Sender is the part of the chat transport the loop needs.
type Sender interface {
	Typing(ctx context.Context, chatID int64) error
	SendText(ctx context.Context, chatID int64, t telegram.Text) (int, error)
}

// Sessions is the part of the session manager the loop needs.
type Sessions interface {
	ActiveChats() []int64
	RecordSent(chatID int64, messageID int)
	Deactivate(chatID int64)
}

// Config configures a Loop.
type Config struct {
	Interval    time.Duration
	TypingDelay time.Duration
	// Rate caps reminders per second across all chats. Zero means no limit.
	Rate float64
	Text string
}

// Loop sends Text to every active chat once per Interval. A chat whose
// reminder cannot be delivered is dropped from the active set.
type Loop struct {
	cfg      Config
	sender   Sender
	sessions Sessions
	limiter  *rate.Limiter
}

// New creates a loop.
func New(cfg Config, sender Sender, sessions Sessions) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.Rate > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}
	return &Loop{cfg: cfg, sender: sender, sessions: sessions, limiter: lim}
}

// Run ticks until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	log.Info().Dur("interval", l.cfg.Interval).Msg("reminder loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reminder loop stopped")
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick reminds every chat in a snapshot of the active set. Chats are started
// at the limiter's pace and wait out their typing delay concurrently; Tick
// returns once every started reminder has finished.
func (l *Loop) Tick(ctx context.Context) {
	chats := l.sessions.ActiveChats()
	var sent, failed atomic.Int32
	var wg sync.WaitGroup

	for _, chatID := range chats {
		if err := l.limiter.Wait(ctx); err != nil {
			break
		}
		chatID := chatID
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.remind(ctx, chatID); err != nil {
				if ctx.Err() != nil {
					return
				}
				l.sessions.Deactivate(chatID)
				metrics.Reminders.WithLabelValues("failed").Inc()
				log.Info().Err(err).Int64("chat_id", chatID).Msg("reminder failed, chat deactivated")
				failed.Add(1)
				return
			}
			metrics.Reminders.WithLabelValues("sent").Inc()
			sent.Add(1)
		}()
	}
	wg.Wait()

	metrics.ActiveChats.Set(float64(len(l.sessions.ActiveChats())))
	log.Debug().Int("chats", len(chats)).Int32("sent", sent.Load()).Int32("failed", failed.Load()).Msg("reminder tick")
}

func (l *Loop) remind(ctx context.Context, chatID int64) error {
	if err := l.sender.Typing(ctx, chatID); err != nil {
		return err
	}

	if l.cfg.TypingDelay > 0 {
		t := time.NewTimer(l.cfg.TypingDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	id, err := l.sender.SendText(ctx, chatID, telegram.Text{Body: l.cfg.Text})
	if err != nil {
		return err
	}
	l.sessions.RecordSent(chatID, id)
	return nil
}
