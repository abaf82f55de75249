package app

import (
	"context"

	"github.com/maya-florenko/imusic/internal/language"
	"github.com/maya-florenko/imusic/internal/session"
	"github.com/rs/zerolog/log"
)

func (d *Dispatcher) handleStart(ctx context.Context, e CommandEvent) {
	_, known := d.langs.Get(e.UserID)

	if known {
		d.sessions.SetState(e.ChatID, session.StateReady)
	} else {
		d.sessions.SetState(e.ChatID, session.StateAwaitingLanguage)
	}
	d.replace(ctx, e.ChatID, welcome(e.FirstName, !known))
}

// handleLanguage stores the picked language and edits the prompt in place.
func (d *Dispatcher) handleLanguage(ctx context.Context, e LanguageEvent) {
	lg := log.With().Int64("chat_id", e.ChatID).Int64("user_id", e.UserID).Str("lang", e.Code).Logger()

	if !language.Valid(e.Code) {
		if err := d.tr.AnswerCallback(ctx, e.CallbackID, textUnknownLang); err != nil {
			lg.Debug().Err(err).Msg("answer callback")
		}
		return
	}

	if err := d.langs.Set(e.UserID, e.Code); err != nil {
		lg.Error().Err(err).Msg("persist language")
	}
	d.sessions.SetState(e.ChatID, session.StateReady)

	if err := d.tr.EditText(ctx, e.ChatID, e.MessageID, languageSet(e.Code)); err != nil {
		lg.Debug().Err(err).Msg("edit language prompt")
	}
	if err := d.tr.AnswerCallback(ctx, e.CallbackID, ""); err != nil {
		lg.Debug().Err(err).Msg("answer callback")
	}

	lg.Info().Msg("language selected")
}
