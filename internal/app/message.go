package app

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/maya-florenko/imusic/internal/metrics"
	"github.com/maya-florenko/imusic/internal/pipeline"
	"github.com/maya-florenko/imusic/internal/session"
	"github.com/maya-florenko/imusic/internal/telegram"
	"github.com/rs/zerolog/log"
)

// handleQuery runs the song flow for a free-text message.
func (d *Dispatcher) handleQuery(ctx context.Context, e QueryEvent) {
	lg := log.With().Int64("chat_id", e.ChatID).Str("query", e.Text).Logger()

	if d.sessions.CheckAndSet(e.ChatID, e.Text) == session.Duplicate {
		d.send(ctx, e.ChatID, plain(textDuplicate))
		metrics.PipelineResults.WithLabelValues("duplicate").Inc()
		lg.Debug().Msg("duplicate query")
		return
	}

	d.sessions.ClearExcept(ctx, e.ChatID, d.tr)
	if err := d.tr.Typing(ctx, e.ChatID); err != nil {
		lg.Debug().Err(err).Msg("typing")
	}
	d.send(ctx, e.ChatID, plain(textDownloading))

	workDir, err := os.MkdirTemp(d.dir, "imusic-*")
	if err != nil {
		lg.Error().Err(err).Msg("create work dir")
		d.fail(ctx, e.ChatID, time.Now(), "download")
		return
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			lg.Warn().Err(err).Str("dir", workDir).Msg("remove work dir")
		}
	}()

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	res, err := d.runPipeline(runCtx, e.Text, workDir)
	cancel()
	if err != nil {
		kind := pipeline.KindOf(err)
		lg.Error().Err(err).Str("kind", kind.String()).Msg("pipeline failed")
		d.fail(ctx, e.ChatID, start, kind.String())
		return
	}

	audioID, err := d.tr.SendAudio(ctx, e.ChatID, telegram.Audio{
		Path:      res.Path,
		Filename:  audioFilename(res),
		Caption:   caption(res.Title, res.Artist, res.Album),
		Title:     res.Title,
		Performer: res.Artist,
	})
	if err != nil {
		lg.Error().Err(err).Msg("send audio")
		d.fail(ctx, e.ChatID, start, "send")
		return
	}
	d.sessions.RecordSent(e.ChatID, audioID)

	keep := []int{audioID}
	if enjoyID, ok := d.send(ctx, e.ChatID, plain(textEnjoy)); ok {
		keep = append(keep, enjoyID)
	}
	d.sessions.ClearExcept(ctx, e.ChatID, d.tr, keep...)

	metrics.ObservePipeline(start, "ok")
	lg.Info().Str("title", res.Title).Str("artist", res.Artist).Msg("song delivered")
}

// runPipeline turns a pipeline panic into a download failure so the chat
// still ends with the maintenance notice.
func (d *Dispatcher) runPipeline(ctx context.Context, query, dir string) (res *pipeline.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("pipeline panic")
			res, err = nil, &pipeline.Error{Kind: pipeline.KindDownload, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return d.pipe.Run(ctx, query, dir)
}

// fail replaces whatever the chat shows with the maintenance notice.
func (d *Dispatcher) fail(ctx context.Context, chatID int64, start time.Time, outcome string) {
	d.replace(ctx, chatID, plain(textMaintenance))
	metrics.ObservePipeline(start, outcome)
}

var filenameReplacer = strings.NewReplacer("/", "_", "\\", "_", "\x00", "")

func audioFilename(res *pipeline.Result) string {
	return filenameReplacer.Replace(res.Artist+" - "+res.Title) + ".mp3"
}
