package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/maya-florenko/imusic/internal/language"
	"github.com/maya-florenko/imusic/internal/pipeline"
	"github.com/maya-florenko/imusic/internal/session"
	"github.com/maya-florenko/imusic/internal/telegram"
)

// ----- Fakes -----

type sent struct {
	id   int
	text telegram.Text
}

type edit struct {
	messageID int
	text      telegram.Text
}

type fakeTransport struct {
	mu       sync.Mutex
	nextID   int
	texts    []sent
	audios   []telegram.Audio
	edits    []edit
	deleted  []int
	typing   int
	answered []string

	failAudio bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{nextID: 100}
}

func (f *fakeTransport) id() int {
	f.nextID++
	return f.nextID
}

func (f *fakeTransport) SendText(_ context.Context, _ int64, t telegram.Text) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	f.texts = append(f.texts, sent{id: id, text: t})
	return id, nil
}

func (f *fakeTransport) EditText(_ context.Context, _ int64, messageID int, t telegram.Text) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, edit{messageID: messageID, text: t})
	return nil
}

func (f *fakeTransport) Delete(_ context.Context, _ int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeTransport) Typing(context.Context, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing++
	return nil
}

func (f *fakeTransport) SendAudio(_ context.Context, _ int64, a telegram.Audio) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAudio {
		return 0, errors.New("Forbidden: bot was blocked by the user")
	}
	if _, err := os.Stat(a.Path); err != nil {
		return 0, err
	}
	f.audios = append(f.audios, a)
	return f.id(), nil
}

func (f *fakeTransport) AnswerCallback(_ context.Context, callbackID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, callbackID)
	return nil
}

func (f *fakeTransport) lastText() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.texts[len(f.texts)-1]
}

type fakePipeline struct {
	calls  int
	result pipeline.Result
	err    error
	panics bool
}

func (p *fakePipeline) Run(_ context.Context, _ string, dir string) (*pipeline.Result, error) {
	p.calls++
	if p.panics {
		panic("boom")
	}
	path := filepath.Join(dir, "song.mp3")
	if err := os.WriteFile(path, []byte("ID3"), 0o600); err != nil {
		return nil, err
	}
	if p.err != nil {
		return nil, p.err
	}
	res := p.result
	res.Path = path
	return &res, nil
}

type fixture struct {
	d        *Dispatcher
	tr       *fakeTransport
	pipe     *fakePipeline
	sessions *session.Manager
	langs    *language.Store
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	langs, err := language.Load(filepath.Join(t.TempDir(), "languages.json"))
	if err != nil {
		t.Fatalf("load languages: %v", err)
	}
	f := &fixture{
		tr:       newFakeTransport(),
		pipe:     &fakePipeline{},
		sessions: session.NewManager(),
		langs:    langs,
		dir:      t.TempDir(),
	}
	f.d = NewDispatcher(Config{
		Transport:       f.tr,
		Sessions:        f.sessions,
		Languages:       f.langs,
		Pipeline:        f.pipe,
		DownloadDir:     f.dir,
		PipelineTimeout: time.Minute,
	})
	return f
}

const chatID int64 = 42

func query(text string) Event {
	return QueryEvent{ChatID: chatID, UserID: 7, Text: text}
}

func command(name string) Event {
	return CommandEvent{ChatID: chatID, UserID: 7, FirstName: "Maya", Command: name}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("download dir not cleaned: %v", entries)
	}
}

// ----- Start and language -----

func TestStartFirstContactAsksForLanguage(t *testing.T) {
	f := newFixture(t)

	f.d.Dispatch(context.Background(), command(CommandStart))

	msg := f.tr.lastText()
	if !strings.Contains(msg.text.Body, "Maya") {
		t.Fatalf("welcome = %q, want first name", msg.text.Body)
	}
	var buttons []telegram.Button
	for _, row := range msg.text.Keyboard {
		buttons = append(buttons, row...)
	}
	if len(buttons) != 4 {
		t.Fatalf("got %d language buttons, want 4", len(buttons))
	}
	if got := f.sessions.State(chatID); got != session.StateAwaitingLanguage {
		t.Fatalf("state = %v, want %v", got, session.StateAwaitingLanguage)
	}
	if !f.sessions.IsActive(chatID) {
		t.Fatal("chat should be active after /start")
	}

	// Pick Bangla from the prompt.
	f.d.Dispatch(context.Background(), LanguageEvent{
		ChatID:     chatID,
		UserID:     7,
		MessageID:  msg.id,
		Code:       "BN",
		CallbackID: "cb1",
	})

	if len(f.tr.edits) != 1 {
		t.Fatalf("got %d edits, want 1", len(f.tr.edits))
	}
	e := f.tr.edits[0]
	if e.messageID != msg.id {
		t.Fatalf("edited message %d, want %d", e.messageID, msg.id)
	}
	if !strings.Contains(e.text.Body, "Language set to BN") {
		t.Fatalf("edit body = %q", e.text.Body)
	}
	if code, ok := f.langs.Get(7); !ok || code != "BN" {
		t.Fatalf("stored language = %q, %v", code, ok)
	}
	if got := f.sessions.State(chatID); got != session.StateReady {
		t.Fatalf("state = %v, want %v", got, session.StateReady)
	}
	if !reflect.DeepEqual(f.tr.answered, []string{"cb1"}) {
		t.Fatalf("answered = %v", f.tr.answered)
	}
}

func TestStartKnownUserSkipsPrompt(t *testing.T) {
	f := newFixture(t)
	if err := f.langs.Set(7, "EN"); err != nil {
		t.Fatal(err)
	}

	f.d.Dispatch(context.Background(), command(CommandStart))

	if kb := f.tr.lastText().text.Keyboard; kb != nil {
		t.Fatalf("unexpected keyboard %v", kb)
	}
	if got := f.sessions.State(chatID); got != session.StateReady {
		t.Fatalf("state = %v, want %v", got, session.StateReady)
	}
}

func TestUnknownLanguageIsRejected(t *testing.T) {
	f := newFixture(t)

	f.d.Dispatch(context.Background(), LanguageEvent{ChatID: chatID, UserID: 7, MessageID: 5, Code: "XX", CallbackID: "cb"})

	if len(f.tr.edits) != 0 {
		t.Fatalf("unexpected edit %v", f.tr.edits)
	}
	if _, ok := f.langs.Get(7); ok {
		t.Fatal("unknown language was stored")
	}
}

func TestInfoCommandsReplaceTrackedMessages(t *testing.T) {
	for _, cmd := range []string{CommandHelp, CommandAbout, CommandLanguage} {
		t.Run(cmd, func(t *testing.T) {
			f := newFixture(t)
			f.sessions.RecordSent(chatID, 1)
			f.sessions.RecordSent(chatID, 2)

			f.d.Dispatch(context.Background(), command(cmd))

			if !reflect.DeepEqual(f.tr.deleted, []int{1, 2}) {
				t.Fatalf("deleted = %v, want [1 2]", f.tr.deleted)
			}
			want := []int{f.tr.lastText().id}
			if got := f.sessions.Tracked(chatID); !reflect.DeepEqual(got, want) {
				t.Fatalf("tracked = %v, want %v", got, want)
			}
		})
	}
}

func TestUnknownCommandSendsNothing(t *testing.T) {
	f := newFixture(t)

	f.d.Dispatch(context.Background(), command("settings"))

	if len(f.tr.texts) != 0 {
		t.Fatalf("sent %v", f.tr.texts)
	}
}

// ----- Song flow -----

func TestQueryDeliversSong(t *testing.T) {
	f := newFixture(t)
	f.pipe.result = pipeline.Result{Title: "Song X", Artist: "ChannelY", Album: "Unknown Album"}
	f.sessions.RecordSent(chatID, 1)

	f.d.Dispatch(context.Background(), query("song x"))

	if len(f.tr.audios) != 1 {
		t.Fatalf("got %d audios, want 1", len(f.tr.audios))
	}
	a := f.tr.audios[0]
	if !strings.Contains(a.Caption, "ChannelY") {
		t.Fatalf("caption = %q, want artist ChannelY", a.Caption)
	}
	if a.Filename != "ChannelY - Song X.mp3" {
		t.Fatalf("filename = %q", a.Filename)
	}

	enjoy := f.tr.lastText()
	if enjoy.text.Body != textEnjoy {
		t.Fatalf("last text = %q, want enjoy message", enjoy.text.Body)
	}
	// The audio id is the one allocated between "downloading" and "enjoy".
	audioID := enjoy.id - 1
	if got := f.sessions.Tracked(chatID); !reflect.DeepEqual(got, []int{audioID, enjoy.id}) {
		t.Fatalf("tracked = %v, want [%d %d]", got, audioID, enjoy.id)
	}
	if f.tr.typing != 1 {
		t.Fatalf("typing = %d, want 1", f.tr.typing)
	}
	assertEmptyDir(t, f.dir)
}

func TestQueryFailureShowsMaintenance(t *testing.T) {
	kinds := []pipeline.Kind{pipeline.KindCredentials, pipeline.KindNotFound, pipeline.KindDownload}
	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			f := newFixture(t)
			f.pipe.err = &pipeline.Error{Kind: kind, Err: errors.New("yt-dlp exited 1")}

			f.d.Dispatch(context.Background(), query("anything"))

			last := f.tr.lastText()
			if last.text.Body != textMaintenance {
				t.Fatalf("last text = %q, want maintenance notice", last.text.Body)
			}
			if got := f.sessions.Tracked(chatID); !reflect.DeepEqual(got, []int{last.id}) {
				t.Fatalf("tracked = %v, want only the notice %d", got, last.id)
			}
			if len(f.tr.audios) != 0 {
				t.Fatal("audio sent on failure")
			}
			assertEmptyDir(t, f.dir)
		})
	}
}

func TestAudioSendFailureShowsMaintenance(t *testing.T) {
	f := newFixture(t)
	f.tr.failAudio = true
	f.pipe.result = pipeline.Result{Title: "T", Artist: "A", Album: "B"}

	f.d.Dispatch(context.Background(), query("t"))

	if got := f.tr.lastText().text.Body; got != textMaintenance {
		t.Fatalf("last text = %q, want maintenance notice", got)
	}
	assertEmptyDir(t, f.dir)
}

func TestDuplicateQuerySkipsPipeline(t *testing.T) {
	f := newFixture(t)
	f.pipe.result = pipeline.Result{Title: "T", Artist: "A", Album: "B"}

	f.d.Dispatch(context.Background(), query("same song"))
	f.d.Dispatch(context.Background(), query("same song"))

	if f.pipe.calls != 1 {
		t.Fatalf("pipeline calls = %d, want 1", f.pipe.calls)
	}
	if got := f.tr.lastText().text.Body; got != textDuplicate {
		t.Fatalf("last text = %q, want duplicate notice", got)
	}

	f.d.Dispatch(context.Background(), query("Same Song"))
	if f.pipe.calls != 2 {
		t.Fatalf("pipeline calls = %d, want 2", f.pipe.calls)
	}
}

func TestTrailingSpaceIsADifferentQuery(t *testing.T) {
	f := newFixture(t)
	f.pipe.result = pipeline.Result{Title: "T", Artist: "A", Album: "B"}
	msg := func(text string) *models.Update {
		return &models.Update{Message: &models.Message{
			Chat: models.Chat{ID: chatID},
			From: &models.User{ID: 7},
			Text: text,
		}}
	}

	f.d.Handle(context.Background(), msg("song"))
	f.d.Handle(context.Background(), msg("song "))

	if f.pipe.calls != 2 {
		t.Fatalf("pipeline calls = %d, want 2", f.pipe.calls)
	}
}

func TestPanicIsContained(t *testing.T) {
	f := newFixture(t)
	f.pipe.panics = true

	f.d.Dispatch(context.Background(), query("boom"))

	last := f.tr.lastText()
	if last.text.Body != textMaintenance {
		t.Fatalf("last text = %q, want maintenance notice", last.text.Body)
	}
	if got := f.sessions.Tracked(chatID); !reflect.DeepEqual(got, []int{last.id}) {
		t.Fatalf("tracked = %v, want only the notice %d", got, last.id)
	}

	// The chat lock must have been released.
	done := make(chan struct{})
	go func() {
		f.d.Dispatch(context.Background(), command(CommandHelp))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("chat lock not released after panic")
	}
	assertEmptyDir(t, f.dir)
}

// ----- Classify -----

func TestClassify(t *testing.T) {
	user := &models.User{ID: 7, FirstName: "Maya"}
	chat := models.Chat{ID: chatID}

	tests := []struct {
		name string
		u    *models.Update
		want Event
	}{
		{
			name: "nil",
			u:    nil,
			want: nil,
		},
		{
			name: "command with mention",
			u:    &models.Update{Message: &models.Message{Chat: chat, From: user, Text: "/Start@imusic_bot hi"}},
			want: CommandEvent{ChatID: chatID, UserID: 7, FirstName: "Maya", Command: "start"},
		},
		{
			name: "query",
			u:    &models.Update{Message: &models.Message{Chat: chat, From: user, Text: "  numb linkin park "}},
			want: QueryEvent{ChatID: chatID, UserID: 7, Text: "  numb linkin park "},
		},
		{
			name: "empty text",
			u:    &models.Update{Message: &models.Message{Chat: chat, From: user}},
			want: nil,
		},
		{
			name: "language button",
			u: &models.Update{CallbackQuery: &models.CallbackQuery{
				ID:   "cb",
				From: *user,
				Data: "lang:UR",
				Message: models.MaybeInaccessibleMessage{
					Message: &models.Message{ID: 9, Chat: chat},
				},
			}},
			want: LanguageEvent{ChatID: chatID, UserID: 7, MessageID: 9, Code: "UR", CallbackID: "cb"},
		},
		{
			name: "inaccessible message",
			u: &models.Update{CallbackQuery: &models.CallbackQuery{
				ID:   "cb",
				From: *user,
				Data: "lang:EN",
				Message: models.MaybeInaccessibleMessage{
					InaccessibleMessage: &models.InaccessibleMessage{Chat: chat, MessageID: 3},
				},
			}},
			want: LanguageEvent{ChatID: chatID, UserID: 7, MessageID: 3, Code: "EN", CallbackID: "cb"},
		},
		{
			name: "foreign callback",
			u:    &models.Update{CallbackQuery: &models.CallbackQuery{ID: "cb", From: *user, Data: "other"}},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.u); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Classify() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestLanguageKeyboardLayout(t *testing.T) {
	rows := languageKeyboard()
	if len(rows) != 2 || len(rows[0]) != 2 || len(rows[1]) != 2 {
		t.Fatalf("keyboard = %v, want 2x2", rows)
	}
	if rows[0][1].Data != "lang:BN" || rows[0][1].Text != "Bangla" {
		t.Fatalf("second button = %+v", rows[0][1])
	}
}
