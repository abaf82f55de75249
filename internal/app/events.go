package app

import (
	"strings"

	"github.com/go-telegram/bot/models"
)

// Event is a classified inbound update. The concrete types are
// CommandEvent, QueryEvent and LanguageEvent.
type Event interface {
	Chat() int64
	kind() string
}

// Command names understood by the bot.
const (
	CommandStart    = "start"
	CommandHelp     = "help"
	CommandAbout    = "about"
	CommandLanguage = "language"
)

const languageCallbackPrefix = "lang:"

// CommandEvent is a slash command.
type CommandEvent struct {
	ChatID    int64
	UserID    int64
	FirstName string
	Command   string // lower case, without the slash and bot mention
}

// QueryEvent is free text, treated as a song query.
type QueryEvent struct {
	ChatID int64
	UserID int64
	Text   string
}

// LanguageEvent is a press on a language button.
type LanguageEvent struct {
	ChatID     int64
	UserID     int64
	MessageID  int
	Code       string
	CallbackID string
}

func (e CommandEvent) Chat() int64  { return e.ChatID }
func (e QueryEvent) Chat() int64    { return e.ChatID }
func (e LanguageEvent) Chat() int64 { return e.ChatID }

func (CommandEvent) kind() string  { return "command" }
func (QueryEvent) kind() string    { return "query" }
func (LanguageEvent) kind() string { return "language" }

// Classify maps an update to an Event. It returns nil for updates the bot
// does not handle.
func Classify(u *models.Update) Event {
	switch {
	case u == nil:
		return nil
	case u.CallbackQuery != nil:
		return classifyCallback(u.CallbackQuery)
	case u.Message != nil:
		return classifyMessage(u.Message)
	default:
		return nil
	}
}

func classifyMessage(m *models.Message) Event {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return nil
	}

	var userID int64
	var firstName string
	if m.From != nil {
		userID = m.From.ID
		firstName = m.From.FirstName
	}

	if strings.HasPrefix(text, "/") {
		name, _, _ := strings.Cut(text[1:], " ")
		name, _, _ = strings.Cut(name, "@")
		return CommandEvent{
			ChatID:    m.Chat.ID,
			UserID:    userID,
			FirstName: firstName,
			Command:   strings.ToLower(name),
		}
	}

	// The dedup guard compares the text exactly as sent.
	return QueryEvent{ChatID: m.Chat.ID, UserID: userID, Text: m.Text}
}

func classifyCallback(cq *models.CallbackQuery) Event {
	code, ok := strings.CutPrefix(cq.Data, languageCallbackPrefix)
	if !ok {
		return nil
	}

	ev := LanguageEvent{
		UserID:     cq.From.ID,
		Code:       code,
		CallbackID: cq.ID,
	}
	switch {
	case cq.Message.Message != nil:
		ev.ChatID = cq.Message.Message.Chat.ID
		ev.MessageID = cq.Message.Message.ID
	case cq.Message.InaccessibleMessage != nil:
		ev.ChatID = cq.Message.InaccessibleMessage.Chat.ID
		ev.MessageID = cq.Message.InaccessibleMessage.MessageID
	default:
		return nil
	}

	return ev
}
