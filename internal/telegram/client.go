// Package telegram adapts github.com/go-telegram/bot to the outbound
// operations the bot needs.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Button is an inline keyboard button.
type Button struct {
	Text string
	Data string
}

// Text is an outgoing text message.
type Text struct {
	Body     string
	HTML     bool
	Keyboard [][]Button
}

// Audio is an outgoing audio attachment read from a local file.
type Audio struct {
	Path      string
	Filename  string
	Caption   string
	Title     string
	Performer string
}

// Client sends messages through a *bot.Bot.
type Client struct {
	b *bot.Bot
}

// New creates the bot and its client. handler receives every update; it is
// not called before the bot is started.
func New(token, webhookSecret string, handler bot.HandlerFunc, opts ...bot.Option) (*Client, error) {
	opts = append([]bot.Option{bot.WithDefaultHandler(handler)}, opts...)
	if webhookSecret != "" {
		opts = append(opts, bot.WithWebhookSecretToken(webhookSecret))
	}

	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Client{b: b}, nil
}

// Bot returns the underlying bot.
func (c *Client) Bot() *bot.Bot {
	return c.b
}

// SendText sends t and returns the new message id.
func (c *Client) SendText(ctx context.Context, chatID int64, t Text) (int, error) {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   t.Body,
	}
	if t.HTML {
		params.ParseMode = models.ParseModeHTML
	}
	if len(t.Keyboard) > 0 {
		params.ReplyMarkup = keyboard(t.Keyboard)
	}

	msg, err := c.b.SendMessage(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return msg.ID, nil
}

// EditText replaces the text of an existing message. The inline keyboard is
// dropped unless t carries one.
func (c *Client) EditText(ctx context.Context, chatID int64, messageID int, t Text) error {
	params := &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      t.Body,
	}
	if t.HTML {
		params.ParseMode = models.ParseModeHTML
	}
	if len(t.Keyboard) > 0 {
		params.ReplyMarkup = keyboard(t.Keyboard)
	}

	if _, err := c.b.EditMessageText(ctx, params); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// Delete removes a message.
func (c *Client) Delete(ctx context.Context, chatID int64, messageID int) error {
	ok, err := c.b.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if !ok {
		return errors.New("delete message: not deleted")
	}
	return nil
}

// Typing shows the "typing…" indicator.
func (c *Client) Typing(ctx context.Context, chatID int64) error {
	if _, err := c.b.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: chatID,
		Action: models.ChatActionTyping,
	}); err != nil {
		return fmt.Errorf("send chat action: %w", err)
	}
	return nil
}

// SendAudio uploads the file at a.Path and returns the new message id.
func (c *Client) SendAudio(ctx context.Context, chatID int64, a Audio) (int, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return 0, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	name := a.Filename
	if name == "" {
		name = filepath.Base(a.Path)
	}

	msg, err := c.b.SendAudio(ctx, &bot.SendAudioParams{
		ChatID:    chatID,
		Audio:     &models.InputFileUpload{Filename: name, Data: f},
		Caption:   a.Caption,
		ParseMode: models.ParseModeHTML,
		Title:     a.Title,
		Performer: a.Performer,
	})
	if err != nil {
		return 0, fmt.Errorf("send audio: %w", err)
	}
	return msg.ID, nil
}

// AnswerCallback acknowledges a button press.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if _, err := c.b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	}); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

func keyboard(rows [][]Button) *models.InlineKeyboardMarkup {
	kb := make([][]models.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		r := make([]models.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			r = append(r, models.InlineKeyboardButton{Text: b.Text, CallbackData: b.Data})
		}
		kb = append(kb, r)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: kb}
}
