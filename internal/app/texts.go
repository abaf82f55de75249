package app

import (
	"fmt"
	"html"

	"github.com/maya-florenko/imusic/internal/language"
	"github.com/maya-florenko/imusic/internal/telegram"
)

const (
	textHelp = "ℹ️ <b>Help</b>\n\nSend a song name or artist to get the track instantly.\n" +
		"You can also paste a Spotify, Apple Music or Deezer link.\n\n" +
		"/language - change language\n/about - about this bot"
	textAbout       = "🎵 <b>iMusic Beta Bot</b>\n\nSend a song name and get it back as a tagged MP3."
	textChoose      = "🌐 Please choose your language:"
	textDownloading = "⬇️ Downloading your song… Please wait 🎶"
	textDuplicate   = "🔁 You already requested this song. Send a different one!"
	textMaintenance = "⚠️ Bot Under Maintenance"
	textEnjoy       = "Enjoy your song 🎧"
	textUnknownLang = "Unknown language"

	// TextReminder is the idle nudge.
	TextReminder = "🎵 Still there? Send me a song name and I'll fetch it for you!"
)

func welcome(firstName string, askLanguage bool) telegram.Text {
	if firstName == "" {
		firstName = "there"
	}
	body := fmt.Sprintf("👋 Welcome <b>%s</b>!\n\n", html.EscapeString(firstName))
	if askLanguage {
		return telegram.Text{Body: body + textChoose, HTML: true, Keyboard: languageKeyboard()}
	}
	return telegram.Text{Body: body + "🎵 Which song would you like to listen to?", HTML: true}
}

func languagePrompt() telegram.Text {
	return telegram.Text{Body: textChoose, Keyboard: languageKeyboard()}
}

func languageSet(code string) telegram.Text {
	return telegram.Text{Body: "✅ Language set to " + code}
}

// languageKeyboard lays the options out two per row.
func languageKeyboard() [][]telegram.Button {
	var rows [][]telegram.Button
	for i, o := range language.Languages {
		if i%2 == 0 {
			rows = append(rows, nil)
		}
		rows[len(rows)-1] = append(rows[len(rows)-1], telegram.Button{
			Text: o.Label,
			Data: languageCallbackPrefix + o.Code,
		})
	}
	return rows
}

func caption(title, artist, album string) string {
	return fmt.Sprintf("🎶 <b>%s</b>\n👤 %s\n💿 %s",
		html.EscapeString(title), html.EscapeString(artist), html.EscapeString(album))
}

func plain(body string) telegram.Text {
	return telegram.Text{Body: body}
}

func rich(body string) telegram.Text {
	return telegram.Text{Body: body, HTML: true}
}
