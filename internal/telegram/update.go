package telegram

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ent0n29/docvoice/internal/intake"
)

// ParseUpdate decodes one webhook update into an intake event. The boolean is
// false for updates the bot ignores: edits, callbacks, group chats, bots and
// messages with nothing to act on.
func ParseUpdate(body []byte) (intake.Event, bool, error) {
	var u tgbotapi.Update
	if err := json.Unmarshal(body, &u); err != nil {
		return intake.Event{}, false, fmt.Errorf("decode telegram update: %w", err)
	}
	return EventFromUpdate(u)
}

// EventFromUpdate maps a decoded update. An audio message is what Telegram
// sends when a user shares an MP3 as music rather than as a file.
func EventFromUpdate(u tgbotapi.Update) (intake.Event, bool, error) {
	msg := u.Message
	if msg == nil {
		return intake.Event{}, false, nil
	}
	if msg.Chat != nil && msg.Chat.Type != "" && !msg.Chat.IsPrivate() {
		return intake.Event{}, false, nil
	}
	if msg.From != nil && msg.From.IsBot {
		return intake.Event{}, false, nil
	}

	var userID int64
	if msg.Chat != nil {
		userID = msg.Chat.ID
	}
	if msg.From != nil {
		userID = msg.From.ID
	}
	if userID == 0 {
		return intake.Event{}, false, fmt.Errorf("telegram update %d has no sender", u.UpdateID)
	}
	ev := intake.Event{UserID: strconv.FormatInt(userID, 10)}

	switch {
	case msg.Document != nil:
		ev.Kind = intake.KindDocument
		ev.Attachment = &intake.Attachment{
			FileRef:  msg.Document.FileID,
			FileName: msg.Document.FileName,
			MIMEType: msg.Document.MimeType,
			Size:     int64(msg.Document.FileSize),
		}
	case msg.Audio != nil:
		ev.Kind = intake.KindDocument
		ev.Attachment = &intake.Attachment{
			FileRef:  msg.Audio.FileID,
			FileName: msg.Audio.FileName,
			MIMEType: msg.Audio.MimeType,
			Size:     int64(msg.Audio.FileSize),
		}
		if ev.Attachment.FileName == "" {
			ev.Attachment.FileName = "audio.mp3"
		}
	case strings.HasPrefix(strings.TrimSpace(msg.Text), "/"):
		ev.Kind = intake.KindCommand
		ev.Command = commandName(msg.Text)
		if ev.Command == "" {
			return intake.Event{}, false, nil
		}
	case strings.TrimSpace(msg.Text) != "":
		ev.Kind = intake.KindText
		ev.Text = msg.Text
	default:
		return intake.Event{}, false, nil
	}
	return ev, true, nil
}

// commandName turns "/TextToSpeech@docvoice_bot extra" into "TextToSpeech".
func commandName(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return name
}
