package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ytget/yt-saver-bot/internal/model"
)

// ToEvent maps an update to a pipeline event. Updates the bot does not act on
// (edits, channel posts, messages without a sender) report false.
func ToEvent(u tgbotapi.Update) (model.Event, bool) {
	if q := u.CallbackQuery; q != nil {
		if q.From == nil {
			return model.Event{}, false
		}
		ev := model.Event{
			UserID:       q.From.ID,
			Kind:         model.EventCallback,
			CallbackID:   q.ID,
			CallbackData: q.Data,
		}
		if q.Message != nil {
			ev.MessageID = q.Message.MessageID
			if q.Message.Chat != nil {
				ev.ChatID = q.Message.Chat.ID
			}
		}
		if ev.ChatID == 0 {
			ev.ChatID = ev.UserID
		}
		return ev, true
	}

	m := u.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return model.Event{}, false
	}
	ev := model.Event{
		UserID:    m.From.ID,
		ChatID:    m.Chat.ID,
		MessageID: m.MessageID,
	}

	switch {
	case m.Document != nil:
		ev.Kind = model.EventDocument
		ev.FileID = m.Document.FileID
		ev.FileName = m.Document.FileName
		ev.FileSize = int64(m.Document.FileSize)
	case m.IsCommand():
		ev.Kind = model.EventCommand
		ev.Command = m.Command()
		ev.Text = m.CommandArguments()
	case m.Text != "":
		ev.Kind = model.EventText
		ev.Text = m.Text
	case m.Caption != "":
		ev.Kind = model.EventText
		ev.Text = m.Caption
	default:
		return model.Event{}, false
	}
	return ev, true
}
