// Package telegrambot connects telebot updates to the conversation machine.
package telegrambot

import (
	"strings"

	"github.com/m3rciful/insurebot/core/telegram/callbacks"
	"github.com/m3rciful/insurebot/internal/conversation"

	tele "gopkg.in/telebot.v4"
)

// EventFromUpdate maps a telebot update to a conversation event.
// Updates without a message or callback come back as unsupported with chat id 0.
func EventFromUpdate(upd tele.Update) conversation.Event {
	switch {
	case upd.Callback != nil:
		return EventFromCallback(upd.Callback)
	case upd.Message != nil:
		return EventFromMessage(upd.Message)
	case upd.EditedMessage != nil:
		ev := EventFromMessage(upd.EditedMessage)
		return conversation.Event{ChatID: ev.ChatID, Kind: conversation.KindUnsupported}
	}
	return conversation.Event{Kind: conversation.KindUnsupported}
}

// EventFromMessage classifies a chat message.
func EventFromMessage(msg *tele.Message) conversation.Event {
	if msg == nil {
		return conversation.Event{Kind: conversation.KindUnsupported}
	}
	ev := conversation.Event{Kind: conversation.KindUnsupported}
	if msg.Chat != nil {
		ev.ChatID = msg.Chat.ID
	}

	switch {
	case msg.Photo != nil && msg.Photo.FileID != "":
		ev.Kind = conversation.KindPhoto
		ev.PhotoRef = msg.Photo.FileID
	case msg.Document != nil && isImage(msg.Document):
		ev.Kind = conversation.KindPhoto
		ev.PhotoRef = msg.Document.FileID
	case msg.Document != nil || msg.Sticker != nil || msg.Voice != nil || msg.Audio != nil ||
		msg.Video != nil || msg.VideoNote != nil || msg.Animation != nil || msg.Location != nil ||
		msg.Contact != nil:
		// media the flow cannot use
	case strings.TrimSpace(msg.Text) != "":
		ev.Text = msg.Text
		ev.Kind = conversation.KindText
		if strings.HasPrefix(strings.TrimSpace(msg.Text), "/") {
			ev.Kind = conversation.KindCommand
		}
	}
	return ev
}

// EventFromCallback maps an inline button press. The data is passed on as sent.
func EventFromCallback(cb *tele.Callback) conversation.Event {
	ev := conversation.Event{Kind: conversation.KindCallback}
	if cb == nil {
		return ev
	}
	ev.CallbackID = cb.ID
	ev.CallbackData = callbackData(cb)
	switch {
	case cb.Message != nil && cb.Message.Chat != nil:
		ev.ChatID = cb.Message.Chat.ID
	case cb.Sender != nil:
		ev.ChatID = cb.Sender.ID
	}
	return ev
}

func callbackData(cb *tele.Callback) string {
	key, payload := callbacks.Parse(cb)
	if payload == "" {
		return key
	}
	return key + "|" + payload
}

func isImage(doc *tele.Document) bool {
	if strings.HasPrefix(strings.ToLower(doc.MIME), "image/") {
		return true
	}
	name := strings.ToLower(doc.FileName)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".webp", ".heic"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
