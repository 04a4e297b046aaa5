package telegrambot

import (
	"testing"

	tg "github.com/m3rciful/insurebot/core/telegram"
	"github.com/m3rciful/insurebot/internal/conversation"

	tele "gopkg.in/telebot.v4"
)

func chat(id int64) *tele.Chat { return &tele.Chat{ID: id} }

func TestEventFromMessage(t *testing.T) {
	cases := []struct {
		name string
		msg  *tele.Message
		want conversation.Event
	}{
		{
			name: "text",
			msg:  &tele.Message{Chat: chat(7), Text: "John Doe;AB1;01.01.1990;01.01.2020;01.01.2030"},
			want: conversation.Event{ChatID: 7, Kind: conversation.KindText, Text: "John Doe;AB1;01.01.1990;01.01.2020;01.01.2030"},
		},
		{
			name: "command",
			msg:  &tele.Message{Chat: chat(7), Text: "/help"},
			want: conversation.Event{ChatID: 7, Kind: conversation.KindCommand, Text: "/help"},
		},
		{
			name: "photo",
			msg:  &tele.Message{Chat: chat(7), Photo: &tele.Photo{File: tele.File{FileID: "big"}}},
			want: conversation.Event{ChatID: 7, Kind: conversation.KindPhoto, PhotoRef: "big"},
		},
		{
			name: "image document",
			msg:  &tele.Message{Chat: chat(7), Document: &tele.Document{File: tele.File{FileID: "doc"}, MIME: "image/jpeg"}},
			want: conversation.Event{ChatID: 7, Kind: conversation.KindPhoto, PhotoRef: "doc"},
		},
		{
			name: "image by extension",
			msg:  &tele.Message{Chat: chat(7), Document: &tele.Document{File: tele.File{FileID: "doc"}, FileName: "scan.PNG"}},
			want: conversation.Event{ChatID: 7, Kind: conversation.KindPhoto, PhotoRef: "doc"},
		},
		{
			name: "pdf document",
			msg:  &tele.Message{Chat: chat(7), Document: &tele.Document{File: tele.File{FileID: "doc"}, MIME: "application/pdf"}},
			want: conversation.Event{ChatID: 7, Kind: conversation.KindUnsupported},
		},
		{
			name: "sticker with caption text",
			msg:  &tele.Message{Chat: chat(7), Sticker: &tele.Sticker{}, Text: "hi"},
			want: conversation.Event{ChatID: 7, Kind: conversation.KindUnsupported},
		},
		{
			name: "blank text",
			msg:  &tele.Message{Chat: chat(7), Text: "   "},
			want: conversation.Event{ChatID: 7, Kind: conversation.KindUnsupported},
		},
		{
			name: "no chat",
			msg:  &tele.Message{Text: "hi"},
			want: conversation.Event{Kind: conversation.KindText, Text: "hi"},
		},
	}
	for _, tc := range cases {
		if got := EventFromMessage(tc.msg); got != tc.want {
			t.Errorf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

func TestEventFromCallback(t *testing.T) {
	cb := &tele.Callback{ID: "cb1", Data: "country_UA", Message: &tele.Message{Chat: chat(9)}}
	want := conversation.Event{ChatID: 9, Kind: conversation.KindCallback, CallbackID: "cb1", CallbackData: "country_UA"}
	if got := EventFromCallback(cb); got != want {
		t.Fatalf("got %+v", got)
	}

	cb = &tele.Callback{ID: "cb2", Unique: "agreePrice", Sender: &tele.User{ID: 11}}
	got := EventFromCallback(cb)
	if got.ChatID != 11 || got.CallbackData != "agreePrice" {
		t.Fatalf("unique callback = %+v", got)
	}

	cb = &tele.Callback{ID: "cb3", Data: "\fconfirmPassport", Message: &tele.Message{Chat: chat(9)}}
	if got := EventFromCallback(cb); got.CallbackData != "confirmPassport" {
		t.Fatalf("form feed not stripped: %q", got.CallbackData)
	}
}

func TestEventFromUpdate(t *testing.T) {
	if ev := EventFromUpdate(tele.Update{Callback: &tele.Callback{ID: "x", Data: "restart", Sender: &tele.User{ID: 3}}}); ev.Kind != conversation.KindCallback {
		t.Fatalf("callback update = %+v", ev)
	}
	if ev := EventFromUpdate(tele.Update{EditedMessage: &tele.Message{Chat: chat(3), Text: "edit"}}); ev.Kind != conversation.KindUnsupported || ev.ChatID != 3 {
		t.Fatalf("edited message = %+v", ev)
	}
	if ev := EventFromUpdate(tele.Update{}); ev.Kind != conversation.KindUnsupported || ev.ChatID != 0 {
		t.Fatalf("empty update = %+v", ev)
	}
}

func TestMarkup(t *testing.T) {
	if Markup(nil) != nil {
		t.Fatalf("empty keyboard should give nil markup")
	}
	kb := conversation.Keyboard{
		{{Text: "Confirm", Data: conversation.ActionConfirmPassport}, {Text: "Retry", Data: conversation.ActionRetryPassport}},
		{{Text: "Ukraine", Data: conversation.CountryPrefix + "UA"}},
	}
	m := Markup(kb)
	if len(m.InlineKeyboard) != 2 || len(m.InlineKeyboard[0]) != 2 {
		t.Fatalf("rows = %+v", m.InlineKeyboard)
	}
	b := m.InlineKeyboard[1][0]
	if b.Text != "Ukraine" || b.Data != "country_UA" || b.Unique != "" {
		t.Fatalf("button = %+v", b)
	}
}

func TestRegister(t *testing.T) {
	h := NewHandler(nil)
	reg := tg.NewRegistry()
	if err := h.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, ok := reg.Command("start"); !ok {
		t.Fatalf("/start not registered")
	}
	for _, key := range append(conversation.Actions(), "country_PL") {
		if _, ok := reg.Callback(key); !ok {
			t.Errorf("callback %s not registered", key)
		}
	}
	if reg.CallbackNotFound() == nil {
		t.Fatalf("fallback missing")
	}
}
