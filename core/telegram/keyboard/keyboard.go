// Package keyboard builds inline keyboards.
package keyboard

import tele "gopkg.in/telebot.v4"

// Button is one inline button. With an empty Unique the callback data is
// Data as is; otherwise telebot encodes it as "\f<unique>|<data>".
type Button struct {
	Text   string
	Unique string
	Data   string
}

// Raw returns a button whose callback data is exactly data.
func Raw(text, data string) Button {
	return Button{Text: text, Data: data}
}

// Inline lays out rows of buttons. Empty rows are skipped.
func Inline(rows ...[]Button) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		line := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			line = append(line, *m.Data(b.Text, b.Unique, b.Data).Inline())
		}
		m.InlineKeyboard = append(m.InlineKeyboard, line)
	}
	return m
}
