package middleware

import (
	"log/slog"

	"github.com/m3rciful/insurebot/core/logger"
	"github.com/m3rciful/insurebot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/insurebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// LogUpdates attaches the request context to the update and writes a sampled
// debug line describing it.
func LogUpdates(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		if logger.SampleDebug() {
			logger.Debug(ctx, logger.CompTG, "update.received", describe(c)...)
		}
		return next(c)
	}
}

func describe(c tele.Context) []slog.Attr {
	u := c.Update()
	attrs := []slog.Attr{slog.String("kind", UpdateKind(u))}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil && user.LanguageCode != "" {
		attrs = append(attrs, slog.String("lang", user.LanguageCode))
	}
	switch {
	case u.Callback != nil:
		key, _ := callbacks.Parse(u.Callback)
		attrs = append(attrs, slog.String("action", logger.Clip(key, 64)))
	case u.Message != nil && u.Message.Photo != nil:
		attrs = append(attrs, slog.Bool("photo", true))
	case u.Message != nil && u.Message.Document != nil:
		attrs = append(attrs, slog.String("mime", u.Message.Document.MIME))
	case u.Message != nil:
		attrs = append(attrs, slog.Int("text_len", len([]rune(u.Message.Text))))
	}
	return attrs
}
