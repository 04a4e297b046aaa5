// Package helpers holds small Telegram conveniences: request contexts, reply
// helpers routed through the send queue, and date parsing.
package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/m3rciful/insurebot/core/logger"
	"github.com/m3rciful/insurebot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var queue atomic.Pointer[sender.Dispatcher]

// SetDispatcher routes text replies through d. nil sends inline.
func SetDispatcher(d *sender.Dispatcher) {
	queue.Store(d)
}

func enqueue(c tele.Context, action string, run func() error) error {
	d := queue.Load()
	if d == nil {
		return run()
	}
	ctx := BuildContext(c)
	err := d.Enqueue(ctx, action, run)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, logger.CompSender, "queue.bypass",
			slog.String("action", action), slog.Any("err", err))
		return run()
	}
	return err
}

// SendText queues a plain reply to the current chat.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	return enqueue(c, "send.text", func() error {
		if len(opts) > 0 && opts[0] != nil {
			return c.Send(text, opts[0])
		}
		return c.Send(text)
	})
}

// SendMD queues a Markdown reply with an optional keyboard.
func SendMD(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown}
	if len(markup) > 0 {
		opts.ReplyMarkup = markup[0]
	}
	return SendText(c, text, opts)
}

// SendDocument uploads doc without the queue so the caller sees the result.
func SendDocument(c tele.Context, doc *tele.Document) error {
	ctx := BuildContext(c)
	start := time.Now()
	err := c.Send(doc)
	attrs := []slog.Attr{
		slog.String("action", "send.document"),
		slog.String("file", doc.FileName),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		logger.Error(ctx, logger.CompSender, "send.fail", append(attrs,
			slog.String("err_code", sender.Classify(err)),
			slog.String("err", sender.Redact(err)))...)
		return err
	}
	logger.Debug(ctx, logger.CompSender, "send.ok", attrs...)
	return nil
}
