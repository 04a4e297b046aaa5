package telegrambot

import (
	"bytes"
	"context"
	"fmt"
	"io"

	tghelpers "github.com/m3rciful/insurebot/core/telegram/helpers"
	"github.com/m3rciful/insurebot/core/telegram/keyboard"
	"github.com/m3rciful/insurebot/internal/conversation"

	tele "gopkg.in/telebot.v4"
)

// maxAttachmentSize matches the Bot API download limit.
const maxAttachmentSize = 20 << 20

// Transport replies within a single telebot update.
type Transport struct {
	c tele.Context
}

// NewTransport wraps c.
func NewTransport(c tele.Context) *Transport {
	return &Transport{c: c}
}

// SendText queues msg on the async sender.
func (t *Transport) SendText(ctx context.Context, _ int64, msg conversation.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	markup := Markup(msg.Keyboard)
	if msg.Plain {
		opts := &tele.SendOptions{}
		if markup != nil {
			opts.ReplyMarkup = markup
		}
		return tghelpers.SendText(t.c, msg.Text, opts)
	}
	if markup == nil {
		return tghelpers.SendMD(t.c, msg.Text)
	}
	return tghelpers.SendMD(t.c, msg.Text, markup)
}

// SendDocument uploads doc synchronously.
func (t *Transport) SendDocument(ctx context.Context, _ int64, doc conversation.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return tghelpers.SendDocument(t.c, &tele.Document{
		File:     tele.FromReader(bytes.NewReader(doc.Data)),
		FileName: doc.FileName,
		MIME:     doc.MIME,
		Caption:  doc.Caption,
	})
}

// FetchAttachment downloads the file behind a Telegram file id.
func (t *Transport) FetchAttachment(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := t.c.Bot().File(&tele.File{FileID: ref})
	if err != nil {
		return nil, fmt.Errorf("telegram: get file %s: %w", ref, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxAttachmentSize+1))
	if err != nil {
		return nil, fmt.Errorf("telegram: read file %s: %w", ref, err)
	}
	if len(data) > maxAttachmentSize {
		return nil, fmt.Errorf("telegram: file %s exceeds %d bytes", ref, maxAttachmentSize)
	}
	return data, nil
}

// AnswerCallback stops the button spinner.
func (t *Transport) AnswerCallback(_ context.Context, _ string) error {
	if t.c.Callback() == nil {
		return nil
	}
	return t.c.Respond()
}

// Markup converts a conversation keyboard into inline reply markup. Button
// data is sent verbatim.
func Markup(kb conversation.Keyboard) *tele.ReplyMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]keyboard.Button, 0, len(kb))
	for _, row := range kb {
		btns := make([]keyboard.Button, 0, len(row))
		for _, b := range row {
			btns = append(btns, keyboard.Raw(b.Text, b.Data))
		}
		rows = append(rows, btns)
	}
	return keyboard.Inline(rows...)
}
