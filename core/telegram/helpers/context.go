package helpers

import (
	"context"

	"github.com/m3rciful/insurebot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const ctxKey = "core.ctx"

// StoreContext caches ctx on the update so later helpers reuse it.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(ctxKey, ctx)
	}
}

// BuildContext returns the request context of the update, creating one with
// update, chat and user ids on first use.
func BuildContext(c tele.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if ctx, ok := c.Get(ctxKey).(context.Context); ok {
		return ctx
	}
	var chatID, userID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	ctx := logger.WithUpdate(context.Background(), c.Update().ID, userID, chatID)
	StoreContext(c, ctx)
	return ctx
}

// WithHandler tags the update context with the serving handler's name.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler != "" {
		ctx = logger.WithHandler(ctx, handler)
		StoreContext(c, ctx)
	}
	return ctx
}
