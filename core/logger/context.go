package logger

import (
	"context"
	"strconv"
)

type metaKey struct{}

// Meta is the request metadata attached to every line logged with the context.
type Meta struct {
	RID      string
	UpdateID int
	UserID   int64
	ChatID   int64
	Handler  string
}

// MetaFrom returns the metadata stored in ctx.
func MetaFrom(ctx context.Context) Meta {
	if ctx == nil {
		return Meta{}
	}
	m, _ := ctx.Value(metaKey{}).(Meta)
	return m
}

// WithMeta replaces the metadata stored in ctx.
func WithMeta(ctx context.Context, m Meta) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, metaKey{}, m)
}

// WithRID sets the correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	m := MetaFrom(ctx)
	m.RID = rid
	return WithMeta(ctx, m)
}

// WithUpdate records the Telegram identifiers of the update being handled.
// The rid is derived from them unless one is already set.
func WithUpdate(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	m := MetaFrom(ctx)
	m.UpdateID, m.UserID, m.ChatID = updateID, userID, chatID
	if m.RID == "" {
		m.RID = UpdateRID(updateID, chatID, userID)
	}
	return WithMeta(ctx, m)
}

// WithHandler names the handler serving the request.
func WithHandler(ctx context.Context, handler string) context.Context {
	m := MetaFrom(ctx)
	m.Handler = handler
	return WithMeta(ctx, m)
}

// UpdateRID builds a short correlation id from update, chat and user ids in base 36.
func UpdateRID(updateID int, chatID, userID int64) string {
	return strconv.FormatInt(int64(updateID), 36) + "." +
		strconv.FormatInt(chatID, 36) + "." +
		strconv.FormatInt(userID, 36)
}
