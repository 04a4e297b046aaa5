package telegrambot

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m3rciful/insurebot/core/logger"
	tg "github.com/m3rciful/insurebot/core/telegram"
	"github.com/m3rciful/insurebot/core/telegram/commands"
	tghelpers "github.com/m3rciful/insurebot/core/telegram/helpers"
	"github.com/m3rciful/insurebot/core/telegram/router"
	"github.com/m3rciful/insurebot/internal/conversation"

	tele "gopkg.in/telebot.v4"
)

// EventHandler is implemented by *conversation.Machine.
type EventHandler interface {
	Handle(ctx context.Context, tr conversation.Transport, ev conversation.Event) error
}

// Handler feeds every update into the conversation machine.
type Handler struct {
	events EventHandler
}

// NewHandler returns a handler bound to events.
func NewHandler(events EventHandler) *Handler {
	return &Handler{events: events}
}

// Handle is the telebot handler shared by all routes.
func (h *Handler) Handle(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	ev := EventFromUpdate(c.Update())
	if ev.ChatID == 0 && c.Chat() != nil {
		ev.ChatID = c.Chat().ID
	}
	if ev.Kind == conversation.KindUnsupported {
		logger.Debug(ctx, logger.CompTG, "update.unsupported", slog.Int64("chat_id", ev.ChatID))
	}
	return h.events.Handle(ctx, NewTransport(c), ev)
}

// Register adds /start, the callback vocabulary and the country prefix to reg.
// Unknown callbacks are also handed to the machine, which rejects them.
func (h *Handler) Register(reg *tg.Registry) error {
	var errs []error
	if err := reg.RegisterCommand(conversation.StartCommand, commands.Command{
		Handler:     h.Handle,
		Description: "Start a new insurance request",
	}); err != nil {
		errs = append(errs, err)
	}
	for _, action := range conversation.Actions() {
		if err := reg.RegisterCallback(action, h.Handle); err != nil {
			errs = append(errs, err)
		}
	}
	if err := reg.RegisterCallbackPrefix(conversation.CountryPrefix, h.Handle); err != nil {
		errs = append(errs, err)
	}
	reg.SetCallbackNotFound(h.Handle)
	return errors.Join(errs...)
}

// Routes returns the bot routes for reg. Register must be called first.
func (h *Handler) Routes(reg *tg.Registry) []tg.Route {
	return router.Routes(reg, router.Messages{
		Text:     h.Handle,
		Photo:    h.Handle,
		Document: h.Handle,
		Media:    h.Handle,
	})
}
