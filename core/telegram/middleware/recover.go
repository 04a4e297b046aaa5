// Package middleware holds the global update middlewares: panic recovery,
// per-user rate limiting, update receipt logging and reply counting.
package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/insurebot/core/logger"
	tghelpers "github.com/m3rciful/insurebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Recover turns a handler panic into an error and logs the stack.
func Recover(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error(tghelpers.BuildContext(c), logger.CompTG, "handler.panic",
				slog.Any("err", r),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("telegram: handler panic: %v", r)
		}()
		return next(c)
	}
}
