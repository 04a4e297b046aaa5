package middleware

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/m3rciful/insurebot/core/logger"
	tghelpers "github.com/m3rciful/insurebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Update kinds understood by RateLimitOptions.Exclude.
const (
	KindCallback = "callback"
	KindMessage  = "message"
	KindOther    = "other"
)

// RateLimitOptions configure RateLimit.
type RateLimitOptions struct {
	// Interval is the minimum gap between two updates of one user.
	Interval time.Duration
	// Exclude lists update kinds that are never limited.
	Exclude []string
	// MaxDelay is how long an update over the limit may wait for its slot.
	MaxDelay time.Duration
	// OnLimited runs instead of the handler for an update that cannot wait.
	// A nil OnLimited drops it.
	OnLimited tele.HandlerFunc
}

// UpdateKind classifies an update for rate limiting.
func UpdateKind(u tele.Update) string {
	switch {
	case u.Callback != nil:
		return KindCallback
	case u.Message != nil:
		return KindMessage
	}
	return KindOther
}

type limiters struct {
	mu    sync.Mutex
	every rate.Limit
	users map[int64]*userLimiter
	swept time.Time
}

type userLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

func (l *limiters) reserve(user int64, now time.Time, idle time.Duration) *rate.Reservation {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.swept) > idle {
		for id, u := range l.users {
			if now.Sub(u.seen) > idle {
				delete(l.users, id)
			}
		}
		l.swept = now
	}
	u, ok := l.users[user]
	if !ok {
		u = &userLimiter{lim: rate.NewLimiter(l.every, 1)}
		l.users[user] = u
	}
	u.seen = now
	return u.lim.ReserveN(now, 1)
}

// RateLimit paces each user to one update per opts.Interval. An update that
// would wait longer than opts.MaxDelay goes to opts.OnLimited instead.
func RateLimit(opts RateLimitOptions) tele.MiddlewareFunc {
	if opts.Interval <= 0 {
		return func(next tele.HandlerFunc) tele.HandlerFunc { return next }
	}
	skip := make(map[string]bool, len(opts.Exclude))
	for _, k := range opts.Exclude {
		skip[k] = true
	}
	l := &limiters{every: rate.Every(opts.Interval), users: make(map[int64]*userLimiter)}
	idle := max(opts.Interval*10, time.Minute)

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			kind := UpdateKind(c.Update())
			if user == nil || skip[kind] {
				return next(c)
			}
			now := time.Now()
			r := l.reserve(user.ID, now, idle)
			wait := r.DelayFrom(now)
			if wait == 0 {
				return next(c)
			}
			if wait <= opts.MaxDelay {
				time.Sleep(wait)
				return next(c)
			}
			r.CancelAt(now)
			logger.Warn(tghelpers.BuildContext(c), logger.CompTG, "rate_limited",
				slog.String("kind", kind),
				slog.Duration("wait", logger.RoundMS(wait)))
			if opts.OnLimited != nil {
				return opts.OnLimited(c)
			}
			return nil
		}
	}
}
