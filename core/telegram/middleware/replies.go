package middleware

import (
	"sync/atomic"

	tele "gopkg.in/telebot.v4"
)

const repliesKey = "core.replies"

// Counter tallies what a handler sent back. Sends finished by the queue after
// the handler returned are still counted.
type Counter struct {
	sent     atomic.Int32
	keyboard atomic.Bool
}

// Sent returns the number of successful sends.
func (r *Counter) Sent() int { return int(r.sent.Load()) }

// Keyboard reports whether any send carried reply markup.
func (r *Counter) Keyboard() bool { return r.keyboard.Load() }

func (r *Counter) add(opts []any) {
	r.sent.Add(1)
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				r.keyboard.Store(true)
			}
		case *tele.ReplyMarkup:
			if v != nil {
				r.keyboard.Store(true)
			}
		}
	}
}

type countingContext struct {
	tele.Context
	n *Counter
}

func (c countingContext) Send(what any, opts ...any) error {
	err := c.Context.Send(what, opts...)
	if err == nil {
		c.n.add(opts)
	}
	return err
}

func (c countingContext) Reply(what any, opts ...any) error {
	err := c.Context.Reply(what, opts...)
	if err == nil {
		c.n.add(opts)
	}
	return err
}

func (c countingContext) Edit(what any, opts ...any) error {
	err := c.Context.Edit(what, opts...)
	if err == nil {
		c.n.add(opts)
	}
	return err
}

// CountReplies wraps the context so Replies can report what was sent.
func CountReplies(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		n := &Counter{}
		c.Set(repliesKey, n)
		return next(countingContext{Context: c, n: n})
	}
}

// Replies returns the counter installed by CountReplies, or an empty one.
func Replies(c tele.Context) *Counter {
	if n, ok := c.Get(repliesKey).(*Counter); ok {
		return n
	}
	return &Counter{}
}
