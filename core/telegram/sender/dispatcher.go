// Package sender runs outbound Telegram calls on a small worker pool.
//
// Every chat is pinned to one worker, so replies to a chat leave in the order
// they were queued. Transient network failures are retried with a linear
// backoff until MaxRetries or MaxDuration is exhausted.
package sender

import (
	"context"
	"errors"
	"hash/maphash"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/insurebot/core/logger"
	"github.com/m3rciful/insurebot/core/netutil"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the chat's worker queue has no room.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options size the pool. Zero values pick defaults.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	MaxDuration  time.Duration
}

func (o *Options) defaults() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.QueueSize < o.Workers {
		o.QueueSize = o.Workers
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
}

type job struct {
	ctx    context.Context
	action string
	run    func() error
}

// Dispatcher queues send jobs per chat.
type Dispatcher struct {
	opts   Options
	queues []chan job
	seed   maphash.Seed
	next   atomic.Uint64
	failed atomic.Uint64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts opts.Workers workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts.defaults()
	d := &Dispatcher{
		opts:   opts,
		queues: make([]chan job, opts.Workers),
		seed:   maphash.MakeSeed(),
	}
	for i := range d.queues {
		d.queues[i] = make(chan job, opts.QueueSize/opts.Workers)
		d.wg.Add(1)
		go d.work(d.queues[i])
	}
	return d
}

// Enqueue schedules run for the chat recorded in ctx. run may be called more
// than once when it fails with a retryable error.
func (d *Dispatcher) Enqueue(ctx context.Context, action string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil job")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.queue(ctx) <- job{ctx: ctx, action: action, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) queue(ctx context.Context) chan job {
	n := uint64(len(d.queues))
	chat := logger.MetaFrom(ctx).ChatID
	if chat == 0 {
		return d.queues[d.next.Add(1)%n]
	}
	return d.queues[maphash.String(d.seed, strconv.FormatInt(chat, 10))%n]
}

// Failed returns how many jobs were dropped after their last attempt.
func (d *Dispatcher) Failed() uint64 {
	return d.failed.Load()
}

// Close drains the queues and waits for the workers. It is idempotent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) work(q <-chan job) {
	defer d.wg.Done()
	for j := range q {
		d.do(j)
	}
}

func (d *Dispatcher) do(j job) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(j.ctx), d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = j.run(); err == nil {
			logger.Debug(ctx, logger.CompSender, "send.ok",
				slog.String("action", j.action),
				slog.Int("attempts", attempt),
				slog.Duration("duration", time.Since(start)))
			return
		}
		if attempt == attempts || !netutil.ShouldRetry(err) {
			break
		}
		wait := d.opts.RetryBackoff * time.Duration(attempt)
		logger.Debug(ctx, logger.CompSender, "send.retry",
			slog.String("action", j.action),
			slog.Int("attempts", attempt),
			slog.Duration("wait", wait),
			slog.String("err", Redact(err)))
		if !sleep(ctx, wait) {
			err = ctx.Err()
			break
		}
	}

	d.failed.Add(1)
	logger.Error(ctx, logger.CompSender, "send.fail",
		slog.String("action", j.action),
		slog.String("err_code", Classify(err)),
		slog.String("err", Redact(err)),
		slog.Duration("duration", time.Since(start)))
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
