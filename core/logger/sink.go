package logger

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const flushEvery = 250 * time.Millisecond

var errSinkClosed = errors.New("logger: sink closed")

// sink buffers lines for one or more writers and flushes them every flushEvery.
type sink struct {
	mu     sync.Mutex
	buf    *bufio.Writer
	err    error
	closed bool

	stop chan struct{}
	done chan struct{}
}

func newSink(ws []io.Writer) *sink {
	s := &sink{
		buf:  bufio.NewWriterSize(io.MultiWriter(ws...), 64<<10),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *sink) loop() {
	defer close(s.done)
	t := time.NewTicker(flushEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = s.Flush()
		case <-s.stop:
			return
		}
	}
}

// Write appends one line. The first write error sticks.
func (s *sink) Write(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSinkClosed
	}
	if s.err != nil {
		return s.err
	}
	if _, err := s.buf.Write(line); err != nil {
		s.err = err
	}
	return s.err
}

// Flush pushes buffered lines to the writers.
func (s *sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = s.buf.Flush()
	}
	return s.err
}

// Close flushes and stops the background flusher.
func (s *sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	close(s.stop)
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = s.buf.Flush()
	}
	return s.err
}

// sampler lets num out of every den events through. A zero ratio allows all.
type sampler struct {
	num, den atomic.Int64
	n        atomic.Int64
}

func newSampler(num, den int) *sampler {
	s := &sampler{}
	s.set(num, den)
	return s
}

func (s *sampler) set(num, den int) {
	if num <= 0 || den <= 0 {
		num, den = 0, 0
	}
	if num > den {
		num = den
	}
	s.num.Store(int64(num))
	s.den.Store(int64(den))
	s.n.Store(0)
}

func (s *sampler) allow() bool {
	den := s.den.Load()
	if den == 0 {
		return true
	}
	return (s.n.Add(1)-1)%den < s.num.Load()
}

// parseRatio reads "1/50" or "50" (one in fifty). Empty means the default
// 1/50; "0" or "off" disables sampling.
func parseRatio(raw string) (int, int) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "":
		return 1, 50
	case "0", "off", "all":
		return 0, 0
	}
	if a, b, ok := strings.Cut(raw, "/"); ok {
		num, err1 := strconv.Atoi(strings.TrimSpace(a))
		den, err2 := strconv.Atoi(strings.TrimSpace(b))
		if err1 == nil && err2 == nil && num > 0 && den > 0 {
			return num, den
		}
		return 1, 50
	}
	if den, err := strconv.Atoi(raw); err == nil && den > 0 {
		return 1, den
	}
	return 1, 50
}
