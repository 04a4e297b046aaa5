package conversation

import (
	"context"
	"sync"
)

// chatLocks serializes event handling per chat.
type chatLocks struct {
	mu    sync.Mutex
	chats map[int64]*chatLock
}

type chatLock struct {
	sem  chan struct{}
	refs int
}

func newChatLocks() *chatLocks {
	return &chatLocks{chats: make(map[int64]*chatLock)}
}

// acquire blocks until the chat is free or ctx is done.
func (l *chatLocks) acquire(ctx context.Context, chatID int64) (func(), error) {
	l.mu.Lock()
	cl, ok := l.chats[chatID]
	if !ok {
		cl = &chatLock{sem: make(chan struct{}, 1)}
		l.chats[chatID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	select {
	case cl.sem <- struct{}{}:
		return func() {
			<-cl.sem
			l.release(chatID, cl)
		}, nil
	case <-ctx.Done():
		l.release(chatID, cl)
		return nil, ctx.Err()
	}
}

func (l *chatLocks) release(chatID int64, cl *chatLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cl.refs--
	if cl.refs == 0 {
		delete(l.chats, chatID)
	}
}

func (l *chatLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.chats)
}
