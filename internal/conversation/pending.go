package conversation

import "sync"

// Pages holds buffered vehicle document photos for one chat.
type Pages struct {
	Front []byte
	Back  []byte
}

// Pending buffers document photos between uploads.
type Pending interface {
	SetFront(chatID int64, page []byte)
	SetBack(chatID int64, page []byte)
	Pages(chatID int64) Pages
	Clear(chatID int64)
}

// PendingPages is an in-memory Pending keyed by chat id.
type PendingPages struct {
	mu    sync.Mutex
	chats map[int64]Pages
}

// NewPendingPages returns an empty buffer.
func NewPendingPages() *PendingPages {
	return &PendingPages{chats: make(map[int64]Pages)}
}

// SetFront stores the front page and drops any back page buffered for the chat.
func (p *PendingPages) SetFront(chatID int64, page []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chats[chatID] = Pages{Front: clone(page)}
}

// SetBack stores the back page next to the buffered front page, if any.
func (p *PendingPages) SetBack(chatID int64, page []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur := p.chats[chatID]
	cur.Back = clone(page)
	p.chats[chatID] = cur
}

// Pages returns copies of the buffered pages.
func (p *PendingPages) Pages(chatID int64) Pages {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur := p.chats[chatID]
	return Pages{Front: clone(cur.Front), Back: clone(cur.Back)}
}

// Clear drops everything buffered for the chat.
func (p *PendingPages) Clear(chatID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.chats, chatID)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
