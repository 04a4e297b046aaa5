// Package sessionstore implements the session repository over memory, SQL and badger.
//
// Every backend hands out copies: a session returned by Get can be mutated freely
// and only becomes visible to other readers through Update.
package sessionstore

import (
	"context"
	"log/slog"
	"sync"

	"github.com/m3rciful/insurebot/core/logger"
	"github.com/m3rciful/insurebot/internal/model"
)

const comp = logger.CompStore

// Memory keeps sessions in a map. Contents are lost on restart.
type Memory struct {
	mu       sync.RWMutex
	sessions map[int64]*model.Session
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[int64]*model.Session)}
}

// Get returns a copy of the chat's session or model.ErrSessionNotFound.
func (m *Memory) Get(_ context.Context, chatID int64) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[chatID]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	return s.Clone(), nil
}

// Add stores a new session; model.ErrSessionExists if the chat already has one.
func (m *Memory) Add(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ChatID]; ok {
		return model.ErrSessionExists
	}
	m.sessions[s.ChatID] = s.Clone()
	return nil
}

// Update replaces the stored session. A missing chat is logged and ignored.
func (m *Memory) Update(ctx context.Context, s *model.Session) error {
	m.mu.Lock()
	_, ok := m.sessions[s.ChatID]
	if ok {
		m.sessions[s.ChatID] = s.Clone()
	}
	m.mu.Unlock()
	if !ok {
		warnMissing(ctx, "update", s.ChatID)
	}
	return nil
}

// Delete removes the chat's session. A missing chat is logged and ignored.
func (m *Memory) Delete(ctx context.Context, chatID int64) error {
	m.mu.Lock()
	_, ok := m.sessions[chatID]
	delete(m.sessions, chatID)
	m.mu.Unlock()
	if !ok {
		warnMissing(ctx, "delete", chatID)
	}
	return nil
}

// Len reports the number of stored sessions.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func warnMissing(ctx context.Context, op string, chatID int64) {
	logger.Warn(ctx, comp, "session."+op+".missing",
		slog.Int64("chat_id", chatID),
	)
}
