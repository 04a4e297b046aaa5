package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/m3rciful/insurebot/core/logger"
	"github.com/m3rciful/insurebot/internal/model"
)

const keyPrefix = "session:"

// BadgerOptions configures the embedded key-value store.
type BadgerOptions struct {
	// Dir holds the database files; empty with InMemory set.
	Dir      string
	InMemory bool
	// TTL expires sessions that were not written for that long; 0 disables expiry.
	TTL time.Duration
}

// Badger stores each session as JSON under "session:<chat id>".
type Badger struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenBadger opens (or creates) the store.
func OpenBadger(opts BadgerOptions) (*Badger, error) {
	bopts := badger.DefaultOptions(opts.Dir).
		WithLogger(badgerLogger{}).
		WithLoggingLevel(badger.WARNING)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").
			WithInMemory(true).
			WithLogger(badgerLogger{}).
			WithLoggingLevel(badger.WARNING)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Badger{db: db, ttl: opts.TTL}, nil
}

func sessionKey(chatID int64) []byte {
	return []byte(keyPrefix + strconv.FormatInt(chatID, 10))
}

// Get returns the chat's session or model.ErrSessionNotFound.
func (b *Badger) Get(ctx context.Context, chatID int64) (*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var s model.Session
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(chatID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &s)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %d: %w", chatID, err)
	}
	return &s, nil
}

// Add stores a new session; model.ErrSessionExists if the chat already has one.
func (b *Badger) Add(ctx context.Context, s *model.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %d: %w", s.ChatID, err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		key := sessionKey(s.ChatID)
		if _, err := txn.Get(key); err == nil {
			return model.ErrSessionExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.SetEntry(b.entry(key, val))
	})
	if errors.Is(err, model.ErrSessionExists) {
		return err
	}
	if err != nil {
		return fmt.Errorf("add session %d: %w", s.ChatID, err)
	}
	return nil
}

// Update overwrites the stored session and renews its TTL. A missing chat is logged and ignored.
func (b *Badger) Update(ctx context.Context, s *model.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %d: %w", s.ChatID, err)
	}
	missing := false
	err = b.db.Update(func(txn *badger.Txn) error {
		key := sessionKey(s.ChatID)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			missing = true
			return nil
		} else if err != nil {
			return err
		}
		return txn.SetEntry(b.entry(key, val))
	})
	if err != nil {
		return fmt.Errorf("update session %d: %w", s.ChatID, err)
	}
	if missing {
		warnMissing(ctx, "update", s.ChatID)
	}
	return nil
}

// Delete removes the chat's session. A missing chat is logged and ignored.
func (b *Badger) Delete(ctx context.Context, chatID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	missing := false
	err := b.db.Update(func(txn *badger.Txn) error {
		key := sessionKey(chatID)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			missing = true
			return nil
		} else if err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("delete session %d: %w", chatID, err)
	}
	if missing {
		warnMissing(ctx, "delete", chatID)
	}
	return nil
}

// Ping fails once the store is closed.
func (b *Badger) Ping(context.Context) error {
	if b.db.IsClosed() {
		return errors.New("badger: closed")
	}
	return nil
}

// Close flushes and closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) entry(key, val []byte) *badger.Entry {
	e := badger.NewEntry(key, val)
	if b.ttl > 0 {
		e = e.WithTTL(b.ttl)
	}
	return e
}

// badgerLogger routes badger's printf logging into the structured logger.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, args ...interface{}) {
	logger.Error(context.Background(), comp, "badger", slog.String("msg", badgerMsg(f, args)))
}

func (badgerLogger) Warningf(f string, args ...interface{}) {
	logger.Warn(context.Background(), comp, "badger", slog.String("msg", badgerMsg(f, args)))
}

func (badgerLogger) Infof(f string, args ...interface{}) {
	logger.Info(context.Background(), comp, "badger", slog.String("msg", badgerMsg(f, args)))
}

func (badgerLogger) Debugf(f string, args ...interface{}) {
	logger.Debug(context.Background(), comp, "badger", slog.String("msg", badgerMsg(f, args)))
}

func badgerMsg(f string, args []interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(f, args...))
}
