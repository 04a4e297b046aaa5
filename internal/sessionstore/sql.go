package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/insurebot/internal/model"
)

// SQL stores sessions in the sessions table created by the migrations.
// Queries are written with '?' and rebound for the connection's driver.
type SQL struct {
	db *sqlx.DB

	qGet, qAdd, qUpdate, qDelete string
}

// NewSQL wraps an open connection. The caller keeps ownership of db.
func NewSQL(db *sqlx.DB) *SQL {
	return &SQL{
		db: db,
		qGet: db.Rebind(`SELECT chat_id, state, country_code, passport, vehicle, price_declined, created_at, updated_at
			FROM sessions WHERE chat_id = ?`),
		qAdd: db.Rebind(`INSERT INTO sessions (chat_id, state, country_code, passport, vehicle, price_declined, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (chat_id) DO NOTHING`),
		qUpdate: db.Rebind(`UPDATE sessions
			SET state = ?, country_code = ?, passport = ?, vehicle = ?, price_declined = ?, updated_at = ?
			WHERE chat_id = ?`),
		qDelete: db.Rebind(`DELETE FROM sessions WHERE chat_id = ?`),
	}
}

type sessionRow struct {
	ChatID        int64          `db:"chat_id"`
	State         string         `db:"state"`
	CountryCode   string         `db:"country_code"`
	Passport      sql.NullString `db:"passport"`
	Vehicle       sql.NullString `db:"vehicle"`
	PriceDeclined bool           `db:"price_declined"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

// Get loads the chat's session or returns model.ErrSessionNotFound.
func (s *SQL) Get(ctx context.Context, chatID int64) (*model.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, s.qGet, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session %d: %w", chatID, err)
	}
	return row.session()
}

// Add inserts a new session; model.ErrSessionExists if the chat already has one.
func (s *SQL) Add(ctx context.Context, sess *model.Session) error {
	row, err := newRow(sess)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.qAdd,
		row.ChatID, row.State, row.CountryCode, row.Passport, row.Vehicle,
		row.PriceDeclined, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session %d: %w", sess.ChatID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert session %d: %w", sess.ChatID, err)
	}
	if n == 0 {
		return model.ErrSessionExists
	}
	return nil
}

// Update overwrites the stored session. A missing chat is logged and ignored.
func (s *SQL) Update(ctx context.Context, sess *model.Session) error {
	row, err := newRow(sess)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.qUpdate,
		row.State, row.CountryCode, row.Passport, row.Vehicle,
		row.PriceDeclined, row.UpdatedAt, row.ChatID,
	)
	if err != nil {
		return fmt.Errorf("update session %d: %w", sess.ChatID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		warnMissing(ctx, "update", sess.ChatID)
	}
	return nil
}

// Delete removes the chat's session. A missing chat is logged and ignored.
func (s *SQL) Delete(ctx context.Context, chatID int64) error {
	res, err := s.db.ExecContext(ctx, s.qDelete, chatID)
	if err != nil {
		return fmt.Errorf("delete session %d: %w", chatID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		warnMissing(ctx, "delete", chatID)
	}
	return nil
}

// Ping checks the connection.
func (s *SQL) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the connection belongs to the bootstrap.
func (s *SQL) Close() error { return nil }

func newRow(s *model.Session) (sessionRow, error) {
	row := sessionRow{
		ChatID:        s.ChatID,
		State:         string(s.State),
		CountryCode:   s.CountryCode,
		PriceDeclined: s.PriceDeclined,
		CreatedAt:     s.CreatedAt.UTC(),
		UpdatedAt:     s.UpdatedAt.UTC(),
	}
	var err error
	if row.Passport, err = jsonColumn(s.Passport); err != nil {
		return row, fmt.Errorf("encode passport: %w", err)
	}
	if row.Vehicle, err = jsonColumn(s.Vehicle); err != nil {
		return row, fmt.Errorf("encode vehicle: %w", err)
	}
	return row, nil
}

func (r sessionRow) session() (*model.Session, error) {
	state, err := model.ParseState(r.State)
	if err != nil {
		return nil, fmt.Errorf("session %d: %w", r.ChatID, err)
	}
	s := &model.Session{
		ChatID:        r.ChatID,
		State:         state,
		CountryCode:   r.CountryCode,
		PriceDeclined: r.PriceDeclined,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
	if r.Passport.Valid {
		s.Passport = &model.Passport{}
		if err := json.Unmarshal([]byte(r.Passport.String), s.Passport); err != nil {
			return nil, fmt.Errorf("decode passport of %d: %w", r.ChatID, err)
		}
	}
	if r.Vehicle.Valid {
		s.Vehicle = &model.Vehicle{}
		if err := json.Unmarshal([]byte(r.Vehicle.String), s.Vehicle); err != nil {
			return nil, fmt.Errorf("decode vehicle of %d: %w", r.ChatID, err)
		}
	}
	return s, nil
}

// jsonColumn encodes v as text; a nil pointer becomes NULL.
func jsonColumn[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
