package model

import (
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned when no session exists for a chat.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned by Add when the chat already has a session.
	ErrSessionExists = errors.New("session already exists")
)

// Session is the per-chat conversation record.
type Session struct {
	ChatID      int64     `json:"chat_id"`
	State       State     `json:"state"`
	CountryCode string    `json:"country_code,omitempty"`
	Passport    *Passport `json:"passport,omitempty"`
	Vehicle     *Vehicle  `json:"vehicle,omitempty"`
	// PriceDeclined is set once the fixed offer was declined; a second decline is not offered.
	PriceDeclined bool      `json:"price_declined,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewSession returns a fresh session waiting for a passport photo.
func NewSession(chatID int64, now time.Time) *Session {
	now = now.UTC()
	return &Session{
		ChatID:    chatID,
		State:     StateAwaitingPassport,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Passport != nil {
		p := *s.Passport
		out.Passport = &p
	}
	if s.Vehicle != nil {
		v := *s.Vehicle
		out.Vehicle = &v
	}
	return &out
}

// VehicleComplete reports whether the session holds all vehicle fields.
func (s *Session) VehicleComplete() bool {
	return s.Vehicle != nil && s.Vehicle.Complete()
}
