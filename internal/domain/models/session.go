package models

import "time"

// Session is an authenticated broker session. Tokens never leave the backend.
type Session struct {
	ID           string    `json:"id"`
	Broker       string    `json:"broker"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Usable reports whether the session may still be used at now.
func (s *Session) Usable(now time.Time) bool {
	return s != nil && s.AccessToken != "" && now.Before(s.ExpiresAt)
}

// Remaining is the time left before expiry, never negative.
func (s *Session) Remaining(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Status projects the session without its tokens.
func (s *Session) Status(now time.Time) SessionStatus {
	if !s.Usable(now) {
		return SessionStatus{}
	}
	return SessionStatus{
		Authenticated: true,
		Broker:        s.Broker,
		IssuedAt:      s.IssuedAt,
		ExpiresAt:     s.ExpiresAt,
		ExpiresIn:     int64(s.Remaining(now) / time.Second),
	}
}

type SessionStatus struct {
	Authenticated bool      `json:"authenticated"`
	Broker        string    `json:"broker,omitempty"`
	IssuedAt      time.Time `json:"issued_at,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
	ExpiresIn     int64     `json:"expires_in_seconds"`
}
