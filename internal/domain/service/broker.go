package service

import (
	"context"

	"StockPulse/internal/domain/models"
)

// Authenticator performs the broker OAuth authorization-code flow.
type Authenticator interface {
	Name() string
	LoginURL(state string) string
	Exchange(ctx context.Context, authCode string) (*models.Session, error)
	Refresh(ctx context.Context, s *models.Session) (*models.Session, error)
}
