package broker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"StockPulse/internal/domain/models"
	domsvc "StockPulse/internal/domain/service"
)

const DefaultSessionTTL = 24 * time.Hour

type AuthConfig struct {
	Broker       string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
	SessionTTL   time.Duration
	HTTPClient   *http.Client
}

// OAuthAuthenticator runs the authorization-code flow against the broker.
type OAuthAuthenticator struct {
	name string
	cfg  *oauth2.Config
	ttl  time.Duration
	hc   *http.Client
	now  func() time.Time
}

func NewOAuthAuthenticator(c AuthConfig) *OAuthAuthenticator {
	ttl := c.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &OAuthAuthenticator{
		name: c.Broker,
		cfg: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
			Scopes:       c.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   c.AuthURL,
				TokenURL:  c.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		ttl: ttl,
		hc:  c.HTTPClient,
		now: time.Now,
	}
}

func (a *OAuthAuthenticator) Name() string { return a.name }

func (a *OAuthAuthenticator) LoginURL(state string) string {
	return a.cfg.AuthCodeURL(state)
}

func (a *OAuthAuthenticator) Exchange(ctx context.Context, code string) (*models.Session, error) {
	tok, err := a.cfg.Exchange(a.withClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchange auth code: %w", err)
	}
	return a.session(tok, ""), nil
}

func (a *OAuthAuthenticator) Refresh(ctx context.Context, s *models.Session) (*models.Session, error) {
	if s == nil || s.RefreshToken == "" {
		return nil, fmt.Errorf("refresh: missing refresh token")
	}
	// an already-expired token forces the source to hit the token endpoint
	src := a.cfg.TokenSource(a.withClient(ctx), &oauth2.Token{
		RefreshToken: s.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	next := a.session(tok, s.ID)
	if next.RefreshToken == "" {
		next.RefreshToken = s.RefreshToken
	}
	return next, nil
}

func (a *OAuthAuthenticator) withClient(ctx context.Context) context.Context {
	if a.hc == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, a.hc)
}

func (a *OAuthAuthenticator) session(tok *oauth2.Token, id string) *models.Session {
	if id == "" {
		id = uuid.NewString()
	}
	issued := a.now()
	return &models.Session{
		ID:           id,
		Broker:       a.name,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IssuedAt:     issued,
		ExpiresAt:    a.expiry(tok, issued),
	}
}

// expiry prefers expires_in, then the JWT exp claim, then the configured TTL.
func (a *OAuthAuthenticator) expiry(tok *oauth2.Token, issued time.Time) time.Time {
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	if exp, ok := TokenExpiry(tok.AccessToken); ok {
		return exp
	}
	return issued.Add(a.ttl)
}

// TokenExpiry reads the exp claim of a JWT access token without verifying its
// signature.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

var _ domsvc.Authenticator = (*OAuthAuthenticator)(nil)
