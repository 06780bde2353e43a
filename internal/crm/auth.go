package crm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/calin/convohist/internal/logger"
	"github.com/go-resty/resty/v2"
)

// Token holds one location's OAuth credentials.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TokenStore keeps per-location OAuth tokens in memory and exchanges or
// refreshes them against the CRM's OAuth endpoint. Token persistence is
// deliberately out of scope; a restart requires re-authorization.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*Token

	http         *resty.Client
	tokenURL     string
	clientID     string
	clientSecret string
	logger       *logger.Logger
}

// TokenStoreConfig holds OAuth client settings.
type TokenStoreConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
}

// NewTokenStore creates an empty in-memory token store.
func NewTokenStore(cfg *TokenStoreConfig, log *logger.Logger) *TokenStore {
	client := resty.New()
	client.SetTimeout(15 * time.Second)

	return &TokenStore{
		tokens:       make(map[string]*Token),
		http:         client,
		tokenURL:     cfg.BaseURL + "/oauth/token",
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		logger:       log,
	}
}

// Put stores a token for a location, replacing any existing one.
func (s *TokenStore) Put(locationID string, t *Token) {
	s.mu.Lock()
	s.tokens[locationID] = t
	s.mu.Unlock()
}

// AccessToken returns the current access token for a location.
func (s *TokenStore) AccessToken(ctx context.Context, locationID string) (string, error) {
	s.mu.RLock()
	t, ok := s.tokens[locationID]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no credentials stored for location %s", locationID)
	}
	return t.AccessToken, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	LocationID   string `json:"locationId"`
	Error        string `json:"error,omitempty"`
}

// ExchangeCode exchanges an OAuth authorization code for tokens and stores
// them under the location the upstream reports.
// Returns the location ID the tokens belong to.
func (s *TokenStore) ExchangeCode(ctx context.Context, code string) (string, error) {
	tok, err := s.requestToken(ctx, map[string]string{
		"grant_type": "authorization_code",
		"code":       code,
	})
	if err != nil {
		return "", fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	s.Put(tok.LocationID, &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	})

	s.logger.WithField(logger.FieldLocationID, tok.LocationID).Info("Stored credentials for location")
	return tok.LocationID, nil
}

// Refresh exchanges the stored refresh token for a new token pair and
// returns the new access token.
func (s *TokenStore) Refresh(ctx context.Context, locationID string) (string, error) {
	s.mu.RLock()
	t, ok := s.tokens[locationID]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no credentials stored for location %s", locationID)
	}

	tok, err := s.requestToken(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": t.RefreshToken,
	})
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}

	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		// Some token endpoints omit the refresh token on refresh grants
		refreshToken = t.RefreshToken
	}

	s.Put(locationID, &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	})

	return tok.AccessToken, nil
}

func (s *TokenStore) requestToken(ctx context.Context, form map[string]string) (*tokenResponse, error) {
	form["client_id"] = s.clientID
	form["client_secret"] = s.clientSecret

	var tok tokenResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&tok).
		Post(s.tokenURL)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token: %s", string(resp.Body()))
	}

	return &tok, nil
}
