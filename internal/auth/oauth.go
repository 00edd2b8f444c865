package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/fivetwenty-io/catalog-client/internal/constants"
)

// Static errors for err113 compliance.
var (
	ErrNoValidCredentials = errors.New("no valid credentials available")
	ErrTokenRequestFailed = errors.New("token request failed")
	ErrEmptyAccessToken   = errors.New("token endpoint returned an empty access token")
)

// RealmTokenPath is the token endpoint of the default identity realm, relative
// to the tenant's API endpoint.
const RealmTokenPath = "/auth/realms/default/protocol/openid-connect/token"

// PublicClientID identifies interactive logins that carry no client secret.
const PublicClientID = "catalog-cli"

// OAuth2Config configures an OAuth2TokenManager. Grants are tried in order:
// refresh token, client credentials, password.
type OAuth2Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	AccessToken  string
	RefreshToken string
	Scopes       []string
	HTTPClient   *http.Client
}

// OAuth2TokenManager hands out access tokens and renews them before they expire.
type OAuth2TokenManager struct {
	config     *OAuth2Config
	store      *TokenStore
	httpClient *retryablehttp.Client
	mu         sync.Mutex
}

// NewOAuth2TokenManager creates a token manager. A preset AccessToken is used
// until the first refresh.
func NewOAuth2TokenManager(config *OAuth2Config) *OAuth2TokenManager {
	if config == nil {
		config = &OAuth2Config{}
	}

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = constants.LowRetryMax
	httpClient.RetryWaitMin = constants.DefaultRetryWaitMin
	httpClient.RetryWaitMax = constants.DefaultRetryWaitMax
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	httpClient.Logger = nil

	if config.HTTPClient != nil {
		httpClient.HTTPClient = config.HTTPClient
	} else {
		httpClient.HTTPClient.Timeout = constants.ShortHTTPTimeout
	}

	manager := &OAuth2TokenManager{
		config:     config,
		store:      NewTokenStore(),
		httpClient: httpClient,
	}

	if config.AccessToken != "" {
		manager.store.Set(&Token{
			AccessToken:  config.AccessToken,
			RefreshToken: config.RefreshToken,
			TokenType:    "bearer",
		})
	}

	return manager
}

// NewRealmTokenManager creates a client_credentials manager against the
// tenant's default identity realm.
func NewRealmTokenManager(apiEndpoint, clientID, clientSecret string) *OAuth2TokenManager {
	return NewOAuth2TokenManager(&OAuth2Config{
		TokenURL:     RealmTokenURL(apiEndpoint),
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
}

// RealmTokenURL returns the token endpoint of the default realm of apiEndpoint.
func RealmTokenURL(apiEndpoint string) string {
	return strings.TrimSuffix(apiEndpoint, "/") + RealmTokenPath
}

// GetToken returns a valid access token, fetching a new one when needed.
func (m *OAuth2TokenManager) GetToken(ctx context.Context) (string, error) {
	token := m.store.Get()
	if token.Valid() {
		return token.AccessToken, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have refreshed while we waited.
	token = m.store.Get()
	if token.Valid() {
		return token.AccessToken, nil
	}

	err := m.refresh(ctx, token)
	if err != nil {
		return "", err
	}

	return m.store.Get().AccessToken, nil
}

// RefreshToken fetches a new token even if the current one is still valid.
func (m *OAuth2TokenManager) RefreshToken(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.refresh(ctx, m.store.Get())
}

// SetToken replaces the current token.
func (m *OAuth2TokenManager) SetToken(token string, expiresAt time.Time) {
	refreshToken := m.config.RefreshToken
	if current := m.store.Get(); current != nil && current.RefreshToken != "" {
		refreshToken = current.RefreshToken
	}

	m.store.Set(&Token{
		AccessToken:  token,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresAt:    expiresAt,
	})
}

// Token returns a copy of the current token, or nil.
func (m *OAuth2TokenManager) Token() *Token {
	token := m.store.Get()
	if token == nil {
		return nil
	}

	clone := *token

	return &clone
}

func (m *OAuth2TokenManager) refresh(ctx context.Context, current *Token) error {
	refreshToken := m.config.RefreshToken
	if current != nil && current.RefreshToken != "" {
		refreshToken = current.RefreshToken
	}

	var (
		token *Token
		err   error
	)

	switch {
	case refreshToken != "" && m.config.TokenURL != "":
		token, err = m.requestToken(ctx, url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {refreshToken},
		})
	case m.config.ClientID != "" && m.config.ClientSecret != "" && m.config.Username == "":
		form := url.Values{"grant_type": {"client_credentials"}}
		if len(m.config.Scopes) > 0 {
			form.Set("scope", strings.Join(m.config.Scopes, " "))
		}

		token, err = m.requestToken(ctx, form)
	case m.config.Username != "" && m.config.Password != "":
		token, err = m.requestToken(ctx, url.Values{
			"grant_type": {"password"},
			"username":   {m.config.Username},
			"password":   {m.config.Password},
		})
	default:
		return ErrNoValidCredentials
	}

	if err != nil {
		return err
	}

	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}

	m.store.Set(token)

	return nil
}

func (m *OAuth2TokenManager) requestToken(ctx context.Context, form url.Values) (*Token, error) {
	if m.config.TokenURL == "" {
		return nil, ErrNoValidCredentials
	}

	if m.config.ClientID == "" {
		form.Set("client_id", PublicClientID)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, m.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	if m.config.ClientID != "" {
		req.SetBasicAuth(m.config.ClientID, m.config.ClientSecret)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil && resp == nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenRequestFailed, err)
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, tokenError(resp.StatusCode, body)
	}

	var token Token

	err = json.Unmarshal(body, &token)
	if err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}

	if token.AccessToken == "" {
		return nil, ErrEmptyAccessToken
	}

	if token.TokenType == "" {
		token.TokenType = "bearer"
	}

	if token.ExpiresIn > 0 {
		token.ExpiresAt = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	}

	return &token, nil
}

func tokenError(status int, body []byte) error {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}

	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("%w: status %d: %s: %s", ErrTokenRequestFailed, status, payload.Error, payload.ErrorDescription)
	}

	return fmt.Errorf("%w: status %d: %s", ErrTokenRequestFailed, status, strings.TrimSpace(string(body)))
}
