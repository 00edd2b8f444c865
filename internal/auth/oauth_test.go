package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// realmRequest is what the fake realm saw for one token request.
type realmRequest struct {
	form      url.Values
	basicUser string
	basicPass string
}

// fakeRealm serves the default realm's token endpoint.
type fakeRealm struct {
	server   *httptest.Server
	calls    atomic.Int32
	mu       sync.Mutex
	requests []realmRequest
	status   int
	response interface{}
}

func newFakeRealm(t *testing.T, response interface{}) *fakeRealm {
	t.Helper()

	realm := &fakeRealm{status: http.StatusOK, response: response}

	mux := http.NewServeMux()
	mux.HandleFunc(RealmTokenPath, func(w http.ResponseWriter, r *http.Request) {
		realm.calls.Add(1)

		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/x-www-form-urlencoded" {
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		_ = r.ParseForm()
		user, pass, _ := r.BasicAuth()

		realm.mu.Lock()
		realm.requests = append(realm.requests, realmRequest{form: r.PostForm, basicUser: user, basicPass: pass})
		status, response := realm.status, realm.response
		realm.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(response)
	})

	realm.server = httptest.NewServer(mux)
	t.Cleanup(realm.server.Close)

	return realm
}

func (r *fakeRealm) tokenURL() string {
	return RealmTokenURL(r.server.URL)
}

func (r *fakeRealm) last() realmRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.requests[len(r.requests)-1]
}

func issued(access, refresh string) Token {
	return Token{AccessToken: access, RefreshToken: refresh, ExpiresIn: 300, TokenType: "Bearer"}
}

func TestRealmTokenURL(t *testing.T) {
	t.Parallel()

	want := "https://acme.catalog.example.com/auth/realms/default/protocol/openid-connect/token"

	assert.Equal(t, want, RealmTokenURL("https://acme.catalog.example.com"))
	assert.Equal(t, want, RealmTokenURL("https://acme.catalog.example.com/"))

	manager := NewRealmTokenManager("https://acme.catalog.example.com/", "svc", "secret")
	assert.Equal(t, want, manager.config.TokenURL)
}

func TestOAuth2TokenManager_PasswordGrantUsesPublicClient(t *testing.T) {
	t.Parallel()

	realm := newFakeRealm(t, issued("user-access", "user-refresh"))

	manager := NewOAuth2TokenManager(&OAuth2Config{
		TokenURL: realm.tokenURL(),
		Username: "steward@acme.com",
		Password: "s3cret",
	})

	token, err := manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-access", token)

	request := realm.last()
	assert.Equal(t, "password", request.form.Get("grant_type"))
	assert.Equal(t, "steward@acme.com", request.form.Get("username"))
	assert.Equal(t, "s3cret", request.form.Get("password"))
	assert.Equal(t, PublicClientID, request.form.Get("client_id"))
	assert.Empty(t, request.basicUser)

	current := manager.Token()
	require.NotNil(t, current)
	assert.Equal(t, "user-refresh", current.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), current.ExpiresAt, 30*time.Second)
}

func TestOAuth2TokenManager_ClientCredentialsUseBasicAuth(t *testing.T) {
	t.Parallel()

	realm := newFakeRealm(t, issued("service-access", ""))

	manager := NewOAuth2TokenManager(&OAuth2Config{
		TokenURL:     realm.tokenURL(),
		ClientID:     "catalog-sync",
		ClientSecret: "client-secret",
		Scopes:       []string{"catalog:read", "catalog:search"},
	})

	token, err := manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "service-access", token)

	request := realm.last()
	assert.Equal(t, "client_credentials", request.form.Get("grant_type"))
	assert.Equal(t, "catalog:read catalog:search", request.form.Get("scope"))
	assert.False(t, request.form.Has("client_id"))
	assert.Equal(t, "catalog-sync", request.basicUser)
	assert.Equal(t, "client-secret", request.basicPass)
}

func TestOAuth2TokenManager_RefreshGrantWinsAndRotates(t *testing.T) {
	t.Parallel()

	realm := newFakeRealm(t, issued("rotated-access", "rotated-refresh"))

	manager := NewOAuth2TokenManager(&OAuth2Config{
		TokenURL:     realm.tokenURL(),
		RefreshToken: "stored-refresh",
		Username:     "steward@acme.com",
		Password:     "s3cret",
	})
	manager.SetToken("expired-access", time.Now().Add(-time.Minute))

	token, err := manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rotated-access", token)

	request := realm.last()
	assert.Equal(t, "refresh_token", request.form.Get("grant_type"))
	assert.Equal(t, "stored-refresh", request.form.Get("refresh_token"))

	// The next refresh uses the rotated refresh token.
	require.NoError(t, manager.RefreshToken(context.Background()))
	assert.Equal(t, "rotated-refresh", realm.last().form.Get("refresh_token"))
}

func TestOAuth2TokenManager_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	t.Parallel()

	realm := newFakeRealm(t, issued("fresh-access", ""))

	manager := NewOAuth2TokenManager(&OAuth2Config{
		TokenURL:     realm.tokenURL(),
		RefreshToken: "long-lived",
	})

	require.NoError(t, manager.RefreshToken(context.Background()))

	current := manager.Token()
	require.NotNil(t, current)
	assert.Equal(t, "fresh-access", current.AccessToken)
	assert.Equal(t, "long-lived", current.RefreshToken)
	assert.Equal(t, "Bearer", current.TokenType)
}

func TestOAuth2TokenManager_ValidTokenSkipsRealm(t *testing.T) {
	t.Parallel()

	realm := newFakeRealm(t, issued("unused", ""))

	manager := NewOAuth2TokenManager(&OAuth2Config{
		TokenURL:    realm.tokenURL(),
		AccessToken: "preset",
	})

	token, err := manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "preset", token)
	assert.Zero(t, realm.calls.Load())
}

func TestOAuth2TokenManager_ConcurrentCallersShareOneRequest(t *testing.T) {
	t.Parallel()

	realm := newFakeRealm(t, issued("shared", ""))

	manager := NewOAuth2TokenManager(&OAuth2Config{
		TokenURL: realm.tokenURL(),
		Username: "steward@acme.com",
		Password: "s3cret",
	})

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			token, err := manager.GetToken(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "shared", token)
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), realm.calls.Load())
}

func TestOAuth2TokenManager_Failures(t *testing.T) {
	t.Parallel()

	t.Run("no credentials", func(t *testing.T) {
		t.Parallel()

		_, err := NewOAuth2TokenManager(nil).GetToken(context.Background())
		require.ErrorIs(t, err, ErrNoValidCredentials)
	})

	t.Run("realm rejects the grant", func(t *testing.T) {
		t.Parallel()

		realm := newFakeRealm(t, map[string]string{
			"error":             "invalid_grant",
			"error_description": "Token is not active",
		})
		realm.mu.Lock()
		realm.status = http.StatusBadRequest
		realm.mu.Unlock()

		manager := NewOAuth2TokenManager(&OAuth2Config{TokenURL: realm.tokenURL(), RefreshToken: "revoked"})

		err := manager.RefreshToken(context.Background())
		require.ErrorIs(t, err, ErrTokenRequestFailed)
		assert.Contains(t, err.Error(), "invalid_grant: Token is not active")
		assert.Nil(t, manager.Token())
	})

	t.Run("empty access token", func(t *testing.T) {
		t.Parallel()

		realm := newFakeRealm(t, map[string]string{"token_type": "Bearer"})

		manager := NewOAuth2TokenManager(&OAuth2Config{TokenURL: realm.tokenURL(), RefreshToken: "r"})

		_, err := manager.GetToken(context.Background())
		require.ErrorIs(t, err, ErrEmptyAccessToken)
	})
}
