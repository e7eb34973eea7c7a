package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/flohub/flohub/internal/event_bus"
	"github.com/flohub/flohub/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type tokenServer struct {
	*httptest.Server
	status   int
	requests int
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{status: http.StatusOK}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.requests++
		w.Header().Set("Content-Type", "application/json")
		if ts.status != http.StatusOK {
			w.WriteHeader(ts.status)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"fresh-access","token_type":"Bearer","expires_in":3600,"refresh_token":"fresh-refresh"}`))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func setupAuth(t *testing.T) (*Auth, *TokenStoreStub, *tokenServer, *event_bus.EventBus) {
	t.Helper()
	ts := newTokenServer(t)
	store := NewTokenStoreStub()
	bus := event_bus.NewEventBus()
	auth := NewAuth(Microsoft, &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:   ts.URL + "/authorize",
			TokenURL:  ts.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: "http://localhost/api/integrations/microsoft/auth/callback",
	}, store, bus)
	return auth, store, ts, bus
}

func TestAuth_Client(t *testing.T) {
	ctx := context.Background()

	t.Run("should require reconnect when no token is stored", func(t *testing.T) {
		auth, _, _, _ := setupAuth(t)

		_, err := auth.Client(ctx, 1, "work")

		assert.ErrorIs(t, err, ErrReconnectRequired)
	})

	t.Run("should use valid token without refreshing", func(t *testing.T) {
		// given
		auth, store, ts, _ := setupAuth(t)
		require.NoError(t, store.SaveToken(ctx, 1, Microsoft, DefaultLabel, &oauth2.Token{
			AccessToken: "valid", RefreshToken: "r", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour),
		}))
		var authorization string
		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization = r.Header.Get("Authorization")
		}))
		defer api.Close()

		// when
		client, err := auth.Client(ctx, 1, "")
		require.NoError(t, err)
		_, err = client.Get(api.URL)

		// then
		require.NoError(t, err)
		assert.Equal(t, "Bearer valid", authorization)
		assert.Equal(t, 0, ts.requests)
		assert.Equal(t, 1, store.Saves)
	})

	t.Run("should persist refreshed token before use", func(t *testing.T) {
		// given
		auth, store, ts, _ := setupAuth(t)
		require.NoError(t, store.SaveToken(ctx, 1, Microsoft, "work", &oauth2.Token{
			AccessToken: "stale", RefreshToken: "r", TokenType: "Bearer", Expiry: time.Now().Add(-time.Hour),
		}))

		// when
		_, err := auth.Client(ctx, 1, "work")

		// then
		require.NoError(t, err)
		assert.Equal(t, 1, ts.requests)
		stored, err := store.GetToken(ctx, 1, Microsoft, "work")
		require.NoError(t, err)
		assert.Equal(t, "fresh-access", stored.AccessToken)
		assert.Equal(t, "fresh-refresh", stored.RefreshToken)
		assert.True(t, stored.Expiry.After(time.Now()))
	})

	t.Run("should require reconnect when provider rejects refresh", func(t *testing.T) {
		// given
		auth, store, ts, _ := setupAuth(t)
		ts.status = http.StatusBadRequest
		require.NoError(t, store.SaveToken(ctx, 1, Microsoft, DefaultLabel, &oauth2.Token{
			AccessToken: "stale", RefreshToken: "revoked", Expiry: time.Now().Add(-time.Hour),
		}))

		// when
		_, err := auth.Client(ctx, 1, DefaultLabel)

		// then
		assert.ErrorIs(t, err, ErrReconnectRequired)
	})

	t.Run("should require reconnect when expired token has no refresh token", func(t *testing.T) {
		auth, store, _, _ := setupAuth(t)
		require.NoError(t, store.SaveToken(ctx, 1, Microsoft, DefaultLabel, &oauth2.Token{
			AccessToken: "stale", Expiry: time.Now().Add(-time.Hour),
		}))

		_, err := auth.Client(ctx, 1, DefaultLabel)

		assert.ErrorIs(t, err, ErrReconnectRequired)
	})
}

func TestAuth_LoginCallbackFlow(t *testing.T) {
	t.Run("should store token under label and publish account connected", func(t *testing.T) {
		// given
		auth, store, _, bus := setupAuth(t)
		var connected []event_bus.OAuthAccountConnected
		event_bus.SubscribeTyped(bus, event_bus.OAuthAccountConnectedType, func(e event_bus.EventT[event_bus.OAuthAccountConnected]) error {
			connected = append(connected, e.Data)
			return nil
		})
		loginReq := httptest.NewRequest(http.MethodGet, "/login?finalUrl=http://app/settings&label=work", nil)
		loginReq = loginReq.WithContext(user.WithUser(loginReq.Context(), user.User{Id: 5}))
		loginRec := httptest.NewRecorder()

		// when
		auth.OAuthLogin(loginRec, loginReq)

		// then
		require.Equal(t, http.StatusOK, loginRec.Code)
		var redirect authRedirect
		require.NoError(t, json.Unmarshal(loginRec.Body.Bytes(), &redirect))
		redirectUrl, err := url.Parse(redirect.RedirectUrl)
		require.NoError(t, err)
		state := redirectUrl.Query().Get("state")
		assert.True(t, strings.HasPrefix(state, "http://app/settings|"))
		assert.Equal(t, "offline", redirectUrl.Query().Get("access_type"))

		// when
		callbackRec := httptest.NewRecorder()
		auth.OAuthCallback(callbackRec, httptest.NewRequest(http.MethodGet,
			"/callback?code=abc&state="+url.QueryEscape(state), nil))

		// then
		assert.Equal(t, http.StatusFound, callbackRec.Code)
		assert.Equal(t, "http://app/settings?success=true", callbackRec.Header().Get("Location"))
		token, err := store.GetToken(context.Background(), 5, Microsoft, "work")
		require.NoError(t, err)
		assert.Equal(t, "fresh-access", token.AccessToken)
		assert.Equal(t, []event_bus.OAuthAccountConnected{{UserId: 5, Provider: "microsoft", Label: "work"}}, connected)
	})

	t.Run("should redirect with failure for unknown nonce", func(t *testing.T) {
		auth, _, ts, _ := setupAuth(t)
		rec := httptest.NewRecorder()

		auth.OAuthCallback(rec, httptest.NewRequest(http.MethodGet, "/callback?code=abc&state="+url.QueryEscape("http://app|nope"), nil))

		assert.Equal(t, "http://app?success=false", rec.Header().Get("Location"))
		assert.Equal(t, 0, ts.requests)
	})

	t.Run("should reject malformed state", func(t *testing.T) {
		auth, _, _, _ := setupAuth(t)
		rec := httptest.NewRecorder()

		auth.OAuthCallback(rec, httptest.NewRequest(http.MethodGet, "/callback?code=abc&state=garbage", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuth_OAuthLogout(t *testing.T) {
	// given
	auth, store, _, _ := setupAuth(t)
	require.NoError(t, store.SaveToken(context.Background(), 5, Microsoft, DefaultLabel, &oauth2.Token{AccessToken: "a"}))
	req := httptest.NewRequest(http.MethodDelete, "/logout", nil)
	req = req.WithContext(user.WithUser(req.Context(), user.User{Id: 5}))
	rec := httptest.NewRecorder()

	// when
	auth.OAuthLogout(rec, req)

	// then
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err := store.GetToken(context.Background(), 5, Microsoft, DefaultLabel)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}
