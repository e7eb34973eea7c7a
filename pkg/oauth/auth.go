package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/flohub/flohub/internal/config"
	"github.com/flohub/flohub/internal/event_bus"
	"github.com/flohub/flohub/internal/rest"
	"github.com/flohub/flohub/pkg/user"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
	"google.golang.org/api/calendar/v3"
)

type authRedirect struct {
	RedirectUrl string `json:"redirectUrl"`
}

// Auth runs the authorization code flow of one provider and hands out HTTP
// clients authorized with the stored tokens.
type Auth struct {
	provider    Provider
	oauthConfig *oauth2.Config
	store       TokenStore
	eventBus    *event_bus.EventBus
}

func NewAuth(provider Provider, oauthConfig *oauth2.Config, store TokenStore, eventBus *event_bus.EventBus) *Auth {
	return &Auth{provider: provider, oauthConfig: oauthConfig, store: store, eventBus: eventBus}
}

func NewGoogleAuth(store TokenStore, eventBus *event_bus.EventBus, cfg config.Application) *Auth {
	return NewAuth(Google, &oauth2.Config{
		ClientID:     cfg.Google.ClientId,
		ClientSecret: cfg.Google.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.Host + "/api/integrations/google/auth/callback",
		Scopes:       []string{calendar.CalendarReadonlyScope},
	}, store, eventBus)
}

func NewMicrosoftAuth(store TokenStore, eventBus *event_bus.EventBus, cfg config.Application) *Auth {
	return NewAuth(Microsoft, &oauth2.Config{
		ClientID:     cfg.Microsoft.ClientId,
		ClientSecret: cfg.Microsoft.ClientSecret,
		Endpoint:     microsoft.AzureADEndpoint(cfg.Microsoft.Tenant),
		RedirectURL:  cfg.Host + "/api/integrations/microsoft/auth/callback",
		Scopes:       []string{"offline_access", "User.Read", "Calendars.Read"},
	}, store, eventBus)
}

func (a *Auth) Provider() Provider {
	return a.provider
}

// Client returns an HTTP client for the account label of userId. Refreshed
// tokens are stored before the client uses them. Missing or rejected
// credentials yield an error wrapping ErrReconnectRequired.
func (a *Auth) Client(ctx context.Context, userId int, label string) (*http.Client, error) {
	if label == "" {
		label = DefaultLabel
	}
	token, err := a.store.GetToken(ctx, userId, a.provider, label)
	if errors.Is(err, ErrTokenNotFound) {
		log.Debugf("no %s token for user %d (%s)", a.provider, userId, label)
		return nil, fmt.Errorf("%w: %s account %q is not connected", ErrReconnectRequired, a.provider, label)
	} else if err != nil {
		return nil, err
	}

	source := newPersistingTokenSource(ctx, a.oauthConfig, a.store, userId, a.provider, label, token)
	if _, err := source.Token(); err != nil {
		if isAuthFailure(err) {
			log.Infof("%s token of user %d (%s) cannot be refreshed: %v", a.provider, userId, label, err)
			return nil, fmt.Errorf("%w: %v", ErrReconnectRequired, err)
		}
		log.Errorf("failed to obtain %s token for user %d: %v", a.provider, userId, err)
		return nil, fmt.Errorf("unable to obtain %s token: %w", a.provider, err)
	}
	return oauth2.NewClient(ctx, source), nil
}

// isAuthFailure reports whether err means the provider rejected the grant or
// there is nothing to refresh with, as opposed to a transport failure.
func isAuthFailure(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return retrieveErr.Response == nil || retrieveErr.Response.StatusCode < 500
	}
	return strings.Contains(err.Error(), "refresh token is not set")
}

// OAuthLogin godoc
// @Summary Start the provider consent flow
// @Tags Integrations
// @Produce json
// @Param finalUrl query string false "Where to send the browser after the callback"
// @Param label query string false "Account label, defaults to \"default\""
// @Success 200 {object} authRedirect
// @Router /api/integrations/{provider}/auth/login [get]
// @Security XUserId
func (a *Auth) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		log.Error("unable to retrieve current user: ", err)
		rest.WriteError(w, http.StatusForbidden, "User not found", "")
		return
	}

	label := labelParam(r)
	state := State{
		Nonce:    uuid.New().String(),
		UserId:   userId,
		Provider: a.provider,
		Label:    label,
	}
	if err := a.store.SaveState(r.Context(), state); err != nil {
		log.Errorf("failed to store %s auth nonce for user %d: %v", a.provider, userId, err)
		rest.WriteError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to handle %s authentication", a.provider), "")
		return
	}

	finalUrl := r.URL.Query().Get("finalUrl")
	log.Tracef("Redirecting to %s auth URL with nonce: %s", a.provider, state.Nonce)
	u := a.oauthConfig.AuthCodeURL(finalUrl+"|"+state.Nonce, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	rest.WriteJSON(w, http.StatusOK, authRedirect{RedirectUrl: u})
}

// OAuthCallback godoc
// @Summary Complete the provider consent flow
// @Tags Integrations
// @Param code query string true "Authorization code"
// @Param state query string true "State sent on login"
// @Success 302
// @Router /api/integrations/{provider}/auth/callback [get]
func (a *Auth) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")
	parts := strings.SplitN(r.FormValue("state"), "|", 2)
	if len(parts) != 2 {
		rest.WriteError(w, http.StatusBadRequest, "Invalid OAuth state", "")
		return
	}
	finalUrl, nonce := parts[0], parts[1]

	state, err := a.store.ConsumeState(r.Context(), nonce)
	if err != nil || state.Provider != a.provider {
		log.Errorf("unknown %s auth nonce %s: %v", a.provider, nonce, err)
		http.Redirect(w, r, withSuccess(finalUrl, false), http.StatusFound)
		return
	}

	token, err := a.oauthConfig.Exchange(r.Context(), code)
	if err != nil {
		log.Errorf("unable to exchange %s code for token: %v", a.provider, err)
		http.Redirect(w, r, withSuccess(finalUrl, false), http.StatusFound)
		return
	}

	if err := a.store.SaveToken(r.Context(), state.UserId, a.provider, state.Label, token); err != nil {
		log.Errorf("unable to store %s token: %v", a.provider, err)
		http.Redirect(w, r, withSuccess(finalUrl, false), http.StatusFound)
		return
	}
	log.Debugf("stored %s token for user %d (%s)", a.provider, state.UserId, state.Label)

	err = a.eventBus.Publish(event_bus.NewEvent(r.Context(), event_bus.OAuthAccountConnectedType,
		event_bus.OAuthAccountConnected{UserId: state.UserId, Provider: string(a.provider), Label: state.Label}))
	if err != nil {
		log.Errorf("failed to publish %s account connected event: %v", a.provider, err)
	}
	http.Redirect(w, r, withSuccess(finalUrl, true), http.StatusFound)
}

// OAuthLogout godoc
// @Summary Forget the stored token of an account
// @Tags Integrations
// @Param label query string false "Account label, defaults to \"default\""
// @Success 204
// @Router /api/integrations/{provider}/auth/logout [delete]
// @Security XUserId
func (a *Auth) OAuthLogout(w http.ResponseWriter, r *http.Request) {
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		log.Error("unable to retrieve current user: ", err)
		rest.WriteError(w, http.StatusForbidden, "User not found", "")
		return
	}
	label := labelParam(r)
	if _, err := a.store.DeleteToken(r.Context(), userId, a.provider, label); err != nil {
		log.Errorf("failed to delete %s token for user %d: %v", a.provider, userId, err)
		rest.WriteError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to handle %s authentication", a.provider), "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func labelParam(r *http.Request) string {
	if label := strings.TrimSpace(r.URL.Query().Get("label")); label != "" {
		return label
	}
	return DefaultLabel
}

func withSuccess(finalUrl string, success bool) string {
	u, err := url.Parse(finalUrl)
	if err != nil {
		return fmt.Sprintf("%s?success=%t", finalUrl, success)
	}
	q := u.Query()
	q.Set("success", fmt.Sprintf("%t", success))
	u.RawQuery = q.Encode()
	return u.String()
}
