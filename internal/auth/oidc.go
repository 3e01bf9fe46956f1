package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"ms-ticket-issuance/internal/logger"
	"ms-ticket-issuance/internal/models"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	BaseURL      string
}

type idClaims struct {
	Subject  string `json:"sub"`
	Name     string `json:"name"`
	Nickname string `json:"nickname"`
	Email    string `json:"email"`
}

func (c idClaims) viewer() models.Viewer {
	name := c.Name
	if name == "" {
		name = c.Nickname
	}
	return models.Viewer{
		Authenticated: true,
		Subject:       c.Subject,
		DisplayName:   name,
		Email:         c.Email,
	}
}

// Authenticator runs the OpenID Connect authorization code flow against
// the configured identity provider.
type Authenticator struct {
	provider  *oidc.Provider
	verifier  *oidc.IDTokenVerifier
	oauth2    oauth2.Config
	sessions  *SessionManager
	logoutURL string
	log       *logger.Logger
}

func NewAuthenticator(ctx context.Context, cfg Config, sessions *SessionManager, log *logger.Logger) (*Authenticator, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	logoutURL, err := buildLogoutURL(provider, cfg.IssuerURL, cfg.ClientID, baseURL)
	if err != nil {
		return nil, err
	}

	return &Authenticator{
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  baseURL + "/callback",
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		sessions:  sessions,
		logoutURL: logoutURL,
		log:       log,
	}, nil
}

// buildLogoutURL prefers the provider's advertised end_session_endpoint and
// falls back to the Auth0 /v2/logout convention.
func buildLogoutURL(provider *oidc.Provider, issuerURL, clientID, baseURL string) (string, error) {
	var discovery struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&discovery); err != nil {
		return "", fmt.Errorf("read provider metadata: %w", err)
	}

	if discovery.EndSessionEndpoint != "" {
		u, err := url.Parse(discovery.EndSessionEndpoint)
		if err != nil {
			return "", fmt.Errorf("parse end_session_endpoint: %w", err)
		}
		q := u.Query()
		q.Set("client_id", clientID)
		q.Set("post_logout_redirect_uri", baseURL+"/")
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	u, err := url.Parse(strings.TrimRight(issuerURL, "/") + "/v2/logout")
	if err != nil {
		return "", fmt.Errorf("parse issuer url: %w", err)
	}
	q := u.Query()
	q.Set("client_id", clientID)
	q.Set("returnTo", baseURL+"/")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (a *Authenticator) RegisterRoutes(r chi.Router) {
	r.Get("/login", a.Login)
	r.Get("/callback", a.Callback)
	r.Get("/logout", a.Logout)
}

// Login starts the authorization code flow.
func (a *Authenticator) Login(w http.ResponseWriter, r *http.Request) {
	state := LoginState{
		State:    uuid.NewString(),
		Nonce:    uuid.NewString(),
		ReturnTo: SafeReturnTo(r.URL.Query().Get("returnTo")),
	}
	if err := a.sessions.IssueLoginState(w, state); err != nil {
		a.log.Error("AUTH", fmt.Sprintf("failed to store login state: %v", err))
		http.Error(w, "Login is temporarily unavailable.", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, a.oauth2.AuthCodeURL(state.State, oidc.Nonce(state.Nonce)), http.StatusFound)
}

// Callback completes the flow, verifies the ID token and starts a session.
func (a *Authenticator) Callback(w http.ResponseWriter, r *http.Request) {
	state, err := a.sessions.ReadLoginState(r)
	a.sessions.ClearLoginState(w)
	if err != nil {
		a.log.LogSecurity("CALLBACK", err.Error())
		http.Error(w, "Your login attempt expired. Please try again.", http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	if q.Get("state") != state.State {
		a.log.LogSecurity("CALLBACK", "state mismatch")
		http.Error(w, "Invalid login state.", http.StatusBadRequest)
		return
	}
	if providerErr := q.Get("error"); providerErr != "" {
		a.log.LogSecurity("CALLBACK", fmt.Sprintf("provider returned %s: %s", providerErr, q.Get("error_description")))
		http.Error(w, "Login was not completed.", http.StatusUnauthorized)
		return
	}

	token, err := a.oauth2.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		a.log.Error("AUTH", fmt.Sprintf("code exchange failed: %v", err))
		http.Error(w, "Login failed.", http.StatusBadGateway)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		a.log.Error("AUTH", "token response did not include an id_token")
		http.Error(w, "Login failed.", http.StatusBadGateway)
		return
	}

	viewer, nonce, err := a.verify(r.Context(), rawIDToken)
	if err != nil {
		a.log.LogSecurity("CALLBACK", fmt.Sprintf("id token rejected: %v", err))
		http.Error(w, "Login failed.", http.StatusUnauthorized)
		return
	}
	if nonce != state.Nonce {
		a.log.LogSecurity("CALLBACK", "nonce mismatch")
		http.Error(w, "Login failed.", http.StatusUnauthorized)
		return
	}

	if err := a.sessions.Issue(w, viewer); err != nil {
		a.log.Error("AUTH", fmt.Sprintf("failed to issue session: %v", err))
		http.Error(w, "Login failed.", http.StatusInternalServerError)
		return
	}

	a.log.Info("AUTH", fmt.Sprintf("user %s logged in", viewer.Subject))
	http.Redirect(w, r, SafeReturnTo(state.ReturnTo), http.StatusFound)
}

// Logout ends the local session and the provider session.
func (a *Authenticator) Logout(w http.ResponseWriter, r *http.Request) {
	if viewer := ViewerFrom(r.Context()); viewer.Authenticated {
		a.log.Info("AUTH", fmt.Sprintf("user %s logged out", viewer.Subject))
	}
	a.sessions.Clear(w)
	http.Redirect(w, r, a.logoutURL, http.StatusFound)
}

// VerifyBearer accepts an ID token issued to this client as a bearer token.
func (a *Authenticator) VerifyBearer(ctx context.Context, rawToken string) (models.Viewer, error) {
	viewer, _, err := a.verify(ctx, rawToken)
	return viewer, err
}

func (a *Authenticator) verify(ctx context.Context, rawToken string) (models.Viewer, string, error) {
	idToken, err := a.verifier.Verify(ctx, rawToken)
	if err != nil {
		return models.Viewer{}, "", err
	}

	var claims idClaims
	if err := idToken.Claims(&claims); err != nil {
		return models.Viewer{}, "", fmt.Errorf("failed to parse claims: %w", err)
	}
	if claims.Subject == "" {
		return models.Viewer{}, "", errors.New("token has no subject")
	}
	return claims.viewer(), idToken.Nonce, nil
}
