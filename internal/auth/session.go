package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"ms-ticket-issuance/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const (
	SessionCookieName    = "ticket_session"
	LoginStateCookieName = "ticket_login"

	DefaultSessionTTL = 24 * time.Hour
	loginStateTTL     = 10 * time.Minute

	tokenIssuer        = "ticket-service"
	sessionAudience    = "session"
	loginStateAudience = "login"
)

var ErrNoSession = errors.New("no session")

type sessionClaims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// LoginState is carried between /login and /callback.
type LoginState struct {
	State    string `json:"state"`
	Nonce    string `json:"nonce"`
	ReturnTo string `json:"return_to"`
}

type loginStateClaims struct {
	LoginState
	jwt.RegisteredClaims
}

// SessionManager stores identities in HMAC signed cookies.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewSessionManager(secret string, ttl time.Duration, secure bool) (*SessionManager, error) {
	if len(secret) < 16 {
		return nil, errors.New("session secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		secret: []byte(secret),
		ttl:    ttl,
		secure: secure,
		now:    time.Now,
	}, nil
}

// Issue writes a session cookie for an authenticated viewer.
func (m *SessionManager) Issue(w http.ResponseWriter, viewer models.Viewer) error {
	now := m.now()
	claims := sessionClaims{
		Name:  viewer.DisplayName,
		Email: viewer.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   viewer.Subject,
			Audience:  jwt.ClaimStrings{sessionAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	signed, err := m.sign(claims)
	if err != nil {
		return fmt.Errorf("sign session: %w", err)
	}
	m.setCookie(w, SessionCookieName, signed, m.ttl)
	return nil
}

// Read returns the viewer stored in the request's session cookie.
func (m *SessionManager) Read(r *http.Request) (models.Viewer, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return models.Viewer{}, ErrNoSession
	}

	var claims sessionClaims
	if err := m.parse(cookie.Value, sessionAudience, &claims); err != nil {
		return models.Viewer{}, fmt.Errorf("invalid session: %w", err)
	}
	if claims.Subject == "" {
		return models.Viewer{}, errors.New("invalid session: missing subject")
	}

	return models.Viewer{
		Authenticated: true,
		Subject:       claims.Subject,
		DisplayName:   claims.Name,
		Email:         claims.Email,
	}, nil
}

func (m *SessionManager) Clear(w http.ResponseWriter) {
	m.setCookie(w, SessionCookieName, "", -1)
}

func (m *SessionManager) IssueLoginState(w http.ResponseWriter, state LoginState) error {
	now := m.now()
	claims := loginStateClaims{
		LoginState: state,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{loginStateAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(loginStateTTL)),
		},
	}

	signed, err := m.sign(claims)
	if err != nil {
		return fmt.Errorf("sign login state: %w", err)
	}
	m.setCookie(w, LoginStateCookieName, signed, loginStateTTL)
	return nil
}

func (m *SessionManager) ReadLoginState(r *http.Request) (LoginState, error) {
	cookie, err := r.Cookie(LoginStateCookieName)
	if err != nil {
		return LoginState{}, errors.New("login state cookie missing")
	}

	var claims loginStateClaims
	if err := m.parse(cookie.Value, loginStateAudience, &claims); err != nil {
		return LoginState{}, fmt.Errorf("invalid login state: %w", err)
	}
	return claims.LoginState, nil
}

func (m *SessionManager) ClearLoginState(w http.ResponseWriter) {
	m.setCookie(w, LoginStateCookieName, "", -1)
}

func (m *SessionManager) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *SessionManager) parse(raw, audience string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	return err
}

func (m *SessionManager) setCookie(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge < 0 {
		cookie.MaxAge = -1
	} else {
		cookie.MaxAge = int(maxAge.Seconds())
	}
	http.SetCookie(w, cookie)
}
