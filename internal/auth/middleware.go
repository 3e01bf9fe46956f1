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
	"ms-ticket-issuance/internal/utils"
)

type contextKey string

const viewerKey contextKey = "viewer"

// BearerVerifier turns a raw bearer token into a viewer.
type BearerVerifier interface {
	VerifyBearer(ctx context.Context, rawToken string) (models.Viewer, error)
}

// Identify resolves the viewer of every request from a bearer token or the
// session cookie. Requests with neither carry an anonymous viewer.
func Identify(sessions *SessionManager, bearer BearerVerifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewer := models.Viewer{}

			rawToken, err := ExtractTokenFromRequest(r)
			switch {
			case err == nil && bearer != nil:
				v, verr := bearer.VerifyBearer(r.Context(), rawToken)
				if verr != nil {
					log.LogSecurity("BEARER", fmt.Sprintf("rejected bearer token on %s: %v", r.URL.Path, verr))
				} else {
					viewer = v
				}
			case errors.Is(err, ErrNoBearerToken):
				if v, serr := sessions.Read(r); serr == nil {
					viewer = v
				} else if !errors.Is(serr, ErrNoSession) {
					log.LogSecurity("SESSION", fmt.Sprintf("discarding session cookie: %v", serr))
					sessions.Clear(w)
				}
			default:
				log.LogSecurity("BEARER", fmt.Sprintf("malformed authorization header on %s", r.URL.Path))
			}

			next.ServeHTTP(w, r.WithContext(WithViewer(r.Context(), viewer)))
		})
	}
}

// RequireAuth sends anonymous browsers to the login page and answers API
// clients with 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ViewerFrom(r.Context()).Authenticated {
			next.ServeHTTP(w, r)
			return
		}

		if strings.HasPrefix(r.URL.Path, "/api/") || r.Header.Get("Authorization") != "" {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Authentication required", "unauthorized"))
			return
		}

		http.Redirect(w, r, "/login?returnTo="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
	})
}

func WithViewer(ctx context.Context, viewer models.Viewer) context.Context {
	return context.WithValue(ctx, viewerKey, viewer)
}

// ViewerFrom returns the viewer resolved by Identify, or an anonymous one.
func ViewerFrom(ctx context.Context) models.Viewer {
	if v, ok := ctx.Value(viewerKey).(models.Viewer); ok {
		return v
	}
	return models.Viewer{}
}

// SafeReturnTo keeps post-login redirects on this site.
func SafeReturnTo(returnTo string) string {
	if returnTo == "" || !strings.HasPrefix(returnTo, "/") || strings.HasPrefix(returnTo, "//") || strings.ContainsAny(returnTo, "\\\r\n") {
		return "/"
	}
	u, err := url.Parse(returnTo)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	return returnTo
}
