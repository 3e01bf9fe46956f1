package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ms-ticket-issuance/internal/auth"
	"ms-ticket-issuance/internal/logger"
	pages "ms-ticket-issuance/internal/tickets/template"
	"ms-ticket-issuance/internal/tickets/ticket_api"
	"ms-ticket-issuance/internal/utils"
)

type routerDeps struct {
	Log      *logger.Logger
	Sessions *auth.SessionManager
	Auth     *auth.Authenticator
	Tickets  *ticket_api.Handler
	Ping     func(ctx context.Context) error
}

func newRouter(d routerDeps) http.Handler {
	var bearer auth.BearerVerifier
	if d.Auth != nil {
		bearer = d.Auth
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(d.Log))
	r.Use(auth.Identify(d.Sessions, bearer, d.Log))

	r.Handle("/css/*", pages.Static())
	r.Get("/healthz", healthz(d.Ping))

	if d.Auth != nil {
		d.Auth.RegisterRoutes(r)
	}
	d.Tickets.RegisterRoutes(r)

	return r
}

func healthz(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := ping(ctx); err != nil {
			utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("Database unreachable", "unavailable"))
			return
		}
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
	}
}
