package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-ticket-issuance/internal/auth"
	"ms-ticket-issuance/internal/logger"
	"ms-ticket-issuance/internal/models"
	"ms-ticket-issuance/internal/tickets/db"
	qr "ms-ticket-issuance/internal/tickets/qr_generator"
	tickets "ms-ticket-issuance/internal/tickets/service"
	pages "ms-ticket-issuance/internal/tickets/template"
	"ms-ticket-issuance/internal/tickets/ticket_api"
)

type testApp struct {
	router   http.Handler
	sessions *auth.SessionManager
}

func newTestApp(t *testing.T, ping func(context.Context) error) *testApp {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })
	require.NoError(t, db.CreateSchema(context.Background(), bunDB))

	log := logger.NewWithWriter(io.Discard, logger.DEBUG)
	service := tickets.NewTicketService(&db.DB{Bun: bunDB}, log)

	renderer, err := pages.NewRenderer()
	require.NoError(t, err)

	sessions, err := auth.NewSessionManager("router-test-secret-0123456789", time.Hour, false)
	require.NoError(t, err)

	if ping == nil {
		ping = bunDB.PingContext
	}

	return &testApp{
		router: newRouter(routerDeps{
			Log:      log,
			Sessions: sessions,
			Tickets:  ticket_api.NewHandler(service, qr.NewEncoder(0), renderer, "http://localhost:3000", log),
			Ping:     ping,
		}),
		sessions: sessions,
	}
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) issue(vatin string) *httptest.ResponseRecorder {
	form := url.Values{"vatin": {vatin}, "firstName": {"Ana"}, "lastName": {"Horvat"}}
	req := httptest.NewRequest(http.MethodPost, "/generate-ticket", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(req)
}

// signedIn returns a request carrying a session cookie for a staff viewer.
func (a *testApp) signedIn(t *testing.T, target string) *http.Request {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, a.sessions.Issue(rec, models.Viewer{Authenticated: true, Subject: "auth0|staff", DisplayName: "Door Staff"}))

	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestIssueAndLookupFlow(t *testing.T) {
	app := newTestApp(t, nil)

	var ids []string
	for i := 0; i < 3; i++ {
		rec := app.issue("HR12345678901")
		require.Equal(t, http.StatusFound, rec.Code)
		location := rec.Header().Get("Location")
		require.True(t, strings.HasPrefix(location, "/generate-ticket/"))
		ids = append(ids, strings.TrimPrefix(location, "/generate-ticket/"))
	}

	rec := app.issue("HR12345678901")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "quota_exceeded")

	rec = app.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<strong>3</strong>")

	rec = app.do(httptest.NewRequest(http.MethodGet, "/generate-ticket/"+ids[0], nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http://localhost:3000/generate-ticket/"+ids[0])

	rec = app.do(httptest.NewRequest(http.MethodGet, "/ticket/"+ids[0], nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/login?returnTo="))

	rec = app.do(app.signedIn(t, "/ticket/"+ids[0]))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "HR12345678901")
	assert.Contains(t, rec.Body.String(), "Door Staff")

	rec = app.do(app.signedIn(t, "/ticket/00000000-0000-4000-8000-000000000000"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t, nil)
	rec := app.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newTestApp(t, func(context.Context) error { return errors.New("connection refused") })
	rec = down.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStylesheetServed(t *testing.T) {
	app := newTestApp(t, nil)
	rec := app.do(httptest.NewRequest(http.MethodGet, "/css/styles.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/css")
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCommand()

	serveCmd, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", serveCmd.Name())

	gotoCmd, _, err := root.Find([]string{"migrate", "goto"})
	require.NoError(t, err)
	assert.Equal(t, "goto", gotoCmd.Name())
	assert.Error(t, gotoCmd.Args(gotoCmd, nil))

	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}
