package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/gokatarajesh/codearena/internal/auth/jwt"
	"github.com/gokatarajesh/codearena/internal/config"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type rejectAll struct{}

func (rejectAll) Validate(string) (*jwt.Claims, error) { return nil, jwt.ErrInvalidToken }

func newTestServer(deps ...Pinger) http.Handler {
	cfg := &config.App{HTTPAddr: ":0"}
	return NewHTTPServer(cfg, zerolog.Nop(), rejectAll{}, Handlers{}, deps...).Handler
}

func TestHealthz(t *testing.T) {
	healthy := newTestServer(pingFunc(func(context.Context) error { return nil }))
	rec := httptest.NewRecorder()
	healthy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	down := newTestServer(pingFunc(func(context.Context) error { return errors.New("dial tcp: refused") }))
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPingReportsUpstreamFailure(t *testing.T) {
	srv := newTestServer(pingFunc(func(context.Context) error { return errors.New("redis down") }))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestMutatingRoutesRequireAuth(t *testing.T) {
	srv := newTestServer()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/rooms", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "authentication_required")

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/practice/run", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer nope")
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_token")
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer()
	srv.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "codearena_http_requests_total")
}
