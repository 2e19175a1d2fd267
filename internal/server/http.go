package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/codearena/internal/auth"
	"github.com/gokatarajesh/codearena/internal/config"
	"github.com/gokatarajesh/codearena/internal/history"
	"github.com/gokatarajesh/codearena/internal/leaderboard"
	"github.com/gokatarajesh/codearena/internal/logging"
	"github.com/gokatarajesh/codearena/internal/match"
	"github.com/gokatarajesh/codearena/internal/metrics"
	"github.com/gokatarajesh/codearena/internal/practice"
	"github.com/gokatarajesh/codearena/internal/question"
	httperrors "github.com/gokatarajesh/codearena/pkg/http/errors"
)

// Pinger is a dependency the health endpoints check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers groups every API surface mounted on the mux.
type Handlers struct {
	Rooms       *match.HTTPHandlers
	RoomSocket  *match.Handler
	Games       *history.HTTPHandlers
	Questions   *question.HTTPHandlers
	Practice    *practice.HTTPHandlers
	Leaderboard *leaderboard.HTTPHandler
}

// NewHTTPServer wires routes for the API service.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, tokens auth.TokenValidator, h Handlers, deps ...Pinger) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pingDependencies(ctx, deps...); err != nil {
			logger.Warn().Err(err).Msg("health check failed")
			httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeServiceUnavailable, "dependency unavailable")
			return
		}
		httperrors.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/ping", func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.IntoContext(r.Context(), logger)
		if err := pingDependencies(ctx, deps...); err != nil {
			logging.FromContext(ctx).Error().Err(err).Msg("dependency ping failed")
			httperrors.RespondError(w, http.StatusBadGateway, httperrors.ErrCodeUpstreamError, "upstream error")
			return
		}
		httperrors.RespondJSON(w, http.StatusOK, map[string]bool{"pong": true})
	})

	authed := func(fn http.HandlerFunc) http.Handler {
		return auth.RequireAuth(fn)
	}

	// Rooms
	mux.Handle("POST /v1/rooms", authed(h.Rooms.CreateRoom))
	mux.HandleFunc("GET /v1/rooms", h.Rooms.ListRooms)
	mux.HandleFunc("GET /v1/rooms/{id}", h.Rooms.GetRoom)
	mux.Handle("POST /v1/rooms/join-by-code", authed(h.Rooms.JoinByCode))
	mux.Handle("POST /v1/rooms/{id}/join", authed(h.Rooms.JoinRoom))
	mux.Handle("POST /v1/rooms/{id}/leave", authed(h.Rooms.LeaveRoom))
	mux.Handle("POST /v1/rooms/{id}/start", authed(h.Rooms.StartRound))
	mux.Handle("POST /v1/rooms/{id}/submissions", authed(h.Rooms.Submit))
	mux.Handle("POST /v1/rooms/{id}/disqualify", authed(h.Rooms.Disqualify))
	mux.Handle("POST /v1/rooms/{id}/end", authed(h.Rooms.EndRound))
	mux.Handle("POST /v1/rooms/{id}/rematch", authed(h.Rooms.Rematch))
	mux.Handle("DELETE /v1/rooms/{id}", authed(h.Rooms.DeleteRoom))

	if h.Games != nil {
		mux.HandleFunc("GET /v1/games/{roomID}", h.Games.ListGames)
	}

	// Questions
	mux.HandleFunc("GET /v1/questions", h.Questions.List)
	mux.Handle("POST /v1/questions", authed(h.Questions.Create))
	mux.HandleFunc("GET /v1/questions/{id}", h.Questions.Get)
	mux.Handle("DELETE /v1/questions/{id}", authed(h.Questions.Delete))

	// Practice
	mux.Handle("POST /v1/practice/run", authed(h.Practice.Run))
	mux.Handle("POST /v1/practice/submit", authed(h.Practice.Submit))

	if h.Leaderboard != nil {
		mux.HandleFunc("GET /v1/leaderboard", h.Leaderboard.HandleGet)
	}

	// WebSocket authenticates via ?token= itself.
	mux.HandleFunc("GET /ws/rooms", h.RoomSocket.HandleWebSocket)

	// instrument sits inside auth so it sees the request the mux matched
	handler := auth.Middleware(tokens, logger)(instrument(mux))

	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func pingDependencies(ctx context.Context, deps ...Pinger) error {
	for _, d := range deps {
		if err := d.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RedisPinger adapts a redis client to Pinger.
func RedisPinger(client *redis.Client) Pinger {
	return redisPinger{client}
}

type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

var _ Pinger = (*pgxpool.Pool)(nil)

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the hijacker for upgrades.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws/rooms" {
			// hijacked connections have no meaningful status or duration
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
